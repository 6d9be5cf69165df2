package output

import (
	"errors"
	"fmt"
	"go/scanner"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/tools/imports"

	"tplc-go/packages/compiler/src/ast"
	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/statement"
	"tplc-go/packages/compiler/src/util"
)

// Header is the first line of every generated file.
const Header = "// Code generated by tplc-go. DO NOT EDIT."

// reservedNames are identifiers the generated code declares itself;
// template arguments, loop variables, bindings and content closures may
// not use them.
var reservedNames = map[string]bool{
	"out":      true,
	"t":        true,
	"err":      true,
	"guard":    true,
	"runtime":  true,
	"io":       true,
	"Bind":     true,
	"Render":   true,
	"RenderTo": true,
}

// Result holds the generated source of one template.
type Result struct {
	Source    []byte
	SourceMap *SourceMap
}

type argument struct {
	name   string
	goType string
}

// Generator lowers a TemplateModel to Go source. It implements
// ast.Visitor for the units of the render body.
type Generator struct {
	model  *ast.TemplateModel
	cfg    *config.CompilerConfig
	ctx    *EmitterVisitorContext
	ident  string
	args   []argument
	scopes []map[string]bool
	seq    int
}

var _ ast.Visitor = (*Generator)(nil)

// Generate produces the formatted Go source for model. genFile is the
// name the generated file will be written under; it names the file in
// formatter errors and in the source map.
func Generate(model *ast.TemplateModel, genFile string) (*Result, error) {
	cfg := model.Options
	if cfg == nil {
		cfg = config.NewCompilerConfig()
	}
	g := &Generator{
		model:  model,
		cfg:    cfg,
		ctx:    NewEmitterVisitorContext(0),
		ident:  model.Name,
		scopes: []map[string]bool{{}},
	}
	if !util.IsIdentifier(g.ident) {
		return nil, util.Errorf(util.GenerationError, nil, "template name %q is not a valid identifier", g.ident)
	}
	if err := g.lowerArguments(); err != nil {
		return nil, err
	}

	g.emitPreamble()
	g.emitDeclarations()
	if err := g.emitRenderTo(); err != nil {
		return nil, err
	}

	raw := g.ctx.ToSource()
	src, err := imports.Process(genFile, []byte(raw), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: !cfg.ResolveImports,
	})
	if err != nil {
		return nil, g.formatError(raw, err)
	}

	result := &Result{Source: src}
	if cfg.SourceMaps {
		var content *string
		if model.File != nil {
			content = &model.File.Content
		}
		result.SourceMap = MapGenerated(genFile, model.Path, content, string(src))
	}
	return result, nil
}

func (g *Generator) lowerArguments() error {
	for _, arg := range g.model.Arguments {
		span := g.argumentsSpan()
		if err := checkName("argument", arg.Name, span); err != nil {
			return err
		}
		if arg.Name == "_" {
			return util.Errorf(util.ModelError, span, "argument name must not be blank")
		}
		goType, err := GoType(arg.Type)
		if err != nil {
			return &util.ParseError{Kind: util.ModelError, Span: span, Msg: fmt.Sprintf("argument %q", arg.Name), Cause: err}
		}
		g.args = append(g.args, argument{name: arg.Name, goType: goType})
	}
	return nil
}

// checkName rejects identifiers that would shadow or clash with the
// generated code's own.
func checkName(kind, name string, span *util.ParseSourceSpan) error {
	if reservedNames[name] || strings.HasPrefix(name, "tpl") {
		return util.Errorf(util.ModelError, span, "%s name %q is reserved in generated code", kind, name)
	}
	return nil
}

func (g *Generator) argumentsSpan() *util.ParseSourceSpan {
	for _, unit := range g.model.Units {
		if decl, ok := unit.(*ast.ArgumentsDeclaration); ok {
			return decl.Span
		}
	}
	return nil
}

func (g *Generator) packageName() string {
	if g.model.Package != "" {
		return g.model.Package
	}
	if g.cfg.PackageName != "" {
		return g.cfg.PackageName
	}
	return "views"
}

func (g *Generator) emitPreamble() {
	g.ctx.Println(Header)
	g.ctx.Println("// source: " + g.model.Path)
	g.ctx.Println("")
	g.ctx.Println("package " + g.packageName())
	g.ctx.Println("")
	g.ctx.Println("import (")
	g.ctx.IncIndent()
	g.ctx.Println(`"io"`)
	g.ctx.Println("")
	g.ctx.Println(strconv.Quote(g.cfg.RuntimeImport))
	seen := map[string]bool{"io": true, g.cfg.RuntimeImport: true}
	imps := append([]ast.Import(nil), g.model.Imports...)
	sort.SliceStable(imps, func(i, j int) bool { return imps[i].Path < imps[j].Path })
	for _, imp := range imps {
		key := imp.Alias + " " + imp.Path
		if seen[key] || (imp.Alias == "" && seen[imp.Path]) {
			continue
		}
		seen[key] = true
		if imp.Alias != "" {
			g.ctx.Println(imp.Alias + " " + strconv.Quote(imp.Path))
		} else {
			g.ctx.Println(strconv.Quote(imp.Path))
		}
	}
	g.ctx.DecIndent()
	g.ctx.Println(")")
	g.ctx.Println("")
}

func (g *Generator) emitDeclarations() {
	name, tpl := g.ident+"TemplateName", g.ident+"Template"
	ctx := g.ctx

	ctx.Printf("// %s is the source path of the %s template.", name, g.ident)
	ctx.Printf("const %s = %s", name, strconv.Quote(g.model.Path))
	ctx.Println("")

	quoted := make([]string, len(g.args))
	params := make([]string, len(g.args))
	for i, arg := range g.args {
		quoted[i] = strconv.Quote(arg.name)
		params[i] = arg.name + " " + arg.goType
	}
	ctx.Printf("// %sArguments lists the %s template arguments in declaration order.", g.ident, g.ident)
	ctx.Printf("var %sArguments = runtime.Manifest{%s}", g.ident, strings.Join(quoted, ", "))
	ctx.Println("")

	ctx.Printf("// %s renders %s. An instance renders at most once.", tpl, g.model.Path)
	ctx.Printf("type %s struct {", tpl)
	ctx.IncIndent()
	ctx.Println("guard runtime.Guard")
	for _, arg := range g.args {
		ctx.Println(arg.name + " " + arg.goType)
	}
	ctx.DecIndent()
	ctx.Println("}")
	ctx.Println("")

	ctx.Printf("// New%s creates a %s bound to its arguments.", tpl, tpl)
	ctx.Printf("func New%s(%s) *%s {", tpl, strings.Join(params, ", "), tpl)
	ctx.IncIndent()
	if len(g.args) == 0 {
		ctx.Printf("return &%s{}", tpl)
	} else {
		ctx.Printf("return &%s{", tpl)
		ctx.IncIndent()
		for _, arg := range g.args {
			ctx.Println(arg.name + ": " + arg.name + ",")
		}
		ctx.DecIndent()
		ctx.Println("}")
	}
	ctx.DecIndent()
	ctx.Println("}")
	ctx.Println("")

	ctx.Println("// Bind sets the argument called name.")
	ctx.Printf("func (t *%s) Bind(name string, value any) error {", tpl)
	ctx.IncIndent()
	if len(g.args) > 0 {
		ctx.Println("switch name {")
		for _, arg := range g.args {
			ctx.Printf("case %s:", strconv.Quote(arg.name))
			ctx.IncIndent()
			if arg.goType == "any" {
				ctx.Println("t." + arg.name + " = value")
			} else {
				ctx.Printf("v, ok := value.(%s)", arg.goType)
				ctx.Println("if !ok {")
				ctx.IncIndent()
				ctx.Printf("return runtime.NewBindError(%s, name, %s, value)", name, strconv.Quote(arg.goType))
				ctx.DecIndent()
				ctx.Println("}")
				ctx.Println("t." + arg.name + " = v")
			}
			ctx.Println("return nil")
			ctx.DecIndent()
		}
		ctx.Println("}")
	}
	ctx.Printf(`return runtime.NewBindError(%s, name, "", value)`, name)
	ctx.DecIndent()
	ctx.Println("}")
	ctx.Println("")

	ctx.Println("// Render renders the template to w.")
	ctx.Printf("func (t *%s) Render(w io.Writer) error {", tpl)
	ctx.IncIndent()
	ctx.Println("out := runtime.NewOutput(w)")
	ctx.Println("if err := t.RenderTo(out); err != nil {")
	ctx.IncIndent()
	ctx.Println("return err")
	ctx.DecIndent()
	ctx.Println("}")
	ctx.Println("return out.Flush()")
	ctx.DecIndent()
	ctx.Println("}")
	ctx.Println("")
}

// emitRenderTo is emitted last so that //line directives never apply to
// the declarations above it.
func (g *Generator) emitRenderTo() error {
	name, tpl := g.ident+"TemplateName", g.ident+"Template"
	ctx := g.ctx

	ctx.Println("// RenderTo renders the template into out.")
	ctx.Printf("func (t *%s) RenderTo(out *runtime.Output) (err error) {", tpl)
	ctx.IncIndent()
	ctx.Printf("if err := t.guard.Enter(%s); err != nil {", name)
	ctx.IncIndent()
	ctx.Println("return err")
	ctx.DecIndent()
	ctx.Println("}")
	ctx.Printf("defer out.Enter(%s)()", name)
	ctx.Println("defer out.Recover(&err)")
	for _, arg := range g.args {
		ctx.Printf("%s := t.%s", arg.name, arg.name)
		ctx.Println("_ = " + arg.name)
	}
	if err := g.emitUnits(g.model.Units); err != nil {
		return err
	}
	ctx.Println("return out.Err()")
	ctx.DecIndent()
	ctx.Println("}")
	return nil
}

// emitUnits emits a unit list in its own closure scope. Adjacent text
// units are coalesced into one write when text optimization is enabled.
func (g *Generator) emitUnits(units []ast.Unit) error {
	g.scopes = append(g.scopes, map[string]bool{})
	defer func() { g.scopes = g.scopes[:len(g.scopes)-1] }()

	for i := 0; i < len(units); i++ {
		if text, ok := units[i].(*ast.PlainText); ok && g.cfg.OptimizeText {
			var b strings.Builder
			b.WriteString(text.Text)
			for i+1 < len(units) {
				next, ok := units[i+1].(*ast.PlainText)
				if !ok {
					break
				}
				b.WriteString(next.Text)
				i++
			}
			g.text(text.Span, b.String())
			continue
		}
		if err := units[i].Visit(g); err != nil {
			return err
		}
	}
	return nil
}

// at annotates the next statement with its template position.
func (g *Generator) at(span *util.ParseSourceSpan) {
	if span == nil || span.Start == nil {
		return
	}
	line, col := span.Start.Line, span.Start.Col
	if g.cfg.LineDirectives {
		g.ctx.PrintDirective(fmt.Sprintf("//line %s:%d:%d", g.model.Path, line, col))
	}
	g.ctx.Printf("out.At(%s, %s)", strconv.Itoa(line), strconv.Itoa(col))
}

func (g *Generator) text(span *util.ParseSourceSpan, text string) {
	if text == "" {
		return
	}
	g.at(span)
	g.ctx.Printf("out.Text(%s)", strconv.Quote(text))
}

func (g *Generator) nextID() string {
	g.seq++
	return strconv.Itoa(g.seq)
}

func (g *Generator) closureInScope(name string) bool {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if g.scopes[i][name] {
			return true
		}
	}
	return false
}

// use silences unused-variable errors for template-declared variables.
func (g *Generator) use(names ...string) {
	for _, name := range names {
		if name != "_" {
			g.ctx.Println("_ = " + name)
		}
	}
}

// redeclare re-declares typed variables so the Go compiler checks them.
func (g *Generator) redeclare(vars []statement.DeclaredVariable, span *util.ParseSourceSpan) error {
	for _, v := range vars {
		if !v.HasType() || v.Name == "_" {
			continue
		}
		goType, err := GoType(v.Type)
		if err != nil {
			return &util.ParseError{Kind: util.ModelError, Span: span, Msg: fmt.Sprintf("variable %q", v.Name), Cause: err}
		}
		g.ctx.Printf("var %s %s = %s", v.Name, goType, v.Name)
	}
	return nil
}

// VisitPlainText emits a literal write
func (g *Generator) VisitPlainText(text *ast.PlainText) error {
	g.text(text.Span, text.Text)
	return nil
}

// VisitValueExpression emits a value write through the content type's escaping
func (g *Generator) VisitValueExpression(value *ast.ValueExpression) error {
	g.at(value.Span)
	if g.model.ContentType == config.ContentTypeHTML {
		g.ctx.Printf("out.Value(%s)", value.Expr)
	} else {
		g.ctx.Printf("out.Raw(%s)", value.Expr)
	}
	return nil
}

// VisitIfBlock emits an if statement
func (g *Generator) VisitIfBlock(block *ast.IfBlock) error {
	g.at(block.Span)
	g.ctx.Printf("if %s {", block.Condition)
	if err := g.block(block.Then); err != nil {
		return err
	}
	if block.HasElse {
		g.ctx.Println("} else {")
		if err := g.block(block.Else); err != nil {
			return err
		}
	}
	g.ctx.Println("}")
	return nil
}

func (g *Generator) block(units []ast.Unit) error {
	g.ctx.IncIndent()
	err := g.emitUnits(units)
	g.ctx.DecIndent()
	return err
}

// VisitForBlock emits a three-clause or range loop
func (g *Generator) VisitForBlock(block *ast.ForBlock) error {
	g.at(block.Span)
	switch stmt := block.Statement.(type) {
	case *statement.GeneralFor:
		g.ctx.Printf("for %s; %s; %s {", stmt.Init, stmt.Condition, stmt.Post)
		if err := g.block(block.Body); err != nil {
			return err
		}
		g.ctx.Println("}")
		return nil
	case *statement.EnhancedFor:
		return g.enhancedFor(stmt, block)
	}
	return util.Errorf(util.GenerationError, block.Span, "unsupported for statement %T", block.Statement)
}

func (g *Generator) enhancedFor(stmt *statement.EnhancedFor, block *ast.ForBlock) error {
	args := stmt.Arguments
	names := make([]string, len(args))
	for i, a := range args {
		if err := checkName("loop variable", a.Name, block.Span); err != nil {
			return err
		}
		names[i] = a.Name
	}
	ctx := g.ctx

	var loopVars []statement.DeclaredVariable
	switch len(args) {
	case 1:
		ctx.Println(rangeClause("_", names[0], stmt.Value))
		loopVars = args
	case 2:
		ctx.Println(rangeClause(names[0], names[1], stmt.Value))
		loopVars = args
	case 3:
		if names[0] == "_" {
			return util.Errorf(util.ModelError, block.Span, "iterator name must not be blank")
		}
		coll := "tplColl" + g.nextID()
		ctx.Println("{")
		ctx.IncIndent()
		ctx.Printf("%s := %s", coll, stmt.Value)
		ctx.Printf("%s := runtime.NewForIteratorOf(%s)", names[0], coll)
		ctx.Println(rangeClause(names[1], names[2], coll))
		ctx.IncIndent()
		ctx.Println(names[0] + ".Next()")
		ctx.DecIndent()
		loopVars = args[1:]
	default:
		return util.Errorf(util.GenerationError, block.Span, "enhanced for with %d arguments", len(args))
	}

	ctx.IncIndent()
	if err := g.redeclare(loopVars, block.Span); err != nil {
		return err
	}
	g.use(names...)
	if err := g.emitUnits(block.Body); err != nil {
		return err
	}
	ctx.DecIndent()
	ctx.Println("}")
	if len(args) == 3 {
		ctx.DecIndent()
		ctx.Println("}")
	}
	return nil
}

// rangeClause opens a range loop; blank-only variables use the bare form.
func rangeClause(key, value, coll string) string {
	if key == "_" && value == "_" {
		return "for range " + coll + " {"
	}
	return "for " + key + ", " + value + " := range " + coll + " {"
}

// VisitWithBlock emits nested scoped bindings. The first skipped binding
// runs the else branch. Untyped bindings evaluate inside runtime.Try so a
// panicking expression skips like a nil one.
func (g *Generator) VisitWithBlock(block *ast.WithBlock) error {
	g.at(block.Span)
	bindings := block.Statement.Bindings
	if len(bindings) == 0 {
		return util.Errorf(util.GenerationError, block.Span, "with block without bindings")
	}
	ctx := g.ctx

	untyped := false
	for _, b := range bindings {
		if err := checkName("binding", b.Variable.Name, block.Span); err != nil {
			return err
		}
		if b.Variable.Name == "_" {
			return util.Errorf(util.ModelError, block.Span, "binding name must not be blank")
		}
		untyped = untyped || !b.Variable.HasType()
	}

	flag := ""
	if untyped || block.HasElse && len(bindings) > 1 {
		flag = "tplOK" + g.nextID()
		ctx.Println("{")
		ctx.IncIndent()
		ctx.Println(flag + " := false")
	}

	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.Variable.Name
		if !b.Variable.HasType() {
			ctx.Printf("runtime.Try(&%s, func() {", flag)
			ctx.IncIndent()
			ctx.Printf("%s := %s", b.Variable.Name, b.Value)
			ctx.Printf("if runtime.IsNil(%s) {", b.Variable.Name)
			ctx.IncIndent()
			ctx.Println("return")
			ctx.DecIndent()
			ctx.Println("}")
			continue
		}
		bind, err := g.typedBinding(b, block.Span)
		if err != nil {
			return err
		}
		ctx.Printf("if %s, tplOK := %s; tplOK {", b.Variable.Name, bind)
		ctx.IncIndent()
	}
	if flag != "" {
		ctx.Println(flag + " = true")
	}
	g.use(names...)
	if err := g.emitUnits(block.Body); err != nil {
		return err
	}
	for i := len(bindings) - 1; i >= 0; i-- {
		ctx.DecIndent()
		if !bindings[i].Variable.HasType() {
			ctx.Println("})")
			continue
		}
		if i == 0 && block.HasElse && flag == "" {
			ctx.Println("} else {")
			if err := g.block(block.Else); err != nil {
				return err
			}
		}
		ctx.Println("}")
	}
	if flag != "" {
		if block.HasElse {
			ctx.Printf("if !%s {", flag)
			if err := g.block(block.Else); err != nil {
				return err
			}
			ctx.Println("}")
		}
		ctx.DecIndent()
		ctx.Println("}")
	}
	return nil
}

func (g *Generator) typedBinding(b statement.WithBinding, span *util.ParseSourceSpan) (string, error) {
	goType, err := GoType(b.Variable.Type)
	if err != nil {
		return "", &util.ParseError{Kind: util.ModelError, Span: span, Msg: fmt.Sprintf("binding %q", b.Variable.Name), Cause: err}
	}
	return "runtime.Bind(func() " + goType + " { return " + b.Value + " })", nil
}

// VisitContentClosure emits a content closure bound to a local variable
func (g *Generator) VisitContentClosure(closure *ast.ContentClosure) error {
	if err := checkName("content", closure.Name, closure.Span); err != nil {
		return err
	}
	g.at(closure.Span)
	ctx := g.ctx
	ctx.Printf("%s := runtime.ContentFunc(func(out *runtime.Output) {", closure.Name)
	ctx.IncIndent()
	ctx.Printf("defer out.Enter(%sTemplateName)()", g.ident)
	ctx.Println("defer out.Catch()")
	if err := g.emitUnits(closure.Body); err != nil {
		return err
	}
	ctx.DecIndent()
	ctx.Println("})")
	g.use(closure.Name)
	g.scopes[len(g.scopes)-1][closure.Name] = true
	return nil
}

// VisitInclude emits the rendering of a closure in scope or of another template
func (g *Generator) VisitInclude(include *ast.Include) error {
	qualifier, name := util.SplitAtPeriod(include.Path)
	if qualifier == "" && g.closureInScope(name) {
		if len(include.Args) > 0 {
			return util.Errorf(util.ModelError, include.Span, "content %q takes no arguments, got %d", name, len(include.Args))
		}
		g.at(include.Span)
		g.ctx.Printf("out.Include(%s)", name)
		return nil
	}
	ctor := "New" + util.PascalCase(name) + "Template"
	if qualifier != "" {
		ctor = qualifier + "." + ctor
	}
	g.at(include.Span)
	g.ctx.Printf("out.Include(%s(%s))", ctor, strings.Join(include.Args, ", "))
	return nil
}

// VisitArgumentsDeclaration emits nothing; arguments become the
// template's fields and constructor parameters.
func (g *Generator) VisitArgumentsDeclaration(*ast.ArgumentsDeclaration) error {
	return nil
}

// formatError maps a formatter failure back to the template position
// annotated closest before the offending generated line.
func (g *Generator) formatError(raw string, err error) error {
	var span *util.ParseSourceSpan
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 && g.model.File != nil {
		if line, col, ok := positionBefore(raw, list[0].Pos.Line); ok {
			span = g.spanAt(line, col)
		}
	}
	return &util.ParseError{
		Kind:  util.GenerationError,
		Span:  span,
		Msg:   "generated code does not parse",
		Cause: err,
	}
}

// positionBefore finds the last out.At annotation at or before the
// 1-based generated line.
func positionBefore(raw string, genLine int) (line, col int, ok bool) {
	lines := strings.Split(raw, "\n")
	if genLine > len(lines) {
		genLine = len(lines)
	}
	for i := genLine - 1; i >= 0; i-- {
		if m := atCall.FindStringSubmatch(lines[i]); m != nil {
			line, _ = strconv.Atoi(m[1])
			col, _ = strconv.Atoi(m[2])
			return line, col, true
		}
	}
	return 0, 0, false
}

func (g *Generator) spanAt(line, col int) *util.ParseSourceSpan {
	file := g.model.File
	offset := 0
	for l := 1; l < line; l++ {
		i := strings.IndexByte(file.Content[offset:], '\n')
		if i < 0 {
			break
		}
		offset += i + 1
	}
	for c := 1; c < col && offset < len(file.Content); c++ {
		_, size := utf8.DecodeRuneInString(file.Content[offset:])
		offset += size
	}
	return file.Span(offset, offset)
}
