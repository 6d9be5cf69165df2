package parser

import (
	"errors"
	"path"
	"strconv"
	"strings"

	"golang.org/x/mod/module"

	"tplc-go/packages/compiler/src/ast"
	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/lexer"
	"tplc-go/packages/compiler/src/statement"
	"tplc-go/packages/compiler/src/util"
)

// frame is one open block. units collects the block's children; finish
// stores them into the owning unit when the block closes.
type frame struct {
	name   string
	start  *util.ParseSourceSpan
	units  []ast.Unit
	owner  ast.Unit
	finish func(units []ast.Unit)
	// attach is false for else branches, whose owner already hangs off
	// an earlier block.
	attach bool

	// pending is the closed if/with block an @else may still attach to,
	// and pendingAt the length of units when it closed.
	pending   ast.Unit
	pendingAt int
}

// Parser builds a TemplateModel from tokens.
type Parser struct {
	file   *util.ParseSourceFile
	model  *ast.TemplateModel
	frames []*frame
	args   *ast.ArgumentsDeclaration
}

// NewParser creates a new Parser
func NewParser(file *util.ParseSourceFile, cfg *config.CompilerConfig) *Parser {
	if cfg == nil {
		cfg = config.NewCompilerConfig()
	}
	return &Parser{
		file: file,
		model: &ast.TemplateModel{
			Name:        TemplateName(file.URL),
			Path:        file.URL,
			ContentType: cfg.ContentType.ForFile(file.URL),
			Options:     cfg,
			File:        file,
		},
	}
}

// Parse tokenizes and parses a template file into a model.
func Parse(file *util.ParseSourceFile, cfg *config.CompilerConfig) (*ast.TemplateModel, error) {
	tokens, err := lexer.Tokenize(file)
	if err != nil {
		return nil, err
	}
	return NewParser(file, cfg).Build(tokens)
}

// TemplateName derives the exported identifier stem from a template path:
// "views/user_card.html" becomes "UserCard".
func TemplateName(templatePath string) string {
	base := path.Base(strings.ReplaceAll(templatePath, "\\", "/"))
	return util.PascalCase(strings.TrimSuffix(base, path.Ext(base)))
}

// Build assembles the model from a complete token stream.
func (p *Parser) Build(tokens []*lexer.Token) (*ast.TemplateModel, error) {
	p.frames = []*frame{{name: "template", attach: true}}

	for _, tok := range tokens {
		var err error
		switch tok.Type {
		case lexer.TokenTypeTEXT:
			p.add(ast.NewPlainText(tok.Value, tok.SourceSpan), true)
		case lexer.TokenTypeVALUE:
			p.add(ast.NewValueExpression(strings.TrimSpace(tok.Value), tok.SourceSpan), false)
		case lexer.TokenTypeCOMMENT:
		case lexer.TokenTypeDIRECTIVE:
			err = p.directive(tok)
		case lexer.TokenTypeBLOCK_CLOSE:
			err = p.closeBlock(tok)
		case lexer.TokenTypeEOF:
			if len(p.frames) > 1 {
				top := p.top()
				return nil, util.Errorf(util.ModelError, top.start, "unclosed @%s block", top.name)
			}
		}
		if err != nil {
			return nil, err
		}
	}

	p.model.Units = p.frames[0].units
	if p.model.Units == nil {
		p.model.Units = []ast.Unit{}
	}
	if p.args != nil {
		p.model.Arguments = p.args.Arguments
	} else {
		p.model.Arguments = []statement.DeclaredVariable{}
	}
	return p.model, nil
}

func (p *Parser) top() *frame {
	return p.frames[len(p.frames)-1]
}

// add appends a unit to the innermost block. Whitespace-only text keeps a
// pending else target alive.
func (p *Parser) add(unit ast.Unit, text bool) {
	f := p.top()
	if !text || strings.TrimSpace(unit.(*ast.PlainText).Text) != "" {
		f.pending = nil
	}
	f.units = append(f.units, unit)
}

func (p *Parser) push(tok *lexer.Token, owner ast.Unit, attach bool, finish func([]ast.Unit)) {
	p.frames = append(p.frames, &frame{
		name:   tok.Name,
		start:  tok.SourceSpan,
		owner:  owner,
		attach: attach,
		finish: finish,
	})
}

func (p *Parser) directive(tok *lexer.Token) error {
	switch tok.Name {
	case lexer.DirectiveArgs:
		return p.arguments(tok)
	case lexer.DirectiveImport:
		return p.importPath(tok)
	case lexer.DirectiveIf:
		block, err := p.ifBlock(tok)
		if err != nil {
			return err
		}
		p.push(tok, block, true, func(units []ast.Unit) { block.Then = units })
	case lexer.DirectiveFor:
		stmt, err := statement.ParseFor("(" + tok.Args + ")")
		if err != nil {
			return p.statementError(tok, err, -1)
		}
		block := &ast.ForBlock{Statement: stmt, Span: tok.SourceSpan}
		p.push(tok, block, true, func(units []ast.Unit) { block.Body = units })
	case lexer.DirectiveWith:
		block, err := p.withBlock(tok)
		if err != nil {
			return err
		}
		p.push(tok, block, true, func(units []ast.Unit) { block.Body = units })
	case lexer.DirectiveContent:
		closure := &ast.ContentClosure{Name: tok.Target, Span: tok.SourceSpan}
		if !util.IsIdentifier(closure.Name) {
			return util.Errorf(util.TokenError, tok.SourceSpan, "%q is not a valid content name", closure.Name)
		}
		p.push(tok, closure, true, func(units []ast.Unit) { closure.Body = units })
	case lexer.DirectiveInclude:
		args, err := statement.SplitArguments(tok.Args)
		if err != nil {
			return p.statementError(tok, err, 0)
		}
		p.add(&ast.Include{Path: tok.Target, Args: args, Span: tok.SourceSpan}, false)
	case lexer.DirectiveElseIf, lexer.DirectiveElseWith, lexer.DirectiveElse:
		return p.elseBranch(tok)
	default:
		return util.Errorf(util.ModelError, tok.SourceSpan, "unknown directive @%s", tok.Name)
	}
	return nil
}

func (p *Parser) arguments(tok *lexer.Token) error {
	if p.args != nil {
		return util.Errorf(util.ModelError, tok.SourceSpan,
			"duplicate argument declaration; @args already declared at %s", p.args.Span)
	}
	if len(p.frames) > 1 {
		return util.Errorf(util.ModelError, tok.SourceSpan, "@args must be declared at the top level")
	}
	vars, err := statement.ParseList(tok.Args)
	if err != nil {
		return p.statementError(tok, err, 0)
	}
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v.Name] {
			return util.Errorf(util.ModelError, tok.ArgsSpan, "duplicate argument %q", v.Name)
		}
		seen[v.Name] = true
	}
	p.args = &ast.ArgumentsDeclaration{Arguments: vars, Span: tok.SourceSpan}
	p.add(p.args, false)
	return nil
}

func (p *Parser) importPath(tok *lexer.Token) error {
	if len(p.frames) > 1 {
		return util.Errorf(util.ModelError, tok.SourceSpan, "@import must be declared at the top level")
	}
	fields := strings.Fields(tok.Args)
	var alias, importPath string
	switch len(fields) {
	case 1:
		importPath = fields[0]
	case 2:
		alias, importPath = fields[0], fields[1]
	default:
		return util.Errorf(util.TokenError, tok.ArgsSpan, "malformed @import %q", tok.Args)
	}
	if strings.HasPrefix(importPath, `"`) || strings.HasPrefix(importPath, "`") {
		unquoted, err := strconv.Unquote(importPath)
		if err != nil {
			return util.Errorf(util.TokenError, tok.ArgsSpan, "malformed import path %s", importPath)
		}
		importPath = unquoted
	}
	if alias != "" && alias != "_" && alias != "." && !util.IsIdentifier(alias) {
		return util.Errorf(util.TokenError, tok.ArgsSpan, "%q is not a valid import alias", alias)
	}
	if err := module.CheckImportPath(importPath); err != nil {
		perr := util.Errorf(util.TokenError, tok.ArgsSpan, "invalid import path %q", importPath)
		perr.Cause = err
		return perr
	}
	p.model.Imports = append(p.model.Imports, ast.Import{Alias: alias, Path: importPath, Span: tok.SourceSpan})
	p.top().pending = nil
	return nil
}

func (p *Parser) ifBlock(tok *lexer.Token) (*ast.IfBlock, error) {
	cond := strings.TrimSpace(tok.Args)
	if cond == "" {
		return nil, util.Errorf(util.TokenError, tok.SourceSpan, "@%s requires a condition", tok.Name)
	}
	return &ast.IfBlock{Condition: cond, Span: tok.SourceSpan}, nil
}

func (p *Parser) withBlock(tok *lexer.Token) (*ast.WithBlock, error) {
	stmt, err := statement.ParseWith("(" + tok.Args + ")")
	if err != nil {
		return nil, p.statementError(tok, err, -1)
	}
	return &ast.WithBlock{Statement: stmt, Span: tok.SourceSpan}, nil
}

// elseBranch attaches @elseif, @else if, @else with and @else to the block
// closed last at the current level, dropping whitespace in between.
func (p *Parser) elseBranch(tok *lexer.Token) error {
	f := p.top()
	if f.pending == nil {
		return util.Errorf(util.ModelError, tok.SourceSpan, "@%s without a preceding @if or @with block", displayName(tok.Name))
	}
	target := f.pending
	f.units = f.units[:f.pendingAt]
	f.pending = nil

	var branch ast.Unit
	var finish func([]ast.Unit)
	switch tok.Name {
	case lexer.DirectiveElseIf:
		block, err := p.ifBlock(tok)
		if err != nil {
			return err
		}
		branch = block
		finish = func(units []ast.Unit) { block.Then = units }
	case lexer.DirectiveElseWith:
		block, err := p.withBlock(tok)
		if err != nil {
			return err
		}
		branch = block
		finish = func(units []ast.Unit) { block.Body = units }
	}

	setElse := func(units []ast.Unit) {
		switch t := target.(type) {
		case *ast.IfBlock:
			t.Else, t.HasElse = units, true
		case *ast.WithBlock:
			t.Else, t.HasElse = units, true
		}
	}

	if branch == nil {
		p.push(tok, nil, false, setElse)
		return nil
	}
	setElse([]ast.Unit{branch})
	p.push(tok, branch, false, finish)
	return nil
}

func (p *Parser) closeBlock(tok *lexer.Token) error {
	if len(p.frames) < 2 {
		return util.Errorf(util.ModelError, tok.SourceSpan, "unexpected '}' without an open block")
	}
	f := p.top()
	if tok.Name != "" && tok.Name != f.name {
		return util.Errorf(util.ModelError, tok.SourceSpan, "'}' closes @%s but @%s is open", tok.Name, f.name)
	}
	p.frames = p.frames[:len(p.frames)-1]
	units := f.units
	if units == nil {
		units = []ast.Unit{}
	}
	f.finish(units)

	if f.owner != nil {
		setSpan(f.owner, util.NewParseSourceSpan(f.start.Start, tok.SourceSpan.End))
	}
	parent := p.top()
	if f.attach {
		p.add(f.owner, false)
	}
	switch f.owner.(type) {
	case *ast.IfBlock, *ast.WithBlock:
		parent.pending = f.owner
		parent.pendingAt = len(parent.units)
	}
	return nil
}

func setSpan(unit ast.Unit, span *util.ParseSourceSpan) {
	switch u := unit.(type) {
	case *ast.IfBlock:
		u.Span = span
	case *ast.ForBlock:
		u.Span = span
	case *ast.WithBlock:
		u.Span = span
	case *ast.ContentClosure:
		u.Span = span
	}
}

// statementError anchors a statement.SyntaxError in the template. shift is
// added to the error offset relative to the start of the argument text;
// bodies parsed with synthetic parentheses pass -1.
func (p *Parser) statementError(tok *lexer.Token, err error, shift int) error {
	var se *statement.SyntaxError
	if !errors.As(err, &se) || tok.ArgsSpan == nil {
		return util.Errorf(util.TokenError, tok.SourceSpan, "@%s: %v", displayName(tok.Name), err)
	}
	offset := tok.ArgsSpan.Start.Offset + se.Offset + shift
	if offset < tok.ArgsSpan.Start.Offset {
		offset = tok.ArgsSpan.Start.Offset
	}
	if offset > tok.ArgsSpan.End.Offset {
		offset = tok.ArgsSpan.End.Offset
	}
	end := offset + 1
	if end > len(p.file.Content) {
		end = len(p.file.Content)
	}
	return util.Errorf(util.TokenError, p.file.Span(offset, end), "@%s: %s", displayName(tok.Name), se.Msg)
}

func displayName(name string) string {
	switch name {
	case lexer.DirectiveElseWith:
		return "else with"
	}
	return name
}
