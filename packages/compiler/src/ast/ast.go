package ast

import (
	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/statement"
	"tplc-go/packages/compiler/src/util"
)

// Unit represents one node of a template model
type Unit interface {
	SourceSpan() *util.ParseSourceSpan
	Visit(visitor Visitor) error
}

// PlainText is literal template text, already unescaped
type PlainText struct {
	Text string
	Span *util.ParseSourceSpan
}

// NewPlainText creates a new PlainText unit
func NewPlainText(text string, span *util.ParseSourceSpan) *PlainText {
	return &PlainText{Text: text, Span: span}
}

// SourceSpan returns the source span
func (p *PlainText) SourceSpan() *util.ParseSourceSpan { return p.Span }

// Visit visits the unit with a visitor
func (p *PlainText) Visit(visitor Visitor) error { return visitor.VisitPlainText(p) }

// ValueExpression writes the result of a host expression
type ValueExpression struct {
	Expr string
	Span *util.ParseSourceSpan
}

// NewValueExpression creates a new ValueExpression unit
func NewValueExpression(expr string, span *util.ParseSourceSpan) *ValueExpression {
	return &ValueExpression{Expr: expr, Span: span}
}

// SourceSpan returns the source span
func (v *ValueExpression) SourceSpan() *util.ParseSourceSpan { return v.Span }

// Visit visits the unit with a visitor
func (v *ValueExpression) Visit(visitor Visitor) error { return visitor.VisitValueExpression(v) }

// IfBlock is a conditional. An @elseif chain is represented as a single
// nested *IfBlock in Else.
type IfBlock struct {
	Condition string
	Then      []Unit
	Else      []Unit
	HasElse   bool
	Span      *util.ParseSourceSpan
}

// SourceSpan returns the source span
func (i *IfBlock) SourceSpan() *util.ParseSourceSpan { return i.Span }

// Visit visits the unit with a visitor
func (i *IfBlock) Visit(visitor Visitor) error { return visitor.VisitIfBlock(i) }

// ForBlock is a general or enhanced loop
type ForBlock struct {
	Statement statement.ForStatement
	Body      []Unit
	Span      *util.ParseSourceSpan
}

// SourceSpan returns the source span
func (f *ForBlock) SourceSpan() *util.ParseSourceSpan { return f.Span }

// Visit visits the unit with a visitor
func (f *ForBlock) Visit(visitor Visitor) error { return visitor.VisitForBlock(f) }

// WithBlock binds variables for Body; Else runs when a binding is skipped.
type WithBlock struct {
	Statement *statement.WithStatement
	Body      []Unit
	Else      []Unit
	HasElse   bool
	Span      *util.ParseSourceSpan
}

// SourceSpan returns the source span
func (w *WithBlock) SourceSpan() *util.ParseSourceSpan { return w.Span }

// Visit visits the unit with a visitor
func (w *WithBlock) Visit(visitor Visitor) error { return visitor.VisitWithBlock(w) }

// ContentClosure is a named block of template content rendered on demand.
type ContentClosure struct {
	Name string
	Body []Unit
	Span *util.ParseSourceSpan
}

// SourceSpan returns the source span
func (c *ContentClosure) SourceSpan() *util.ParseSourceSpan { return c.Span }

// Visit visits the unit with a visitor
func (c *ContentClosure) Visit(visitor Visitor) error { return visitor.VisitContentClosure(c) }

// Include renders another template or a content closure in scope.
type Include struct {
	Path string
	Args []string
	Span *util.ParseSourceSpan
}

// SourceSpan returns the source span
func (i *Include) SourceSpan() *util.ParseSourceSpan { return i.Span }

// Visit visits the unit with a visitor
func (i *Include) Visit(visitor Visitor) error { return visitor.VisitInclude(i) }

// ArgumentsDeclaration is the template parameter list.
type ArgumentsDeclaration struct {
	Arguments []statement.DeclaredVariable
	Span      *util.ParseSourceSpan
}

// SourceSpan returns the source span
func (a *ArgumentsDeclaration) SourceSpan() *util.ParseSourceSpan { return a.Span }

// Visit visits the unit with a visitor
func (a *ArgumentsDeclaration) Visit(visitor Visitor) error {
	return visitor.VisitArgumentsDeclaration(a)
}

// Import is a Go import requested with @import.
type Import struct {
	Alias string
	Path  string
	Span  *util.ParseSourceSpan
}

// TemplateModel is the parsed form of one template file.
type TemplateModel struct {
	// Name is the exported identifier stem, e.g. "UserCard".
	Name string
	// Path is the template path relative to the input root, slash separated.
	Path string
	// SourceDir is the directory of the template on disk, when known.
	SourceDir   string
	Package     string
	ContentType config.ContentType
	Arguments   []statement.DeclaredVariable
	Imports     []Import
	Units       []Unit
	Options     *config.CompilerConfig
	File        *util.ParseSourceFile
}

// Visitor is the interface for visiting template units
type Visitor interface {
	VisitPlainText(text *PlainText) error
	VisitValueExpression(value *ValueExpression) error
	VisitIfBlock(block *IfBlock) error
	VisitForBlock(block *ForBlock) error
	VisitWithBlock(block *WithBlock) error
	VisitContentClosure(closure *ContentClosure) error
	VisitInclude(include *Include) error
	VisitArgumentsDeclaration(args *ArgumentsDeclaration) error
}

// VisitAll visits units in order and stops at the first error.
func VisitAll(visitor Visitor, units []Unit) error {
	for _, unit := range units {
		if err := unit.Visit(visitor); err != nil {
			return err
		}
	}
	return nil
}

// TransformText rebuilds units, replacing every PlainText (including those
// nested in blocks) with the result of fn. Other units are copied
// shallowly so the input slice is left untouched.
func TransformText(units []Unit, fn func(*PlainText) (*PlainText, error)) ([]Unit, error) {
	if len(units) == 0 {
		return units, nil
	}
	out := make([]Unit, 0, len(units))
	for _, unit := range units {
		var err error
		switch u := unit.(type) {
		case *PlainText:
			var text *PlainText
			if text, err = fn(u); err == nil {
				out = append(out, text)
			}
		case *IfBlock:
			cp := *u
			if cp.Then, err = TransformText(u.Then, fn); err == nil {
				cp.Else, err = TransformText(u.Else, fn)
			}
			out = append(out, &cp)
		case *ForBlock:
			cp := *u
			cp.Body, err = TransformText(u.Body, fn)
			out = append(out, &cp)
		case *WithBlock:
			cp := *u
			if cp.Body, err = TransformText(u.Body, fn); err == nil {
				cp.Else, err = TransformText(u.Else, fn)
			}
			out = append(out, &cp)
		case *ContentClosure:
			cp := *u
			cp.Body, err = TransformText(u.Body, fn)
			out = append(out, &cp)
		default:
			out = append(out, unit)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TransformLists rebuilds every unit list, top level and nested, with fn.
func TransformLists(units []Unit, fn func([]Unit) ([]Unit, error)) ([]Unit, error) {
	if len(units) == 0 {
		return units, nil
	}
	out := make([]Unit, 0, len(units))
	for _, unit := range units {
		var err error
		switch u := unit.(type) {
		case *IfBlock:
			cp := *u
			if cp.Then, err = TransformLists(u.Then, fn); err == nil {
				cp.Else, err = TransformLists(u.Else, fn)
			}
			unit = &cp
		case *ForBlock:
			cp := *u
			cp.Body, err = TransformLists(u.Body, fn)
			unit = &cp
		case *WithBlock:
			cp := *u
			if cp.Body, err = TransformLists(u.Body, fn); err == nil {
				cp.Else, err = TransformLists(u.Else, fn)
			}
			unit = &cp
		case *ContentClosure:
			cp := *u
			cp.Body, err = TransformLists(u.Body, fn)
			unit = &cp
		}
		if err != nil {
			return nil, err
		}
		out = append(out, unit)
	}
	return fn(out)
}

// WithUnits returns a shallow copy of the model carrying units.
func (m *TemplateModel) WithUnits(units []Unit) *TemplateModel {
	cp := *m
	cp.Units = units
	return &cp
}
