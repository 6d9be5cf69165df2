package postprocess

import (
	"regexp"

	"tplc-go/packages/compiler/src/ast"
)

// Whitespace reduction rules, applied in order.
var (
	horizontalRun = regexp.MustCompile(`[ \t]+`)
	trailingSpace = regexp.MustCompile(`[ \t]+(\r?\n)`)
	leadingSpace  = regexp.MustCompile(`(\n)[ \t]+`)
)

// ReduceWhitespace collapses in-line whitespace runs to one space and
// trims horizontal whitespace at line ends and line starts.
func ReduceWhitespace(s string) string {
	s = horizontalRun.ReplaceAllString(s, " ")
	s = trailingSpace.ReplaceAllString(s, "$1")
	return leadingSpace.ReplaceAllString(s, "$1")
}

// Whitespace is the whitespace reduction processor.
func Whitespace(model *ast.TemplateModel, index int) (*ast.TemplateModel, error) {
	return transform(model, func(text *ast.PlainText) (*ast.PlainText, error) {
		reduced := ReduceWhitespace(text.Text)
		if reduced == text.Text {
			return text, nil
		}
		return ast.NewPlainText(reduced, text.Span), nil
	})
}
