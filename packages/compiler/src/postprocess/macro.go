package postprocess

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tplc-go/packages/compiler/src/ast"
)

const (
	macroOpen  = "[[macro:"
	macroEnd   = "[[/macro:"
	macroClose = "]]"
)

// macroFunc transforms the text enclosed by a macro's markers.
type macroFunc func(model *ast.TemplateModel, body string) (string, error)

var macros = map[string]macroFunc{
	"portable": portableMacro,
	"escape":   escapeMacro,
	"inline":   inlineMacro,
}

// Macro expands [[macro:NAME]]...[[/macro:NAME]] sections in text units.
func Macro(model *ast.TemplateModel, index int) (*ast.TemplateModel, error) {
	return transform(model, func(text *ast.PlainText) (*ast.PlainText, error) {
		if !strings.Contains(text.Text, "[[") {
			return text, nil
		}
		expanded, err := expandMacros(model, text.Text)
		if err != nil {
			return nil, processError("macro", index, text.Span, "%s", err)
		}
		if expanded == text.Text {
			return text, nil
		}
		return ast.NewPlainText(expanded, text.Span), nil
	})
}

func expandMacros(model *ast.TemplateModel, s string) (string, error) {
	var b strings.Builder
	for {
		open := strings.Index(s, macroOpen)
		end := strings.Index(s, macroEnd)
		if end >= 0 && (open < 0 || end < open) {
			name := markerName(s[end+len(macroEnd):])
			return "", fmt.Errorf("end marker for macro %q without a begin marker", name)
		}
		if open < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		b.WriteString(s[:open])
		s = s[open+len(macroOpen):]

		nameEnd := strings.Index(s, macroClose)
		if nameEnd < 0 {
			return "", errors.New("unterminated macro begin marker")
		}
		name := s[:nameEnd]
		fn, ok := macros[name]
		if !ok {
			return "", fmt.Errorf("unknown macro %q", name)
		}
		s = s[nameEnd+len(macroClose):]

		closing := macroEnd + name + macroClose
		bodyEnd := strings.Index(s, closing)
		if bodyEnd < 0 {
			return "", fmt.Errorf("macro %q is missing its end marker %q", name, closing)
		}
		out, err := fn(model, s[:bodyEnd])
		if err != nil {
			return "", fmt.Errorf("macro %q: %w", name, err)
		}
		b.WriteString(out)
		s = s[bodyEnd+len(closing):]
	}
}

func markerName(s string) string {
	if i := strings.Index(s, macroClose); i >= 0 {
		return s[:i]
	}
	return s
}

// portableMacro replaces every non-ASCII character with a numeric
// character reference.
func portableMacro(_ *ast.TemplateModel, body string) (string, error) {
	var b strings.Builder
	b.Grow(len(body))
	for _, r := range body {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		b.WriteString("&#")
		b.WriteString(strconv.Itoa(int(r)))
		b.WriteByte(';')
	}
	return b.String(), nil
}

func escapeMacro(_ *ast.TemplateModel, body string) (string, error) {
	return html.EscapeString(body), nil
}

// inlineMacro replaces the body, a file path, with the file's contents.
// Relative paths resolve against the macro base directory, or the
// template's own directory when none is configured.
func inlineMacro(model *ast.TemplateModel, body string) (string, error) {
	name := strings.TrimSpace(body)
	if name == "" {
		return "", errors.New("missing file name")
	}
	if !filepath.IsAbs(name) {
		base := model.SourceDir
		if model.Options != nil && model.Options.MacroBaseDir != "" {
			base = model.Options.MacroBaseDir
		}
		name = filepath.Join(base, filepath.FromSlash(name))
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
