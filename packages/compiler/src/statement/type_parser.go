package statement

import (
	"fmt"
	"strings"

	"tplc-go/packages/compiler/src/util"
)

// SyntaxError is a statement or declaration error. Offset is relative to
// the text handed to the parser; callers add the absolute position.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (offset %d)", e.Msg, e.Offset)
}

func syntaxErrorf(offset int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// DeclaredVariable is an optionally typed variable declaration such as
// "String name", "Map<String,Object>[] rows" or "item".
type DeclaredVariable struct {
	Type string
	Name string
}

// HasType reports whether the declaration carries a type.
func (v DeclaredVariable) HasType() bool {
	return v.Type != ""
}

func (v DeclaredVariable) String() string {
	if v.Type == "" {
		return v.Name
	}
	return v.Type + " " + v.Name
}

// ParseToken consumes one comma-delimited declaration starting at start
// and returns the offset of the terminating top-level comma, or len(text).
// '<' and '>' delimit generics and must nest; commas inside generics or
// brackets do not terminate the token.
func ParseToken(text string, start int) (int, error) {
	var angles, brackets []int
	sawName := false

	for i := start; i < len(text); i++ {
		c := text[i]
		switch c {
		case '<':
			if !sawName {
				return i, syntaxErrorf(i, "generic marker '<' before any type name")
			}
			angles = append(angles, i)
		case '>':
			if len(angles) == 0 {
				return i, syntaxErrorf(i, "unmatched '>'")
			}
			angles = angles[:len(angles)-1]
		case '[', '(':
			brackets = append(brackets, i)
		case ']', ')':
			if len(brackets) == 0 {
				return i, syntaxErrorf(i, "unmatched %q", c)
			}
			brackets = brackets[:len(brackets)-1]
		case ',':
			if len(angles) == 0 && len(brackets) == 0 {
				return i, nil
			}
		default:
			if isWordChar(c) {
				sawName = true
			}
		}
	}

	if len(angles) > 0 {
		return len(text), syntaxErrorf(angles[len(angles)-1], "unterminated generic '<'")
	}
	if len(brackets) > 0 {
		return len(text), syntaxErrorf(brackets[len(brackets)-1], "unterminated %q", text[brackets[len(brackets)-1]])
	}
	return len(text), nil
}

// ParseList parses a comma separated declaration list. Empty or blank
// input yields an empty list.
func ParseList(text string) ([]DeclaredVariable, error) {
	if strings.TrimSpace(text) == "" {
		return []DeclaredVariable{}, nil
	}

	vars := make([]DeclaredVariable, 0, 4)
	pos := 0
	for {
		end, err := ParseToken(text, pos)
		if err != nil {
			return nil, err
		}
		v, err := parseDeclared(text[pos:end], pos)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
		if end >= len(text) {
			return vars, nil
		}
		pos = end + 1
		if strings.TrimSpace(text[pos:]) == "" {
			return nil, syntaxErrorf(end, "expected declaration after ','")
		}
	}
}

// ParseDeclaredVariable parses exactly one declaration.
func ParseDeclaredVariable(text string) (DeclaredVariable, error) {
	end, err := ParseToken(text, 0)
	if err != nil {
		return DeclaredVariable{}, err
	}
	if end < len(text) {
		return DeclaredVariable{}, syntaxErrorf(end, "unexpected ',' in declaration")
	}
	return parseDeclared(text, 0)
}

// parseDeclared splits a single normalized token into type and name: the
// last top-level word is the name, an array tail after the name belongs
// to the type, and everything before the name is the type.
func parseDeclared(raw string, offset int) (DeclaredVariable, error) {
	lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
	canonical := NormalizeType(raw)
	if canonical == "" {
		return DeclaredVariable{}, syntaxErrorf(offset, "empty declaration")
	}

	typ, namePart := "", canonical
	if sp := lastTopLevelSpace(canonical); sp >= 0 {
		typ, namePart = canonical[:sp], canonical[sp+1:]
	}

	nameEnd := 0
	for nameEnd < len(namePart) && isWordChar(namePart[nameEnd]) {
		nameEnd++
	}
	name, tail := namePart[:nameEnd], namePart[nameEnd:]
	if name == "" {
		return DeclaredVariable{}, syntaxErrorf(offset+lead, "missing variable name in %q", canonical)
	}
	for t := tail; t != ""; t = t[2:] {
		if !strings.HasPrefix(t, "[]") {
			return DeclaredVariable{}, syntaxErrorf(offset+lead, "unexpected %q after variable name %q", tail, name)
		}
	}
	if tail != "" {
		if typ == "" {
			return DeclaredVariable{}, syntaxErrorf(offset+lead, "array marker on untyped variable %q", name)
		}
		typ += tail
	}
	if !util.IsIdentifier(name) {
		return DeclaredVariable{}, syntaxErrorf(offset+lead, "%q is not a valid variable name", name)
	}
	return DeclaredVariable{Type: typ, Name: name}, nil
}

// NormalizeType collapses whitespace in a declaration. Whitespace inside
// generics and brackets, before punctuation and after an opening bracket,
// comma or period is removed; other runs become a single space. "Map  <  String , Object  >   [ ] " becomes
// "Map<String,Object>[]".
func NormalizeType(s string) string {
	var b strings.Builder
	depth := 0
	pending := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSpace(c) {
			pending = true
			continue
		}
		if pending {
			pending = false
			if depth == 0 && b.Len() > 0 && !isTight(c) && !opensTight(b.String()[b.Len()-1]) {
				b.WriteByte(' ')
			}
		}
		switch c {
		case '<', '[':
			depth++
		case '>', ']':
			depth--
		}
		b.WriteByte(c)
	}
	return b.String()
}

func lastTopLevelSpace(s string) int {
	depth := 0
	last := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '[', '(':
			depth++
		case '>', ']', ')':
			depth--
		case ' ':
			if depth == 0 {
				last = i
			}
		}
	}
	return last
}

func isTight(c byte) bool {
	switch c {
	case '<', '>', '[', ']', ',', '.', '(', ')':
		return true
	}
	return false
}

func opensTight(c byte) bool {
	switch c {
	case '<', '[', ',', '.', '(':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordChar(c byte) bool {
	return c == '_' || c >= 0x80 || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
