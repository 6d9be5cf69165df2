package statement

import (
	"strings"
)

// MaxForArguments caps the enhanced-for argument group: value, key and
// value, or iterator, key and value.
const MaxForArguments = 3

// ForStatement is either a *GeneralFor or an *EnhancedFor.
type ForStatement interface {
	forStatement()
}

// GeneralFor is the three-clause form `(init; condition; post)`.
type GeneralFor struct {
	Init      string
	Condition string
	Post      string
}

// EnhancedFor is the `(args : collection)` form.
type EnhancedFor struct {
	Arguments     []DeclaredVariable
	Value         string
	Parenthesized bool
}

func (*GeneralFor) forStatement()  {}
func (*EnhancedFor) forStatement() {}

// WithBinding binds one declared variable to a once-evaluated expression.
type WithBinding struct {
	Variable DeclaredVariable
	Value    string
}

// WithStatement is the parsed body of a @with directive.
type WithStatement struct {
	Bindings []WithBinding
}

// ParseFor parses a parenthesized for body. A top-level ';' selects the
// general form, otherwise a top-level ':' selects the enhanced form.
func ParseFor(body string) (ForStatement, error) {
	inner, base, err := unwrapParens(body, "for")
	if err != nil {
		return nil, err
	}

	if semis := topLevelIndexes(inner, ';'); len(semis) > 0 {
		if len(semis) != 2 {
			return nil, syntaxErrorf(base+semis[0], "general for requires exactly three ';'-separated parts, found %d", len(semis)+1)
		}
		return &GeneralFor{
			Init:      strings.TrimSpace(inner[:semis[0]]),
			Condition: strings.TrimSpace(inner[semis[0]+1 : semis[1]]),
			Post:      strings.TrimSpace(inner[semis[1]+1:]),
		}, nil
	}

	colon := topLevelColon(inner)
	if colon < 0 {
		return nil, syntaxErrorf(base, "for statement requires ';' (general form) or ':' (enhanced form)")
	}

	value := strings.TrimSpace(inner[colon+1:])
	if value == "" {
		return nil, syntaxErrorf(base+colon, "enhanced for requires a collection expression after ':'")
	}

	left := inner[:colon]
	argsText, argsBase := left, base
	parenthesized := false
	if trimmed := strings.TrimSpace(left); strings.HasPrefix(trimmed, "(") {
		lead := strings.Index(left, "(")
		if end := matchingParen(trimmed, 0); end == len(trimmed)-1 {
			parenthesized = true
			argsText = trimmed[1:end]
			argsBase = base + lead + 1
		}
	}

	args, err := ParseList(argsText)
	if err != nil {
		return nil, shift(err, argsBase)
	}
	switch {
	case len(args) == 0:
		return nil, syntaxErrorf(base, "enhanced for requires at least one variable")
	case len(args) > MaxForArguments:
		return nil, syntaxErrorf(base, "enhanced for accepts at most %d variables, found %d", MaxForArguments, len(args))
	case len(args) > 1 && !parenthesized:
		return nil, syntaxErrorf(base, "multiple for variables must be enclosed in parentheses")
	}

	return &EnhancedFor{
		Arguments:     args,
		Value:         value,
		Parenthesized: parenthesized,
	}, nil
}

// ParseWith parses a parenthesized with body of one or more
// comma-separated `declaration = expression` bindings.
func ParseWith(body string) (*WithStatement, error) {
	inner, base, err := unwrapParens(body, "with")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(inner) == "" {
		return nil, syntaxErrorf(base, "with statement requires at least one binding")
	}

	stmt := &WithStatement{}
	pos := 0
	for {
		eq, err := declarationEnd(inner, pos)
		if err != nil {
			return nil, shift(err, base)
		}
		variable, err := ParseDeclaredVariable(inner[pos:eq])
		if err != nil {
			return nil, shift(err, base+pos)
		}

		end, err := expressionEnd(inner, eq+1)
		if err != nil {
			return nil, shift(err, base)
		}
		value := strings.TrimSpace(inner[eq+1 : end])
		if value == "" {
			return nil, syntaxErrorf(base+eq, "binding %q requires a value expression after '='", variable.Name)
		}
		stmt.Bindings = append(stmt.Bindings, WithBinding{Variable: variable, Value: value})

		if end >= len(inner) {
			return stmt, nil
		}
		pos = end + 1
		if strings.TrimSpace(inner[pos:]) == "" {
			return nil, syntaxErrorf(base+end, "trailing ',' without a following binding")
		}
	}
}

// SplitArguments splits a call argument list on top-level commas.
func SplitArguments(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var args []string
	start := 0
	s := newScanner(text, 0)
	for s.next() {
		if s.depth != 0 || s.c != ',' {
			continue
		}
		arg := strings.TrimSpace(text[start:s.i])
		if arg == "" {
			return nil, syntaxErrorf(s.i, "empty argument before ','")
		}
		args = append(args, arg)
		start = s.i + 1
	}
	if s.err != nil {
		return nil, s.err
	}
	last := strings.TrimSpace(text[start:])
	if last == "" {
		return nil, syntaxErrorf(start-1, "trailing ',' without a following argument")
	}
	return append(args, last), nil
}

// declarationEnd finds the '=' that ends the declaration part of a binding
// starting at pos. Generics in the declared type may contain commas. A
// comparison such as '==' or '!=' is not an assignment.
func declarationEnd(text string, pos int) (int, error) {
	depth := 0
	for i := pos; i < len(text); i++ {
		switch text[i] {
		case '<', '[', '(':
			depth++
		case '>', ']', ')':
			depth--
		case ',':
			if depth == 0 {
				return 0, syntaxErrorf(i, "binding requires exactly one '=', found none")
			}
		case '=':
			if depth != 0 {
				continue
			}
			if !isAssignment(text, i) {
				return 0, syntaxErrorf(i, "binding requires exactly one '=', found none")
			}
			return i, nil
		}
	}
	return 0, syntaxErrorf(pos, "binding requires exactly one '=', found none")
}

// expressionEnd returns the offset of the top-level ',' that ends the
// expression starting at pos, or len(text). A second assignment '=' in the
// same clause is an error.
func expressionEnd(text string, pos int) (int, error) {
	s := newScanner(text, pos)
	for s.next() {
		if s.depth > 0 {
			continue
		}
		switch s.c {
		case ',':
			return s.i, nil
		case '=':
			if isAssignment(text, s.i) {
				return 0, syntaxErrorf(s.i, "binding requires exactly one '=', found more")
			}
		}
	}
	if s.err != nil {
		return 0, s.err
	}
	return len(text), nil
}

func isAssignment(text string, i int) bool {
	if i+1 < len(text) && text[i+1] == '=' {
		return false
	}
	if i > 0 && strings.IndexByte("=!<>:", text[i-1]) >= 0 {
		return false
	}
	return true
}

// unwrapParens checks that body is a single parenthesized group and
// returns its content with the content's offset in body.
func unwrapParens(body, what string) (string, int, error) {
	trimmed := strings.TrimSpace(body)
	lead := strings.Index(body, trimmed)
	if !strings.HasPrefix(trimmed, "(") {
		return "", 0, syntaxErrorf(lead, "%s statement must be enclosed in parentheses", what)
	}
	end := matchingParen(trimmed, 0)
	if end < 0 {
		return "", 0, syntaxErrorf(lead, "unterminated '(' in %s statement", what)
	}
	if end != len(trimmed)-1 {
		return "", 0, syntaxErrorf(lead+end+1, "unexpected text after %s statement", what)
	}
	return trimmed[1:end], lead + 1, nil
}

func matchingParen(text string, open int) int {
	s := newScanner(text, open)
	for s.next() {
		if s.c == ')' && s.depth == 0 {
			return s.i
		}
	}
	return -1
}

func topLevelIndexes(text string, c byte) []int {
	var out []int
	s := newScanner(text, 0)
	for s.next() {
		if s.depth == 0 && s.c == c {
			out = append(out, s.i)
		}
	}
	return out
}

func topLevelColon(text string) int {
	s := newScanner(text, 0)
	for s.next() {
		if s.depth == 0 && s.c == ':' && (s.i+1 >= len(text) || text[s.i+1] != '=') {
			return s.i
		}
	}
	return -1
}

func shift(err error, by int) error {
	if se, ok := err.(*SyntaxError); ok {
		return &SyntaxError{Offset: se.Offset + by, Msg: se.Msg}
	}
	return err
}

// scanner walks Go expression text, tracking (), [] and {} depth and
// skipping string, raw string and rune literals. After next returns true,
// c is the current byte and depth the nesting outside of it; an opening
// bracket reports the depth before it, a closing one the depth after it.
type scanner struct {
	text  string
	i     int
	c     byte
	depth int
	err   error
}

func newScanner(text string, pos int) *scanner {
	return &scanner{text: text, i: pos - 1}
}

func (s *scanner) next() bool {
	if s.c == '(' || s.c == '[' || s.c == '{' {
		s.depth++
	}
	s.i++
	if s.i >= len(s.text) {
		return false
	}
	s.c = s.text[s.i]
	switch s.c {
	case '"', '\'', '`':
		end := s.skipQuoted()
		if end < 0 {
			s.err = syntaxErrorf(s.i, "unterminated literal")
			return false
		}
		s.i = end
		s.c = s.text[end]
	case ')', ']', '}':
		s.depth--
		if s.depth < 0 {
			s.depth = 0
		}
	}
	return true
}

// skipQuoted returns the offset of the closing quote.
func (s *scanner) skipQuoted() int {
	quote := s.text[s.i]
	for j := s.i + 1; j < len(s.text); j++ {
		switch {
		case quote != '`' && s.text[j] == '\\':
			j++
		case s.text[j] == quote:
			return j
		}
	}
	return -1
}
