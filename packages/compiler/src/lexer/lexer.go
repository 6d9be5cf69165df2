package lexer

import (
	"strings"
	"unicode/utf8"

	"tplc-go/packages/compiler/src/core"
	"tplc-go/packages/compiler/src/util"
)

// directiveKeywords are the identifiers that start a directive instead of
// a value expression when they follow the marker.
var directiveKeywords = map[string]bool{
	"args":         true,
	"argumentList": true,
	"import":       true,
	"if":           true,
	"elseif":       true,
	"else":         true,
	"for":          true,
	"with":         true,
	"content":      true,
	"include":      true,
}

// IsDirectiveKeyword reports whether name is reserved for a directive.
func IsDirectiveKeyword(name string) bool {
	return directiveKeywords[name]
}

type openBlock struct {
	name   string
	braces int
	span   *util.ParseSourceSpan
}

// Tokenizer scans template text into literal text, value expressions,
// directives, block closes and comments.
type Tokenizer struct {
	file   *util.ParseSourceFile
	src    string
	pos    int
	tokens []*Token

	text        strings.Builder
	textStart   int
	textPending bool

	blocks []openBlock
}

// NewTokenizer creates a new Tokenizer
func NewTokenizer(file *util.ParseSourceFile) *Tokenizer {
	return &Tokenizer{
		file:   file,
		src:    file.Content,
		tokens: make([]*Token, 0, 32),
	}
}

// Tokenize is a shorthand for NewTokenizer(file).Tokenize().
func Tokenize(file *util.ParseSourceFile) ([]*Token, error) {
	return NewTokenizer(file).Tokenize()
}

// Tokenize scans the whole file. The returned slice always ends with an
// EOF token. The first malformed construct stops scanning.
func (t *Tokenizer) Tokenize() ([]*Token, error) {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case c == '@':
			if err := t.consumeMarker(); err != nil {
				return nil, err
			}
		case c == '{' && len(t.blocks) > 0:
			t.blocks[len(t.blocks)-1].braces++
			t.appendText("{", 1)
		case c == '}' && len(t.blocks) > 0:
			top := &t.blocks[len(t.blocks)-1]
			if top.braces > 0 {
				top.braces--
				t.appendText("}", 1)
				continue
			}
			t.flushText()
			t.emit(&Token{Type: TokenTypeBLOCK_CLOSE, Name: top.name}, t.pos, t.pos+1)
			t.blocks = t.blocks[:len(t.blocks)-1]
			t.pos++
		default:
			t.appendText(t.src[t.pos:t.pos+1], 1)
		}
	}
	t.flushText()

	if len(t.blocks) > 0 {
		top := t.blocks[len(t.blocks)-1]
		return nil, util.Errorf(util.TokenError, top.span, "unterminated @%s block: missing '}'", top.name)
	}
	t.emit(&Token{Type: TokenTypeEOF}, len(t.src), len(t.src))
	return t.tokens, nil
}

func (t *Tokenizer) consumeMarker() error {
	start := t.pos
	if start+1 >= len(t.src) {
		return t.errorf(start, start+1, "unexpected end of input after '@'; use @@ for a literal '@'")
	}

	switch t.src[start+1] {
	case '@':
		t.appendText("@", 2)
		return nil
	case '{':
		t.appendText("{", 2)
		return nil
	case '}':
		t.appendText("}", 2)
		return nil
	case '*':
		return t.consumeComment(start)
	case '(':
		t.flushText()
		end, err := t.scanGroup(start + 1)
		if err != nil {
			return err
		}
		expr := t.src[start+2 : end-1]
		if strings.TrimSpace(expr) == "" {
			return t.errorf(start, end, "empty value expression")
		}
		t.pos = end
		t.emit(&Token{Type: TokenTypeVALUE, Value: expr}, start, end)
		return nil
	}

	r, _ := utf8.DecodeRuneInString(t.src[start+1:])
	if !core.IsIdentStart(r) {
		return t.errorf(start, start+1, "unexpected character %q after '@'; use @@ for a literal '@'", r)
	}
	wordEnd := t.scanIdent(start + 1)
	word := t.src[start+1 : wordEnd]
	t.flushText()
	if directiveKeywords[word] {
		t.pos = wordEnd
		return t.consumeDirective(start, word)
	}
	return t.consumeValue(start, wordEnd)
}

func (t *Tokenizer) consumeComment(start int) error {
	t.flushText()
	end := strings.Index(t.src[start+2:], "*@")
	if end == -1 {
		return t.errorf(start, start+2, "unterminated comment: missing '*@'")
	}
	body := t.src[start+2 : start+2+end]
	t.pos = start + 2 + end + 2
	t.emit(&Token{Type: TokenTypeCOMMENT, Value: body}, start, t.pos)
	return nil
}

// consumeValue scans an implicit expression: an identifier followed by any
// number of `.ident`, `(...)` and `[...]` selectors.
func (t *Tokenizer) consumeValue(start, end int) error {
	for end < len(t.src) {
		c := t.src[end]
		if c == '.' && end+1 < len(t.src) {
			r, _ := utf8.DecodeRuneInString(t.src[end+1:])
			if !core.IsIdentStart(r) {
				break
			}
			end = t.scanIdent(end + 1)
			continue
		}
		if c == '(' || c == '[' {
			next, err := t.scanGroup(end)
			if err != nil {
				return err
			}
			end = next
			continue
		}
		break
	}
	t.pos = end
	t.emit(&Token{Type: TokenTypeVALUE, Value: t.src[start+1 : end]}, start, end)
	return nil
}

func (t *Tokenizer) consumeDirective(start int, word string) error {
	tok := &Token{Type: TokenTypeDIRECTIVE, Name: word}

	switch word {
	case "args", "argumentList":
		tok.Name = DirectiveArgs
		if err := t.consumeArgs(tok); err != nil {
			return err
		}
	case DirectiveImport:
		t.consumeImport(tok)
		if tok.Args == "" {
			return t.errorf(start, t.pos, "@import requires an import path")
		}
	case DirectiveIf, DirectiveElseIf, DirectiveFor, DirectiveWith:
		if err := t.consumeArgs(tok); err != nil {
			return err
		}
		if err := t.consumeBlockOpen(tok, start); err != nil {
			return err
		}
	case DirectiveElse:
		t.skipHorizontalSpace()
		if end := t.scanIdent(t.pos); end > t.pos {
			switch t.src[t.pos:end] {
			case "if":
				tok.Name = DirectiveElseIf
			case "with":
				tok.Name = DirectiveElseWith
			default:
				return t.errorf(t.pos, end, "unexpected %q after @else", t.src[t.pos:end])
			}
			t.pos = end
			if err := t.consumeArgs(tok); err != nil {
				return err
			}
		}
		if err := t.consumeBlockOpen(tok, start); err != nil {
			return err
		}
	case DirectiveContent:
		t.skipHorizontalSpace()
		end := t.scanIdent(t.pos)
		if end == t.pos {
			return t.errorf(start, t.pos, "@content requires a closure name")
		}
		tok.Target = t.src[t.pos:end]
		t.pos = end
		if err := t.consumeBlockOpen(tok, start); err != nil {
			return err
		}
	case DirectiveInclude:
		t.skipHorizontalSpace()
		end := t.scanQualifiedIdent(t.pos)
		if end == t.pos {
			return t.errorf(start, t.pos, "@include requires a template or closure name")
		}
		tok.Target = t.src[t.pos:end]
		t.pos = end
		if err := t.consumeArgs(tok); err != nil {
			return err
		}
	}

	t.emit(tok, start, t.pos)
	return nil
}

// consumeArgs captures the raw text of a parenthesized argument group.
func (t *Tokenizer) consumeArgs(tok *Token) error {
	argsStart := t.pos
	t.skipWhitespace()
	if t.pos >= len(t.src) || t.src[t.pos] != '(' {
		return t.errorf(argsStart, t.pos, "@%s requires a parenthesized argument list", tok.Name)
	}
	end, err := t.scanGroup(t.pos)
	if err != nil {
		return err
	}
	tok.Args = t.src[t.pos+1 : end-1]
	tok.ArgsSpan = t.file.Span(t.pos+1, end-1)
	tok.HasArgs = true
	t.pos = end
	return nil
}

// consumeImport takes the rest of the line, including its line break.
func (t *Tokenizer) consumeImport(tok *Token) {
	t.skipHorizontalSpace()
	argsStart := t.pos
	end := strings.IndexByte(t.src[t.pos:], '\n')
	if end == -1 {
		end = len(t.src)
	} else {
		end += t.pos
	}
	line := strings.TrimRight(t.src[argsStart:end], " \t\r")
	tok.Args = line
	tok.HasArgs = true
	tok.ArgsSpan = t.file.Span(argsStart, argsStart+len(line))
	t.pos = end
	if t.pos < len(t.src) {
		t.pos++
	}
}

func (t *Tokenizer) consumeBlockOpen(tok *Token, start int) error {
	t.skipWhitespace()
	if t.pos >= len(t.src) || t.src[t.pos] != '{' {
		return t.errorf(start, t.pos, "expected '{' to open @%s block", tok.Name)
	}
	t.pos++
	tok.Block = true
	t.blocks = append(t.blocks, openBlock{
		name: tok.Name,
		span: t.file.Span(start, t.pos),
	})
	return nil
}

// scanGroup returns the offset just past the bracket that closes the one
// at open. Nested (), [] and {} must balance; Go string, raw string and
// rune literals are skipped.
func (t *Tokenizer) scanGroup(open int) (int, error) {
	closers := []byte{closerOf(t.src[open])}
	i := open + 1
	for i < len(t.src) {
		c := t.src[i]
		switch c {
		case '"', '\'', '`':
			end, err := t.skipQuoted(i)
			if err != nil {
				return 0, err
			}
			i = end
			continue
		case '(', '[', '{':
			closers = append(closers, closerOf(c))
		case ')', ']', '}':
			want := closers[len(closers)-1]
			if c != want {
				return 0, t.errorf(i, i+1, "unmatched %q: expected %q", c, want)
			}
			closers = closers[:len(closers)-1]
			if len(closers) == 0 {
				return i + 1, nil
			}
		}
		i++
	}
	return 0, t.errorf(open, open+1, "unterminated %q: missing %q", t.src[open], closers[len(closers)-1])
}

func (t *Tokenizer) skipQuoted(start int) (int, error) {
	quote := t.src[start]
	for i := start + 1; i < len(t.src); i++ {
		c := t.src[i]
		switch {
		case quote != '`' && c == '\\':
			i++
		case c == quote:
			return i + 1, nil
		case quote != '`' && c == '\n':
			return 0, t.errorf(start, i, "unterminated literal")
		}
	}
	return 0, t.errorf(start, start+1, "unterminated literal")
}

func closerOf(c byte) byte {
	switch c {
	case '(':
		return ')'
	case '[':
		return ']'
	}
	return '}'
}

func (t *Tokenizer) scanIdent(at int) int {
	i := at
	for i < len(t.src) {
		r, size := utf8.DecodeRuneInString(t.src[i:])
		if i == at && !core.IsIdentStart(r) || i > at && !core.IsIdentPart(r) {
			break
		}
		i += size
	}
	return i
}

func (t *Tokenizer) scanQualifiedIdent(at int) int {
	end := t.scanIdent(at)
	for end > at && end+1 < len(t.src) && t.src[end] == '.' {
		next := t.scanIdent(end + 1)
		if next == end+1 {
			break
		}
		end = next
	}
	return end
}

func (t *Tokenizer) skipHorizontalSpace() {
	for t.pos < len(t.src) && core.IsHorizontalSpace(rune(t.src[t.pos])) {
		t.pos++
	}
}

func (t *Tokenizer) skipWhitespace() {
	for t.pos < len(t.src) && core.IsWhitespace(rune(t.src[t.pos])) {
		t.pos++
	}
}

func (t *Tokenizer) appendText(s string, advance int) {
	if !t.textPending {
		t.textPending = true
		t.textStart = t.pos
	}
	t.text.WriteString(s)
	t.pos += advance
}

func (t *Tokenizer) flushText() {
	if !t.textPending {
		return
	}
	t.emit(&Token{Type: TokenTypeTEXT, Value: t.text.String()}, t.textStart, t.pos)
	t.text.Reset()
	t.textPending = false
}

func (t *Tokenizer) emit(tok *Token, start, end int) {
	tok.SourceSpan = t.file.Span(start, end)
	t.tokens = append(t.tokens, tok)
}

func (t *Tokenizer) errorf(start, end int, format string, args ...any) *util.ParseError {
	return util.Errorf(util.TokenError, t.file.Span(start, end), format, args...)
}
