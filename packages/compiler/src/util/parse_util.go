package util

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ParseSourceFile represents a template source file
type ParseSourceFile struct {
	Content    string
	URL        string
	lineStarts []int
}

// NewParseSourceFile creates a new ParseSourceFile
func NewParseSourceFile(content, url string) *ParseSourceFile {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &ParseSourceFile{
		Content:    content,
		URL:        url,
		lineStarts: starts,
	}
}

// Location resolves a byte offset into a line/column location.
// Lines and columns are 1-based; columns count runes.
func (f *ParseSourceFile) Location(offset int) *ParseLocation {
	if offset < 0 {
		offset = 0
	}
	if offset > len(f.Content) {
		offset = len(f.Content)
	}
	line := sort.Search(len(f.lineStarts), func(i int) bool {
		return f.lineStarts[i] > offset
	}) - 1
	start := f.lineStarts[line]
	return &ParseLocation{
		File:   f,
		Offset: offset,
		Line:   line + 1,
		Col:    utf8.RuneCountInString(f.Content[start:offset]) + 1,
	}
}

// Span returns the span covering [start, end) of the file.
func (f *ParseSourceFile) Span(start, end int) *ParseSourceSpan {
	return NewParseSourceSpan(f.Location(start), f.Location(end))
}

// ParseLocation represents a location in the source file
type ParseLocation struct {
	File   *ParseSourceFile
	Offset int
	Line   int
	Col    int
}

// String returns a string representation of the location
func (p *ParseLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File.URL, p.Line, p.Col)
}

// GetContext returns the source context around the location
func (p *ParseLocation) GetContext(maxChars, maxLines int) *Context {
	content := p.File.Content
	if len(content) == 0 {
		return nil
	}

	startOffset := p.Offset
	ctxChars, ctxLines := 0, 0
	for ctxChars < maxChars && startOffset > 0 {
		startOffset--
		ctxChars++
		if content[startOffset] == '\n' {
			ctxLines++
			if ctxLines == maxLines {
				startOffset++
				break
			}
		}
	}

	endOffset := p.Offset
	ctxChars, ctxLines = 0, 0
	for ctxChars < maxChars && endOffset < len(content) {
		if content[endOffset] == '\n' {
			ctxLines++
			if ctxLines == maxLines {
				break
			}
		}
		endOffset++
		ctxChars++
	}

	return &Context{
		Before: content[startOffset:p.Offset],
		After:  content[p.Offset:endOffset],
	}
}

// Context represents source context around a location
type Context struct {
	Before string
	After  string
}

// ParseSourceSpan is an immutable span of template text.
type ParseSourceSpan struct {
	Start *ParseLocation
	End   *ParseLocation
}

// NewParseSourceSpan creates a new ParseSourceSpan
func NewParseSourceSpan(start, end *ParseLocation) *ParseSourceSpan {
	return &ParseSourceSpan{Start: start, End: end}
}

// Text returns the source code in this span
func (p *ParseSourceSpan) Text() string {
	return p.Start.File.Content[p.Start.Offset:p.End.Offset]
}

// Len returns the length of the span in bytes.
func (p *ParseSourceSpan) Len() int {
	return p.End.Offset - p.Start.Offset
}

// Adjacent reports whether next starts exactly where p ends.
func (p *ParseSourceSpan) Adjacent(next *ParseSourceSpan) bool {
	return next != nil && p.Start.File == next.Start.File && p.End.Offset == next.Start.Offset
}

// Combine merges two textually adjacent spans.
func (p *ParseSourceSpan) Combine(next *ParseSourceSpan) (*ParseSourceSpan, error) {
	if !p.Adjacent(next) {
		return nil, fmt.Errorf("cannot combine non-adjacent spans %s and %s", p, next)
	}
	return NewParseSourceSpan(p.Start, next.End), nil
}

// String returns the start location of the span
func (p *ParseSourceSpan) String() string {
	if p == nil || p.Start == nil {
		return "<unknown>"
	}
	return p.Start.String()
}

// ErrorKind classifies compile errors.
type ErrorKind int

const (
	TokenError ErrorKind = iota
	ModelError
	PostProcessError
	GenerationError
)

var (
	ErrToken       = errors.New("token error")
	ErrModel       = errors.New("model error")
	ErrPostProcess = errors.New("post-process error")
	ErrGeneration  = errors.New("generation error")
)

var kindSentinels = map[ErrorKind]error{
	TokenError:       ErrToken,
	ModelError:       ErrModel,
	PostProcessError: ErrPostProcess,
	GenerationError:  ErrGeneration,
}

func (k ErrorKind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError is a compile error anchored to a template span.
type ParseError struct {
	Kind  ErrorKind
	Span  *ParseSourceSpan
	Msg   string
	Cause error
}

// NewParseError creates a new ParseError
func NewParseError(kind ErrorKind, span *ParseSourceSpan, msg string) *ParseError {
	return &ParseError{
		Kind: kind,
		Span: span,
		Msg:  msg,
	}
}

// Errorf creates a ParseError with a formatted message.
func Errorf(kind ErrorKind, span *ParseSourceSpan, format string, args ...any) *ParseError {
	return NewParseError(kind, span, fmt.Sprintf(format, args...))
}

// Error implements the error interface
func (p *ParseError) Error() string {
	var b strings.Builder
	if p.Span != nil && p.Span.Start != nil {
		b.WriteString(p.Span.Start.String())
		b.WriteString(": ")
	}
	b.WriteString(p.Kind.String())
	b.WriteString(": ")
	b.WriteString(p.Msg)
	if p.Cause != nil {
		b.WriteString(": ")
		b.WriteString(p.Cause.Error())
	}
	return b.String()
}

// Is matches the sentinel of the error kind.
func (p *ParseError) Is(target error) bool {
	return kindSentinels[p.Kind] == target
}

// Unwrap returns the underlying cause, if any.
func (p *ParseError) Unwrap() error {
	return p.Cause
}

// ContextualMessage returns the error message with context
func (p *ParseError) ContextualMessage() string {
	if p.Span == nil || p.Span.Start == nil {
		return p.Msg
	}
	ctx := p.Span.Start.GetContext(100, 3)
	if ctx == nil {
		return p.Msg
	}
	return fmt.Sprintf(`%s ("%s[ERROR ->]%s")`, p.Msg, ctx.Before, ctx.After)
}
