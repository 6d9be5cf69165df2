package output

import (
	"strings"
)

const indentWith = "\t"

// EmittedLine represents a line being emitted
type EmittedLine struct {
	Parts []string
	// Indent is the indentation level; -1 pins the line to column 1.
	Indent int
}

// NewEmittedLine creates a new EmittedLine
func NewEmittedLine(indent int) *EmittedLine {
	return &EmittedLine{
		Parts:  []string{},
		Indent: indent,
	}
}

// EmitterVisitorContext represents the context for emitting code
type EmitterVisitorContext struct {
	lines  []*EmittedLine
	indent int
}

// NewEmitterVisitorContext creates a new EmitterVisitorContext
func NewEmitterVisitorContext(indent int) *EmitterVisitorContext {
	return &EmitterVisitorContext{
		lines:  []*EmittedLine{NewEmittedLine(indent)},
		indent: indent,
	}
}

func (ctx *EmitterVisitorContext) currentLine() *EmittedLine {
	return ctx.lines[len(ctx.lines)-1]
}

// Print appends part to the current line
func (ctx *EmitterVisitorContext) Print(part string) {
	if part != "" {
		line := ctx.currentLine()
		line.Parts = append(line.Parts, part)
	}
}

// Println appends part and ends the line
func (ctx *EmitterVisitorContext) Println(part string) {
	ctx.Print(part)
	ctx.lines = append(ctx.lines, NewEmittedLine(ctx.indent))
}

// Printf prints a formatted line
func (ctx *EmitterVisitorContext) Printf(format string, args ...string) {
	ctx.Println(sprintf(format, args...))
}

// PrintDirective emits a whole line starting at column 1, such as a
// //line directive.
func (ctx *EmitterVisitorContext) PrintDirective(text string) {
	if !ctx.LineIsEmpty() {
		ctx.Println("")
	}
	ctx.currentLine().Indent = -1
	ctx.Println(text)
}

// LineIsEmpty checks if the current line is empty
func (ctx *EmitterVisitorContext) LineIsEmpty() bool {
	return len(ctx.currentLine().Parts) == 0
}

// IncIndent increases the indent
func (ctx *EmitterVisitorContext) IncIndent() {
	ctx.indent++
	if ctx.LineIsEmpty() {
		ctx.currentLine().Indent = ctx.indent
	}
}

// DecIndent decreases the indent
func (ctx *EmitterVisitorContext) DecIndent() {
	ctx.indent--
	if ctx.LineIsEmpty() {
		ctx.currentLine().Indent = ctx.indent
	}
}

// ToSource converts the context to source code
func (ctx *EmitterVisitorContext) ToSource() string {
	lines := ctx.lines
	if len(lines) > 0 && len(lines[len(lines)-1].Parts) == 0 {
		lines = lines[:len(lines)-1]
	}
	var b strings.Builder
	for _, line := range lines {
		if len(line.Parts) > 0 {
			if line.Indent > 0 {
				b.WriteString(strings.Repeat(indentWith, line.Indent))
			}
			for _, part := range line.Parts {
				b.WriteString(part)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// sprintf substitutes %s verbs only; generated code may contain other
// percent signs that must pass through untouched.
func sprintf(format string, args ...string) string {
	var b strings.Builder
	for {
		i := strings.Index(format, "%s")
		if i < 0 || len(args) == 0 {
			b.WriteString(format)
			return b.String()
		}
		b.WriteString(format[:i])
		b.WriteString(args[0])
		args = args[1:]
		format = format[i+2:]
	}
}
