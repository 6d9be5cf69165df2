// Package runtime is the support library imported by generated templates.
package runtime

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Output is the sink generated templates write to. Errors are sticky: once
// a write or nested render fails, later writes are dropped and Err reports
// the first failure.
type Output struct {
	w        *bufio.Writer
	err      error
	template string
	line     int
	col      int
}

// NewOutput creates an Output writing to w.
func NewOutput(w io.Writer) *Output {
	return &Output{w: bufio.NewWriter(w)}
}

// At records the template position of the statement about to run.
func (o *Output) At(line, col int) {
	o.line, o.col = line, col
}

// Position returns the template, line and column last recorded.
func (o *Output) Position() (template string, line, col int) {
	return o.template, o.line, o.col
}

// Enter switches the output to another template and returns a function
// restoring the previous template and position.
func (o *Output) Enter(template string) func() {
	prevTemplate, prevLine, prevCol := o.template, o.line, o.col
	o.template, o.line, o.col = template, 0, 0
	return func() {
		o.template, o.line, o.col = prevTemplate, prevLine, prevCol
	}
}

// Text writes literal template text.
func (o *Output) Text(s string) {
	if o.err != nil {
		return
	}
	if _, err := o.w.WriteString(s); err != nil {
		o.Fail(errors.Wrap(err, "write template output"))
	}
}

// Value writes v HTML-escaped. Content values render unescaped.
func (o *Output) Value(v any) {
	switch x := v.(type) {
	case Content:
		o.Include(x)
	case SafeHTML:
		o.Text(string(x))
	default:
		o.Text(EscapeHTML(Stringify(v)))
	}
}

// Raw writes v without escaping.
func (o *Output) Raw(v any) {
	if c, ok := v.(Content); ok {
		o.Include(c)
		return
	}
	o.Text(Stringify(v))
}

// Include renders c into the output at the current position.
func (o *Output) Include(c Content) {
	if o.err != nil {
		return
	}
	if c == nil {
		return
	}
	if err := c.RenderTo(o); err != nil {
		o.Fail(err)
	}
}

// Fail records err unless an earlier failure is already recorded. Errors
// that are not RenderErrors are anchored at the current position.
func (o *Output) Fail(err error) {
	if o.err != nil || err == nil {
		return
	}
	var re *RenderError
	if !errors.As(err, &re) {
		err = newRenderError(o.template, o.line, o.col, err)
	}
	o.err = err
}

// Err returns the first failure, if any.
func (o *Output) Err() error {
	return o.err
}

// Flush writes buffered output to the underlying writer.
func (o *Output) Flush() error {
	if err := o.w.Flush(); err != nil {
		o.Fail(errors.Wrap(err, "flush template output"))
	}
	return o.err
}

// Recover converts a panic in the deferring render function into a
// RenderError at the last recorded position and stores the first failure
// in *err. It must be deferred directly.
func (o *Output) Recover(err *error) {
	if r := recover(); r != nil {
		o.Fail(o.panicError(r))
	}
	if *err == nil {
		*err = o.err
	}
}

// Catch records a panic in the deferring content closure as a
// RenderError. It must be deferred directly.
func (o *Output) Catch() {
	if r := recover(); r != nil {
		o.Fail(o.panicError(r))
	}
}

func (o *Output) panicError(r any) error {
	cause, ok := r.(error)
	if ok {
		cause = errors.WithStack(cause)
	} else {
		cause = errors.Errorf("panic: %v", r)
	}
	return newRenderError(o.template, o.line, o.col, cause)
}

// RenderString renders c into a string.
func RenderString(c Content) (string, error) {
	var b strings.Builder
	out := NewOutput(&b)
	if err := c.RenderTo(out); err != nil {
		return "", err
	}
	if err := out.Flush(); err != nil {
		return "", err
	}
	return b.String(), nil
}
