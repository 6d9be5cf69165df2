package runtime

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAlreadyRendered is returned when a template instance is rendered a
// second time.
var ErrAlreadyRendered = errors.New("template instance already rendered")

// RenderError is a render failure anchored at a template position.
type RenderError struct {
	Template string
	Line     int
	Col      int
	Err      error
}

func newRenderError(template string, line, col int, cause error) *RenderError {
	return &RenderError{Template: template, Line: line, Col: col, Err: cause}
}

func (e *RenderError) Error() string {
	if e.Template == "" {
		return fmt.Sprintf("render: %v", e.Err)
	}
	return fmt.Sprintf("render %s:%d:%d: %v", e.Template, e.Line, e.Col, e.Err)
}

// Unwrap returns the underlying cause
func (e *RenderError) Unwrap() error { return e.Err }

// Cause returns the underlying cause for errors.Cause
func (e *RenderError) Cause() error { return e.Err }

// BindError reports a failed dynamic argument binding.
type BindError struct {
	Template string
	Argument string
	// Want is the expected Go type; empty when the argument is unknown.
	Want string
	Got  any
}

// NewBindError creates a new BindError
func NewBindError(template, argument, want string, got any) *BindError {
	return &BindError{Template: template, Argument: argument, Want: want, Got: got}
}

func (e *BindError) Error() string {
	if e.Want == "" {
		return fmt.Sprintf("template %s has no argument %q", e.Template, e.Argument)
	}
	return fmt.Sprintf("template %s: argument %q wants %s, got %T", e.Template, e.Argument, e.Want, e.Got)
}
