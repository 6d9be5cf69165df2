package runtime

import (
	"github.com/pkg/errors"
)

// RenderState is the state of a single-use template instance.
type RenderState int

const (
	Unrendered RenderState = iota
	Rendered
)

func (s RenderState) String() string {
	if s == Rendered {
		return "rendered"
	}
	return "unrendered"
}

// Guard enforces single-use rendering. The zero value is Unrendered.
// A Guard is not safe for concurrent use.
type Guard struct {
	state RenderState
}

// Enter moves the guard from Unrendered to Rendered. Entering a Rendered
// guard fails with ErrAlreadyRendered.
func (g *Guard) Enter(template string) error {
	if g.state == Rendered {
		return errors.Wrap(ErrAlreadyRendered, template)
	}
	g.state = Rendered
	return nil
}

// State returns the current state.
func (g *Guard) State() RenderState {
	return g.state
}
