package mutation

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrUsage is returned when the mutation protocol is violated, such as
	// updating a continuous mutation that was never begun.
	ErrUsage = errors.New("mutation: usage error")
	// ErrNothingToUndo is returned by History.Undo on an empty history.
	ErrNothingToUndo = errors.New("mutation: nothing to undo")
	// ErrNothingToRedo is returned by History.Redo when nothing was undone.
	ErrNothingToRedo = errors.New("mutation: nothing to redo")
)

// Mutation is a discrete, undoable edit.
type Mutation interface {
	Description() string
	Apply(ctx *Context) error
	Undo(ctx *Context) error
}

// Redoer is implemented by mutations that cannot be redone by calling
// Apply again.
type Redoer interface {
	Redo(ctx *Context) error
}

// Input is one tick of a continuous edit: either a delta added to the
// current value or an absolute value.
type Input struct {
	Value    mgl32.Vec3
	Absolute bool
}

// Delta builds a relative input.
func Delta(x, y, z float32) Input {
	return Input{Value: mgl32.Vec3{x, y, z}}
}

// Absolute builds an absolute input.
func Absolute(x, y, z float32) Input {
	return Input{Value: mgl32.Vec3{x, y, z}, Absolute: true}
}

// Continuous is a mutation applied over many input ticks before a single
// durable commit. Apply commits.
type Continuous interface {
	Mutation
	Target() string
	Phase() Phase
	Begin(ctx *Context) error
	Update(ctx *Context, in Input) error
	Cancel(ctx *Context) error
}

// Phase is the lifecycle state of a continuous mutation.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseBegun
	PhaseUpdated
	PhaseApplied
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseBegun:
		return "begun"
	case PhaseUpdated:
		return "updated"
	case PhaseApplied:
		return "applied"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// live reports whether the mutation is between Begin and Apply.
func (p Phase) live() bool {
	return p == PhaseBegun || p == PhaseUpdated
}
