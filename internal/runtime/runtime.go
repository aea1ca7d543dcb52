package runtime

import (
	"errors"

	"github.com/kingrea/pzedit/internal/scene"
)

// ErrUnknownInstance is returned for handles the engine does not hold.
var ErrUnknownInstance = errors.New("runtime: unknown instance")

// Handle is the value-typed reference the model keeps to a live instance.
type Handle struct {
	id string
}

// RuntimeID implements scene.RuntimeRef.
func (h Handle) RuntimeID() string { return h.id }

// Result is delivered once a component instance finished building.
type Result struct {
	Component scene.Component
	Ref       scene.RuntimeRef
	Err       error
}

// Engine is the live scene graph driven by mutations. Object calls are
// synchronous. Component construction may wait on asset loads, so it
// reports through a channel that yields exactly one Result.
type Engine interface {
	CreateObject(obj *scene.Object, parent scene.RuntimeRef, index int) (scene.RuntimeRef, error)
	DestroyObject(ref scene.RuntimeRef) error
	SetTransform(ref scene.RuntimeRef, t scene.Transform) error
	SetName(ref scene.RuntimeRef, name string) error
	Reparent(ref, parent scene.RuntimeRef, index int) error

	CreateComponent(owner scene.RuntimeRef, c scene.Component) <-chan Result
	ReconstructComponent(ref scene.RuntimeRef, c scene.Component) <-chan Result
	UpdateComponent(ref scene.RuntimeRef, c scene.Component) error
	DestroyComponent(ref scene.RuntimeRef) error
}

// AssetSource supplies asset bytes by id. storage.Store satisfies it.
type AssetSource interface {
	Read(key string) ([]byte, error)
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

func refID(ref scene.RuntimeRef) string {
	if ref == nil {
		return ""
	}
	return ref.RuntimeID()
}

func resolved(res Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- res
	close(ch)
	return ch
}
