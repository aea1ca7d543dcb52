package mutation

import (
	"context"
	"fmt"

	"github.com/kingrea/pzedit/internal/deps"
	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/logbook"
	"github.com/kingrea/pzedit/internal/runtime"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
)

// Context is the only channel through which mutations reach the model,
// the runtime, the documents and storage. Runtime and Storage may be nil
// for tools that edit documents without a live engine.
type Context struct {
	Scene      *scene.Scene
	SceneDoc   *document.Document
	SceneKey   string
	Project    *scene.Project
	ProjectDoc *document.Document
	ProjectKey string

	Runtime     runtime.Engine
	Storage     storage.Store
	Deps        *deps.Manager
	Diagnostics *logbook.Logbook

	pending []pendingLoad
	tokens  map[string]int
}

type pendingLoad struct {
	results <-chan runtime.Result
	wire    func(runtime.Result)
}

// Pending returns the number of runtime loads not yet settled.
func (c *Context) Pending() int {
	return len(c.pending)
}

// Track queues an asynchronous runtime result; wire runs on the editor
// goroutine once Settle or Poll observes it.
func (c *Context) Track(results <-chan runtime.Result, wire func(runtime.Result)) {
	c.pending = append(c.pending, pendingLoad{results: results, wire: wire})
}

// Settle waits for every pending runtime load, wiring each result in the
// order the loads were started.
func (c *Context) Settle(ctx context.Context) error {
	for len(c.pending) > 0 {
		next := c.pending[0]
		select {
		case res, ok := <-next.results:
			c.pending = c.pending[1:]
			if ok {
				next.wire(res)
			}
		case <-ctx.Done():
			return fmt.Errorf("mutation: settle with %d loads pending: %w", len(c.pending), ctx.Err())
		}
	}
	return nil
}

// Poll wires every pending load that has already finished, without
// blocking, and returns how many it wired.
func (c *Context) Poll() int {
	done := 0
	remaining := c.pending[:0]
	for _, load := range c.pending {
		select {
		case res, ok := <-load.results:
			if ok {
				load.wire(res)
			}
			done++
		default:
			remaining = append(remaining, load)
		}
	}
	for i := len(remaining); i < len(c.pending); i++ {
		c.pending[i] = pendingLoad{}
	}
	c.pending = remaining
	return done
}

// claim starts a new construction generation for componentID. A load
// result is only wired if no newer claim or release happened since.
func (c *Context) claim(componentID string) int {
	if c.tokens == nil {
		c.tokens = map[string]int{}
	}
	c.tokens[componentID]++
	return c.tokens[componentID]
}

func (c *Context) release(componentID string) {
	c.claim(componentID)
}

func (c *Context) current(componentID string, token int) bool {
	return c.tokens[componentID] == token
}

func (c *Context) roots() []*scene.Object {
	return c.Scene.Objects
}

func (c *Context) requireScene() error {
	if c.Scene == nil || c.SceneDoc == nil {
		return fmt.Errorf("mutation: no scene is open: %w", ErrUsage)
	}
	return nil
}
