package mutation

import "fmt"

// History is the in-session undo and redo stack. It does not survive the
// session.
type History struct {
	limit  int
	done   []Mutation
	undone []Mutation
}

// NewHistory keeps at most limit applied mutations; limit <= 0 means
// unbounded.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Push records an applied mutation and forgets anything undone.
func (h *History) Push(m Mutation) {
	h.done = append(h.done, m)
	if h.limit > 0 && len(h.done) > h.limit {
		h.done = append(h.done[:0:0], h.done[len(h.done)-h.limit:]...)
	}
	h.undone = nil
}

// Undo reverses the most recent mutation. On failure both stacks are left
// unchanged.
func (h *History) Undo(ctx *Context) (Mutation, error) {
	if len(h.done) == 0 {
		return nil, ErrNothingToUndo
	}
	m := h.done[len(h.done)-1]
	if err := m.Undo(ctx); err != nil {
		return m, fmt.Errorf("mutation: undo %q: %w", m.Description(), err)
	}
	h.done = h.done[:len(h.done)-1]
	h.undone = append(h.undone, m)
	return m, nil
}

// Redo reapplies the most recently undone mutation.
func (h *History) Redo(ctx *Context) (Mutation, error) {
	if len(h.undone) == 0 {
		return nil, ErrNothingToRedo
	}
	m := h.undone[len(h.undone)-1]
	var err error
	if r, ok := m.(Redoer); ok {
		err = r.Redo(ctx)
	} else {
		err = m.Apply(ctx)
	}
	if err != nil {
		return m, fmt.Errorf("mutation: redo %q: %w", m.Description(), err)
	}
	h.undone = h.undone[:len(h.undone)-1]
	h.done = append(h.done, m)
	return m, nil
}

func (h *History) CanUndo() bool { return len(h.done) > 0 }

func (h *History) CanRedo() bool { return len(h.undone) > 0 }

// Labels returns the descriptions of applied mutations, oldest first.
func (h *History) Labels() []string {
	out := make([]string, len(h.done))
	for i, m := range h.done {
		out[i] = m.Description()
	}
	return out
}

// Clear forgets everything.
func (h *History) Clear() {
	h.done = nil
	h.undone = nil
}
