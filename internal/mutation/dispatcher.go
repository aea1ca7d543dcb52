package mutation

import (
	"context"
	"fmt"
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Dispatcher applies mutations against one Context and records them in
// its History. It performs no rollback: a failed mutation's error is
// returned unchanged and nothing is recorded.
type Dispatcher struct {
	ctx     *Context
	history *History
	active  map[string]Continuous
	logger  Logger
}

// DispatcherOption customizes a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithHistory replaces the default unbounded history.
func WithHistory(h *History) DispatcherOption {
	return func(d *Dispatcher) {
		d.history = h
	}
}

// WithLogger records every applied mutation.
func WithLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher builds a dispatcher for ctx.
func NewDispatcher(ctx *Context, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ctx:     ctx,
		history: NewHistory(0),
		active:  map[string]Continuous{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Context returns the context mutations are applied against.
func (d *Dispatcher) Context() *Context { return d.ctx }

// History returns the undo history.
func (d *Dispatcher) History() *History { return d.history }

// Apply runs m. Continuous mutations are committed as by Commit.
func (d *Dispatcher) Apply(m Mutation) error {
	if c, ok := m.(Continuous); ok {
		return d.Commit(c)
	}
	if err := m.Apply(d.ctx); err != nil {
		return err
	}
	d.record(m)
	return nil
}

// Begin starts a continuous mutation. Only one may be live per target.
func (d *Dispatcher) Begin(m Continuous) error {
	if other, busy := d.active[m.Target()]; busy {
		return fmt.Errorf("mutation: %s is busy with %q: %w", m.Target(), other.Description(), ErrUsage)
	}
	if err := m.Begin(d.ctx); err != nil {
		return err
	}
	d.active[m.Target()] = m
	return nil
}

// Update forwards one input tick to a live continuous mutation.
func (d *Dispatcher) Update(m Continuous, in Input) error {
	if err := d.requireActive(m, "update"); err != nil {
		return err
	}
	return m.Update(d.ctx, in)
}

// Commit applies a live continuous mutation and records it.
func (d *Dispatcher) Commit(m Continuous) error {
	if err := d.requireActive(m, "commit"); err != nil {
		return err
	}
	if err := m.Apply(d.ctx); err != nil {
		return err
	}
	delete(d.active, m.Target())
	d.record(m)
	return nil
}

// Cancel abandons a live continuous mutation, restoring its snapshot.
func (d *Dispatcher) Cancel(m Continuous) error {
	if err := d.requireActive(m, "cancel"); err != nil {
		return err
	}
	if err := m.Cancel(d.ctx); err != nil {
		return err
	}
	delete(d.active, m.Target())
	return nil
}

// Active returns the live continuous mutation on target, if any.
func (d *Dispatcher) Active(target string) (Continuous, bool) {
	m, ok := d.active[target]
	return m, ok
}

// Undo reverses the latest recorded mutation.
func (d *Dispatcher) Undo() (Mutation, error) {
	if len(d.active) > 0 {
		return nil, fmt.Errorf("mutation: undo during %d live edits: %w", len(d.active), ErrUsage)
	}
	m, err := d.history.Undo(d.ctx)
	if err == nil && d.logger != nil {
		d.logger.Printf("undo: %s", m.Description())
	}
	return m, err
}

// Redo reapplies the latest undone mutation.
func (d *Dispatcher) Redo() (Mutation, error) {
	if len(d.active) > 0 {
		return nil, fmt.Errorf("mutation: redo during %d live edits: %w", len(d.active), ErrUsage)
	}
	m, err := d.history.Redo(d.ctx)
	if err == nil && d.logger != nil {
		d.logger.Printf("redo: %s", m.Description())
	}
	return m, err
}

// Pending returns the number of runtime loads not yet settled.
func (d *Dispatcher) Pending() int { return d.ctx.Pending() }

// Settle waits for pending runtime loads and wires their results.
func (d *Dispatcher) Settle(ctx context.Context) error { return d.ctx.Settle(ctx) }

func (d *Dispatcher) requireActive(m Continuous, call string) error {
	if d.active[m.Target()] != m {
		return fmt.Errorf("mutation: %s %q which is not live: %w", call, m.Description(), ErrUsage)
	}
	return nil
}

func (d *Dispatcher) record(m Mutation) {
	d.history.Push(m)
	if d.logger != nil {
		d.logger.Printf("applied: %s", m.Description())
	}
}
