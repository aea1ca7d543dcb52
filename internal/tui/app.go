// internal/tui/app.go
//
// The scene inspector. It follows bubbletea's Elm loop: key presses become
// mutations sent through the session's dispatcher, and the hierarchy is
// rebuilt from the model after every edit.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/pzedit/internal/editor"
	"github.com/kingrea/pzedit/internal/eventbridge"
	"github.com/kingrea/pzedit/internal/mutation"
	"github.com/kingrea/pzedit/internal/scene"
)

// appMode is what keys currently drive.
type appMode int

const (
	modeBrowse appMode = iota // moving through the hierarchy
	modeRename                // editing the selected object's name
	modeAdd                   // naming a new child of the selection
	modeDrag                  // live transform drag on the selection
)

const (
	defaultDragStep = 0.5
	pollInterval    = 100 * time.Millisecond
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithAssetEvents feeds asset events into the inspector. Each event is
// applied on the bubbletea goroutine.
func WithAssetEvents(events <-chan eventbridge.Event) AppOption {
	return func(a *App) {
		a.events = events
	}
}

// WithDragStep sets how far one arrow press moves a drag.
func WithDragStep(step float32) AppOption {
	return func(a *App) {
		if step > 0 {
			a.dragStep = step
		}
	}
}

type pollMsg struct{}

type assetEventMsg struct {
	event eventbridge.Event
	ok    bool
}

// App is the inspector model.
type App struct {
	session *editor.Session
	mode    appMode
	events  <-chan eventbridge.Event

	hierarchy list.Model
	input     textinput.Model

	drag     *mutation.TransformDrag
	dragStep float32

	statusMsg   string
	confirmQuit bool
	polling     bool

	width  int
	height int
}

// NewApp builds an inspector over an open session.
func NewApp(session *editor.Session, opts ...AppOption) (*App, error) {
	if session == nil {
		return nil, errors.New("tui: nil session")
	}
	if session.Scene() == nil {
		return nil, errors.New("tui: session has no open scene")
	}
	hierarchy := list.New(nil, list.NewDefaultDelegate(), 40, 20)
	hierarchy.Title = "Hierarchy"
	hierarchy.SetShowStatusBar(false)
	hierarchy.SetFilteringEnabled(false)
	hierarchy.DisableQuitKeybindings()

	input := textinput.New()
	input.CharLimit = 64

	a := &App{
		session:   session,
		hierarchy: hierarchy,
		input:     input,
		dragStep:  defaultDragStep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.refreshRows("")
	return a, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.waitForEvent()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.hierarchy.SetSize(max(20, msg.Width/2-4), max(5, msg.Height-12))
		return a, nil

	case pollMsg:
		a.polling = false
		a.session.Poll()
		a.refreshRows(a.selectedID())
		return a, a.schedulePoll()

	case assetEventMsg:
		if !msg.ok {
			a.events = nil
			return a, nil
		}
		a.applyAssetEvent(msg.event)
		return a, tea.Batch(a.waitForEvent(), a.schedulePoll())

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, a.quit()
		}
		switch a.mode {
		case modeRename, modeAdd:
			return a.updateInput(msg)
		case modeDrag:
			return a, a.updateDrag(msg)
		}
		return a.updateBrowse(msg)
	}
	return a, nil
}

func (a *App) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key != "q" {
		a.confirmQuit = false
	}
	switch key {
	case "q":
		if a.session.Dirty() && !a.confirmQuit {
			a.confirmQuit = true
			a.statusMsg = "Unsaved changes. Press q again to quit, w to save."
			return a, nil
		}
		return a, a.quit()
	case "r":
		return a, a.beginInput(modeRename)
	case "a":
		return a, a.beginInput(modeAdd)
	case "d", "delete":
		return a, a.removeSelected()
	case "g":
		return a, a.beginDrag(mutation.ChannelPosition)
	case "t":
		return a, a.beginDrag(mutation.ChannelRotation)
	case "s":
		return a, a.beginDrag(mutation.ChannelScale)
	case "u":
		return a, a.undo()
	case "ctrl+r":
		return a, a.redo()
	case "w", "ctrl+s":
		a.save()
		return a, nil
	}
	var cmd tea.Cmd
	a.hierarchy, cmd = a.hierarchy.Update(msg)
	return a, cmd
}

func (a *App) beginInput(mode appMode) tea.Cmd {
	id := a.selectedID()
	if mode == modeRename && id == "" {
		a.statusMsg = "Nothing selected"
		return nil
	}
	a.mode = mode
	a.input.Reset()
	if mode == modeRename {
		if obj, err := a.session.Scene().GetGameObject(id); err == nil {
			a.input.SetValue(obj.Name)
		}
		a.input.Placeholder = "new name"
	} else {
		a.input.Placeholder = "object name"
	}
	a.input.CursorEnd()
	return a.input.Focus()
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.endInput()
		a.statusMsg = "Cancelled"
		return a, nil
	case "enter":
		value := strings.TrimSpace(a.input.Value())
		mode := a.mode
		a.endInput()
		if value == "" {
			a.statusMsg = "Name is required"
			return a, nil
		}
		if mode == modeRename {
			return a, a.apply(&mutation.Rename{ObjectID: a.selectedID(), Name: value})
		}
		obj := scene.NewObject(value)
		cmd := a.apply(&mutation.AddObject{ParentID: a.selectedID(), Object: obj, Index: -1})
		a.refreshRows(obj.ID)
		return a, cmd
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) endInput() {
	a.mode = modeBrowse
	a.input.Blur()
}

func (a *App) beginDrag(channel mutation.Channel) tea.Cmd {
	id := a.selectedID()
	if id == "" {
		a.statusMsg = "Nothing selected"
		return nil
	}
	drag := mutation.NewTransformDrag(id, channel)
	if err := a.session.Dispatcher().Begin(drag); err != nil {
		a.fail(err)
		return nil
	}
	a.drag = drag
	a.mode = modeDrag
	a.statusMsg = fmt.Sprintf("Dragging %s · arrows x/y · pgup/pgdown z · enter commit · esc cancel", channel)
	return nil
}

func (a *App) updateDrag(msg tea.KeyMsg) tea.Cmd {
	step := a.dragStep
	var in mutation.Input
	switch msg.String() {
	case "enter":
		return a.finishDrag(true)
	case "esc":
		return a.finishDrag(false)
	case "right", "l":
		in = mutation.Delta(step, 0, 0)
	case "left", "h":
		in = mutation.Delta(-step, 0, 0)
	case "up", "k":
		in = mutation.Delta(0, step, 0)
	case "down", "j":
		in = mutation.Delta(0, -step, 0)
	case "pgup":
		in = mutation.Delta(0, 0, step)
	case "pgdown":
		in = mutation.Delta(0, 0, -step)
	default:
		return nil
	}
	if err := a.session.Dispatcher().Update(a.drag, in); err != nil {
		a.fail(err)
	}
	return nil
}

func (a *App) finishDrag(commit bool) tea.Cmd {
	drag := a.drag
	a.drag = nil
	a.mode = modeBrowse
	if !commit {
		if err := a.session.Dispatcher().Cancel(drag); err != nil {
			a.fail(err)
			return nil
		}
		a.statusMsg = "Drag cancelled"
		a.refreshRows(a.selectedID())
		return nil
	}
	return a.apply(drag)
}

func (a *App) removeSelected() tea.Cmd {
	id := a.selectedID()
	if id == "" {
		a.statusMsg = "Nothing selected"
		return nil
	}
	return a.apply(&mutation.RemoveObject{ObjectID: id})
}

func (a *App) apply(m mutation.Mutation) tea.Cmd {
	if err := a.session.Dispatcher().Apply(m); err != nil {
		a.fail(err)
		return nil
	}
	a.statusMsg = m.Description()
	a.refreshRows(a.selectedID())
	return a.schedulePoll()
}

func (a *App) undo() tea.Cmd {
	m, err := a.session.Dispatcher().Undo()
	if err != nil {
		a.fail(err)
		return nil
	}
	a.statusMsg = "Undid " + m.Description()
	a.refreshRows(a.selectedID())
	return a.schedulePoll()
}

func (a *App) redo() tea.Cmd {
	m, err := a.session.Dispatcher().Redo()
	if err != nil {
		a.fail(err)
		return nil
	}
	a.statusMsg = "Redid " + m.Description()
	a.refreshRows(a.selectedID())
	return a.schedulePoll()
}

func (a *App) save() {
	if !a.session.Dirty() {
		a.statusMsg = "Nothing to save"
		return
	}
	if err := a.session.Save(); err != nil {
		a.fail(err)
		return
	}
	a.statusMsg = "Saved " + a.session.Context().SceneKey
	a.session.Diagnostics().Info("saved %s", a.session.Context().SceneKey)
}

func (a *App) applyAssetEvent(ev eventbridge.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := a.session.HandleAssetEvent(ctx, ev)
	if err != nil {
		a.fail(err)
		return
	}
	a.statusMsg = fmt.Sprintf("Assets %s · %d rebuilt · %d skipped",
		strings.Join(report.Assets, ", "), len(report.Reconstructed), len(report.Skipped))
	a.refreshRows(a.selectedID())
}

func (a *App) fail(err error) {
	a.statusMsg = "Error: " + err.Error()
	a.session.Diagnostics().Error("%v", err)
}

func (a *App) quit() tea.Cmd {
	if a.drag != nil {
		_ = a.session.Dispatcher().Cancel(a.drag)
		a.drag = nil
	}
	return tea.Quit
}

// schedulePoll wires finished runtime loads shortly after an edit.
func (a *App) schedulePoll() tea.Cmd {
	if a.polling || a.session.Dispatcher().Pending() == 0 {
		return nil
	}
	a.polling = true
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (a *App) waitForEvent() tea.Cmd {
	if a.events == nil {
		return nil
	}
	events := a.events
	return func() tea.Msg {
		ev, ok := <-events
		return assetEventMsg{event: ev, ok: ok}
	}
}

// Session returns the session the inspector edits.
func (a *App) Session() *editor.Session {
	return a.session
}
