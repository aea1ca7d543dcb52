package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/pzedit/internal/editor"
	"github.com/kingrea/pzedit/internal/eventbridge"
	"github.com/kingrea/pzedit/internal/runtime"
)

const projectSource = `version: 1
name: Demo
scenes:
  - id: main
    name: Main
    path: scenes/main.pzscene
`

const sceneSource = `version: 1
id: main
name: Main
objects:
  - id: ship
    name: Ship
    transform: {position: [0, 0, 0], rotation: [0, 0, 0], scale: [1, 1, 1]}
    components:
      - id: ship-mesh
        type: mesh
        asset: meshes/ship.glb
    children: []
  - id: rock
    name: Rock
    transform: {position: [3, 0, 0], rotation: [0, 0, 0], scale: [1, 1, 1]}
    components: []
    children: []
`

func newTestApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()
	session, err := editor.NewTestSession(map[string][]byte{
		"project.yaml":        []byte(projectSource),
		"scenes/main.pzscene": []byte(sceneSource),
		"meshes/ship.glb":     []byte("ship"),
	})
	require.NoError(t, err)
	app, err := NewApp(session, opts...)
	require.NoError(t, err)
	return app
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// press sends keys in order and returns the command of the last one.
func press(t *testing.T, app *App, keys ...string) tea.Cmd {
	t.Helper()
	var cmd tea.Cmd
	for _, key := range keys {
		var model tea.Model
		model, cmd = app.Update(keyMsg(key))
		require.Same(t, app, model)
	}
	return cmd
}

func mustSelect(t *testing.T, app *App, id string) {
	t.Helper()
	require.True(t, app.selectID(id), "object %s not in hierarchy", id)
	require.Equal(t, id, app.selectedID())
}

func TestNewAppListsHierarchy(t *testing.T) {
	app := newTestApp(t)
	items := app.hierarchy.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Ship", items[0].(objectRow).Title())
	assert.Equal(t, "ship", app.selectedID())

	_, err := NewApp(nil)
	require.Error(t, err)
}

func TestRenameFromInput(t *testing.T) {
	app := newTestApp(t)
	mustSelect(t, app, "rock")

	press(t, app, "r")
	require.Equal(t, modeRename, app.mode)
	assert.Equal(t, "Rock", app.input.Value())
	app.input.SetValue("Boulder")
	press(t, app, "enter")

	assert.Equal(t, modeBrowse, app.mode)
	obj, err := app.session.Scene().GetGameObject("rock")
	require.NoError(t, err)
	assert.Equal(t, "Boulder", obj.Name)
	assert.Equal(t, `Rename rock to "Boulder"`, app.statusMsg)
	assert.Contains(t, app.View(), "Boulder")
	assert.Contains(t, app.View(), "Main *")
}

func TestRenameCancelled(t *testing.T) {
	app := newTestApp(t)
	press(t, app, "r")
	app.input.SetValue("Nope")
	press(t, app, "esc")
	obj, err := app.session.Scene().GetGameObject("ship")
	require.NoError(t, err)
	assert.Equal(t, "Ship", obj.Name)
	assert.False(t, app.session.Dirty())
}

func TestAddChildSelectsIt(t *testing.T) {
	app := newTestApp(t)
	mustSelect(t, app, "rock")

	press(t, app, "a")
	app.input.SetValue("Pebble")
	press(t, app, "enter")

	rock, err := app.session.Scene().GetGameObject("rock")
	require.NoError(t, err)
	require.Len(t, rock.Children, 1)
	assert.Equal(t, "Pebble", rock.Children[0].Name)
	assert.Equal(t, rock.Children[0].ID, app.selectedID())
	assert.Len(t, app.hierarchy.Items(), 3)
	assert.Equal(t, 1, app.hierarchy.Items()[2].(objectRow).depth)
}

func TestDeleteUndoRedo(t *testing.T) {
	app := newTestApp(t)
	mustSelect(t, app, "rock")

	press(t, app, "d")
	assert.Len(t, app.hierarchy.Items(), 1)
	_, err := app.session.Scene().GetGameObject("rock")
	require.Error(t, err)

	press(t, app, "u")
	assert.Len(t, app.hierarchy.Items(), 2)
	assert.Equal(t, `Undid Remove "Rock"`, app.statusMsg)

	press(t, app, "ctrl+r")
	assert.Len(t, app.hierarchy.Items(), 1)
}

func TestDragCommitsOnce(t *testing.T) {
	app := newTestApp(t)
	engine := app.session.Engine().(*runtime.Headless)
	mustSelect(t, app, "ship")

	press(t, app, "g", "right", "right", "up")
	require.Equal(t, modeDrag, app.mode)
	assert.Contains(t, app.View(), "dragging position")
	assert.False(t, app.session.Dirty())

	press(t, app, "enter")
	assert.Equal(t, modeBrowse, app.mode)
	obj, err := app.session.Scene().GetGameObject("ship")
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{1, 0.5, 0}, obj.Transform.Position)
	assert.True(t, app.session.Dirty())
	assert.Len(t, engine.OpsFor("set_transform", "ship"), 3)
	assert.Equal(t, []string{"Drag position of ship"}, app.session.Dispatcher().History().Labels())
}

func TestDragCancelRestores(t *testing.T) {
	app := newTestApp(t, WithDragStep(2))
	press(t, app, "s", "right", "right", "esc")

	obj, err := app.session.Scene().GetGameObject("ship")
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, obj.Transform.Scale)
	assert.Equal(t, "Drag cancelled", app.statusMsg)
	assert.Empty(t, app.session.Dispatcher().History().Labels())
	assert.False(t, app.session.Dirty())
}

func TestUndoIgnoredDuringDrag(t *testing.T) {
	app := newTestApp(t)
	press(t, app, "g", "u")
	assert.Equal(t, modeDrag, app.mode)
	press(t, app, "esc")
	press(t, app, "u")
	assert.Contains(t, app.statusMsg, "Error:")
}

func TestSaveAndQuit(t *testing.T) {
	app := newTestApp(t)
	press(t, app, "r")
	app.input.SetValue("Cruiser")
	press(t, app, "enter")

	assert.Nil(t, press(t, app, "q"))
	assert.True(t, app.confirmQuit)

	press(t, app, "w")
	assert.False(t, app.session.Dirty())
	raw, err := app.session.Store().Read("scenes/main.pzscene")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "name: Cruiser")

	cmd := press(t, app, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestAssetEventMessage(t *testing.T) {
	events := make(chan eventbridge.Event)
	app := newTestApp(t, WithAssetEvents(events))
	require.NotNil(t, app.Init())

	ev := eventbridge.NewAssetEvent(eventbridge.TypeAssetUpdated, "test", "meshes/ship.glb")
	app.Update(assetEventMsg{event: ev, ok: true})
	assert.Equal(t, "Assets meshes/ship.glb · 1 rebuilt · 0 skipped", app.statusMsg)

	app.Update(assetEventMsg{ok: false})
	assert.Nil(t, app.Init())
}

func TestWindowResize(t *testing.T) {
	app := newTestApp(t)
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, app.width)
	view := app.View()
	assert.Contains(t, view, "Hierarchy")
	assert.Contains(t, view, "ship-mesh")
}
