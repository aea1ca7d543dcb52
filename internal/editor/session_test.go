package editor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/pzedit/internal/logbook"
	"github.com/kingrea/pzedit/internal/mutation"
	"github.com/kingrea/pzedit/internal/runtime"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
)

const projectSource = `# demo project
version: 1
name: Demo
scenes:
  - id: main
    name: Main
    path: scenes/main.pzscene
  - id: second
    name: Second
    path: scenes/second.pzscene
`

const mainSource = `version: 1
id: main
name: Main
objects:
  - id: ship
    name: Ship # player
    transform: {position: [0, 0, 0], rotation: [0, 0, 0], scale: [1, 1, 1]}
    components:
      - id: ship-mesh
        type: mesh
        asset: meshes/ship.glb
      - id: ship-script
        type: script
        source: scripts/fly.lua
    children: []
  - id: rock
    name: Rock
    transform: {position: [3, 0, 0], rotation: [0, 0, 0], scale: [1, 1, 1]}
    components:
      - id: rock-mesh
        type: mesh
        asset: meshes/rock.glb
    children: []
`

const secondSource = `version: 1
id: second
name: Second
objects:
  - id: crate
    name: Crate
    transform: {position: [0, 0, 0], rotation: [0, 0, 0], scale: [1, 1, 1]}
    components: []
    children: []
`

func testFiles() map[string][]byte {
	return map[string][]byte{
		"project.yaml":          []byte(projectSource),
		"scenes/main.pzscene":   []byte(mainSource),
		"scenes/second.pzscene": []byte(secondSource),
		"meshes/ship.glb":       []byte("ship-v1"),
		"meshes/rock.glb":       []byte("rock"),
		"scripts/fly.lua":       []byte("fly()"),
	}
}

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := NewTestSession(testFiles(), opts...)
	require.NoError(t, err)
	return s
}

func headless(t *testing.T, s *Session) *runtime.Headless {
	t.Helper()
	engine, ok := s.Engine().(*runtime.Headless)
	require.True(t, ok, "expected the default headless engine")
	return engine
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewTestSessionLoadsFirstScene(t *testing.T) {
	s := newSession(t)

	require.NotNil(t, s.Scene())
	assert.Equal(t, "main", s.Scene().ID)
	assert.Equal(t, "scenes/main.pzscene", s.Context().SceneKey)
	assert.False(t, s.Dirty())

	engine := headless(t, s)
	assert.Equal(t, []string{"ship", "rock"}, engine.ChildrenOf(""))
	mesh, ok := engine.Component("ship-mesh")
	require.True(t, ok)
	assert.Equal(t, len("ship-v1"), mesh.Payload.Bytes)
	assert.Equal(t, []string{"ship-mesh"}, s.Context().Deps.Dependents("meshes/ship.glb"))
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open(nil, "project.yaml")
	require.Error(t, err)

	_, err = Open(storage.NewMemory(nil), "../project.yaml")
	require.Error(t, err)

	_, err = Open(storage.NewMemory(nil), "project.yaml")
	require.ErrorIs(t, err, storage.ErrNotExist)
}

func TestLoadSceneSwitchesScenes(t *testing.T) {
	s := newSession(t)
	engine := headless(t, s)

	require.NoError(t, s.Dispatcher().Apply(&mutation.Rename{ObjectID: "ship", Name: "Cruiser"}))
	require.True(t, s.Dispatcher().History().CanUndo())

	require.NoError(t, s.LoadScene(testContext(t), "second"))

	assert.Equal(t, "second", s.Scene().ID)
	assert.Equal(t, []string{"crate"}, engine.ChildrenOf(""))
	_, ok := engine.Component("ship-mesh")
	assert.False(t, ok)
	assert.Empty(t, s.Context().Deps.AssetIDs())
	assert.False(t, s.Dispatcher().History().CanUndo())
}

func TestLoadSceneErrors(t *testing.T) {
	s := newSession(t)
	err := s.LoadScene(testContext(t), "missing")
	require.ErrorIs(t, err, scene.ErrNotFound)
	assert.Contains(t, err.Error(), "missing")

	empty, err := NewTestSession(map[string][]byte{"project.yaml": []byte("version: 1\nname: Empty\nscenes: []\n")})
	require.NoError(t, err)
	assert.Nil(t, empty.Scene())
	require.ErrorIs(t, empty.LoadScene(testContext(t), ""), ErrNoScene)
}

func TestSaveWritesOnlyDirtyDocuments(t *testing.T) {
	s := newSession(t)
	store := s.Store()

	require.NoError(t, s.Save())
	raw, err := store.Read("scenes/main.pzscene")
	require.NoError(t, err)
	assert.Equal(t, mainSource, string(raw))

	require.NoError(t, s.Dispatcher().Apply(&mutation.Rename{ObjectID: "ship", Name: "Cruiser"}))
	assert.True(t, s.Dirty())
	require.NoError(t, s.Save())
	assert.False(t, s.Dirty())

	raw, err = store.Read("scenes/main.pzscene")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "name: Cruiser # player")

	project, err := store.Read("project.yaml")
	require.NoError(t, err)
	assert.Equal(t, projectSource, string(project))
}

func TestMoveSceneThroughSession(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Dispatcher().Apply(&mutation.MoveScene{SceneID: "main", NewPath: "scenes/moved.pzscene"}))
	assert.Equal(t, "scenes/moved.pzscene", s.Context().SceneKey)

	require.NoError(t, s.Save())
	ok, err := s.Store().Exists("scenes/main.pzscene")
	require.NoError(t, err)
	assert.False(t, ok)
	project, err := s.Store().Read("project.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(project), "path: scenes/moved.pzscene")
	assert.Contains(t, string(project), "# demo project")
}

func TestCloseRemembersScene(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.LoadScene(testContext(t), "second"))
	require.NoError(t, s.Close(testContext(t)))

	state, err := LoadState(s.Store(), defaultStateKey)
	require.NoError(t, err)
	assert.Equal(t, "second", state.LastScene)
	assert.False(t, state.SavedAt.IsZero())

	next, err := Open(s.Store(), "project.yaml")
	require.NoError(t, err)
	assert.Equal(t, "second", next.ResumeScene(""))
}

func TestResumeSceneFallsBack(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, "main", s.ResumeScene("main"))

	require.NoError(t, SaveState(s.Store(), defaultStateKey, State{LastScene: "gone"}))
	assert.Equal(t, "main", s.ResumeScene("main"))
}

func TestLoadStateMissing(t *testing.T) {
	_, err := LoadState(storage.NewMemory(nil), defaultStateKey)
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestDiagnosticsOption(t *testing.T) {
	lb := logbook.NewMemory()
	s := newSession(t, WithDiagnostics(lb))
	assert.Same(t, lb, s.Diagnostics())
	assert.Equal(t, 1, lb.Count(logbook.LevelInfo))
}

func TestScaffold(t *testing.T) {
	store := storage.NewMemory(nil)

	wrote, err := Scaffold(store, "project.yaml", "Demo")
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = Scaffold(store, "project.yaml", "Other")
	require.NoError(t, err)
	assert.False(t, wrote)

	s, err := Open(store, "project.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Demo", s.Project().Name)
	require.Len(t, s.Project().Scenes, 1)
	assert.Equal(t, DefaultSceneKey, s.Project().Scenes[0].Path)

	require.NoError(t, s.LoadScene(testContext(t), ""))
	assert.Equal(t, s.Project().Scenes[0].ID, s.Scene().ID)
	assert.Equal(t, 0, s.Scene().Len())
}

func TestScaffoldKeepsExistingScene(t *testing.T) {
	store := storage.NewMemory(map[string][]byte{DefaultSceneKey: []byte(secondSource)})

	_, err := Scaffold(store, "project.yaml", "")
	require.NoError(t, err)

	raw, err := store.Read(DefaultSceneKey)
	require.NoError(t, err)
	assert.Equal(t, secondSource, string(raw))

	s, err := Open(store, "project.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", s.Project().Name)
	assert.Equal(t, "second", s.Project().Scenes[0].ID)
}
