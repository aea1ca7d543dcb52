package editor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/pzedit/internal/eventbridge"
	"github.com/kingrea/pzedit/internal/logbook"
	"github.com/kingrea/pzedit/internal/mutation"
)

func updated(ids ...string) eventbridge.Event {
	return eventbridge.NewAssetEvent(eventbridge.TypeAssetUpdated, "test", ids...)
}

func TestAssetUpdateReconstructsDependents(t *testing.T) {
	s := newSession(t)
	engine := headless(t, s)
	require.NoError(t, s.Store().Write("meshes/ship.glb", []byte("ship-v2-larger")))

	report, err := s.HandleAssetEvent(testContext(t), updated("meshes/ship.glb"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ship-mesh"}, report.Reconstructed)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Missing)

	mesh, ok := engine.Component("ship-mesh")
	require.True(t, ok)
	assert.Equal(t, 2, mesh.Generation)
	assert.Equal(t, len("ship-v2-larger"), mesh.Payload.Bytes)

	rock, ok := engine.Component("rock-mesh")
	require.True(t, ok)
	assert.Equal(t, 1, rock.Generation)
	script, ok := engine.Component("ship-script")
	require.True(t, ok)
	assert.Equal(t, 1, script.Generation)
}

func TestAssetUpdateOrdersByComponent(t *testing.T) {
	s := newSession(t)
	engine := headless(t, s)

	report, err := s.HandleAssetEvent(testContext(t), updated("scripts/fly.lua", "meshes/ship.glb", "meshes/rock.glb"))
	require.NoError(t, err)
	assert.Equal(t, []string{"rock-mesh", "ship-mesh", "ship-script"}, report.Reconstructed)

	var order []string
	for _, op := range engine.Ops() {
		if op.Action == "reconstruct_component" {
			order = append(order, op.Target)
		}
	}
	assert.Equal(t, []string{"rock-mesh", "ship-mesh", "ship-script"}, order)
}

func TestAssetUpdateWithoutDependents(t *testing.T) {
	s := newSession(t)
	report, err := s.HandleAssetEvent(testContext(t), updated("textures/sky.png"))
	require.NoError(t, err)
	assert.Empty(t, report.Reconstructed)
	assert.Equal(t, []string{"textures/sky.png"}, report.Assets)
	assert.Empty(t, headless(t, s).OpsFor("reconstruct_component", "ship-mesh"))
}

func TestAssetUpdateKeepsInstanceWhenUnreadable(t *testing.T) {
	lb := logbook.NewMemory()
	s := newSession(t, WithDiagnostics(lb))
	require.NoError(t, s.Store().Delete("meshes/rock.glb"))

	report, err := s.HandleAssetEvent(testContext(t), updated("meshes/rock.glb", "meshes/ship.glb"))
	require.NoError(t, err)

	assert.Equal(t, []string{"meshes/rock.glb"}, report.Missing)
	assert.Equal(t, []string{"rock-mesh"}, report.Skipped)
	assert.Equal(t, []string{"ship-mesh"}, report.Reconstructed)
	assert.Equal(t, 1, lb.Count(logbook.LevelWarn))

	rock, ok := headless(t, s).Component("rock-mesh")
	require.True(t, ok)
	assert.Equal(t, 1, rock.Generation)
}

func TestAssetUpdateBuildsComponentThatFailedToLoad(t *testing.T) {
	lb := logbook.NewMemory()
	files := testFiles()
	delete(files, "meshes/ship.glb")
	s, err := NewTestSession(files, WithDiagnostics(lb))
	require.NoError(t, err)
	engine := headless(t, s)

	_, ok := engine.Component("ship-mesh")
	require.False(t, ok)
	assert.Equal(t, 1, lb.Count(logbook.LevelError))

	require.NoError(t, s.Store().Write("meshes/ship.glb", []byte("ship-fixed")))
	report, err := s.HandleAssetEvent(testContext(t), updated("meshes/ship.glb"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ship-mesh"}, report.Reconstructed)
	assert.Empty(t, report.Skipped)

	mesh, ok := engine.Component("ship-mesh")
	require.True(t, ok)
	assert.Equal(t, len("ship-fixed"), mesh.Payload.Bytes)
	c, err := s.Scene().GetComponent("ship-mesh")
	require.NoError(t, err)
	assert.NotNil(t, c.AsComponentBase().Instance())
}

func TestAssetDeletedWarns(t *testing.T) {
	lb := logbook.NewMemory()
	s := newSession(t, WithDiagnostics(lb))

	ev := eventbridge.NewAssetEvent(eventbridge.TypeAssetDeleted, "test", "meshes/ship.glb")
	report, err := s.HandleAssetEvent(testContext(t), ev)
	require.NoError(t, err)

	assert.Equal(t, []string{"ship-mesh"}, report.Skipped)
	assert.Empty(t, report.Reconstructed)
	assert.Equal(t, 1, lb.Count(logbook.LevelWarn))
	assert.Empty(t, headless(t, s).OpsFor("reconstruct_component", "ship-mesh"))
}

func TestAssetEventAfterRemoval(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Dispatcher().Apply(&mutation.RemoveObject{ObjectID: "rock"}))

	report, err := s.HandleAssetEvent(testContext(t), updated("meshes/rock.glb"))
	require.NoError(t, err)
	assert.Empty(t, report.Reconstructed)
	assert.Empty(t, report.Skipped)
}

func TestAssetEventValidation(t *testing.T) {
	s := newSession(t)
	_, err := s.HandleAssetEvent(testContext(t), eventbridge.Event{EventID: "e1", Type: "asset.updated"})
	require.Error(t, err)

	report, err := s.HandleAssetEvent(testContext(t), eventbridge.Event{EventID: "e2", Type: eventbridge.TypeShutdown})
	require.NoError(t, err)
	assert.Empty(t, report.Reconstructed)
}

func TestPumpAppliesUntilShutdown(t *testing.T) {
	s := newSession(t)
	events := make(chan eventbridge.Event, 4)
	events <- updated("meshes/ship.glb")
	events <- updated("meshes/rock.glb")
	events <- eventbridge.NewAssetEvent(eventbridge.TypeShutdown, "test")
	events <- updated("scripts/fly.lua")

	var reports []Reload
	err := Pump(testContext(t), s, events, func(r Reload, err error) {
		require.NoError(t, err)
		reports = append(reports, r)
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{"ship-mesh"}, reports[0].Reconstructed)
	assert.Equal(t, []string{"rock-mesh"}, reports[1].Reconstructed)
	assert.Len(t, events, 1)
}

func TestPumpStopsOnClosedChannelAndContext(t *testing.T) {
	s := newSession(t)
	events := make(chan eventbridge.Event)
	close(events)
	require.NoError(t, Pump(testContext(t), s, events, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Pump(ctx, s, make(chan eventbridge.Event), nil)
	require.ErrorIs(t, err, context.Canceled)
}
