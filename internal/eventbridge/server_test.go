package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/pzedit/internal/config"
)

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("PZEDIT_BRIDGE_PORT", "9001")
	t.Setenv("PZEDIT_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("PZEDIT_BRIDGE_ENABLED", "false")
	t.Setenv("PZEDIT_BRIDGE_QUEUE", "8")
	settings := SettingsFromConfig(&config.Config{})
	assert.Equal(t, 9001, settings.Port)
	assert.Equal(t, "0.0.0.0", settings.Host)
	assert.False(t, settings.Enabled)
	assert.Equal(t, 8, settings.QueueSize)
}

func TestSettingsFromConfigFile(t *testing.T) {
	enabled := false
	cfg := &config.Config{}
	cfg.Project.EventBridge = config.EventBridgeConfig{Enabled: &enabled, Host: "localhost", Port: 9100}
	settings := SettingsFromConfig(cfg)
	assert.False(t, settings.Enabled)
	assert.Equal(t, "http://localhost:9100", settings.URL())
	assert.Equal(t, DefaultMaxBodyBytes, settings.MaxBodyBytes)
}

func TestEventValidate(t *testing.T) {
	evt := NewAssetEvent(TypeAssetUpdated, "shell", "meshes\\cube.glb", " meshes/cube.glb ", "a.png")
	require.NoError(t, evt.Validate())
	assert.Equal(t, []string{"a.png", "meshes/cube.glb"}, evt.AssetIDs)
	assert.Len(t, evt.EventID, 26)

	evt.AssetIDs = nil
	assert.ErrorContains(t, evt.Validate(), "asset_ids")
	evt.Type = "model_response"
	assert.ErrorContains(t, evt.Validate(), "not supported")
	evt.Type = TypeShutdown
	assert.NoError(t, evt.Validate())
	evt.Version = 99
	assert.Error(t, evt.Validate())
}

func newTestServer(t *testing.T, maxBody int64, processor EventProcessor) *Server {
	t.Helper()
	settings := DefaultSettings()
	settings.Port = 0
	settings.MaxBodyBytes = maxBody
	srv := NewServer(settings, WithProcessor(processor), WithClock(func() time.Time {
		return time.Unix(1730000000, 0).UTC()
	}))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	require.NoError(t, srv.Start(context.Background()))
	return srv
}

func TestServerAcceptsEvents(t *testing.T) {
	t.Parallel()
	router := NewRouter()
	sub := router.Subscribe(TypeAssetUpdated)
	defer sub.Close()
	srv := newTestServer(t, 1024, router)

	resp, err := http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.True(t, health.Listening)
	assert.Equal(t, ProtocolVersion, health.Version)
	assert.Nil(t, health.LastEvent)

	buf, err := json.Marshal(Event{Version: EventSchemaVersion, EventID: "evt-1", Type: "Asset.Updated", AssetIDs: []string{"meshes/cube.glb"}})
	require.NoError(t, err)
	resp, err = http.Post(srv.BaseURL()+"/events", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	var accepted eventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, accepted.Accepted)
	assert.Equal(t, []string{"evt-1"}, accepted.EventIDs)

	select {
	case evt := <-sub.Events:
		assert.Equal(t, TypeAssetUpdated, evt.Type)
		assert.True(t, evt.ServerTime.Equal(time.Unix(1730000000, 0)))
	case <-time.After(time.Second):
		t.Fatal("event not routed")
	}
	assert.EqualValues(t, 1, srv.Accepted())

	resp, err = http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	health = healthResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.EqualValues(t, 1, health.Accepted)
	require.NotNil(t, health.LastEvent)
	assert.True(t, health.LastEvent.Equal(time.Unix(1730000000, 0)))
}

func TestServerValidatesWholeBatch(t *testing.T) {
	t.Parallel()
	got := make(chan Event, 4)
	srv := newTestServer(t, 4096, EventProcessorFunc(func(e Event) error {
		got <- e
		return nil
	}))
	batch := `[{"event_id":"a","type":"asset.updated","asset_ids":["x.png"]},{"event_id":"b","type":"asset.updated"}]`
	resp, err := http.Post(srv.BaseURL()+"/events", "application/json", strings.NewReader(batch))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, got)
	assert.EqualValues(t, 1, srv.Rejected())

	batch = `[{"event_id":"a","type":"asset.updated","asset_ids":["x.png"]},{"event_id":"b","type":"asset.deleted","asset_ids":["y.png"]}]`
	resp, err = http.Post(srv.BaseURL()+"/events", "application/json", strings.NewReader(batch))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, got, 2)
	assert.Equal(t, "a", (<-got).EventID)
	assert.Equal(t, TypeAssetDeleted, (<-got).Type)
}

func TestServerEnforcesPayloadLimit(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 64, nil)
	payload := map[string]any{
		"event_id":  "evt",
		"type":      TypeAssetUpdated,
		"asset_ids": []string{strings.Repeat("a", 512)},
	}
	buf, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(srv.BaseURL()+"/events", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.EqualValues(t, 1, srv.Rejected())
	assert.Zero(t, srv.Accepted())
}

func TestHandlerRejectsWrongMethods(t *testing.T) {
	srv := NewServer(DefaultSettings())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerReportsPartialBatchOnProcessorError(t *testing.T) {
	srv := NewServer(DefaultSettings(), WithProcessor(EventProcessorFunc(func(e Event) error {
		if e.EventID == "b" {
			return assert.AnError
		}
		return nil
	})))
	batch := `[{"event_id":"a","type":"asset.updated","asset_ids":["x.png"]},{"event_id":"b","type":"asset.updated","asset_ids":["y.png"]}]`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(batch)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp eventResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, []string{"a"}, resp.EventIDs)
	assert.EqualValues(t, 1, srv.Accepted())
}

func TestDisabledServerDoesNotListen(t *testing.T) {
	settings := DefaultSettings()
	settings.Enabled = false
	assert.ErrorIs(t, NewServer(settings).Start(context.Background()), ErrServerDisabled)
}
