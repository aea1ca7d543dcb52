package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/slices"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported inbound event version.
	EventSchemaVersion = 1
)

// Event types understood by the editor.
const (
	TypeAssetUpdated = "asset.updated"
	TypeAssetDeleted = "asset.deleted"
	TypeShutdown     = "bridge.shutdown"
)

// Event is one asset notification, posted by the desktop shell or produced
// by the filesystem watcher.
type Event struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	Sequence   int64           `json:"sequence"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	AssetIDs   []string        `json:"asset_ids"`
	ClientTime time.Time       `json:"client_time"`
	ServerTime time.Time       `json:"server_time"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewAssetEvent builds an event with a fresh id.
func NewAssetEvent(kind, source string, assetIDs ...string) Event {
	e := Event{
		Version:    EventSchemaVersion,
		EventID:    ulid.Make().String(),
		Type:       kind,
		Source:     source,
		AssetIDs:   assetIDs,
		ClientTime: time.Now().UTC(),
	}
	e.Normalize()
	return e
}

// Normalize applies defaults and canonical formatting before validation.
// Asset ids are slash-separated, sorted and unique.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.Source = strings.TrimSpace(e.Source)
	ids := make([]string, 0, len(e.AssetIDs))
	for _, id := range e.AssetIDs {
		id = strings.ReplaceAll(strings.TrimSpace(id), "\\", "/")
		if id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	e.AssetIDs = slices.Compact(ids)
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for incoming events.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	switch e.Type {
	case TypeAssetUpdated, TypeAssetDeleted:
		if len(e.AssetIDs) == 0 {
			return fmt.Errorf("%s requires asset_ids", e.Type)
		}
	case TypeShutdown:
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("type %q not supported", e.Type)
	}
	return nil
}

// EventProcessor consumes validated events.
type EventProcessor interface {
	HandleEvent(Event) error
}

// EventProcessorFunc adapts a function into an EventProcessor.
type EventProcessorFunc func(Event) error

// HandleEvent executes f(e).
func (f EventProcessorFunc) HandleEvent(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Version   string     `json:"version"`
	Listening bool       `json:"listening"`
	Accepted  int64      `json:"accepted"`
	Rejected  int64      `json:"rejected"`
	LastEvent *time.Time `json:"last_event,omitempty"`
}

type eventResponse struct {
	Accepted   int       `json:"accepted"`
	EventIDs   []string  `json:"event_ids"`
	ServerTime time.Time `json:"server_time"`
}
