package editor

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/pzedit/internal/storage"
)

// ErrStateNotFound is returned when no session state was persisted yet.
var ErrStateNotFound = errors.New("editor: session state not found")

// State is what a session remembers between runs.
type State struct {
	LastScene string    `yaml:"last_scene"`
	SavedAt   time.Time `yaml:"saved_at"`
}

// LoadState reads the state stored under key.
func LoadState(store storage.Store, key string) (State, error) {
	data, err := store.Read(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("editor: read state: %w", err)
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("editor: parse state %s: %w", key, err)
	}
	return state, nil
}

// SaveState writes state under key.
func SaveState(store storage.Store, key string, state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("editor: encode state: %w", err)
	}
	if err := store.Write(key, data); err != nil {
		return fmt.Errorf("editor: save state: %w", err)
	}
	return nil
}

// ResumeScene picks the scene a new session should open: the remembered
// scene when the project still lists it, otherwise fallback.
func (s *Session) ResumeScene(fallback string) string {
	state, err := LoadState(s.store, s.stateKey)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			s.diagnostics.Warn("editor: %v", err)
		}
		return fallback
	}
	if state.LastScene == "" {
		return fallback
	}
	if _, _, err := s.ctx.Project.Scene(state.LastScene); err != nil {
		return fallback
	}
	return state.LastScene
}
