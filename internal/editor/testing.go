package editor

import (
	"context"
	"time"

	"github.com/kingrea/pzedit/internal/storage"
)

// TestProjectKey is the project key NewTestSession opens.
const TestProjectKey = "project.yaml"

// NewTestSession opens project.yaml from an in-memory store seeded with
// files and loads the first scene it lists.
func NewTestSession(files map[string][]byte, opts ...Option) (*Session, error) {
	s, err := Open(storage.NewMemory(files), TestProjectKey, opts...)
	if err != nil {
		return nil, err
	}
	if len(s.Project().Scenes) == 0 {
		return s, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.LoadScene(ctx, ""); err != nil {
		return nil, err
	}
	return s, nil
}
