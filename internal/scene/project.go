package scene

import (
	"fmt"

	"github.com/kingrea/pzedit/internal/document"
)

// Project lists the scenes of a project and where their documents live.
type Project struct {
	Version int           `yaml:"version"`
	Name    string        `yaml:"name"`
	Scenes  []*SceneEntry `yaml:"scenes"`
}

// SceneEntry points at one scene document by storage key.
type SceneEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// DecodeProject builds the project model from its document.
func DecodeProject(doc *document.Document) (*Project, error) {
	var p Project
	if err := doc.Decode(nil, &p); err != nil {
		return nil, fmt.Errorf("scene: decode project: %w", err)
	}
	seen := map[string]bool{}
	for _, entry := range p.Scenes {
		if entry.ID == "" {
			return nil, fmt.Errorf("scene: project scene %q has no id", entry.Path)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("scene: project scene %s: %w", entry.ID, ErrDuplicateID)
		}
		seen[entry.ID] = true
	}
	return &p, nil
}

// Scene returns the entry with id and its position in Scenes.
func (p *Project) Scene(id string) (*SceneEntry, int, error) {
	for i, entry := range p.Scenes {
		if entry.ID == id {
			return entry, i, nil
		}
	}
	return nil, -1, fmt.Errorf("scene: scene %s: %w", id, ErrNotFound)
}

// SceneByPath returns the entry stored under key.
func (p *Project) SceneByPath(key string) (*SceneEntry, error) {
	for _, entry := range p.Scenes {
		if entry.Path == key {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("scene: scene at %s: %w", key, ErrNotFound)
}
