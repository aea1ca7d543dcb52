package editor

import (
	"fmt"
	"strings"

	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
)

// DefaultSceneKey is where Scaffold places the first scene.
const DefaultSceneKey = "scenes/main.pzscene"

// Scaffold writes a project document listing one empty scene, unless a
// project already exists under projectKey. It reports whether anything was
// written.
func Scaffold(store storage.Store, projectKey, name string) (bool, error) {
	key, err := storage.CleanKey(projectKey)
	if err != nil {
		return false, fmt.Errorf("editor: scaffold: %w", err)
	}
	exists, err := store.Exists(key)
	if err != nil {
		return false, fmt.Errorf("editor: scaffold: %w", err)
	}
	if exists {
		return false, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled"
	}

	main, fresh, err := scaffoldScene(store)
	if err != nil {
		return false, err
	}
	project := &scene.Project{
		Version: 1,
		Name:    name,
		Scenes:  []*scene.SceneEntry{{ID: main.ID, Name: main.Name, Path: DefaultSceneKey}},
	}
	projectDoc, err := document.New(project)
	if err != nil {
		return false, fmt.Errorf("editor: scaffold project: %w", err)
	}
	if fresh {
		sceneDoc, err := main.Encode()
		if err != nil {
			return false, fmt.Errorf("editor: scaffold scene: %w", err)
		}
		if err := writeDoc(store, DefaultSceneKey, sceneDoc); err != nil {
			return false, err
		}
	}
	if err := writeDoc(store, key, projectDoc); err != nil {
		return false, err
	}
	return true, nil
}

// scaffoldScene returns the scene already stored at DefaultSceneKey, or a
// new one that still has to be written.
func scaffoldScene(store storage.Store) (*scene.Scene, bool, error) {
	exists, err := store.Exists(DefaultSceneKey)
	if err != nil {
		return nil, false, fmt.Errorf("editor: scaffold: %w", err)
	}
	if !exists {
		return scene.New("Main"), true, nil
	}
	data, err := store.Read(DefaultSceneKey)
	if err != nil {
		return nil, false, fmt.Errorf("editor: scaffold: %w", err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("editor: scaffold: %w", err)
	}
	existing, err := scene.Decode(doc)
	if err != nil {
		return nil, false, fmt.Errorf("editor: scaffold: %w", err)
	}
	return existing, false, nil
}

func writeDoc(store storage.Store, key string, doc *document.Document) error {
	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("editor: render %s: %w", key, err)
	}
	if err := store.Write(key, data); err != nil {
		return fmt.Errorf("editor: write %s: %w", key, err)
	}
	return nil
}
