package mutation

import (
	"errors"
	"fmt"

	"github.com/kingrea/pzedit/internal/docpath"
	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
)

// MoveScene relocates a scene document: the project entry, the project
// document's path field and the stored file all move together.
type MoveScene struct {
	SceneID string
	NewPath string

	oldPath string
}

func (m *MoveScene) Description() string {
	return fmt.Sprintf("Move scene %s to %s", m.SceneID, m.NewPath)
}

func (m *MoveScene) Apply(ctx *Context) error {
	old, err := moveScene(ctx, m.SceneID, m.NewPath)
	if err != nil {
		return err
	}
	m.oldPath = old
	return nil
}

func (m *MoveScene) Undo(ctx *Context) error {
	if m.oldPath == "" {
		return fmt.Errorf("mutation: undo move of scene %s before apply: %w", m.SceneID, ErrUsage)
	}
	_, err := moveScene(ctx, m.SceneID, m.oldPath)
	return err
}

func sceneEntryPath(index int) docpath.Path {
	return docpath.Resolve(docpath.Then(docpath.Then(scene.ProjectScenes, docpath.At[*scene.SceneEntry](index)), scene.EntryPath))
}

func moveScene(ctx *Context, sceneID, newPath string) (string, error) {
	if ctx.Project == nil || ctx.ProjectDoc == nil {
		return "", fmt.Errorf("mutation: no project is open: %w", ErrUsage)
	}
	entry, index, err := ctx.Project.Scene(sceneID)
	if err != nil {
		return "", fmt.Errorf("mutation: move scene: %w", err)
	}
	newKey, err := storage.CleanKey(newPath)
	if err != nil {
		return "", err
	}
	oldKey := entry.Path
	if newKey == oldKey {
		return oldKey, nil
	}
	path := sceneEntryPath(index)
	parent, _, _ := path.Parent()
	if !ctx.ProjectDoc.Has(parent) {
		return "", fmt.Errorf("mutation: scene %s at %s: %w", sceneID, parent, document.ErrPathNotFound)
	}
	if other, err := ctx.Project.SceneByPath(newKey); err == nil {
		return "", fmt.Errorf("mutation: %s already holds scene %s: %w", newKey, other.ID, storage.ErrExist)
	}
	if ctx.Storage != nil {
		if ok, err := ctx.Storage.Exists(oldKey); err != nil {
			return "", err
		} else if !ok {
			return "", fmt.Errorf("mutation: scene %s file %s: %w", sceneID, oldKey, storage.ErrNotExist)
		}
		if ok, err := ctx.Storage.Exists(newKey); err != nil {
			return "", err
		} else if ok {
			return "", fmt.Errorf("mutation: move scene %s: %s: %w", sceneID, newKey, storage.ErrExist)
		}
	}

	if err := ctx.ProjectDoc.Mutate(path, newKey, document.Options{CreateKey: true}); err != nil {
		return "", err
	}
	entry.Path = newKey
	if ctx.Storage == nil {
		return oldKey, nil
	}
	if err := storage.Move(ctx.Storage, oldKey, newKey); err != nil {
		entry.Path = oldKey
		if rerr := ctx.ProjectDoc.Mutate(path, oldKey, document.Options{}); rerr != nil {
			return "", errors.Join(err, rerr)
		}
		return "", err
	}
	if ctx.SceneKey == oldKey {
		ctx.SceneKey = newKey
	}
	if ctx.ProjectKey != "" {
		data, err := ctx.ProjectDoc.Bytes()
		if err != nil {
			return "", err
		}
		if err := ctx.Storage.Write(ctx.ProjectKey, data); err != nil {
			return "", fmt.Errorf("mutation: save project after moving %s: %w", sceneID, err)
		}
	}
	return oldKey, nil
}
