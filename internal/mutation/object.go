package mutation

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/scene"
)

// Rename changes an object's display name.
type Rename struct {
	ObjectID string
	Name     string

	previous string
}

func (m *Rename) Description() string {
	return fmt.Sprintf("Rename %s to %q", m.ObjectID, m.Name)
}

func (m *Rename) Apply(ctx *Context) error {
	previous, err := rename(ctx, m.ObjectID, m.Name)
	if err != nil {
		return err
	}
	m.previous = previous
	return nil
}

func (m *Rename) Undo(ctx *Context) error {
	_, err := rename(ctx, m.ObjectID, m.previous)
	return err
}

func rename(ctx *Context, objectID, name string) (string, error) {
	if err := ctx.requireScene(); err != nil {
		return "", err
	}
	obj, err := ctx.Scene.GetGameObject(objectID)
	if err != nil {
		return "", err
	}
	path, err := scene.PathTo(ctx.roots(), objectID, scene.ObjectName)
	if err != nil {
		return "", err
	}
	if err := requireDocParent(ctx, path); err != nil {
		return "", err
	}
	previous := obj.Name
	obj.Name = name
	if ctx.Runtime != nil && obj.Instance() != nil {
		if err := ctx.Runtime.SetName(obj.Instance(), name); err != nil {
			return "", fmt.Errorf("mutation: runtime name of %s: %w", objectID, err)
		}
	}
	if err := ctx.SceneDoc.Mutate(path, name, document.Options{CreateKey: true}); err != nil {
		return "", err
	}
	return previous, nil
}

// AddObject inserts a new object, with any children and components it
// already carries, under ParentID (empty for top level). A negative Index
// appends.
type AddObject struct {
	ParentID string
	Object   *scene.Object
	Index    int

	placed scene.Placement
}

func (m *AddObject) Description() string {
	return fmt.Sprintf("Add %q", m.Object.Name)
}

func (m *AddObject) Apply(ctx *Context) error {
	placed, err := insertObject(ctx, m.ParentID, m.Object, m.Index, nil)
	if err != nil {
		return err
	}
	m.placed = placed
	return nil
}

func (m *AddObject) Undo(ctx *Context) error {
	_, _, _, err := removeObject(ctx, m.Object.ID)
	return err
}

func (m *AddObject) Redo(ctx *Context) error {
	_, err := insertObject(ctx, m.placed.ParentID, m.Object, m.placed.Index, nil)
	return err
}

// insertObject adds obj to the model, spawns it and writes it to the
// document. node, when set, is the document form to insert verbatim.
func insertObject(ctx *Context, parentID string, obj *scene.Object, index int, node *yaml.Node) (scene.Placement, error) {
	if err := ctx.requireScene(); err != nil {
		return scene.Placement{}, err
	}
	if obj == nil {
		return scene.Placement{}, fmt.Errorf("mutation: add nil object: %w", ErrUsage)
	}
	childrenPath, err := scene.ChildrenPath(ctx.roots(), parentID)
	if err != nil {
		return scene.Placement{}, err
	}
	if err := requireSequenceSlot(ctx, childrenPath); err != nil {
		return scene.Placement{}, err
	}

	placed, err := ctx.Scene.AddObject(parentID, obj, index)
	if err != nil {
		return scene.Placement{}, err
	}
	if err := spawnObject(ctx, obj, parentRef(ctx, parentID), placed.Index); err != nil {
		return placed, err
	}
	if ctx.Deps != nil {
		ctx.Deps.Track(obj)
	}

	var value any = obj
	if node != nil {
		value = node
	}
	if err := ensureSequence(ctx, childrenPath); err != nil {
		return placed, err
	}
	if err := ctx.SceneDoc.Mutate(childrenPath.Index(placed.Index), value, document.Options{ArrayInsertion: true}); err != nil {
		return placed, err
	}
	return placed, nil
}

// removeObject detaches the object from the model, destroys its runtime
// subtree, drops its dependencies and deletes it from the document. The
// deleted document node is returned for restoring.
func removeObject(ctx *Context, objectID string) (*scene.Object, scene.Placement, *yaml.Node, error) {
	if err := ctx.requireScene(); err != nil {
		return nil, scene.Placement{}, nil, err
	}
	if _, err := ctx.Scene.GetGameObject(objectID); err != nil {
		return nil, scene.Placement{}, nil, err
	}
	path, err := scene.ObjectPath(ctx.roots(), objectID)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}
	node, err := ctx.SceneDoc.Get(path)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}

	obj, at, err := ctx.Scene.RemoveObject(objectID)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}
	if err := despawnObject(ctx, obj); err != nil {
		return obj, at, node, err
	}
	if ctx.Deps != nil {
		ctx.Deps.Untrack(obj)
	}
	if err := ctx.SceneDoc.Delete(path); err != nil {
		return obj, at, node, err
	}
	return obj, at, node, nil
}

// RemoveObject deletes an object with its whole subtree.
type RemoveObject struct {
	ObjectID string

	removed *scene.Object
	at      scene.Placement
	node    *yaml.Node
}

func (m *RemoveObject) Description() string {
	if m.removed != nil {
		return fmt.Sprintf("Remove %q", m.removed.Name)
	}
	return fmt.Sprintf("Remove %s", m.ObjectID)
}

func (m *RemoveObject) Apply(ctx *Context) error {
	obj, at, node, err := removeObject(ctx, m.ObjectID)
	if obj != nil {
		m.removed, m.at, m.node = obj, at, node
	}
	return err
}

// Undo reinserts the removed subtree at its old slot, restoring the
// document text (comments included) from the deleted node.
func (m *RemoveObject) Undo(ctx *Context) error {
	if m.removed == nil {
		return fmt.Errorf("mutation: undo remove of %s before apply: %w", m.ObjectID, ErrUsage)
	}
	_, err := insertObject(ctx, m.at.ParentID, m.removed, m.at.Index, m.node)
	return err
}

// Reparent moves an object under NewParentID (empty for top level) at
// Index, counted after the object has left its old slot. A negative Index
// appends.
type Reparent struct {
	ObjectID    string
	NewParentID string
	Index       int

	from scene.Placement
	to   scene.Placement
}

func (m *Reparent) Description() string {
	if m.NewParentID == "" {
		return fmt.Sprintf("Move %s to top level", m.ObjectID)
	}
	return fmt.Sprintf("Move %s under %s", m.ObjectID, m.NewParentID)
}

func (m *Reparent) Apply(ctx *Context) error {
	from, to, err := moveObject(ctx, m.ObjectID, m.NewParentID, m.Index)
	if err != nil {
		return err
	}
	m.from, m.to = from, to
	return nil
}

func (m *Reparent) Undo(ctx *Context) error {
	_, _, err := moveObject(ctx, m.ObjectID, m.from.ParentID, m.from.Index)
	return err
}

func (m *Reparent) Redo(ctx *Context) error {
	_, _, err := moveObject(ctx, m.ObjectID, m.to.ParentID, m.to.Index)
	return err
}

// moveObject relocates the object in all three representations. The
// document node is moved as is, so its comments travel with it.
func moveObject(ctx *Context, objectID, parentID string, index int) (from, to scene.Placement, err error) {
	if err := ctx.requireScene(); err != nil {
		return from, to, err
	}
	obj, err := ctx.Scene.GetGameObject(objectID)
	if err != nil {
		return from, to, err
	}
	src, err := scene.ObjectPath(ctx.roots(), objectID)
	if err != nil {
		return from, to, err
	}
	node, err := ctx.SceneDoc.Get(src)
	if err != nil {
		return from, to, err
	}
	if parentID != "" {
		parentPath, err := scene.ObjectPath(ctx.roots(), parentID)
		if err != nil {
			return from, to, err
		}
		if !ctx.SceneDoc.Has(parentPath) {
			return from, to, fmt.Errorf("mutation: parent %s: %w", parentID, document.ErrPathNotFound)
		}
	}
	slot, err := scene.ChildrenPath(ctx.roots(), parentID)
	if err != nil {
		return from, to, err
	}
	if err := requireSequenceSlot(ctx, slot); err != nil {
		return from, to, err
	}
	from, err = ctx.Scene.PlacementOf(objectID)
	if err != nil {
		return from, to, err
	}

	to, err = ctx.Scene.Reparent(objectID, parentID, index)
	if err != nil {
		return from, to, err
	}
	if ctx.Runtime != nil && obj.Instance() != nil {
		if err := ctx.Runtime.Reparent(obj.Instance(), parentRef(ctx, parentID), to.Index); err != nil {
			return from, to, fmt.Errorf("mutation: runtime reparent of %s: %w", objectID, err)
		}
	}
	if err := ctx.SceneDoc.Delete(src); err != nil {
		return from, to, err
	}
	dest, err := scene.ChildrenPath(ctx.roots(), parentID)
	if err != nil {
		return from, to, err
	}
	if err := ensureSequence(ctx, dest); err != nil {
		return from, to, err
	}
	if err := ctx.SceneDoc.Mutate(dest.Index(to.Index), node, document.Options{ArrayInsertion: true}); err != nil {
		return from, to, err
	}
	return from, to, nil
}
