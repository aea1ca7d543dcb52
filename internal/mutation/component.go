package mutation

import (
	"fmt"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/scene"
)

// AddComponent attaches a component to an object at Index. A negative
// Index appends.
type AddComponent struct {
	ObjectID  string
	Component scene.Component
	Index     int

	placed int
}

func (m *AddComponent) Description() string {
	return fmt.Sprintf("Add %s to %s", m.Component.Kind(), m.ObjectID)
}

func (m *AddComponent) Apply(ctx *Context) error {
	placed, err := insertComponent(ctx, m.ObjectID, m.Component, m.Index, nil)
	if err != nil {
		return err
	}
	m.placed = placed
	return nil
}

func (m *AddComponent) Undo(ctx *Context) error {
	_, _, _, err := removeComponent(ctx, scene.ComponentID(m.Component))
	return err
}

func (m *AddComponent) Redo(ctx *Context) error {
	_, err := insertComponent(ctx, m.ObjectID, m.Component, m.placed, nil)
	return err
}

func insertComponent(ctx *Context, objectID string, c scene.Component, index int, node *yaml.Node) (int, error) {
	if err := ctx.requireScene(); err != nil {
		return 0, err
	}
	if c == nil {
		return 0, fmt.Errorf("mutation: add nil component: %w", ErrUsage)
	}
	obj, err := ctx.Scene.GetGameObject(objectID)
	if err != nil {
		return 0, err
	}
	path, err := scene.ComponentsPath(ctx.roots(), objectID)
	if err != nil {
		return 0, err
	}
	if err := requireSequenceSlot(ctx, path); err != nil {
		return 0, err
	}
	if node == nil {
		if node, err = scene.EncodeComponent(c); err != nil {
			return 0, fmt.Errorf("mutation: %w", err)
		}
	}

	placed, err := ctx.Scene.AddComponent(objectID, c, index)
	if err != nil {
		return 0, err
	}
	spawnComponent(ctx, obj.Instance(), c)
	if ctx.Deps != nil {
		ctx.Deps.Register(c, obj, scene.AssetIDsOf(c)...)
	}
	if err := ensureSequence(ctx, path); err != nil {
		return placed, err
	}
	if err := ctx.SceneDoc.Mutate(path.Index(placed), node, document.Options{ArrayInsertion: true}); err != nil {
		return placed, err
	}
	return placed, nil
}

func removeComponent(ctx *Context, componentID string) (scene.Component, scene.Placement, *yaml.Node, error) {
	if err := ctx.requireScene(); err != nil {
		return nil, scene.Placement{}, nil, err
	}
	c, err := ctx.Scene.GetComponent(componentID)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}
	owner := c.AsComponentBase().Owner()
	if owner == nil {
		return nil, scene.Placement{}, nil, fmt.Errorf("mutation: component %s has no owner: %w", componentID, scene.ErrInvalidHierarchy)
	}
	path, err := scene.ComponentPath(ctx.roots(), owner.ID, componentID)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}
	node, err := ctx.SceneDoc.Get(path)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}

	removed, at, err := ctx.Scene.RemoveComponent(componentID)
	if err != nil {
		return nil, scene.Placement{}, nil, err
	}
	if err := despawnComponent(ctx, removed); err != nil {
		return removed, at, node, err
	}
	if ctx.Deps != nil && ctx.Deps.Has(componentID) {
		ctx.Deps.Unregister(componentID)
	}
	if err := ctx.SceneDoc.Delete(path); err != nil {
		return removed, at, node, err
	}
	return removed, at, node, nil
}

// RemoveComponent detaches a component from its object.
type RemoveComponent struct {
	ComponentID string

	removed scene.Component
	at      scene.Placement
	node    *yaml.Node
}

func (m *RemoveComponent) Description() string {
	return fmt.Sprintf("Remove component %s", m.ComponentID)
}

func (m *RemoveComponent) Apply(ctx *Context) error {
	c, at, node, err := removeComponent(ctx, m.ComponentID)
	if c != nil {
		m.removed, m.at, m.node = c, at, node
	}
	return err
}

func (m *RemoveComponent) Undo(ctx *Context) error {
	if m.removed == nil {
		return fmt.Errorf("mutation: undo remove of %s before apply: %w", m.ComponentID, ErrUsage)
	}
	_, err := insertComponent(ctx, m.at.ParentID, m.removed, m.at.Index, m.node)
	return err
}

// SetComponentField assigns one field of a component by its document key.
// Changing an asset reference rebuilds the runtime component and its
// dependency record.
type SetComponentField struct {
	ComponentID string
	Key         string
	Value       any

	previous any
}

func (m *SetComponentField) Description() string {
	return fmt.Sprintf("Set %s of %s", m.Key, m.ComponentID)
}

func (m *SetComponentField) Apply(ctx *Context) error {
	previous, err := setComponentField(ctx, m.ComponentID, m.Key, m.Value)
	if err != nil {
		return err
	}
	m.previous = previous
	return nil
}

func (m *SetComponentField) Undo(ctx *Context) error {
	_, err := setComponentField(ctx, m.ComponentID, m.Key, m.previous)
	return err
}

func setComponentField(ctx *Context, componentID, key string, value any) (any, error) {
	if err := ctx.requireScene(); err != nil {
		return nil, err
	}
	c, err := ctx.Scene.GetComponent(componentID)
	if err != nil {
		return nil, err
	}
	owner := c.AsComponentBase().Owner()
	if owner == nil {
		return nil, fmt.Errorf("mutation: component %s has no owner: %w", componentID, scene.ErrInvalidHierarchy)
	}
	base, err := scene.ComponentPath(ctx.roots(), owner.ID, componentID)
	if err != nil {
		return nil, err
	}
	if !ctx.SceneDoc.Has(base) {
		return nil, fmt.Errorf("mutation: component %s at %s: %w", componentID, base, document.ErrPathNotFound)
	}
	previous, err := scene.GetField(c, key)
	if err != nil {
		return nil, err
	}
	trial, err := scene.CloneComponent(c)
	if err != nil {
		return nil, err
	}
	if err := scene.SetField(trial, key, value); err != nil {
		return nil, err
	}
	before := scene.AssetIDsOf(c)

	if err := scene.SetField(c, key, value); err != nil {
		return nil, err
	}
	current, err := scene.GetField(c, key)
	if err != nil {
		return nil, err
	}
	after := scene.AssetIDsOf(c)
	assetsChanged := !slices.Equal(before, after)
	if err := pushComponent(ctx, c, assetsChanged); err != nil {
		return nil, err
	}
	if assetsChanged && ctx.Deps != nil {
		ctx.Deps.Replace(c, owner, after...)
	}
	if err := ctx.SceneDoc.Mutate(base.Field(key), current, document.Options{CreateKey: true}); err != nil {
		return nil, err
	}
	return previous, nil
}

// pushComponent forwards a field change to the runtime: an in-place update,
// or a full reconstruction when the asset set changed.
func pushComponent(ctx *Context, c scene.Component, reconstruct bool) error {
	if reconstruct {
		Reconstruct(ctx, c, nil)
		return nil
	}
	ref := c.AsComponentBase().Instance()
	if ctx.Runtime == nil || ref == nil {
		return nil
	}
	if err := ctx.Runtime.UpdateComponent(ref, c); err != nil {
		return fmt.Errorf("mutation: runtime update of %s: %w", scene.ComponentID(c), err)
	}
	return nil
}
