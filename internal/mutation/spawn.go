package mutation

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/pzedit/internal/docpath"
	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/runtime"
	"github.com/kingrea/pzedit/internal/scene"
)

// Instantiate creates runtime instances for every object of the open scene
// and indexes its asset dependencies. Component loads are left pending.
func Instantiate(ctx *Context) error {
	if err := ctx.requireScene(); err != nil {
		return err
	}
	for _, root := range ctx.Scene.Objects {
		if err := spawnObject(ctx, root, nil, -1); err != nil {
			return err
		}
		if ctx.Deps != nil {
			ctx.Deps.Track(root)
		}
	}
	return nil
}

// Teardown destroys every runtime instance of the open scene and forgets
// its dependencies. The model and documents are left untouched.
func Teardown(ctx *Context) error {
	if ctx.Scene == nil {
		return nil
	}
	var errs []error
	for _, root := range ctx.Scene.Objects {
		if err := despawnObject(ctx, root); err != nil {
			errs = append(errs, err)
		}
	}
	if ctx.Deps != nil {
		ctx.Deps.Clear()
	}
	return errors.Join(errs...)
}

// Reconstruct asks the runtime to rebuild c in place from its current
// assets. A component whose earlier load failed is built afresh on its
// owner's instance. done runs when the load is wired, unless a newer
// construction or a removal superseded it. It reports false when neither c
// nor its owner has a live instance.
func Reconstruct(ctx *Context, c scene.Component, done func(error)) bool {
	if ctx.Runtime == nil {
		return false
	}
	base := c.AsComponentBase()
	ref := base.Instance()
	if ref == nil {
		owner := base.Owner()
		if owner == nil || owner.Instance() == nil {
			return false
		}
		buildComponent(ctx, owner.Instance(), c, done)
		return true
	}
	id := scene.ComponentID(c)
	token := ctx.claim(id)
	ctx.Track(ctx.Runtime.ReconstructComponent(ref, c), func(res runtime.Result) {
		if !ctx.current(id, token) {
			return
		}
		if res.Err != nil {
			ctx.Diagnostics.Error("runtime: reconstruct %s: %v", id, res.Err)
		}
		if done != nil {
			done(res.Err)
		}
	})
	return true
}

// spawnObject creates the instance subtree for obj under parent.
func spawnObject(ctx *Context, obj *scene.Object, parent scene.RuntimeRef, index int) error {
	if ctx.Runtime == nil {
		return nil
	}
	ref, err := ctx.Runtime.CreateObject(obj, parent, index)
	if err != nil {
		return fmt.Errorf("mutation: spawn %s: %w", obj.ID, err)
	}
	obj.SetInstance(ref)
	for _, c := range obj.Components {
		spawnComponent(ctx, ref, c)
	}
	for _, child := range obj.Children {
		if err := spawnObject(ctx, child, ref, -1); err != nil {
			return err
		}
	}
	return nil
}

// spawnComponent requests a component instance and tracks the load.
func spawnComponent(ctx *Context, owner scene.RuntimeRef, c scene.Component) {
	buildComponent(ctx, owner, c, nil)
}

func buildComponent(ctx *Context, owner scene.RuntimeRef, c scene.Component, done func(error)) {
	if ctx.Runtime == nil || owner == nil {
		return
	}
	id := scene.ComponentID(c)
	token := ctx.claim(id)
	ctx.Track(ctx.Runtime.CreateComponent(owner, c), func(res runtime.Result) {
		if !ctx.current(id, token) || c.AsComponentBase().Owner() == nil {
			if res.Err == nil && res.Ref != nil {
				_ = ctx.Runtime.DestroyComponent(res.Ref)
			}
			return
		}
		if res.Err != nil {
			ctx.Diagnostics.Error("runtime: component %s: %v", id, res.Err)
		} else {
			c.AsComponentBase().SetInstance(res.Ref)
		}
		if done != nil {
			done(res.Err)
		}
	})
}

// despawnObject destroys the instance subtree of obj and clears the
// model's runtime links.
func despawnObject(ctx *Context, obj *scene.Object) error {
	var err error
	if ctx.Runtime != nil && obj.Instance() != nil {
		err = ctx.Runtime.DestroyObject(obj.Instance())
	}
	obj.Walk(func(o *scene.Object) bool {
		o.SetInstance(nil)
		for _, c := range o.Components {
			ctx.release(scene.ComponentID(c))
			c.AsComponentBase().SetInstance(nil)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("mutation: despawn %s: %w", obj.ID, err)
	}
	return nil
}

// despawnComponent destroys the instance of c, if wired, and invalidates
// any load still in flight for it.
func despawnComponent(ctx *Context, c scene.Component) error {
	base := c.AsComponentBase()
	ctx.release(base.ID)
	ref := base.Instance()
	base.SetInstance(nil)
	if ctx.Runtime == nil || ref == nil {
		return nil
	}
	if err := ctx.Runtime.DestroyComponent(ref); err != nil {
		return fmt.Errorf("mutation: despawn component %s: %w", base.ID, err)
	}
	return nil
}

// parentRef returns the runtime handle of parentID, nil for top level.
func parentRef(ctx *Context, parentID string) scene.RuntimeRef {
	if parentID == "" {
		return nil
	}
	parent, err := ctx.Scene.GetGameObject(parentID)
	if err != nil {
		return nil
	}
	return parent.Instance()
}

// ensureSequence makes sure path addresses a sequence, writing an empty
// one over a missing key or a null value.
func ensureSequence(ctx *Context, path docpath.Path) error {
	if node, err := ctx.SceneDoc.Get(path); err == nil && node.Kind == yaml.SequenceNode {
		return nil
	}
	empty := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	return ctx.SceneDoc.Mutate(path, empty, document.Options{CreateKey: true})
}

// requireSequenceSlot checks that path can hold a sequence element: its
// parent exists and path itself is missing, null or a sequence.
func requireSequenceSlot(ctx *Context, path docpath.Path) error {
	if err := requireDocParent(ctx, path); err != nil {
		return err
	}
	node, err := ctx.SceneDoc.Get(path)
	if err != nil {
		return nil
	}
	if node.Kind == yaml.SequenceNode || isNull(node) {
		return nil
	}
	return fmt.Errorf("mutation: %s is not a sequence: %w", path, document.ErrPathNotFound)
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

// requireDocParent checks that everything above path exists in the scene
// document, so that a later write at path cannot fail on structure.
func requireDocParent(ctx *Context, path docpath.Path) error {
	parent, _, ok := path.Parent()
	if !ok {
		return nil
	}
	_, err := ctx.SceneDoc.Get(parent)
	return err
}
