package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/kingrea/pzedit/internal/docpath"
)

// Selectors shared by the model and its documents.
var (
	SceneObjects      = docpath.Field[*Scene, []*Object]("Objects")
	ObjectName        = docpath.Field[*Object, string]("Name")
	ObjectTransform   = docpath.Field[*Object, Transform]("Transform")
	ObjectComponents  = docpath.Field[*Object, []Component]("Components")
	ObjectChildren    = docpath.Field[*Object, []*Object]("Children")
	TransformPosition = docpath.Field[Transform, mgl32.Vec3]("Position")
	TransformRotation = docpath.Field[Transform, mgl32.Vec3]("Rotation")
	TransformScale    = docpath.Field[Transform, mgl32.Vec3]("Scale")

	ProjectScenes = docpath.Field[*Project, []*SceneEntry]("Scenes")
	EntryPath     = docpath.Field[*SceneEntry, string]("Path")
	EntryName     = docpath.Field[*SceneEntry, string]("Name")
)

// ObjectPath resolves the document path of the object with id among roots.
// Each level checks its own siblings before descending into their subtrees
// depth-first; the first match wins.
func ObjectPath(roots []*Object, id string) (docpath.Path, error) {
	if p, ok := findPath(roots, id, SceneObjects.Path()); ok {
		return p, nil
	}
	return nil, fmt.Errorf("scene: object %s: %w", id, ErrNotFound)
}

func findPath(siblings []*Object, id string, base docpath.Path) (docpath.Path, bool) {
	for i, o := range siblings {
		if o.ID == id {
			return base.Index(i), true
		}
	}
	children := ObjectChildren.Path()
	for i, o := range siblings {
		if len(o.Children) == 0 {
			continue
		}
		if p, ok := findPath(o.Children, id, base.Index(i).Concat(children)); ok {
			return p, true
		}
	}
	return nil, false
}

// PathTo resolves rel relative to the object with id.
func PathTo[To any](roots []*Object, id string, rel docpath.Selector[*Object, To]) (docpath.Path, error) {
	base, err := ObjectPath(roots, id)
	if err != nil {
		return nil, err
	}
	return base.Concat(docpath.Resolve(rel)), nil
}

// ChildrenPath addresses the children sequence of parentID, or the
// top-level objects sequence when parentID is empty.
func ChildrenPath(roots []*Object, parentID string) (docpath.Path, error) {
	if parentID == "" {
		return SceneObjects.Path(), nil
	}
	return PathTo(roots, parentID, ObjectChildren)
}

// ComponentsPath addresses the components sequence of objectID.
func ComponentsPath(roots []*Object, objectID string) (docpath.Path, error) {
	return PathTo(roots, objectID, ObjectComponents)
}

// ComponentPath resolves the document path of a component on objectID.
func ComponentPath(roots []*Object, objectID, componentID string) (docpath.Path, error) {
	obj, ok := findObject(roots, objectID)
	if !ok {
		return nil, fmt.Errorf("scene: object %s: %w", objectID, ErrNotFound)
	}
	index := obj.ComponentIndex(componentID)
	if index < 0 {
		return nil, fmt.Errorf("scene: component %s on %s: %w", componentID, objectID, ErrNotFound)
	}
	base, err := ComponentsPath(roots, objectID)
	if err != nil {
		return nil, err
	}
	return base.Index(index), nil
}

func findObject(roots []*Object, id string) (*Object, bool) {
	var found *Object
	for _, root := range roots {
		root.Walk(func(o *Object) bool {
			if found == nil && o.ID == id {
				found = o
			}
			return found == nil
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}
