package scene

import (
	"errors"
	"fmt"

	"github.com/kingrea/pzedit/internal/document"
)

var (
	// ErrNotFound is returned when an id is absent from the model.
	ErrNotFound = errors.New("scene: not found")
	// ErrDuplicateID is returned when an edit would introduce an id twice.
	ErrDuplicateID = errors.New("scene: duplicate id")
	// ErrInvalidHierarchy is returned for out-of-range slots and cycles.
	ErrInvalidHierarchy = errors.New("scene: invalid hierarchy")
)

// Scene is the editable model of one scene document.
type Scene struct {
	Version int       `yaml:"version"`
	ID      string    `yaml:"id"`
	Name    string    `yaml:"name"`
	Objects []*Object `yaml:"objects"`

	objects    map[string]*Object
	components map[string]Component
}

// Entity is the result of an id lookup: exactly one field is set.
type Entity struct {
	Object    *Object
	Component Component
}

// Placement locates an object or component inside its container.
// ParentID is empty for top-level objects.
type Placement struct {
	ParentID string
	Index    int
}

// New returns an empty scene with a fresh id.
func New(name string) *Scene {
	s := &Scene{Version: 1, ID: NewID(), Name: name, Objects: []*Object{}}
	s.objects = map[string]*Object{}
	s.components = map[string]Component{}
	return s
}

// Decode builds a scene model from its document.
func Decode(doc *document.Document) (*Scene, error) {
	var s Scene
	if err := doc.Decode(nil, &s); err != nil {
		return nil, fmt.Errorf("scene: decode: %w", err)
	}
	if s.Objects == nil {
		s.Objects = []*Object{}
	}
	if err := s.reindex(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Encode renders the model as a fresh document.
func (s *Scene) Encode() (*document.Document, error) {
	return document.New(s)
}

func (s *Scene) reindex() error {
	s.objects = map[string]*Object{}
	s.components = map[string]Component{}
	for _, root := range s.Objects {
		root.parent = nil
		if err := s.index(root); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scene) index(o *Object) error {
	if err := s.checkFree(o); err != nil {
		return err
	}
	o.Walk(func(n *Object) bool {
		s.objects[n.ID] = n
		for _, c := range n.Components {
			c.AsComponentBase().owner = n
			s.components[ComponentID(c)] = c
		}
		for _, child := range n.Children {
			child.parent = n
		}
		return true
	})
	return nil
}

// checkFree verifies that no id in o's subtree is already indexed or
// repeated within the subtree.
func (s *Scene) checkFree(o *Object) error {
	seen := map[string]bool{}
	var err error
	o.Walk(func(n *Object) bool {
		if err != nil {
			return false
		}
		if n.ID == "" {
			err = fmt.Errorf("scene: object %q has no id: %w", n.Name, ErrInvalidHierarchy)
			return false
		}
		if seen[n.ID] || s.objects[n.ID] != nil || s.components[n.ID] != nil {
			err = fmt.Errorf("scene: object %s: %w", n.ID, ErrDuplicateID)
			return false
		}
		seen[n.ID] = true
		for _, c := range n.Components {
			id := ComponentID(c)
			if id == "" {
				err = fmt.Errorf("scene: %s component on %s has no id: %w", c.Kind(), n.ID, ErrInvalidHierarchy)
				return false
			}
			if seen[id] || s.objects[id] != nil || s.components[id] != nil {
				err = fmt.Errorf("scene: component %s: %w", id, ErrDuplicateID)
				return false
			}
			seen[id] = true
		}
		return true
	})
	return err
}

func (s *Scene) unindex(o *Object) {
	o.Walk(func(n *Object) bool {
		delete(s.objects, n.ID)
		for _, c := range n.Components {
			delete(s.components, ComponentID(c))
		}
		return true
	})
}

// GetGameObject returns the object with id.
func (s *Scene) GetGameObject(id string) (*Object, error) {
	if o, ok := s.objects[id]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("scene: object %s: %w", id, ErrNotFound)
}

// GetComponent returns the component with id.
func (s *Scene) GetComponent(id string) (Component, error) {
	if c, ok := s.components[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("scene: component %s: %w", id, ErrNotFound)
}

// GetByID resolves id to an object or a component.
func (s *Scene) GetByID(id string) (Entity, error) {
	if o, ok := s.objects[id]; ok {
		return Entity{Object: o}, nil
	}
	if c, ok := s.components[id]; ok {
		return Entity{Component: c}, nil
	}
	return Entity{}, fmt.Errorf("scene: id %s: %w", id, ErrNotFound)
}

// Len returns the number of objects in the scene.
func (s *Scene) Len() int {
	return len(s.objects)
}

// Walk visits every object depth-first in document order.
func (s *Scene) Walk(fn func(*Object) bool) {
	for _, root := range s.Objects {
		root.Walk(fn)
	}
}

// siblings returns the collection holding parentID's children; an empty
// parentID selects the top level.
func (s *Scene) siblings(parentID string) (*[]*Object, *Object, error) {
	if parentID == "" {
		return &s.Objects, nil, nil
	}
	parent, err := s.GetGameObject(parentID)
	if err != nil {
		return nil, nil, err
	}
	return &parent.Children, parent, nil
}

// PlacementOf returns where the object with id sits.
func (s *Scene) PlacementOf(id string) (Placement, error) {
	o, err := s.GetGameObject(id)
	if err != nil {
		return Placement{}, err
	}
	list := s.Objects
	parentID := ""
	if o.parent != nil {
		list = o.parent.Children
		parentID = o.parent.ID
	}
	for i, sib := range list {
		if sib == o {
			return Placement{ParentID: parentID, Index: i}, nil
		}
	}
	return Placement{}, fmt.Errorf("scene: object %s is detached from its parent: %w", id, ErrInvalidHierarchy)
}

// AddObject inserts obj (with its subtree) under parentID at index. A
// negative index appends.
func (s *Scene) AddObject(parentID string, obj *Object, index int) (Placement, error) {
	if obj == nil {
		return Placement{}, fmt.Errorf("scene: add nil object: %w", ErrInvalidHierarchy)
	}
	list, parent, err := s.siblings(parentID)
	if err != nil {
		return Placement{}, err
	}
	if index < 0 {
		index = len(*list)
	}
	if index > len(*list) {
		return Placement{}, fmt.Errorf("scene: index %d out of range for %d children: %w", index, len(*list), ErrInvalidHierarchy)
	}
	if err := s.checkFree(obj); err != nil {
		return Placement{}, err
	}
	*list = insertAt(*list, index, obj)
	obj.parent = parent
	if err := s.index(obj); err != nil {
		return Placement{}, err
	}
	return Placement{ParentID: parentID, Index: index}, nil
}

// RemoveObject detaches the object with id and its subtree, returning it
// and where it was.
func (s *Scene) RemoveObject(id string) (*Object, Placement, error) {
	at, err := s.PlacementOf(id)
	if err != nil {
		return nil, Placement{}, err
	}
	list, _, err := s.siblings(at.ParentID)
	if err != nil {
		return nil, Placement{}, err
	}
	obj := (*list)[at.Index]
	*list = removeAt(*list, at.Index)
	obj.parent = nil
	s.unindex(obj)
	return obj, at, nil
}

// Reparent moves the object with id under newParentID at index, counted
// in the destination list after the object has left its old slot. A
// negative index appends.
func (s *Scene) Reparent(id, newParentID string, index int) (Placement, error) {
	obj, err := s.GetGameObject(id)
	if err != nil {
		return Placement{}, err
	}
	from, err := s.PlacementOf(id)
	if err != nil {
		return Placement{}, err
	}
	dest, parent, err := s.siblings(newParentID)
	if err != nil {
		return Placement{}, err
	}
	for p := parent; p != nil; p = p.parent {
		if p == obj {
			return Placement{}, fmt.Errorf("scene: cannot move %s under its own subtree: %w", id, ErrInvalidHierarchy)
		}
	}
	limit := len(*dest)
	if from.ParentID == newParentID {
		limit--
	}
	if index < 0 {
		index = limit
	}
	if index > limit {
		return Placement{}, fmt.Errorf("scene: index %d out of range for %d children: %w", index, limit, ErrInvalidHierarchy)
	}
	src, _, _ := s.siblings(from.ParentID)
	*src = removeAt(*src, from.Index)
	*dest = insertAt(*dest, index, obj)
	obj.parent = parent
	return Placement{ParentID: newParentID, Index: index}, nil
}

// AddComponent attaches c to the object with objectID at index. A
// negative index appends.
func (s *Scene) AddComponent(objectID string, c Component, index int) (int, error) {
	obj, err := s.GetGameObject(objectID)
	if err != nil {
		return 0, err
	}
	id := ComponentID(c)
	if id == "" {
		return 0, fmt.Errorf("scene: %s component has no id: %w", c.Kind(), ErrInvalidHierarchy)
	}
	if s.components[id] != nil || s.objects[id] != nil {
		return 0, fmt.Errorf("scene: component %s: %w", id, ErrDuplicateID)
	}
	if index < 0 {
		index = len(obj.Components)
	}
	if index > len(obj.Components) {
		return 0, fmt.Errorf("scene: index %d out of range for %d components: %w", index, len(obj.Components), ErrInvalidHierarchy)
	}
	obj.Components = insertAt(obj.Components, index, c)
	c.AsComponentBase().owner = obj
	s.components[id] = c
	return index, nil
}

// RemoveComponent detaches the component with id, returning it and its
// former placement on the owner.
func (s *Scene) RemoveComponent(id string) (Component, Placement, error) {
	c, err := s.GetComponent(id)
	if err != nil {
		return nil, Placement{}, err
	}
	owner := c.AsComponentBase().owner
	if owner == nil {
		return nil, Placement{}, fmt.Errorf("scene: component %s has no owner: %w", id, ErrInvalidHierarchy)
	}
	index := owner.ComponentIndex(id)
	if index < 0 {
		return nil, Placement{}, fmt.Errorf("scene: component %s missing from %s: %w", id, owner.ID, ErrInvalidHierarchy)
	}
	owner.Components = removeAt(owner.Components, index)
	c.AsComponentBase().owner = nil
	delete(s.components, id)
	return c, Placement{ParentID: owner.ID, Index: index}, nil
}

func insertAt[T any](list []T, index int, v T) []T {
	var zero T
	list = append(list, zero)
	copy(list[index+1:], list[index:])
	list[index] = v
	return list
}

func removeAt[T any](list []T, index int) []T {
	return append(list[:index:index], list[index+1:]...)
}
