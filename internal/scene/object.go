package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// NewID returns a fresh, lexically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// RuntimeRef is a non-owning handle to a live runtime instance.
type RuntimeRef interface {
	RuntimeID() string
}

// Transform places an object relative to its parent. Rotation is Euler
// angles in degrees.
type Transform struct {
	Position mgl32.Vec3 `yaml:"position,flow"`
	Rotation mgl32.Vec3 `yaml:"rotation,flow"`
	Scale    mgl32.Vec3 `yaml:"scale,flow"`
}

// IdentityTransform is the transform of a freshly created object.
func IdentityTransform() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

// Matrix returns the local model matrix (translate * rotate * scale).
func (t Transform) Matrix() mgl32.Mat4 {
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(t.Rotation.X()),
		mgl32.DegToRad(t.Rotation.Y()),
		mgl32.DegToRad(t.Rotation.Z()),
		mgl32.XYZ,
	)
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// Object is one node of the scene hierarchy. It owns its children and
// components; the parent link is a back-reference only.
type Object struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	Transform  Transform   `yaml:"transform,flow"`
	Components []Component `yaml:"components"`
	Children   []*Object   `yaml:"children"`

	parent   *Object
	instance RuntimeRef
}

// NewObject builds a detached object with a fresh id.
func NewObject(name string) *Object {
	return &Object{ID: NewID(), Name: name, Transform: IdentityTransform()}
}

// Parent returns the enclosing object, or nil for top-level objects.
func (o *Object) Parent() *Object { return o.parent }

// Instance returns the live runtime counterpart, if one has been wired.
func (o *Object) Instance() RuntimeRef { return o.instance }

// SetInstance wires or clears (nil) the runtime counterpart.
func (o *Object) SetInstance(ref RuntimeRef) { o.instance = ref }

// Walk visits o and its descendants depth-first, parents before children.
// Returning false from fn skips the subtree.
func (o *Object) Walk(fn func(*Object) bool) {
	if !fn(o) {
		return
	}
	for _, child := range o.Children {
		child.Walk(fn)
	}
}

// ComponentIndex returns the position of a component on o, or -1.
func (o *Object) ComponentIndex(componentID string) int {
	for i, c := range o.Components {
		if ComponentID(c) == componentID {
			return i
		}
	}
	return -1
}

// objectDoc is the document shape of an Object; components are encoded
// separately so they carry their type discriminator.
type objectDoc struct {
	ID         string       `yaml:"id"`
	Name       string       `yaml:"name"`
	Transform  Transform    `yaml:"transform,flow"`
	Components []yaml.Node `yaml:"components"`
	Children   []*Object    `yaml:"children"`
}

// MarshalYAML implements yaml.Marshaler.
func (o *Object) MarshalYAML() (any, error) {
	out := objectDoc{
		ID:         o.ID,
		Name:       o.Name,
		Transform:  o.Transform,
		Components: make([]yaml.Node, 0, len(o.Components)),
		Children:   o.Children,
	}
	if out.Children == nil {
		out.Children = []*Object{}
	}
	for _, c := range o.Components {
		node, err := EncodeComponent(c)
		if err != nil {
			return nil, fmt.Errorf("scene: object %s: %w", o.ID, err)
		}
		out.Components = append(out.Components, *node)
	}
	return out, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Object) UnmarshalYAML(value *yaml.Node) error {
	in := objectDoc{Transform: IdentityTransform()}
	if err := value.Decode(&in); err != nil {
		return err
	}
	if in.ID == "" {
		return fmt.Errorf("scene: object %q at line %d has no id", in.Name, value.Line)
	}
	o.ID = in.ID
	o.Name = in.Name
	o.Transform = in.Transform
	o.Children = in.Children
	o.Components = make([]Component, 0, len(in.Components))
	for i := range in.Components {
		c, err := DecodeComponent(&in.Components[i])
		if err != nil {
			return fmt.Errorf("scene: object %s: %w", o.ID, err)
		}
		c.AsComponentBase().owner = o
		o.Components = append(o.Components, c)
	}
	for _, child := range o.Children {
		child.parent = o
	}
	return nil
}

// EncodeComponent renders c as a mapping with `type` right after `id`.
func EncodeComponent(c Component) (*yaml.Node, error) {
	var node yaml.Node
	if err := node.Encode(c); err != nil {
		return nil, fmt.Errorf("encode %s component: %w", c.Kind(), err)
	}
	typeKey := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "type"}
	typeValue := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(c.Kind())}
	at := 0
	if len(node.Content) >= 2 && node.Content[0].Value == "id" {
		at = 2
	}
	content := make([]*yaml.Node, 0, len(node.Content)+2)
	content = append(content, node.Content[:at]...)
	content = append(content, typeKey, typeValue)
	content = append(content, node.Content[at:]...)
	node.Content = content
	return &node, nil
}

// DecodeComponent builds the variant named by the node's `type` key.
func DecodeComponent(node *yaml.Node) (Component, error) {
	var head struct {
		ID   string `yaml:"id"`
		Type Kind   `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, fmt.Errorf("decode component: %w", err)
	}
	if head.ID == "" {
		return nil, fmt.Errorf("component at line %d has no id", node.Line)
	}
	c, err := blankComponent(head.Type)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", head.ID, err)
	}
	if err := node.Decode(c); err != nil {
		return nil, fmt.Errorf("decode component %s: %w", head.ID, err)
	}
	return c, nil
}
