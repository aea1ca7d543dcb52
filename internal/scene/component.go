package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Kind discriminates component variants in documents (`type: mesh`).
type Kind string

const (
	KindMesh             Kind = "mesh"
	KindScript           Kind = "script"
	KindCamera           Kind = "camera"
	KindDirectionalLight Kind = "directional_light"
	KindPointLight       Kind = "point_light"
)

// Component is implemented by every component variant.
type Component interface {
	Kind() Kind
	AsComponentBase() *ComponentBase
}

// AssetDependent is implemented by components that reference external
// assets and must be rebuilt when one of them changes.
type AssetDependent interface {
	AssetIDs() []string
}

// Selectable is implemented by components that make their owner pickable
// in the viewport.
type Selectable interface {
	Selectable() bool
}

// ComponentBase carries the state shared by all variants. It is embedded
// inline so that `id` sits beside the variant fields in documents.
type ComponentBase struct {
	ID string `yaml:"id"`

	owner    *Object
	instance RuntimeRef
}

func (b *ComponentBase) AsComponentBase() *ComponentBase { return b }

// Owner returns the object holding the component, or nil when detached.
func (b *ComponentBase) Owner() *Object { return b.owner }

// Instance returns the live runtime counterpart, if one has been wired.
func (b *ComponentBase) Instance() RuntimeRef { return b.instance }

// SetInstance wires or clears (nil) the runtime counterpart.
func (b *ComponentBase) SetInstance(ref RuntimeRef) { b.instance = ref }

// Mesh renders a model asset.
type Mesh struct {
	ComponentBase `yaml:",inline"`
	Asset         string `yaml:"asset"`
	Material      string `yaml:"material,omitempty"`
}

func (*Mesh) Kind() Kind { return KindMesh }

func (m *Mesh) AssetIDs() []string { return nonEmpty(m.Asset, m.Material) }

func (*Mesh) Selectable() bool { return true }

// Script attaches a behaviour source file.
type Script struct {
	ComponentBase `yaml:",inline"`
	Source        string            `yaml:"source"`
	Properties    map[string]string `yaml:"properties,omitempty"`
}

func (*Script) Kind() Kind { return KindScript }

func (s *Script) AssetIDs() []string { return nonEmpty(s.Source) }

// Camera is a perspective viewpoint.
type Camera struct {
	ComponentBase `yaml:",inline"`
	FOV           float32 `yaml:"fov"`
	Near          float32 `yaml:"near"`
	Far           float32 `yaml:"far"`
}

func (*Camera) Kind() Kind { return KindCamera }

func (*Camera) Selectable() bool { return true }

// DirectionalLight lights the scene along the owner's forward axis.
type DirectionalLight struct {
	ComponentBase `yaml:",inline"`
	Intensity     float32    `yaml:"intensity"`
	Color         mgl32.Vec3 `yaml:"color,flow"`
}

func (*DirectionalLight) Kind() Kind { return KindDirectionalLight }

func (*DirectionalLight) Selectable() bool { return true }

// PointLight emits light in all directions up to Range.
type PointLight struct {
	ComponentBase `yaml:",inline"`
	Intensity     float32    `yaml:"intensity"`
	Color         mgl32.Vec3 `yaml:"color,flow"`
	Range         float32    `yaml:"range"`
}

func (*PointLight) Kind() Kind { return KindPointLight }

func (*PointLight) Selectable() bool { return true }

// ComponentID returns the component's identifier.
func ComponentID(c Component) string {
	return c.AsComponentBase().ID
}

// AssetIDsOf returns the assets c depends on, or nil if it has none.
func AssetIDsOf(c Component) []string {
	if dep, ok := c.(AssetDependent); ok {
		return dep.AssetIDs()
	}
	return nil
}

// IsSelectable reports whether c makes its owner pickable.
func IsSelectable(c Component) bool {
	if s, ok := c.(Selectable); ok {
		return s.Selectable()
	}
	return false
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Factory builds a zero component of one kind.
type Factory func() Component

var (
	kindsMu sync.RWMutex
	kinds   = map[Kind]Factory{}
)

func init() {
	MustRegisterKind(KindMesh, func() Component { return &Mesh{} })
	MustRegisterKind(KindScript, func() Component { return &Script{} })
	MustRegisterKind(KindCamera, func() Component { return &Camera{FOV: 60, Near: 0.1, Far: 1000} })
	MustRegisterKind(KindDirectionalLight, func() Component {
		return &DirectionalLight{Intensity: 1, Color: mgl32.Vec3{1, 1, 1}}
	})
	MustRegisterKind(KindPointLight, func() Component {
		return &PointLight{Intensity: 1, Color: mgl32.Vec3{1, 1, 1}, Range: 10}
	})
}

// RegisterKind installs a component factory. Returns an error if the kind
// already exists.
func RegisterKind(kind Kind, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("scene: component kind is required")
	}
	if factory == nil {
		return fmt.Errorf("scene: factory is required for %s", kind)
	}
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, exists := kinds[kind]; exists {
		return fmt.Errorf("scene: component kind %s already registered", kind)
	}
	kinds[kind] = factory
	return nil
}

// MustRegisterKind panics if registration fails.
func MustRegisterKind(kind Kind, factory Factory) {
	if err := RegisterKind(kind, factory); err != nil {
		panic(err)
	}
}

// NewComponent builds a component of kind with defaults and a fresh id.
func NewComponent(kind Kind) (Component, error) {
	c, err := blankComponent(kind)
	if err != nil {
		return nil, err
	}
	c.AsComponentBase().ID = NewID()
	return c, nil
}

func blankComponent(kind Kind) (Component, error) {
	kindsMu.RLock()
	factory, ok := kinds[kind]
	kindsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scene: unknown component kind %q", kind)
	}
	return factory(), nil
}

// Kinds returns the registered component kinds, sorted.
func Kinds() []Kind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
