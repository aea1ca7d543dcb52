package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/kingrea/pzedit/internal/scene"
)

// Payload is what the engine builds from component data and loaded assets.
type Payload struct {
	Summary    string
	Bytes      int
	Projection mgl32.Mat4
	Radiance   mgl32.Vec3
}

// Builder turns a component snapshot and its loaded assets into a payload.
// Builders run on loader goroutines and must not touch the scene model.
type Builder func(c scene.Component, assets map[string][]byte) (Payload, error)

// Registry maps component kinds to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[scene.Kind]Builder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: map[scene.Kind]Builder{}}
}

// DefaultRegistry returns a registry with builders for every built-in kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(scene.KindMesh, buildMesh)
	r.MustRegister(scene.KindScript, buildScript)
	r.MustRegister(scene.KindCamera, buildCamera)
	r.MustRegister(scene.KindDirectionalLight, buildDirectionalLight)
	r.MustRegister(scene.KindPointLight, buildPointLight)
	return r
}

// Register installs a builder. Returns an error if the kind already exists.
func (r *Registry) Register(kind scene.Kind, builder Builder) error {
	if kind == "" {
		return fmt.Errorf("runtime: component kind is required")
	}
	if builder == nil {
		return fmt.Errorf("runtime: builder is required for %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[kind]; exists {
		return fmt.Errorf("runtime: %s already registered", kind)
	}
	r.builders[kind] = builder
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(kind scene.Kind, builder Builder) {
	if err := r.Register(kind, builder); err != nil {
		panic(err)
	}
}

// Build runs the builder for c's kind.
func (r *Registry) Build(c scene.Component, assets map[string][]byte) (Payload, error) {
	r.mu.RLock()
	builder, ok := r.builders[c.Kind()]
	r.mu.RUnlock()
	if !ok {
		return Payload{}, fmt.Errorf("runtime: no builder for %s", c.Kind())
	}
	return builder(c, assets)
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []scene.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]scene.Kind, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func buildMesh(c scene.Component, assets map[string][]byte) (Payload, error) {
	m := c.(*scene.Mesh)
	data := assets[m.Asset]
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("runtime: mesh %s: asset %s is empty", m.ID, m.Asset)
	}
	summary := "mesh " + m.Asset
	if m.Material != "" {
		summary += " with " + m.Material
	}
	return Payload{Summary: summary, Bytes: len(data) + len(assets[m.Material])}, nil
}

func buildScript(c scene.Component, assets map[string][]byte) (Payload, error) {
	s := c.(*scene.Script)
	data, ok := assets[s.Source]
	if !ok {
		return Payload{}, fmt.Errorf("runtime: script %s: source %s not loaded", s.ID, s.Source)
	}
	return Payload{Summary: fmt.Sprintf("script %s (%d properties)", s.Source, len(s.Properties)), Bytes: len(data)}, nil
}

func buildCamera(c scene.Component, _ map[string][]byte) (Payload, error) {
	cam := c.(*scene.Camera)
	near := math32.Max(cam.Near, 0.001)
	far := math32.Max(cam.Far, near+0.001)
	fov := math32.Min(math32.Max(cam.FOV, 1), 179)
	return Payload{
		Summary:    fmt.Sprintf("camera fov=%g", fov),
		Projection: mgl32.Perspective(mgl32.DegToRad(fov), 16.0/9.0, near, far),
	}, nil
}

func buildDirectionalLight(c scene.Component, _ map[string][]byte) (Payload, error) {
	l := c.(*scene.DirectionalLight)
	intensity := math32.Max(l.Intensity, 0)
	return Payload{Summary: fmt.Sprintf("directional light %g", intensity), Radiance: l.Color.Mul(intensity)}, nil
}

func buildPointLight(c scene.Component, _ map[string][]byte) (Payload, error) {
	l := c.(*scene.PointLight)
	intensity := math32.Max(l.Intensity, 0)
	return Payload{
		Summary:  fmt.Sprintf("point light %g range %g", intensity, math32.Max(l.Range, 0)),
		Radiance: l.Color.Mul(intensity),
	}, nil
}
