package runtime

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/kingrea/pzedit/internal/scene"
)

// Op records one engine call.
type Op struct {
	Seq    int
	Action string
	Target string
	Value  any
}

// ObjectState is a copy of a live object instance.
type ObjectState struct {
	Handle     Handle
	SourceID   string
	Name       string
	Transform  scene.Transform
	Parent     string
	Children   []string
	Components []string
	Pickable   bool
}

// ComponentState is a copy of a live component instance.
type ComponentState struct {
	Handle     Handle
	SourceID   string
	Kind       scene.Kind
	Owner      string
	Payload    Payload
	Generation int
	Assets     []string

	loaded map[string][]byte
}

// Headless keeps the instance graph in memory. Asset loads run on their own
// goroutines; every other call completes before returning.
type Headless struct {
	mu         sync.Mutex
	assets     AssetSource
	registry   *Registry
	logger     Logger
	objects    map[string]*ObjectState
	components map[string]*ComponentState
	roots      []string
	ops        []Op
	next       int
	loads      sync.WaitGroup
}

// Option customizes a Headless engine during construction.
type Option func(*Headless)

// WithAssets sets where asset bytes are loaded from.
func WithAssets(src AssetSource) Option {
	return func(h *Headless) {
		h.assets = src
	}
}

// WithRegistry overrides the component builders.
func WithRegistry(r *Registry) Option {
	return func(h *Headless) {
		h.registry = r
	}
}

// WithLogger routes load failures to a log.
func WithLogger(l Logger) Option {
	return func(h *Headless) {
		h.logger = l
	}
}

// NewHeadless returns an empty engine.
func NewHeadless(opts ...Option) *Headless {
	h := &Headless{
		registry:   DefaultRegistry(),
		objects:    map[string]*ObjectState{},
		components: map[string]*ComponentState{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Headless) newHandle(prefix string) Handle {
	h.next++
	return Handle{id: fmt.Sprintf("%s-%d", prefix, h.next)}
}

func (h *Headless) record(action, target string, value any) {
	h.ops = append(h.ops, Op{Seq: len(h.ops) + 1, Action: action, Target: target, Value: value})
}

func (h *Headless) object(ref scene.RuntimeRef) (*ObjectState, error) {
	obj, ok := h.objects[refID(ref)]
	if !ok {
		return nil, fmt.Errorf("runtime: object %q: %w", refID(ref), ErrUnknownInstance)
	}
	return obj, nil
}

func (h *Headless) siblings(parentID string) *[]string {
	if parentID == "" {
		return &h.roots
	}
	return &h.objects[parentID].Children
}

func insertID(list []string, index int, id string) []string {
	if index < 0 || index > len(list) {
		index = len(list)
	}
	return slices.Insert(list, index, id)
}

func removeID(list []string, id string) []string {
	if i := slices.Index(list, id); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

// CreateObject adds an instance for obj (without its children or
// components) under parent at index.
func (h *Headless) CreateObject(obj *scene.Object, parent scene.RuntimeRef, index int) (scene.RuntimeRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	parentID := refID(parent)
	if parentID != "" {
		if _, err := h.object(parent); err != nil {
			return nil, err
		}
	}
	handle := h.newHandle("obj")
	h.objects[handle.id] = &ObjectState{
		Handle:    handle,
		SourceID:  obj.ID,
		Name:      obj.Name,
		Transform: obj.Transform,
		Parent:    parentID,
	}
	list := h.siblings(parentID)
	*list = insertID(*list, index, handle.id)
	h.record("create_object", obj.ID, parentID)
	return handle, nil
}

// DestroyObject removes the instance with its children and components.
func (h *Headless) DestroyObject(ref scene.RuntimeRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.object(ref)
	if err != nil {
		return err
	}
	list := h.siblings(obj.Parent)
	*list = removeID(*list, obj.Handle.id)
	h.destroyTree(obj)
	h.record("destroy_object", obj.SourceID, nil)
	return nil
}

func (h *Headless) destroyTree(obj *ObjectState) {
	for _, childID := range obj.Children {
		if child, ok := h.objects[childID]; ok {
			h.destroyTree(child)
		}
	}
	for _, cid := range obj.Components {
		delete(h.components, cid)
	}
	delete(h.objects, obj.Handle.id)
}

func (h *Headless) SetTransform(ref scene.RuntimeRef, t scene.Transform) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.object(ref)
	if err != nil {
		return err
	}
	obj.Transform = t
	h.record("set_transform", obj.SourceID, t)
	return nil
}

func (h *Headless) SetName(ref scene.RuntimeRef, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.object(ref)
	if err != nil {
		return err
	}
	obj.Name = name
	h.record("set_name", obj.SourceID, name)
	return nil
}

// Reparent moves the instance under parent (nil for top level) at index.
func (h *Headless) Reparent(ref, parent scene.RuntimeRef, index int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.object(ref)
	if err != nil {
		return err
	}
	parentID := refID(parent)
	if parentID != "" {
		if _, err := h.object(parent); err != nil {
			return err
		}
	}
	from := h.siblings(obj.Parent)
	*from = removeID(*from, obj.Handle.id)
	to := h.siblings(parentID)
	*to = insertID(*to, index, obj.Handle.id)
	obj.Parent = parentID
	h.record("reparent", obj.SourceID, parentID)
	return nil
}

// CreateComponent builds an instance for c on owner once its assets have
// loaded.
func (h *Headless) CreateComponent(owner scene.RuntimeRef, c scene.Component) <-chan Result {
	snapshot, err := scene.CloneComponent(c)
	if err != nil {
		return resolved(Result{Component: c, Err: err})
	}
	h.mu.Lock()
	if _, err := h.object(owner); err != nil {
		h.mu.Unlock()
		return resolved(Result{Component: c, Err: err})
	}
	handle := h.newHandle("cmp")
	h.record("create_component", scene.ComponentID(c), c.Kind())
	h.mu.Unlock()

	ch := make(chan Result, 1)
	h.loads.Add(1)
	go func() {
		defer h.loads.Done()
		defer close(ch)
		loaded, payload, err := h.build(snapshot)
		if err != nil {
			ch <- Result{Component: c, Err: err}
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		ownerState, err := h.object(owner)
		if err != nil {
			ch <- Result{Component: c, Err: fmt.Errorf("runtime: owner gone before %s loaded: %w", scene.ComponentID(c), err)}
			return
		}
		h.components[handle.id] = &ComponentState{
			Handle:     handle,
			SourceID:   scene.ComponentID(snapshot),
			Kind:       snapshot.Kind(),
			Owner:      ownerState.Handle.id,
			Payload:    payload,
			Generation: 1,
			Assets:     scene.AssetIDsOf(snapshot),
			loaded:     loaded,
		}
		ownerState.Components = append(ownerState.Components, handle.id)
		ownerState.Pickable = ownerState.Pickable || scene.IsSelectable(snapshot)
		ch <- Result{Component: c, Ref: handle}
	}()
	return ch
}

// ReconstructComponent reloads the assets of c and rebuilds its instance in
// place: same handle, same owner, same slot.
func (h *Headless) ReconstructComponent(ref scene.RuntimeRef, c scene.Component) <-chan Result {
	snapshot, err := scene.CloneComponent(c)
	if err != nil {
		return resolved(Result{Component: c, Err: err})
	}
	h.mu.Lock()
	if _, ok := h.components[refID(ref)]; !ok {
		h.mu.Unlock()
		return resolved(Result{Component: c, Err: fmt.Errorf("runtime: component %q: %w", refID(ref), ErrUnknownInstance)})
	}
	h.record("reconstruct_component", scene.ComponentID(c), nil)
	h.mu.Unlock()

	ch := make(chan Result, 1)
	h.loads.Add(1)
	go func() {
		defer h.loads.Done()
		defer close(ch)
		loaded, payload, err := h.build(snapshot)
		if err != nil {
			ch <- Result{Component: c, Ref: ref, Err: err}
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		state, ok := h.components[refID(ref)]
		if !ok {
			ch <- Result{Component: c, Err: fmt.Errorf("runtime: component %q destroyed during reload: %w", refID(ref), ErrUnknownInstance)}
			return
		}
		state.Payload = payload
		state.Assets = scene.AssetIDsOf(snapshot)
		state.loaded = loaded
		state.Generation++
		ch <- Result{Component: c, Ref: ref}
	}()
	return ch
}

// UpdateComponent rebuilds the payload from c's current fields using the
// assets already loaded for the instance.
func (h *Headless) UpdateComponent(ref scene.RuntimeRef, c scene.Component) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.components[refID(ref)]
	if !ok {
		return fmt.Errorf("runtime: component %q: %w", refID(ref), ErrUnknownInstance)
	}
	payload, err := h.registry.Build(c, state.loaded)
	if err != nil {
		return err
	}
	state.Payload = payload
	h.record("update_component", scene.ComponentID(c), nil)
	return nil
}

func (h *Headless) DestroyComponent(ref scene.RuntimeRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.components[refID(ref)]
	if !ok {
		return fmt.Errorf("runtime: component %q: %w", refID(ref), ErrUnknownInstance)
	}
	if owner, ok := h.objects[state.Owner]; ok {
		owner.Components = removeID(owner.Components, state.Handle.id)
	}
	delete(h.components, state.Handle.id)
	h.record("destroy_component", state.SourceID, nil)
	return nil
}

func (h *Headless) build(c scene.Component) (map[string][]byte, Payload, error) {
	loaded := map[string][]byte{}
	for _, asset := range scene.AssetIDsOf(c) {
		if h.assets == nil {
			return nil, Payload{}, fmt.Errorf("runtime: no asset source for %s", asset)
		}
		data, err := h.assets.Read(asset)
		if err != nil {
			h.logf("runtime: load %s for %s: %v", asset, scene.ComponentID(c), err)
			return nil, Payload{}, fmt.Errorf("runtime: load %s: %w", asset, err)
		}
		loaded[asset] = data
	}
	payload, err := h.registry.Build(c, loaded)
	if err != nil {
		h.logf("runtime: build %s: %v", scene.ComponentID(c), err)
		return nil, Payload{}, err
	}
	return loaded, payload, nil
}

func (h *Headless) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

// Wait blocks until every in-flight asset load has finished.
func (h *Headless) Wait() {
	h.loads.Wait()
}

// Object returns a copy of the instance built for the object sourceID.
func (h *Headless) Object(sourceID string) (ObjectState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, obj := range h.objects {
		if obj.SourceID == sourceID {
			out := *obj
			out.Children = slices.Clone(obj.Children)
			out.Components = slices.Clone(obj.Components)
			return out, true
		}
	}
	return ObjectState{}, false
}

// Component returns a copy of the instance built for the component sourceID.
func (h *Headless) Component(sourceID string) (ComponentState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.components {
		if c.SourceID == sourceID {
			out := *c
			out.Assets = slices.Clone(c.Assets)
			out.loaded = nil
			return out, true
		}
	}
	return ComponentState{}, false
}

// ChildrenOf returns the source ids of the instance children of sourceID,
// or of the top-level instances when sourceID is empty.
func (h *Headless) ChildrenOf(sourceID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.roots
	if sourceID != "" {
		list = nil
		for _, obj := range h.objects {
			if obj.SourceID == sourceID {
				list = obj.Children
				break
			}
		}
	}
	out := make([]string, 0, len(list))
	for _, id := range list {
		out = append(out, h.objects[id].SourceID)
	}
	return out
}

// Len returns the number of object and component instances.
func (h *Headless) Len() (objects, components int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects), len(h.components)
}

// Ops returns every recorded call, oldest first.
func (h *Headless) Ops() []Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.ops)
}

// OpsFor returns the recorded calls of one action on one target.
func (h *Headless) OpsFor(action, target string) []Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Op
	for _, op := range h.ops {
		if op.Action == action && op.Target == target {
			out = append(out, op)
		}
	}
	return out
}
