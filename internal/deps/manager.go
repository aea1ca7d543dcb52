package deps

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kingrea/pzedit/internal/scene"
)

// ErrUnregisteredDependency describes bookkeeping that referenced a
// component or asset link the index does not hold. It is reported, never
// returned from edits.
var ErrUnregisteredDependency = errors.New("deps: unregistered dependency")

// Reporter receives non-fatal bookkeeping warnings. *logbook.Logbook
// satisfies it.
type Reporter interface {
	Warn(format string, args ...any)
}

// Dependency is the forward record for one component.
type Dependency struct {
	Component scene.Component
	Owner     *scene.Object
	AssetIDs  []string
}

// ComponentID returns the id of the dependent component.
func (d *Dependency) ComponentID() string {
	return scene.ComponentID(d.Component)
}

// Manager holds the component -> assets index and its asset -> components
// mirror. It is owned by one editor goroutine and takes no locks.
type Manager struct {
	components map[string]*Dependency
	assets     map[string][]string
	reporter   Reporter
}

// Option customizes a Manager during construction.
type Option func(*Manager)

// WithReporter routes bookkeeping warnings to r.
func WithReporter(r Reporter) Option {
	return func(m *Manager) {
		m.reporter = r
	}
}

// New returns an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		components: map[string]*Dependency{},
		assets:     map[string][]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register upserts the record for c and merges assetIDs into it. Known
// assets are skipped, so repeated calls are safe. A component with no
// assets gets no record.
func (m *Manager) Register(c scene.Component, owner *scene.Object, assetIDs ...string) {
	id := scene.ComponentID(c)
	entry := m.components[id]
	for _, asset := range assetIDs {
		if asset == "" {
			continue
		}
		if entry == nil {
			entry = &Dependency{}
			m.components[id] = entry
		}
		if slices.Contains(entry.AssetIDs, asset) {
			continue
		}
		entry.AssetIDs = append(entry.AssetIDs, asset)
		m.assets[asset] = append(m.assets[asset], id)
	}
	if entry != nil {
		entry.Component = c
		entry.Owner = owner
	}
}

// Replace drops whatever c was registered with and registers assetIDs.
func (m *Manager) Replace(c scene.Component, owner *scene.Object, assetIDs ...string) {
	id := scene.ComponentID(c)
	if _, ok := m.components[id]; ok {
		m.Unregister(id)
	}
	m.Register(c, owner, assetIDs...)
}

// Unregister removes the record for componentID and scrubs it from every
// asset's dependents. Unknown components and missing mirror entries are
// reported and tolerated. It returns whether a record existed.
func (m *Manager) Unregister(componentID string) bool {
	entry, ok := m.components[componentID]
	if !ok {
		m.report("component %s: %v", componentID, ErrUnregisteredDependency)
		for asset := range m.assets {
			if m.scrub(asset, componentID) {
				m.report("asset %s listed unknown component %s", asset, componentID)
			}
		}
		return false
	}
	for _, asset := range entry.AssetIDs {
		if !m.scrub(asset, componentID) {
			m.report("asset %s did not list component %s: %v", asset, componentID, ErrUnregisteredDependency)
		}
	}
	delete(m.components, componentID)
	return true
}

func (m *Manager) scrub(asset, componentID string) bool {
	list := m.assets[asset]
	i := slices.Index(list, componentID)
	if i < 0 {
		if len(list) == 0 {
			delete(m.assets, asset)
		}
		return false
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(m.assets, asset)
	} else {
		m.assets[asset] = list
	}
	return true
}

// DependentsOf returns the records of every component depending on any of
// assetIDs, each once, in order of first discovery.
func (m *Manager) DependentsOf(assetIDs ...string) []*Dependency {
	var out []*Dependency
	seen := map[string]bool{}
	for _, asset := range assetIDs {
		for _, id := range m.assets[asset] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if entry, ok := m.components[id]; ok {
				out = append(out, entry)
			}
		}
	}
	return out
}

// Has reports whether componentID has a record.
func (m *Manager) Has(componentID string) bool {
	_, ok := m.components[componentID]
	return ok
}

// Assets returns the asset ids recorded for componentID.
func (m *Manager) Assets(componentID string) []string {
	entry, ok := m.components[componentID]
	if !ok {
		return nil
	}
	return slices.Clone(entry.AssetIDs)
}

// Dependents returns the ids of components depending on assetID.
func (m *Manager) Dependents(assetID string) []string {
	return slices.Clone(m.assets[assetID])
}

// AssetIDs lists every indexed asset, sorted.
func (m *Manager) AssetIDs() []string {
	ids := maps.Keys(m.assets)
	slices.Sort(ids)
	return ids
}

// ComponentIDs lists every indexed component, sorted.
func (m *Manager) ComponentIDs() []string {
	ids := maps.Keys(m.components)
	slices.Sort(ids)
	return ids
}

// Len returns the number of component records.
func (m *Manager) Len() int {
	return len(m.components)
}

// Clear empties both indexes.
func (m *Manager) Clear() {
	m.components = map[string]*Dependency{}
	m.assets = map[string][]string{}
}

// Check verifies that the two indexes mirror each other.
func (m *Manager) Check() error {
	var errs []error
	for _, id := range m.ComponentIDs() {
		entry := m.components[id]
		if len(entry.AssetIDs) == 0 {
			errs = append(errs, fmt.Errorf("deps: component %s has an empty record", id))
		}
		for _, asset := range entry.AssetIDs {
			if !slices.Contains(m.assets[asset], id) {
				errs = append(errs, fmt.Errorf("deps: asset %s is missing dependent %s", asset, id))
			}
		}
	}
	for _, asset := range m.AssetIDs() {
		for _, id := range m.assets[asset] {
			entry, ok := m.components[id]
			if !ok || !slices.Contains(entry.AssetIDs, asset) {
				errs = append(errs, fmt.Errorf("deps: asset %s lists %s without a matching record", asset, id))
			}
		}
	}
	return errors.Join(errs...)
}

// Track registers every asset-dependent component in obj's subtree.
func (m *Manager) Track(obj *scene.Object) {
	obj.Walk(func(o *scene.Object) bool {
		for _, c := range o.Components {
			m.Register(c, o, scene.AssetIDsOf(c)...)
		}
		return true
	})
}

// Untrack unregisters every recorded component in obj's subtree.
func (m *Manager) Untrack(obj *scene.Object) {
	obj.Walk(func(o *scene.Object) bool {
		for _, c := range o.Components {
			if id := scene.ComponentID(c); m.Has(id) {
				m.Unregister(id)
			}
		}
		return true
	})
}

func (m *Manager) report(format string, args ...any) {
	if m.reporter == nil {
		return
	}
	m.reporter.Warn("deps: "+format, args...)
}
