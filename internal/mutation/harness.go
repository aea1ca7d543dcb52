package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/kingrea/pzedit/internal/deps"
	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/logbook"
	"github.com/kingrea/pzedit/internal/runtime"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
)

// HarnessConfig describes an in-memory editing session.
type HarnessConfig struct {
	SceneKey      string
	SceneSource   string
	ProjectKey    string
	ProjectSource string
	// Files seeds storage, typically with asset bytes.
	Files        map[string][]byte
	HistoryLimit int
}

// Harness is a fully wired Context over memory storage and a headless
// runtime, for tests and scripted tooling.
type Harness struct {
	Context     *Context
	Dispatcher  *Dispatcher
	Runtime     *runtime.Headless
	Storage     *storage.Memory
	Diagnostics *logbook.Logbook
}

// NewHarness builds a harness, loading and instantiating the scene and
// project sources when given.
func NewHarness(cfg HarnessConfig) (*Harness, error) {
	if cfg.SceneKey == "" {
		cfg.SceneKey = "scenes/main.pzscene"
	}
	if cfg.ProjectKey == "" {
		cfg.ProjectKey = "project.yaml"
	}
	files := map[string][]byte{}
	for k, v := range cfg.Files {
		files[k] = v
	}
	if cfg.SceneSource != "" {
		files[cfg.SceneKey] = []byte(cfg.SceneSource)
	}
	if cfg.ProjectSource != "" {
		files[cfg.ProjectKey] = []byte(cfg.ProjectSource)
	}
	store := storage.NewMemory(files)
	diagnostics := logbook.NewMemory()
	engine := runtime.NewHeadless(runtime.WithAssets(store))
	ctx := &Context{
		SceneKey:    cfg.SceneKey,
		ProjectKey:  cfg.ProjectKey,
		Runtime:     engine,
		Storage:     store,
		Deps:        deps.New(deps.WithReporter(diagnostics)),
		Diagnostics: diagnostics,
	}
	if cfg.ProjectSource != "" {
		doc, err := document.Parse([]byte(cfg.ProjectSource))
		if err != nil {
			return nil, fmt.Errorf("mutation: harness project: %w", err)
		}
		project, err := scene.DecodeProject(doc)
		if err != nil {
			return nil, fmt.Errorf("mutation: harness project: %w", err)
		}
		ctx.Project, ctx.ProjectDoc = project, doc
	}
	h := &Harness{
		Context:     ctx,
		Dispatcher:  NewDispatcher(ctx, WithHistory(NewHistory(cfg.HistoryLimit))),
		Runtime:     engine,
		Storage:     store,
		Diagnostics: diagnostics,
	}
	if cfg.SceneSource != "" {
		doc, err := document.Parse([]byte(cfg.SceneSource))
		if err != nil {
			return nil, fmt.Errorf("mutation: harness scene: %w", err)
		}
		s, err := scene.Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("mutation: harness scene: %w", err)
		}
		ctx.Scene, ctx.SceneDoc = s, doc
		if err := Instantiate(ctx); err != nil {
			return nil, err
		}
		if err := h.Settle(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Settle waits up to five seconds for pending runtime loads.
func (h *Harness) Settle() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Context.Settle(ctx)
}

// SceneText renders the scene document.
func (h *Harness) SceneText() (string, error) {
	data, err := h.Context.SceneDoc.Bytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
