package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/pzedit/internal/deps"
	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/logbook"
	"github.com/kingrea/pzedit/internal/mutation"
	"github.com/kingrea/pzedit/internal/runtime"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
)

// ErrNoScene is returned when a project lists no scenes to open.
var ErrNoScene = errors.New("editor: project has no scenes")

const (
	defaultLoadConcurrency = 4
	defaultStateKey        = ".pzedit/state/session.yaml"
	defaultSettleTimeout   = 30 * time.Second
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Option customizes a Session during Open.
type Option func(*Session)

// WithEngine replaces the default headless runtime.
func WithEngine(engine runtime.Engine) Option {
	return func(s *Session) {
		s.engine = engine
	}
}

// WithDiagnostics routes bookkeeping warnings and session events to lb.
func WithDiagnostics(lb *logbook.Logbook) Option {
	return func(s *Session) {
		s.diagnostics = lb
	}
}

// WithLogger records applied mutations and runtime load failures.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithHistoryLimit bounds the undo history. Zero keeps everything.
func WithHistoryLimit(limit int) Option {
	return func(s *Session) {
		s.historyLimit = limit
	}
}

// WithLoadConcurrency bounds how many assets a reload reads at once.
func WithLoadConcurrency(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.loadLimit = n
		}
	}
}

// WithStateKey sets where session state is persisted on Close.
func WithStateKey(key string) Option {
	return func(s *Session) {
		s.stateKey = key
	}
}

// Session owns the model, documents, runtime and history of one open
// project.
type Session struct {
	store        storage.Store
	engine       runtime.Engine
	diagnostics  *logbook.Logbook
	logger       Logger
	historyLimit int
	loadLimit    int
	stateKey     string

	ctx        *mutation.Context
	dispatcher *mutation.Dispatcher

	savedScene   int
	savedProject int
}

// Open reads the project document at projectKey and prepares a session
// with no scene loaded.
func Open(store storage.Store, projectKey string, opts ...Option) (*Session, error) {
	if store == nil {
		return nil, fmt.Errorf("editor: nil store")
	}
	key, err := storage.CleanKey(projectKey)
	if err != nil {
		return nil, fmt.Errorf("editor: project key: %w", err)
	}
	s := &Session{
		store:     store,
		loadLimit: defaultLoadConcurrency,
		stateKey:  defaultStateKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.diagnostics == nil {
		s.diagnostics = logbook.NewMemory()
	}
	if s.engine == nil {
		engineOpts := []runtime.Option{runtime.WithAssets(store)}
		if s.logger != nil {
			engineOpts = append(engineOpts, runtime.WithLogger(s.logger))
		}
		s.engine = runtime.NewHeadless(engineOpts...)
	}

	data, err := store.Read(key)
	if err != nil {
		return nil, fmt.Errorf("editor: open project: %w", err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("editor: parse project %s: %w", key, err)
	}
	project, err := scene.DecodeProject(doc)
	if err != nil {
		return nil, fmt.Errorf("editor: project %s: %w", key, err)
	}

	s.ctx = &mutation.Context{
		Project:     project,
		ProjectDoc:  doc,
		ProjectKey:  key,
		Runtime:     s.engine,
		Storage:     store,
		Deps:        deps.New(deps.WithReporter(s.diagnostics)),
		Diagnostics: s.diagnostics,
	}
	dispatcherOpts := []mutation.DispatcherOption{mutation.WithHistory(mutation.NewHistory(s.historyLimit))}
	if s.logger != nil {
		dispatcherOpts = append(dispatcherOpts, mutation.WithLogger(s.logger))
	}
	s.dispatcher = mutation.NewDispatcher(s.ctx, dispatcherOpts...)
	s.savedProject = doc.Revision()
	return s, nil
}

// LoadScene replaces the open scene with sceneID, or the first scene of
// the project when sceneID is empty. The previous scene's instances are
// destroyed and the undo history is cleared.
func (s *Session) LoadScene(ctx context.Context, sceneID string) error {
	entry, err := s.sceneEntry(sceneID)
	if err != nil {
		return err
	}
	data, err := s.store.Read(entry.Path)
	if err != nil {
		return fmt.Errorf("editor: load scene %s: %w", entry.ID, err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return fmt.Errorf("editor: parse scene %s: %w", entry.ID, err)
	}
	model, err := scene.Decode(doc)
	if err != nil {
		return fmt.Errorf("editor: scene %s: %w", entry.ID, err)
	}

	if err := s.ctx.Settle(ctx); err != nil {
		return fmt.Errorf("editor: load scene %s: %w", entry.ID, err)
	}
	if err := mutation.Teardown(s.ctx); err != nil {
		s.diagnostics.Warn("editor: teardown before loading %s: %v", entry.ID, err)
	}
	s.dispatcher.History().Clear()

	s.ctx.Scene = model
	s.ctx.SceneDoc = doc
	s.ctx.SceneKey = entry.Path
	s.savedScene = doc.Revision()
	if err := mutation.Instantiate(s.ctx); err != nil {
		return fmt.Errorf("editor: instantiate scene %s: %w", entry.ID, err)
	}
	if err := s.ctx.Settle(ctx); err != nil {
		return fmt.Errorf("editor: load scene %s: %w", entry.ID, err)
	}
	s.diagnostics.Info("opened scene %s (%d objects)", entry.ID, model.Len())
	return nil
}

func (s *Session) sceneEntry(sceneID string) (*scene.SceneEntry, error) {
	project := s.ctx.Project
	if sceneID == "" {
		if len(project.Scenes) == 0 {
			return nil, ErrNoScene
		}
		return project.Scenes[0], nil
	}
	entry, _, err := project.Scene(sceneID)
	if err != nil {
		return nil, fmt.Errorf("editor: %w", err)
	}
	return entry, nil
}

// Save writes the scene and project documents that changed since they were
// loaded or last saved.
func (s *Session) Save() error {
	if s.ctx.SceneDoc != nil && s.ctx.SceneDoc.Revision() != s.savedScene {
		if err := s.write(s.ctx.SceneKey, s.ctx.SceneDoc); err != nil {
			return err
		}
		s.savedScene = s.ctx.SceneDoc.Revision()
	}
	if s.ctx.ProjectDoc.Revision() != s.savedProject {
		if err := s.write(s.ctx.ProjectKey, s.ctx.ProjectDoc); err != nil {
			return err
		}
		s.savedProject = s.ctx.ProjectDoc.Revision()
	}
	return nil
}

func (s *Session) write(key string, doc *document.Document) error {
	return writeDoc(s.store, key, doc)
}

// Dirty reports whether either document has unsaved edits.
func (s *Session) Dirty() bool {
	if s.ctx.SceneDoc != nil && s.ctx.SceneDoc.Revision() != s.savedScene {
		return true
	}
	return s.ctx.ProjectDoc.Revision() != s.savedProject
}

// Close waits for pending loads, destroys the scene's instances and
// records the open scene for the next session. Unsaved edits are not
// written.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.ctx.Settle(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := mutation.Teardown(s.ctx); err != nil {
		errs = append(errs, err)
	}
	if s.ctx.Scene != nil && s.stateKey != "" {
		state := State{LastScene: s.ctx.Scene.ID, SavedAt: time.Now().UTC()}
		if err := SaveState(s.store, s.stateKey, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Settle blocks until every pending runtime load is wired or ctx ends.
func (s *Session) Settle(ctx context.Context) error {
	return s.ctx.Settle(ctx)
}

// SettleTimeout is Settle bounded by a fixed timeout, for callers without
// their own context.
func (s *Session) SettleTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSettleTimeout)
	defer cancel()
	return s.ctx.Settle(ctx)
}

// Poll wires the runtime loads that already finished without blocking.
func (s *Session) Poll() int {
	return s.ctx.Poll()
}

// Scene returns the open scene, or nil.
func (s *Session) Scene() *scene.Scene { return s.ctx.Scene }

// Project returns the project model.
func (s *Session) Project() *scene.Project { return s.ctx.Project }

// Dispatcher returns the dispatcher every edit goes through.
func (s *Session) Dispatcher() *mutation.Dispatcher { return s.dispatcher }

// Context returns the mutation context of the session.
func (s *Session) Context() *mutation.Context { return s.ctx }

// Store returns the backing storage.
func (s *Session) Store() storage.Store { return s.store }

// Engine returns the runtime engine.
func (s *Session) Engine() runtime.Engine { return s.engine }

// Diagnostics returns the session logbook.
func (s *Session) Diagnostics() *logbook.Logbook { return s.diagnostics }

// SceneText renders the open scene document.
func (s *Session) SceneText() (string, error) {
	if s.ctx.SceneDoc == nil {
		return "", fmt.Errorf("editor: no scene is open")
	}
	data, err := s.ctx.SceneDoc.Bytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
