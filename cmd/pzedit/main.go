// cmd/pzedit/main.go
//
// Entry point for the pzedit CLI. Every sub-command works on one project
// directory (the current directory unless -project is given).

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/pzedit/internal/assetwatch"
	"github.com/kingrea/pzedit/internal/config"
	"github.com/kingrea/pzedit/internal/editor"
	"github.com/kingrea/pzedit/internal/eventbridge"
	"github.com/kingrea/pzedit/internal/logbook"
	"github.com/kingrea/pzedit/internal/logging"
	"github.com/kingrea/pzedit/internal/mutation"
	"github.com/kingrea/pzedit/internal/scene"
	"github.com/kingrea/pzedit/internal/storage"
	"github.com/kingrea/pzedit/internal/tui"
)

const usage = `usage: pzedit <command> [flags]

commands:
  init        create .pzedit/ and an empty project
  inspect     open the scene inspector (-print dumps the hierarchy)
  watch       reload components when asset files change
  serve       accept asset events over HTTP and reload components
  move-scene  move a scene document to a new path
  check       verify the dependency index of a scene`

func main() {
	if len(os.Args) < 2 {
		die(usage)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "init":
		runInit(args)
	case "inspect":
		runInspect(args)
	case "watch":
		runWatch(args)
	case "serve":
		runServe(args)
	case "move-scene":
		runMoveScene(args)
	case "check":
		runCheck(args)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		die("unknown command %q\n\n%s", cmd, usage)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// project bundles what every command opens.
type project struct {
	cfg     *config.Config
	logger  *logging.Logger
	logbook *logbook.Logbook
	session *editor.Session
}

func (p *project) Close() {
	if p.logger != nil {
		_ = p.logger.Close()
	}
}

func commandFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	sceneID := fs.String("scene", "", "scene id to open (defaults to the last or configured scene)")
	return fs, projectDir, sceneID
}

func resolveProjectDir(dir string) string {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	return abs
}

// openProject loads config, logs and the session. When load is set the
// requested scene (or the remembered one) is loaded too.
func openProject(ctx context.Context, dir, sceneID string, load bool) *project {
	cfg, err := config.NewConfig(resolveProjectDir(dir))
	if err != nil {
		die("load config: %v", err)
	}
	logger, err := logging.New(cfg.ProjectDir)
	if err != nil {
		die("open log: %v", err)
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "diagnostics.log"))
	if err != nil {
		die("open diagnostics: %v", err)
	}
	session, err := editor.Open(storage.NewFS(cfg.ProjectDir), cfg.ProjectKey(),
		editor.WithLogger(logger),
		editor.WithDiagnostics(lb),
		editor.WithHistoryLimit(cfg.HistoryLimit()),
		editor.WithStateKey(cfg.StateKey()),
	)
	if err != nil {
		die("open project: %v", err)
	}
	p := &project{cfg: cfg, logger: logger, logbook: lb, session: session}
	if !load {
		return p
	}
	if sceneID == "" {
		sceneID = session.ResumeScene(cfg.Project.DefaultScene)
	}
	if err := session.LoadScene(ctx, sceneID); err != nil {
		die("load scene: %v", err)
	}
	return p
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	name := fs.String("name", "", "project name (defaults to the directory name)")
	_ = fs.Parse(args)

	dir := resolveProjectDir(*projectDir)
	if err := config.InitProjectDir(dir); err != nil {
		die("init %s: %v", config.Dir, err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		die("load config: %v", err)
	}
	projectName := strings.TrimSpace(*name)
	if projectName == "" {
		projectName = filepath.Base(dir)
	}
	store := storage.NewFS(dir)
	wrote, err := editor.Scaffold(store, cfg.ProjectKey(), projectName)
	if err != nil {
		die("scaffold project: %v", err)
	}
	for _, root := range cfg.AssetRoots() {
		if err := os.MkdirAll(root, 0o755); err != nil {
			die("create asset root: %v", err)
		}
	}
	if wrote {
		fmt.Printf("Created %s with scene %s\n", cfg.ProjectKey(), editor.DefaultSceneKey)
		return
	}
	fmt.Printf("%s already exists; %s is ready\n", cfg.ProjectKey(), config.Dir)
}

func runInspect(args []string) {
	fs, projectDir, sceneID := commandFlags("inspect")
	printOnly := fs.Bool("print", false, "print the hierarchy instead of opening the inspector")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	p := openProject(ctx, *projectDir, *sceneID, true)
	defer p.Close()

	if *printOnly {
		printHierarchy(p.session.Scene())
		return
	}

	var opts []tui.AppOption
	if p.cfg.WatchAssets() {
		router := eventbridge.NewRouter(eventbridge.RouterWithLogger(p.logger))
		sub := router.Subscribe(eventbridge.TypeAssetUpdated, eventbridge.TypeAssetDeleted)
		defer sub.Close()
		watcher := startWatcher(ctx, p, router)
		defer watcher.Close()
		opts = append(opts, tui.WithAssetEvents(sub.Events))
	}
	app, err := tui.NewApp(p.session, opts...)
	if err != nil {
		die("start inspector: %v", err)
	}
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		die("run inspector: %v", err)
	}
	closeSession(p)
}

func runWatch(args []string) {
	fs, projectDir, sceneID := commandFlags("watch")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	p := openProject(ctx, *projectDir, *sceneID, true)
	defer p.Close()
	out := p.logger.Tee(os.Stdout)

	router := eventbridge.NewRouter(eventbridge.RouterWithLogger(out))
	sub := router.Subscribe(eventbridge.TypeAssetUpdated, eventbridge.TypeAssetDeleted, eventbridge.TypeShutdown)
	defer sub.Close()
	watcher := startWatcher(ctx, p, router)
	defer watcher.Close()

	out.Printf("watching %s for scene %s", strings.Join(watcher.Watched(), ", "), p.session.Scene().ID)
	pump(ctx, p, sub.Events, out)
	closeSession(p)
}

func runServe(args []string) {
	fs, projectDir, sceneID := commandFlags("serve")
	host := fs.String("host", "", "override the bridge host")
	port := fs.Int("port", -1, "override the bridge port")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	p := openProject(ctx, *projectDir, *sceneID, true)
	defer p.Close()
	out := p.logger.Tee(os.Stdout)

	settings := eventbridge.SettingsFromConfig(p.cfg)
	if *host != "" {
		settings.Host = *host
	}
	if *port >= 0 {
		settings.Port = *port
	}
	settings.Enabled = true

	router := eventbridge.NewRouter(
		eventbridge.RouterWithLogger(out),
		eventbridge.RouterWithSubscriberCapacity(settings.QueueSize),
	)
	sub := router.Subscribe(eventbridge.TypeAssetUpdated, eventbridge.TypeAssetDeleted, eventbridge.TypeShutdown)
	defer sub.Close()

	server := eventbridge.NewServer(settings,
		eventbridge.WithProcessor(router),
		eventbridge.WithLogger(out),
	)
	if err := server.Start(ctx); err != nil {
		die("start event bridge: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			out.Printf("eventbridge: shutdown: %v", err)
		}
	}()
	if p.cfg.WatchAssets() {
		watcher := startWatcher(ctx, p, router)
		defer watcher.Close()
	}

	out.Printf("accepting asset events at %s/events", server.BaseURL())
	pump(ctx, p, sub.Events, out)
	closeSession(p)
}

func runMoveScene(args []string) {
	fs, projectDir, _ := commandFlags("move-scene")
	id := fs.String("id", "", "id of the scene to move")
	to := fs.String("to", "", "new path of the scene document, relative to the project")
	_ = fs.Parse(args)
	if strings.TrimSpace(*id) == "" || strings.TrimSpace(*to) == "" {
		die("-id and -to are required")
	}

	ctx, stop := signalContext()
	defer stop()
	p := openProject(ctx, *projectDir, "", false)
	defer p.Close()

	move := &mutation.MoveScene{SceneID: *id, NewPath: *to}
	if err := p.session.Dispatcher().Apply(move); err != nil {
		die("move scene: %v", err)
	}
	if err := p.session.Save(); err != nil {
		die("save project: %v", err)
	}
	p.logger.Printf("%s", move.Description())
	fmt.Println(move.Description())
}

func runCheck(args []string) {
	fs, projectDir, sceneID := commandFlags("check")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	p := openProject(ctx, *projectDir, *sceneID, true)
	defer p.Close()

	index := p.session.Context().Deps
	assets := index.AssetIDs()
	fmt.Printf("scene %s: %d objects, %d asset-dependent components, %d assets\n",
		p.session.Scene().ID, p.session.Scene().Len(), index.Len(), len(assets))
	for _, asset := range assets {
		dependents := index.Dependents(asset)
		sort.Strings(dependents)
		exists, err := p.session.Store().Exists(asset)
		state := "ok"
		switch {
		case err != nil:
			state = err.Error()
		case !exists:
			state = "missing"
		}
		fmt.Printf("  %-40s %-8s %s\n", asset, state, strings.Join(dependents, ", "))
	}
	if err := index.Check(); err != nil {
		die("dependency index inconsistent: %v", err)
	}
	if n := p.logbook.Count(logbook.LevelError); n > 0 {
		die("%d components failed to load; see %s", n, p.logbook.Path())
	}
}

func startWatcher(ctx context.Context, p *project, sink eventbridge.EventProcessor) *assetwatch.Watcher {
	watcher, err := assetwatch.New(p.cfg.ProjectDir, p.cfg.AssetRoots(), sink,
		assetwatch.WithDebounce(p.cfg.Debounce()),
		assetwatch.WithLogger(p.logger),
	)
	if err != nil {
		die("watch assets: %v", err)
	}
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Printf("assetwatch: %v", err)
		}
	}()
	return watcher
}

func pump(ctx context.Context, p *project, events <-chan eventbridge.Event, out *logging.Logger) {
	err := editor.Pump(ctx, p.session, events, func(r editor.Reload, err error) {
		if err != nil {
			out.Printf("reload failed: %v", err)
			return
		}
		out.Printf("%s %s: rebuilt [%s] skipped [%s]", r.Type, strings.Join(r.Assets, ", "),
			strings.Join(r.Reconstructed, ", "), strings.Join(r.Skipped, ", "))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		die("process events: %v", err)
	}
}

func closeSession(p *project) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if p.session.Dirty() {
		p.logger.Printf("closing with unsaved edits in %s", p.session.Context().SceneKey)
	}
	if err := p.session.Close(ctx); err != nil {
		p.logger.Printf("close session: %v", err)
	}
}

func printHierarchy(s *scene.Scene) {
	fmt.Printf("%s (%s)\n", s.Name, s.ID)
	var visit func(objs []*scene.Object, depth int)
	visit = func(objs []*scene.Object, depth int) {
		for _, obj := range objs {
			kinds := make([]string, 0, len(obj.Components))
			for _, c := range obj.Components {
				kinds = append(kinds, string(c.Kind()))
			}
			fmt.Printf("%s- %s [%s] %s\n", strings.Repeat("  ", depth+1), obj.Name, obj.ID, strings.Join(kinds, ","))
			visit(obj.Children, depth+1)
		}
	}
	visit(s.Objects, 0)
}
