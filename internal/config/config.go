// internal/config/config.go
//
// This package handles configuration and the .pzedit directory structure.
// Every project opened with pzedit gets a .pzedit/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/pzedit/internal/storage"
)

const (
	// Dir is the name of the directory we create in each project.
	Dir = ".pzedit"

	defaultProjectFile  = "project.yaml"
	defaultDebounceMS   = 150
	defaultHistoryLimit = 200
)

const defaultProjectConfigYAML = `# pzedit project configuration
version: 1

# Project document, relative to the project directory.
project: project.yaml

# Scene id opened by default. Empty opens the first scene of the project.
default_scene: ""

assets:
  # Directories (relative to the project) watched for asset changes.
  roots:
    - assets
  watch: true
  # Changes arriving within this window are reported as one event.
  debounce_ms: 150

history:
  # Number of undo steps kept per session.
  limit: 200

# Local HTTP intake for asset events from the desktop shell.
event_bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765
`

// AssetsConfig controls asset discovery and watching.
type AssetsConfig struct {
	Roots      []string `yaml:"roots"`
	Watch      *bool    `yaml:"watch,omitempty"`
	DebounceMS int      `yaml:"debounce_ms"`
}

// HistoryConfig bounds the undo history.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// EventBridgeConfig is the raw event_bridge block; unset fields fall back to
// eventbridge defaults.
type EventBridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .pzedit/config.yaml.
type ProjectConfig struct {
	Version      int               `yaml:"version"`
	Project      string            `yaml:"project"`
	DefaultScene string            `yaml:"default_scene"`
	Assets       AssetsConfig      `yaml:"assets"`
	History      HistoryConfig     `yaml:"history"`
	EventBridge  EventBridgeConfig `yaml:"event_bridge"`
}

// Config holds the resolved configuration of one project directory.
type Config struct {
	// ProjectDir is the directory pzedit was pointed at.
	ProjectDir string

	// StateRoot is ProjectDir/.pzedit
	StateRoot string

	Project ProjectConfig
}

// InitProjectDir creates the .pzedit directory structure in projectDir and
// writes the commented default config when none exists.
//
// Structure created:
// .pzedit/
// ├── config.yaml
// ├── logs/     <- pzedit.log and the diagnostics logbook
// └── state/    <- session state between runs
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, Dir)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads .pzedit/config.yaml from projectDir. A missing file yields
// the defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateRoot:  filepath.Join(projectDir, Dir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the session state directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// ConfigPath returns the on-disk location of the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// ProjectKey returns the storage key of the project document.
func (c *Config) ProjectKey() string {
	return c.Project.Project
}

// StateKey returns the storage key of the persisted session state.
func (c *Config) StateKey() string {
	return Dir + "/state/session.yaml"
}

// Debounce returns the watcher coalescing window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Project.Assets.DebounceMS) * time.Millisecond
}

// WatchAssets reports whether the asset watcher should run.
func (c *Config) WatchAssets() bool {
	return c.Project.Assets.Watch == nil || *c.Project.Assets.Watch
}

// AssetRoots returns the watched asset directories as absolute paths.
func (c *Config) AssetRoots() []string {
	out := make([]string, 0, len(c.Project.Assets.Roots))
	for _, root := range c.Project.Assets.Roots {
		out = append(out, filepath.Join(c.ProjectDir, filepath.FromSlash(root)))
	}
	return out
}

// HistoryLimit returns the configured undo depth.
func (c *Config) HistoryLimit() int {
	return c.Project.History.Limit
}

// SetDefaultScene records sceneID as the scene to open by default and
// persists the config.
func (c *Config) SetDefaultScene(sceneID string) error {
	c.Project.DefaultScene = strings.TrimSpace(sceneID)
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	pc.Assets.Roots = []string{"assets"}
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Project) == "" {
		pc.Project = defaultProjectFile
	}
	if pc.Assets.DebounceMS == 0 {
		pc.Assets.DebounceMS = defaultDebounceMS
	}
	if pc.History.Limit == 0 {
		pc.History.Limit = defaultHistoryLimit
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Project = filepath.ToSlash(strings.TrimSpace(pc.Project))
	pc.DefaultScene = strings.TrimSpace(pc.DefaultScene)
	roots := pc.Assets.Roots[:0]
	for _, root := range pc.Assets.Roots {
		root = filepath.ToSlash(strings.TrimSpace(root))
		if root == "" || contains(roots, root) {
			continue
		}
		roots = append(roots, root)
	}
	pc.Assets.Roots = roots
	pc.EventBridge.Host = strings.TrimSpace(pc.EventBridge.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if _, err := storage.CleanKey(pc.Project); err != nil {
		return fmt.Errorf("project: %w", err)
	}
	for i, root := range pc.Assets.Roots {
		if _, err := storage.CleanKey(root); err != nil {
			return fmt.Errorf("assets.roots[%d]: %w", i, err)
		}
	}
	if pc.Assets.DebounceMS < 0 {
		return fmt.Errorf("assets.debounce_ms must be >= 0")
	}
	if pc.History.Limit < 0 {
		return fmt.Errorf("history.limit must be >= 0")
	}
	if pc.EventBridge.Port < 0 || pc.EventBridge.Port > 65535 {
		return fmt.Errorf("event_bridge.port %d out of range", pc.EventBridge.Port)
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateRoot, 0o755); err != nil {
		return fmt.Errorf("config: ensure %s: %w", Dir, err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
