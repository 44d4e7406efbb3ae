package store

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/blame/internal/blame"
)

// GitConfig holds settings for the git binary.
type GitConfig struct {
	Path             string   `yaml:"path"`
	CustomBlameFlags []string `yaml:"custom_blame_flags"`
}

// BlameConfig holds query defaults.
type BlameConfig struct {
	CommitSkippingMode string `yaml:"commit_skipping_mode"`
	RelativeDates      bool   `yaml:"relative_dates"`
	WalkLimit          int    `yaml:"walk_limit"`
}

// CacheConfig controls the in-memory blame cache used by the MCP server.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// Config holds blame configuration.
type Config struct {
	Version string      `yaml:"version"`
	Git     GitConfig   `yaml:"git"`
	Blame   BlameConfig `yaml:"blame"`
	Cache   CacheConfig `yaml:"cache"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Git: GitConfig{
			Path:             "git",
			CustomBlameFlags: []string{},
		},
		Blame: BlameConfig{
			CommitSkippingMode: blame.ModeNone,
			WalkLimit:          blame.DefaultWalkLimit,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    128,
		},
	}
}

// ConfigKeys lists the keys accepted by SetConfigValue and GetConfigValue.
var ConfigKeys = []string{
	"git.path",
	"git.custom_blame_flags",
	"blame.commit_skipping_mode",
	"blame.relative_dates",
	"blame.walk_limit",
	"cache.enabled",
	"cache.size",
}

// writeFile is swapped in tests to simulate write failures.
var writeFile = os.WriteFile

const (
	configFile    = "config.yaml"
	overridesFile = "overrides.yaml"
)

// Store represents a loaded BLAME_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Home returns the BLAME_HOME path, respecting the BLAME_HOME env var.
func Home() string {
	if h := os.Getenv("BLAME_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".blame")
	}
	return filepath.Join(home, ".blame")
}

// Init creates BLAME_HOME with a default config and no overrides.
func Init(home string, force bool) error {
	if _, err := os.Stat(home); err == nil && !force {
		return fmt.Errorf("BLAME_HOME already exists at %s (use --force to reinitialize)", home)
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", home, err)
	}

	s := &Store{Home: home, Config: DefaultConfig()}
	if err := s.SaveConfig(); err != nil {
		return err
	}
	return s.saveOverrides(overrides{})
}

// Load reads an existing BLAME_HOME.
// Missing config fields are filled from defaults.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, configFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read BLAME_HOME config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

// LoadOrDefault is Load, except that a BLAME_HOME without config.yaml yields
// the default config instead of an error. Nothing is written to disk.
func LoadOrDefault(home string) (*Store, error) {
	s, err := Load(home)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return &Store{Home: home, Config: DefaultConfig()}, nil
	}
	return nil, err
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(s.Home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Home, err)
	}
	if err := writeFile(s.Path(configFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetConfigValue sets a config value by dot-path key (e.g. "git.path").
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "git.path":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("git.path must not be empty")
		}
		s.Config.Git.Path = value
	case "git.custom_blame_flags":
		s.Config.Git.CustomBlameFlags = strings.Fields(strings.ReplaceAll(value, ",", " "))
	case "blame.commit_skipping_mode":
		mode, err := blame.LookupMode(value)
		if err != nil {
			return err
		}
		s.Config.Blame.CommitSkippingMode = mode.Key
	case "blame.relative_dates":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("blame.relative_dates must be true or false")
		}
		s.Config.Blame.RelativeDates = b
	case "blame.walk_limit":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("blame.walk_limit must be a positive integer")
		}
		s.Config.Blame.WalkLimit = n
	case "cache.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cache.enabled must be true or false")
		}
		s.Config.Cache.Enabled = b
	case "cache.size":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("cache.size must be a positive integer")
		}
		s.Config.Cache.Size = n
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys, ", "))
	}
	return s.SaveConfig()
}

// GetConfigValue renders a config value by dot-path key.
func (s *Store) GetConfigValue(key string) (string, error) {
	c := s.Config
	switch key {
	case "git.path":
		return c.Git.Path, nil
	case "git.custom_blame_flags":
		return strings.Join(c.Git.CustomBlameFlags, " "), nil
	case "blame.commit_skipping_mode":
		return c.Blame.CommitSkippingMode, nil
	case "blame.relative_dates":
		return strconv.FormatBool(c.Blame.RelativeDates), nil
	case "blame.walk_limit":
		return strconv.Itoa(c.Blame.WalkLimit), nil
	case "cache.enabled":
		return strconv.FormatBool(c.Cache.Enabled), nil
	case "cache.size":
		return strconv.Itoa(c.Cache.Size), nil
	}
	return "", fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys, ", "))
}

// Path resolves a path within BLAME_HOME.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// ResolverOptions builds the resolver configuration from the loaded config.
func (s *Store) ResolverOptions() blame.Options {
	return blame.Options{
		ExtraFlags:    append([]string(nil), s.Config.Git.CustomBlameFlags...),
		RelativeDates: s.Config.Blame.RelativeDates,
	}
}

// Mode sources reported by EffectiveMode.
const (
	SourceFlag     = "flag"
	SourceOverride = "temporary"
	SourceConfig   = "config"
)

// EffectiveMode picks the commit-skipping mode for path. An explicit flag
// wins, then a temporary per-file override, then the configured default.
func (s *Store) EffectiveMode(path, flag string) (blame.ModeMetadata, string, error) {
	if flag != "" {
		m, err := blame.LookupMode(flag)
		return m, SourceFlag, err
	}
	ov, err := s.loadOverrides()
	if err != nil {
		return blame.ModeMetadata{}, "", err
	}
	if key, ok := ov.Modes[overrideKey(path)]; ok {
		m, err := blame.LookupMode(key)
		return m, SourceOverride, err
	}
	m, err := blame.LookupMode(s.Config.Blame.CommitSkippingMode)
	return m, SourceConfig, err
}

// SetPermanentMode makes key the default mode for every file.
func (s *Store) SetPermanentMode(key string) error {
	return s.SetConfigValue("blame.commit_skipping_mode", key)
}

// SetTemporaryMode overrides the mode for one file until cleared.
func (s *Store) SetTemporaryMode(path, key string) error {
	mode, err := blame.LookupMode(key)
	if err != nil {
		return err
	}
	ov, err := s.loadOverrides()
	if err != nil {
		return err
	}
	ov.Modes[overrideKey(path)] = mode.Key
	return s.saveOverrides(ov)
}

// ClearTemporaryMode removes path's override and reports whether one existed.
func (s *Store) ClearTemporaryMode(path string) (bool, error) {
	ov, err := s.loadOverrides()
	if err != nil {
		return false, err
	}
	k := overrideKey(path)
	if _, ok := ov.Modes[k]; !ok {
		return false, nil
	}
	delete(ov.Modes, k)
	return true, s.saveOverrides(ov)
}

// TemporaryMode is one per-file override.
type TemporaryMode struct {
	Path string
	Mode string
}

// TemporaryModes lists overrides sorted by path.
func (s *Store) TemporaryModes() ([]TemporaryMode, error) {
	ov, err := s.loadOverrides()
	if err != nil {
		return nil, err
	}
	list := make([]TemporaryMode, 0, len(ov.Modes))
	for p, m := range ov.Modes {
		list = append(list, TemporaryMode{Path: p, Mode: m})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	return list, nil
}

type overrides struct {
	Modes map[string]string `yaml:"modes"`
}

func (s *Store) loadOverrides() (overrides, error) {
	ov := overrides{}
	data, err := os.ReadFile(s.Path(overridesFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ov, fmt.Errorf("cannot read overrides: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &ov); err != nil {
			return ov, fmt.Errorf("invalid overrides.yaml: %w", err)
		}
	}
	if ov.Modes == nil {
		ov.Modes = map[string]string{}
	}
	return ov, nil
}

func (s *Store) saveOverrides(ov overrides) error {
	if ov.Modes == nil {
		ov.Modes = map[string]string{}
	}
	data, err := yaml.Marshal(ov)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}
	if err := os.MkdirAll(s.Home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Home, err)
	}
	if err := writeFile(s.Path(overridesFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write overrides: %w", err)
	}
	return nil
}

// overrideKey identifies a file the same way regardless of how it was named.
func overrideKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// CheckHealth verifies BLAME_HOME integrity and that git can be run.
func CheckHealth(home string) []Issue {
	var issues []Issue

	info, err := os.Stat(home)
	if err != nil {
		return []Issue{{"error", fmt.Sprintf("BLAME_HOME does not exist: %s", home)}}
	} else if !info.IsDir() {
		return []Issue{{"error", fmt.Sprintf("expected directory but found file: %s", home)}}
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(filepath.Join(home, configFile))
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
	} else {
		issues = append(issues, checkConfig(cfg)...)
	}

	if _, err := exec.LookPath(cfg.Git.Path); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("git binary %q not found: %v", cfg.Git.Path, err)})
	}

	s := &Store{Home: home, Config: cfg}
	ov, err := s.loadOverrides()
	if err != nil {
		issues = append(issues, Issue{"error", err.Error()})
		return issues
	}
	for path, key := range ov.Modes {
		if _, err := blame.LookupMode(key); err != nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("override for %s has unknown mode %q", path, key)})
		}
		if _, err := os.Stat(path); err != nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("override for missing file: %s", path)})
		}
	}
	return issues
}

func checkConfig(cfg Config) []Issue {
	var issues []Issue
	if _, err := blame.LookupMode(cfg.Blame.CommitSkippingMode); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("blame.commit_skipping_mode: unknown mode %q", cfg.Blame.CommitSkippingMode)})
	}
	if cfg.Blame.WalkLimit < 1 {
		issues = append(issues, Issue{"warning", "blame.walk_limit is not positive; the built-in limit will be used"})
	}
	if cfg.Cache.Enabled && cfg.Cache.Size < 1 {
		issues = append(issues, Issue{"error", "cache.size must be positive when the cache is enabled"})
	}
	for _, f := range cfg.Git.CustomBlameFlags {
		if f == "--" || f == "--porcelain" || f == "--line-porcelain" || f == "-p" {
			issues = append(issues, Issue{"error", fmt.Sprintf("git.custom_blame_flags: %s changes the output format and breaks parsing", f)})
		}
	}
	return issues
}

// FixIssues attempts to repair simple issues in BLAME_HOME.
func FixIssues(home string) []string {
	var fixed []string

	if _, err := os.Stat(home); err != nil {
		if err := os.MkdirAll(home, 0755); err == nil {
			fixed = append(fixed, fmt.Sprintf("recreated missing directory: %s", home))
		}
	}

	s := &Store{Home: home, Config: DefaultConfig()}
	if _, err := os.Stat(s.Path(configFile)); err != nil {
		if s.SaveConfig() == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	} else if loaded, err := Load(home); err == nil {
		s = loaded
		if _, err := blame.LookupMode(s.Config.Blame.CommitSkippingMode); err != nil {
			s.Config.Blame.CommitSkippingMode = blame.ModeNone
			if s.SaveConfig() == nil {
				fixed = append(fixed, "reset blame.commit_skipping_mode to none")
			}
		}
	}

	ov, err := s.loadOverrides()
	if err != nil {
		if s.saveOverrides(overrides{}) == nil {
			fixed = append(fixed, "replaced unreadable overrides.yaml")
		}
		return fixed
	}
	var removed []string
	for path, key := range ov.Modes {
		_, modeErr := blame.LookupMode(key)
		_, statErr := os.Stat(path)
		if modeErr != nil || statErr != nil {
			delete(ov.Modes, path)
			removed = append(removed, path)
		}
	}
	if len(removed) == 0 || s.saveOverrides(ov) != nil {
		return fixed
	}
	sort.Strings(removed)
	for _, path := range removed {
		fixed = append(fixed, fmt.Sprintf("removed stale override: %s", path))
	}
	return fixed
}
