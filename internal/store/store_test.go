package store

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kokistudios/blame/internal/blame"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	home := filepath.Join(t.TempDir(), ".blame")
	if err := Init(home, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func TestInit(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, ".blame")

	if err := Init(home, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for _, f := range []string{"config.yaml", "overrides.yaml"} {
		if _, err := os.Stat(filepath.Join(home, f)); err != nil {
			t.Errorf("expected %s to exist", f)
		}
	}

	// Second init should fail without force
	if err := Init(home, false); err == nil {
		t.Error("expected error on duplicate init")
	}

	// Force should succeed
	if err := Init(home, true); err != nil {
		t.Errorf("expected force init to succeed: %v", err)
	}
}

func TestLoad(t *testing.T) {
	s := newTestStore(t)
	if filepath.Base(s.Home) != ".blame" {
		t.Errorf("unexpected Home %s", s.Home)
	}
	if s.Config.Blame.CommitSkippingMode != blame.ModeNone {
		t.Errorf("expected default mode none, got %s", s.Config.Blame.CommitSkippingMode)
	}
}

func TestLoadOrDefault(t *testing.T) {
	home := filepath.Join(t.TempDir(), "missing")
	s, err := LoadOrDefault(home)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if s.Config.Git.Path != "git" {
		t.Errorf("expected default git path, got %s", s.Config.Git.Path)
	}
	if _, err := os.Stat(home); err == nil {
		t.Error("LoadOrDefault must not create BLAME_HOME")
	}

	// A broken config is still an error.
	bad := t.TempDir()
	os.WriteFile(filepath.Join(bad, "config.yaml"), []byte("git: [\n"), 0644)
	if _, err := LoadOrDefault(bad); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestPath(t *testing.T) {
	s := &Store{Home: "/tmp/.blame"}
	got := s.Path("overrides.yaml")
	want := filepath.Join("/tmp/.blame", "overrides.yaml")
	if got != want {
		t.Errorf("Path() = %s, want %s", got, want)
	}
}

func TestHomeEnvVar(t *testing.T) {
	t.Setenv("BLAME_HOME", "/custom/path")
	if got := Home(); got != "/custom/path" {
		t.Errorf("Home() = %s, want /custom/path", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Git.Path != "git" {
		t.Errorf("expected default git path 'git', got %s", cfg.Git.Path)
	}
	if cfg.Blame.RelativeDates {
		t.Error("expected relative_dates false by default")
	}
	if cfg.Blame.WalkLimit != blame.DefaultWalkLimit {
		t.Errorf("expected walk_limit %d, got %d", blame.DefaultWalkLimit, cfg.Blame.WalkLimit)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Size != 128 {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	s := newTestStore(t)

	// Write a minimal config with only version
	os.WriteFile(s.Path("config.yaml"), []byte("version: \"1\"\n"), 0644)

	s, err := Load(s.Home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Config.Git.Path != "git" {
		t.Errorf("expected default git path, got %s", s.Config.Git.Path)
	}
	if s.Config.Cache.Size != 128 {
		t.Errorf("expected default cache size, got %d", s.Config.Cache.Size)
	}
}

func TestSetConfigValue(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		key, value, want string
	}{
		{"git.path", "/usr/local/bin/git", "/usr/local/bin/git"},
		{"git.custom_blame_flags", "--root, -e", "--root -e"},
		{"blame.commit_skipping_mode", "cross_any_file", "cross_any_file"},
		{"blame.commit_skipping_mode", "false", "none"},
		{"blame.relative_dates", "true", "true"},
		{"blame.walk_limit", "7", "7"},
		{"cache.enabled", "false", "false"},
		{"cache.size", "16", "16"},
	}
	for _, tt := range tests {
		if err := s.SetConfigValue(tt.key, tt.value); err != nil {
			t.Fatalf("SetConfigValue(%s, %s): %v", tt.key, tt.value, err)
		}
		got, err := s.GetConfigValue(tt.key)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}

	// Reload and verify persistence
	s2, _ := Load(s.Home)
	if s2.Config.Git.Path != "/usr/local/bin/git" {
		t.Errorf("config not persisted, got %s", s2.Config.Git.Path)
	}
	if len(s2.Config.Git.CustomBlameFlags) != 2 {
		t.Errorf("expected two custom flags, got %v", s2.Config.Git.CustomBlameFlags)
	}
	opts := s2.ResolverOptions()
	if !opts.RelativeDates || len(opts.ExtraFlags) != 2 {
		t.Errorf("unexpected resolver options %+v", opts)
	}
}

func TestSetConfigValue_Invalid(t *testing.T) {
	s := newTestStore(t)

	tests := []struct{ key, value string }{
		{"nonexistent.key", "value"},
		{"git.path", "  "},
		{"blame.commit_skipping_mode", "sideways"},
		{"blame.relative_dates", "maybe"},
		{"blame.walk_limit", "notanumber"},
		{"blame.walk_limit", "0"},
		{"cache.size", "-3"},
	}
	for _, tt := range tests {
		if err := s.SetConfigValue(tt.key, tt.value); err == nil {
			t.Errorf("expected error for %s=%q", tt.key, tt.value)
		}
	}
	if _, err := s.GetConfigValue("nonexistent.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestEffectiveMode(t *testing.T) {
	s := newTestStore(t)
	file := filepath.Join(t.TempDir(), "main.go")
	os.WriteFile(file, []byte("package main\n"), 0644)

	m, src, err := s.EffectiveMode(file, "")
	if err != nil || m.Key != blame.ModeNone || src != SourceConfig {
		t.Fatalf("default: got %s from %s, err %v", m.Key, src, err)
	}

	if err := s.SetPermanentMode(blame.ModeSameFileSameCommit); err != nil {
		t.Fatal(err)
	}
	m, src, _ = s.EffectiveMode(file, "")
	if m.Key != blame.ModeSameFileSameCommit || src != SourceConfig {
		t.Errorf("permanent: got %s from %s", m.Key, src)
	}

	if err := s.SetTemporaryMode(file, blame.ModeCrossAnyFile); err != nil {
		t.Fatal(err)
	}
	m, src, _ = s.EffectiveMode(file, "")
	if m.Key != blame.ModeCrossAnyFile || src != SourceOverride {
		t.Errorf("temporary: got %s from %s", m.Key, src)
	}

	// Relative paths name the same file.
	wd, _ := os.Getwd()
	if rel, err := filepath.Rel(wd, file); err == nil {
		m, _, _ = s.EffectiveMode(rel, "")
		if m.Key != blame.ModeCrossAnyFile {
			t.Errorf("relative path: got %s", m.Key)
		}
	}

	m, src, _ = s.EffectiveMode(file, blame.ModeCrossAnyHistoricalFile)
	if m.Key != blame.ModeCrossAnyHistoricalFile || src != SourceFlag {
		t.Errorf("flag: got %s from %s", m.Key, src)
	}

	if _, _, err := s.EffectiveMode(file, "bogus"); err == nil {
		t.Error("expected error for unknown flag mode")
	}

	cleared, err := s.ClearTemporaryMode(file)
	if err != nil || !cleared {
		t.Fatalf("ClearTemporaryMode = %v, %v", cleared, err)
	}
	cleared, _ = s.ClearTemporaryMode(file)
	if cleared {
		t.Error("second clear should report nothing removed")
	}
	m, _, _ = s.EffectiveMode(file, "")
	if m.Key != blame.ModeSameFileSameCommit {
		t.Errorf("after clear: got %s", m.Key)
	}
}

func TestTemporaryModes(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	for _, name := range []string{"b.go", "a.go"} {
		p := filepath.Join(dir, name)
		os.WriteFile(p, nil, 0644)
		if err := s.SetTemporaryMode(p, blame.ModeCrossAnyFile); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetTemporaryMode(filepath.Join(dir, "c.go"), "nope"); err == nil {
		t.Error("expected error for unknown mode")
	}

	list, err := s.TemporaryModes()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || !strings.HasSuffix(list[0].Path, "a.go") {
		t.Errorf("unexpected overrides %+v", list)
	}
}

func TestCheckHealth(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	s := newTestStore(t)

	issues := CheckHealth(s.Home)
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}

	os.WriteFile(s.Path("config.yaml"), []byte("blame:\n  commit_skipping_mode: sideways\ngit:\n  custom_blame_flags: [--porcelain]\n"), 0644)
	issues = CheckHealth(s.Home)
	if len(issues) != 2 {
		t.Errorf("expected two issues, got %v", issues)
	}

	os.Remove(s.Path("config.yaml"))
	issues = CheckHealth(s.Home)
	if len(issues) == 0 {
		t.Error("expected issues after removing config.yaml")
	}
}

func TestCheckHealth_MissingHome(t *testing.T) {
	issues := CheckHealth(filepath.Join(t.TempDir(), "nope"))
	if len(issues) != 1 || issues[0].Severity != "error" {
		t.Errorf("expected a single error, got %v", issues)
	}
}

func TestFixIssues(t *testing.T) {
	s := newTestStore(t)
	file := filepath.Join(t.TempDir(), "gone.go")
	os.WriteFile(file, nil, 0644)
	s.SetTemporaryMode(file, blame.ModeCrossAnyFile)
	os.Remove(file)
	os.Remove(s.Path("config.yaml"))

	fixed := FixIssues(s.Home)
	if len(fixed) != 2 {
		t.Errorf("expected two fixes, got %v", fixed)
	}

	if _, err := os.Stat(s.Path("config.yaml")); err != nil {
		t.Error("config.yaml not recreated")
	}
	list, _ := s.TemporaryModes()
	if len(list) != 0 {
		t.Errorf("stale override not removed: %v", list)
	}
}

func TestFixIssues_ResetsUnknownMode(t *testing.T) {
	s := newTestStore(t)
	os.WriteFile(s.Path("config.yaml"), []byte("blame:\n  commit_skipping_mode: sideways\n"), 0644)

	fixed := FixIssues(s.Home)
	if len(fixed) != 1 {
		t.Fatalf("expected one fix, got %v", fixed)
	}
	s2, _ := Load(s.Home)
	if s2.Config.Blame.CommitSkippingMode != blame.ModeNone {
		t.Errorf("mode not reset, got %s", s2.Config.Blame.CommitSkippingMode)
	}
}

func TestFixIssues_OverridesWriteFails(t *testing.T) {
	s := newTestStore(t)
	file := filepath.Join(t.TempDir(), "gone.go")
	os.WriteFile(file, nil, 0644)
	if err := s.SetTemporaryMode(file, blame.ModeCrossAnyFile); err != nil {
		t.Fatal(err)
	}
	os.Remove(file)

	orig := writeFile
	writeFile = func(name string, data []byte, perm os.FileMode) error {
		if filepath.Base(name) == "overrides.yaml" {
			return errors.New("disk full")
		}
		return orig(name, data, perm)
	}
	t.Cleanup(func() { writeFile = orig })

	if fixed := FixIssues(s.Home); len(fixed) != 0 {
		t.Errorf("nothing was written, expected no fixes reported, got %v", fixed)
	}
	list, _ := s.TemporaryModes()
	if len(list) != 1 {
		t.Errorf("override should still be on disk, got %v", list)
	}
}
