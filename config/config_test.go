package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type testConfig struct {
	Name  string `toml:"name" json:"name"`
	Level int    `toml:"level" json:"level"`
}

func (c *testConfig) Validate() error {
	if c.Level < 0 {
		return errors.New("level must be >= 0")
	}
	return nil
}

func TestLoadTOMLDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")
	defaults := &testConfig{Name: "base", Level: 1}

	cfg, err := LoadTOML(path, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *defaults {
		t.Fatalf("missing file: got %+v", cfg)
	}
	if cfg == defaults {
		t.Fatal("LoadTOML must not return the defaults pointer")
	}

	os.WriteFile(path, []byte("level = 3\n"), 0o644)
	cfg, err = LoadTOML(path, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "base" || cfg.Level != 3 {
		t.Fatalf("got %+v", cfg)
	}

	os.WriteFile(path, []byte("level = -1\n"), 0o644)
	if _, err := LoadTOML(path, defaults); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadTOMLLeavesDefaultsAlone(t *testing.T) {
	type listConfig struct {
		Tags []string `toml:"tags" json:"tags"`
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")
	os.WriteFile(path, []byte("tags = [\"x\"]\n"), 0o644)
	defaults := &listConfig{Tags: []string{"a"}}

	cfg, err := LoadTOML(path, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Tags) != 1 || cfg.Tags[0] != "x" {
		t.Fatalf("got %v", cfg.Tags)
	}
	if defaults.Tags[0] != "a" {
		t.Fatalf("defaults mutated: %v", defaults.Tags)
	}
}

func TestStoreNotifiesUntilCancelled(t *testing.T) {
	s := NewStore(&testConfig{Name: "a"})
	var calls int
	cancel := s.OnChange(func(old, new_ *testConfig) {
		calls++
		if old.Name != "a" && calls == 1 {
			t.Errorf("old = %+v", old)
		}
	})
	s.Swap(&testConfig{Name: "b"})
	cancel()
	s.Swap(&testConfig{Name: "c"})

	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
	if s.Get().Name != "c" {
		t.Fatalf("Get() = %+v", s.Get())
	}
}

func TestBridgeKeepsPreviousValueOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	defaults := &testConfig{}
	s := NewStore(defaults)
	b := NewWorkspaceBridge(s, path, defaults)

	if err := b.SetOverlay([]byte(`{"name": "editor"}`)); err != nil {
		t.Fatal(err)
	}
	if s.Get().Name != "editor" {
		t.Fatalf("overlay not applied: %+v", s.Get())
	}
	if err := b.SetOverlay([]byte(`{"level": -5}`)); err == nil {
		t.Fatal("expected validation error")
	}
	if s.Get().Name != "editor" {
		t.Fatalf("store changed after failed reload: %+v", s.Get())
	}
}

func TestWatcherSeesFileCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")

	var reloads atomic.Int32
	w, err := NewWatcher(path, func() { reloads.Add(1) }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o644)
	os.WriteFile(path, []byte("name = \"x\"\n"), 0o644)

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("watcher did not fire for the config file")
	}
}

func TestWatcherDebouncesAndStopsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")

	var reloads atomic.Int32
	w, err := NewWatcher(path, func() { reloads.Add(1) }, WithDebounce(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	for i := range 5 {
		os.WriteFile(path, []byte(fmt.Sprintf("level = %d\n", i)), 0o644)
	}
	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := reloads.Load(); n == 0 || n >= 5 {
		t.Fatalf("reloads after a burst of writes = %d, want a debounced count", n)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	before := reloads.Load()
	os.WriteFile(path, []byte("level = 9\n"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if reloads.Load() != before {
		t.Fatal("callback ran after Close")
	}
}
