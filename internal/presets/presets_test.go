package presets

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePreset(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.json")
	writePreset(t, path, `{"theme":"kids","elements":[{"type":"date"},{"type":"joke"}]}`)

	s := NewStore(path, discardLogger())
	layout := s.Current()
	if layout == nil {
		t.Fatal("preset not loaded")
	}
	if layout.Theme != "kids" || len(layout.Elements) != 2 {
		t.Errorf("layout = %+v", layout)
	}
}

func TestMissingFileIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	s := NewStore(path, discardLogger())
	if got := s.Current(); got != nil {
		t.Errorf("Current = %+v, want nil", got)
	}
}

func TestBrokenFileYieldsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.json")
	writePreset(t, path, `{"theme": broken`)

	s := NewStore(path, discardLogger())
	if got := s.Current(); got != nil {
		t.Errorf("Current = %+v, want nil", got)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.json")
	writePreset(t, path, `{"theme":"abstract","elements":[{"type":"date"}]}`)

	s := NewStore(path, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Allow the watcher to register before mutating the file.
	time.Sleep(100 * time.Millisecond)
	writePreset(t, path, `{"theme":"photo","elements":[{"type":"date"}]}`)

	ok := waitFor(t, 3*time.Second, func() bool {
		l := s.Current()
		return l != nil && l.Theme == "photo"
	})
	if !ok {
		t.Error("preset change not picked up")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch did not stop on cancel")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.json")
	writePreset(t, path, `{"theme":"abstract","elements":[{"type":"date"}]}`)

	s := NewStore(path, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writePreset(t, filepath.Join(dir, "unrelated.json"), `{"theme":"kids","elements":[{"type":"x"}]}`)
	time.Sleep(400 * time.Millisecond)

	if l := s.Current(); l == nil || l.Theme != "abstract" {
		t.Errorf("layout = %+v, want the original preset", l)
	}
}

func TestWatchSurvivesBrokenIntermediateWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.json")
	writePreset(t, path, `{"theme":"abstract","elements":[{"type":"date"}]}`)

	s := NewStore(path, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writePreset(t, path, `{"theme": nope`)
	waitFor(t, 2*time.Second, func() bool { return s.Current() == nil })

	writePreset(t, path, `{"theme":"geometric","elements":[{"type":"date"}]}`)
	ok := waitFor(t, 3*time.Second, func() bool {
		l := s.Current()
		return l != nil && l.Theme == "geometric"
	})
	if !ok {
		t.Error("valid rewrite after broken write not picked up")
	}
}
