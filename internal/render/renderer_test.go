package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/snrmed/family-display-backend3/internal/aggregate"
	"github.com/snrmed/family-display-backend3/internal/apperr"
	"github.com/snrmed/family-display-backend3/internal/assets"
	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/presets"
	"github.com/snrmed/family-display-backend3/internal/provider"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string              { return s.name }
func (s *stubProvider) Fallback() json.RawMessage { return json.RawMessage(`{}`) }
func (s *stubProvider) Fetch(context.Context, provider.Params) (json.RawMessage, error) {
	return json.RawMessage(`{"temp":30}`), nil
}

type fakeEngine struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int
	delay       time.Duration
	err         error
}

func (e *fakeEngine) RenderToImage(ctx context.Context, req Request) ([]byte, error) {
	e.mu.Lock()
	e.inFlight++
	if e.inFlight > e.maxInFlight {
		e.maxInFlight = e.inFlight
	}
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	return []byte(fmt.Sprintf("png-%dx%d-call%d", req.Width, req.Height, call)), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRenderer(t *testing.T, engine Engine, withPreset bool) (*Renderer, blobstore.Provider) {
	t.Helper()
	store, err := blobstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	logger := discardLogger()
	reg := provider.NewRegistry(provider.Registration{
		Provider: &stubProvider{name: "weather"},
		Enabled:  true, TTL: time.Minute, Timeout: time.Second,
	})
	cache := provider.NewCache(reg, logger)
	agg := aggregate.New(reg, cache, "default", "Darwin", []string{"abstract"})
	resolver := assets.NewResolver(store)

	var presetStore *presets.Store
	if withPreset {
		dir := t.TempDir()
		path := filepath.Join(dir, "default.json")
		preset := `{"theme":"abstract","elements":[{"type":"date"}]}`
		if err := os.WriteFile(path, []byte(preset), 0o644); err != nil {
			t.Fatal(err)
		}
		presetStore = presets.NewStore(path, logger)
	}

	layouts := NewLayoutService(store, presetStore)
	r := NewRenderer(store, layouts, agg, resolver, engine, nil, logger, 800, 480, time.Second)
	return r, store
}

func TestRenderWritesDatedThenLatest(t *testing.T) {
	r, store := testRenderer(t, &fakeEngine{}, true)

	frame, err := r.Render(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	dated, err := store.Get(frame.DatedKey)
	if err != nil {
		t.Fatalf("dated bitmap missing: %v", err)
	}
	latest, err := store.Get("renders/dev1/latest.png")
	if err != nil {
		t.Fatalf("latest bitmap missing: %v", err)
	}
	if string(dated) != string(latest) {
		t.Error("latest must mirror the dated bitmap")
	}
	if frame.Size != len(latest) {
		t.Errorf("size = %d, want %d", frame.Size, len(latest))
	}
}

func TestRenderEngineFailurePreservesLatest(t *testing.T) {
	good := &fakeEngine{}
	r, store := testRenderer(t, good, true)

	if _, err := r.Render(context.Background(), "dev1"); err != nil {
		t.Fatalf("first render: %v", err)
	}
	before, _ := store.Get("renders/dev1/latest.png")

	// Swap in a failing engine and try again.
	r.engine = &fakeEngine{err: errors.New("chromium crashed")}
	_, err := r.Render(context.Background(), "dev1")
	if !errors.Is(err, apperr.ErrRenderEngine) {
		t.Fatalf("err = %v, want ErrRenderEngine", err)
	}

	after, err := store.Get("renders/dev1/latest.png")
	if err != nil {
		t.Fatalf("latest must survive an engine failure: %v", err)
	}
	if string(before) != string(after) {
		t.Error("latest changed despite engine failure")
	}
}

func TestRenderEngineFailureWithNoPriorFrame(t *testing.T) {
	r, store := testRenderer(t, &fakeEngine{err: errors.New("boom")}, true)

	if _, err := r.Render(context.Background(), "dev1"); err == nil {
		t.Fatal("expected engine error")
	}
	keys, _ := store.List("renders/")
	if len(keys) != 0 {
		t.Errorf("nothing may be persisted on failure, got %v", keys)
	}
}

func TestRenderNoLayoutNoPreset(t *testing.T) {
	r, _ := testRenderer(t, &fakeEngine{}, false)

	_, err := r.Render(context.Background(), "dev1")
	if !errors.Is(err, apperr.ErrLayoutNotFound) {
		t.Fatalf("err = %v, want ErrLayoutNotFound", err)
	}
}

func TestRenderUsesStoredLayoutOverPreset(t *testing.T) {
	r, store := testRenderer(t, &fakeEngine{}, true)
	layout := `{"theme":"kids","elements":[{"type":"joke"}]}`
	if err := store.Put("layouts/dev1.json", []byte(layout)); err != nil {
		t.Fatal(err)
	}

	eff, err := r.layouts.Effective("dev1")
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if eff.Theme != "kids" {
		t.Errorf("theme = %q, want the stored layout's theme", eff.Theme)
	}
}

func TestConcurrentRendersSameDeviceSerialized(t *testing.T) {
	engine := &fakeEngine{delay: 50 * time.Millisecond}
	r, store := testRenderer(t, engine, true)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Render(context.Background(), "dev1"); err != nil {
				t.Errorf("Render: %v", err)
			}
		}()
	}
	wg.Wait()

	if engine.maxInFlight != 1 {
		t.Errorf("maxInFlight = %d, want renders serialized per device", engine.maxInFlight)
	}

	// Latest must be exactly one engine output, never an interleaving.
	latest, err := store.Get("renders/dev1/latest.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(latest) != "png-800x480-call1" && string(latest) != "png-800x480-call2" {
		t.Errorf("latest = %q, not a complete single render", latest)
	}
}

func TestConcurrentRendersDifferentDevicesIndependent(t *testing.T) {
	engine := &fakeEngine{delay: 50 * time.Millisecond}
	r, _ := testRenderer(t, engine, true)

	var wg sync.WaitGroup
	start := time.Now()
	for _, dev := range []string{"dev1", "dev2"} {
		dev := dev
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Render(context.Background(), dev); err != nil {
				t.Errorf("Render(%s): %v", dev, err)
			}
		}()
	}
	wg.Wait()

	// Two devices with a 50ms engine each: concurrent, not 100ms+ serial.
	if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
		t.Errorf("renders took %v, want independent devices to overlap", elapsed)
	}
}

func TestLatestBeforeAnyRender(t *testing.T) {
	r, _ := testRenderer(t, &fakeEngine{}, true)
	_, _, err := r.Latest("dev1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLatestFingerprintTracksContent(t *testing.T) {
	r, _ := testRenderer(t, &fakeEngine{}, true)

	if _, err := r.Render(context.Background(), "dev1"); err != nil {
		t.Fatal(err)
	}
	_, etag1, err := r.Latest("dev1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Render(context.Background(), "dev1"); err != nil {
		t.Fatal(err)
	}
	_, etag2, err := r.Latest("dev1")
	if err != nil {
		t.Fatal(err)
	}

	// The fake engine numbers its outputs, so content differs.
	if etag1 == etag2 {
		t.Error("changing latest must change the fingerprint")
	}
}

func TestRenderDataWithoutLayout(t *testing.T) {
	r, _ := testRenderer(t, &fakeEngine{}, false)

	data, err := r.RenderData(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("RenderData: %v", err)
	}
	if _, ok := data.Providers["weather"]; !ok {
		t.Error("weather entry missing")
	}
	if data.City != "Darwin" {
		t.Errorf("city = %q", data.City)
	}
}
