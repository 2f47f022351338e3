// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/snrmed/family-display-backend3/internal/aggregate"
	"github.com/snrmed/family-display-backend3/internal/api"
	"github.com/snrmed/family-display-backend3/internal/assets"
	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/presets"
	"github.com/snrmed/family-display-backend3/internal/provider"
	"github.com/snrmed/family-display-backend3/internal/registry"
	"github.com/snrmed/family-display-backend3/internal/render"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("registry_path", cfg.Registry.Path),
		slog.String("city_mode", cfg.City.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the blob store root exists.
	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	// Initialize blob store.
	store, err := blobstore.NewFS(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	// Initialize device registry.
	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	defer reg.Close()

	// Default layout preset (optional).
	var presetStore *presets.Store
	if cfg.Render.PresetPath != "" {
		presetStore = presets.NewStore(cfg.Render.PresetPath, logger)
	}

	// Provider table, cache, and aggregator.
	pw := cfg.Providers.Weather
	pf := cfg.Providers.Forecast
	pj := cfg.Providers.Joke
	providers := provider.NewRegistry(
		provider.Registration{
			Provider: provider.NewWeather(pw.APIKey, pw.BaseURL, nil),
			Enabled:  pw.Enabled, TTL: pw.TTL(), Timeout: pw.Timeout(), Retries: pw.Retries,
		},
		provider.Registration{
			Provider: provider.NewForecast(pw.APIKey, pw.BaseURL, pf.Days, nil),
			Enabled:  pf.Enabled, TTL: pf.TTL(), Timeout: pf.Timeout(), Retries: pf.Retries,
		},
		provider.Registration{
			Provider: provider.NewJoke(pj.BaseURL, nil),
			Enabled:  pj.Enabled, TTL: pj.TTL(), Timeout: pj.Timeout(), Retries: pj.Retries,
		},
	)
	cache := provider.NewCache(providers, logger)
	agg := aggregate.New(providers, cache, cfg.City.Mode, cfg.City.Default, cfg.Prefetch.Themes)

	// Image pipeline.
	resolver := assets.NewResolver(store)
	imageSource := app.imageSource
	if imageSource == nil {
		imageSource = assets.NewPexels(cfg.Prefetch.SourceAPIKey, cfg.Prefetch.SourceBaseURL, nil)
	}
	prefetcher := assets.NewPrefetcher(store, imageSource, logger,
		cfg.Prefetch.CacheExpiryDays, cfg.Prefetch.FetchTimeout())

	// Frame renderer.
	engine := app.engine
	if engine == nil {
		engine = render.NewHTTPEngine(cfg.Render.EngineURL, nil)
	}
	layouts := render.NewLayoutService(store, presetStore)
	renderer := render.NewRenderer(store, layouts, agg, resolver, engine, reg, logger,
		cfg.Render.Width, cfg.Render.Height, cfg.Render.EngineTimeout())

	// Build API service and router.
	svc := &api.Service{
		Renderer:      renderer,
		Layouts:       layouts,
		Prefetch:      prefetcher,
		Registry:      reg,
		Themes:        cfg.Prefetch.Themes,
		PerThemeCount: cfg.Prefetch.PerThemeCount,
	}
	apiRouter := api.NewRouter(svc, cfg.Auth.AdminToken)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Service info (unauthenticated).
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeInfo(w, cfg)
	})

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes.
	r.Mount("/api/v1", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload the default preset on change.
	if presetStore != nil {
		g.Go(func() error {
			if err := presetStore.Watch(gCtx); err != nil {
				logger.Warn("preset watcher exited", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func writeInfo(w http.ResponseWriter, cfg *Config) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service":   "family-display-backend",
		"version":   "3.0.0",
		"city_mode": cfg.City.Mode,
		"themes":    cfg.Prefetch.Themes,
		"providers": map[string]bool{
			"weather":  cfg.Providers.Weather.Enabled,
			"forecast": cfg.Providers.Forecast.Enabled,
			"joke":     cfg.Providers.Joke.Enabled,
		},
	})
}
