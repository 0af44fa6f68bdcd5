// Package adminservice assembles and runs the ambulance admin HTTP service.
package adminservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Axmae/ambulance-management/internal/api"
	"github.com/Axmae/ambulance-management/internal/appstate"
	"github.com/Axmae/ambulance-management/internal/config"
	"github.com/Axmae/ambulance-management/internal/factory"
	"github.com/Axmae/ambulance-management/internal/health"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/live"
	"github.com/Axmae/ambulance-management/internal/site"
	"github.com/Axmae/ambulance-management/internal/ui"
)

const shutdownTimeout = 10 * time.Second

// Run starts the admin service HTTP server and blocks until shutdown or error.
func Run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("storage_driver", cfg.StorageDriver).
		Int("http_port", cfg.HTTPPort).
		Str("seed_source", cfg.SeedSource).
		Bool("live_updates", cfg.LiveUpdates).
		Msg("Admin service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	backend, err := factory.NewBackend(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Key/value backend unavailable")
		return err
	}
	defer func() { _ = backend.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	svcHealth := startHealthCheckers(gctx, g, cfg, log, backend)

	reg, handler, err := buildHandler(cfg, backend, svcHealth, log)
	if err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(gctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		stop()
		_ = g.Wait()
		reg.Close()
		return err
	}

	server := newHTTPServer(gctx, cfg, handler)
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Stack().Err(err).Msg("HTTP server failed")
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(ctxShutdown)
		reg.Close()
		if err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	})
	return g.Wait()
}

// buildHandler constructs the shared renderers and the profile registry.
func buildHandler(cfg *config.Config, backend kvstore.Store, hr api.HealthReporter, log zerolog.Logger) (*appstate.Registry, http.Handler, error) {
	catalog, err := i18n.Load(cfg.DefaultLanguage)
	if err != nil {
		return nil, nil, fmt.Errorf("load translations: %w", err)
	}
	rnd, err := ui.NewRenderer()
	if err != nil {
		return nil, nil, fmt.Errorf("parse templates: %w", err)
	}
	pages, err := site.Load(cfg.DefaultLanguage)
	if err != nil {
		return nil, nil, fmt.Errorf("load site pages: %w", err)
	}
	adminAuth, err := factory.NewAdminAuth(cfg)
	if err != nil {
		return nil, nil, err
	}

	reg, err := appstate.NewRegistry(appstate.Deps{
		Backend:      backend,
		Seed:         factory.NewSeed(cfg),
		SeedTimeout:  factory.SeedTimeout(cfg),
		Catalog:      catalog,
		Renderer:     rnd,
		AdminAuth:    adminAuth,
		DefaultTheme: cfg.DefaultTheme,
		Log:          log,
	}, cfg.ProfileCacheSize)
	if err != nil {
		return nil, nil, err
	}

	return reg, api.New(api.Options{
		Registry:      reg,
		Renderer:      rnd,
		Catalog:       catalog,
		Site:          pages,
		Hub:           live.NewHub(log),
		Health:        hr,
		ProfileCookie: cfg.ProfileCookie,
		LiveUpdates:   cfg.LiveUpdates,
		SecureCookies: cfg.IsProduction(),
		Log:           log,
	}).Handler(), nil
}

// startHealthCheckers starts the backend checker and the service-level aggregator in g.
func startHealthCheckers(ctx context.Context, g *errgroup.Group, cfg *config.Config, log zerolog.Logger, backend kvstore.Store) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := healthInterval(cfg)

	backendChecker := health.NewBackendHealthChecker(backend, log, probeTimeout)
	g.Go(func() error {
		backendChecker.Start(ctx, interval)
		return nil
	})

	svcHealth := health.NewServiceHealthChecker(log, backendChecker)
	g.Go(func() error {
		svcHealth.Start(ctx, interval)
		return nil
	})
	return svcHealth
}

func healthInterval(cfg *config.Config) time.Duration {
	if cfg.HealthIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.HealthIntervalSeconds) * time.Second
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// healthReporter is what waitUntilHealthy polls.
type healthReporter interface{ IsHealthy() bool }

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth healthReporter) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
