package health

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/kvstore"
)

const probeKey = "__health__/probe"

// BackendHealthChecker probes the profile key/value backend.
type BackendHealthChecker struct {
	backend      kvstore.Store
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewBackendHealthChecker starts unhealthy until the first successful probe.
func NewBackendHealthChecker(backend kvstore.Store, log zerolog.Logger, probeTimeout time.Duration) *BackendHealthChecker {
	return &BackendHealthChecker{backend: backend, log: log, probeTimeout: probeTimeout}
}

func (hc *BackendHealthChecker) Name() string { return "kvstore" }

// IsHealthy returns the cached health status (non-blocking).
func (hc *BackendHealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

// Check runs one probe and records the result.
func (hc *BackendHealthChecker) Check(ctx context.Context) bool {
	to := hc.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	if err := hc.probe(ctx); err != nil {
		hc.log.Error().Str("checker", hc.Name()).Err(err).Msg("backend health check failed")
		hc.healthy.Store(0)
		return false
	}
	hc.healthy.Store(1)
	return true
}

// Start checks immediately, then every interval until ctx is done.
func (hc *BackendHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	hc.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.Check(ctx)
		}
	}
}

// probe prefers the backend's own ping and falls back to reading a key that
// never exists.
func (hc *BackendHealthChecker) probe(ctx context.Context) error {
	if p, ok := hc.backend.(HealthPinger); ok {
		return p.HealthPing(ctx)
	}
	_, err := hc.backend.Get(ctx, probeKey)
	if err == nil || errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil
	}
	return err
}
