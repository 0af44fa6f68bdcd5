// Package factory builds the runtime dependencies selected by configuration.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/config"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	kvfs "github.com/Axmae/ambulance-management/internal/kvstore/fs"
	kvpg "github.com/Axmae/ambulance-management/internal/kvstore/postgres"
	kvs3 "github.com/Axmae/ambulance-management/internal/kvstore/s3"
	kvsqlite "github.com/Axmae/ambulance-management/internal/kvstore/sqlite"
	"github.com/Axmae/ambulance-management/internal/seed"
)

// NewBackend opens the key/value backend named by cfg.StorageDriver.
// ResolveDefaults must have run on cfg.
func NewBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (kvstore.Backend, error) {
	var (
		b   kvstore.Backend
		err error
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		b = kvstore.NewMemory()
	case config.DriverFile:
		b, err = kvfs.Open(cfg.FileDir)
	case config.DriverSQLite:
		b, err = kvsqlite.New(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("AMBULANCE_ADMIN_POSTGRES_DSN is required when STORAGE_DRIVER=postgres")
		}
		b, err = kvpg.New(ctx, cfg.PostgresDSN)
	case config.DriverS3:
		b, err = kvs3.New(ctx, kvs3.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER: %s", cfg.StorageDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.StorageDriver, err)
	}
	log.Info().Str("driver", cfg.StorageDriver).Msg("key/value backend ready")
	return b, nil
}

// NewSeed returns the seed source configured for empty profiles.
func NewSeed(cfg *config.Config) seed.Source {
	return seed.FromConfig(cfg.SeedSource, SeedTimeout(cfg))
}

// SeedTimeout bounds one seed fetch.
func SeedTimeout(cfg *config.Config) time.Duration {
	if cfg.SeedTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.SeedTimeoutSeconds) * time.Second
}

// NewAdminAuth returns the admin allowlist; the demo accounts when none are configured.
func NewAdminAuth(cfg *config.Config) (auth.Provider, error) {
	if len(cfg.AdminCredentials) == 0 {
		return auth.NewAllowlist(auth.DefaultCredentials...), nil
	}
	return auth.ParseAllowlist(cfg.AdminCredentials)
}
