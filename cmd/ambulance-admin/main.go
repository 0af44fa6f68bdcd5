package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Axmae/ambulance-management/adminservice"
	"github.com/Axmae/ambulance-management/internal/config"
	"github.com/Axmae/ambulance-management/internal/logger"
)

// flags override the AMBULANCE_ADMIN_ environment when set.
type flags struct {
	port     int
	storage  string
	seed     string
	logLevel string
}

func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) error {
	pf := cmd.Flags()
	if pf.Changed("port") {
		cfg.HTTPPort = f.port
	}
	if pf.Changed("storage") {
		cfg.StorageDriver = f.storage
	}
	if pf.Changed("seed") {
		cfg.SeedSource = f.seed
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	return cfg.ResolveDefaults()
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "ambulance-admin",
		Short:         "Ambulance dispatch administration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.storage, "storage", "", "storage driver: memory, file, sqlite, postgres, s3")
	root.PersistentFlags().StringVar(&f.seed, "seed", "", `seed source: "embedded", a file path or an http(s) URL`)
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return adminservice.Run(cfg, logger.NewWithWriter(os.Stdout, "ambulance-admin", cfg.LogLevel))
		},
	}
	serve.Flags().IntVarP(&f.port, "port", "p", 8080, "HTTP port")

	root.AddCommand(serve, newSnapshotCmd(f), newSeedCmd(), newRemoteCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("ambulance-admin exited with error")
		os.Exit(1)
	}
}
