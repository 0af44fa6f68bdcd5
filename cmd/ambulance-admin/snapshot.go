package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Axmae/ambulance-management/internal/entitystore"
	"github.com/Axmae/ambulance-management/internal/factory"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/seed"
)

// withStore opens the configured backend and the entity store of one profile.
func withStore(cmd *cobra.Command, f *flags, profile string, fn func(ctx context.Context, s *entitystore.Store) error) error {
	if profile == "" {
		return fmt.Errorf("--profile is required")
	}
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	backend, err := factory.NewBackend(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()
	store := entitystore.New(kvstore.Scope(backend, profile), factory.NewSeed(cfg),
		entitystore.WithSeedTimeout(factory.SeedTimeout(cfg)))
	return fn(ctx, store)
}

func newSnapshotCmd(f *flags) *cobra.Command {
	var profile, out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export, import or reset the data of a profile",
	}
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "profile id (the browser cookie value)")

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the profile snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, f, profile, func(ctx context.Context, s *entitystore.Store) error {
				snap, err := s.Export(ctx)
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				if out == "" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
					return err
				}
				return os.WriteFile(out, append(b, '\n'), 0o644)
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the profile snapshot with a JSON, JSONC or YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			snap, err := seed.Parse(data, seed.FormatFromName(args[0]))
			if err != nil {
				return err
			}
			return withStore(cmd, f, profile, func(ctx context.Context, s *entitystore.Store) error {
				if err := s.Import(ctx, snap); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %s into profile %s\n", args[0], profile)
				return err
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop the profile snapshot; the next load seeds it again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, f, profile, func(ctx context.Context, s *entitystore.Store) error {
				return s.Reset(ctx)
			})
		},
	}

	profiles := &cobra.Command{
		Use:   "profiles",
		Short: "List the profiles stored in the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			backend, err := factory.NewBackend(cmd.Context(), cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()
			ids, err := kvstore.Profiles(cmd.Context(), backend)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.AddCommand(export, importCmd, reset, profiles)
	return cmd
}
