package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/seed"
)

// checkSeed validates every record of snap against the entity schemas.
func checkSeed(snap model.Snapshot) error {
	schemas := model.DefaultSchemas()
	for _, name := range snap.Names() {
		sc, err := schemas.Lookup(name)
		if err != nil {
			return err
		}
		for _, r := range snap.Collections[name] {
			if _, err := sc.Validate(r.Fields, false); err != nil {
				return fmt.Errorf("%s/%d: %w", name, r.ID, err)
			}
		}
	}
	return nil
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed document tools",
	}
	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Parse and validate a seed document",
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
			if err := checkSeed(snap); err != nil {
				return err
			}
			for _, name := range snap.Names() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", name, len(snap.Collections[name]))
			}
			return nil
		},
	}
	cmd.AddCommand(check)
	return cmd
}
