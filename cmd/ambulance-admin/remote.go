package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Axmae/ambulance-management/client"
)

func newRemoteCmd() *cobra.Command {
	var baseURL, email string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Query a running service through its JSON API",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "service base URL")
	cmd.PersistentFlags().StringVar(&email, "email", "admin@app.com", "admin identity")

	login := func(cmd *cobra.Command) (*client.Client, error) {
		c, err := client.New(baseURL)
		if err != nil {
			return nil, err
		}
		password := os.Getenv("AMBULANCE_ADMIN_PASSWORD")
		if password == "" {
			return nil, fmt.Errorf("AMBULANCE_ADMIN_PASSWORD is not set")
		}
		if _, err := c.Login(cmd.Context(), email, password); err != nil {
			return nil, err
		}
		return c, nil
	}

	list := &cobra.Command{
		Use:   "list <collection> [field=value...]",
		Short: "Print the records of a collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := map[string]string{}
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("filter %q: want field=value", kv)
				}
				filter[k] = v
			}
			c, err := login(cmd)
			if err != nil {
				return err
			}
			recs, err := c.List(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range recs {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(list)
	return cmd
}
