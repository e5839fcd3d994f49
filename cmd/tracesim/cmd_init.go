package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tracesim/internal/config"
	"github.com/nvandessel/tracesim/internal/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize tracesim in the project directory",
		Long: `Create .tracesim/ with a default config.yaml and an empty results database.

An existing config.yaml is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir := store.LocalPath(root)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create .tracesim directory: %w", err)
			}

			cfgPath := store.ConfigPath(root)
			createdConfig := false
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := config.Default().Save(cfgPath); err != nil {
					return err
				}
				createdConfig = true
			}

			s, err := store.NewSQLiteStore(root)
			if err != nil {
				return fmt.Errorf("failed to create database: %w", err)
			}
			defer s.Close()

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":         "initialized",
					"path":           dir,
					"config_created": createdConfig,
					"database":       s.Path(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized .tracesim/ in %s\n", root)
			if createdConfig {
				fmt.Fprintf(cmd.OutOrStdout(), "  config:   %s\n", cfgPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  database: %s\n", s.Path())
			return nil
		},
	}
}
