package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tracesim/internal/config"
	"github.com/nvandessel/tracesim/internal/logging"
	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tracesim",
		Short: "Contact-tracing scenario sweeps for a calibrated epidemic simulator",
		Long: `tracesim composes contact-tracing intervention scenarios on top of
calibrated simulator parameters and runs every scenario for a number of
stochastic repeats on a bounded worker pool.

Results are stored in .tracesim/tracesim.db under the project root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <root>/.tracesim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newRunCmd(),
		newScenariosCmd(),
		newCalibrationCmd(),
		newResultsCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// loadConfig loads the configuration selected by --config and --root.
func loadConfig(cmd *cobra.Command) (*config.TracesimConfig, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadPath(path)
	}
	root, _ := cmd.Flags().GetString("root")
	return config.Load(root)
}

// configPath returns the file "config set" writes to.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	root, _ := cmd.Flags().GetString("root")
	return store.ConfigPath(root)
}

// openStore opens the project database. The project must be initialized.
func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	root, _ := cmd.Flags().GetString("root")
	if _, err := os.Stat(store.LocalPath(root)); os.IsNotExist(err) {
		return nil, fmt.Errorf("tracesim not initialized in %s (run 'tracesim init')", root)
	}
	return store.NewSQLiteStore(root)
}

// regionFlags reads --country and --area.
func regionFlags(cmd *cobra.Command) (models.Region, error) {
	country, _ := cmd.Flags().GetString("country")
	area, _ := cmd.Flags().GetString("area")
	region := models.Region{Country: country, Area: area}
	if err := region.Validate(); err != nil {
		return models.Region{}, err
	}
	return region, nil
}

func addRegionFlags(cmd *cobra.Command) {
	cmd.Flags().String("country", "", "Country code of the calibrated region (e.g. CH)")
	cmd.Flags().String("area", "", "Area code of the calibrated region (e.g. BE)")
	_ = cmd.MarkFlagRequired("country")
	_ = cmd.MarkFlagRequired("area")
}

// newLogger creates the operational logger on stderr.
func newLogger(cmd *cobra.Command, cfg *config.TracesimConfig) *slog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
