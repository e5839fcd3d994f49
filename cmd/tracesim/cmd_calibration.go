package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tracesim/internal/calibration"
	"github.com/nvandessel/tracesim/internal/store"
)

func newCalibrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Manage calibrated simulator parameters",
	}
	cmd.AddCommand(newCalibrationImportCmd(), newCalibrationShowCmd())
	return cmd
}

func newCalibrationImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an optimizer history for a region",
		Long: `Import calibration iterations from a YAML or JSON file. Each entry
has an iteration index, a loss and the parameter set evaluated at that
iteration. Existing iterations of the same region are overwritten.

Examples:
  tracesim calibration import history.yaml --country CH --area BE
  tracesim calibration import history-multi.json --country CH --area TI --multi-beta`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			multiBeta, _ := cmd.Flags().GetBool("multi-beta")

			region, err := regionFlags(cmd)
			if err != nil {
				return err
			}
			history, err := calibration.ReadHistoryFile(args[0])
			if err != nil {
				return err
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			records := make([]store.CalibrationRecord, len(history))
			for i, it := range history {
				records[i] = store.CalibrationRecord{
					Region:         region,
					MultiObjective: multiBeta,
					Iteration:      it.Iteration,
					Loss:           it.Loss,
					Params:         it.Params,
				}
			}
			n, err := s.ImportCalibration(cmd.Context(), records)
			if err != nil {
				return fmt.Errorf("failed to import calibration: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"region":          region,
					"multi_objective": multiBeta,
					"imported":        n,
					"source":          args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d calibration iterations for %s\n", n, region)
			return nil
		},
	}
	addRegionFlags(cmd)
	cmd.Flags().Bool("multi-beta", false, "Import into the multi-objective calibration history")
	return cmd
}

func newCalibrationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the calibrated parameters selected for a region",
		Long: `Show the parameter set of the lowest-loss calibration iteration,
after applying the iteration cutoff for short-calibration areas.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("multi-beta") {
				cfg.Calibration.MultiObjective, _ = cmd.Flags().GetBool("multi-beta")
			}
			region, err := regionFlags(cmd)
			if err != nil {
				return err
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			cutoff := cfg.Cutoff()
			params, err := calibration.NewLoader(s, region, cfg.Calibration.MultiObjective, cutoff, newLogger(cmd, cfg)).Load(cmd.Context())
			if err != nil {
				return err
			}

			var maxIter any
			if m := cutoff.MaxIterations(region.Area); m != nil {
				maxIter = *m
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"region":          region,
					"multi_objective": cfg.Calibration.MultiObjective,
					"max_iterations":  maxIter,
					"params_hash":     params.Hash(),
					"params":          params,
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Calibrated parameters for %s", region)
			if maxIter != nil {
				fmt.Fprintf(w, " (iterations below %v)", maxIter)
			}
			fmt.Fprintf(w, ": %s\n", params.Hash())
			values := params.Map()
			for _, k := range sortedKeys(values) {
				fmt.Fprintf(w, "  %s = %v\n", k, values[k])
			}
			return nil
		},
	}
	addRegionFlags(cmd)
	cmd.Flags().Bool("multi-beta", false, "Use the multi-objective calibration history")
	return cmd
}
