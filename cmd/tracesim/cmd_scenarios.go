package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tracesim/internal/calibration"
	"github.com/nvandessel/tracesim/internal/models"
)

// scenarioInfo is the printable form of a scenario.
type scenarioInfo struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Measures    []string       `json:"measures,omitempty"`
	ParamsHash  string         `json:"params_hash,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

func describeScenarios(scenarios []models.Scenario) []scenarioInfo {
	out := make([]scenarioInfo, len(scenarios))
	for i, sc := range scenarios {
		out[i] = scenarioInfo{ID: sc.ID(), Description: sc.Metadata()}
	}
	return out
}

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Show the scenarios a run would execute",
		Long: `Build every configured tracing policy into a scenario against the
calibrated parameters of a region, without running anything.

Examples:
  tracesim scenarios --country CH --area BE
  tracesim scenarios --country CH --area BE --params --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showParams, _ := cmd.Flags().GetBool("params")
			multiBeta, _ := cmd.Flags().GetBool("multi-beta")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("multi-beta") {
				cfg.Calibration.MultiObjective = multiBeta
			}
			if err := cfg.Validate(); err != nil {
				return err
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

			logger := newLogger(cmd, cfg)
			baseline, err := calibration.NewLoader(s, region, cfg.Calibration.MultiObjective, cfg.Cutoff(), logger).Load(cmd.Context())
			if err != nil {
				return err
			}
			horizon, err := cfg.Horizon()
			if err != nil {
				return err
			}

			builder := cfg.Builder()
			infos := make([]scenarioInfo, 0, len(cfg.Policies))
			for _, p := range cfg.Policies {
				sc, err := builder.Make(p, horizon.End, baseline)
				if err != nil {
					return err
				}
				params, err := sc.Apply(baseline)
				if err != nil {
					return err
				}
				info := scenarioInfo{
					ID:          sc.ID(),
					Description: sc.Metadata(),
					ParamsHash:  params.Hash(),
				}
				for _, m := range sc.Measures() {
					info.Measures = append(info.Measures, fmt.Sprintf("%s [%s]", m, measureScope(m.Kind)))
				}
				if showParams {
					info.Params = params.Map()
				}
				infos = append(infos, info)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"experiment": cfg.ExperimentName(region),
					"horizon":    horizon.End,
					"scenarios":  infos,
					"count":      len(infos),
				})
			}
			printScenarios(cmd.OutOrStdout(), cfg.ExperimentName(region), horizon, infos)
			return nil
		},
	}

	addRegionFlags(cmd)
	cmd.Flags().Bool("params", false, "Include the effective parameters of each scenario")
	cmd.Flags().Bool("multi-beta", false, "Use the multi-objective calibration history")

	return cmd
}

func measureScope(k models.MeasureKind) string {
	if k.Household() {
		return "household"
	}
	return "individual"
}

func printScenarios(w io.Writer, name string, horizon models.TimeWindow, infos []scenarioInfo) {
	fmt.Fprintf(w, "%s: %d scenarios over %s\n\n", name, len(infos), horizon)
	for _, info := range infos {
		fmt.Fprintf(w, "%s\n", info.ID)
		fmt.Fprintf(w, "  %s\n", info.Description)
		for _, m := range info.Measures {
			fmt.Fprintf(w, "  measure: %s\n", m)
		}
		fmt.Fprintf(w, "  params:  %s\n", info.ParamsHash)
		for _, k := range sortedKeys(info.Params) {
			fmt.Fprintf(w, "    %s = %v\n", k, info.Params[k])
		}
		fmt.Fprintln(w)
	}
}
