package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tracesim/internal/export"
	"github.com/nvandessel/tracesim/internal/store"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect and export experiment results",
	}
	cmd.AddCommand(
		newResultsListCmd(),
		newResultsShowCmd(),
		newResultsExportCmd(),
		newResultsVerifyCmd(),
	)
	return cmd
}

func newResultsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List experiments, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			experiments, err := s.ListExperiments(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list experiments: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"experiments": experiments,
					"count":       len(experiments),
				})
			}

			w := cmd.OutOrStdout()
			if len(experiments) == 0 {
				fmt.Fprintln(w, "No experiments found.")
				return nil
			}
			for _, e := range experiments {
				fmt.Fprintf(w, "%s  %-24s %-10s %s", e.Info.ID, e.Info.Name, e.State, e.StartedAt.Format("2006-01-02 15:04:05"))
				if e.Summary != nil {
					fmt.Fprintf(w, "  %d/%d succeeded", e.Summary.Succeeded, e.Summary.Total)
					if e.Summary.Failed > 0 {
						fmt.Fprintf(w, ", %d failed", e.Summary.Failed)
					}
					if e.Summary.Cancelled > 0 {
						fmt.Fprintf(w, ", %d cancelled", e.Summary.Cancelled)
					}
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}

func newResultsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [experiment-id]",
		Short: "Show the runs of an experiment (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := experimentArg(cmd.Context(), s, args)
			if err != nil {
				return err
			}
			rec, err := s.GetExperiment(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load experiment %s: %w", id, err)
			}
			runs, err := s.ListRuns(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"experiment": rec,
					"runs":       runs,
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Experiment %s (%s): %s\n", rec.Info.Name, rec.Info.ID, rec.State)
			fmt.Fprintf(w, "  region: %s  seed: %d  repeats: %d  horizon: %gh\n",
				rec.Info.Region, rec.Info.Seed, rec.Info.Repeats, rec.Info.Horizon)
			for _, r := range runs {
				fmt.Fprintf(w, "  %-60s seed=%-20d %s", r.Key, r.Seed, r.Status())
				switch {
				case r.Failure != nil && !r.Failure.Cancelled:
					fmt.Fprintf(w, ": %s", r.Failure.Message)
				case r.Trajectory != nil && r.Trajectory.Handle != "":
					fmt.Fprintf(w, "  %s", r.Trajectory.Handle)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}

func newResultsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [experiment-id]",
		Short: "Export an experiment and its runs to a compressed archive",
		Long: `Write an experiment header and every run result to a gzip-compressed
JSON archive with a SHA-256 checksum header.

Examples:
  tracesim results export                          # latest experiment, .tracesim/exports/
  tracesim results export <id> --output out.json.gz
  tracesim results export --output ./archives/     # auto-named file in a directory`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := experimentArg(cmd.Context(), s, args)
			if err != nil {
				return err
			}

			switch {
			case outputPath == "":
				outputPath = export.GeneratePath(filepath.Join(store.LocalPath(root), "exports"), id)
			case isDir(outputPath):
				outputPath = export.GeneratePath(outputPath, id)
			}
			if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
				return fmt.Errorf("failed to create export directory: %w", err)
			}

			archive, err := export.Export(cmd.Context(), s, id, outputPath)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":     "exported",
					"experiment": id,
					"path":       outputPath,
					"runs":       len(archive.Runs),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs of %s to %s\n", len(archive.Runs), id, outputPath)
			return nil
		},
	}
	cmd.Flags().String("output", "", "Output file or directory (default: .tracesim/exports/)")
	return cmd
}

func newResultsVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify the checksum of an export archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			header, err := export.ReadHeader(args[0])
			if err != nil {
				return err
			}
			verifyErr := export.VerifyChecksum(args[0])

			if jsonOut {
				out := map[string]any{
					"path":       args[0],
					"valid":      verifyErr == nil,
					"experiment": header.ExperimentID,
					"runs":       header.RunCount,
				}
				if verifyErr != nil {
					out["error"] = verifyErr.Error()
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				return verifyErr
			}
			if verifyErr != nil {
				return fmt.Errorf("verification failed: %w", verifyErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%s, %d runs, %d failed)\n",
				args[0], header.ExperimentID, header.RunCount, header.FailedCount)
			return nil
		},
	}
}

// experimentArg returns the experiment named in args, or the latest one.
func experimentArg(ctx context.Context, s store.Store, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	experiments, err := s.ListExperiments(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list experiments: %w", err)
	}
	if len(experiments) == 0 {
		return "", errors.New("no experiments recorded (run 'tracesim run' first)")
	}
	return experiments[0].Info.ID, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
