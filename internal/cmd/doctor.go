package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/doctor"
)

var (
	doctorJSON         bool
	doctorSkipUpstream bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, keys, rule tables, storage, upstreams)",
	Long:  "Verifies the data directory is writable, the tenants file and rule tables compile, both SQLite stores open, and configured upstreams answer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		report := doctor.Run(ctx, cfg, doctor.Options{SkipUpstream: doctorSkipUpstream})
		if err := renderDoctor(cmd.OutOrStdout(), report, doctorJSON); err != nil {
			return err
		}
		if report.Status == doctor.StatusFail {
			return fmt.Errorf("preflight checks failed")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipUpstream, "skip-upstream", false, "skip provider, retrieval and redis connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}

func statusMark(status string) string {
	switch status {
	case doctor.StatusPass:
		return checkMark(true)
	case doctor.StatusWarn:
		return "⚠"
	default:
		return checkMark(false)
	}
}

func renderDoctor(w io.Writer, r *doctor.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	category := ""
	for _, c := range r.Checks {
		if c.Category != category {
			category = c.Category
			fmt.Fprintf(w, "\n[%s]\n", category)
		}
		fmt.Fprintf(w, "%s %s: %s\n", statusMark(c.Status), c.Name, c.Message)
		if c.Fix != "" && c.Status != doctor.StatusPass {
			fmt.Fprintf(w, "    fix: %s\n", c.Fix)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n", r.Summary.Pass, r.Summary.Warn, r.Summary.Fail)
	return nil
}
