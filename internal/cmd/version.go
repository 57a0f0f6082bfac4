package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "version")
		defer span.End()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "engaged %s\n", resolvedVersion())
		fmt.Fprintf(out, "Commit:   %s\n", Commit)
		fmt.Fprintf(out, "Built:    %s\n", BuildDate)
		fmt.Fprintf(out, "Go:       %s\n", runtime.Version())
		fmt.Fprintf(out, "Contract: %s\n", pipeline.Version)
		if lex, err := intent.LoadLexicon(""); err == nil {
			fmt.Fprintf(out, "Lexicon:  %s\n", lex.Version())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
