package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
)

var (
	classifyJSON    bool
	classifyLexicon string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Classify a comment and score its opportunity without side effects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "classify")
		defer span.End()
		return classify(ctx, cmd.OutOrStdout(), strings.Join(args, " "), classifyLexicon, classifyJSON)
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print the result as JSON")
	classifyCmd.Flags().StringVar(&classifyLexicon, "lexicon", "", "lexicon YAML override (default: embedded)")
	rootCmd.AddCommand(classifyCmd)
}

type classification struct {
	Text        string                  `json:"text"`
	Result      *intent.Result          `json:"classification"`
	Opportunity opportunity.Opportunity `json:"opportunity"`
}

// classify runs the lexicon classifier and opportunity tables only: no
// provider calls, no stores.
func classify(ctx context.Context, w io.Writer, text, lexiconPath string, asJSON bool) error {
	lex, err := intent.LoadLexicon(lexiconPath)
	if err != nil {
		return fmt.Errorf("loading lexicon: %w", err)
	}
	tables, err := opportunity.DefaultTables()
	if err != nil {
		return fmt.Errorf("loading opportunity tables: %w", err)
	}
	res := intent.NewClassifier(lex).Classify(ctx, text)
	out := classification{
		Text:        text,
		Result:      res,
		Opportunity: opportunity.NewEngine(tables, nil).Evaluate(ctx, opportunity.Input{Text: text, Result: res}),
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	renderClassification(w, out)
	return nil
}
