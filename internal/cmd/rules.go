package cmd

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/rules"
)

// rulePaths names override files; empty entries use the embedded tables.
type rulePaths struct {
	Lexicon      string
	Opportunity  string
	ActionPolicy string
	Channels     string
	Templates    string
	Tenants      string
}

var (
	rulesFlags   rulePaths
	reviewTenant string
	reviewLimit  int
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate the rule tables",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rule tables and the tenants file",
	Long:  "Checks each table against its JSON Schema and compiles it, including cross-table references",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "rules.validate")
		defer span.End()

		paths := rulesFlags
		if cfg, err := loadConfig(); err == nil {
			paths = paths.withDefaults(rulePaths{
				Lexicon:      cfg.LexiconPath,
				Opportunity:  cfg.OpportunityPath,
				ActionPolicy: cfg.ActionPolicyPath,
				Channels:     cfg.ChannelsPath,
				Templates:    cfg.TemplatesPath,
			})
		}
		return validateRules(cmd.OutOrStdout(), paths)
	},
}

var rulesShowCmd = &cobra.Command{
	Use:       "show <table>",
	Short:     "Print an embedded rule table",
	Args:      cobra.ExactArgs(1),
	ValidArgs: rules.Tables(),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := rules.YAML(args[0])
		if err != nil {
			return fmt.Errorf("unknown table %q (known: %v)", args[0], rules.Tables())
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var rulesReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List comments the lexicon classified as unknown or weak",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := events.NewSQLiteStore(cfg.EventsDBPath())
		if err != nil {
			return fmt.Errorf("opening events store: %w", err)
		}
		defer store.Close()

		list, err := store.ListUnknown(ctx, reviewTenant, reviewLimit)
		if err != nil {
			return fmt.Errorf("listing unknown intents: %w", err)
		}
		renderUnknowns(cmd.OutOrStdout(), list)
		return nil
	},
}

func init() {
	f := rulesValidateCmd.Flags()
	f.StringVar(&rulesFlags.Lexicon, "lexicon", "", "lexicon YAML override")
	f.StringVar(&rulesFlags.Opportunity, "opportunity", "", "opportunity YAML override")
	f.StringVar(&rulesFlags.ActionPolicy, "action-policy", "", "action policy YAML override")
	f.StringVar(&rulesFlags.Channels, "channels", "", "channels YAML override")
	f.StringVar(&rulesFlags.Templates, "templates", "", "templates YAML override")
	f.StringVar(&rulesFlags.Tenants, "tenants", "", "tenants file to validate as well")

	rulesReviewCmd.Flags().StringVar(&reviewTenant, "tenant", "", "tenant ID (required)")
	rulesReviewCmd.Flags().IntVar(&reviewLimit, "limit", 50, "maximum entries to show")
	_ = rulesReviewCmd.MarkFlagRequired("tenant")

	rulesCmd.AddCommand(rulesValidateCmd, rulesShowCmd, rulesReviewCmd)
	rootCmd.AddCommand(rulesCmd)
}

func (p rulePaths) withDefaults(d rulePaths) rulePaths {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return rulePaths{
		Lexicon:      pick(p.Lexicon, d.Lexicon),
		Opportunity:  pick(p.Opportunity, d.Opportunity),
		ActionPolicy: pick(p.ActionPolicy, d.ActionPolicy),
		Channels:     pick(p.Channels, d.Channels),
		Templates:    pick(p.Templates, d.Templates),
		Tenants:      pick(p.Tenants, d.Tenants),
	}
}

func source(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

type ruleCheck struct {
	name string
	src  string
	load func() error
}

// validateRules loads every table through its compiler and reports one line
// per table. It returns an error when any table fails.
func validateRules(w io.Writer, p rulePaths) error {
	oppSrc := source(p.Opportunity) + ", " + source(p.ActionPolicy)
	checks := []ruleCheck{
		{rules.Lexicon, source(p.Lexicon), func() error { _, err := intent.LoadLexicon(p.Lexicon); return err }},
		{rules.Opportunity + "+" + rules.ActionPolicy, oppSrc, func() error {
			_, err := opportunity.LoadTables(p.Opportunity, p.ActionPolicy)
			return err
		}},
		{rules.Channels, source(p.Channels), func() error { _, err := action.LoadChannels(p.Channels); return err }},
		{rules.Templates, source(p.Templates), func() error { _, err := action.LoadTemplates(p.Templates); return err }},
	}
	if p.Tenants != "" {
		checks = append(checks, ruleCheck{"tenants", p.Tenants, func() error { _, err := tenant.LoadFile(p.Tenants); return err }})
	}

	failed := 0
	for _, c := range checks {
		if err := c.load(); err != nil {
			failed++
			log.Error().Err(err).Str("table", c.name).Str("source", c.src).Msg("rule_table_invalid")
			fmt.Fprintf(w, "%s %s (%s): %v\n", checkMark(false), c.name, c.src, err)
			continue
		}
		fmt.Fprintf(w, "%s %s (%s)\n", checkMark(true), c.name, c.src)
	}
	if failed > 0 {
		return fmt.Errorf("%d rule table(s) failed validation", failed)
	}
	return nil
}
