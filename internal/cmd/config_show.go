package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect operator configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		renderConfig(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func redact(secret string) string {
	switch {
	case secret == "":
		return "(unset)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****"
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func renderConfig(w io.Writer, cfg *config.Config, file string) {
	signing := redact(cfg.SigningKey)
	if cfg.UsingDefaultSigningKey() {
		signing = "(derived default)"
	}
	fmt.Fprintf(w, "Config file:       %s\n", orDefault(file, "(none)"))
	fmt.Fprintf(w, "Data dir:          %s\n", cfg.DataDir)
	fmt.Fprintf(w, "Tenants file:      %s\n", cfg.TenantsPath())
	fmt.Fprintf(w, "Signing key:       %s\n", signing)
	fmt.Fprintf(w, "Admin key:         %s\n", redact(cfg.AdminKey))
	fmt.Fprintf(w, "Provider:          %s (model %s)\n", cfg.Provider, cfg.Model)
	fmt.Fprintf(w, "OpenAI key:        %s\n", redact(cfg.OpenAIAPIKey))
	fmt.Fprintf(w, "OpenAI base URL:   %s\n", orDefault(cfg.OpenAIBaseURL, "(default)"))
	fmt.Fprintf(w, "Ollama URL:        %s\n", cfg.OllamaBaseURL)
	fmt.Fprintf(w, "LLM inference:     %t\n", cfg.LLMInference)
	fmt.Fprintf(w, "Retrieval URL:     %s\n", orDefault(cfg.RetrievalURL, "(disabled)"))
	fmt.Fprintf(w, "Redis:             %s\n", orDefault(cfg.RedisAddr, "(in-memory cache)"))
	fmt.Fprintf(w, "Breaker:           %s, %d failures, %s cool-down\n", cfg.Breaker, cfg.BreakerThreshold, cfg.BreakerCoolDown)
	fmt.Fprintf(w, "Generate timeout:  %s\n", cfg.GenerateTimeout)
	fmt.Fprintf(w, "Promotion window:  %s\n", cfg.PromotionWindow)
	fmt.Fprintf(w, "Retention:         %d days\n", cfg.RetentionDays)
	for _, t := range []struct{ name, path string }{
		{"lexicon", cfg.LexiconPath},
		{"opportunity", cfg.OpportunityPath},
		{"action_policy", cfg.ActionPolicyPath},
		{"channels", cfg.ChannelsPath},
		{"templates", cfg.TemplatesPath},
	} {
		fmt.Fprintf(w, "Table %-13s %s\n", t.name+":", orDefault(t.path, "embedded"))
	}
}
