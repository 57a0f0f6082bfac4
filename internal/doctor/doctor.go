// Package doctor provides health checks for engaged configuration, rule
// tables, storage and upstream services. Used by `engaged doctor`.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/brain"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/config"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
)

var tracer = engageotel.Tracer("github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/doctor")

// Check statuses, ordered by severity.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	SkipUpstream bool // skip provider, retrieval and redis connectivity (CI/offline)
	Client       *http.Client
}

// Run executes all doctor checks against cfg and returns a report.
func Run(ctx context.Context, cfg *config.Config, opts Options) *Report {
	ctx, span := tracer.Start(ctx, "doctor.run")
	defer span.End()

	report := &Report{}
	report.Checks = append(report.Checks, checkConfig(cfg)...)
	report.Checks = append(report.Checks, checkRules(cfg)...)
	report.Checks = append(report.Checks, checkStorage(ctx, cfg)...)
	if !opts.SkipUpstream {
		client := opts.Client
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		report.Checks = append(report.Checks, checkUpstreams(ctx, client, cfg)...)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}

	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func pass(name, category, msg string) CheckResult {
	return CheckResult{Name: name, Category: category, Status: StatusPass, Message: msg}
}

func checkConfig(cfg *config.Config) []CheckResult {
	results := []CheckResult{checkDataDir(cfg)}

	if cfg.UsingDefaultSigningKey() {
		results = append(results, CheckResult{
			Name: "signing_key", Category: "config", Status: StatusWarn,
			Message: "Using derived default", Fix: "Set ENGAGE_SIGNING_KEY for production",
		})
	} else {
		results = append(results, pass("signing_key", "config", "Configured"))
	}

	if cfg.AdminKey == "" {
		results = append(results, CheckResult{
			Name: "admin_key", Category: "config", Status: StatusWarn,
			Message: "Not set; kill switch routes are disabled",
			Fix:     "Set ENGAGE_ADMIN_KEY to manage the kill switch over HTTP",
		})
	} else {
		results = append(results, pass("admin_key", "config", "Configured"))
	}

	results = append(results, checkProvider(cfg), checkTenants(cfg))
	return results
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return pass("data_dir_writable", "config", cfg.DataDir+" (writable)")
}

func checkProvider(cfg *config.Config) CheckResult {
	switch cfg.Provider {
	case "none":
		return CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusWarn,
			Message: "none (replies use templates only)",
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return CheckResult{
				Name: "llm_provider", Category: "config", Status: StatusWarn,
				Message: "openai selected but no API key; replies use templates only",
				Fix:     "Set ENGAGE_OPENAI_API_KEY or OPENAI_API_KEY",
			}
		}
		return pass("llm_provider", "config", fmt.Sprintf("openai (%s)", cfg.Model))
	default:
		return pass("llm_provider", "config", fmt.Sprintf("%s (%s)", cfg.Provider, cfg.Model))
	}
}

func checkTenants(cfg *config.Config) CheckResult {
	path := cfg.TenantsPath()
	list, err := tenant.LoadFile(path)
	if err != nil {
		return CheckResult{
			Name: "tenants_file", Category: "config", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Create " + path + " or set ENGAGE_TENANTS_FILE",
		}
	}
	if len(list) == 0 {
		return CheckResult{
			Name: "tenants_file", Category: "config", Status: StatusWarn,
			Message: path + " defines no tenants",
		}
	}
	return pass("tenants_file", "config", fmt.Sprintf("%s (%d tenant(s))", path, len(list)))
}

func checkRules(cfg *config.Config) []CheckResult {
	tables := []struct {
		name string
		path string
		load func() error
	}{
		{"lexicon", cfg.LexiconPath, func() error { _, err := intent.LoadLexicon(cfg.LexiconPath); return err }},
		{"opportunity", cfg.OpportunityPath + cfg.ActionPolicyPath, func() error {
			_, err := opportunity.LoadTables(cfg.OpportunityPath, cfg.ActionPolicyPath)
			return err
		}},
		{"channels", cfg.ChannelsPath, func() error { _, err := action.LoadChannels(cfg.ChannelsPath); return err }},
		{"templates", cfg.TemplatesPath, func() error { _, err := action.LoadTemplates(cfg.TemplatesPath); return err }},
	}

	results := make([]CheckResult, 0, len(tables))
	for _, t := range tables {
		src := "embedded"
		if t.path != "" {
			src = "override"
		}
		name := "rules_" + t.name
		if err := t.load(); err != nil {
			results = append(results, CheckResult{
				Name: name, Category: "rules", Status: StatusFail,
				Message: fmt.Sprintf("%s: %v", src, err),
				Fix:     "Run 'engaged rules validate' for details",
			})
			continue
		}
		results = append(results, pass(name, "rules", src))
	}
	return results
}

func checkStorage(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	ev, err := events.NewSQLiteStore(cfg.EventsDBPath())
	if err != nil {
		results = append(results, CheckResult{
			Name: "events_db", Category: "storage", Status: StatusFail, Message: err.Error(),
		})
	} else {
		_ = ev.Close()
		results = append(results, pass("events_db", "storage", describeFile(cfg.EventsDBPath())))
	}

	store, err := control.NewSQLiteStore(cfg.ActionsDBPath())
	if err != nil {
		return append(results, CheckResult{
			Name: "actions_db", Category: "storage", Status: StatusFail, Message: err.Error(),
		})
	}
	defer store.Close()
	results = append(results, pass("actions_db", "storage", describeFile(cfg.ActionsDBPath())))

	pending, err := store.List(ctx, control.ListFilter{Status: control.StatusPending})
	if err == nil {
		results = append(results, pass("pending_actions", "storage", fmt.Sprintf("%d awaiting review", len(pending))))
	}
	return results
}

func describeFile(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s (%.1f MB)", path, float64(fi.Size())/(1024*1024))
}

func checkUpstreams(ctx context.Context, client *http.Client, cfg *config.Config) []CheckResult {
	var results []CheckResult
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "" {
			base := cfg.OpenAIBaseURL
			if base == "" {
				base = "https://api.openai.com/v1"
			}
			results = append(results, checkUpstream(ctx, client, "openai", strings.TrimRight(base, "/")+"/models")...)
		}
	case "ollama":
		results = append(results, checkUpstream(ctx, client, "ollama", strings.TrimRight(cfg.OllamaBaseURL, "/")+"/api/tags")...)
	}
	if cfg.RetrievalURL != "" {
		results = append(results, checkUpstream(ctx, client, "retrieval", cfg.RetrievalURL)...)
	}
	if cfg.RedisAddr != "" {
		results = append(results, checkRedis(ctx, cfg))
	}
	return results
}

func checkUpstream(ctx context.Context, client *http.Client, name, url string) []CheckResult {
	check := "upstream_" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return []CheckResult{{
			Name: check, Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", err),
		}}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL comes from operator config
	latency := time.Since(start)
	if err != nil {
		return []CheckResult{{
			Name: check, Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity and the configured base URL",
		}}
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return []CheckResult{{
			Name: check, Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("%s returned %d", url, resp.StatusCode),
		}}
	}
	results := []CheckResult{pass(check, "upstream", fmt.Sprintf("%s: %d in %dms", url, resp.StatusCode, latency.Milliseconds()))}

	if latency > 2*time.Second {
		results = append(results, CheckResult{
			Name: check + "_latency", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("%.1fs (> 2s threshold)", latency.Seconds()),
			Fix:     "Generation will hit the generate timeout; consider a closer endpoint",
		})
	} else if latency > time.Second {
		results = append(results, CheckResult{
			Name: check + "_latency", Category: "upstream", Status: StatusWarn,
			Message: fmt.Sprintf("%.1fs (> 1s threshold)", latency.Seconds()),
		})
	}
	return results
}

func checkRedis(ctx context.Context, cfg *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := brain.DialRedis(ctx, strings.Split(cfg.RedisAddr, ","), cfg.RedisPassword, 0)
	if err != nil {
		return CheckResult{
			Name: "upstream_redis", Category: "upstream", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Check ENGAGE_REDIS_ADDR or unset it to use the in-process cache",
		}
	}
	_ = client.Close()
	return pass("upstream_redis", "upstream", cfg.RedisAddr)
}
