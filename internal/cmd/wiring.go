package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/brain"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/config"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/promotion"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
)

const redisKeyPrefix = "engage:brain:"

// closers releases resources in reverse order of acquisition.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// buildProvider returns nil for provider "none"; the brain then uses its
// heuristic replies.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "ollama":
		return llm.NewProvider("ollama", "", cfg.OllamaBaseURL)
	default:
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			log.Warn().Msg("no OpenAI API key configured; generation will fall back to heuristic replies")
			return nil, nil
		}
		return llm.NewProvider("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
}

func buildBreaker(cfg *config.Config) brain.Breaker {
	if cfg.Breaker == config.BreakerFailsafe {
		return brain.NewFailsafeBreaker(cfg.BreakerThreshold, cfg.BreakerCoolDown)
	}
	return brain.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCoolDown)
}

func openActionStores(cfg *config.Config) (control.Store, control.AuditLog, error) {
	signer, err := control.NewSigner(cfg.SigningKey)
	if err != nil {
		return nil, nil, fmt.Errorf("creating audit signer: %w", err)
	}
	store, err := control.NewSQLiteStore(cfg.ActionsDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening action store: %w", err)
	}
	audit, err := control.NewSQLiteAuditLog(cfg.ActionsDBPath(), signer)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	return store, audit, nil
}

// buildComponents opens every store and collaborator named by cfg. The
// returned closers must be closed by the caller, also on error.
func buildComponents(ctx context.Context, cfg *config.Config) (pipeline.Components, closers, error) {
	var cl closers
	var c pipeline.Components

	tenants, err := tenant.LoadFile(cfg.TenantsPath())
	if err != nil {
		return c, cl, fmt.Errorf("loading tenants: %w", err)
	}

	evStore, err := events.NewSQLiteStore(cfg.EventsDBPath())
	if err != nil {
		return c, cl, fmt.Errorf("opening events store: %w", err)
	}
	cl.add(func() { _ = evStore.Close() })

	actions, audit, err := openActionStores(cfg)
	if err != nil {
		return c, cl, err
	}
	cl.add(func() { _ = actions.Close() })
	cl.add(func() { _ = audit.Close() })

	provider, err := buildProvider(cfg)
	if err != nil {
		return c, cl, fmt.Errorf("building provider: %w", err)
	}

	promo := promotion.DefaultConfig()
	promo.Window = cfg.PromotionWindow

	c = pipeline.Components{
		Tenants:          tenants,
		Events:           evStore,
		SigningKey:       cfg.SigningKey,
		ActionStore:      actions,
		AuditLog:         audit,
		Provider:         provider,
		Model:            cfg.Model,
		GenerateTimeout:  cfg.GenerateTimeout,
		Breaker:          buildBreaker(cfg),
		LexiconPath:      cfg.LexiconPath,
		OpportunityPath:  cfg.OpportunityPath,
		ActionPolicyPath: cfg.ActionPolicyPath,
		ChannelsPath:     cfg.ChannelsPath,
		TemplatesPath:    cfg.TemplatesPath,
		Promotion:        promo,
	}

	if cfg.RedisAddr != "" {
		client, err := brain.DialRedis(ctx, strings.Split(cfg.RedisAddr, ","), cfg.RedisPassword, 0)
		if err != nil {
			return c, cl, fmt.Errorf("connecting to redis: %w", err)
		}
		cl.add(func() { _ = client.Close() })
		c.Cache = brain.NewRedisCache(client, redisKeyPrefix, brain.DefaultCacheTTL)
	}
	if cfg.RetrievalURL != "" {
		c.Retriever = brain.NewHTTPRetriever(cfg.RetrievalURL)
	}
	if cfg.LLMInference && provider != nil {
		c.Inferrer = intent.NewLLMInferrer(provider, cfg.Model)
		c.InferenceTimeout = intent.DefaultInferenceTimeout
	}
	return c, cl, nil
}

// loadConfig loads operator config and prepares the data directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return cfg, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
