package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/brain"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/promotion"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/safety"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
)

// Components carries everything Assemble wires. Events and SigningKey are
// required; nil stores and caches fall back to in-memory ones.
type Components struct {
	Tenants    []tenant.Settings
	Events     events.Store
	SigningKey string

	ActionStore control.Store
	AuditLog    control.AuditLog

	Provider        llm.Provider
	Model           string
	Temperature     float64
	MaxTokens       int
	GenerateTimeout time.Duration
	Breaker         brain.Breaker
	Cache           brain.Cache
	Retriever       brain.Retriever

	Inferrer         intent.Inferrer
	InferenceTimeout time.Duration

	// Rule table overrides; empty uses the embedded tables.
	LexiconPath      string
	OpportunityPath  string
	ActionPolicyPath string
	ChannelsPath     string
	TemplatesPath    string

	Promotion     promotion.Config
	UnknownBuffer int
	KillSwitch    *safety.KillSwitch
}

// Runtime is an assembled pipeline plus the pieces the HTTP and CLI layers
// reach into directly.
type Runtime struct {
	Pipeline   *Pipeline
	Brain      *brain.Engine
	Classifier *intent.Classifier
	Safety     *safety.Service
	Control    *control.Orchestrator
	Tenants    *tenant.Manager
	Tracker    *promotion.Tracker
	Events     events.Store

	sink *opportunity.AsyncSink
}

// Close drains the unknown-intent sink. Stores stay open; the caller owns them.
func (r *Runtime) Close() {
	if r.sink != nil {
		r.sink.Close()
	}
}

// Assemble loads the rule tables and wires every stage.
func Assemble(ctx context.Context, c Components) (*Runtime, error) {
	if c.Events == nil {
		return nil, fmt.Errorf("assembling pipeline: events store is required")
	}

	lexicon, err := intent.LoadLexicon(c.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("loading lexicon: %w", err)
	}
	oppTables, err := opportunity.LoadTables(c.OpportunityPath, c.ActionPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading opportunity tables: %w", err)
	}
	channels, err := action.LoadChannels(c.ChannelsPath)
	if err != nil {
		return nil, fmt.Errorf("loading channels: %w", err)
	}
	templates, err := action.LoadTemplates(c.TemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	gate, err := policy.NewGate(ctx)
	if err != nil {
		return nil, err
	}

	audit := c.AuditLog
	if audit == nil {
		signer, err := control.NewSigner(c.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("creating audit signer: %w", err)
		}
		audit = control.NewMemoryAuditLog(signer)
	}
	store := c.ActionStore
	if store == nil {
		store = control.NewMemoryStore()
	}

	tenants := tenant.NewManager(c.Tenants, c.Events)
	guard := safety.NewService(c.Events, tenants, safety.Options{
		KillSwitch: c.KillSwitch,
		MaxLength:  channels.MaxLength,
	})

	var classifierOpts []intent.Option
	if c.Inferrer != nil {
		classifierOpts = append(classifierOpts, intent.WithInferrer(c.Inferrer, c.InferenceTimeout))
	}
	classifier := intent.NewClassifier(lexicon, classifierOpts...)

	brainOpts := []brain.Option{
		brain.WithGuard(guard),
		brain.WithModel(c.Model, c.Temperature, c.MaxTokens),
		brain.WithGenerateTimeout(c.GenerateTimeout),
		brain.WithMaxLength(channels.MaxLength),
	}
	if c.Breaker != nil {
		brainOpts = append(brainOpts, brain.WithBreaker(c.Breaker))
	}
	if c.Cache != nil {
		brainOpts = append(brainOpts, brain.WithCache(c.Cache))
	}
	if c.Retriever != nil {
		brainOpts = append(brainOpts, brain.WithRetriever(c.Retriever))
	}
	engine := brain.NewEngine(classifier, gate, c.Provider, brainOpts...)

	sink := opportunity.NewAsyncSink(c.Events, c.UnknownBuffer)
	tracker := promotion.NewTracker(promotion.NewEngine(c.Promotion))
	controller := control.NewOrchestrator(store, audit)

	p, err := New(Deps{
		Tenants:     tenants,
		Events:      c.Events,
		Brain:       engine,
		Safety:      guard,
		Opportunity: opportunity.NewEngine(oppTables, sink),
		Tracker:     tracker,
		Actions:     action.NewOrchestrator(channels, templates, gate),
		Control:     controller,
	})
	if err != nil {
		sink.Close()
		return nil, err
	}
	return &Runtime{
		Pipeline:   p,
		Brain:      engine,
		Classifier: classifier,
		Safety:     guard,
		Control:    controller,
		Tenants:    tenants,
		Tracker:    tracker,
		Events:     c.Events,
		sink:       sink,
	}, nil
}
