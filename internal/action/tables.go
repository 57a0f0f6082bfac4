package action

import (
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/rules"
)

// ChannelRule is what a platform permits.
type ChannelRule struct {
	DMAllowed          bool `yaml:"dm_allowed" json:"dm_allowed"`
	PublicReplyAllowed bool `yaml:"public_reply_allowed" json:"public_reply_allowed"`
	MaxLength          int  `yaml:"max_length" json:"max_length"`
}

// Channels holds per-platform rules with a default for unknown platforms.
type Channels struct {
	Version   string                 `yaml:"version"`
	Default   ChannelRule            `yaml:"default"`
	Platforms map[string]ChannelRule `yaml:"platforms"`
}

// Rule returns the platform's rule and whether the platform is known.
func (c *Channels) Rule(platform string) (ChannelRule, bool) {
	r, ok := c.Platforms[strings.ToLower(platform)]
	if !ok {
		return c.Default, false
	}
	return r, true
}

// MaxLength is the draft limit for platform.
func (c *Channels) MaxLength(platform string) int {
	r, _ := c.Rule(platform)
	return r.MaxLength
}

// ParseChannels decodes the channels table.
func ParseChannels(data []byte) (*Channels, error) {
	var c Channels
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing channels table: %w", err)
	}
	norm := make(map[string]ChannelRule, len(c.Platforms))
	for k, v := range c.Platforms {
		norm[strings.ToLower(k)] = v
	}
	c.Platforms = norm
	return &c, nil
}

// LoadChannels reads the channels table, from overridePath when set.
func LoadChannels(overridePath string) (*Channels, error) {
	data, err := rules.Load(rules.Channels, overridePath)
	if err != nil {
		return nil, err
	}
	return ParseChannels(data)
}

// Template is one compiled reply template.
type Template struct {
	ID       string
	Category policy.TemplateCategory
	body     *template.Template
}

// TemplateData is the rendering input.
type TemplateData struct {
	Author   string
	Platform string
	Brand    string
	Draft    string
}

// Render executes the template.
func (t *Template) Render(d TemplateData) (string, error) {
	var sb strings.Builder
	if err := t.body.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", t.ID, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

type templatesFile struct {
	Version    string `yaml:"version"`
	Default    string `yaml:"default"`
	Escalation string `yaml:"escalation"`
	Templates  []struct {
		ID       string                  `yaml:"id"`
		Category policy.TemplateCategory `yaml:"category"`
		Body     string                  `yaml:"body"`
	} `yaml:"templates"`
	Selection []struct {
		Intent   intent.Intent     `yaml:"intent"`
		Stage    opportunity.Stage `yaml:"stage"`
		Template string            `yaml:"template"`
	} `yaml:"selection"`
}

type selectionKey struct {
	intent intent.Intent
	stage  opportunity.Stage
}

// Templates is the compiled template catalogue and (intent x stage) selection.
type Templates struct {
	Version    string
	byID       map[string]*Template
	selection  map[selectionKey]string
	defaultID  string
	escalation string
}

// ParseTemplates compiles the templates table and checks every reference.
func ParseTemplates(data []byte) (*Templates, error) {
	var f templatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing templates table: %w", err)
	}
	t := &Templates{
		Version:    f.Version,
		byID:       make(map[string]*Template, len(f.Templates)),
		selection:  make(map[selectionKey]string, len(f.Selection)),
		defaultID:  f.Default,
		escalation: f.Escalation,
	}
	for _, tc := range f.Templates {
		body, err := template.New(tc.ID).Option("missingkey=zero").Parse(tc.Body)
		if err != nil {
			return nil, fmt.Errorf("compiling template %s: %w", tc.ID, err)
		}
		t.byID[tc.ID] = &Template{ID: tc.ID, Category: tc.Category, body: body}
	}
	for _, s := range f.Selection {
		if _, ok := t.byID[s.Template]; !ok {
			return nil, fmt.Errorf("selection %s/%s references unknown template %q", s.Intent, s.Stage, s.Template)
		}
		t.selection[selectionKey{s.Intent, s.Stage}] = s.Template
	}
	for _, id := range []string{t.defaultID, t.escalation} {
		if _, ok := t.byID[id]; !ok {
			return nil, fmt.Errorf("templates table references unknown template %q", id)
		}
	}
	return t, nil
}

// LoadTemplates reads the templates table, from overridePath when set.
func LoadTemplates(overridePath string) (*Templates, error) {
	data, err := rules.Load(rules.Templates, overridePath)
	if err != nil {
		return nil, err
	}
	return ParseTemplates(data)
}

// Select returns the template for a reply, falling back to the default.
func (t *Templates) Select(in intent.Intent, stage opportunity.Stage) *Template {
	if id, ok := t.selection[selectionKey{in, stage}]; ok {
		return t.byID[id]
	}
	return t.byID[t.defaultID]
}

// Escalation returns the internal-note template.
func (t *Templates) Escalation() *Template {
	return t.byID[t.escalation]
}

// Get returns a template by id.
func (t *Templates) Get(id string) (*Template, bool) {
	tpl, ok := t.byID[id]
	return tpl, ok
}
