package tenant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
)

// Mode is how far the pipeline may go for a tenant.
type Mode string

const (
	ModeObserveOnly Mode = "OBSERVE_ONLY"
	ModeSuggest     Mode = "SUGGEST"
	ModeAssist      Mode = "ASSIST"
)

// Defaults applied to zero-valued settings.
const (
	DefaultDailyCap       = 50
	DefaultVideoCap       = 5
	DefaultCooldownHours  = 24
	DefaultBurstPerMinute = 6
	DefaultBurst          = 3
)

// Plan carries billing-plan quotas. Zero means unlimited.
type Plan struct {
	Name                 string `yaml:"name" json:"name"`
	DailyEventLimit      int    `yaml:"daily_event_limit" json:"daily_event_limit"`
	DailySuggestionLimit int    `yaml:"daily_suggestion_limit" json:"daily_suggestion_limit"`
}

// Settings is everything the pipeline reads about one tenant.
type Settings struct {
	ID             string                `yaml:"id" json:"id"`
	DisplayName    string                `yaml:"display_name" json:"display_name"`
	APIKeys        []string              `yaml:"api_keys" json:"-"`
	Mode           Mode                  `yaml:"mode" json:"mode"`
	Aggressiveness policy.Aggressiveness `yaml:"aggressiveness" json:"aggressiveness"`

	DailyCap       int `yaml:"daily_cap" json:"daily_cap"`
	VideoCap       int `yaml:"video_cap" json:"video_cap"`
	CooldownHours  int `yaml:"cooldown_hours" json:"cooldown_hours"`
	BurstPerMinute int `yaml:"burst_per_minute" json:"burst_per_minute"`
	Burst          int `yaml:"burst" json:"burst"`
	// RequestsPerSecond limits API ingestion; 0 means no limit.
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`

	KillSwitch         bool            `yaml:"kill_switch" json:"kill_switch"`
	PlatformKillSwitch map[string]bool `yaml:"platform_kill_switch" json:"platform_kill_switch,omitempty"`
	Shadow             bool            `yaml:"shadow" json:"shadow"`

	Brand         string   `yaml:"brand" json:"brand"`
	Tone          string   `yaml:"tone" json:"tone"`
	BannedPhrases []string `yaml:"banned_phrases" json:"banned_phrases,omitempty"`
	OwnedDomains  []string `yaml:"owned_domains" json:"owned_domains,omitempty"`

	BlockedIntents       []intent.Intent `yaml:"blocked_intents" json:"blocked_intents,omitempty"`
	RetainAnswerOnRescue bool            `yaml:"retain_answer_on_rescue" json:"retain_answer_on_rescue"`

	Plan Plan `yaml:"plan" json:"plan"`
}

type settingsFile struct {
	Tenants []Settings `yaml:"tenants"`
}

// ApplyDefaults fills zero values with the package defaults.
func (s *Settings) ApplyDefaults() {
	if s.Mode == "" {
		s.Mode = ModeSuggest
	}
	if s.Aggressiveness == "" {
		s.Aggressiveness = policy.AggressivenessConservative
	}
	if s.DailyCap == 0 {
		s.DailyCap = DefaultDailyCap
	}
	if s.VideoCap == 0 {
		s.VideoCap = DefaultVideoCap
	}
	if s.CooldownHours == 0 {
		s.CooldownHours = DefaultCooldownHours
	}
	if s.BurstPerMinute == 0 {
		s.BurstPerMinute = DefaultBurstPerMinute
	}
	if s.Burst == 0 {
		s.Burst = DefaultBurst
	}
}

// Validate checks enum fields.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	switch s.Mode {
	case ModeObserveOnly, ModeSuggest, ModeAssist:
	default:
		return fmt.Errorf("tenant %s: invalid mode %q", s.ID, s.Mode)
	}
	switch s.Aggressiveness {
	case policy.AggressivenessConservative, policy.AggressivenessBalanced, policy.AggressivenessAggressive:
	default:
		return fmt.Errorf("tenant %s: invalid aggressiveness %q", s.ID, s.Aggressiveness)
	}
	return nil
}

// PlatformKilled reports whether the tenant disabled engagement on platform.
func (s *Settings) PlatformKilled(platform string) bool {
	return s.PlatformKillSwitch[strings.ToLower(platform)]
}

// ParseSettings decodes a tenants YAML document, applying defaults.
func ParseSettings(data []byte) ([]Settings, error) {
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing tenants YAML: %w", err)
	}
	seen := make(map[string]bool, len(f.Tenants))
	for i := range f.Tenants {
		t := &f.Tenants[i]
		t.ApplyDefaults()
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate tenant id %q", t.ID)
		}
		seen[t.ID] = true
		if len(t.PlatformKillSwitch) > 0 {
			norm := make(map[string]bool, len(t.PlatformKillSwitch))
			for k, v := range t.PlatformKillSwitch {
				norm[strings.ToLower(k)] = v
			}
			t.PlatformKillSwitch = norm
		}
	}
	return f.Tenants, nil
}

// LoadFile reads tenants from a YAML file.
func LoadFile(path string) ([]Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tenants file: %w", err)
	}
	return ParseSettings(data)
}
