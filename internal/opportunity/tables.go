package opportunity

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/rules"
)

type opportunityFile struct {
	Version     string                  `yaml:"version"`
	Stages      map[intent.Intent]Stage `yaml:"stages"`
	BaseWeights map[intent.Intent]int   `yaml:"base_weights"`
	Modifiers   []modifierConfig        `yaml:"modifiers"`
}

type modifierConfig struct {
	Name    string   `yaml:"name"`
	Delta   int      `yaml:"delta"`
	Phrases []string `yaml:"phrases"`
}

type actionPolicyFile struct {
	Version string                     `yaml:"version"`
	Default Action                     `yaml:"default"`
	Policy  map[Level]map[Stage]Action `yaml:"policy"`
}

// Modifier adds Delta to the urgency score when any phrase matches.
type Modifier struct {
	Name     string
	Delta    int
	patterns []*regexp.Regexp
}

// Matches reports whether normalized text contains any of the phrases.
func (m Modifier) Matches(normalized string) bool {
	for _, p := range m.patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Tables are the typed lookup structures built once from the rule files.
type Tables struct {
	Version       string
	PolicyVersion string
	Stages        map[intent.Intent]Stage
	BaseWeights   map[intent.Intent]int
	Modifiers     []Modifier
	Policy        map[Level]map[Stage]Action
	DefaultAction Action
}

// ParseTables builds Tables from opportunity and action policy YAML.
func ParseTables(opportunityYAML, policyYAML []byte) (*Tables, error) {
	var of opportunityFile
	if err := yaml.Unmarshal(opportunityYAML, &of); err != nil {
		return nil, fmt.Errorf("parsing opportunity table: %w", err)
	}
	var pf actionPolicyFile
	if err := yaml.Unmarshal(policyYAML, &pf); err != nil {
		return nil, fmt.Errorf("parsing action policy table: %w", err)
	}

	t := &Tables{
		Version:       of.Version,
		PolicyVersion: pf.Version,
		Stages:        of.Stages,
		BaseWeights:   of.BaseWeights,
		Policy:        pf.Policy,
		DefaultAction: pf.Default,
	}
	if t.DefaultAction == "" {
		t.DefaultAction = ActionIgnore
	}
	for _, mc := range of.Modifiers {
		m := Modifier{Name: mc.Name, Delta: mc.Delta}
		for _, phrase := range mc.Phrases {
			re, err := intent.CompilePhrase(phrase)
			if err != nil {
				return nil, fmt.Errorf("compiling modifier %s phrase %q: %w", mc.Name, phrase, err)
			}
			m.patterns = append(m.patterns, re)
		}
		t.Modifiers = append(t.Modifiers, m)
	}
	return t, nil
}

// LoadTables reads both tables, from override paths when set.
func LoadTables(opportunityPath, policyPath string) (*Tables, error) {
	od, err := rules.Load(rules.Opportunity, opportunityPath)
	if err != nil {
		return nil, err
	}
	pd, err := rules.Load(rules.ActionPolicy, policyPath)
	if err != nil {
		return nil, err
	}
	return ParseTables(od, pd)
}

// DefaultTables parses the embedded tables.
func DefaultTables() (*Tables, error) {
	return LoadTables("", "")
}

// StageFor looks up the table stage, AWARENESS when unmapped.
func (t *Tables) StageFor(in intent.Intent) Stage {
	if s, ok := t.Stages[in]; ok {
		return s
	}
	return StageAwareness
}

// ActionFor looks up the level x stage policy.
func (t *Tables) ActionFor(level Level, stage Stage) Action {
	if row, ok := t.Policy[level]; ok {
		if a, ok := row[stage]; ok {
			return a
		}
	}
	return t.DefaultAction
}
