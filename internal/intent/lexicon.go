package intent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/rules"
)

// LexiconFile is the YAML structure of rules/lexicon.yaml.
type LexiconFile struct {
	Version    string           `yaml:"version"`
	Categories []CategoryConfig `yaml:"categories"`
}

// CategoryConfig lists the phrases of one category. Strong phrases are
// members of the category that also qualify on their own (EVALUATIVE only).
type CategoryConfig struct {
	Category Category `yaml:"category"`
	Phrases  []string `yaml:"phrases"`
	Strong   []string `yaml:"strong,omitempty"`
}

type lexiconEntry struct {
	signal  DetectedSignal
	pattern *regexp.Regexp
}

// Lexicon is a compiled, immutable phrase lexicon. Safe for concurrent use.
type Lexicon struct {
	version string
	entries []lexiconEntry
}

// ParseLexicon compiles lexicon YAML.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lf LexiconFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing lexicon YAML: %w", err)
	}
	lex := &Lexicon{version: lf.Version}
	for _, cat := range lf.Categories {
		for _, p := range cat.Strong {
			if err := lex.add(cat.Category, p, true); err != nil {
				return nil, err
			}
		}
		for _, p := range cat.Phrases {
			if err := lex.add(cat.Category, p, false); err != nil {
				return nil, err
			}
		}
	}
	return lex, nil
}

// LoadLexicon reads the lexicon from overridePath, or the embedded table when empty.
func LoadLexicon(overridePath string) (*Lexicon, error) {
	data, err := rules.Load(rules.Lexicon, overridePath)
	if err != nil {
		return nil, err
	}
	return ParseLexicon(data)
}

// DefaultLexicon compiles the embedded lexicon.
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(rules.MustYAML(rules.Lexicon))
}

// MustDefaultLexicon is DefaultLexicon for callers that cannot continue without it.
func MustDefaultLexicon() *Lexicon {
	lex, err := DefaultLexicon()
	if err != nil {
		panic(fmt.Sprintf("loading embedded lexicon: %v", err))
	}
	return lex
}

func (l *Lexicon) add(cat Category, phrase string, strong bool) error {
	phrase = Normalize(phrase)
	if phrase == "" {
		return nil
	}
	re, err := regexp.Compile(phrasePattern(phrase))
	if err != nil {
		return fmt.Errorf("compiling phrase %q in %s: %w", phrase, cat, err)
	}
	l.entries = append(l.entries, lexiconEntry{
		signal:  NewSignal(cat, phrase, strong),
		pattern: re,
	})
	return nil
}

// CompilePhrase compiles a phrase with the lexicon's matching rules, for
// other rule tables that match phrases against normalized text.
func CompilePhrase(phrase string) (*regexp.Regexp, error) {
	return regexp.Compile(phrasePattern(Normalize(phrase)))
}

// phrasePattern anchors word-character edges on word boundaries so "hi" does
// not match inside "this"; punctuation edges match literally.
func phrasePattern(phrase string) string {
	pattern := regexp.QuoteMeta(phrase)
	first, _ := utf8.DecodeRuneInString(phrase)
	last, _ := utf8.DecodeLastRuneInString(phrase)
	if isWordRune(first) {
		pattern = `\b` + pattern
	}
	if isWordRune(last) {
		pattern += `\b`
	}
	return pattern
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Version returns the lexicon version tag.
func (l *Lexicon) Version() string {
	return l.version
}

// Size returns the number of compiled phrases.
func (l *Lexicon) Size() int {
	return len(l.entries)
}

// Normalize lowercases and trims text before scanning.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Scan returns the signals found in normalized text, ordered by the position
// of their first match and then by lexicon order. Each ID appears once.
func (l *Lexicon) Scan(normalized string) []DetectedSignal {
	type hit struct {
		signal DetectedSignal
		pos    int
		order  int
	}
	var hits []hit
	for i, e := range l.entries {
		loc := e.pattern.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		hits = append(hits, hit{signal: e.signal, pos: loc[0], order: i})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].pos != hits[b].pos {
			return hits[a].pos < hits[b].pos
		}
		return hits[a].order < hits[b].order
	})

	seen := make(map[string]bool, len(hits))
	signals := make([]DetectedSignal, 0, len(hits))
	for _, h := range hits {
		if seen[h.signal.ID] {
			continue
		}
		seen[h.signal.ID] = true
		signals = append(signals, h.signal)
	}
	return signals
}
