// Package intent classifies interaction text into a primary purchase intent
// and strength by scanning it against the category-tagged signal lexicon.
package intent

// Category tags a lexicon phrase with the semantic role it plays as evidence.
type Category string

const (
	CategoryEvaluative         Category = "EVALUATIVE"
	CategoryContext            Category = "CONTEXT"
	CategoryAttribute          Category = "ATTRIBUTE"
	CategoryConditional        Category = "CONDITIONAL"
	CategoryProductRef         Category = "PRODUCT_REF"
	CategoryPronoun            Category = "PRONOUN"
	CategoryProblem            Category = "PROBLEM"
	CategoryRegret             Category = "REGRET"
	CategoryInterrogativeWord  Category = "INTERROGATIVE_WORD"
	CategoryInterrogativePunct Category = "INTERROGATIVE_PUNCT"
	CategorySource             Category = "SOURCE"
	CategoryPraise             Category = "PRAISE"
	CategorySocial             Category = "SOCIAL"
	CategoryHostile            Category = "HOSTILE"
	CategoryPreference         Category = "PREFERENCE"
	CategoryUsageContext       Category = "USAGE_CONTEXT"
)

// Intent is the primary purpose inferred from an interaction.
type Intent string

const (
	IntentProductInquiry     Intent = "PRODUCT_INQUIRY"
	IntentLatentPurchase     Intent = "LATENT_PURCHASE"
	IntentPostPurchaseRegret Intent = "POST_PURCHASE_REGRET"
	IntentProblemSolution    Intent = "PROBLEM_SOLUTION"
	IntentFitSuitability     Intent = "FIT_SUITABILITY"
	IntentUnknown            Intent = "UNKNOWN"
	IntentNoise              Intent = "NOISE"
	IntentHostile            Intent = "HOSTILE"
	IntentSocial             Intent = "SOCIAL"
)

// Strength is a coarse ordinal of how decisively an intent was detected.
type Strength string

const (
	StrengthNone      Strength = "NONE"
	StrengthLow       Strength = "LOW"
	StrengthMedium    Strength = "MEDIUM"
	StrengthHigh      Strength = "HIGH"
	StrengthVeryHigh  Strength = "VERY_HIGH"
	StrengthImmediate Strength = "IMMEDIATE"
)

var strengthRank = map[Strength]int{
	StrengthNone:      0,
	StrengthLow:       1,
	StrengthMedium:    2,
	StrengthHigh:      3,
	StrengthVeryHigh:  4,
	StrengthImmediate: 5,
}

// Rank orders strengths; unknown values rank as NONE.
func (s Strength) Rank() int {
	return strengthRank[s]
}

// AtLeastHigh reports whether s is HIGH, VERY_HIGH or IMMEDIATE.
func (s Strength) AtLeastHigh() bool {
	return s.Rank() >= strengthRank[StrengthHigh]
}

// DetectedSignal is a single lexicon match. ID is "<category>:<phrase>" and
// is the deduplication key when merging inferred signals.
type DetectedSignal struct {
	Category Category `json:"category"`
	Phrase   string   `json:"phrase"`
	ID       string   `json:"id"`
	Strong   bool     `json:"strong,omitempty"`
}

// NewSignal builds a signal with its stable ID.
func NewSignal(category Category, phrase string, strong bool) DetectedSignal {
	return DetectedSignal{
		Category: category,
		Phrase:   phrase,
		ID:       string(category) + ":" + phrase,
		Strong:   strong,
	}
}

// Confidence values. Composition is deterministic unless the signal set was
// extended by the inference collaborator.
const (
	ConfidenceDeterministic = 1.0
	ConfidenceAugmented     = 0.75
)

// Result is the outcome of classifying one text.
type Result struct {
	Primary        Intent           `json:"primary_intent"`
	Strength       Strength         `json:"strength"`
	Signals        []DetectedSignal `json:"signals"`
	Evidence       []string         `json:"evidence"`
	Supporting     []Intent         `json:"supporting_intents,omitempty"`
	Confidence     float64          `json:"confidence"`
	LexiconVersion string           `json:"lexicon_version"`
	Augmentation   *Augmentation    `json:"augmentation,omitempty"`
}

// Augmentation records what happened on the optional inference step.
type Augmentation struct {
	Attempted bool   `json:"attempted"`
	Added     int    `json:"added"`
	Error     string `json:"error,omitempty"`
}

// HasCategory reports whether any detected signal carries category c.
func (r *Result) HasCategory(c Category) bool {
	for _, s := range r.Signals {
		if s.Category == c {
			return true
		}
	}
	return false
}
