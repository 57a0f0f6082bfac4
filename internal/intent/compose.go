package intent

type categorySet map[Category]bool

func newCategorySet(signals []DetectedSignal) categorySet {
	set := make(categorySet, len(signals))
	for _, s := range signals {
		set[s.Category] = true
	}
	return set
}

func (s categorySet) any(cats ...Category) bool {
	for _, c := range cats {
		if s[c] {
			return true
		}
	}
	return false
}

// onlyOf reports whether every present category is in allowed.
func (s categorySet) onlyOf(allowed ...Category) bool {
	for c := range s {
		ok := false
		for _, a := range allowed {
			if c == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// rung is one step of the composition ladder.
type rung struct {
	intent   Intent
	strength Strength
	match    func(set categorySet, strongEvaluative bool) bool
}

// ladder is evaluated top to bottom; the first matching rung wins.
var ladder = []rung{
	{
		intent:   IntentPostPurchaseRegret,
		strength: StrengthImmediate,
		match: func(set categorySet, _ bool) bool {
			return set[CategoryRegret]
		},
	},
	{
		intent:   IntentLatentPurchase,
		strength: StrengthVeryHigh,
		match: func(set categorySet, _ bool) bool {
			return set.any(CategoryConditional, CategoryPreference) &&
				set.any(CategoryProductRef, CategoryAttribute, CategoryPronoun)
		},
	},
	{
		intent:   IntentFitSuitability,
		strength: StrengthHigh,
		match: func(set categorySet, strongEvaluative bool) bool {
			if !set[CategoryEvaluative] || !set.any(CategoryContext, CategoryUsageContext) {
				return false
			}
			return strongEvaluative || set.any(CategoryAttribute, CategoryProductRef, CategoryPronoun)
		},
	},
	{
		intent:   IntentProblemSolution,
		strength: StrengthHigh,
		match: func(set categorySet, _ bool) bool {
			return set[CategoryProblem] && set[CategoryProductRef]
		},
	},
	{
		intent:   IntentProductInquiry,
		strength: StrengthHigh,
		match: func(set categorySet, _ bool) bool {
			return set[CategoryInterrogativeWord] && set[CategorySource] &&
				set.any(CategoryProductRef, CategoryPronoun)
		},
	},
}

// pureEmphasis are the categories that may accompany PRAISE without giving it
// supporting context.
var pureEmphasis = []Category{CategoryPraise, CategoryPronoun, CategoryInterrogativePunct}

// Compose runs the composition ladder over a signal set and returns the
// primary intent and strength.
func Compose(signals []DetectedSignal) (Intent, Strength) {
	set := newCategorySet(signals)
	strong := hasStrongEvaluative(signals)
	for _, r := range ladder {
		if r.match(set, strong) {
			return r.intent, r.strength
		}
	}

	if len(set) == 0 || set.onlyOf(CategoryHostile, CategorySocial) {
		return IntentNoise, StrengthNone
	}
	switch {
	case set[CategoryHostile]:
		return IntentHostile, StrengthLow
	case set[CategorySocial]:
		return IntentSocial, StrengthLow
	}
	if set[CategoryPraise] && set.onlyOf(pureEmphasis...) {
		return IntentNoise, StrengthNone
	}
	return IntentUnknown, StrengthLow
}

// supportingIntents lists every other rung that also matches, plus HOSTILE
// and SOCIAL when those categories were seen.
func supportingIntents(signals []DetectedSignal, primary Intent) []Intent {
	set := newCategorySet(signals)
	strong := hasStrongEvaluative(signals)
	var out []Intent
	for _, r := range ladder {
		if r.intent != primary && r.match(set, strong) {
			out = append(out, r.intent)
		}
	}
	if set[CategoryHostile] && primary != IntentHostile {
		out = append(out, IntentHostile)
	}
	if set[CategorySocial] && primary != IntentSocial {
		out = append(out, IntentSocial)
	}
	return out
}

func hasStrongEvaluative(signals []DetectedSignal) bool {
	for _, s := range signals {
		if s.Category == CategoryEvaluative && s.Strong {
			return true
		}
	}
	return false
}
