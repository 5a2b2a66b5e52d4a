package enrichment

import "strings"

// Category buckets a decision by its dominant subject matter
type Category string

const (
	CategoryArchitecture Category = "architecture"
	CategoryTechnology   Category = "technology"
	CategoryProcess      Category = "process"
	CategoryGeneral      Category = "general"
)

var categoryKeywords = map[Category][]string{
	CategoryArchitecture: {
		"architecture", "microservice", "monolith", "component",
		"scalability", "coupling", "boundary", "layer", "design",
	},
	CategoryTechnology: {
		"database", "framework", "library", "language", "tool",
		"platform", "api", "sdk", "runtime", "version",
	},
	CategoryProcess: {
		"workflow", "process", "deployment", "pipeline", "testing",
		"review", "sprint", "release", "onboarding", "standup",
	},
}

// reasoning-indicator phrases that suggest a justified decision
var reasoningPhrases = []string{
	"because", "since", "trade-off", "tradeoff", "therefore",
	"due to", "instead of", "compared to", "so that",
}

const reasoningBonusCap = 0.08

// ClassifyDecision buckets decision text by keyword frequency. A category
// needs at least two keyword hits to win; ties go to the earlier category in
// architecture > technology > process order, and no winner means general.
func ClassifyDecision(text string) Category {
	lowered := strings.ToLower(text)

	best := CategoryGeneral
	bestHits := 1 // a single stray keyword is not a signal
	for _, category := range []Category{CategoryArchitecture, CategoryTechnology, CategoryProcess} {
		hits := 0
		for _, keyword := range categoryKeywords[category] {
			hits += strings.Count(lowered, keyword)
		}
		if hits > bestHits {
			best = category
			bestHits = hits
		}
	}
	return best
}

// CalibrateConfidence adjusts a raw extraction confidence using the quality
// of the decision record it came from. Sparse records pull confidence down,
// well-argued ones push it up. The result is clamped to [0.1, 1.0].
func CalibrateConfidence(raw float64, d DecisionDraft) float64 {
	confidence := raw

	for _, field := range []string{d.Trigger, d.Decision, d.Rationale} {
		if strings.TrimSpace(field) == "" || field == defaultTrigger {
			confidence -= 0.15
		}
	}

	if len(d.Options) >= 2 {
		confidence += 0.05
	}
	if len(d.Options) >= 3 {
		confidence += 0.03
	}

	rationaleWords := len(strings.Fields(d.Rationale))
	switch {
	case rationaleWords >= 20:
		confidence += 0.05
	case rationaleWords >= 10:
		confidence += 0.02
	case rationaleWords < 5:
		confidence -= 0.10
	}

	if len(strings.Fields(d.Context)) >= 5 {
		confidence += 0.03
	}

	loweredRationale := strings.ToLower(d.Rationale)
	bonus := 0.0
	for _, phrase := range reasoningPhrases {
		if strings.Contains(loweredRationale, phrase) {
			bonus += 0.02
		}
	}
	if bonus > reasoningBonusCap {
		bonus = reasoningBonusCap
	}
	confidence += bonus

	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}
