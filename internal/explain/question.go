package explain

import "strings"

// Category is the closed set of question intents the rule-based chat
// fallback understands. Free text is mapped onto exactly one category by
// Classify; anything unrecognized gets the generic capability answer.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryStatus
	CategoryHealth
	CategoryAlerts
	CategoryRecommendation
	CategoryPrediction
	CategoryFleet
	CategoryCritical
)

// String returns the category name, for logs and tests.
func (c Category) String() string {
	switch c {
	case CategoryStatus:
		return "status"
	case CategoryHealth:
		return "health"
	case CategoryAlerts:
		return "alerts"
	case CategoryRecommendation:
		return "recommendation"
	case CategoryPrediction:
		return "prediction"
	case CategoryFleet:
		return "fleet"
	case CategoryCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// categoryKeywords maps each category to its trigger phrases. Order matters:
// earlier entries win when a question matches several categories, so the
// more specific intents come first.
var categoryKeywords = []struct {
	cat   Category
	words []string
}{
	{CategoryStatus, []string{"status", "how is", "condition", "doing"}},
	{CategoryHealth, []string{"health", "score"}},
	{CategoryAlerts, []string{"alert", "warning", "notification"}},
	{CategoryRecommendation, []string{"recommend", "action", "should", "what to do"}},
	{CategoryPrediction, []string{"predict", "fail", "failure", "when"}},
	{CategoryFleet, []string{"fleet", "overall", "total", "summary"}},
	{CategoryCritical, []string{"critical", "worst", "problem"}},
}

// Classify maps a free-text question onto its Category.
func Classify(question string) Category {
	q := strings.ToLower(question)
	for _, entry := range categoryKeywords {
		for _, w := range entry.words {
			if strings.Contains(q, w) {
				return entry.cat
			}
		}
	}
	return CategoryUnknown
}
