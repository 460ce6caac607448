package fraud

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rule identifiers, in evaluation order.
const (
	RuleLargeAmount   = "large-amount"
	RuleHighFrequency = "high-frequency"
	RulePatternChange = "pattern-change"
	RuleUnusualTime   = "unusual-time"
)

// FrequencyWindow is the trailing window the high-frequency rule counts over.
const FrequencyWindow = time.Hour

// FraudThreshold is the score at or above which a transaction is fraudulent.
const FraudThreshold = 0.6

// DefaultRules returns the standard fraud rule set.
//
// The pattern-change and unusual-time rules consume uniform draws: they stand in
// for behavioural signals the system does not collect.
func DefaultRules() []domain.FraudRule {
	return []domain.FraudRule{
		{
			ID:          RuleLargeAmount,
			Expression:  "amount > 5000.0",
			Weight:      0.4,
			Description: "Transaction amount exceeds threshold",
		},
		{
			ID:          RuleHighFrequency,
			Expression:  "recent_count > 5",
			Weight:      0.3,
			Description: "High transaction frequency",
		},
		{
			ID:          RulePatternChange,
			Expression:  "pattern_draw < 0.1",
			Weight:      0.4,
			Description: "Unusual spending pattern",
		},
		{
			// 1AM-5AM local time.
			ID:          RuleUnusualTime,
			Expression:  "hour >= 1 && hour <= 5 && time_draw < 0.7",
			Weight:      0.2,
			Description: "Transaction at unusual time",
		},
	}
}

type band struct {
	min            float64
	recommendation string
}

// recommendationBands are scanned highest first.
var recommendationBands = []band{
	{0.8, domain.RecommendBlock},
	{0.6, domain.RecommendReview},
	{0.3, domain.RecommendMonitor},
}

// Recommend maps a fraud score to its recommendation.
func Recommend(score float64) string {
	for _, b := range recommendationBands {
		if score >= b.min {
			return b.recommendation
		}
	}
	return domain.RecommendNormal
}
