// Package fraud scores pending transactions against the weighted fraud rule set.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// RecentCounter returns how many transactions an account created within the
// trailing window ending now.
type RecentCounter func(ctx context.Context, accountID string, window time.Duration) (int64, error)

// Options configures an Evaluator. Zero values select the defaults.
type Options struct {
	// Rules defaults to DefaultRules().
	Rules []domain.FraudRule

	// Random supplies the pattern and time draws.
	Random scoring.Random

	// Clock supplies the evaluation hour.
	Clock scoring.Clock
}

// Evaluator scores transactions. It holds no per-call state and is safe for
// concurrent use.
type Evaluator struct {
	engine *rules.Engine
	random scoring.Random
	clock  scoring.Clock
}

// NewEvaluator compiles the rule set and returns an evaluator.
func NewEvaluator(opts Options) (*Evaluator, error) {
	ruleSet := opts.Rules
	if ruleSet == nil {
		ruleSet = DefaultRules()
	}

	engine, err := rules.NewEngine(ruleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to compile fraud rules: %w", err)
	}

	random := opts.Random
	if random == nil {
		random = scoring.NewRandom()
	}
	clock := opts.Clock
	if clock == nil {
		clock = scoring.SystemClock{}
	}

	return &Evaluator{
		engine: engine,
		random: random,
		clock:  clock,
	}, nil
}

// Evaluate scores a transaction given the number of transactions its account
// created within FrequencyWindow. It takes exactly two draws from the random
// source: the pattern draw, then the time draw.
func (e *Evaluator) Evaluate(tx domain.TransactionCandidate, recentCount int64) domain.FraudDecision {
	patternDraw := e.random.Float64()
	// Drawn even outside the 1-5 hour band so every evaluation consumes two draws.
	timeDraw := e.random.Float64()

	hits := e.engine.Evaluate(rules.Input{
		Amount:      tx.Amount,
		RecentCount: recentCount,
		Hour:        e.clock.Now().Hour(),
		PatternDraw: patternDraw,
		TimeDraw:    timeDraw,
	})

	score := 0.0
	factors := make([]string, 0, len(hits))
	for _, hit := range hits {
		if !hit.Matched {
			continue
		}
		score = scoring.Add(score, hit.Rule.Weight)
		factors = append(factors, hit.Rule.Description)
	}

	return domain.FraudDecision{
		Score:          score,
		IsFraudulent:   score >= FraudThreshold,
		Factors:        factors,
		Recommendation: Recommend(score),
	}
}

// EvaluateAccount fetches the account's recent transaction count and evaluates.
// A count failure is returned; it is never scored as zero.
func (e *Evaluator) EvaluateAccount(ctx context.Context, tx domain.TransactionCandidate, count RecentCounter) (domain.FraudDecision, error) {
	if count == nil {
		return domain.FraudDecision{}, fmt.Errorf("recent transaction counter is required")
	}

	n, err := count(ctx, tx.AccountID, FrequencyWindow)
	if err != nil {
		return domain.FraudDecision{}, fmt.Errorf("failed to count recent transactions for account %s: %w", tx.AccountID, err)
	}

	return e.Evaluate(tx, n), nil
}

// Rules returns the rule set in evaluation order.
func (e *Evaluator) Rules() []domain.FraudRule {
	return e.engine.Rules()
}
