// Package rules provides the CEL-Go based rule evaluation engine.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Variables available to fraud rule expressions.
const (
	VarAmount      = "amount"
	VarRecentCount = "recent_count"
	VarHour        = "hour"
	VarPatternDraw = "pattern_draw"
	VarTimeDraw    = "time_draw"
)

// Engine evaluates an ordered, immutable set of compiled rules.
// It is safe for concurrent use.
type Engine struct {
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  domain.FraudRule
	Program cel.Program
}

// Input holds the values bound to rule variables for one evaluation.
type Input struct {
	Amount      float64
	RecentCount int64
	Hour        int
	PatternDraw float64
	TimeDraw    float64
}

func (in Input) activation() map[string]any {
	return map[string]any{
		VarAmount:      in.Amount,
		VarRecentCount: in.RecentCount,
		VarHour:        int64(in.Hour),
		VarPatternDraw: in.PatternDraw,
		VarTimeDraw:    in.TimeDraw,
	}
}

// Hit is the outcome of one rule for one input.
type Hit struct {
	Rule    domain.FraudRule
	Matched bool
	Err     error
}

// NewEnv creates the CEL environment fraud rules compile against.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarAmount, cel.DoubleType),
		cel.Variable(VarRecentCount, cel.IntType),
		cel.Variable(VarHour, cel.IntType),
		cel.Variable(VarPatternDraw, cel.DoubleType),
		cel.Variable(VarTimeDraw, cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine compiles the rules in order. Any invalid rule fails the whole set.
func NewEngine(configs []domain.FraudRule) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		env:   env,
		rules: make([]*CompiledRule, 0, len(configs)),
	}

	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("rule id is required")
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("duplicate rule id %s", cfg.ID)
		}
		seen[cfg.ID] = true

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiled)
	}

	return e, nil
}

// Evaluate runs every rule against the input in declaration order.
// A rule that fails at runtime is reported with Err set and Matched false.
func (e *Engine) Evaluate(in Input) []Hit {
	activation := in.activation()
	hits := make([]Hit, len(e.rules))

	for i, rule := range e.rules {
		hits[i] = e.evaluateRule(rule, activation)
	}

	return hits
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) Hit {
	hit := Hit{Rule: rule.Config}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		hit.Err = fmt.Errorf("rule %s: evaluation error: %w", rule.Config.ID, err)
		slog.Warn("rule evaluation failed", "rule_id", rule.Config.ID, "error", err)
		return hit
	}

	matched, ok := out.(types.Bool)
	if !ok {
		hit.Err = fmt.Errorf("rule %s: expected bool result, got %s", rule.Config.ID, out.Type().TypeName())
		return hit
	}
	hit.Matched = bool(matched)

	return hit
}

// Rules returns the rule configurations in evaluation order.
func (e *Engine) Rules() []domain.FraudRule {
	out := make([]domain.FraudRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Config
	}
	return out
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.rules)
}

func (e *Engine) compileRule(cfg domain.FraudRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
