// Package watch provides the CEL-Go based watch-rule engine. Watch rules
// are operator-defined expressions over a project's classified metrics that
// raise extra flags alongside the built-in rules.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/gradometer/gradometer/internal/domain"
)

// Engine compiles and evaluates watch rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.WatchRule
	Program cel.Program
}

// NewEngine creates a watch-rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with the classified snapshot's variables
	env, err := cel.NewEnv(
		cel.CrossTypeNumericComparisons(true),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("smr", cel.DoubleType),
		cel.Variable("gpr_delay_percent", cel.DoubleType),
		cel.Variable("gpr_delay_days", cel.IntType),
		cel.Variable("ddu_payment", cel.DoubleType),
		cel.Variable("complaints_count", cel.IntType),
		cel.Variable("rating_drop", cel.DoubleType),
		cel.Variable("lender_delay_days", cel.IntType),
		cel.Variable("debt_to_equity", cel.DoubleType),
		cel.Variable("guarantee_extension", cel.BoolType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("probability", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(rule *domain.WatchRule) error {
	if rule == nil {
		return fmt.Errorf("watch rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.WatchRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(rules []*domain.WatchRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput is the classified snapshot a watch rule sees.
type EvaluateInput struct {
	TenantID string
	Month    string
	Metrics  domain.Metrics
	Tier     domain.RiskTier
	// Probability is the tier probability from the classifier.
	Probability float64
}

// EvaluateAll evaluates every loaded rule against the snapshot in parallel
// and returns a flag for each rule that fired. A boolean expression fires
// on true; numeric expressions fire on any value above zero. Evaluation
// errors mute the rule rather than failing the snapshot.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.Flag, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	m := input.Metrics
	activation := map[string]any{
		"metrics": map[string]any{
			"smr":                 m.SMRCompletion,
			"gpr_delay_percent":   m.GPRDelayPercent,
			"gpr_delay_days":      m.GPRDelayDays,
			"ddu_payment":         m.LatestDDUPayment(),
			"complaints_count":    m.ComplaintsCount,
			"rating_drop":         m.RatingDrop,
			"lender_delay_days":   m.LenderDelayDays,
			"debt_to_equity":      m.DebtToEquity,
			"guarantee_extension": m.GuaranteeExtension,
		},
		"smr":                 m.SMRCompletion,
		"gpr_delay_percent":   m.GPRDelayPercent,
		"gpr_delay_days":      m.GPRDelayDays,
		"ddu_payment":         m.LatestDDUPayment(),
		"complaints_count":    m.ComplaintsCount,
		"rating_drop":         m.RatingDrop,
		"lender_delay_days":   m.LenderDelayDays,
		"debt_to_equity":      m.DebtToEquity,
		"guarantee_extension": m.GuaranteeExtension,
		"tier":                string(input.Tier),
		"probability":         input.Probability,
	}

	fired := make([]*domain.Flag, len(rules))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			fired[idx] = e.evaluateRule(r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	var flags []domain.Flag
	for _, f := range fired {
		if f != nil {
			flags = append(flags, *f)
		}
	}
	return flags, nil
}

// evaluateRule evaluates a single rule, returning a flag when it fires.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, input *EvaluateInput) *domain.Flag {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return nil
	}

	if toScore(out) <= 0 {
		return nil
	}

	severity := rule.Rule.Severity
	if severity < 1 || severity > 5 {
		severity = 3
	}

	return &domain.Flag{
		ID:          rule.Rule.ID + "-" + input.Month,
		Type:        rule.Rule.FlagType,
		Title:       rule.Rule.Title,
		Description: rule.Rule.Description,
		Severity:    severity,
		CreatedAt:   time.Now(),
		Icon:        "👁️",
	}
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears existing rules and loads new ones. This enables
// hot-reloading from the database.
func (e *Engine) ReloadRules(rules []*domain.WatchRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rules.
func (e *Engine) GetLoadedRules() []*domain.WatchRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.WatchRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close clears all loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.WatchRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile watch rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("watch rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for watch rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
