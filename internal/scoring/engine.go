// Package scoring provides the CEL-Go based opportunity scoring engine.
package scoring

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/openprocure/harrier/internal/domain"
)

// Engine compiles and evaluates the per-factor scoring rules. Each rule's
// CEL expression returns a match fraction in [0,1] (bool counts as 0 or 1)
// which is multiplied by the rule's MaxPoints to produce the sub-score.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program for one factor.
type CompiledRule struct {
	Rule    *domain.ScoringRule
	Program cel.Program
}

// NewEngine creates a new scoring engine.
func NewEngine() (*Engine, error) {
	// CEL environment exposing the opportunity and the tenant profile.
	env, err := cel.NewEnv(
		// Opportunity fields
		cel.Variable("naics", cel.StringType),
		cel.Variable("psc", cel.StringType),
		cel.Variable("set_aside", cel.StringType),
		cel.Variable("agency", cel.StringType),
		cel.Variable("opp_type", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("text", cel.StringType), // lowercased title + description
		cel.Variable("value_min", cel.DoubleType),
		cel.Variable("value_max", cel.DoubleType),
		cel.Variable("days_until_close", cel.IntType),
		// Tenant profile fields
		cel.Variable("primary_naics", cel.ListType(cel.StringType)),
		cel.Variable("secondary_naics", cel.ListType(cel.StringType)),
		cel.Variable("keywords", cel.ListType(cel.StringType)),
		cel.Variable("set_asides", cel.ListType(cel.StringType)),
		cel.Variable("agency_priorities", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("profile_min_value", cel.DoubleType),
		cel.Variable("profile_max_value", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded rule set.
func (e *Engine) ValidateRule(rule *domain.ScoringRule) error {
	if rule == nil {
		return fmt.Errorf("scoring rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.ScoringRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.Factor] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(rules []*domain.ScoringRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. Enables hot-reloading
// of scoring tuning from the database without a restart.
func (e *Engine) ReloadRules(rules []*domain.ScoringRule) error {
	newRules := make(map[string]*CompiledRule)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.Factor] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *Engine) LoadedRules() []*domain.ScoringRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScoringRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Evaluate runs every loaded factor rule against one (opportunity, profile)
// pair and returns the per-factor sub-scores and their sum. A factor whose
// expression errors contributes zero rather than failing the pass.
func (e *Engine) Evaluate(opp *domain.Opportunity, profile *domain.TenantProfile) (map[string]float64, float64) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	activation := buildActivation(opp, profile)

	subScores := make(map[string]float64, len(rules))
	var total float64

	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			subScores[rule.Rule.Factor] = 0
			continue
		}

		fraction := clampFraction(toFraction(out))
		points := fraction * rule.Rule.MaxPoints
		subScores[rule.Rule.Factor] = points
		total += points
	}

	return subScores, total
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.ScoringRule) (*CompiledRule, error) {
	if rule.Factor == "" {
		return nil, fmt.Errorf("scoring rule factor is required")
	}
	if rule.MaxPoints < 0 {
		return nil, fmt.Errorf("rule %s: max points must be non-negative", rule.Factor)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Factor, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.Factor, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.Factor, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}

func buildActivation(opp *domain.Opportunity, profile *domain.TenantProfile) map[string]any {
	text := strings.ToLower(opp.Title + " " + opp.Description)

	daysUntilClose := int64(time.Until(opp.CloseAt).Hours() / 24)
	if daysUntilClose < 0 {
		daysUntilClose = 0
	}

	// Flatten keyword groups to a lowercase list; group names are for the
	// admin surface, not the match.
	var keywords []string
	for _, group := range profile.Keywords {
		for _, kw := range group {
			keywords = append(keywords, strings.ToLower(kw))
		}
	}

	return map[string]any{
		"naics":             opp.NAICSCode,
		"psc":               opp.PSCCode,
		"set_aside":         opp.SetAside,
		"agency":            opp.Agency,
		"opp_type":          opp.OppType,
		"title":             opp.Title,
		"text":              text,
		"value_min":         opp.ValueMin,
		"value_max":         opp.ValueMax,
		"days_until_close":  daysUntilClose,
		"primary_naics":     emptyIfNil(profile.PrimaryNAICS),
		"secondary_naics":   emptyIfNil(profile.SecondaryNAICS),
		"keywords":          emptyIfNil(keywords),
		"set_asides":        emptyIfNil(profile.SetAsides),
		"agency_priorities": emptyMapIfNil(profile.AgencyPriorities),
		"profile_min_value": profile.MinContractValue,
		"profile_max_value": profile.MaxContractValue,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMapIfNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

// toFraction converts a CEL value to a numeric match fraction.
func toFraction(val ref.Val) float64 {
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

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
