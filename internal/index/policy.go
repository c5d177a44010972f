package index

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/trustlab/kestrel/internal/domain"
)

// RiskPolicy classifies a candidate ring into a risk level from compiled
// CEL expressions over ring statistics. The High expression is checked
// first, then Medium; anything else is Low. Thresholds live in config, not
// code, so operators can tune them without a rebuild.
type RiskPolicy struct {
	high   cel.Program
	medium cel.Program
}

// RingStats is the evaluation input for risk policy expressions.
type RingStats struct {
	Size          int     // center plus members
	Exposure      float64 // total monetary exposure across ring users
	AvgSimilarity float64
}

// NewRiskPolicy compiles the configured expressions. Each expression must
// evaluate to a bool over the variables size, exposure and avg_similarity.
func NewRiskPolicy(cfg domain.RiskPolicyConfig) (*RiskPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("size", cel.IntType),
		cel.Variable("exposure", cel.DoubleType),
		cel.Variable("avg_similarity", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	high, err := compilePolicy(env, "high", cfg.HighExpression)
	if err != nil {
		return nil, err
	}
	medium, err := compilePolicy(env, "medium", cfg.MediumExpression)
	if err != nil {
		return nil, err
	}

	return &RiskPolicy{high: high, medium: medium}, nil
}

func compilePolicy(env *cel.Env, name, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile %s risk expression: %w", name, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%s risk expression must return bool, got %s", name, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %s risk expression: %w", name, err)
	}
	return program, nil
}

// Classify evaluates the ring statistics against the policy.
func (p *RiskPolicy) Classify(stats RingStats) (domain.RiskLevel, error) {
	activation := map[string]any{
		"size":           int64(stats.Size),
		"exposure":       stats.Exposure,
		"avg_similarity": stats.AvgSimilarity,
	}

	matched, err := evalBool(p.high, activation)
	if err != nil {
		return "", fmt.Errorf("high risk expression: %w", err)
	}
	if matched {
		return domain.RiskHigh, nil
	}

	matched, err = evalBool(p.medium, activation)
	if err != nil {
		return "", fmt.Errorf("medium risk expression: %w", err)
	}
	if matched {
		return domain.RiskMedium, nil
	}

	return domain.RiskLow, nil
}

func evalBool(program cel.Program, activation map[string]any) (bool, error) {
	out, _, err := program.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return bool(b), nil
}
