package eligibility

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRule indicates a rule that cannot be evaluated against the facts.
var ErrInvalidRule = errors.New("eligibility: invalid rule")

// RuleType selects which employee fact a rule reads.
type RuleType string

const (
	RuleTenure       RuleType = "tenure"
	RuleStatus       RuleType = "status"
	RuleConfidential RuleType = "confidential"
	RuleCustom       RuleType = "custom"
)

// Operator compares a fact with the rule value.
type Operator string

const (
	OpGT       Operator = "gt"
	OpGTE      Operator = "gte"
	OpLT       Operator = "lt"
	OpLTE      Operator = "lte"
	OpEQ       Operator = "eq"
	OpNEQ      Operator = "neq"
	OpIncludes Operator = "includes"
)

// Rule is a declarative condition attached to a document type.
type Rule struct {
	Type     RuleType `json:"type" yaml:"type"`
	Operator Operator `json:"operator" yaml:"operator"`
	// Field names the attribute read by custom rules.
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Value   any    `json:"value" yaml:"value"`
	Message string `json:"message" yaml:"message"`
}

// Facts are employee attributes supplied by the caller.
type Facts struct {
	TenureDays       int            `json:"tenure_days"`
	EmploymentStatus string         `json:"employment_status"`
	Confidential     bool           `json:"confidential"`
	Attributes       map[string]any `json:"attributes,omitempty"`
}

// Validate checks the rule shape without facts.
func (r Rule) Validate() error {
	switch r.Type {
	case RuleTenure, RuleStatus, RuleConfidential:
	case RuleCustom:
		if strings.TrimSpace(r.Field) == "" {
			return fmt.Errorf("%w: custom rule requires field", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
	}
	switch r.Operator {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ, OpIncludes:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, r.Operator)
	}
	return nil
}

// Evaluate reports whether facts satisfy the rule.
func (r Rule) Evaluate(f Facts) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	var fact any
	switch r.Type {
	case RuleTenure:
		fact = float64(f.TenureDays)
	case RuleStatus:
		fact = f.EmploymentStatus
	case RuleConfidential:
		fact = f.Confidential
	case RuleCustom:
		v, ok := f.Attributes[r.Field]
		if !ok {
			return false, nil
		}
		fact = v
	}
	return compare(r.Operator, fact, r.Value)
}

func compare(op Operator, fact, value any) (bool, error) {
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE:
		a, okA := toFloat(fact)
		b, okB := toFloat(value)
		if !okA || !okB {
			return false, fmt.Errorf("%w: %s needs numeric operands", ErrInvalidRule, op)
		}
		switch op {
		case OpGT:
			return a > b, nil
		case OpGTE:
			return a >= b, nil
		case OpLT:
			return a < b, nil
		default:
			return a <= b, nil
		}
	case OpEQ:
		return equal(fact, value), nil
	case OpNEQ:
		return !equal(fact, value), nil
	case OpIncludes:
		return includes(fact, value)
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, op)
}

func includes(fact, value any) (bool, error) {
	if list, ok := asList(value); ok {
		for _, candidate := range list {
			if equal(fact, candidate) {
				return true, nil
			}
		}
		return false, nil
	}
	if list, ok := asList(fact); ok {
		for _, candidate := range list {
			if equal(candidate, value) {
				return true, nil
			}
		}
		return false, nil
	}
	fs, okF := fact.(string)
	vs, okV := value.(string)
	if okF && okV {
		return strings.Contains(strings.ToLower(fs), strings.ToLower(vs)), nil
	}
	return false, fmt.Errorf("%w: includes needs a list or string operands", ErrInvalidRule)
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.EqualFold(strings.TrimSpace(sa), strings.TrimSpace(sb))
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
