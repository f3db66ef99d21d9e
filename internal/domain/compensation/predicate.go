package compensation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Condition fields.
const (
	FieldDepartment    = "department"
	FieldRole          = "role"
	FieldTier          = "tier"
	FieldBaseSalary    = "baseSalary"
	FieldPresentDays   = "presentDays"
	FieldAbsentDays    = "absentDays"
	FieldOvertimeHours = "overtimeHours"
)

// Condition operators.
const (
	OpEq  = "eq"
	OpNeq = "neq"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
	OpIn  = "in"
)

// Condition is one clause of a variable allowance predicate. Value holds a
// scalar; Values is used by OpIn.
type Condition struct {
	Field  string   `json:"field" validate:"required,oneof=department role tier baseSalary presentDays absentDays overtimeHours"`
	Op     string   `json:"op" validate:"required,oneof=eq neq gt gte lt lte in"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Facts are the employee attributes conditions are evaluated against.
type Facts struct {
	Department    string
	Role          string
	Tier          string
	BaseSalary    decimal.Decimal
	PresentDays   decimal.Decimal
	AbsentDays    decimal.Decimal
	OvertimeHours decimal.Decimal
}

// Matches reports whether every condition holds. An empty list always matches.
func Matches(conditions []Condition, facts Facts) (bool, error) {
	for _, c := range conditions {
		ok, err := evaluate(c, facts)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluate(c Condition, f Facts) (bool, error) {
	switch c.Field {
	case FieldDepartment:
		return compareText(c, f.Department)
	case FieldRole:
		return compareText(c, f.Role)
	case FieldTier:
		return compareText(c, f.Tier)
	case FieldBaseSalary:
		return compareNumber(c, f.BaseSalary)
	case FieldPresentDays:
		return compareNumber(c, f.PresentDays)
	case FieldAbsentDays:
		return compareNumber(c, f.AbsentDays)
	case FieldOvertimeHours:
		return compareNumber(c, f.OvertimeHours)
	default:
		return false, fmt.Errorf("unknown condition field %q", c.Field)
	}
}

func compareText(c Condition, actual string) (bool, error) {
	switch c.Op {
	case OpEq:
		return strings.EqualFold(actual, c.Value), nil
	case OpNeq:
		return !strings.EqualFold(actual, c.Value), nil
	case OpIn:
		for _, v := range c.Values {
			if strings.EqualFold(actual, v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("operator %q is not defined for %s", c.Op, c.Field)
	}
}

func compareNumber(c Condition, actual decimal.Decimal) (bool, error) {
	if c.Op == OpIn {
		for _, raw := range c.Values {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return false, fmt.Errorf("condition on %s: %w", c.Field, err)
			}
			if actual.Equal(v) {
				return true, nil
			}
		}
		return false, nil
	}
	want, err := decimal.NewFromString(c.Value)
	if err != nil {
		return false, fmt.Errorf("condition on %s: %w", c.Field, err)
	}
	cmp := actual.Cmp(want)
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNeq:
		return cmp != 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}
