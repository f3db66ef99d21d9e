package compensation

import (
	"time"

	"github.com/shopspring/decimal"
)

type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeDepartment Scope = "department"
	ScopeRole       Scope = "role"
	ScopeCustom     Scope = "custom"
)

// AmountType says how an allowance Value is read.
type AmountType string

const (
	AmountFixed      AmountType = "fixed"
	AmountPercentage AmountType = "percentage"
)

// Applicability selects the employees a structure covers.
type Applicability struct {
	Scope       Scope            `json:"scope" validate:"required,oneof=all department role custom"`
	Departments []string         `json:"departments,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
	EmployeeIDs []string         `json:"employeeIds,omitempty"`
	MinSalary   *decimal.Decimal `json:"minSalary,omitempty"`
	MaxSalary   *decimal.Decimal `json:"maxSalary,omitempty"`
}

type FixedAllowance struct {
	Name  string          `json:"name" validate:"required"`
	Type  AmountType      `json:"type" validate:"required,oneof=fixed percentage"`
	Value decimal.Decimal `json:"value"`
}

type VariableAllowance struct {
	Name       string           `json:"name" validate:"required"`
	Type       AmountType       `json:"type" validate:"required,oneof=fixed percentage"`
	Value      decimal.Decimal  `json:"value"`
	MaxCap     *decimal.Decimal `json:"maxCap,omitempty"`
	Conditions []Condition      `json:"conditions" validate:"dive"`
}

// CategoryRule adjusts an incentive or penalty category subtotal.
type CategoryRule struct {
	MultiplierPercent decimal.Decimal  `json:"multiplierPercent"`
	MaxAmount         *decimal.Decimal `json:"maxAmount,omitempty"`
}

// TaxBracket taxes up to Span of the remaining income at RatePercent.
// A nil Span is unbounded and must be last.
type TaxBracket struct {
	Span        *decimal.Decimal `json:"span,omitempty"`
	RatePercent decimal.Decimal  `json:"rate"`
}

type SocialSecurityRule struct {
	Percentage decimal.Decimal  `json:"percentage"`
	MaxAmount  *decimal.Decimal `json:"maxAmount,omitempty"`
}

type HealthInsuranceRule struct {
	Percentage decimal.Decimal `json:"percentage"`
	FlatAmount decimal.Decimal `json:"flatAmount"`
}

type GOSIRule struct {
	Percentage decimal.Decimal  `json:"percentage"`
	MinAmount  *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount  *decimal.Decimal `json:"maxAmount,omitempty"`
}

type Deductions struct {
	TaxBrackets     []TaxBracket         `json:"taxBrackets,omitempty"`
	SocialSecurity  *SocialSecurityRule  `json:"socialSecurity,omitempty"`
	HealthInsurance *HealthInsuranceRule `json:"healthInsurance,omitempty"`
	GOSI            *GOSIRule            `json:"gosi,omitempty"`
}

// OvertimePolicy fractions are premium-only multipliers of the hourly rate.
// A nil fraction or a non-positive StandardMonthlyHours falls back to the
// defaults below; an explicit zero fraction pays no premium.
type OvertimePolicy struct {
	StandardMonthlyHours decimal.Decimal  `json:"standardMonthlyHours"`
	RegularFraction      *decimal.Decimal `json:"regularFraction,omitempty"`
	WeekendFraction      *decimal.Decimal `json:"weekendFraction,omitempty"`
	HolidayFraction      *decimal.Decimal `json:"holidayFraction,omitempty"`
}

var (
	DefaultStandardMonthlyHours = decimal.NewFromInt(240)
	DefaultRegularFraction      = decimal.RequireFromString("0.5")
	DefaultWeekendFraction      = decimal.RequireFromString("0.75")
	DefaultHolidayFraction      = decimal.NewFromInt(1)
)

const DefaultDaysPerMonth = 30

// Rates is an overtime policy with every default applied.
type Rates struct {
	StandardMonthlyHours decimal.Decimal
	Regular              decimal.Decimal
	Weekend              decimal.Decimal
	Holiday              decimal.Decimal
}

func (p OvertimePolicy) Rates() Rates {
	r := Rates{
		StandardMonthlyHours: p.StandardMonthlyHours,
		Regular:              fractionOr(p.RegularFraction, DefaultRegularFraction),
		Weekend:              fractionOr(p.WeekendFraction, DefaultWeekendFraction),
		Holiday:              fractionOr(p.HolidayFraction, DefaultHolidayFraction),
	}
	if !r.StandardMonthlyHours.IsPositive() {
		r.StandardMonthlyHours = DefaultStandardMonthlyHours
	}
	return r
}

func fractionOr(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return *v
}

// Structure is a versioned compensation policy.
type Structure struct {
	ID                 string                  `json:"id"`
	Name               string                  `json:"name" validate:"required"`
	Priority           int                     `json:"priority"`
	EffectiveFrom      time.Time               `json:"effectiveFrom" validate:"required"`
	EffectiveTo        *time.Time              `json:"effectiveTo,omitempty"`
	Applicability      Applicability           `json:"applicability"`
	FixedAllowances    []FixedAllowance        `json:"fixedAllowances,omitempty" validate:"dive"`
	VariableAllowances []VariableAllowance     `json:"variableAllowances,omitempty" validate:"dive"`
	IncentiveRules     map[string]CategoryRule `json:"incentiveRules,omitempty"`
	PenaltyRules       map[string]CategoryRule `json:"penaltyRules,omitempty"`
	Deductions         Deductions              `json:"deductions"`
	Overtime           OvertimePolicy          `json:"overtime"`
	DaysPerMonth       int                     `json:"daysPerMonth" validate:"gte=0,lte=31"`
	CreatedAt          time.Time               `json:"createdAt"`
}

func (s Structure) ProrationDays() int {
	if s.DaysPerMonth <= 0 {
		return DefaultDaysPerMonth
	}
	return s.DaysPerMonth
}

// ActiveAt reports whether at falls inside the effective window, both ends inclusive.
func (s Structure) ActiveAt(at time.Time) bool {
	if at.Before(s.EffectiveFrom) {
		return false
	}
	return s.EffectiveTo == nil || !at.After(*s.EffectiveTo)
}
