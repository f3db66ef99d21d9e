package compensation

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"payrollengine/internal/platform/apperr"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

var hundred = decimal.NewFromInt(100)

// Validate checks a structure before it is stored or used.
func Validate(s Structure) error {
	const op = "compensation.Validate"
	if err := validatorInstance().Struct(s); err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	if s.EffectiveTo != nil && s.EffectiveTo.Before(s.EffectiveFrom) {
		return apperr.Validation(op, "effectiveTo is before effectiveFrom")
	}
	a := s.Applicability
	if a.MinSalary != nil && a.MaxSalary != nil && a.MinSalary.GreaterThan(*a.MaxSalary) {
		return apperr.Validation(op, "minSalary is greater than maxSalary")
	}
	switch a.Scope {
	case ScopeDepartment:
		if len(a.Departments) == 0 {
			return apperr.Validation(op, "department scope needs at least one department")
		}
	case ScopeRole:
		if len(a.Roles) == 0 {
			return apperr.Validation(op, "role scope needs at least one role")
		}
	case ScopeCustom:
		if len(a.EmployeeIDs) == 0 && len(a.Roles) == 0 && len(a.Departments) == 0 && a.MinSalary == nil && a.MaxSalary == nil {
			return apperr.Validation(op, "custom scope needs at least one criterion")
		}
	}
	for _, fa := range s.FixedAllowances {
		if err := checkAmount(fa.Name, fa.Type, fa.Value); err != nil {
			return apperr.Validation(op, err.Error())
		}
	}
	for _, va := range s.VariableAllowances {
		if err := checkAmount(va.Name, va.Type, va.Value); err != nil {
			return apperr.Validation(op, err.Error())
		}
		if va.MaxCap != nil && va.MaxCap.IsNegative() {
			return apperr.Validation(op, fmt.Sprintf("allowance %s has a negative cap", va.Name))
		}
	}
	if err := validateDeductions(s.Deductions); err != nil {
		return apperr.Validation(op, err.Error())
	}
	for name, f := range map[string]*decimal.Decimal{
		"regular": s.Overtime.RegularFraction,
		"weekend": s.Overtime.WeekendFraction,
		"holiday": s.Overtime.HolidayFraction,
	} {
		if f != nil && f.IsNegative() {
			return apperr.Validation(op, fmt.Sprintf("overtime %s fraction is negative", name))
		}
	}
	return nil
}

func checkAmount(name string, typ AmountType, value decimal.Decimal) error {
	if value.IsNegative() {
		return fmt.Errorf("allowance %s is negative", name)
	}
	if typ == AmountPercentage && value.GreaterThan(hundred) {
		return fmt.Errorf("allowance %s percentage exceeds 100", name)
	}
	return nil
}

func validateDeductions(d Deductions) error {
	for i, b := range d.TaxBrackets {
		if !inPercentRange(b.RatePercent) {
			return fmt.Errorf("tax bracket %d rate must be within 0..100", i)
		}
		last := i == len(d.TaxBrackets)-1
		if b.Span == nil && !last {
			return fmt.Errorf("tax bracket %d is unbounded but not last", i)
		}
		if b.Span != nil && last {
			return fmt.Errorf("last tax bracket must be unbounded")
		}
		if b.Span != nil && !b.Span.IsPositive() {
			return fmt.Errorf("tax bracket %d span must be positive", i)
		}
	}
	if ss := d.SocialSecurity; ss != nil {
		if !inPercentRange(ss.Percentage) {
			return fmt.Errorf("social security percentage must be within 0..100")
		}
		if ss.MaxAmount != nil && ss.MaxAmount.IsNegative() {
			return fmt.Errorf("social security maxAmount is negative")
		}
	}
	if hi := d.HealthInsurance; hi != nil {
		if !inPercentRange(hi.Percentage) {
			return fmt.Errorf("health insurance percentage must be within 0..100")
		}
		if hi.FlatAmount.IsNegative() {
			return fmt.Errorf("health insurance flatAmount is negative")
		}
	}
	if g := d.GOSI; g != nil {
		if !inPercentRange(g.Percentage) {
			return fmt.Errorf("GOSI percentage must be within 0..100")
		}
		if g.MinAmount != nil && g.MaxAmount != nil && g.MinAmount.GreaterThan(*g.MaxAmount) {
			return fmt.Errorf("GOSI minAmount is greater than maxAmount")
		}
		if g.MinAmount != nil && g.MaxAmount != nil && g.MinAmount.RoundCeil(2).GreaterThan(g.MaxAmount.RoundFloor(2)) {
			return fmt.Errorf("GOSI range holds no whole cent")
		}
	}
	return nil
}

func inPercentRange(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}
