package payroll

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"payrollengine/internal/domain/attendance"
	"payrollengine/internal/domain/compensation"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/domain/incentive"
	"payrollengine/internal/domain/leave"
)

var hundred = decimal.NewFromInt(100)

// round2 rounds half away from zero to cents. Every component is rounded
// before it is summed.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return round2(base.Mul(pct).Div(hundred))
}

// Inputs is everything a calculation reads.
type Inputs struct {
	Employee   core.Employee
	Structure  compensation.Structure
	Attendance attendance.Snapshot
	Leave      leave.Snapshot
	Incentives []incentive.Entry
	Penalties  []incentive.Entry
}

// Compute fills the calculated sections of p from in and returns the new value.
func Compute(p Payroll, in Inputs, now time.Time) (Payroll, error) {
	base := in.Employee.BaseSalary
	s := in.Structure
	out := Clone(p)
	out.BaseSalary = base
	out.Department = in.Employee.Department
	out.Tier = in.Employee.Tier
	out.StructureID = s.ID

	out.Attendance = AttendanceSnapshot{
		PresentDays:     in.Attendance.PresentDays,
		AbsentDays:      in.Attendance.AbsentDays,
		PaidLeaveDays:   in.Leave.PaidDays,
		UnpaidLeaveDays: in.Leave.UnpaidDays,
		LeaveDays:       in.Leave.PaidDays.Add(in.Leave.UnpaidDays),
		OvertimeHours:   in.Attendance.OvertimeHours,
	}

	facts := compensation.Facts{
		Department:    in.Employee.Department,
		Role:          in.Employee.Role,
		Tier:          in.Employee.Tier,
		BaseSalary:    base,
		PresentDays:   decimal.NewFromInt(int64(in.Attendance.PresentDays)),
		AbsentDays:    decimal.NewFromInt(int64(in.Attendance.AbsentDays)),
		OvertimeHours: in.Attendance.OvertimeHours.Total(),
	}
	allowances, err := ComputeAllowances(s, base, facts)
	if err != nil {
		return p, err
	}
	out.Allowances = allowances

	out.Overtime = ComputeOvertime(base, s.Overtime, in.Attendance.OvertimeHours)
	out.Incentives = Aggregate(in.Incentives, p.Period, s.IncentiveRules)
	out.Penalties = Aggregate(in.Penalties, p.Period, s.PenaltyRules)

	unpaid := in.Leave.UnpaidDays.Add(decimal.NewFromInt(int64(in.Attendance.AbsentDays)))
	prorated := Prorate(base, s.ProrationDays(), unpaid)

	var totalAllowances decimal.Decimal
	for _, a := range allowances {
		totalAllowances = totalAllowances.Add(a.Amount)
	}
	taxable := prorated.Add(totalAllowances).Add(out.Incentives.Total).Add(out.Overtime.Total)

	d := s.Deductions
	out.Taxes = Taxes{
		IncomeTax:       ProgressiveTax(taxable, d.TaxBrackets),
		SocialSecurity:  SocialSecurity(taxable, d.SocialSecurity),
		HealthInsurance: HealthInsurance(taxable, d.HealthInsurance),
		GOSI:            GOSI(taxable, d.GOSI),
	}

	calculatedAt := now
	out.Calculations = Calculations{
		ProratedBase:     prorated,
		TaxableIncome:    taxable,
		LastCalculatedAt: &calculatedAt,
	}
	out.UpdatedAt = now
	return Derive(out), nil
}

func ComputeAllowances(s compensation.Structure, base decimal.Decimal, facts compensation.Facts) ([]Allowance, error) {
	out := make([]Allowance, 0, len(s.FixedAllowances)+len(s.VariableAllowances))
	for _, fa := range s.FixedAllowances {
		out = append(out, Allowance{Name: fa.Name, Amount: allowanceAmount(fa.Type, fa.Value, base)})
	}
	for _, va := range s.VariableAllowances {
		ok, err := compensation.Matches(va.Conditions, facts)
		if err != nil {
			return nil, errors.Wrapf(err, "variable allowance %s", va.Name)
		}
		if !ok {
			continue
		}
		amount := allowanceAmount(va.Type, va.Value, base)
		amount = atMost(amount, va.MaxCap)
		out = append(out, Allowance{Name: va.Name, Amount: amount, Variable: true})
	}
	return out, nil
}

func allowanceAmount(typ compensation.AmountType, value, base decimal.Decimal) decimal.Decimal {
	if typ == compensation.AmountPercentage {
		return percentOf(base, value)
	}
	return round2(value)
}

// ComputeOvertime pays only the premium part of each overtime hour:
// hourlyRate * hours * fraction.
func ComputeOvertime(base decimal.Decimal, policy compensation.OvertimePolicy, hours attendance.Overtime) OvertimePay {
	rates := policy.Rates()
	hourly := base.Div(rates.StandardMonthlyHours)
	pay := OvertimePay{
		Regular: round2(hourly.Mul(hours.Regular).Mul(rates.Regular)),
		Weekend: round2(hourly.Mul(hours.Weekend).Mul(rates.Weekend)),
		Holiday: round2(hourly.Mul(hours.Holiday).Mul(rates.Holiday)),
	}
	pay.Total = pay.Regular.Add(pay.Weekend).Add(pay.Holiday)
	return pay
}

// Prorate removes unpaid days from the base at base/daysPerMonth per day.
func Prorate(base decimal.Decimal, daysPerMonth int, unpaidDays decimal.Decimal) decimal.Decimal {
	if !unpaidDays.IsPositive() {
		return round2(base)
	}
	days := decimal.NewFromInt(int64(daysPerMonth))
	if unpaidDays.GreaterThanOrEqual(days) {
		return decimal.Zero
	}
	daily := base.Div(days)
	return round2(base.Sub(daily.Mul(unpaidDays)))
}

// Aggregate sums approved entries for the period by category and applies the
// optional per-category rules.
func Aggregate(entries []incentive.Entry, period string, rules map[string]compensation.CategoryRule) Breakdown {
	b := Breakdown{Categories: map[string]decimal.Decimal{}}
	for _, e := range entries {
		if e.Status != incentive.StatusApproved || e.Period != period {
			continue
		}
		category := e.Category
		if !incentive.IsKnownCategory(category) {
			b.OtherItems = append(b.OtherItems, ItemizedEntry{EntryID: e.ID, Category: e.Category, Amount: round2(e.Amount)})
			category = incentive.CategoryOther
		}
		b.Categories[category] = b.Categories[category].Add(round2(e.Amount))
	}

	names := make([]string, 0, len(b.Categories))
	for name := range b.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		amount := b.Categories[name]
		if rule, ok := rules[name]; ok {
			amount = applyRule(amount, rule)
			b.Categories[name] = amount
		}
		b.Total = b.Total.Add(amount)
	}
	return b
}

func applyRule(amount decimal.Decimal, rule compensation.CategoryRule) decimal.Decimal {
	if !rule.MultiplierPercent.IsZero() {
		amount = percentOf(amount, rule.MultiplierPercent)
	}
	return atMost(amount, rule.MaxAmount)
}

// ProgressiveTax walks the brackets in order, taxing min(remaining, span) at
// each bracket's rate until nothing remains.
func ProgressiveTax(income decimal.Decimal, brackets []compensation.TaxBracket) decimal.Decimal {
	remaining := income
	tax := decimal.Zero
	for _, b := range brackets {
		if !remaining.IsPositive() {
			break
		}
		consumed := remaining
		if b.Span != nil && b.Span.LessThan(remaining) {
			consumed = *b.Span
		}
		tax = tax.Add(consumed.Mul(b.RatePercent).Div(hundred))
		remaining = remaining.Sub(consumed)
	}
	return round2(tax)
}

func SocialSecurity(income decimal.Decimal, rule *compensation.SocialSecurityRule) decimal.Decimal {
	if rule == nil {
		return decimal.Zero
	}
	return atMost(percentOf(income, rule.Percentage), rule.MaxAmount)
}

func HealthInsurance(income decimal.Decimal, rule *compensation.HealthInsuranceRule) decimal.Decimal {
	if rule == nil {
		return decimal.Zero
	}
	return percentOf(income, rule.Percentage).Add(round2(rule.FlatAmount))
}

func GOSI(income decimal.Decimal, rule *compensation.GOSIRule) decimal.Decimal {
	if rule == nil {
		return decimal.Zero
	}
	amount := atLeast(percentOf(income, rule.Percentage), rule.MinAmount)
	return atMost(amount, rule.MaxAmount)
}

// atMost caps amount at limit, taking the cent at or below limit so the
// result stays in bounds after rounding.
func atMost(amount decimal.Decimal, limit *decimal.Decimal) decimal.Decimal {
	if limit == nil || !amount.GreaterThan(*limit) {
		return amount
	}
	return limit.RoundFloor(2)
}

// atLeast is the floor counterpart of atMost.
func atLeast(amount decimal.Decimal, limit *decimal.Decimal) decimal.Decimal {
	if limit == nil || !amount.LessThan(*limit) {
		return amount
	}
	return limit.RoundCeil(2)
}
