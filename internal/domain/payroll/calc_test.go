package payroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrollengine/internal/domain/attendance"
	"payrollengine/internal/domain/compensation"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/domain/incentive"
	"payrollengine/internal/domain/leave"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !d(want).Equal(got) {
		assert.Fail(t, "want "+want+", got "+got.String(), msgAndArgs...)
	}
}

var scenarioBrackets = []compensation.TaxBracket{
	{Span: dp("1000"), RatePercent: d("0")},
	{Span: dp("1000"), RatePercent: d("5")},
	{Span: dp("1000"), RatePercent: d("10")},
	{RatePercent: d("15")},
}

func TestAllowanceScenarioGross(t *testing.T) {
	s := compensation.Structure{
		ID:            "s-1",
		Name:          "default",
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Applicability: compensation.Applicability{Scope: compensation.ScopeAll},
		FixedAllowances: []compensation.FixedAllowance{
			{Name: "housing", Type: compensation.AmountFixed, Value: d("600")},
			{Name: "transport", Type: compensation.AmountFixed, Value: d("200")},
			{Name: "meals", Type: compensation.AmountFixed, Value: d("150")},
		},
	}
	in := Inputs{
		Employee:  core.Employee{ID: "e-1", BaseSalary: d("5000")},
		Structure: s,
	}
	p, err := Compute(NewDraft("p-1", "e-1", "2025-03", "", "", time.Now()), in, time.Now())
	require.NoError(t, err)

	assertDec(t, "950", p.Calculations.TotalAllowances)
	assertDec(t, "5950", p.Calculations.TotalGross)
	assertDec(t, "5950", p.Calculations.TotalNet)
	require.NoError(t, CheckInvariants(p))
}

func TestProgressiveTaxScenario(t *testing.T) {
	assertDec(t, "675", ProgressiveTax(d("6500"), scenarioBrackets))
}

func TestProgressiveTaxZeroBracketAndMonotonic(t *testing.T) {
	assertDec(t, "0", ProgressiveTax(d("999.99"), scenarioBrackets))
	assertDec(t, "0", ProgressiveTax(d("0"), scenarioBrackets))
	assertDec(t, "0", ProgressiveTax(d("-50"), scenarioBrackets))
	assertDec(t, "0", ProgressiveTax(d("5000"), nil))

	prev := decimal.Zero
	for income := int64(0); income <= 20000; income += 137 {
		tax := ProgressiveTax(decimal.NewFromInt(income), scenarioBrackets)
		assert.True(t, tax.GreaterThanOrEqual(prev), "tax decreased at income %d", income)
		prev = tax
	}
}

func TestSocialSecurityCapped(t *testing.T) {
	rule := &compensation.SocialSecurityRule{Percentage: d("6"), MaxAmount: dp("1000")}
	assertDec(t, "1000", SocialSecurity(d("20000"), rule))
	assertDec(t, "300", SocialSecurity(d("5000"), rule))
	assertDec(t, "0", SocialSecurity(d("5000"), nil))
	for _, gross := range []string{"0", "16666.67", "1000000"} {
		assert.True(t, SocialSecurity(d(gross), rule).LessThanOrEqual(d("1000")))
	}
}

func TestGOSIClamped(t *testing.T) {
	rule := &compensation.GOSIRule{Percentage: d("3"), MinAmount: dp("100"), MaxAmount: dp("2000")}
	assertDec(t, "100", GOSI(d("2000"), rule))
	assertDec(t, "150", GOSI(d("5000"), rule))
	assertDec(t, "2000", GOSI(d("100000"), rule))
	for _, gross := range []string{"0", "3333.33", "66666.67", "250000"} {
		got := GOSI(d(gross), rule)
		assert.True(t, got.GreaterThanOrEqual(d("100")) && got.LessThanOrEqual(d("2000")), "gosi %s out of range", got)
	}
}

func TestSubCentCapsStayInBounds(t *testing.T) {
	ss := &compensation.SocialSecurityRule{Percentage: d("6"), MaxAmount: dp("999.995")}
	got := SocialSecurity(d("20000"), ss)
	assertDec(t, "999.99", got)
	assert.True(t, got.LessThanOrEqual(d("999.995")))

	gosi := &compensation.GOSIRule{Percentage: d("3"), MinAmount: dp("10.004"), MaxAmount: dp("50.005")}
	assertDec(t, "50", GOSI(d("20000"), gosi))
	assertDec(t, "10.01", GOSI(d("100"), gosi))
	for _, gross := range []string{"0", "333.47", "1666.83", "20000"} {
		got := GOSI(d(gross), gosi)
		assert.True(t, got.GreaterThanOrEqual(d("10.004")) && got.LessThanOrEqual(d("50.005")), "gosi %s out of range", got)
	}

	rule := compensation.CategoryRule{MaxAmount: dp("120.509")}
	b := Aggregate([]incentive.Entry{{ID: "i-1", Period: "2025-03", Category: "safety", Amount: d("500"), Status: incentive.StatusApproved}}, "2025-03", map[string]compensation.CategoryRule{"safety": rule})
	assertDec(t, "120.5", b.Total)

	s := compensation.Structure{VariableAllowances: []compensation.VariableAllowance{
		{Name: "remote", Type: compensation.AmountFixed, Value: d("80"), MaxCap: dp("75.999")},
	}}
	allowances, err := ComputeAllowances(s, d("5000"), compensation.Facts{})
	require.NoError(t, err)
	require.Len(t, allowances, 1)
	assertDec(t, "75.99", allowances[0].Amount)
}

func TestHealthInsurance(t *testing.T) {
	assertDec(t, "125", HealthInsurance(d("5000"), &compensation.HealthInsuranceRule{Percentage: d("2"), FlatAmount: d("25")}))
	assertDec(t, "25", HealthInsurance(d("5000"), &compensation.HealthInsuranceRule{FlatAmount: d("25")}))
	assertDec(t, "100", HealthInsurance(d("5000"), &compensation.HealthInsuranceRule{Percentage: d("2")}))
}

func TestPercentageAndVariableAllowances(t *testing.T) {
	s := compensation.Structure{
		FixedAllowances: []compensation.FixedAllowance{
			{Name: "housing", Type: compensation.AmountPercentage, Value: d("25")},
		},
		VariableAllowances: []compensation.VariableAllowance{
			{
				Name: "attendance bonus", Type: compensation.AmountFixed, Value: d("300"),
				Conditions: []compensation.Condition{{Field: compensation.FieldAbsentDays, Op: compensation.OpEq, Value: "0"}},
			},
			{
				Name: "engineering", Type: compensation.AmountPercentage, Value: d("10"), MaxCap: dp("400"),
				Conditions: []compensation.Condition{{Field: compensation.FieldDepartment, Op: compensation.OpEq, Value: "Engineering"}},
			},
			{
				Name: "sales", Type: compensation.AmountFixed, Value: d("999"),
				Conditions: []compensation.Condition{{Field: compensation.FieldDepartment, Op: compensation.OpEq, Value: "Sales"}},
			},
		},
	}
	facts := compensation.Facts{Department: "Engineering", BaseSalary: d("5000")}

	got, err := ComputeAllowances(s, d("5000"), facts)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "housing", got[0].Name)
	assertDec(t, "1250", got[0].Amount)
	assert.False(t, got[0].Variable)
	assertDec(t, "300", got[1].Amount)
	assert.True(t, got[1].Variable)
	assertDec(t, "400", got[2].Amount, "capped at maxCap")
}

func TestOvertimePremiumOnly(t *testing.T) {
	hours := attendance.Overtime{Regular: d("10"), Weekend: d("4"), Holiday: d("2")}
	pay := ComputeOvertime(d("4800"), compensation.OvertimePolicy{}, hours)
	// hourly = 4800 / 240 = 20
	assertDec(t, "100", pay.Regular)
	assertDec(t, "60", pay.Weekend)
	assertDec(t, "40", pay.Holiday)
	assertDec(t, "200", pay.Total)

	custom := compensation.OvertimePolicy{StandardMonthlyHours: d("160"), RegularFraction: dp("1.5")}
	pay = ComputeOvertime(d("4800"), custom, attendance.Overtime{Regular: d("2")})
	assertDec(t, "90", pay.Regular)
}

func TestOvertimeExplicitZeroPremium(t *testing.T) {
	hours := attendance.Overtime{Regular: d("10"), Weekend: d("4"), Holiday: d("2")}
	policy := compensation.OvertimePolicy{WeekendFraction: dp("0")}
	pay := ComputeOvertime(d("4800"), policy, hours)
	assertDec(t, "100", pay.Regular)
	assertDec(t, "0", pay.Weekend)
	assertDec(t, "40", pay.Holiday)
	assertDec(t, "140", pay.Total)
}

func TestProrate(t *testing.T) {
	assertDec(t, "5000", Prorate(d("5000"), 30, decimal.Zero))
	assertDec(t, "4500", Prorate(d("5000"), 30, d("3")))
	assertDec(t, "4916.67", Prorate(d("5000"), 30, d("0.5")))
	assertDec(t, "0", Prorate(d("5000"), 30, d("31")))
}

func TestAggregateItemizesUnknownCategories(t *testing.T) {
	entries := []incentive.Entry{
		{ID: "i-1", Period: "2025-03", Category: "performance", Amount: d("200"), Status: incentive.StatusApproved},
		{ID: "i-2", Period: "2025-03", Category: "performance", Amount: d("50"), Status: incentive.StatusApproved},
		{ID: "i-3", Period: "2025-03", Category: "referral", Amount: d("75"), Status: incentive.StatusApproved},
		{ID: "i-4", Period: "2025-03", Category: "other", Amount: d("10"), Status: incentive.StatusApproved},
		{ID: "i-5", Period: "2025-03", Category: "safety", Amount: d("500"), Status: incentive.StatusPendingApproval},
		{ID: "i-6", Period: "2025-02", Category: "safety", Amount: d("500"), Status: incentive.StatusApproved},
	}
	b := Aggregate(entries, "2025-03", nil)

	assertDec(t, "250", b.Categories["performance"])
	assertDec(t, "85", b.Categories["other"])
	assert.NotContains(t, b.Categories, "safety")
	require.Len(t, b.OtherItems, 1)
	assert.Equal(t, "referral", b.OtherItems[0].Category)
	assertDec(t, "75", b.OtherItems[0].Amount)
	assertDec(t, "335", b.Total)
}

func TestAggregateAppliesCategoryRules(t *testing.T) {
	entries := []incentive.Entry{
		{ID: "i-1", Period: "2025-03", Category: "performance", Amount: d("1000"), Status: incentive.StatusApproved},
		{ID: "i-2", Period: "2025-03", Category: "project", Amount: d("300"), Status: incentive.StatusApproved},
	}
	rules := map[string]compensation.CategoryRule{
		"performance": {MultiplierPercent: d("150"), MaxAmount: dp("1200")},
		"project":     {MultiplierPercent: d("50")},
	}
	b := Aggregate(entries, "2025-03", rules)
	assertDec(t, "1200", b.Categories["performance"])
	assertDec(t, "150", b.Categories["project"])
	assertDec(t, "1350", b.Total)
}

func TestComputeFullRecordKeepsNetInvariant(t *testing.T) {
	s := compensation.Structure{
		ID:            "s-1",
		Name:          "full",
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Applicability: compensation.Applicability{Scope: compensation.ScopeAll},
		FixedAllowances: []compensation.FixedAllowance{
			{Name: "housing", Type: compensation.AmountPercentage, Value: d("12.5")},
			{Name: "transport", Type: compensation.AmountFixed, Value: d("333.33")},
		},
		Deductions: compensation.Deductions{
			TaxBrackets:     scenarioBrackets,
			SocialSecurity:  &compensation.SocialSecurityRule{Percentage: d("6"), MaxAmount: dp("1000")},
			HealthInsurance: &compensation.HealthInsuranceRule{Percentage: d("1.75"), FlatAmount: d("12.5")},
			GOSI:            &compensation.GOSIRule{Percentage: d("3"), MinAmount: dp("100"), MaxAmount: dp("2000")},
		},
	}
	in := Inputs{
		Employee:   core.Employee{ID: "e-1", BaseSalary: d("7777.77"), Department: "Ops", Tier: "senior"},
		Structure:  s,
		Attendance: attendance.Snapshot{PresentDays: 19, AbsentDays: 1, OvertimeHours: attendance.Overtime{Regular: d("7.5"), Holiday: d("3")}},
		Leave:      leave.Snapshot{PaidDays: d("2"), UnpaidDays: d("1.5")},
		Incentives: []incentive.Entry{{ID: "i", Period: "2025-03", Category: "loyalty", Amount: d("123.45"), Status: incentive.StatusApproved}},
		Penalties:  []incentive.Entry{{ID: "x", Period: "2025-03", Category: "attendance", Amount: d("50"), Status: incentive.StatusApproved}},
	}
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	p, err := Compute(NewDraft("p-1", "e-1", "2025-03", "", "", now), in, now)
	require.NoError(t, err)
	require.NoError(t, CheckInvariants(p))

	c := p.Calculations
	assert.True(t, c.TotalNet.Equal(c.TotalGross.Sub(c.TotalDeductions)))
	assert.True(t, c.TaxableIncome.Equal(c.TotalGross))
	assertDec(t, "50", c.TotalPenalties)
	// 2.5 unpaid days at 7777.77 / 30
	assertDec(t, "7129.62", c.ProratedBase)
	assert.Equal(t, "Ops", p.Department)
	assert.Equal(t, "senior", p.Tier)
	assert.Equal(t, "s-1", p.StructureID)
	assertDec(t, "3.5", p.Attendance.LeaveDays)
	require.NotNil(t, c.LastCalculatedAt)
	assert.True(t, c.LastCalculatedAt.Equal(now))
}
