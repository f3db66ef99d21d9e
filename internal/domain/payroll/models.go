package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"payrollengine/internal/domain/attendance"
)

type Allowance struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Variable bool            `json:"variable"`
}

// ItemizedEntry keeps an entry whose category is not one of the known ones.
type ItemizedEntry struct {
	EntryID  string          `json:"entryId"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Breakdown groups approved incentives or penalties by category.
// Entries with unknown categories are counted under "other" and listed in OtherItems.
type Breakdown struct {
	Categories map[string]decimal.Decimal `json:"categories"`
	OtherItems []ItemizedEntry            `json:"otherItems,omitempty"`
	Total      decimal.Decimal            `json:"total"`
}

type AttendanceSnapshot struct {
	PresentDays     int                 `json:"presentDays"`
	AbsentDays      int                 `json:"absentDays"`
	LeaveDays       decimal.Decimal     `json:"leaveDays"`
	PaidLeaveDays   decimal.Decimal     `json:"paidLeaveDays"`
	UnpaidLeaveDays decimal.Decimal     `json:"unpaidLeaveDays"`
	OvertimeHours   attendance.Overtime `json:"overtimeHours"`
}

type OvertimePay struct {
	Regular decimal.Decimal `json:"regular"`
	Weekend decimal.Decimal `json:"weekend"`
	Holiday decimal.Decimal `json:"holiday"`
	Total   decimal.Decimal `json:"total"`
}

type Taxes struct {
	IncomeTax       decimal.Decimal `json:"incomeTax"`
	SocialSecurity  decimal.Decimal `json:"socialSecurity"`
	HealthInsurance decimal.Decimal `json:"healthInsurance"`
	GOSI            decimal.Decimal `json:"gosi"`
}

type Calculations struct {
	ProratedBase     decimal.Decimal `json:"proratedBase"`
	TaxableIncome    decimal.Decimal `json:"taxableIncome"`
	TotalAllowances  decimal.Decimal `json:"totalAllowances"`
	TotalIncentives  decimal.Decimal `json:"totalIncentives"`
	TotalPenalties   decimal.Decimal `json:"totalPenalties"`
	TotalOvertime    decimal.Decimal `json:"totalOvertime"`
	TotalGross       decimal.Decimal `json:"totalGross"`
	TotalDeductions  decimal.Decimal `json:"totalDeductions"`
	TotalNet         decimal.Decimal `json:"totalNet"`
	LastCalculatedAt *time.Time      `json:"lastCalculatedAt,omitempty"`
}

type Approval struct {
	ApproverID   string    `json:"approverId"`
	ApproverName string    `json:"approverName"`
	Level        string    `json:"level"`
	Timestamp    time.Time `json:"timestamp"`
	Comments     string    `json:"comments,omitempty"`
}

const TransferStatusCompleted = "completed"

// Transfer is the settlement sub-record. Only the last four account digits are kept.
type Transfer struct {
	Amount          decimal.Decimal `json:"amount"`
	BankFee         decimal.Decimal `json:"bankFee"`
	ReferenceNumber string          `json:"referenceNumber"`
	TransferDate    time.Time       `json:"transferDate"`
	BankCode        string          `json:"bankCode"`
	AccountLast4    string          `json:"accountNumber"`
	Status          string          `json:"status"`
}

type StatusChange struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Payroll is one employee's record for one period, unique on (EmployeeID, Period).
type Payroll struct {
	ID            string             `json:"id"`
	EmployeeID    string             `json:"employeeId"`
	Period        string             `json:"period"`
	Department    string             `json:"department"`
	Tier          string             `json:"tier"`
	StructureID   string             `json:"structureId,omitempty"`
	BaseSalary    decimal.Decimal    `json:"baseSalary"`
	Allowances    []Allowance        `json:"allowances"`
	Incentives    Breakdown          `json:"incentives"`
	Penalties     Breakdown          `json:"penalties"`
	Attendance    AttendanceSnapshot `json:"attendance"`
	Overtime      OvertimePay        `json:"overtime"`
	Taxes         Taxes              `json:"taxes"`
	Calculations  Calculations       `json:"calculations"`
	Status        Status             `json:"status"`
	Approvals     []Approval         `json:"approvals"`
	Transfer      *Transfer          `json:"transfer,omitempty"`
	IsLocked      bool               `json:"isLocked"`
	ProcessedBy   string             `json:"processedBy,omitempty"`
	ProcessedAt   *time.Time         `json:"processedAt,omitempty"`
	ApprovedAt    *time.Time         `json:"approvedAt,omitempty"`
	StatusHistory []StatusChange     `json:"statusHistory"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Clone returns a copy that shares no slices or maps with p.
func Clone(p Payroll) Payroll {
	out := p
	out.Allowances = append([]Allowance(nil), p.Allowances...)
	out.Incentives = cloneBreakdown(p.Incentives)
	out.Penalties = cloneBreakdown(p.Penalties)
	out.Approvals = append([]Approval(nil), p.Approvals...)
	out.StatusHistory = append([]StatusChange(nil), p.StatusHistory...)
	if p.Transfer != nil {
		t := *p.Transfer
		out.Transfer = &t
	}
	out.ProcessedAt = cloneTime(p.ProcessedAt)
	out.ApprovedAt = cloneTime(p.ApprovedAt)
	out.Calculations.LastCalculatedAt = cloneTime(p.Calculations.LastCalculatedAt)
	return out
}

func cloneBreakdown(b Breakdown) Breakdown {
	out := Breakdown{Total: b.Total, OtherItems: append([]ItemizedEntry(nil), b.OtherItems...)}
	if b.Categories != nil {
		out.Categories = make(map[string]decimal.Decimal, len(b.Categories))
		for k, v := range b.Categories {
			out.Categories[k] = v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// NewDraft builds an empty draft record.
func NewDraft(id, employeeID, period, department, tier string, now time.Time) Payroll {
	return Derive(Payroll{
		ID:         id,
		EmployeeID: employeeID,
		Period:     period,
		Department: department,
		Tier:       tier,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
