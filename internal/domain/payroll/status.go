package payroll

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft       Status = "draft"
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusProcessed   Status = "processed"
	StatusTransferred Status = "transferred"
	StatusPaid        Status = "paid"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusDraft:       true,
	StatusPending:     true,
	StatusApproved:    true,
	StatusProcessed:   true,
	StatusTransferred: true,
	StatusPaid:        true,
	StatusRejected:    true,
	StatusCancelled:   true,
}

// forward lists the non-side-branch moves out of each state. processed is the
// post-batch state and sits before pending, not between approved and transferred.
var forward = map[Status][]Status{
	StatusDraft:       {StatusPending, StatusProcessed},
	StatusProcessed:   {StatusPending},
	StatusPending:     {StatusApproved},
	StatusApproved:    {StatusTransferred},
	StatusTransferred: {StatusPaid},
}

func IsValidStatus(s Status) bool {
	return validStatuses[s]
}

func IsTerminal(s Status) bool {
	return s == StatusPaid || s == StatusRejected || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	if !IsValidStatus(from) || !IsValidStatus(to) || IsTerminal(from) {
		return false
	}
	if to == StatusRejected || to == StatusCancelled {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ApplyStatus returns a copy of p moved to the target status, with the change
// appended to its history. p itself is not modified.
func ApplyStatus(p Payroll, to Status, by string, at time.Time, reason string) (Payroll, error) {
	if p.IsLocked {
		return p, ErrLocked
	}
	if !CanTransition(p.Status, to) {
		return p, errors.Wrapf(ErrInvalidTransition, "%s to %s", p.Status, to)
	}
	out := Clone(p)
	out.StatusHistory = append(out.StatusHistory, StatusChange{From: p.Status, To: to, By: by, At: at, Reason: reason})
	out.Status = to
	out.UpdatedAt = at
	return Derive(out), nil
}

// Derive recomputes every field that follows from the others. It runs on
// every write; nothing else sets totals or the lock flag.
func Derive(p Payroll) Payroll {
	c := p.Calculations
	c.TotalAllowances = decimal.Zero
	for _, a := range p.Allowances {
		c.TotalAllowances = c.TotalAllowances.Add(a.Amount)
	}
	c.TotalIncentives = p.Incentives.Total
	c.TotalPenalties = p.Penalties.Total
	c.TotalOvertime = p.Overtime.Total
	c.TotalGross = c.ProratedBase.Add(c.TotalAllowances).Add(c.TotalIncentives).Add(c.TotalOvertime)
	c.TotalDeductions = p.Taxes.IncomeTax.
		Add(p.Taxes.SocialSecurity).
		Add(p.Taxes.HealthInsurance).
		Add(p.Taxes.GOSI).
		Add(c.TotalPenalties)
	c.TotalNet = c.TotalGross.Sub(c.TotalDeductions)
	p.Calculations = c
	p.IsLocked = p.Status == StatusPaid
	return p
}

// CheckInvariants reports the first broken invariant of a record.
func CheckInvariants(p Payroll) error {
	c := p.Calculations
	if !c.TotalNet.Equal(c.TotalGross.Sub(c.TotalDeductions)) {
		return fmt.Errorf("net %s != gross %s - deductions %s", c.TotalNet, c.TotalGross, c.TotalDeductions)
	}
	if p.IsLocked != (p.Status == StatusPaid) {
		return fmt.Errorf("isLocked=%t with status %s", p.IsLocked, p.Status)
	}
	if !IsValidStatus(p.Status) {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if p.Status == StatusTransferred || p.Status == StatusPaid {
		if p.Transfer == nil {
			return fmt.Errorf("status %s without a transfer record", p.Status)
		}
	}
	return nil
}

// RequiredApprovals maps a tier to the number of distinct approvals needed.
func RequiredApprovals(tier string) int {
	switch tier {
	case "standard":
		return 1
	case "management":
		return 2
	case "senior":
		return 3
	case "executive":
		return 4
	default:
		return 2
	}
}
