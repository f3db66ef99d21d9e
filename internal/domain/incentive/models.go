package incentive

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPendingApproval Status = "pending-approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

// Known categories. Anything else is reported under CategoryOther with its own line.
const (
	CategoryPerformance = "performance"
	CategoryAttendance  = "attendance"
	CategorySafety      = "safety"
	CategoryLoyalty     = "loyalty"
	CategoryProject     = "project"
	CategorySeasonal    = "seasonal"
	CategoryOther       = "other"
)

var knownCategories = map[string]bool{
	CategoryPerformance: true,
	CategoryAttendance:  true,
	CategorySafety:      true,
	CategoryLoyalty:     true,
	CategoryProject:     true,
	CategorySeasonal:    true,
	CategoryOther:       true,
}

func IsKnownCategory(category string) bool {
	return knownCategories[category]
}

// Entry is an individual incentive or a performance penalty; both share one shape.
type Entry struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	Period     string          `json:"period"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Status     Status          `json:"status"`
	ApprovedBy string          `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time      `json:"approvedAt,omitempty"`
}

type (
	IndividualIncentive = Entry
	PerformancePenalty  = Entry
)
