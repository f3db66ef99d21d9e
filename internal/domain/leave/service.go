package leave

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"payrollengine/internal/domain/core"
)

const StatusApproved = "approved"

type Snapshot struct {
	PaidDays   decimal.Decimal `json:"paidDays"`
	UnpaidDays decimal.Decimal `json:"unpaidDays"`
}

func newSnapshot(paid, unpaid float64) Snapshot {
	return Snapshot{PaidDays: decimal.NewFromFloat(paid), UnpaidDays: decimal.NewFromFloat(unpaid)}
}

type Service struct {
	DB *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

// GetApprovedLeave totals approved leave overlapping the period, clipped to it.
func (s *Service) GetApprovedLeave(ctx context.Context, employeeID string, period core.Period) (Snapshot, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT lr.start_date, lr.end_date, lr.start_half, lr.end_half, lt.is_paid
    FROM leave_requests lr
    JOIN leave_types lt ON lr.leave_type_id = lt.id
    WHERE lr.employee_id = $1
      AND lr.status = $2
      AND lr.start_date <= $3
      AND lr.end_date >= $4
  `, employeeID, StatusApproved, period.End(), period.Start())
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.StartDate, &w.EndDate, &w.StartHalf, &w.EndHalf, &w.Paid); err != nil {
			return Snapshot{}, err
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return Summarize(windows, period.Start(), period.End()), nil
}
