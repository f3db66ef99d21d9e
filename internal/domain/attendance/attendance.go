package attendance

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"payrollengine/internal/domain/core"
)

const (
	StatusPresent = "present"
	StatusRemote  = "remote"
	StatusAbsent  = "absent"
)

type Overtime struct {
	Regular decimal.Decimal `json:"regular"`
	Weekend decimal.Decimal `json:"weekend"`
	Holiday decimal.Decimal `json:"holiday"`
}

func (o Overtime) Total() decimal.Decimal {
	return o.Regular.Add(o.Weekend).Add(o.Holiday)
}

type Snapshot struct {
	PresentDays   int      `json:"presentDays"`
	AbsentDays    int      `json:"absentDays"`
	OvertimeHours Overtime `json:"overtimeHours"`
}

// Service aggregates daily attendance rows into a period snapshot.
type Service struct {
	DB *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) GetAttendance(ctx context.Context, employeeID string, period core.Period) (Snapshot, error) {
	var snap Snapshot
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(*) FILTER (WHERE status IN ($4, $5)),
           COUNT(*) FILTER (WHERE status = $6),
           COALESCE(SUM(overtime_regular), 0),
           COALESCE(SUM(overtime_weekend), 0),
           COALESCE(SUM(overtime_holiday), 0)
    FROM attendance_days
    WHERE employee_id = $1 AND work_date BETWEEN $2 AND $3
  `, employeeID, period.Start(), period.End(), StatusPresent, StatusRemote, StatusAbsent).Scan(
		&snap.PresentDays, &snap.AbsentDays,
		&snap.OvertimeHours.Regular, &snap.OvertimeHours.Weekend, &snap.OvertimeHours.Holiday,
	)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
