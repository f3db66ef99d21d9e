package incentive

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEntryNotFound = errors.New("entry not found or not pending approval")

// Store serves one of the two entry tables.
type Store struct {
	DB    *pgxpool.Pool
	table string
}

func NewIncentiveStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db, table: "individual_incentives"}
}

func NewPenaltyStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db, table: "performance_penalties"}
}

// FindApproved lists approved entries for the employee and period.
func (s *Store) FindApproved(ctx context.Context, employeeID, period string) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, period, category, amount, status, COALESCE(approved_by, ''), approved_at
    FROM `+s.table+`
    WHERE employee_id = $1 AND period = $2 AND status = $3
    ORDER BY category, id
  `, employeeID, period, string(StatusApproved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.Period, &e.Category, &e.Amount, &status, &e.ApprovedBy, &e.ApprovedAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusPendingApproval
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO `+s.table+` (id, employee_id, period, category, amount, status)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, e.ID, e.EmployeeID, e.Period, e.Category, e.Amount, string(e.Status))
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// Decide moves a pending entry to approved or rejected.
func (s *Store) Decide(ctx context.Context, id, approverID string, status Status, at time.Time) error {
	if status != StatusApproved && status != StatusRejected {
		return errors.New("decision must be approved or rejected")
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE `+s.table+`
    SET status = $1, approved_by = $2, approved_at = $3
    WHERE id = $4 AND status = $5
  `, string(status), approverID, at, id, string(StatusPendingApproval))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}
