package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PGStore keeps each record as a JSON document next to the columns used for
// lookups and the optimistic version.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Get(ctx context.Context, id string) (Payroll, error) {
	return s.scanOne(s.DB.QueryRow(ctx, `
    SELECT document, version
    FROM payroll_records
    WHERE id = $1
  `, id))
}

func (s *PGStore) GetByEmployeePeriod(ctx context.Context, employeeID, period string) (Payroll, error) {
	return s.scanOne(s.DB.QueryRow(ctx, `
    SELECT document, version
    FROM payroll_records
    WHERE employee_id = $1 AND period = $2
  `, employeeID, period))
}

func (s *PGStore) scanOne(row pgx.Row) (Payroll, error) {
	var doc []byte
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payroll{}, ErrRecordNotFound
		}
		return Payroll{}, err
	}
	return decodeRecord(doc, version)
}

func decodeRecord(doc []byte, version int64) (Payroll, error) {
	var p Payroll
	if err := json.Unmarshal(doc, &p); err != nil {
		return Payroll{}, fmt.Errorf("decode payroll document: %w", err)
	}
	p.Version = version
	return p, nil
}

func (s *PGStore) Create(ctx context.Context, p Payroll) (Payroll, error) {
	p = Derive(p)
	p.Version = 1
	doc, err := json.Marshal(p)
	if err != nil {
		return Payroll{}, err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO payroll_records (id, employee_id, period, department, status, total_net, version, document, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,1,$7,$8,$9)
  `, p.ID, p.EmployeeID, p.Period, p.Department, string(p.Status), p.Calculations.TotalNet, doc, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Payroll{}, ErrDuplicatePeriod
		}
		return Payroll{}, err
	}
	return p, nil
}

func (s *PGStore) Update(ctx context.Context, p Payroll) (Payroll, error) {
	expected := p.Version
	p = Derive(p)
	p.Version = expected + 1
	doc, err := json.Marshal(p)
	if err != nil {
		return Payroll{}, err
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_records
    SET document = $1, status = $2, total_net = $3, department = $4,
        version = version + 1, updated_at = now()
    WHERE id = $5 AND version = $6 AND (document->>'isLocked')::boolean IS NOT TRUE
  `, doc, string(p.Status), p.Calculations.TotalNet, p.Department, p.ID, expected)
	if err != nil {
		return Payroll{}, err
	}
	if tag.RowsAffected() == 1 {
		return p, nil
	}
	current, err := s.Get(ctx, p.ID)
	if err != nil {
		return Payroll{}, err
	}
	if current.IsLocked {
		return Payroll{}, ErrLocked
	}
	return Payroll{}, ErrVersionConflict
}

func (s *PGStore) ListDrafts(ctx context.Context, filters BatchFilters, limit int) ([]Payroll, error) {
	query, args := buildDraftQuery(filters, limit)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payroll
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		p, err := decodeRecord(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func buildDraftQuery(filters BatchFilters, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT document, version FROM payroll_records WHERE status = $1")
	args := []any{string(StatusDraft)}
	if len(filters.EmployeeIDs) > 0 {
		args = append(args, filters.EmployeeIDs)
		fmt.Fprintf(&b, " AND employee_id = ANY($%d)", len(args))
	}
	if len(filters.Departments) > 0 {
		args = append(args, filters.Departments)
		fmt.Fprintf(&b, " AND department = ANY($%d)", len(args))
	}
	if filters.FromPeriod != "" {
		args = append(args, filters.FromPeriod)
		fmt.Fprintf(&b, " AND period >= $%d", len(args))
	}
	if filters.ToPeriod != "" {
		args = append(args, filters.ToPeriod)
		fmt.Fprintf(&b, " AND period <= $%d", len(args))
	}
	b.WriteString(" ORDER BY employee_id, period, id")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *PGStore) StartRun(ctx context.Context, run BatchRun) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO batch_runs (id, kind, status, requested_by, started_at)
    VALUES ($1,$2,$3,$4,$5)
  `, run.ID, run.Kind, run.Status, run.RequestedBy, run.StartedAt)
	return err
}

func (s *PGStore) FinishRun(ctx context.Context, run BatchRun) error {
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    UPDATE batch_runs
    SET status = $1, cancel_reason = NULLIF($2, ''), summary_json = $3, completed_at = $4
    WHERE id = $5
  `, run.Status, run.CancelReason, summaryJSON, run.CompletedAt, run.ID)
	return err
}

func (s *PGStore) Reserve(ctx context.Context, b TransferBatch) (TransferBatch, bool, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO transfer_batches (idempotency_key, request_hash, reference_number, bank_code, account_enc, requested_by, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (idempotency_key) DO NOTHING
  `, b.IdempotencyKey, b.RequestHash, b.ReferenceNumber, b.BankCode, b.AccountEnc, b.RequestedBy, b.CreatedAt)
	if err != nil {
		return TransferBatch{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return b, false, nil
	}

	var stored TransferBatch
	var resultJSON []byte
	err = s.DB.QueryRow(ctx, `
    SELECT idempotency_key, request_hash, reference_number, bank_code, account_enc, requested_by, result_json, created_at
    FROM transfer_batches
    WHERE idempotency_key = $1
  `, b.IdempotencyKey).Scan(&stored.IdempotencyKey, &stored.RequestHash, &stored.ReferenceNumber, &stored.BankCode,
		&stored.AccountEnc, &stored.RequestedBy, &resultJSON, &stored.CreatedAt)
	if err != nil {
		return TransferBatch{}, false, err
	}
	if len(resultJSON) > 0 {
		var result TransferResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return TransferBatch{}, false, err
		}
		stored.Result = &result
	}
	return stored, true, nil
}

func (s *PGStore) Complete(ctx context.Context, key string, result TransferResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE transfer_batches
    SET result_json = $1, completed_at = now()
    WHERE idempotency_key = $2
  `, resultJSON, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
