package payroll

import (
	"context"
	"time"
)

// Store persists payroll records. Update is optimistic: it succeeds only when
// p.Version matches the stored version and returns the record with the new version.
type Store interface {
	Get(ctx context.Context, id string) (Payroll, error)
	GetByEmployeePeriod(ctx context.Context, employeeID, period string) (Payroll, error)
	Create(ctx context.Context, p Payroll) (Payroll, error)
	Update(ctx context.Context, p Payroll) (Payroll, error)
	ListDrafts(ctx context.Context, filters BatchFilters, limit int) ([]Payroll, error)
}

// BatchRun is the persisted trace of one ProcessBatch call.
type BatchRun struct {
	ID           string
	Kind         string
	Status       string
	RequestedBy  string
	CancelReason string
	Summary      *BatchSummary
	StartedAt    time.Time
	CompletedAt  *time.Time
}

type RunStore interface {
	StartRun(ctx context.Context, run BatchRun) error
	FinishRun(ctx context.Context, run BatchRun) error
}

// TransferBatch is the idempotency ledger row written before any record moves.
type TransferBatch struct {
	IdempotencyKey  string
	RequestHash     string
	ReferenceNumber string
	BankCode        string
	AccountEnc      []byte
	RequestedBy     string
	Result          *TransferResult
	CreatedAt       time.Time
}

type TransferLedger interface {
	// Reserve stores b unless the key exists, and returns the stored row and
	// whether it was already there.
	Reserve(ctx context.Context, b TransferBatch) (TransferBatch, bool, error)
	Complete(ctx context.Context, key string, result TransferResult) error
}
