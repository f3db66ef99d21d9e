package payroll

import "errors"

var (
	ErrRecordNotFound      = errors.New("payroll record not found")
	ErrDuplicatePeriod     = errors.New("payroll record already exists for employee and period")
	ErrVersionConflict     = errors.New("payroll record was modified concurrently")
	ErrLocked              = errors.New("payroll record is locked")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrBatchNotRunning     = errors.New("batch is not running")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
)
