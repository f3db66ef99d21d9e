package payroll

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"payrollengine/internal/domain/audit"
	"payrollengine/internal/platform/apperr"
)

var DefaultBankFeeRate = decimal.RequireFromString("0.001")

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

type TransferInfo struct {
	BankCode       string `json:"bankCode" validate:"required,max=32"`
	AccountNumber  string `json:"accountNumber" validate:"required,numeric,min=4,max=34"`
	UserID         string `json:"userId" validate:"required"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=128"`
}

type TransferItem struct {
	PayrollID  string          `json:"payrollId"`
	EmployeeID string          `json:"employeeId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	BankFee    decimal.Decimal `json:"bankFee"`
	Status     Status          `json:"status,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

type TransferSummary struct {
	Count     int             `json:"count"`
	Amount    decimal.Decimal `json:"amount"`
	BankFees  decimal.Decimal `json:"bankFees"`
	NetAmount decimal.Decimal `json:"netAmount"`
}

type TransferResult struct {
	ReferenceNumber string          `json:"referenceNumber"`
	TransferDate    time.Time       `json:"transferDate"`
	BankCode        string          `json:"bankCode"`
	AccountLast4    string          `json:"accountNumber"`
	Success         []TransferItem  `json:"success"`
	Pending         []TransferItem  `json:"pending"`
	Failed          []TransferItem  `json:"failed"`
	Summary         TransferSummary `json:"summary"`
	Replayed        bool            `json:"replayed"`
}

// Sealer encrypts the full account number kept in the ledger.
type Sealer interface {
	EncryptString(value string) ([]byte, error)
}

// TransferEngine settles approved records. Every call is keyed by an
// idempotency key that is stored, with its reference number, before any
// record changes.
type TransferEngine struct {
	store   Store
	ledger  TransferLedger
	sealer  Sealer
	feeRate decimal.Decimal
	rt      Runtime
}

func NewTransferEngine(store Store, ledger TransferLedger, sealer Sealer, feeRate decimal.Decimal, rt Runtime) *TransferEngine {
	if feeRate.IsNegative() || feeRate.IsZero() {
		feeRate = DefaultBankFeeRate
	}
	return &TransferEngine{store: store, ledger: ledger, sealer: sealer, feeRate: feeRate, rt: rt.withDefaults()}
}

func (e *TransferEngine) TransferBatch(ctx context.Context, ids []string, info TransferInfo) (result TransferResult, err error) {
	const op = "payroll.TransferBatch"
	if err := validate.Struct(info); err != nil {
		return TransferResult{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	ctx, span := e.rt.start(ctx, op, attribute.Int("payroll.count", len(ids)), attribute.String("transfer.key", info.IdempotencyKey))
	defer func() { endSpan(span, err) }()

	now := e.rt.Now()
	reference, err := NewReferenceNumber(now)
	if err != nil {
		return TransferResult{}, apperr.Wrap(apperr.KindInternal, op, err)
	}
	sealed, err := e.sealer.EncryptString(info.AccountNumber)
	if err != nil {
		return TransferResult{}, apperr.Wrap(apperr.KindInternal, op, errors.Wrap(err, "seal account number"))
	}
	batch, existed, err := e.ledger.Reserve(ctx, TransferBatch{
		IdempotencyKey:  info.IdempotencyKey,
		RequestHash:     RequestHash(ids, info),
		ReferenceNumber: reference,
		BankCode:        info.BankCode,
		AccountEnc:      sealed,
		RequestedBy:     info.UserID,
		CreatedAt:       now,
	})
	if err != nil {
		return TransferResult{}, apperr.External(op, errors.Wrap(err, "reserve idempotency key"))
	}
	if existed {
		if batch.RequestHash != RequestHash(ids, info) {
			return TransferResult{}, &apperr.Error{Kind: apperr.KindConflict, Op: op, Message: "idempotency key was used for a different transfer", Err: ErrIdempotencyConflict}
		}
		if batch.Result != nil {
			replay := *batch.Result
			replay.Replayed = true
			return replay, nil
		}
		// An earlier call stopped part way; finish it under the same reference.
		reference = batch.ReferenceNumber
		now = batch.CreatedAt
	}

	result = TransferResult{
		ReferenceNumber: reference,
		TransferDate:    now,
		BankCode:        info.BankCode,
		AccountLast4:    last4(info.AccountNumber),
		Success:         []TransferItem{},
		Pending:         []TransferItem{},
		Failed:          []TransferItem{},
	}
	for _, id := range uniqueIDs(ids) {
		item, bucket := e.transferOne(ctx, id, reference, now, info)
		switch bucket {
		case StatusTransferred:
			result.Success = append(result.Success, item)
			result.Summary.Amount = result.Summary.Amount.Add(item.Amount)
			result.Summary.BankFees = result.Summary.BankFees.Add(item.BankFee)
		case StatusPending:
			result.Pending = append(result.Pending, item)
		default:
			result.Failed = append(result.Failed, item)
		}
	}
	result.Summary.Count = len(result.Success)
	result.Summary.NetAmount = result.Summary.Amount.Sub(result.Summary.BankFees)

	if err := e.ledger.Complete(context.WithoutCancel(ctx), info.IdempotencyKey, result); err != nil {
		return result, apperr.External(op, errors.Wrap(err, "complete transfer batch"))
	}

	e.rt.Metrics.Transfer("transferred", len(result.Success))
	e.rt.Metrics.Transfer("pending", len(result.Pending))
	e.rt.Metrics.Transfer("failed", len(result.Failed))
	e.rt.Metrics.TransferredAmount(result.Summary.Amount)
	e.rt.Logger.WithFields(logrus.Fields{
		"referenceNumber": reference,
		"transferred":     len(result.Success),
		"pending":         len(result.Pending),
		"failed":          len(result.Failed),
		"amount":          result.Summary.Amount.StringFixed(2),
		"bankFees":        result.Summary.BankFees.StringFixed(2),
	}).Info("payroll transfer batch completed")
	return result, nil
}

// transferOne returns the item and the bucket it belongs to: transferred,
// pending (not eligible) or anything else for failures.
func (e *TransferEngine) transferOne(ctx context.Context, id, reference string, at time.Time, info TransferInfo) (TransferItem, Status) {
	item := TransferItem{PayrollID: id}
	release, err := e.rt.Locker.Acquire(ctx, recordLockKey(id))
	if err != nil {
		item.Reason = "record is busy: " + err.Error()
		return item, ""
	}
	defer release()

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		p, err := e.store.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			item.Reason = "payroll not found"
			return item, ""
		}
		if err != nil {
			item.Reason = err.Error()
			return item, ""
		}
		item.EmployeeID, item.Status = p.EmployeeID, p.Status

		if p.Status == StatusTransferred && p.Transfer != nil && p.Transfer.ReferenceNumber == reference {
			item.Amount, item.BankFee = p.Transfer.Amount, p.Transfer.BankFee
			return item, StatusTransferred
		}
		if p.Status != StatusApproved {
			item.Reason = fmt.Sprintf("status is %s; only approved payrolls can be transferred", p.Status)
			return item, StatusPending
		}

		amount := p.Calculations.TotalNet
		fee := round2(amount.Mul(e.feeRate))
		next, err := ApplyStatus(p, StatusTransferred, info.UserID, at, "transfer "+reference)
		if err != nil {
			item.Reason = err.Error()
			return item, ""
		}
		next.Transfer = &Transfer{
			Amount:          amount,
			BankFee:         fee,
			ReferenceNumber: reference,
			TransferDate:    at,
			BankCode:        info.BankCode,
			AccountLast4:    last4(info.AccountNumber),
			Status:          TransferStatusCompleted,
		}
		saved, err := e.store.Update(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			item.Reason = err.Error()
			return item, ""
		}
		item.Amount, item.BankFee, item.Status = amount, fee, saved.Status
		e.rt.recordAudit(ctx, info.UserID, audit.ActionPayrollTransferred, audit.EntityPayroll, id, map[string]any{
			"referenceNumber": reference,
			"amount":          amount,
			"bankFee":         fee,
		})
		return item, StatusTransferred
	}
	item.Reason = ErrVersionConflict.Error()
	return item, ""
}

// NewReferenceNumber mints BR-YYYYMMDD-XXXXXX with six random base36 characters.
func NewReferenceNumber(at time.Time) (string, error) {
	suffix := make([]byte, 6)
	radix := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			return "", err
		}
		suffix[i] = base36[n.Int64()]
	}
	return "BR-" + at.UTC().Format("20060102") + "-" + string(suffix), nil
}

// RequestHash fingerprints a transfer request independent of id order.
func RequestHash(ids []string, info TransferInfo) string {
	payload, _ := json.Marshal(struct {
		IDs           []string `json:"ids"`
		BankCode      string   `json:"bankCode"`
		AccountNumber string   `json:"accountNumber"`
		UserID        string   `json:"userId"`
	}{uniqueIDs(ids), info.BankCode, info.AccountNumber, info.UserID})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func last4(account string) string {
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}
