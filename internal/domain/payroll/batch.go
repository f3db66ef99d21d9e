package payroll

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"payrollengine/internal/domain/audit"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/platform/apperr"
	"payrollengine/internal/platform/logging"
)

const (
	DefaultBatchLimit   = 500
	DefaultBatchWorkers = 4
	DefaultBatchTimeout = 5 * time.Minute

	BatchKindCalculate = "calculate"

	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusCancelled = "cancelled"
	BatchStatusTimedOut  = "timed_out"

	ReasonBatchCancelled = "batch cancelled"
	ReasonBatchDeadline  = "batch deadline exceeded"
)

var validate = validator.New()

type BatchFilters struct {
	EmployeeIDs []string `json:"employeeIds,omitempty"`
	Departments []string `json:"departments,omitempty"`
	// FromPeriod and ToPeriod bound the period range inclusively (YYYY-MM).
	FromPeriod string `json:"fromPeriod,omitempty"`
	ToPeriod   string `json:"toPeriod,omitempty"`
}

type BatchOptions struct {
	Limit   int           `validate:"gte=0,lte=10000"`
	UserID  string        `validate:"required"`
	Workers int           `validate:"gte=0,lte=64"`
	Timeout time.Duration `validate:"gte=0"`
	// BatchID lets the caller know the id to cancel before the call returns.
	BatchID string
}

type ItemResult struct {
	PayrollID  string          `json:"payrollId"`
	EmployeeID string          `json:"employeeId"`
	Period     string          `json:"period"`
	NetSalary  decimal.Decimal `json:"netSalary,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Kind       apperr.Kind     `json:"kind,omitempty"`
}

type BatchSummary struct {
	TotalLoaded    int             `json:"totalLoaded"`
	TotalProcessed int             `json:"totalProcessed"`
	TotalFailed    int             `json:"totalFailed"`
	TotalSkipped   int             `json:"totalSkipped"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    time.Time       `json:"completedAt"`
	DurationMs     int64           `json:"durationMs"`
	Status         string          `json:"status"`
}

type BatchResult struct {
	BatchID string       `json:"batchId"`
	Success []ItemResult `json:"success"`
	Failed  []ItemResult `json:"failed"`
	Skipped []ItemResult `json:"skipped"`
	Summary BatchSummary `json:"summary"`
}

type CancelResult struct {
	BatchID       string `json:"batchId"`
	Reason        string `json:"reason"`
	AffectedItems int    `json:"affectedItems"`
}

type BatchDefaults struct {
	Limit   int
	Workers int
	Timeout time.Duration
}

// BatchProcessor runs the calculator over many draft records, isolating
// per-record failures.
type BatchProcessor struct {
	calc     *Calculator
	store    Store
	runs     RunStore
	rt       Runtime
	defaults BatchDefaults

	mu      sync.Mutex
	running map[string]*batchState
}

type batchState struct {
	mu        sync.Mutex
	cancelled bool
	reason    string
	status    string
	total     int
	started   int
}

func (s *batchState) outcome() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == "" {
		return BatchStatusCompleted, ""
	}
	return s.status, s.reason
}

func NewBatchProcessor(calc *Calculator, store Store, runs RunStore, defaults BatchDefaults, rt Runtime) *BatchProcessor {
	if defaults.Limit <= 0 {
		defaults.Limit = DefaultBatchLimit
	}
	if defaults.Workers <= 0 {
		defaults.Workers = DefaultBatchWorkers
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultBatchTimeout
	}
	return &BatchProcessor{
		calc:     calc,
		store:    store,
		runs:     runs,
		rt:       rt.withDefaults(),
		defaults: defaults,
		running:  make(map[string]*batchState),
	}
}

type itemOutcome struct {
	kind   string
	result ItemResult
}

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// ProcessBatch loads up to options.Limit draft records matching filters and
// moves each one that calculates cleanly to processed. Only invalid arguments
// or a failure to load the records return an error; everything else is
// reported per item.
func (b *BatchProcessor) ProcessBatch(ctx context.Context, filters BatchFilters, options BatchOptions) (result BatchResult, err error) {
	const op = "payroll.ProcessBatch"
	if err := validate.Struct(options); err != nil {
		return BatchResult{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	for _, p := range []string{filters.FromPeriod, filters.ToPeriod} {
		if p == "" {
			continue
		}
		if _, perr := core.ParsePeriod(p); perr != nil {
			return BatchResult{}, apperr.Validation(op, perr.Error())
		}
	}
	limit := options.Limit
	if limit == 0 {
		limit = b.defaults.Limit
	}
	workers := options.Workers
	if workers == 0 {
		workers = b.defaults.Workers
	}
	timeout := options.Timeout
	if timeout == 0 {
		timeout = b.defaults.Timeout
	}
	batchID := options.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	ctx, span := b.rt.start(ctx, op, attribute.String("batch.id", batchID), attribute.Int("batch.limit", limit))
	defer func() { endSpan(span, err) }()

	state, err := b.register(batchID)
	if err != nil {
		return BatchResult{}, apperr.Wrap(apperr.KindConflict, op, err)
	}
	defer b.unregister(batchID)

	startedAt := b.rt.Now()
	records, err := b.store.ListDrafts(ctx, filters, limit)
	if err != nil {
		return BatchResult{}, apperr.External(op, errors.Wrap(err, "load draft records"))
	}
	state.mu.Lock()
	state.total = len(records)
	state.mu.Unlock()

	run := BatchRun{ID: batchID, Kind: BatchKindCalculate, Status: BatchStatusRunning, RequestedBy: options.UserID, StartedAt: startedAt}
	if err := b.runs.StartRun(ctx, run); err != nil {
		return BatchResult{}, apperr.External(op, errors.Wrap(err, "record batch run"))
	}

	logger := b.rt.Logger.WithFields(logrus.Fields{"batchId": batchID, "userId": options.UserID})
	logger.WithField("loaded", len(records)).Info("payroll batch started")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcomes := make([]itemOutcome, len(records))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range records {
		if reason := b.checkStop(ctx, runCtx, state); reason != "" {
			for j := i; j < len(records); j++ {
				outcomes[j] = itemOutcome{kind: outcomeSkipped, result: itemOf(records[j], reason)}
			}
			break
		}
		rec := records[i]
		idx := i
		g.Go(func() error {
			// Re-checked once a worker slot is free so a cancel lands between items.
			if reason := b.checkStop(ctx, runCtx, state); reason != "" {
				outcomes[idx] = itemOutcome{kind: outcomeSkipped, result: itemOf(rec, reason)}
				return nil
			}
			state.mu.Lock()
			state.started++
			state.mu.Unlock()
			// In-flight items run on ctx, not runCtx, so the deadline only stops new work.
			outcomes[idx] = b.processItem(ctx, rec, options.UserID, logger)
			return nil
		})
	}
	_ = g.Wait()

	result = collect(batchID, outcomes)
	completedAt := b.rt.Now()
	result.Summary.StartedAt = startedAt
	result.Summary.CompletedAt = completedAt
	result.Summary.DurationMs = completedAt.Sub(startedAt).Milliseconds()
	status, cancelReason := state.outcome()
	result.Summary.Status = status

	run.Status = status
	run.CancelReason = cancelReason
	run.Summary = &result.Summary
	run.CompletedAt = &completedAt
	if err := b.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logging.LogError(logger, "payroll", "ProcessBatch", err, logrus.Fields{"batchId": batchID})
	}

	b.rt.Metrics.BatchItems(outcomeSuccess, len(result.Success))
	b.rt.Metrics.BatchItems(outcomeFailed, len(result.Failed))
	b.rt.Metrics.BatchItems(outcomeSkipped, len(result.Skipped))
	b.rt.Metrics.BatchDuration(completedAt.Sub(startedAt))
	logger.WithFields(logrus.Fields{
		"processed":   result.Summary.TotalProcessed,
		"failed":      result.Summary.TotalFailed,
		"skipped":     result.Summary.TotalSkipped,
		"totalAmount": result.Summary.TotalAmount.StringFixed(2),
		"status":      status,
	}).Info("payroll batch finished")
	return result, nil
}

// checkStop returns why no further item may start, or "" to go on.
// The first cause seen sticks.
func (b *BatchProcessor) checkStop(parent, runCtx context.Context, state *batchState) string {
	state.mu.Lock()
	defer state.mu.Unlock()
	switch {
	case state.status != "":
	case state.cancelled || parent.Err() != nil:
		state.status = BatchStatusCancelled
	case runCtx.Err() != nil:
		state.status = BatchStatusTimedOut
	default:
		return ""
	}
	if state.status == BatchStatusTimedOut {
		return ReasonBatchDeadline
	}
	return ReasonBatchCancelled
}

func (b *BatchProcessor) processItem(ctx context.Context, rec Payroll, userID string, logger logrus.FieldLogger) itemOutcome {
	if rec.EmployeeID == "" || rec.Period == "" {
		return itemOutcome{kind: outcomeSkipped, result: itemOf(rec, "missing employeeId or period")}
	}
	fail := func(err error) itemOutcome {
		logger.WithFields(logrus.Fields{
			"payrollId":  rec.ID,
			"employeeId": rec.EmployeeID,
			"period":     rec.Period,
		}).WithError(err).Warn("payroll batch item failed")
		item := itemOf(rec, apperr.Reason(err))
		item.Kind = apperr.KindOf(err)
		return itemOutcome{kind: outcomeFailed, result: item}
	}

	release, err := b.rt.Locker.Acquire(ctx, recordLockKey(rec.ID))
	if err != nil {
		return fail(apperr.Wrap(apperr.KindConflict, "payroll.processItem", err))
	}
	defer release()

	current, err := b.store.Get(ctx, rec.ID)
	if err != nil {
		return fail(classifyStoreError("payroll.processItem", err))
	}
	if current.Status != StatusDraft {
		return itemOutcome{kind: outcomeSkipped, result: itemOf(current, "status is "+string(current.Status)+", expected draft")}
	}

	calculated, err := b.calc.Recalculate(ctx, current)
	if err != nil {
		return fail(err)
	}
	now := b.rt.Now()
	processed, err := ApplyStatus(calculated, StatusProcessed, userID, now, "batch "+BatchKindCalculate)
	if err != nil {
		return fail(apperr.Wrap(apperr.KindBusinessRule, "payroll.processItem", err))
	}
	processed.ProcessedBy = userID
	processed.ProcessedAt = &now
	saved, err := b.store.Update(ctx, processed)
	if err != nil {
		return fail(classifyStoreError("payroll.processItem", err))
	}
	item := itemOf(saved, "")
	item.NetSalary = saved.Calculations.TotalNet
	return itemOutcome{kind: outcomeSuccess, result: item}
}

// CancelBatch stops a running batch from starting further items. In-flight
// items complete; the rest are reported as skipped.
func (b *BatchProcessor) CancelBatch(ctx context.Context, batchID, reason, userID string) (CancelResult, error) {
	const op = "payroll.CancelBatch"
	b.mu.Lock()
	state, ok := b.running[batchID]
	b.mu.Unlock()
	if !ok {
		return CancelResult{}, &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "batch " + batchID + " is not running", Err: ErrBatchNotRunning}
	}
	state.mu.Lock()
	state.cancelled = true
	state.reason = reason
	affected := state.total - state.started
	state.mu.Unlock()

	b.rt.recordAudit(ctx, userID, audit.ActionBatchCancelled, audit.EntityBatchRun, batchID, map[string]any{"reason": reason, "affectedItems": affected})
	b.rt.Logger.WithFields(logrus.Fields{"batchId": batchID, "reason": reason, "affected": affected}).Info("payroll batch cancellation requested")
	return CancelResult{BatchID: batchID, Reason: reason, AffectedItems: affected}, nil
}

func (b *BatchProcessor) register(batchID string) (*batchState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.running[batchID]; exists {
		return nil, errors.Errorf("batch %s is already running", batchID)
	}
	state := &batchState{}
	b.running[batchID] = state
	return state, nil
}

func (b *BatchProcessor) unregister(batchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, batchID)
}

func itemOf(p Payroll, reason string) ItemResult {
	return ItemResult{PayrollID: p.ID, EmployeeID: p.EmployeeID, Period: p.Period, Reason: reason}
}

func collect(batchID string, outcomes []itemOutcome) BatchResult {
	res := BatchResult{BatchID: batchID, Success: []ItemResult{}, Failed: []ItemResult{}, Skipped: []ItemResult{}}
	for _, o := range outcomes {
		switch o.kind {
		case outcomeSuccess:
			res.Success = append(res.Success, o.result)
			res.Summary.TotalAmount = res.Summary.TotalAmount.Add(o.result.NetSalary)
		case outcomeFailed:
			res.Failed = append(res.Failed, o.result)
		default:
			res.Skipped = append(res.Skipped, o.result)
		}
	}
	sortItems(res.Success)
	sortItems(res.Failed)
	sortItems(res.Skipped)
	res.Summary.TotalLoaded = len(outcomes)
	res.Summary.TotalProcessed = len(res.Success)
	res.Summary.TotalFailed = len(res.Failed)
	res.Summary.TotalSkipped = len(res.Skipped)
	return res
}

func sortItems(items []ItemResult) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].EmployeeID != items[j].EmployeeID {
			return items[i].EmployeeID < items[j].EmployeeID
		}
		if items[i].Period != items[j].Period {
			return items[i].Period < items[j].Period
		}
		return items[i].PayrollID < items[j].PayrollID
	})
}
