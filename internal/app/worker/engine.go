package worker

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"payrollengine/internal/domain/core"
	"payrollengine/internal/domain/payroll"
	"payrollengine/internal/platform/jobs"
	"payrollengine/internal/platform/logging"
)

// SchedulerUserID is recorded as the actor of scheduled runs.
const SchedulerUserID = "system:scheduler"

// Roster lists the employees a payroll cycle covers.
type Roster interface {
	ListActiveIDs(ctx context.Context, departments []string) ([]string, error)
}

// Engine groups the payroll components behind the operations the worker runs.
type Engine struct {
	Roster     Roster
	Calculator *payroll.Calculator
	Batch      *payroll.BatchProcessor
	Approvals  *payroll.ApprovalWorkflow
	Transfers  *payroll.TransferEngine
	Jobs       *jobs.Service
	AdviceDir  string
	Logger     logrus.FieldLogger
}

type CycleReport struct {
	Period   string                `json:"period"`
	Prepared payroll.PrepareResult `json:"prepared"`
	Batch    payroll.BatchResult   `json:"batch"`
}

// RunCycle opens drafts for every active employee and runs a batch over the
// period's drafts.
func (e *Engine) RunCycle(ctx context.Context, period string) (CycleReport, error) {
	ids, err := e.Roster.ListActiveIDs(ctx, nil)
	if err != nil {
		return CycleReport{Period: period}, errors.Wrap(err, "list active employees")
	}
	prepared, err := e.Calculator.PrepareDrafts(ctx, period, ids)
	if err != nil {
		return CycleReport{Period: period}, err
	}
	batch, err := e.Batch.ProcessBatch(ctx,
		payroll.BatchFilters{FromPeriod: period, ToPeriod: period},
		payroll.BatchOptions{UserID: SchedulerUserID},
	)
	if err != nil {
		return CycleReport{Period: period, Prepared: prepared}, err
	}
	return CycleReport{Period: period, Prepared: prepared, Batch: batch}, nil
}

// ScheduledCycle is the job the scheduler enqueues: a cycle for the month of now().
func (e *Engine) ScheduledCycle(now func() time.Time) jobs.RunFunc {
	return func(ctx context.Context) (any, error) {
		return e.RunCycle(ctx, core.PeriodOf(now().UTC()).String())
	}
}

// Settle transfers ids and files a settlement advice for the batch. The advice
// path is empty when nothing was transferred.
func (e *Engine) Settle(ctx context.Context, ids []string, info payroll.TransferInfo) (payroll.TransferResult, string, error) {
	result, err := e.Transfers.TransferBatch(ctx, ids, info)
	if err != nil {
		return result, "", err
	}
	if len(result.Success) == 0 {
		return result, "", nil
	}
	path := filepath.Join(e.AdviceDir, result.ReferenceNumber+".pdf")
	_, err = e.Jobs.RunNow(ctx, jobs.JobSettlementAdvice, func(context.Context) (any, error) {
		return map[string]any{"referenceNumber": result.ReferenceNumber, "path": path}, writeAdvice(path, result)
	})
	if err != nil {
		logging.LogError(logging.OrDiscard(e.Logger), "worker", "Settle", err, logrus.Fields{"referenceNumber": result.ReferenceNumber})
		return result, "", errors.Wrap(err, "write settlement advice")
	}
	return result, path, nil
}

func writeAdvice(path string, result payroll.TransferResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := payroll.RenderSettlementAdvice(f, result); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
