package payroll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrollengine/internal/domain/audit"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/platform/apperr"
)

func employees(n int, tier string) []core.Employee {
	out := make([]core.Employee, n)
	for i := range out {
		out[i] = employee(fmt.Sprintf("e-%d", i+1), tier)
	}
	return out
}

func prepare(t *testing.T, h *harness, period string) {
	t.Helper()
	ids := make([]string, 0, len(h.directory))
	for id := range h.directory {
		ids = append(ids, id)
	}
	res, err := h.calc.PrepareDrafts(context.Background(), period, ids)
	require.NoError(t, err)
	require.Len(t, res.Created, len(ids))
}

func waitEntered(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("no batch item started")
		return ""
	}
}

func TestProcessBatchIsolatesItemFailures(t *testing.T) {
	h := newHarness(t, employees(5, "standard")...)
	h.attendance.fail["e-3"] = errors.New("attendance timeout")
	prepare(t, h, "2025-03")
	h.seedRecord(t, "p-orphan", "", "2025-03", StatusDraft, "", "0")
	h.seedRecord(t, "p-pending", "e-1", "2025-02", StatusPending, "standard", "10")

	res, err := h.batch.ProcessBatch(context.Background(), BatchFilters{}, BatchOptions{UserID: "u-1", BatchID: "batch-1"})
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 6, s.TotalLoaded)
	assert.Equal(t, s.TotalLoaded, s.TotalProcessed+s.TotalFailed+s.TotalSkipped)
	assert.Equal(t, 4, s.TotalProcessed)
	assert.Equal(t, BatchStatusCompleted, s.Status)
	assertDec(t, "21430", s.TotalAmount)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "e-3", res.Failed[0].EmployeeID)
	assert.Equal(t, apperr.KindExternalDependency, res.Failed[0].Kind)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "p-orphan", res.Skipped[0].PayrollID)

	var order []string
	for _, item := range res.Success {
		order = append(order, item.EmployeeID)
		p := h.mustGet(t, item.PayrollID)
		assert.Equal(t, StatusProcessed, p.Status)
		assert.Equal(t, "u-1", p.ProcessedBy)
		require.NotNil(t, p.ProcessedAt)
		assertDec(t, "5357.5", p.Calculations.TotalNet)
	}
	assert.Equal(t, []string{"e-1", "e-2", "e-4", "e-5"}, order)

	failed, err := h.store.GetByEmployeePeriod(context.Background(), "e-3", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, failed.Status)

	run, ok := h.store.Run("batch-1")
	require.True(t, ok)
	assert.Equal(t, BatchStatusCompleted, run.Status)
	assert.Equal(t, "u-1", run.RequestedBy)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 4, run.Summary.TotalProcessed)
}

func TestProcessBatchHonoursLimitAndFilters(t *testing.T) {
	h := newHarness(t, employees(4, "standard")...)
	prepare(t, h, "2025-03")
	prepare(t, h, "2025-04")

	res, err := h.batch.ProcessBatch(context.Background(), BatchFilters{FromPeriod: "2025-04"}, BatchOptions{UserID: "u-1", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary.TotalLoaded)
	for _, item := range res.Success {
		assert.Equal(t, "2025-04", item.Period)
	}

	res, err = h.batch.ProcessBatch(context.Background(), BatchFilters{EmployeeIDs: []string{"e-2"}}, BatchOptions{UserID: "u-1"})
	require.NoError(t, err)
	require.Len(t, res.Success, 1)
	assert.Equal(t, "e-2", res.Success[0].EmployeeID)
	assert.Equal(t, "2025-03", res.Success[0].Period)
}

func TestProcessBatchValidatesArguments(t *testing.T) {
	h := newHarness(t)
	_, err := h.batch.ProcessBatch(context.Background(), BatchFilters{}, BatchOptions{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.batch.ProcessBatch(context.Background(), BatchFilters{ToPeriod: "2025/03"}, BatchOptions{UserID: "u-1"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.batch.ProcessBatch(context.Background(), BatchFilters{}, BatchOptions{UserID: "u-1", Limit: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCancelBatchStopsNewItems(t *testing.T) {
	h := newHarness(t, employees(5, "standard")...)
	prepare(t, h, "2025-03")
	h.attendance.entered = make(chan string, 10)
	h.attendance.gate = make(chan struct{})

	type outcome struct {
		res BatchResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.batch.ProcessBatch(context.Background(), BatchFilters{}, BatchOptions{UserID: "u-1", Workers: 1, BatchID: "batch-1"})
		done <- outcome{res, err}
	}()
	assert.Equal(t, "e-1", waitEntered(t, h.attendance.entered))

	_, err := h.batch.ProcessBatch(context.Background(), BatchFilters{}, BatchOptions{UserID: "u-2", BatchID: "batch-1"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "same batch id cannot run twice")

	cancelled, err := h.batch.CancelBatch(context.Background(), "batch-1", "operator stop", "u-9")
	require.NoError(t, err)
	assert.Equal(t, 4, cancelled.AffectedItems)
	close(h.attendance.gate)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, BatchStatusCancelled, out.res.Summary.Status)
	require.Len(t, out.res.Success, 1)
	assert.Equal(t, "e-1", out.res.Success[0].EmployeeID)
	require.Len(t, out.res.Skipped, 4)
	for _, item := range out.res.Skipped {
		assert.Equal(t, ReasonBatchCancelled, item.Reason)
		assert.Equal(t, StatusDraft, h.mustGet(t, item.PayrollID).Status)
	}

	run, ok := h.store.Run("batch-1")
	require.True(t, ok)
	assert.Equal(t, BatchStatusCancelled, run.Status)
	assert.Equal(t, "operator stop", run.CancelReason)
	assert.Contains(t, h.audit.actions(), audit.ActionBatchCancelled)

	_, err = h.batch.CancelBatch(context.Background(), "batch-1", "again", "u-9")
	assert.True(t, errors.Is(err, ErrBatchNotRunning))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProcessBatchDeadlineLetsInFlightItemFinish(t *testing.T) {
	h := newHarness(t, employees(3, "standard")...)
	prepare(t, h, "2025-03")
	h.attendance.entered = make(chan string, 10)
	h.attendance.gate = make(chan struct{})

	done := make(chan BatchResult, 1)
	go func() {
		res, err := h.batch.ProcessBatch(context.Background(), BatchFilters{}, BatchOptions{UserID: "u-1", Workers: 1, Timeout: 50 * time.Millisecond})
		assert.NoError(t, err)
		done <- res
	}()
	waitEntered(t, h.attendance.entered)
	time.Sleep(150 * time.Millisecond)
	close(h.attendance.gate)

	res := <-done
	assert.Equal(t, BatchStatusTimedOut, res.Summary.Status)
	require.Len(t, res.Success, 1)
	require.Len(t, res.Skipped, 2)
	for _, item := range res.Skipped {
		assert.Equal(t, ReasonBatchDeadline, item.Reason)
	}
}

func TestProcessBatchParentCancellation(t *testing.T) {
	h := newHarness(t, employees(3, "standard")...)
	prepare(t, h, "2025-03")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := h.batch.ProcessBatch(ctx, BatchFilters{}, BatchOptions{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, BatchStatusCancelled, res.Summary.Status)
	assert.Equal(t, 3, res.Summary.TotalSkipped)
}
