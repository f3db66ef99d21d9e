package payroll

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"payrollengine/internal/domain/audit"
	"payrollengine/internal/platform/apperr"
)

const maxVersionRetries = 3

type ApproverInfo struct {
	Name     string `json:"name" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Level    string `json:"level"`
	Comments string `json:"comments,omitempty" validate:"max=1000"`
}

type ApprovalItem struct {
	PayrollID string `json:"payrollId"`
	Approvals int    `json:"approvals"`
	Required  int    `json:"required"`
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type ApprovalSummary struct {
	Total         int `json:"total"`
	Approved      int `json:"approved"`
	AwaitingOther int `json:"awaitingOther"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
}

type ApprovalResult struct {
	Success []ApprovalItem  `json:"success"`
	Failed  []ApprovalItem  `json:"failed"`
	Skipped []ApprovalItem  `json:"skipped"`
	Summary ApprovalSummary `json:"summary"`
}

type UpdateResult struct {
	Status  Status         `json:"status"`
	Updated []ApprovalItem `json:"updated"`
	Failed  []ApprovalItem `json:"failed"`
	Skipped []ApprovalItem `json:"skipped"`
}

// ApprovalWorkflow advances records from pending to approved once enough
// distinct approvers have signed, and applies bulk status changes.
type ApprovalWorkflow struct {
	store Store
	rt    Runtime
}

func NewApprovalWorkflow(store Store, rt Runtime) *ApprovalWorkflow {
	return &ApprovalWorkflow{store: store, rt: rt.withDefaults()}
}

type approvalOutcome int

const (
	approvalRecorded approvalOutcome = iota
	approvalSkipped
	approvalFailed
)

// ApproveBatch appends one approval per record. Records reach approved when
// the count meets the tier requirement.
func (w *ApprovalWorkflow) ApproveBatch(ctx context.Context, ids []string, approver ApproverInfo) (result ApprovalResult, err error) {
	const op = "payroll.ApproveBatch"
	if err := validate.Struct(approver); err != nil {
		return ApprovalResult{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	ctx, span := w.rt.start(ctx, op, attribute.Int("payroll.count", len(ids)), attribute.String("approver.id", approver.UserID))
	defer func() { endSpan(span, err) }()

	result = ApprovalResult{Success: []ApprovalItem{}, Failed: []ApprovalItem{}, Skipped: []ApprovalItem{}}
	for _, id := range ids {
		item, outcome := w.approveOne(ctx, id, approver)
		switch outcome {
		case approvalRecorded:
			result.Success = append(result.Success, item)
			if item.Status == StatusApproved {
				result.Summary.Approved++
				w.rt.Metrics.Approval("approved")
			} else {
				result.Summary.AwaitingOther++
				w.rt.Metrics.Approval("recorded")
			}
		case approvalSkipped:
			result.Skipped = append(result.Skipped, item)
			w.rt.Metrics.Approval("skipped")
		default:
			result.Failed = append(result.Failed, item)
			w.rt.Metrics.Approval("failed")
		}
	}
	result.Summary.Total = len(ids)
	result.Summary.Failed = len(result.Failed)
	result.Summary.Skipped = len(result.Skipped)

	w.rt.Logger.WithFields(logrus.Fields{
		"approverId":    approver.UserID,
		"approved":      result.Summary.Approved,
		"awaitingOther": result.Summary.AwaitingOther,
		"skipped":       result.Summary.Skipped,
		"failed":        result.Summary.Failed,
	}).Info("payroll approvals applied")
	return result, nil
}

func (w *ApprovalWorkflow) approveOne(ctx context.Context, id string, approver ApproverInfo) (ApprovalItem, approvalOutcome) {
	item := ApprovalItem{PayrollID: id}
	release, err := w.rt.Locker.Acquire(ctx, recordLockKey(id))
	if err != nil {
		item.Reason = "record is busy: " + err.Error()
		return item, approvalFailed
	}
	defer release()

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		p, err := w.store.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			item.Reason = "payroll not found"
			return item, approvalSkipped
		}
		if err != nil {
			item.Reason = err.Error()
			return item, approvalFailed
		}
		required := RequiredApprovals(p.Tier)
		item.Status, item.Approvals, item.Required = p.Status, len(p.Approvals), required

		switch {
		case p.Status == StatusApproved:
			item.Reason = "already approved"
			return item, approvalSkipped
		case p.Status != StatusPending:
			item.Reason = fmt.Sprintf("status is %s, expected pending", p.Status)
			return item, approvalSkipped
		case hasApproved(p, approver.UserID):
			item.Reason = "approver has already approved this payroll"
			return item, approvalSkipped
		}

		now := w.rt.Now()
		next := Clone(p)
		next.Approvals = append(next.Approvals, Approval{
			ApproverID:   approver.UserID,
			ApproverName: approver.Name,
			Level:        approver.Level,
			Timestamp:    now,
			Comments:     approver.Comments,
		})
		next.UpdatedAt = now
		if len(next.Approvals) >= required {
			next, err = ApplyStatus(next, StatusApproved, approver.UserID, now, "approval threshold reached")
			if err != nil {
				item.Reason = err.Error()
				return item, approvalFailed
			}
			next.ApprovedAt = &now
		}
		saved, err := w.store.Update(ctx, Derive(next))
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			item.Reason = err.Error()
			return item, approvalFailed
		}
		item.Status, item.Approvals = saved.Status, len(saved.Approvals)
		w.rt.recordAudit(ctx, approver.UserID, audit.ActionPayrollApproved, audit.EntityPayroll, id, map[string]any{
			"level":     approver.Level,
			"approvals": item.Approvals,
			"required":  required,
			"status":    saved.Status,
		})
		return item, approvalRecorded
	}
	item.Reason = ErrVersionConflict.Error()
	return item, approvalFailed
}

func hasApproved(p Payroll, userID string) bool {
	for _, a := range p.Approvals {
		if a.ApproverID == userID {
			return true
		}
	}
	return false
}

// UpdateBulkStatus moves each record to newStatus. An unknown status fails
// the whole call before any record is read.
func (w *ApprovalWorkflow) UpdateBulkStatus(ctx context.Context, ids []string, newStatus Status, updatedBy string) (result UpdateResult, err error) {
	const op = "payroll.UpdateBulkStatus"
	if !IsValidStatus(newStatus) {
		return UpdateResult{}, apperr.Validation(op, fmt.Sprintf("invalid status %q", newStatus))
	}
	if updatedBy == "" {
		return UpdateResult{}, apperr.Validation(op, "updatedBy is required")
	}
	ctx, span := w.rt.start(ctx, op, attribute.Int("payroll.count", len(ids)), attribute.String("payroll.status", string(newStatus)))
	defer func() { endSpan(span, err) }()

	result = UpdateResult{Status: newStatus, Updated: []ApprovalItem{}, Failed: []ApprovalItem{}, Skipped: []ApprovalItem{}}
	for _, id := range ids {
		item, outcome := w.updateOne(ctx, id, newStatus, updatedBy)
		switch outcome {
		case approvalRecorded:
			result.Updated = append(result.Updated, item)
		case approvalSkipped:
			result.Skipped = append(result.Skipped, item)
		default:
			result.Failed = append(result.Failed, item)
		}
	}
	w.rt.Logger.WithFields(logrus.Fields{
		"status":    newStatus,
		"updatedBy": updatedBy,
		"updated":   len(result.Updated),
		"skipped":   len(result.Skipped),
		"failed":    len(result.Failed),
	}).Info("payroll bulk status applied")
	return result, nil
}

func (w *ApprovalWorkflow) updateOne(ctx context.Context, id string, to Status, by string) (ApprovalItem, approvalOutcome) {
	item := ApprovalItem{PayrollID: id}
	release, err := w.rt.Locker.Acquire(ctx, recordLockKey(id))
	if err != nil {
		item.Reason = "record is busy: " + err.Error()
		return item, approvalFailed
	}
	defer release()

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		p, err := w.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				item.Reason = "payroll not found"
			} else {
				item.Reason = err.Error()
			}
			return item, approvalFailed
		}
		item.Status, item.Approvals, item.Required = p.Status, len(p.Approvals), RequiredApprovals(p.Tier)
		if p.Status == to {
			item.Reason = "already " + string(to)
			return item, approvalSkipped
		}
		if reason := bulkRuleViolation(p, to); reason != "" {
			item.Reason = reason
			return item, approvalFailed
		}
		now := w.rt.Now()
		next, err := ApplyStatus(p, to, by, now, "bulk status update")
		if err != nil {
			item.Reason = err.Error()
			return item, approvalFailed
		}
		if to == StatusApproved {
			next.ApprovedAt = &now
		}
		saved, err := w.store.Update(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			item.Reason = err.Error()
			return item, approvalFailed
		}
		item.Status = saved.Status
		w.rt.recordAudit(ctx, by, audit.ActionPayrollStatus, audit.EntityPayroll, id, map[string]any{"from": p.Status, "to": saved.Status})
		return item, approvalRecorded
	}
	item.Reason = ErrVersionConflict.Error()
	return item, approvalFailed
}

// bulkRuleViolation guards the moves that have their own workflow.
func bulkRuleViolation(p Payroll, to Status) string {
	switch {
	case p.IsLocked:
		return ErrLocked.Error()
	case to == StatusApproved && len(p.Approvals) < RequiredApprovals(p.Tier):
		return fmt.Sprintf("insufficient approvals: %d of %d", len(p.Approvals), RequiredApprovals(p.Tier))
	case to == StatusTransferred:
		return "transfers are recorded by the transfer engine"
	case to == StatusPaid && p.Transfer == nil:
		return "payroll has no transfer record"
	}
	return ""
}
