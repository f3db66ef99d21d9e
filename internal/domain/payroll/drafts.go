package payroll

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"payrollengine/internal/domain/core"
	"payrollengine/internal/platform/apperr"
)

type PrepareResult struct {
	Period  string       `json:"period"`
	Created []ItemResult `json:"created"`
	Skipped []ItemResult `json:"skipped"`
	Failed  []ItemResult `json:"failed"`
}

// PrepareDrafts creates an empty draft for each employee without a record for
// the period, so a later batch run can pick them up.
func (c *Calculator) PrepareDrafts(ctx context.Context, period string, employeeIDs []string) (PrepareResult, error) {
	const op = "payroll.PrepareDrafts"
	if _, err := core.ParsePeriod(period); err != nil {
		return PrepareResult{}, apperr.Validation(op, err.Error())
	}
	res := PrepareResult{Period: period, Created: []ItemResult{}, Skipped: []ItemResult{}, Failed: []ItemResult{}}
	for _, id := range employeeIDs {
		item := ItemResult{EmployeeID: id, Period: period}
		if id == "" {
			item.Reason = "missing employeeId"
			res.Skipped = append(res.Skipped, item)
			continue
		}
		emp, err := c.deps.Directory.Get(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrEmployeeNotFound) {
				err = apperr.Wrap(apperr.KindNotFound, op, err)
			} else {
				err = apperr.External(op, err)
			}
			item.Reason, item.Kind = apperr.Reason(err), apperr.KindOf(err)
			res.Failed = append(res.Failed, item)
			continue
		}
		draft := NewDraft(uuid.NewString(), id, period, emp.Department, emp.Tier, c.rt.Now())
		created, err := c.deps.Store.Create(ctx, draft)
		if errors.Is(err, ErrDuplicatePeriod) {
			item.Reason = "payroll already exists for period"
			res.Skipped = append(res.Skipped, item)
			continue
		}
		if err != nil {
			err = classifyStoreError(op, err)
			item.Reason, item.Kind = apperr.Reason(err), apperr.KindOf(err)
			res.Failed = append(res.Failed, item)
			continue
		}
		item.PayrollID = created.ID
		res.Created = append(res.Created, item)
	}
	c.rt.Logger.WithFields(logrus.Fields{
		"period":  period,
		"created": len(res.Created),
		"skipped": len(res.Skipped),
		"failed":  len(res.Failed),
	}).Info("payroll drafts prepared")
	return res, nil
}
