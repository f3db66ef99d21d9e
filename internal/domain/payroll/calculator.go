package payroll

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"payrollengine/internal/domain/attendance"
	"payrollengine/internal/domain/compensation"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/domain/incentive"
	"payrollengine/internal/domain/leave"
	"payrollengine/internal/platform/apperr"
)

type EmployeeDirectory interface {
	Get(ctx context.Context, employeeID string) (core.Employee, error)
}

type AttendanceService interface {
	GetAttendance(ctx context.Context, employeeID string, period core.Period) (attendance.Snapshot, error)
}

type LeaveService interface {
	GetApprovedLeave(ctx context.Context, employeeID string, period core.Period) (leave.Snapshot, error)
}

// EntryStore is satisfied by both the incentive and the penalty store.
type EntryStore interface {
	FindApproved(ctx context.Context, employeeID, period string) ([]incentive.Entry, error)
}

type StructureResolver interface {
	Resolve(ctx context.Context, emp core.Employee, at time.Time) (compensation.Structure, error)
}

type CalculatorDeps struct {
	Store      Store
	Directory  EmployeeDirectory
	Resolver   StructureResolver
	Attendance AttendanceService
	Leave      LeaveService
	Incentives EntryStore
	Penalties  EntryStore
}

// Calculator produces payroll records for one employee and period.
type Calculator struct {
	deps CalculatorDeps
	rt   Runtime
}

func NewCalculator(deps CalculatorDeps, rt Runtime) *Calculator {
	return &Calculator{deps: deps, rt: rt.withDefaults()}
}

// CalculateMonthlyPayroll computes the record for employeeID and period and
// stores it as a draft. An existing draft is recalculated in place; any other
// existing record is a duplicate.
func (c *Calculator) CalculateMonthlyPayroll(ctx context.Context, employeeID, period string) (result Payroll, err error) {
	const op = "payroll.CalculateMonthlyPayroll"
	ctx, span := c.rt.start(ctx, op, attribute.String("employee.id", employeeID), attribute.String("payroll.period", period))
	defer func() {
		c.rt.Metrics.Calculation(outcomeOf(err))
		endSpan(span, err)
	}()

	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return Payroll{}, apperr.Validation(op, "employeeId is required")
	}
	if _, perr := core.ParsePeriod(period); perr != nil {
		return Payroll{}, apperr.Validation(op, perr.Error())
	}

	release, err := c.rt.Locker.Acquire(ctx, periodLockKey(employeeID, period))
	if err != nil {
		return Payroll{}, apperr.Wrap(apperr.KindConflict, op, err)
	}
	defer release()

	existing, err := c.deps.Store.GetByEmployeePeriod(ctx, employeeID, period)
	found := err == nil
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Payroll{}, apperr.External(op, err)
	}
	if found {
		// Batch, approval and transfer paths hold the record key.
		releaseRecord, err := c.rt.Locker.Acquire(ctx, recordLockKey(existing.ID))
		if err != nil {
			return Payroll{}, apperr.Wrap(apperr.KindConflict, op, err)
		}
		defer releaseRecord()
		if existing, err = c.deps.Store.Get(ctx, existing.ID); err != nil {
			return Payroll{}, classifyStoreError(op, err)
		}
	}
	if found && existing.Status != StatusDraft {
		return Payroll{}, &apperr.Error{
			Kind:    apperr.KindBusinessRule,
			Op:      op,
			Message: "payroll for " + period + " already exists with status " + string(existing.Status),
			Err:     ErrDuplicatePeriod,
		}
	}

	record := existing
	if !found {
		record = NewDraft(uuid.NewString(), employeeID, period, "", "", c.rt.Now())
	}
	calculated, err := c.Recalculate(ctx, record)
	if err != nil {
		return Payroll{}, err
	}

	if found {
		calculated, err = c.deps.Store.Update(ctx, calculated)
	} else {
		calculated, err = c.deps.Store.Create(ctx, calculated)
	}
	if err != nil {
		return Payroll{}, classifyStoreError(op, err)
	}

	c.rt.Logger.WithFields(logrus.Fields{
		"employeeId": employeeID,
		"period":     period,
		"payrollId":  calculated.ID,
		"totalNet":   calculated.Calculations.TotalNet.StringFixed(2),
	}).Info("payroll calculated")
	return calculated, nil
}

// Recalculate gathers the inputs for record and returns the recomputed value
// without storing it.
func (c *Calculator) Recalculate(ctx context.Context, record Payroll) (Payroll, error) {
	const op = "payroll.Recalculate"
	if record.IsLocked {
		return record, apperr.Wrap(apperr.KindBusinessRule, op, ErrLocked)
	}
	period, err := core.ParsePeriod(record.Period)
	if err != nil {
		return record, apperr.Validation(op, err.Error())
	}

	emp, err := c.deps.Directory.Get(ctx, record.EmployeeID)
	if errors.Is(err, core.ErrEmployeeNotFound) {
		return record, &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "employee " + record.EmployeeID + " not found", Err: err}
	}
	if err != nil {
		return record, apperr.External(op, errors.Wrap(err, "employee directory"))
	}
	if !emp.BaseSalary.IsPositive() {
		return record, apperr.Validation(op, "baseSalary must be greater than zero")
	}

	structure, err := c.deps.Resolver.Resolve(ctx, emp, period.End())
	if err != nil {
		return record, err
	}
	if err := compensation.Validate(structure); err != nil {
		return record, err
	}

	in := Inputs{Employee: emp, Structure: structure}
	if in.Attendance, err = c.deps.Attendance.GetAttendance(ctx, emp.ID, period); err != nil {
		return record, apperr.External(op, errors.Wrap(err, "attendance"))
	}
	if in.Leave, err = c.deps.Leave.GetApprovedLeave(ctx, emp.ID, period); err != nil {
		return record, apperr.External(op, errors.Wrap(err, "leave"))
	}
	if in.Incentives, err = c.deps.Incentives.FindApproved(ctx, emp.ID, record.Period); err != nil {
		return record, apperr.External(op, errors.Wrap(err, "incentives"))
	}
	if in.Penalties, err = c.deps.Penalties.FindApproved(ctx, emp.ID, record.Period); err != nil {
		return record, apperr.External(op, errors.Wrap(err, "penalties"))
	}

	out, err := Compute(record, in, c.rt.Now())
	if err != nil {
		return record, apperr.Wrap(apperr.KindValidation, op, err)
	}
	if err := CheckInvariants(out); err != nil {
		return record, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return out, nil
}

func classifyStoreError(op string, err error) error {
	switch {
	case errors.Is(err, ErrDuplicatePeriod):
		return apperr.Wrap(apperr.KindBusinessRule, op, err)
	case errors.Is(err, ErrVersionConflict):
		return apperr.Wrap(apperr.KindConflict, op, err)
	case errors.Is(err, ErrRecordNotFound):
		return apperr.Wrap(apperr.KindNotFound, op, err)
	default:
		return apperr.External(op, err)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperr.KindOf(err))
}
