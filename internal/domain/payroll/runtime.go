package payroll

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payrollengine/internal/domain/audit"
	"payrollengine/internal/platform/lock"
	"payrollengine/internal/platform/logging"
	"payrollengine/internal/platform/metrics"
)

const tracerName = "payrollengine/payroll"

// sharedLocker serves every component built without a Locker, so they still
// exclude each other on the same record.
var sharedLocker = lock.NewMemory()

// Runtime carries the collaborators shared by every engine component.
// Zero fields get working defaults.
type Runtime struct {
	Logger  logrus.FieldLogger
	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Audit   audit.Recorder
	Locker  lock.Locker
	Now     func() time.Time
}

func (r Runtime) withDefaults() Runtime {
	r.Logger = logging.OrDiscard(r.Logger)
	if r.Tracer == nil {
		r.Tracer = otel.Tracer(tracerName)
	}
	if r.Audit == nil {
		r.Audit = audit.Discard{}
	}
	if r.Locker == nil {
		r.Locker = sharedLocker
	}
	if r.Now == nil {
		r.Now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

func (r Runtime) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordAudit never fails the caller; a lost audit line is logged.
func (r Runtime) recordAudit(ctx context.Context, actorID, action, entityType, entityID string, details any) {
	if err := r.Audit.Record(ctx, actorID, action, entityType, entityID, details); err != nil {
		logging.LogError(r.Logger, "payroll", "recordAudit", err, logrus.Fields{"action": action, "entityId": entityID})
	}
}

func recordLockKey(id string) string {
	return "payroll:" + id
}

func periodLockKey(employeeID, period string) string {
	return "payroll:" + employeeID + ":" + period
}
