package payroll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payrollengine/internal/domain/attendance"
	"payrollengine/internal/domain/compensation"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/domain/incentive"
	"payrollengine/internal/domain/leave"
	"payrollengine/internal/platform/lock"
)

var testNow = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

type stubDirectory map[string]core.Employee

func (s stubDirectory) Get(_ context.Context, id string) (core.Employee, error) {
	emp, ok := s[id]
	if !ok {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	return emp, nil
}

// stubAttendance can fail per employee, and can hold callers at gate after
// announcing themselves on entered.
type stubAttendance struct {
	snapshots map[string]attendance.Snapshot
	fail      map[string]error
	entered   chan string
	gate      chan struct{}
}

func (s *stubAttendance) GetAttendance(ctx context.Context, id string, _ core.Period) (attendance.Snapshot, error) {
	if s.entered != nil {
		s.entered <- id
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return attendance.Snapshot{}, ctx.Err()
		}
	}
	if err := s.fail[id]; err != nil {
		return attendance.Snapshot{}, err
	}
	return s.snapshots[id], nil
}

type stubLeave map[string]leave.Snapshot

func (s stubLeave) GetApprovedLeave(_ context.Context, id string, _ core.Period) (leave.Snapshot, error) {
	return s[id], nil
}

type stubEntries map[string][]incentive.Entry

func (s stubEntries) FindApproved(_ context.Context, id, _ string) ([]incentive.Entry, error) {
	return s[id], nil
}

type stubSealer struct{}

func (stubSealer) EncryptString(v string) ([]byte, error) {
	out := []byte(v)
	for i := range out {
		out[i] ^= 0x5a
	}
	return out, nil
}

type auditEntry struct {
	actor, action, entityType, entityID string
}

type recordingAudit struct {
	mu     sync.Mutex
	events []auditEntry
}

func (r *recordingAudit) Record(_ context.Context, actorID, action, entityType, entityID string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, auditEntry{actorID, action, entityType, entityID})
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.action)
	}
	return out
}

func standardStructure() compensation.Structure {
	return compensation.Structure{
		ID:            "struct-default",
		Name:          "default",
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Applicability: compensation.Applicability{Scope: compensation.ScopeAll},
		FixedAllowances: []compensation.FixedAllowance{
			{Name: "housing", Type: compensation.AmountFixed, Value: decimal.NewFromInt(600)},
			{Name: "transport", Type: compensation.AmountFixed, Value: decimal.NewFromInt(200)},
			{Name: "meals", Type: compensation.AmountFixed, Value: decimal.NewFromInt(150)},
		},
		Deductions: compensation.Deductions{TaxBrackets: scenarioBrackets},
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func employee(id, tier string) core.Employee {
	return core.Employee{
		ID:         id,
		BaseSalary: decimal.NewFromInt(5000),
		Department: "Engineering",
		Role:       "engineer",
		Tier:       tier,
		Status:     core.EmployeeStatusActive,
	}
}

type harness struct {
	store      *MemoryStore
	directory  stubDirectory
	attendance *stubAttendance
	incentives stubEntries
	audit      *recordingAudit
	rt         Runtime
	calc       *Calculator
	batch      *BatchProcessor
	approvals  *ApprovalWorkflow
	transfers  *TransferEngine
}

func newHarness(t *testing.T, employees ...core.Employee) *harness {
	t.Helper()
	h := &harness{
		store:      NewMemoryStore(),
		directory:  stubDirectory{},
		attendance: &stubAttendance{snapshots: map[string]attendance.Snapshot{}, fail: map[string]error{}},
		incentives: stubEntries{},
		audit:      &recordingAudit{},
	}
	for _, e := range employees {
		h.directory[e.ID] = e
	}
	h.rt = Runtime{Audit: h.audit, Locker: lock.NewMemory(), Now: func() time.Time { return testNow }}
	h.build()
	return h
}

// build wires the components from the current harness fields.
func (h *harness) build() {
	h.calc = NewCalculator(CalculatorDeps{
		Store:      h.store,
		Directory:  h.directory,
		Resolver:   compensation.NewResolver(compensation.NewMemoryStore(standardStructure())),
		Attendance: h.attendance,
		Leave:      stubLeave{},
		Incentives: h.incentives,
		Penalties:  stubEntries{},
	}, h.rt)
	h.batch = NewBatchProcessor(h.calc, h.store, h.store, BatchDefaults{}, h.rt)
	h.approvals = NewApprovalWorkflow(h.store, h.rt)
	h.transfers = NewTransferEngine(h.store, h.store, stubSealer{}, decimal.Zero, h.rt)
}

// seedRecord stores a record in the given status whose net equals net.
func (h *harness) seedRecord(t *testing.T, id, employeeID, period string, status Status, tier, net string) Payroll {
	t.Helper()
	p := NewDraft(id, employeeID, period, "Engineering", tier, testNow)
	p.Status = status
	p.Calculations.ProratedBase = decimal.RequireFromString(net)
	if status == StatusTransferred || status == StatusPaid {
		p.Transfer = &Transfer{Amount: p.Calculations.ProratedBase, ReferenceNumber: "BR-20250401-SEEDED", Status: TransferStatusCompleted}
	}
	created, err := h.store.Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

func (h *harness) mustGet(t *testing.T, id string) Payroll {
	t.Helper()
	p, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}
