package payroll

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store, RunStore and TransferLedger in process.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]Payroll
	byKey     map[string]string
	runs      map[string]BatchRun
	transfers map[string]TransferBatch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]Payroll),
		byKey:     make(map[string]string),
		runs:      make(map[string]BatchRun),
		transfers: make(map[string]TransferBatch),
	}
}

func employeePeriodKey(employeeID, period string) string {
	return employeeID + "|" + period
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[id]
	if !ok {
		return Payroll{}, ErrRecordNotFound
	}
	return Clone(p), nil
}

func (m *MemoryStore) GetByEmployeePeriod(ctx context.Context, employeeID, period string) (Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[employeePeriodKey(employeeID, period)]
	if !ok {
		return Payroll{}, ErrRecordNotFound
	}
	return Clone(m.records[id]), nil
}

func (m *MemoryStore) Create(ctx context.Context, p Payroll) (Payroll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := employeePeriodKey(p.EmployeeID, p.Period)
	if _, exists := m.byKey[key]; exists {
		return Payroll{}, ErrDuplicatePeriod
	}
	if _, exists := m.records[p.ID]; exists {
		return Payroll{}, ErrDuplicatePeriod
	}
	p = Derive(Clone(p))
	p.Version = 1
	m.records[p.ID] = p
	m.byKey[key] = p.ID
	return Clone(p), nil
}

func (m *MemoryStore) Update(ctx context.Context, p Payroll) (Payroll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[p.ID]
	if !ok {
		return Payroll{}, ErrRecordNotFound
	}
	if current.Version != p.Version {
		return Payroll{}, ErrVersionConflict
	}
	if current.IsLocked {
		return Payroll{}, ErrLocked
	}
	p = Derive(Clone(p))
	p.Version = current.Version + 1
	m.records[p.ID] = p
	return Clone(p), nil
}

// ListDrafts orders by employee id then period, matching the Postgres store.
func (m *MemoryStore) ListDrafts(ctx context.Context, filters BatchFilters, limit int) ([]Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Payroll
	for _, p := range m.records {
		if p.Status == StatusDraft && matchesFilters(p, filters) {
			out = append(out, Clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilters(p Payroll, f BatchFilters) bool {
	if len(f.EmployeeIDs) > 0 && !containsString(f.EmployeeIDs, p.EmployeeID) {
		return false
	}
	if len(f.Departments) > 0 && !containsString(f.Departments, p.Department) {
		return false
	}
	if f.FromPeriod != "" && p.Period < f.FromPeriod {
		return false
	}
	if f.ToPeriod != "" && p.Period > f.ToPeriod {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (m *MemoryStore) StartRun(ctx context.Context, run BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) FinishRun(ctx context.Context, run BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// Run returns a recorded batch run.
func (m *MemoryStore) Run(id string) (BatchRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	return run, ok
}

func (m *MemoryStore) Reserve(ctx context.Context, b TransferBatch) (TransferBatch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.transfers[b.IdempotencyKey]; ok {
		return existing, true, nil
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	m.transfers[b.IdempotencyKey] = b
	return b, false, nil
}

func (m *MemoryStore) Complete(ctx context.Context, key string, result TransferResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.transfers[key]
	if !ok {
		return ErrRecordNotFound
	}
	b.Result = &result
	m.transfers[key] = b
	return nil
}
