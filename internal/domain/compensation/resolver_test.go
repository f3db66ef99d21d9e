package compensation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrollengine/internal/domain/core"
	"payrollengine/internal/platform/apperr"
)

var jan2025 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func structure(id string, scope Scope, created time.Time) Structure {
	return Structure{
		ID:            id,
		Name:          id,
		EffectiveFrom: jan2025,
		Applicability: Applicability{Scope: scope},
		CreatedAt:     created,
	}
}

func engineer() core.Employee {
	return core.Employee{ID: "e-1", BaseSalary: decimal.NewFromInt(5000), Department: "Engineering", Role: "developer", Tier: "standard"}
}

func at(month time.Month) time.Time {
	return time.Date(2025, month, 15, 0, 0, 0, 0, time.UTC)
}

func TestResolvePrefersMoreSpecificScope(t *testing.T) {
	all := structure("all", ScopeAll, jan2025.AddDate(0, 2, 0))
	dept := structure("dept", ScopeDepartment, jan2025)
	dept.Applicability.Departments = []string{"engineering"}
	role := structure("role", ScopeRole, jan2025)
	role.Applicability.Roles = []string{"developer"}

	r := NewResolver(NewMemoryStore(all, dept, role))
	got, err := r.Resolve(context.Background(), engineer(), at(3))
	require.NoError(t, err)
	assert.Equal(t, "role", got.ID)
}

func TestResolvePriorityBeatsSpecificity(t *testing.T) {
	custom := structure("custom", ScopeCustom, jan2025)
	custom.Applicability.EmployeeIDs = []string{"e-1"}
	all := structure("all", ScopeAll, jan2025)
	all.Priority = 10

	r := NewResolver(NewMemoryStore(custom, all))
	got, err := r.Resolve(context.Background(), engineer(), at(3))
	require.NoError(t, err)
	assert.Equal(t, "all", got.ID)
}

func TestResolveNewestWinsWithinSameScope(t *testing.T) {
	older := structure("older", ScopeAll, jan2025)
	newer := structure("newer", ScopeAll, jan2025.AddDate(0, 1, 0))

	r := NewResolver(NewMemoryStore(older, newer))
	got, err := r.Resolve(context.Background(), engineer(), at(3))
	require.NoError(t, err)
	assert.Equal(t, "newer", got.ID)
}

func TestResolveIgnoresInactiveStructures(t *testing.T) {
	expired := structure("expired", ScopeRole, jan2025)
	expired.Applicability.Roles = []string{"developer"}
	end := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	expired.EffectiveTo = &end
	current := structure("current", ScopeAll, jan2025)

	r := NewResolver(NewMemoryStore(expired, current))
	got, err := r.Resolve(context.Background(), engineer(), at(2))
	require.NoError(t, err)
	assert.Equal(t, "expired", got.ID)

	got, err = r.Resolve(context.Background(), engineer(), at(3))
	require.NoError(t, err)
	assert.Equal(t, "current", got.ID)
}

func TestResolveFallsBackToAllScopeOutsideWindow(t *testing.T) {
	future := structure("future", ScopeAll, jan2025)
	future.EffectiveFrom = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sales := structure("sales", ScopeDepartment, jan2025)
	sales.Applicability.Departments = []string{"Sales"}

	r := NewResolver(NewMemoryStore(future, sales))
	got, err := r.Resolve(context.Background(), engineer(), at(3))
	require.NoError(t, err)
	assert.Equal(t, "future", got.ID)
}

func TestResolveNotFound(t *testing.T) {
	sales := structure("sales", ScopeDepartment, jan2025)
	sales.Applicability.Departments = []string{"Sales"}

	r := NewResolver(NewMemoryStore(sales))
	_, err := r.Resolve(context.Background(), engineer(), at(3))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrNoStructure)
}

type failingSource struct{}

func (failingSource) ListStructures(context.Context) ([]Structure, error) {
	return nil, errors.New("connection refused")
}

func TestResolveSourceFailureIsExternal(t *testing.T) {
	_, err := NewResolver(failingSource{}).Resolve(context.Background(), engineer(), at(3))
	assert.Equal(t, apperr.KindExternalDependency, apperr.KindOf(err))
}

func TestAppliesToCustomScope(t *testing.T) {
	min := decimal.NewFromInt(4000)
	max := decimal.NewFromInt(6000)
	a := Applicability{Scope: ScopeCustom, Roles: []string{"developer", "lead"}, MinSalary: &min, MaxSalary: &max}

	assert.True(t, AppliesTo(a, engineer()))

	rich := engineer()
	rich.BaseSalary = decimal.NewFromInt(9000)
	assert.False(t, AppliesTo(a, rich))

	other := engineer()
	other.Role = "designer"
	assert.False(t, AppliesTo(a, other))

	byID := Applicability{Scope: ScopeCustom, EmployeeIDs: []string{"e-2"}}
	assert.False(t, AppliesTo(byID, engineer()))
}
