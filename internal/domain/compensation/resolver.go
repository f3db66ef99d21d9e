package compensation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"payrollengine/internal/domain/core"
	"payrollengine/internal/platform/apperr"
)

var ErrNoStructure = errors.New("no applicable compensation structure")

// Source lists every stored structure; the resolver filters in memory.
type Source interface {
	ListStructures(ctx context.Context) ([]Structure, error)
}

// Resolver picks the structure for an employee. It never writes.
//
// Among structures active at the requested instant whose scope matches, the
// winner is the highest Priority, then the most specific scope
// (custom > role > department > all), then the most recently created, then
// the lowest ID. With no active match the most recently created all-scope
// structure is used even outside its window.
type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

func (r *Resolver) Resolve(ctx context.Context, emp core.Employee, at time.Time) (Structure, error) {
	const op = "compensation.Resolve"
	all, err := r.source.ListStructures(ctx)
	if err != nil {
		return Structure{}, apperr.External(op, err)
	}

	var candidates []Structure
	var fallback []Structure
	for _, s := range all {
		if s.Applicability.Scope == ScopeAll {
			fallback = append(fallback, s)
		}
		if s.ActiveAt(at) && AppliesTo(s.Applicability, emp) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool { return precedes(candidates[i], candidates[j]) })
		return candidates[0], nil
	}
	if len(fallback) > 0 {
		sort.SliceStable(fallback, func(i, j int) bool { return newer(fallback[i], fallback[j]) })
		return fallback[0], nil
	}
	return Structure{}, apperr.Wrap(apperr.KindNotFound, op, ErrNoStructure)
}

// AppliesTo evaluates the scope predicate against the employee.
func AppliesTo(a Applicability, emp core.Employee) bool {
	if a.MinSalary != nil && emp.BaseSalary.LessThan(*a.MinSalary) {
		return false
	}
	if a.MaxSalary != nil && emp.BaseSalary.GreaterThan(*a.MaxSalary) {
		return false
	}
	switch a.Scope {
	case ScopeAll:
		return true
	case ScopeDepartment:
		return containsFold(a.Departments, emp.Department)
	case ScopeRole:
		return containsFold(a.Roles, emp.Role)
	case ScopeCustom:
		if len(a.EmployeeIDs) > 0 && !contains(a.EmployeeIDs, emp.ID) {
			return false
		}
		if len(a.Roles) > 0 && !containsFold(a.Roles, emp.Role) {
			return false
		}
		if len(a.Departments) > 0 && !containsFold(a.Departments, emp.Department) {
			return false
		}
		return true
	default:
		return false
	}
}

func specificity(s Scope) int {
	switch s {
	case ScopeCustom:
		return 3
	case ScopeRole:
		return 2
	case ScopeDepartment:
		return 1
	default:
		return 0
	}
}

func precedes(a, b Structure) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	sa, sb := specificity(a.Applicability.Scope), specificity(b.Applicability.Scope)
	if sa != sb {
		return sa > sb
	}
	return newer(a, b)
}

func newer(a, b Structure) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
