package leave

import (
	"errors"
	"time"
)

// Window is one approved leave request as stored, before clipping.
type Window struct {
	StartDate time.Time
	EndDate   time.Time
	StartHalf bool
	EndHalf   bool
	Paid      bool
}

// CalculateDays returns inclusive day count between start and end.
func CalculateDays(start, end time.Time) (float64, error) {
	if end.Before(start) {
		return 0, errors.New("end date before start date")
	}
	return float64(int(end.Sub(start).Hours()/24+0.5)) + 1, nil
}

// CalculateRequestDays returns inclusive leave day count with optional half-day start/end boundaries.
func CalculateRequestDays(start, end time.Time, startHalf, endHalf bool) (float64, error) {
	days, err := CalculateDays(start, end)
	if err != nil {
		return 0, err
	}
	if start.Equal(end) && startHalf && endHalf {
		return 0, errors.New("invalid half-day range")
	}
	if startHalf {
		days -= 0.5
	}
	if endHalf {
		days -= 0.5
	}
	if days <= 0 {
		return 0, errors.New("invalid half-day range")
	}
	return days, nil
}

// DaysWithin counts the part of w that falls inside [from, to]. A half-day flag
// only applies when its boundary is inside the range.
func DaysWithin(w Window, from, to time.Time) (float64, error) {
	start, end := w.StartDate, w.EndDate
	startHalf, endHalf := w.StartHalf, w.EndHalf
	if start.Before(from) {
		start, startHalf = from, false
	}
	if end.After(to) {
		end, endHalf = to, false
	}
	if end.Before(start) {
		return 0, nil
	}
	return CalculateRequestDays(start, end, startHalf, endHalf)
}

// Summarize splits windows into paid and unpaid day totals inside [from, to].
// Windows with an invalid half-day range are ignored.
func Summarize(windows []Window, from, to time.Time) Snapshot {
	var paid, unpaid float64
	for _, w := range windows {
		days, err := DaysWithin(w, from, to)
		if err != nil {
			continue
		}
		if w.Paid {
			paid += days
		} else {
			unpaid += days
		}
	}
	return newSnapshot(paid, unpaid)
}
