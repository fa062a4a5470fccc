// Package contract derives the active/inactive classification of an employee
// contract. Nothing here is stored; every call evaluates against "today".
package contract

import (
	"math"
	"strings"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ReasonEndOfContract is applied when a contract lapses without an explicit reason.
const ReasonEndOfContract = "EOC"

// Classify returns Active iff reason is unset and endDate is today or later.
// A zero endDate is treated as lapsed.
func Classify(reason *string, endDate, today time.Time) Status {
	if HasReason(reason) {
		return StatusInactive
	}
	if endDate.IsZero() || dateOnly(endDate).Before(dateOnly(today)) {
		return StatusInactive
	}
	return StatusActive
}

// DaysRemaining is ceil((endDate - today) / 24h). Negative values are days overdue.
func DaysRemaining(endDate, today time.Time) int {
	diff := dateOnly(endDate).Sub(dateOnly(today))
	return int(math.Ceil(diff.Hours() / 24))
}

// Lapsed reports whether a contract ending on endDate has expired by today.
func Lapsed(endDate, today time.Time) bool {
	return !endDate.IsZero() && dateOnly(endDate).Before(dateOnly(today))
}

func HasReason(reason *string) bool {
	return reason != nil && strings.TrimSpace(*reason) != ""
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
