package academicyear

import "time"

// AcademicYear scopes budgets and emergency requests. At most one year is
// active at a time; activation swaps the flag atomically.
type AcademicYear struct {
	ID        int64
	Label     string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	CreatedAt time.Time
}
