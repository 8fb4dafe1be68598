package users

import "time"

// Department groups users for reporting. Departments are owned by the
// user who created them; management of a department's members is scoped
// to that owner.
type Department struct {
	ID          int64
	Name        string
	Description string
	CreatedBy   int64
	IsActive    bool
	CreatedAt   time.Time
}

// User is the directory view of an account, without credentials.
type User struct {
	ID         int64
	Name       string
	Email      string
	Role       string
	Department string
	CreatedAt  time.Time
}
