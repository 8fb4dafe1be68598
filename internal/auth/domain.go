package auth

import "time"

// User represents an authenticated account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Department   string
	IsActive     bool
	CreatedAt    time.Time
}
