package emergency

import "time"

// Status values for an emergency funding request. Emergencies have no
// partial approval, the whole request is decided at once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// MaxMediaBytes caps an attached supporting document.
const MaxMediaBytes = 5 << 20

// Emergency is an out-of-cycle funding request bound to the academic
// year that was active when it was filed.
type Emergency struct {
	ID             int64
	RefID          string
	Title          string
	Description    string
	Amount         float64
	OwnerID        int64
	AcademicYearID int64
	HasMedia       bool
	Status         Status
	CreatedAt      time.Time
}

// Media is an attached supporting document.
type Media struct {
	Data        []byte
	ContentType string
}

// ValidStatus reports whether s is a known emergency status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}
