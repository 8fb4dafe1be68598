package budget

import "time"

// Budget lifecycle statuses. The budget-level status is an aggregate
// derived from item approvals, except for explicit admin overrides.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusPartiallyApproved Status = "partially_approved"
)

// ItemStatus tracks the approval state of a single line item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// Budget is a departmental budget submission scoped to an academic year.
// TotalAmount is the requested total, fixed at creation, and does not
// change when items are later approved at different quantities.
type Budget struct {
	ID             int64
	RefID          string
	AcademicYearID int64
	OwnerID        int64
	Items          []Item
	TotalAmount    float64
	Status         Status
	CreatedAt      time.Time
}

// Item is a budget line item, owned exclusively by its budget.
// Amount = Quantity * Price, fixed at creation. ApprovedQuantity starts at
// zero and is set on admin approval; it becomes the consumable allowance
// for subsequent requests.
type Item struct {
	ID               int64
	BudgetID         int64
	Name             string
	Quantity         int64
	Price            float64
	Amount           float64
	ApprovedQuantity int64
	Status           ItemStatus
}

// ValidStatus reports whether s is a known budget status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPartiallyApproved:
		return true
	}
	return false
}

// deriveStatus recomputes the aggregate budget status from item states:
// approved when every item is approved, partially_approved when at least
// one but not all are, otherwise the current status is kept.
func deriveStatus(items []Item, current Status) Status {
	if len(items) == 0 {
		return current
	}
	approved := 0
	for _, item := range items {
		if item.Status == ItemApproved {
			approved++
		}
	}
	switch {
	case approved == len(items):
		return StatusApproved
	case approved > 0:
		return StatusPartiallyApproved
	default:
		return current
	}
}
