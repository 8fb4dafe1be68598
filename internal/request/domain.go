package request

import "time"

// Status values for a purchase request. Unlike budgets, the
// request-level status is set directly by admins and is never
// recomputed from item states.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusPartiallyApproved Status = "partially_approved"
)

// ItemStatus tracks one drawn line.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// Request draws quantities against approved budget items. Pending and
// approved requests both consume the budget item's allowance.
type Request struct {
	ID          int64
	RefID       string
	BudgetID    int64
	OwnerID     int64
	Items       []Item
	TotalAmount float64
	Status      Status
	CreatedAt   time.Time
}

// Item is one drawn line against a budget item. Amount is fixed at
// creation as Quantity * Price.
type Item struct {
	ID           int64
	RequestID    int64
	BudgetItemID int64
	Name         string
	Quantity     int64
	Price        float64
	Amount       float64
	Status       ItemStatus
}

// ValidStatus reports whether s is a known request status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPartiallyApproved:
		return true
	}
	return false
}

// ValidItemStatus reports whether s is a known request item status.
func ValidItemStatus(s ItemStatus) bool {
	switch s {
	case ItemPending, ItemApproved, ItemRejected:
		return true
	}
	return false
}
