package reporting

// StatusBuckets counts records per lifecycle status. Emergencies never
// reach partially_approved so their bucket stays zero there.
type StatusBuckets struct {
	Approved          int `json:"approved"`
	PartiallyApproved int `json:"partiallyApproved,omitempty"`
	Pending           int `json:"pending"`
	Rejected          int `json:"rejected"`
}

// Summary is the per-user rollup for the active academic year.
// ApprovedBudget values price items at their approved quantities;
// TotalBudget keeps the originally requested amounts.
type Summary struct {
	AcademicYear        string        `json:"academicYear"`
	TotalBudget         float64       `json:"totalBudget"`
	ApprovedBudget      float64       `json:"approvedBudget"`
	PendingBudget       float64       `json:"pendingBudget"`
	TotalRequests       float64       `json:"totalRequests"`
	TotalEmergencies    float64       `json:"totalEmergencies"`
	BudgetCount         int           `json:"budgetCount"`
	RequestCount        int           `json:"requestCount"`
	EmergencyCount      int           `json:"emergencyCount"`
	BudgetsByStatus     StatusBuckets `json:"budgetsByStatus"`
	RequestsByStatus    StatusBuckets `json:"requestsByStatus"`
	EmergenciesByStatus StatusBuckets `json:"emergenciesByStatus"`
}

// ReportUser identifies an account inside an admin summary.
type ReportUser struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// DepartmentBreakdown aggregates one department's budgets.
type DepartmentBreakdown struct {
	Name           string       `json:"name"`
	TotalBudget    float64      `json:"totalBudget"`
	ApprovedBudget float64      `json:"approvedBudget"`
	PendingBudget  float64      `json:"pendingBudget"`
	BudgetCount    int          `json:"budgetCount"`
	Users          []ReportUser `json:"users"`
}

// AdminSummary is the institution-wide rollup, optionally filtered to
// one department. Budgets whose owner no longer resolves to a user with
// a department are excluded.
type AdminSummary struct {
	Summary
	UserCount   int                   `json:"userCount"`
	Users       []ReportUser          `json:"users"`
	Departments []DepartmentBreakdown `json:"departments"`
}
