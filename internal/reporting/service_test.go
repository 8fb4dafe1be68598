package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/emergency"
	"github.com/campusops/campusops/internal/request"
	"github.com/campusops/campusops/internal/shared"
)

type stubReportRepo struct {
	year        *academicyear.AcademicYear
	budgets     []BudgetRecord
	requests    []RequestRecord
	emergencies []EmergencyRecord
	users       []ReportUser
}

func (s *stubReportRepo) ActiveYear(ctx context.Context) (academicyear.AcademicYear, error) {
	if s.year == nil {
		return academicyear.AcademicYear{}, fmt.Errorf("%w: no active academic year", shared.ErrNotFound)
	}
	return *s.year, nil
}

func (s *stubReportRepo) BudgetsForOwner(ctx context.Context, yearID, ownerID int64) ([]BudgetRecord, error) {
	var out []BudgetRecord
	for _, b := range s.budgets {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubReportRepo) BudgetsForYear(ctx context.Context, yearID int64, department string) ([]BudgetRecord, error) {
	var out []BudgetRecord
	for _, b := range s.budgets {
		if b.Department == "" {
			continue
		}
		if department != "" && b.Department != department {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *stubReportRepo) RequestsForBudgets(ctx context.Context, budgetIDs []int64) ([]RequestRecord, error) {
	wanted := make(map[int64]bool, len(budgetIDs))
	for _, id := range budgetIDs {
		wanted[id] = true
	}
	var out []RequestRecord
	for _, r := range s.requests {
		if wanted[r.BudgetID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubReportRepo) EmergenciesForOwner(ctx context.Context, yearID, ownerID int64) ([]EmergencyRecord, error) {
	return s.emergencies, nil
}

func (s *stubReportRepo) EmergenciesForYear(ctx context.Context, yearID int64, department string) ([]EmergencyRecord, error) {
	return s.emergencies, nil
}

func (s *stubReportRepo) UsersByDepartment(ctx context.Context, department string) ([]ReportUser, error) {
	if department == "" {
		return s.users, nil
	}
	var out []ReportUser
	for _, u := range s.users {
		if u.Department == department {
			out = append(out, u)
		}
	}
	return out, nil
}

var (
	user  = shared.Principal{UserID: 10, Role: shared.RoleUser}
	admin = shared.Principal{UserID: 99, Role: shared.RoleAdmin}
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func seedRepo() *stubReportRepo {
	return &stubReportRepo{
		year: &academicyear.AcademicYear{ID: 1, Label: "2025/2026", IsActive: true},
		budgets: []BudgetRecord{
			{
				ID: 1, OwnerID: 10, OwnerName: "Ayaan", Department: "Biology",
				TotalAmount: 1000, Status: budget.StatusPartiallyApproved,
				Items: []budget.Item{
					{ID: 11, Quantity: 10, Price: 60, Amount: 600, ApprovedQuantity: 5, Status: budget.ItemApproved},
					{ID: 12, Quantity: 4, Price: 100, Amount: 400, Status: budget.ItemPending},
				},
			},
			{
				ID: 2, OwnerID: 10, OwnerName: "Ayaan", Department: "Biology",
				TotalAmount: 500, Status: budget.StatusPending,
				Items: []budget.Item{
					{ID: 21, Quantity: 5, Price: 100, Amount: 500, Status: budget.ItemPending},
				},
			},
			{
				ID: 3, OwnerID: 20, OwnerName: "Hodan", Department: "Chemistry",
				TotalAmount: 800, Status: budget.StatusRejected,
				Items: []budget.Item{
					{ID: 31, Quantity: 8, Price: 100, Amount: 800, Status: budget.ItemRejected},
				},
			},
			// Dangling owner, must never surface in admin summaries.
			{
				ID: 4, OwnerID: 30, TotalAmount: 9999, Status: budget.StatusApproved,
				Items: []budget.Item{
					{ID: 41, Quantity: 1, Price: 9999, Amount: 9999, ApprovedQuantity: 1, Status: budget.ItemApproved},
				},
			},
		},
		requests: []RequestRecord{
			{ID: 1, BudgetID: 1, TotalAmount: 300, Status: request.StatusPending},
			{ID: 2, BudgetID: 3, TotalAmount: 200, Status: request.StatusApproved},
		},
		emergencies: []EmergencyRecord{
			{ID: 1, Amount: 150, Status: emergency.StatusPending},
			{ID: 2, Amount: 75, Status: emergency.StatusApproved},
		},
		users: []ReportUser{
			{ID: 10, Name: "Ayaan", Email: "ayaan@uni.edu", Department: "Biology"},
			{ID: 20, Name: "Hodan", Email: "hodan@uni.edu", Department: "Chemistry"},
		},
	}
}

func TestUserSummary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seedRepo(), nil, testLogger())

	summary, err := svc.UserSummary(ctx, user)
	require.NoError(t, err)
	require.Equal(t, "2025/2026", summary.AcademicYear)
	require.Equal(t, 2, summary.BudgetCount)
	require.InDelta(t, 1500.0, summary.TotalBudget, 0.001)

	// 5 approved units at price 60; the pending item and the pending
	// budget contribute nothing here.
	require.InDelta(t, 300.0, summary.ApprovedBudget, 0.001)

	// Pending item on the partially approved budget plus the whole
	// pending budget's pending item.
	require.InDelta(t, 900.0, summary.PendingBudget, 0.001)

	require.Equal(t, 1, summary.RequestCount)
	require.InDelta(t, 300.0, summary.TotalRequests, 0.001)
	require.Equal(t, 1, summary.BudgetsByStatus.PartiallyApproved)
	require.Equal(t, 1, summary.BudgetsByStatus.Pending)
	require.Equal(t, 1, summary.RequestsByStatus.Pending)
	require.Equal(t, 1, summary.EmergenciesByStatus.Approved)
	require.Equal(t, 1, summary.EmergenciesByStatus.Pending)
	require.InDelta(t, 225.0, summary.TotalEmergencies, 0.001)
}

func TestUserSummaryNoActiveYear(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo()
	repo.year = nil
	svc := NewService(repo, nil, testLogger())

	_, err := svc.UserSummary(ctx, user)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAdminSummary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seedRepo(), nil, testLogger())

	_, err := svc.AdminSummary(ctx, user, "")
	require.ErrorIs(t, err, shared.ErrForbidden)

	summary, err := svc.AdminSummary(ctx, admin, "all")
	require.NoError(t, err)

	// The dangling-owner budget is excluded everywhere.
	require.Equal(t, 3, summary.BudgetCount)
	require.InDelta(t, 2300.0, summary.TotalBudget, 0.001)
	require.Equal(t, 2, summary.UserCount)
	require.Equal(t, 2, summary.RequestCount)

	require.Len(t, summary.Departments, 2)
	require.Equal(t, "Biology", summary.Departments[0].Name)
	require.Equal(t, "Chemistry", summary.Departments[1].Name)

	bio := summary.Departments[0]
	require.Equal(t, 2, bio.BudgetCount)
	require.InDelta(t, 1500.0, bio.TotalBudget, 0.001)
	require.InDelta(t, 300.0, bio.ApprovedBudget, 0.001)
	require.InDelta(t, 900.0, bio.PendingBudget, 0.001)
	require.Len(t, bio.Users, 1)
}

func TestAdminSummaryDepartmentFilter(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seedRepo(), nil, testLogger())

	summary, err := svc.AdminSummary(ctx, admin, "Chemistry")
	require.NoError(t, err)
	require.Equal(t, 1, summary.BudgetCount)
	require.InDelta(t, 800.0, summary.TotalBudget, 0.001)
	require.Equal(t, 1, summary.BudgetsByStatus.Rejected)
	require.Equal(t, 1, summary.UserCount)
	require.Len(t, summary.Departments, 1)
	require.Equal(t, "Chemistry", summary.Departments[0].Name)

	// The rejected budget contributes neither approved nor pending money.
	require.Zero(t, summary.ApprovedBudget)
	require.Zero(t, summary.PendingBudget)
}
