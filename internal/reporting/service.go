package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/emergency"
	"github.com/campusops/campusops/internal/request"
	"github.com/campusops/campusops/internal/shared"
)

// BudgetRecord is a budget joined with its owner for aggregation.
type BudgetRecord struct {
	ID          int64
	OwnerID     int64
	OwnerName   string
	Department  string
	TotalAmount float64
	Status      budget.Status
	Items       []budget.Item
}

// RequestRecord carries the request fields the rollups need.
type RequestRecord struct {
	ID          int64
	BudgetID    int64
	TotalAmount float64
	Status      request.Status
}

// EmergencyRecord carries the emergency fields the rollups need.
type EmergencyRecord struct {
	ID     int64
	Amount float64
	Status emergency.Status
}

// RepositoryPort describes the read queries behind the summaries.
type RepositoryPort interface {
	ActiveYear(ctx context.Context) (academicyear.AcademicYear, error)
	BudgetsForOwner(ctx context.Context, yearID, ownerID int64) ([]BudgetRecord, error)
	BudgetsForYear(ctx context.Context, yearID int64, department string) ([]BudgetRecord, error)
	RequestsForBudgets(ctx context.Context, budgetIDs []int64) ([]RequestRecord, error)
	EmergenciesForOwner(ctx context.Context, yearID, ownerID int64) ([]EmergencyRecord, error)
	EmergenciesForYear(ctx context.Context, yearID int64, department string) ([]EmergencyRecord, error)
	UsersByDepartment(ctx context.Context, department string) ([]ReportUser, error)
}

// CachePort stores computed summaries.
type CachePort interface {
	GetSummary(ctx context.Context, key string, out any) (bool, error)
	SetSummary(ctx context.Context, key string, value any) error
}

// Service computes rollups over the active academic year. Independent
// reads fan out concurrently; results from admin summaries are cached
// until the cache version is bumped.
type Service struct {
	repo   RepositoryPort
	cache  CachePort
	logger *slog.Logger
}

// NewService constructs the reporting service. cache may be nil.
func NewService(repo RepositoryPort, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// UserSummary rolls up the caller's budgets, requests, and emergencies
// for the active academic year.
func (s *Service) UserSummary(ctx context.Context, principal shared.Principal) (Summary, error) {
	year, err := s.repo.ActiveYear(ctx)
	if err != nil {
		return Summary{}, err
	}

	key := fmt.Sprintf("user:%d", principal.UserID)
	var cached Summary
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	var (
		budgets     []BudgetRecord
		requests    []RequestRecord
		emergencies []EmergencyRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		budgets, err = s.repo.BudgetsForOwner(gctx, year.ID, principal.UserID)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(budgets))
		for _, b := range budgets {
			ids = append(ids, b.ID)
		}
		requests, err = s.repo.RequestsForBudgets(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		emergencies, err = s.repo.EmergenciesForOwner(gctx, year.ID, principal.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := buildSummary(year.Label, budgets, requests, emergencies)
	s.cacheSet(ctx, key, summary)
	return summary, nil
}

// AdminSummary rolls up every department, or just the named one.
// Admin only.
func (s *Service) AdminSummary(ctx context.Context, principal shared.Principal, department string) (AdminSummary, error) {
	if !principal.IsAdmin() {
		return AdminSummary{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	if department == "all" {
		department = ""
	}

	year, err := s.repo.ActiveYear(ctx)
	if err != nil {
		return AdminSummary{}, err
	}

	key := "admin:" + department
	var cached AdminSummary
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	var (
		budgets     []BudgetRecord
		requests    []RequestRecord
		emergencies []EmergencyRecord
		users       []ReportUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		budgets, err = s.repo.BudgetsForYear(gctx, year.ID, department)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(budgets))
		for _, b := range budgets {
			ids = append(ids, b.ID)
		}
		requests, err = s.repo.RequestsForBudgets(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		emergencies, err = s.repo.EmergenciesForYear(gctx, year.ID, department)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.repo.UsersByDepartment(gctx, department)
		return err
	})
	if err := g.Wait(); err != nil {
		return AdminSummary{}, err
	}

	out := AdminSummary{
		Summary:     buildSummary(year.Label, budgets, requests, emergencies),
		UserCount:   len(users),
		Users:       users,
		Departments: buildDepartments(budgets, users),
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

func buildSummary(yearLabel string, budgets []BudgetRecord, requests []RequestRecord, emergencies []EmergencyRecord) Summary {
	summary := Summary{
		AcademicYear:   yearLabel,
		BudgetCount:    len(budgets),
		RequestCount:   len(requests),
		EmergencyCount: len(emergencies),
	}
	for _, b := range budgets {
		summary.TotalBudget += b.TotalAmount
		summary.ApprovedBudget += approvedAmount(b)
		summary.PendingBudget += pendingAmount(b)
		switch b.Status {
		case budget.StatusApproved:
			summary.BudgetsByStatus.Approved++
		case budget.StatusPartiallyApproved:
			summary.BudgetsByStatus.PartiallyApproved++
		case budget.StatusPending:
			summary.BudgetsByStatus.Pending++
		case budget.StatusRejected:
			summary.BudgetsByStatus.Rejected++
		}
	}
	for _, r := range requests {
		summary.TotalRequests += r.TotalAmount
		switch r.Status {
		case request.StatusApproved:
			summary.RequestsByStatus.Approved++
		case request.StatusPartiallyApproved:
			summary.RequestsByStatus.PartiallyApproved++
		case request.StatusPending:
			summary.RequestsByStatus.Pending++
		case request.StatusRejected:
			summary.RequestsByStatus.Rejected++
		}
	}
	for _, e := range emergencies {
		summary.TotalEmergencies += e.Amount
		switch e.Status {
		case emergency.StatusApproved:
			summary.EmergenciesByStatus.Approved++
		case emergency.StatusPending:
			summary.EmergenciesByStatus.Pending++
		case emergency.StatusRejected:
			summary.EmergenciesByStatus.Rejected++
		}
	}
	return summary
}

// approvedAmount prices approved items at their approved quantities,
// counted only once the budget itself has been (partially) approved.
func approvedAmount(b BudgetRecord) float64 {
	if b.Status != budget.StatusApproved && b.Status != budget.StatusPartiallyApproved {
		return 0
	}
	var sum float64
	for _, item := range b.Items {
		if item.Status == budget.ItemApproved {
			sum += item.Price * float64(item.ApprovedQuantity)
		}
	}
	return sum
}

// pendingAmount sums the requested amounts of still-pending items on
// budgets awaiting a full decision.
func pendingAmount(b BudgetRecord) float64 {
	if b.Status != budget.StatusPending && b.Status != budget.StatusPartiallyApproved {
		return 0
	}
	var sum float64
	for _, item := range b.Items {
		if item.Status == budget.ItemPending {
			sum += item.Amount
		}
	}
	return sum
}

func buildDepartments(budgets []BudgetRecord, users []ReportUser) []DepartmentBreakdown {
	byName := make(map[string]*DepartmentBreakdown)
	for _, b := range budgets {
		dept, ok := byName[b.Department]
		if !ok {
			dept = &DepartmentBreakdown{Name: b.Department}
			for _, u := range users {
				if u.Department == b.Department {
					dept.Users = append(dept.Users, u)
				}
			}
			byName[b.Department] = dept
		}
		dept.TotalBudget += b.TotalAmount
		dept.BudgetCount++
		switch b.Status {
		case budget.StatusApproved, budget.StatusPartiallyApproved:
			for _, item := range b.Items {
				switch item.Status {
				case budget.ItemApproved:
					dept.ApprovedBudget += item.Price * float64(item.ApprovedQuantity)
				case budget.ItemPending:
					dept.PendingBudget += item.Amount
				}
			}
		case budget.StatusPending:
			dept.PendingBudget += b.TotalAmount
		}
	}

	out := make([]DepartmentBreakdown, 0, len(byName))
	for _, dept := range byName {
		out = append(out, *dept)
	}
	coll := collate.New(language.English, collate.IgnoreCase)
	sort.Slice(out, func(i, j int) bool {
		return coll.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

func (s *Service) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.GetSummary(ctx, key, out)
	if err != nil {
		s.logger.Warn("report cache read", slog.Any("error", err), slog.String("key", key))
		return false
	}
	return ok
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSummary(ctx, key, value); err != nil {
		s.logger.Warn("report cache write", slog.Any("error", err), slog.String("key", key))
	}
}
