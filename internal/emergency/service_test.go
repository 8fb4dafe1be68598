package emergency

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/shared"
)

type memoryEmergencyRepo struct {
	emergencies map[int64]Emergency
	media       map[int64]Media
	refs        map[string]bool
	nextID      int64
}

func newMemoryEmergencyRepo() *memoryEmergencyRepo {
	return &memoryEmergencyRepo{
		emergencies: make(map[int64]Emergency),
		media:       make(map[int64]Media),
		refs:        make(map[string]bool),
	}
}

func (r *memoryEmergencyRepo) Insert(ctx context.Context, e Emergency, media *Media) (Emergency, error) {
	if r.refs[e.RefID] {
		return Emergency{}, fmt.Errorf("%w: emergency reference %s", shared.ErrDuplicate, e.RefID)
	}
	r.nextID++
	e.ID = r.nextID
	e.CreatedAt = time.Now()
	r.refs[e.RefID] = true
	r.emergencies[e.ID] = e
	if media != nil {
		r.media[e.ID] = *media
	}
	return e, nil
}

func (r *memoryEmergencyRepo) Get(ctx context.Context, id int64) (Emergency, error) {
	e, ok := r.emergencies[id]
	if !ok {
		return Emergency{}, fmt.Errorf("%w: emergency %d", shared.ErrNotFound, id)
	}
	return e, nil
}

func (r *memoryEmergencyRepo) GetMedia(ctx context.Context, id int64) (Media, error) {
	m, ok := r.media[id]
	if !ok {
		return Media{}, fmt.Errorf("%w: media for emergency %d", shared.ErrNotFound, id)
	}
	return m, nil
}

func (r *memoryEmergencyRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	e, ok := r.emergencies[id]
	if !ok {
		return fmt.Errorf("%w: emergency %d", shared.ErrNotFound, id)
	}
	e.Status = status
	r.emergencies[id] = e
	return nil
}

func (r *memoryEmergencyRepo) ListByOwner(ctx context.Context, ownerID int64) ([]Emergency, error) {
	var out []Emergency
	for _, e := range r.emergencies {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryEmergencyRepo) ListAll(ctx context.Context) ([]Emergency, error) {
	out := make([]Emergency, 0, len(r.emergencies))
	for _, e := range r.emergencies {
		out = append(out, e)
	}
	return out, nil
}

type stubYears struct {
	active *academicyear.AcademicYear
}

func (s *stubYears) GetActive(ctx context.Context) (academicyear.AcademicYear, error) {
	if s.active == nil {
		return academicyear.AcademicYear{}, fmt.Errorf("%w: no active academic year", shared.ErrNotFound)
	}
	return *s.active, nil
}

type stubAudit struct {
	records []shared.AuditLog
}

func (s *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	s.records = append(s.records, log)
	return nil
}

var (
	owner = shared.Principal{UserID: 10, Role: shared.RoleUser}
	admin = shared.Principal{UserID: 99, Role: shared.RoleAdmin}
)

func newTestService() (*Service, *memoryEmergencyRepo, *stubYears) {
	repo := newMemoryEmergencyRepo()
	years := &stubYears{active: &academicyear.AcademicYear{ID: 7, Label: "2025/2026", IsActive: true}}
	return NewService(repo, years, &stubAudit{}, nil), repo, years
}

func TestCreateEmergency(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()

	e, err := svc.Create(ctx, owner, CreateInput{
		Title:       "Burst pipe in chemistry lab",
		Description: "Water damage to benches and supplies",
		Amount:      3200,
		Media:       &Media{Data: []byte("photo"), ContentType: "image/jpeg"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, e.Status)
	require.Equal(t, int64(7), e.AcademicYearID)
	require.True(t, e.HasMedia)
	require.Regexp(t, `^EMR-\d{4}-\d{3}$`, e.RefID)

	media, err := svc.GetMedia(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", media.ContentType)
	require.Equal(t, []byte("photo"), media.Data)

	_, ok := repo.media[e.ID]
	require.True(t, ok)
}

func TestCreateEmergencyValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, years := newTestService()

	_, err := svc.Create(ctx, owner, CreateInput{Title: " ", Description: "d", Amount: 10})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, owner, CreateInput{Title: "t", Description: "", Amount: 10})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, owner, CreateInput{Title: "t", Description: "d", Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	oversized := bytes.Repeat([]byte{0xFF}, MaxMediaBytes+1)
	_, err = svc.Create(ctx, owner, CreateInput{Title: "t", Description: "d", Amount: 10,
		Media: &Media{Data: oversized, ContentType: "image/png"}})
	require.ErrorIs(t, err, shared.ErrValidation)

	years.active = nil
	_, err = svc.Create(ctx, owner, CreateInput{Title: "t", Description: "d", Amount: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEmergencySetStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	e, err := svc.Create(ctx, owner, CreateInput{Title: "Broken window", Description: "Storm damage", Amount: 150})
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, admin, e.ID, StatusApproved)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, updated.Status)

	_, err = svc.SetStatus(ctx, owner, e.ID, StatusRejected)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.SetStatus(ctx, admin, e.ID, Status("partially_approved"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SetStatus(ctx, admin, 404, StatusApproved)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEmergencyVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	e, err := svc.Create(ctx, owner, CreateInput{Title: "Leaking roof", Description: "Library wing", Amount: 900})
	require.NoError(t, err)

	_, err = svc.Get(ctx, owner, e.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, admin, e.ID)
	require.NoError(t, err)

	stranger := shared.Principal{UserID: 55, Role: shared.RoleUser}
	_, err = svc.Get(ctx, stranger, e.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ListAll(ctx, stranger)
	require.ErrorIs(t, err, shared.ErrForbidden)
}
