package users

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusops/campusops/internal/shared"
)

type memoryDirectoryRepo struct {
	departments map[int64]Department
	users       map[int64]User
	nextID      int64
}

func newMemoryDirectoryRepo() *memoryDirectoryRepo {
	return &memoryDirectoryRepo{
		departments: make(map[int64]Department),
		users:       make(map[int64]User),
	}
}

func (r *memoryDirectoryRepo) InsertDepartment(ctx context.Context, d Department) (Department, error) {
	for _, existing := range r.departments {
		if existing.Name == d.Name {
			return Department{}, fmt.Errorf("%w: department %s already exists", shared.ErrDuplicate, d.Name)
		}
	}
	r.nextID++
	d.ID = r.nextID
	d.CreatedAt = time.Now()
	r.departments[d.ID] = d
	return d, nil
}

func (r *memoryDirectoryRepo) GetDepartment(ctx context.Context, id int64) (Department, error) {
	d, ok := r.departments[id]
	if !ok {
		return Department{}, fmt.Errorf("%w: department %d", shared.ErrNotFound, id)
	}
	return d, nil
}

func (r *memoryDirectoryRepo) UpdateDepartment(ctx context.Context, d Department) error {
	if _, ok := r.departments[d.ID]; !ok {
		return fmt.Errorf("%w: department %d", shared.ErrNotFound, d.ID)
	}
	r.departments[d.ID] = d
	return nil
}

func (r *memoryDirectoryRepo) ListActiveDepartments(ctx context.Context) ([]Department, error) {
	var out []Department
	for _, d := range r.departments {
		if d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryDirectoryRepo) ListDepartmentsByCreator(ctx context.Context, creatorID int64) ([]Department, error) {
	var out []Department
	for _, d := range r.departments {
		if d.CreatedBy == creatorID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memoryDirectoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return u, nil
}

func (r *memoryDirectoryRepo) ListUsersByDepartments(ctx context.Context, departments []string) ([]User, error) {
	var out []User
	for _, u := range r.users {
		for _, name := range departments {
			if u.Department == name {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryDirectoryRepo) UpdateUser(ctx context.Context, u User) error {
	if _, ok := r.users[u.ID]; !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, u.ID)
	}
	r.users[u.ID] = u
	return nil
}

func (r *memoryDirectoryRepo) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	delete(r.users, id)
	return nil
}

type stubAudit struct{}

func (stubAudit) Record(ctx context.Context, log shared.AuditLog) error { return nil }

var (
	manager = shared.Principal{UserID: 1, Role: shared.RoleUser}
	other   = shared.Principal{UserID: 2, Role: shared.RoleUser}
)

func TestDepartmentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryDirectoryRepo()
	svc := NewService(repo, stubAudit{})

	d, err := svc.CreateDepartment(ctx, manager, "Physics", "Physics faculty")
	require.NoError(t, err)
	require.True(t, d.IsActive)

	_, err = svc.CreateDepartment(ctx, manager, "Physics", "dup")
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = svc.CreateDepartment(ctx, manager, "  ", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	// Non-creators cannot see or change the department.
	_, err = svc.UpdateDepartment(ctx, other, d.ID, UpdateDepartmentInput{})
	require.ErrorIs(t, err, shared.ErrNotFound)

	newName := "Applied Physics"
	updated, err := svc.UpdateDepartment(ctx, manager, d.ID, UpdateDepartmentInput{Name: &newName})
	require.NoError(t, err)
	require.Equal(t, "Applied Physics", updated.Name)

	require.NoError(t, svc.DeleteDepartment(ctx, manager, d.ID))

	active, err := svc.ListDepartments(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	mine, err := svc.ListMyDepartments(ctx, manager)
	require.NoError(t, err)
	require.Empty(t, mine)
}

func TestUserManagementScope(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryDirectoryRepo()
	svc := NewService(repo, stubAudit{})

	_, err := svc.CreateDepartment(ctx, manager, "Biology", "")
	require.NoError(t, err)
	_, err = svc.CreateDepartment(ctx, manager, "Chemistry", "")
	require.NoError(t, err)
	_, err = svc.CreateDepartment(ctx, other, "History", "")
	require.NoError(t, err)

	repo.users[50] = User{ID: 50, Name: "Ayaan", Email: "ayaan@uni.edu", Role: "user", Department: "Biology"}
	repo.users[51] = User{ID: 51, Name: "Hodan", Email: "hodan@uni.edu", Role: "user", Department: "History"}

	list, err := svc.ListUsers(ctx, manager)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Ayaan", list[0].Name)

	_, err = svc.GetUser(ctx, manager, 51)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Moving a user is limited to the caller's own departments.
	dest := "Chemistry"
	u, err := svc.UpdateUser(ctx, manager, 50, UpdateUserInput{Department: &dest})
	require.NoError(t, err)
	require.Equal(t, "Chemistry", u.Department)

	bad := "History"
	_, err = svc.UpdateUser(ctx, manager, 50, UpdateUserInput{Department: &bad})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.DeleteUser(ctx, manager, 51)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, svc.DeleteUser(ctx, manager, 50))
	_, err = svc.GetUser(ctx, manager, 50)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
