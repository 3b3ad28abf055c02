package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/models"
	appErrors "github.com/noah-isme/meal-photo-api/pkg/errors"
)

type mockUserRepo struct {
	byID    map[string]*models.User
	byPhone map[string]*models.User

	created []*models.User
	updated []*models.User
	deleted []string
	audits  []*models.AuditLog
}

func (m *mockUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.byID {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	if u, ok := m.byPhone[phone]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	m.created = append(m.created, user)
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	m.updated = append(m.updated, user)
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func TestUserServiceCreateWarden(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, nil, zap.NewNop())

	schoolID := "school-1"
	user, err := svc.Create(context.Background(), CreateUserRequest{
		Phone:    "9876543210",
		Name:     "Asha Rao",
		Role:     models.RoleWarden,
		SchoolID: &schoolID,
		Active:   true,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "secret123", user.PasswordHash)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.audits[0].Action)
}

func TestUserServiceCreateWardenRequiresSchool(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Phone:    "9876543210",
		Name:     "Asha Rao",
		Role:     models.RoleWarden,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsDuplicatePhone(t *testing.T) {
	repo := &mockUserRepo{byPhone: map[string]*models.User{
		"9876543210": {ID: "u1", Phone: "9876543210"},
	}}
	svc := NewUserService(repo, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Phone:    "9876543210",
		Name:     "Asha Rao",
		Role:     models.RoleOfficer,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsShortPhone(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Phone:    "12345",
		Name:     "Asha Rao",
		Role:     models.RoleOfficer,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateWardenKeepsSchoolInvariant(t *testing.T) {
	repo := &mockUserRepo{byID: map[string]*models.User{
		"u1": {ID: "u1", Phone: "9876543210", Name: "Asha Rao", Role: models.RoleOfficer, Active: true},
	}}
	svc := NewUserService(repo, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		Name: "Asha Rao",
		Role: models.RoleWarden,
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updated)
}

func TestUserServiceDeleteSoftDeletes(t *testing.T) {
	repo := &mockUserRepo{byID: map[string]*models.User{
		"u1": {ID: "u1", Active: true},
	}}
	svc := NewUserService(repo, nil, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "u1", "admin-1", models.LoginRequest{}))
	assert.Equal(t, []string{"u1"}, repo.deleted)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.audits[0].Action)
}

func TestUserServiceDeleteUnknownUser(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "missing", "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
