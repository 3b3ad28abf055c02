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

type mockSchoolRepo struct {
	byCode  map[string]*models.School
	byID    map[string]*models.School
	created []*models.School
}

func (m *mockSchoolRepo) FindByCode(_ context.Context, code string) (*models.School, error) {
	if s, ok := m.byCode[code]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSchoolRepo) FindByID(_ context.Context, id string) (*models.School, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSchoolRepo) Create(_ context.Context, school *models.School) error {
	m.created = append(m.created, school)
	if m.byCode == nil {
		m.byCode = make(map[string]*models.School)
	}
	m.byCode[school.Code] = school
	return nil
}

func (m *mockSchoolRepo) List(_ context.Context) ([]models.School, error) {
	var out []models.School
	for _, s := range m.byCode {
		out = append(out, *s)
	}
	return out, nil
}

func TestSchoolServiceCreate(t *testing.T) {
	repo := &mockSchoolRepo{}
	audits := &mockAuditRepo{}
	svc := NewSchoolService(repo, audits, nil, zap.NewNop())

	school, err := svc.Create(context.Background(), CreateSchoolRequest{
		Code:     " 29ABC123 ",
		Name:     "GHS Mandya",
		District: "Mandya",
	}, "admin-1", models.LoginRequest{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, school.ID)
	assert.Equal(t, "29ABC123", school.Code)

	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionSchoolCreate, audits.logs[0].Action)
}

func TestSchoolServiceCreateRejectsDuplicateCode(t *testing.T) {
	repo := &mockSchoolRepo{byCode: map[string]*models.School{
		"29ABC123": {ID: "s1", Code: "29ABC123"},
	}}
	svc := NewSchoolService(repo, &mockAuditRepo{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSchoolRequest{Code: "29ABC123", Name: "Other"}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSchoolServiceCreateValidatesPayload(t *testing.T) {
	svc := NewSchoolService(&mockSchoolRepo{}, &mockAuditRepo{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSchoolRequest{Code: "29ABC123"}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSchoolServiceGetNotFound(t *testing.T) {
	svc := NewSchoolService(&mockSchoolRepo{}, &mockAuditRepo{}, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
