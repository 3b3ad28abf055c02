package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/meal-photo-api/internal/models"
)

type mockSchoolLookupRepo struct {
	byCode map[string]*models.School
	byID   map[string]*models.School
	byName map[string]*models.School

	codeErr error
	idErr   error
	nameErr error

	codeCalls int
	idCalls   int
	nameCalls int
}

func (m *mockSchoolLookupRepo) FindByCode(_ context.Context, code string) (*models.School, error) {
	m.codeCalls++
	if m.codeErr != nil {
		return nil, m.codeErr
	}
	if s, ok := m.byCode[code]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSchoolLookupRepo) FindByID(_ context.Context, id string) (*models.School, error) {
	m.idCalls++
	if m.idErr != nil {
		return nil, m.idErr
	}
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSchoolLookupRepo) FindByName(_ context.Context, name string) (*models.School, error) {
	m.nameCalls++
	if m.nameErr != nil {
		return nil, m.nameErr
	}
	if s, ok := m.byName[name]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func TestSchoolResolverMatchesByCodeFirst(t *testing.T) {
	repo := &mockSchoolLookupRepo{
		byCode: map[string]*models.School{"29ABC123": {ID: "s1", Code: "29ABC123", Name: "GHS Mandya"}},
	}
	resolver := NewSchoolResolver(repo)

	school, err := resolver.Resolve(context.Background(), "29ABC123")
	require.NoError(t, err)
	require.NotNil(t, school)
	assert.Equal(t, "s1", school.ID)
	assert.Zero(t, repo.idCalls)
	assert.Zero(t, repo.nameCalls)
}

func TestSchoolResolverTriesInternalIDForUUIDs(t *testing.T) {
	repo := &mockSchoolLookupRepo{
		byID: map[string]*models.School{"4f6b0f9e-8f39-4a6b-9f5a-2c7d1e8a0b1c": {ID: "4f6b0f9e-8f39-4a6b-9f5a-2c7d1e8a0b1c", Name: "GHS Hassan"}},
	}
	resolver := NewSchoolResolver(repo)

	school, err := resolver.Resolve(context.Background(), "4f6b0f9e-8f39-4a6b-9f5a-2c7d1e8a0b1c")
	require.NoError(t, err)
	require.NotNil(t, school)
	assert.Equal(t, "GHS Hassan", school.Name)
	assert.Equal(t, 1, repo.codeCalls)
	assert.Zero(t, repo.nameCalls)
}

func TestSchoolResolverSkipsIDLookupForNonUUIDs(t *testing.T) {
	repo := &mockSchoolLookupRepo{
		byName: map[string]*models.School{"GHS Mandya": {ID: "s1", Name: "GHS Mandya"}},
	}
	resolver := NewSchoolResolver(repo)

	school, err := resolver.Resolve(context.Background(), "GHS Mandya")
	require.NoError(t, err)
	require.NotNil(t, school)
	assert.Zero(t, repo.idCalls)
	assert.Equal(t, 1, repo.nameCalls)
}

func TestSchoolResolverBlankIdentifier(t *testing.T) {
	repo := &mockSchoolLookupRepo{}
	resolver := NewSchoolResolver(repo)

	school, err := resolver.Resolve(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, school)
	assert.Zero(t, repo.codeCalls)
}

func TestSchoolResolverNoMatchIsNotAnError(t *testing.T) {
	repo := &mockSchoolLookupRepo{}
	resolver := NewSchoolResolver(repo)

	school, err := resolver.Resolve(context.Background(), "unknown-school")
	require.NoError(t, err)
	assert.Nil(t, school)
}

func TestSchoolResolverPropagatesStoreFailures(t *testing.T) {
	repo := &mockSchoolLookupRepo{codeErr: assert.AnError}
	resolver := NewSchoolResolver(repo)

	_, err := resolver.Resolve(context.Background(), "29ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
