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

type mockRemarkPhotoRepo struct {
	photos   map[string]*models.Photo
	appended map[string][]models.Remark
}

func (m *mockRemarkPhotoRepo) FindByID(_ context.Context, id string) (*models.Photo, error) {
	if p, ok := m.photos[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRemarkPhotoRepo) AppendRemark(_ context.Context, photoID string, remark models.Remark) error {
	photo, ok := m.photos[photoID]
	if !ok {
		return sql.ErrNoRows
	}
	if m.appended == nil {
		m.appended = make(map[string][]models.Remark)
	}
	m.appended[photoID] = append(m.appended[photoID], remark)
	photo.Remarks = append(photo.Remarks, remark)
	return nil
}

func TestRemarkServiceAdd(t *testing.T) {
	repo := &mockRemarkPhotoRepo{photos: map[string]*models.Photo{
		"p1": {ID: "p1", SchoolID: "school-1", MealType: models.MealLunch},
	}}
	audits := &mockAuditRepo{}
	svc := NewRemarkService(repo, audits, nil, nil, zap.NewNop())

	photo, err := svc.Add(context.Background(), "p1", AddRemarkRequest{
		Text:   "portions look adequate",
		Status: models.RemarkStatusGood,
	}, "officer-1", models.LoginRequest{IP: "10.0.0.2"})
	require.NoError(t, err)
	require.Len(t, photo.Remarks, 1)
	assert.Equal(t, "officer-1", photo.Remarks[0].OfficerID)
	assert.False(t, photo.Remarks[0].CreatedAt.IsZero())

	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionRemarkAdd, audits.logs[0].Action)
}

func TestRemarkServiceAddUnknownPhoto(t *testing.T) {
	svc := NewRemarkService(&mockRemarkPhotoRepo{}, &mockAuditRepo{}, nil, nil, zap.NewNop())

	_, err := svc.Add(context.Background(), "missing", AddRemarkRequest{Text: "x", Status: models.RemarkStatusIssue}, "officer-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRemarkServiceAddValidatesStatus(t *testing.T) {
	svc := NewRemarkService(&mockRemarkPhotoRepo{}, &mockAuditRepo{}, nil, nil, zap.NewNop())

	_, err := svc.Add(context.Background(), "p1", AddRemarkRequest{Text: "x", Status: "great"}, "officer-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
