package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/models"
	appErrors "github.com/noah-isme/meal-photo-api/pkg/errors"
)

type remarkPhotoRepository interface {
	FindByID(ctx context.Context, id string) (*models.Photo, error)
	AppendRemark(ctx context.Context, photoID string, remark models.Remark) error
}

// AddRemarkRequest represents payload for an officer remark on a photo.
type AddRemarkRequest struct {
	Text   string `json:"text" validate:"required,max=500"`
	Status string `json:"status" validate:"required,oneof=good issue"`
}

// RemarkService lets officers annotate uploaded meal photos.
type RemarkService struct {
	repo      remarkPhotoRepository
	audits    photoAuditRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRemarkService creates an instance of RemarkService.
func NewRemarkService(repo remarkPhotoRepository, audits photoAuditRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RemarkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RemarkService{repo: repo, audits: audits, cache: cache, validator: validate, logger: logger}
}

// Add appends a remark to the photo and returns the updated record.
func (s *RemarkService) Add(ctx context.Context, photoID string, req AddRemarkRequest, officerID string, meta models.LoginRequest) (*models.Photo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remark payload")
	}

	remark := models.Remark{
		OfficerID: officerID,
		Text:      req.Text,
		Status:    req.Status,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.AppendRemark(ctx, photoID, remark); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append remark")
	}

	newPayload, _ := json.Marshal(remark)
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &officerID,
		Action:     models.AuditActionRemarkAdd,
		Resource:   "photos",
		ResourceID: &photoID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record remark audit log", zap.Error(err))
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "photos:*")
	}

	photo, err := s.repo.FindByID(ctx, photoID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload photo")
	}
	return photo, nil
}
