package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/blob"
	"github.com/noah-isme/meal-photo-api/internal/models"
	"github.com/noah-isme/meal-photo-api/internal/portal"
	appErrors "github.com/noah-isme/meal-photo-api/pkg/errors"
)

type photoRepository interface {
	Create(ctx context.Context, photo *models.Photo) error
	FindByID(ctx context.Context, id string) (*models.Photo, error)
	List(ctx context.Context, filter models.PhotoFilter) ([]models.Photo, int, error)
}

type photoAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type portalNotifier interface {
	NotifyUpload(ctx context.Context, notice portal.UploadNotice) error
}

type uploadBatcher interface {
	ProcessUpload(ctx context.Context, photo *models.Photo)
}

// UploadPhotoRequest carries one multipart meal-photo upload.
type UploadPhotoRequest struct {
	SchoolID   string `validate:"required"`
	MealType   string `validate:"required"`
	UploadedBy string `validate:"required"`
	Filename   string
	File       io.Reader `validate:"required"`
	IP         string
	UserAgent  string
}

// PhotoService orchestrates the upload pipeline: store the image, persist the
// entity, mirror to the portal, then run the social batching pass. Only blob
// storage and entity creation can fail the upload; everything downstream is
// best effort.
type PhotoService struct {
	repo      photoRepository
	audits    photoAuditRepository
	blobs     blob.Store
	portal    portalNotifier
	social    uploadBatcher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPhotoService constructs a PhotoService.
func NewPhotoService(repo photoRepository, audits photoAuditRepository, blobs blob.Store, portalClient portalNotifier, social uploadBatcher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PhotoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PhotoService{
		repo:      repo,
		audits:    audits,
		blobs:     blobs,
		portal:    portalClient,
		social:    social,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Upload runs the full pipeline and returns the stored photo with whatever
// social disposition the batching pass settled on.
func (s *PhotoService) Upload(ctx context.Context, req UploadPhotoRequest) (*models.Photo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}

	mealType := models.MealType(req.MealType)
	if !mealType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown meal type %q", req.MealType))
	}

	uploaded, err := s.blobs.Upload(ctx, req.File, req.Filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
	}

	photo := &models.Photo{
		SchoolID:   req.SchoolID,
		MealType:   mealType,
		PhotoURL:   uploaded.URL,
		UploadedBy: req.UploadedBy,
		Timestamp:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, photo); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist photo")
	}

	if s.portal != nil {
		// Best effort: portal sync failures are logged by the client and
		// never affect the upload.
		_ = s.portal.NotifyUpload(ctx, portal.UploadNotice{
			PhotoID:    photo.ID,
			SchoolID:   photo.SchoolID,
			MealType:   string(photo.MealType),
			PhotoURL:   photo.PhotoURL,
			UploadedBy: photo.UploadedBy,
			Timestamp:  photo.Timestamp,
		})
	}

	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &req.UploadedBy,
		Action:     models.AuditActionPhotoUpload,
		Resource:   "photos",
		ResourceID: &photo.ID,
		NewValues:  []byte(fmt.Sprintf(`{"school_id":%q,"meal_type":%q}`, photo.SchoolID, photo.MealType)),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record photo upload audit log", zap.Error(err))
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "photos:*")
	}

	if s.social != nil {
		s.social.ProcessUpload(ctx, photo)
	}

	// Return the settled row so the caller sees the social disposition; fall
	// back to the in-memory entity when the re-read fails.
	if settled, err := s.repo.FindByID(ctx, photo.ID); err == nil {
		return settled, nil
	}
	return photo, nil
}

// GetByID returns a single photo.
func (s *PhotoService) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	photo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load photo")
	}
	return photo, nil
}

// PhotoPage is a gallery page with pagination metadata.
type PhotoPage struct {
	Photos     []models.Photo    `json:"photos"`
	Pagination models.Pagination `json:"pagination"`
}

// List returns a filtered gallery page, served from cache when possible.
// The second return value reports whether the page came from cache.
func (s *PhotoService) List(ctx context.Context, filter models.PhotoFilter) (*PhotoPage, bool, error) {
	key := galleryCacheKey(filter)

	if s.cache != nil {
		var cached PhotoPage
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, true, nil
		}
	}

	photos, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list photos")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	result := &PhotoPage{
		Photos: photos,
		Pagination: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: total,
		},
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, result, 0)
	}

	return result, false, nil
}

func galleryCacheKey(filter models.PhotoFilter) string {
	mealType := ""
	if filter.MealType != nil {
		mealType = string(*filter.MealType)
	}
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("photos:%s:%s:%s:%s:%s:%d:%d",
		filter.SchoolID, mealType, filter.UploadedBy, from, to, filter.Page, filter.PageSize)
}
