package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/models"
	appErrors "github.com/noah-isme/meal-photo-api/pkg/errors"
)

type schoolRepository interface {
	FindByCode(ctx context.Context, code string) (*models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	List(ctx context.Context) ([]models.School, error)
}

// CreateSchoolRequest represents payload for registering a school.
type CreateSchoolRequest struct {
	Code     string `json:"school_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	District string `json:"district"`
}

// SchoolService handles school registry workflows.
type SchoolService struct {
	repo      schoolRepository
	audits    photoAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchoolService creates an instance of SchoolService.
func NewSchoolService(repo schoolRepository, audits photoAuditRepository, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SchoolService{repo: repo, audits: audits, validator: validate, logger: logger}
}

// List returns all registered schools ordered by name.
func (s *SchoolService) List(ctx context.Context) ([]models.School, error) {
	schools, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	return schools, nil
}

// Get returns a school by internal id.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create registers a new school; the departmental code must be unique.
func (s *SchoolService) Create(ctx context.Context, req CreateSchoolRequest, actorID string, meta models.LoginRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create school payload")
	}

	code := strings.TrimSpace(req.Code)
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school code already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check school code uniqueness")
	}

	school := &models.School{
		ID:       uuid.NewString(),
		Code:     code,
		Name:     strings.TrimSpace(req.Name),
		District: strings.TrimSpace(req.District),
	}

	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": school.ID, "school_id": school.Code, "name": school.Name})
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionSchoolCreate,
		Resource:   "schools",
		ResourceID: &school.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record school create audit log", zap.Error(err))
	}

	return school, nil
}
