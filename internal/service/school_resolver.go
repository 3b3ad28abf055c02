package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/meal-photo-api/internal/models"
)

type schoolLookupRepository interface {
	FindByCode(ctx context.Context, code string) (*models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindByName(ctx context.Context, name string) (*models.School, error)
}

// SchoolResolver maps loosely-specified school identifiers to school records.
// Uploads may carry the departmental school code, the internal row id, or the
// display name; lookups are tried in that order.
type SchoolResolver struct {
	repo schoolLookupRepository
}

// NewSchoolResolver constructs a SchoolResolver.
func NewSchoolResolver(repo schoolLookupRepository) *SchoolResolver {
	return &SchoolResolver{repo: repo}
}

// Resolve returns the first school matching the identifier by code, internal
// id, or exact name. A blank identifier or no match yields (nil, nil); only
// store failures produce an error.
func (r *SchoolResolver) Resolve(ctx context.Context, identifier string) (*models.School, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	school, err := r.repo.FindByCode(ctx, identifier)
	if err == nil {
		return school, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve school by code: %w", err)
	}

	if _, parseErr := uuid.Parse(identifier); parseErr == nil {
		school, err = r.repo.FindByID(ctx, identifier)
		if err == nil {
			return school, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolve school by id: %w", err)
		}
	}

	school, err = r.repo.FindByName(ctx, identifier)
	if err == nil {
		return school, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve school by name: %w", err)
	}

	return nil, nil
}
