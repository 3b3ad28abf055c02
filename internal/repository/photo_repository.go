package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/meal-photo-api/internal/models"
)

const photoColumns = `id, school_id, meal_type, photo_url, uploaded_by, timestamp, social_status, social_post_id, social_batch_key, skip_reason, remarks, created_at`

// PhotoRepository provides database access for meal photo records.
type PhotoRepository struct {
	db *sqlx.DB
}

// NewPhotoRepository creates a new instance of PhotoRepository.
func NewPhotoRepository(db *sqlx.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create inserts a new photo row with pending social status.
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if photo.Timestamp.IsZero() {
		photo.Timestamp = now
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = now
	}
	if photo.SocialStatus == nil {
		pending := models.SocialPending
		photo.SocialStatus = &pending
	}
	if photo.Remarks == nil {
		photo.Remarks = models.RemarkList{}
	}

	const query = `INSERT INTO photos (id, school_id, meal_type, photo_url, uploaded_by, timestamp, social_status, social_post_id, social_batch_key, skip_reason, remarks, created_at)
VALUES (:id, :school_id, :meal_type, :photo_url, :uploaded_by, :timestamp, :social_status, :social_post_id, :social_batch_key, :skip_reason, :remarks, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, photo); err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

// FindByID returns a photo by identifier.
func (r *PhotoRepository) FindByID(ctx context.Context, id string) (*models.Photo, error) {
	query := fmt.Sprintf(`SELECT %s FROM photos WHERE id = $1 LIMIT 1`, photoColumns)
	var photo models.Photo
	if err := r.db.GetContext(ctx, &photo, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find photo by id: %w", err)
	}
	return &photo, nil
}

// FindPending returns the pending social pool for one school and meal type,
// oldest first. Rows with NULL status are treated as pending (legacy rows).
func (r *PhotoRepository) FindPending(ctx context.Context, schoolID string, mealType models.MealType) ([]models.Photo, error) {
	query := fmt.Sprintf(`SELECT %s FROM photos
WHERE school_id = $1 AND meal_type = $2 AND (social_status IS NULL OR social_status = 'pending')
ORDER BY timestamp ASC`, photoColumns)
	var photos []models.Photo
	if err := r.db.SelectContext(ctx, &photos, query, schoolID, mealType); err != nil {
		return nil, fmt.Errorf("find pending photos: %w", err)
	}
	return photos, nil
}

// MarkPosted settles a batch of photos as posted. The update is conditional on
// the rows still being pending, so a concurrent invocation that already
// claimed part of the batch only settles the remainder; the affected row
// count is returned for observability.
func (r *PhotoRepository) MarkPosted(ctx context.Context, ids []string, postID, batchKey string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE photos
SET social_status = 'posted', social_post_id = $2, social_batch_key = $3
WHERE id = ANY($1) AND (social_status IS NULL OR social_status = 'pending')`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids), postID, batchKey)
	if err != nil {
		return 0, fmt.Errorf("mark photos posted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark photos posted rows: %w", err)
	}
	return affected, nil
}

// MarkPostedOne settles a single photo as posted; returns false when the row
// was already settled by another invocation.
func (r *PhotoRepository) MarkPostedOne(ctx context.Context, id, postID string) (bool, error) {
	const query = `UPDATE photos
SET social_status = 'posted', social_post_id = $2
WHERE id = $1 AND (social_status IS NULL OR social_status = 'pending')`
	res, err := r.db.ExecContext(ctx, query, id, postID)
	if err != nil {
		return false, fmt.Errorf("mark photo posted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark photo posted rows: %w", err)
	}
	return affected > 0, nil
}

// MarkSkipped settles a photo as skipped with a diagnostic reason. Already
// settled rows are left untouched.
func (r *PhotoRepository) MarkSkipped(ctx context.Context, id, reason string) error {
	const query = `UPDATE photos
SET social_status = 'skipped', skip_reason = $2
WHERE id = $1 AND (social_status IS NULL OR social_status = 'pending')`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("mark photo skipped: %w", err)
	}
	return nil
}

// AppendRemark appends an officer remark to the photo's JSONB remark array.
func (r *PhotoRepository) AppendRemark(ctx context.Context, photoID string, remark models.Remark) error {
	payload, err := models.RemarkList{remark}.Value()
	if err != nil {
		return err
	}
	const query = `UPDATE photos SET remarks = COALESCE(remarks, '[]'::jsonb) || $2::jsonb WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, photoID, payload)
	if err != nil {
		return fmt.Errorf("append remark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append remark rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns photos matching the filter with total count, newest first.
func (r *PhotoRepository) List(ctx context.Context, filter models.PhotoFilter) ([]models.Photo, int, error) {
	baseQuery := `FROM photos WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.MealType != nil {
		conditions = append(conditions, fmt.Sprintf("meal_type = $%d", len(args)+1))
		args = append(args, *filter.MealType)
	}
	if filter.UploadedBy != "" {
		conditions = append(conditions, fmt.Sprintf("uploaded_by = $%d", len(args)+1))
		args = append(args, filter.UploadedBy)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY timestamp DESC LIMIT %d OFFSET %d", photoColumns, baseQuery, pageSize, offset)

	var photos []models.Photo
	if err := r.db.SelectContext(ctx, &photos, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list photos: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count photos: %w", err)
	}

	return photos, total, nil
}
