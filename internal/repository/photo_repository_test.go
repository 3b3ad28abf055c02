package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/meal-photo-api/internal/models"
)

func newPhotoRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func photoRowColumns() []string {
	return []string{"id", "school_id", "meal_type", "photo_url", "uploaded_by", "timestamp", "social_status", "social_post_id", "social_batch_key", "skip_reason", "remarks", "created_at"}
}

func TestPhotoRepositoryCreateDefaultsPendingStatus(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	mock.ExpectExec("INSERT INTO photos").
		WillReturnResult(sqlmock.NewResult(1, 1))

	photo := &models.Photo{
		SchoolID:   "school-1",
		MealType:   models.MealLunch,
		PhotoURL:   "https://cdn.example.com/p.jpg",
		UploadedBy: "warden-1",
	}
	require.NoError(t, repo.Create(context.Background(), photo))

	assert.NotEmpty(t, photo.ID)
	require.NotNil(t, photo.SocialStatus)
	assert.Equal(t, models.SocialPending, *photo.SocialStatus)
	assert.False(t, photo.Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryFindPendingOldestFirst(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(photoRowColumns()).
		AddRow("p1", "school-1", "lunch", "u1", "warden-1", now.Add(-9*time.Minute), "pending", nil, nil, nil, []byte(`[]`), now).
		AddRow("p2", "school-1", "lunch", "u2", "warden-1", now.Add(-2*time.Minute), nil, nil, nil, nil, []byte(`[]`), now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE school_id = $1 AND meal_type = $2 AND (social_status IS NULL OR social_status = 'pending')")).
		WithArgs("school-1", models.MealLunch).
		WillReturnRows(rows)

	photos, err := repo.FindPending(context.Background(), "school-1", models.MealLunch)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "p1", photos[0].ID)
	assert.True(t, photos[1].Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryMarkPostedReportsAffectedRows(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET social_status = 'posted', social_post_id = $2, social_batch_key = $3")).
		WithArgs(sqlmock.AnyArg(), "tweet-1", "tweet-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.MarkPosted(context.Background(), []string{"p1", "p2", "p3", "p4"}, "tweet-1", "tweet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryMarkPostedEmptyBatch(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	affected, err := repo.MarkPosted(context.Background(), nil, "tweet-1", "tweet-1")
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryMarkPostedOneAlreadySettled(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET social_status = 'posted', social_post_id = $2")).
		WithArgs("p1", "tweet-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	settled, err := repo.MarkPostedOne(context.Background(), "p1", "tweet-1")
	require.NoError(t, err)
	assert.False(t, settled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryMarkSkipped(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET social_status = 'skipped', skip_reason = $2")).
		WithArgs("p1", "social posting not configured").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSkipped(context.Background(), "p1", "social posting not configured"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryAppendRemark(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE photos SET remarks = COALESCE(remarks, '[]'::jsonb) || $2::jsonb WHERE id = $1")).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendRemark(context.Background(), "p1", models.Remark{
		OfficerID: "officer-1",
		Text:      "portions look adequate",
		Status:    models.RemarkStatusGood,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryAppendRemarkMissingPhoto(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE photos SET remarks")).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendRemark(context.Background(), "missing", models.Remark{Text: "x", Status: models.RemarkStatusIssue})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newPhotoRepoMock(t)
	defer cleanup()
	repo := NewPhotoRepository(db)

	now := time.Now().UTC()
	meal := models.MealBreakfast
	rows := sqlmock.NewRows(photoRowColumns()).
		AddRow("p1", "school-1", "breakfast", "u1", "warden-1", now, "posted", "tweet-1", "tweet-1", nil, []byte(`[]`), now)

	mock.ExpectQuery(regexp.QuoteMeta("school_id = $1 AND meal_type = $2 ORDER BY timestamp DESC LIMIT 20 OFFSET 0")).
		WithArgs("school-1", meal).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM photos WHERE 1=1 AND school_id = $1 AND meal_type = $2")).
		WithArgs("school-1", meal).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	photos, total, err := repo.List(context.Background(), models.PhotoFilter{SchoolID: "school-1", MealType: &meal})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, 1, total)
	require.NotNil(t, photos[0].SocialPostID)
	assert.Equal(t, "tweet-1", *photos[0].SocialPostID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
