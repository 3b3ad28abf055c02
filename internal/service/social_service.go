package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/models"
	"github.com/noah-isme/meal-photo-api/internal/social"
)

type socialPhotoRepository interface {
	FindPending(ctx context.Context, schoolID string, mealType models.MealType) ([]models.Photo, error)
	MarkPosted(ctx context.Context, ids []string, postID, batchKey string) (int64, error)
	MarkPostedOne(ctx context.Context, id, postID string) (bool, error)
	MarkSkipped(ctx context.Context, id, reason string) error
}

type socialUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type schoolIdentityResolver interface {
	Resolve(ctx context.Context, identifier string) (*models.School, error)
}

// SocialPoster publishes photos to the social platform. PostMany accepts at
// most social.MaxPhotosPerPost payloads per call.
type SocialPoster interface {
	Available() bool
	PostOne(ctx context.Context, payload social.Payload) (*social.Post, error)
	PostMany(ctx context.Context, payloads []social.Payload) ([]social.Post, error)
}

// SocialConfig tunes the batching decisions.
type SocialConfig struct {
	BatchSize             int
	BatchWindowMinutes    int
	SingleFallbackMinutes int
}

func (c SocialConfig) withDefaults() SocialConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = social.MaxPhotosPerPost
	}
	if c.BatchSize > social.MaxPhotosPerPost {
		c.BatchSize = social.MaxPhotosPerPost
	}
	if c.BatchWindowMinutes <= 0 {
		c.BatchWindowMinutes = 10
	}
	if c.SingleFallbackMinutes <= 0 {
		c.SingleFallbackMinutes = 5
	}
	return c
}

// maxFlushesPerInvocation bounds the batching loop so a pathological pool
// cannot hold a request open indefinitely.
const maxFlushesPerInvocation = 25

// SocialService decides the social-media disposition of uploaded meal photos.
// One invocation runs after each upload: it groups fresh pending photos into
// batch posts, flushes a lone stale photo once it has waited long enough, and
// otherwise leaves the pool for a later upload to retry. Nothing it does can
// fail the upload path; every error is logged and swallowed.
type SocialService struct {
	photos   socialPhotoRepository
	users    socialUserLookup
	resolver schoolIdentityResolver
	poster   SocialPoster
	metrics  *MetricsService
	logger   *zap.Logger
	config   SocialConfig

	now func() time.Time
}

// NewSocialService constructs a SocialService.
func NewSocialService(photos socialPhotoRepository, users socialUserLookup, resolver schoolIdentityResolver, poster SocialPoster, metrics *MetricsService, logger *zap.Logger, config SocialConfig) *SocialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocialService{
		photos:   photos,
		users:    users,
		resolver: resolver,
		poster:   poster,
		metrics:  metrics,
		logger:   logger,
		config:   config.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessUpload evaluates the pending pool the given photo belongs to. It
// never returns an error; outcomes are recorded on the photo rows and in logs.
func (s *SocialService) ProcessUpload(ctx context.Context, photo *models.Photo) {
	if photo == nil {
		return
	}

	log := s.logger.With(
		zap.String("photo_id", photo.ID),
		zap.String("school_id", photo.SchoolID),
		zap.String("meal_type", string(photo.MealType)),
	)

	if s.poster == nil || !s.poster.Available() {
		if err := s.photos.MarkSkipped(ctx, photo.ID, "social posting not configured"); err != nil {
			log.Warn("failed to record social skip", zap.Error(err))
		}
		s.metrics.RecordSocialSkip()
		log.Info("social posting skipped: poster unavailable")
		return
	}

	school, warden, skipReason, deferred := s.resolveIdentities(ctx, photo)
	if deferred {
		log.Warn("identity lookup failed, leaving photo pending")
		return
	}
	if skipReason != "" {
		if err := s.photos.MarkSkipped(ctx, photo.ID, skipReason); err != nil {
			log.Warn("failed to record social skip", zap.Error(err))
		}
		s.metrics.RecordSocialSkip()
		log.Info("social posting skipped", zap.String("reason", skipReason))
		return
	}

	s.flushPool(ctx, log, photo.SchoolID, photo.MealType, school, warden)
}

// resolveIdentities looks up the school and uploader needed for captions. A
// non-empty reason means the triggering photo should be skipped; deferred
// means a lookup errored, so the photo stays pending for a later retry
// instead of being settled on incomplete information.
func (s *SocialService) resolveIdentities(ctx context.Context, photo *models.Photo) (*models.School, *models.User, string, bool) {
	warden, err := s.users.FindByID(ctx, photo.UploadedBy)
	wardenErred := err != nil && !errors.Is(err, sql.ErrNoRows)
	if wardenErred {
		s.logger.Warn("user lookup failed", zap.String("user_id", photo.UploadedBy), zap.Error(err))
	}

	candidates := []string{photo.SchoolID}
	if warden != nil && warden.SchoolID != nil {
		candidates = append(candidates, *warden.SchoolID)
	}

	var tried []string
	var school *models.School
	seen := make(map[string]bool)
	resolveErred := false
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true
		tried = append(tried, candidate)
		found, err := s.resolver.Resolve(ctx, candidate)
		if err != nil {
			resolveErred = true
			s.logger.Warn("school resolution failed", zap.String("identifier", candidate), zap.Error(err))
			continue
		}
		if found != nil {
			school = found
			break
		}
	}

	// An errored lookup is not evidence the identity is missing. Skipped never
	// reverses, so only settle a skip when every lookup completed cleanly.
	if (school == nil && resolveErred) || (warden == nil && wardenErred) {
		return nil, nil, "", true
	}

	switch {
	case school == nil && warden == nil:
		return nil, nil, fmt.Sprintf("school not found (tried: %s); uploader %s not found", triedLabel(tried), photo.UploadedBy), false
	case school == nil:
		return nil, nil, fmt.Sprintf("school not found (tried: %s)", triedLabel(tried)), false
	case warden == nil:
		return nil, nil, fmt.Sprintf("uploader %s not found", photo.UploadedBy), false
	}

	return school, warden, "", false
}

func triedLabel(tried []string) string {
	if len(tried) == 0 {
		return "none"
	}
	return strings.Join(tried, ", ")
}

// flushPool drains ready batches from one school/meal pool and applies the
// single-flush fallback when the pool is too small to batch.
func (s *SocialService) flushPool(ctx context.Context, log *zap.Logger, schoolID string, mealType models.MealType, school *models.School, warden *models.User) {
	window := time.Duration(s.config.BatchWindowMinutes) * time.Minute
	fallbackAge := time.Duration(s.config.SingleFallbackMinutes) * time.Minute

	for i := 0; i < maxFlushesPerInvocation; i++ {
		pending, err := s.photos.FindPending(ctx, schoolID, mealType)
		if err != nil {
			log.Warn("failed to load pending photo pool", zap.Error(err))
			return
		}
		if len(pending) == 0 {
			return
		}

		now := s.now()
		var candidates []models.Photo
		for _, p := range pending {
			if now.Sub(p.Timestamp) <= window {
				candidates = append(candidates, p)
			}
		}

		if len(candidates) >= s.config.BatchSize {
			batch := candidates[:s.config.BatchSize]
			if !s.postBatch(ctx, log, batch, school, warden) {
				return
			}
			continue
		}

		// Not enough fresh photos to batch: flush the oldest pending photo
		// alone once it has waited past the fallback threshold, window or not.
		oldest := pending[0]
		if now.Sub(oldest.Timestamp) >= fallbackAge {
			s.postSingle(ctx, log, oldest, school, warden)
		}
		return
	}

	log.Warn("batching loop hit iteration cap, leaving remainder pending")
}

// postBatch publishes one multi-photo post and settles the batch. Returns
// false when the loop should stop (post failed, pool left pending).
func (s *SocialService) postBatch(ctx context.Context, log *zap.Logger, batch []models.Photo, school *models.School, warden *models.User) bool {
	payloads := make([]social.Payload, 0, len(batch))
	for _, p := range batch {
		payloads = append(payloads, s.payloadFor(p, school, warden))
	}

	posts, err := s.poster.PostMany(ctx, payloads)
	if err != nil || len(posts) == 0 {
		log.Warn("batch post failed, leaving photos pending", zap.Int("batch_size", len(batch)), zap.Error(err))
		return false
	}

	postID := posts[0].ID
	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		ids = append(ids, p.ID)
	}

	affected, err := s.photos.MarkPosted(ctx, ids, postID, postID)
	if err != nil {
		log.Warn("failed to settle posted batch", zap.String("post_id", postID), zap.Error(err))
		return false
	}
	if affected != int64(len(ids)) {
		log.Warn("batch partially settled by concurrent invocation",
			zap.String("post_id", postID),
			zap.Int64("affected", affected),
			zap.Int("expected", len(ids)))
	}

	s.metrics.RecordSocialPost("batch", len(batch))
	log.Info("posted photo batch", zap.String("post_id", postID), zap.Int("batch_size", len(batch)))
	return true
}

func (s *SocialService) postSingle(ctx context.Context, log *zap.Logger, photo models.Photo, school *models.School, warden *models.User) {
	post, err := s.poster.PostOne(ctx, s.payloadFor(photo, school, warden))
	if err != nil || post == nil {
		log.Warn("single flush failed, leaving photo pending", zap.String("stale_photo_id", photo.ID), zap.Error(err))
		return
	}

	settled, err := s.photos.MarkPostedOne(ctx, photo.ID, post.ID)
	if err != nil {
		log.Warn("failed to settle single post", zap.String("post_id", post.ID), zap.Error(err))
		return
	}
	if !settled {
		log.Warn("stale photo already settled by concurrent invocation", zap.String("stale_photo_id", photo.ID))
		return
	}

	s.metrics.RecordSocialPost("single", 1)
	log.Info("flushed stale photo as single post",
		zap.String("stale_photo_id", photo.ID),
		zap.String("post_id", post.ID))
}

func (s *SocialService) payloadFor(photo models.Photo, school *models.School, warden *models.User) social.Payload {
	return social.Payload{
		SchoolName: school.Name,
		MealType:   photo.MealType.Label(),
		PhotoURL:   photo.PhotoURL,
		WardenName: warden.DisplayName(),
		Timestamp:  photo.Timestamp,
	}
}
