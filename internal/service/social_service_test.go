package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/internal/models"
	"github.com/noah-isme/meal-photo-api/internal/social"
)

type mockSocialPhotoRepo struct {
	pending []models.Photo

	findErr       error
	markPostedErr error

	findCalls     int
	postedBatches [][]string
	postedSingles []string
	postIDs       []string
	batchKeys     []string
	skipped       map[string]string
}

func (m *mockSocialPhotoRepo) FindPending(_ context.Context, schoolID string, mealType models.MealType) ([]models.Photo, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.Photo
	for _, p := range m.pending {
		if p.SchoolID == schoolID && p.MealType == mealType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockSocialPhotoRepo) MarkPosted(_ context.Context, ids []string, postID, batchKey string) (int64, error) {
	if m.markPostedErr != nil {
		return 0, m.markPostedErr
	}
	m.postedBatches = append(m.postedBatches, ids)
	m.postIDs = append(m.postIDs, postID)
	m.batchKeys = append(m.batchKeys, batchKey)
	m.remove(ids)
	return int64(len(ids)), nil
}

func (m *mockSocialPhotoRepo) MarkPostedOne(_ context.Context, id, postID string) (bool, error) {
	m.postedSingles = append(m.postedSingles, id)
	m.postIDs = append(m.postIDs, postID)
	m.remove([]string{id})
	return true, nil
}

func (m *mockSocialPhotoRepo) MarkSkipped(_ context.Context, id, reason string) error {
	if m.skipped == nil {
		m.skipped = make(map[string]string)
	}
	m.skipped[id] = reason
	m.remove([]string{id})
	return nil
}

func (m *mockSocialPhotoRepo) remove(ids []string) {
	kept := m.pending[:0]
	for _, p := range m.pending {
		settled := false
		for _, id := range ids {
			if p.ID == id {
				settled = true
				break
			}
		}
		if !settled {
			kept = append(kept, p)
		}
	}
	m.pending = kept
}

type mockUserLookup struct {
	users map[string]*models.User
	err   error
}

func (m *mockUserLookup) FindByID(_ context.Context, id string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

type stubSchoolResolver struct {
	schools map[string]*models.School
	err     error
	tried   []string
}

func (s *stubSchoolResolver) Resolve(_ context.Context, identifier string) (*models.School, error) {
	s.tried = append(s.tried, identifier)
	if s.err != nil {
		return nil, s.err
	}
	return s.schools[identifier], nil
}

type mockPoster struct {
	available   bool
	postOneErr  error
	postManyErr error

	singles [][]social.Payload
	batches [][]social.Payload
	nextID  int
}

func (m *mockPoster) Available() bool { return m.available }

func (m *mockPoster) PostOne(_ context.Context, payload social.Payload) (*social.Post, error) {
	if m.postOneErr != nil {
		return nil, m.postOneErr
	}
	m.singles = append(m.singles, []social.Payload{payload})
	m.nextID++
	return &social.Post{ID: fmt.Sprintf("tweet-%d", m.nextID)}, nil
}

func (m *mockPoster) PostMany(_ context.Context, payloads []social.Payload) ([]social.Post, error) {
	if m.postManyErr != nil {
		return nil, m.postManyErr
	}
	m.batches = append(m.batches, payloads)
	m.nextID++
	return []social.Post{{ID: fmt.Sprintf("tweet-%d", m.nextID)}}, nil
}

func socialFixtures() (*mockUserLookup, *stubSchoolResolver) {
	schoolID := "school-1"
	users := &mockUserLookup{users: map[string]*models.User{
		"warden-1": {ID: "warden-1", Name: "Asha Rao", Role: models.RoleWarden, SchoolID: &schoolID},
	}}
	resolver := &stubSchoolResolver{schools: map[string]*models.School{
		"school-1": {ID: "school-1", Code: "29ABC123", Name: "GHS Mandya"},
	}}
	return users, resolver
}

func pendingPhoto(id string, age time.Duration, at time.Time) models.Photo {
	return models.Photo{
		ID:         id,
		SchoolID:   "school-1",
		MealType:   models.MealLunch,
		PhotoURL:   "https://cdn.example.com/" + id + ".jpg",
		UploadedBy: "warden-1",
		Timestamp:  at.Add(-age),
	}
}

func newSocialServiceForTest(repo *mockSocialPhotoRepo, users *mockUserLookup, resolver *stubSchoolResolver, poster *mockPoster, at time.Time) *SocialService {
	svc := NewSocialService(repo, users, resolver, poster, nil, zap.NewNop(), SocialConfig{
		BatchSize:             4,
		BatchWindowMinutes:    10,
		SingleFallbackMinutes: 5,
	})
	svc.now = func() time.Time { return at }
	return svc
}

func TestSocialServiceBatchesFullPool(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 8*time.Minute, now),
		pendingPhoto("p2", 6*time.Minute, now),
		pendingPhoto("p3", 3*time.Minute, now),
		pendingPhoto("p4", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[3]
	svc.ProcessUpload(context.Background(), &trigger)

	require.Len(t, poster.batches, 1)
	assert.Len(t, poster.batches[0], 4)
	require.Len(t, repo.postedBatches, 1)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, repo.postedBatches[0])
	assert.Equal(t, repo.postIDs[0], repo.batchKeys[0])
	assert.Empty(t, repo.pending)
	assert.Empty(t, poster.singles)
}

func TestSocialServiceDrainsMultipleBatches(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{}
	for i := 0; i < 8; i++ {
		repo.pending = append(repo.pending, pendingPhoto(fmt.Sprintf("p%d", i+1), time.Duration(8-i)*time.Minute, now))
	}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[7]
	svc.ProcessUpload(context.Background(), &trigger)

	require.Len(t, poster.batches, 2)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, repo.postedBatches[0])
	assert.Equal(t, []string{"p5", "p6", "p7", "p8"}, repo.postedBatches[1])
	assert.NotEqual(t, repo.batchKeys[0], repo.batchKeys[1])
	assert.Empty(t, repo.pending)
}

func TestSocialServiceIgnoresPhotosOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	// Two stale photos plus three fresh ones: the fresh set is below the
	// batch size, so the oldest stale photo flushes alone.
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("old1", 25*time.Minute, now),
		pendingPhoto("old2", 15*time.Minute, now),
		pendingPhoto("p1", 4*time.Minute, now),
		pendingPhoto("p2", 2*time.Minute, now),
		pendingPhoto("p3", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[4]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, poster.batches)
	require.Len(t, repo.postedSingles, 1)
	assert.Equal(t, "old1", repo.postedSingles[0])
	assert.Len(t, repo.pending, 4)
}

func TestSocialServiceLeavesSmallFreshPoolPending(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 4*time.Minute, now),
		pendingPhoto("p2", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[1]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, poster.batches)
	assert.Empty(t, poster.singles)
	assert.Len(t, repo.pending, 2)
}

func TestSocialServiceSingleFlushAtFallbackAge(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 5*time.Minute, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	require.Len(t, poster.singles, 1)
	assert.Equal(t, "GHS Mandya", poster.singles[0][0].SchoolName)
	assert.Equal(t, "Asha Rao", poster.singles[0][0].WardenName)
	assert.Equal(t, []string{"p1"}, repo.postedSingles)
	assert.Empty(t, repo.pending)
}

func TestSocialServiceSkipsWhenPosterUnavailable(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 0, now),
	}}
	poster := &mockPoster{available: false}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Equal(t, "social posting not configured", repo.skipped["p1"])
	assert.Zero(t, repo.findCalls)
	assert.Empty(t, poster.batches)
	assert.Empty(t, poster.singles)
}

func TestSocialServiceSkipsWhenSchoolUnresolvable(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, _ := socialFixtures()
	resolver := &stubSchoolResolver{schools: map[string]*models.School{}}
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	require.Contains(t, repo.skipped, "p1")
	assert.Contains(t, repo.skipped["p1"], "school not found")
	assert.Contains(t, repo.skipped["p1"], "school-1")
	assert.Empty(t, poster.batches)
}

func TestSocialServiceSkipsWhenUploaderUnknown(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	_, resolver := socialFixtures()
	users := &mockUserLookup{users: map[string]*models.User{}}
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	require.Contains(t, repo.skipped, "p1")
	assert.Contains(t, repo.skipped["p1"], "uploader warden-1 not found")
}

func TestSocialServiceLeavesPhotoPendingOnResolverError(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, _ := socialFixtures()
	resolver := &stubSchoolResolver{err: assert.AnError}
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	// A store failure is not "school not found": the photo must survive
	// untouched so a later upload can retry the pool.
	assert.Empty(t, repo.skipped)
	assert.Zero(t, repo.findCalls)
	assert.Len(t, repo.pending, 1)
	assert.Empty(t, poster.batches)
	assert.Empty(t, poster.singles)
}

func TestSocialServiceLeavesPhotoPendingOnUserLookupError(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	_, resolver := socialFixtures()
	users := &mockUserLookup{err: assert.AnError}
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 7*time.Minute, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, repo.skipped)
	assert.Len(t, repo.pending, 1)
	assert.Empty(t, poster.singles)
}

func TestSocialServiceSkipReasonDedupesIdentifiers(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	// Warden's home school matches the photo's school identifier, so only
	// one resolution attempt should happen and the reason names it once.
	users, _ := socialFixtures()
	resolver := &stubSchoolResolver{schools: map[string]*models.School{}}
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 0, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Equal(t, []string{"school-1"}, resolver.tried)
	assert.Equal(t, "school not found (tried: school-1)", repo.skipped["p1"])
}

func TestSocialServiceSkipReasonWithoutIdentifiers(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users := &mockUserLookup{users: map[string]*models.User{
		"warden-1": {ID: "warden-1", Name: "Asha Rao", Role: models.RoleWarden},
	}}
	resolver := &stubSchoolResolver{schools: map[string]*models.School{}}
	repo := &mockSocialPhotoRepo{}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := pendingPhoto("p1", 0, now)
	trigger.SchoolID = "   "
	repo.pending = []models.Photo{trigger}
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, resolver.tried)
	assert.Equal(t, "school not found (tried: none)", repo.skipped["p1"])
}

func TestSocialServiceFallsBackToWardenSchool(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	homeSchool := "home-school"
	users := &mockUserLookup{users: map[string]*models.User{
		"warden-1": {ID: "warden-1", Name: "Asha Rao", Role: models.RoleWarden, SchoolID: &homeSchool},
	}}
	resolver := &stubSchoolResolver{schools: map[string]*models.School{
		"home-school": {ID: "home-school", Name: "GHS Hassan"},
	}}
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 6*time.Minute, now),
	}}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Equal(t, []string{"school-1", "home-school"}, resolver.tried)
	require.Len(t, poster.singles, 1)
	assert.Equal(t, "GHS Hassan", poster.singles[0][0].SchoolName)
}

func TestSocialServiceFailedBatchLeavesPhotosPending(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 8*time.Minute, now),
		pendingPhoto("p2", 6*time.Minute, now),
		pendingPhoto("p3", 3*time.Minute, now),
		pendingPhoto("p4", 0, now),
	}}
	poster := &mockPoster{available: true, postManyErr: assert.AnError}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[3]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, repo.postedBatches)
	assert.Empty(t, repo.skipped)
	assert.Len(t, repo.pending, 4)
	assert.Equal(t, 1, repo.findCalls)
}

func TestSocialServiceFailedSingleLeavesPhotoPending(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{pending: []models.Photo{
		pendingPhoto("p1", 7*time.Minute, now),
	}}
	poster := &mockPoster{available: true, postOneErr: assert.AnError}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := repo.pending[0]
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, repo.postedSingles)
	assert.Len(t, repo.pending, 1)
}

func TestSocialServiceSwallowsPoolLoadErrors(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	users, resolver := socialFixtures()
	repo := &mockSocialPhotoRepo{findErr: assert.AnError}
	poster := &mockPoster{available: true}
	svc := newSocialServiceForTest(repo, users, resolver, poster, now)

	trigger := pendingPhoto("p1", 0, now)
	svc.ProcessUpload(context.Background(), &trigger)

	assert.Empty(t, poster.batches)
	assert.Empty(t, poster.singles)
}

func TestSocialConfigDefaultsAndCap(t *testing.T) {
	cfg := SocialConfig{}.withDefaults()
	assert.Equal(t, social.MaxPhotosPerPost, cfg.BatchSize)
	assert.Equal(t, 10, cfg.BatchWindowMinutes)
	assert.Equal(t, 5, cfg.SingleFallbackMinutes)

	oversized := SocialConfig{BatchSize: 9}.withDefaults()
	assert.Equal(t, social.MaxPhotosPerPost, oversized.BatchSize)
}
