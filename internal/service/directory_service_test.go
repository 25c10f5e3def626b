package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/upstream"
)

type memoryCacheRepo struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.ttls[key] = ttl
	return nil
}

type profileFetcherStub struct {
	profiles map[string]models.Profile
	err      error
	calls    []string
}

func (s *profileFetcherStub) GetJSON(ctx context.Context, path string, dest interface{}) error {
	s.calls = append(s.calls, path)
	if s.err != nil {
		return s.err
	}
	profile, ok := s.profiles[path]
	if !ok {
		return upstream.ErrNotFound
	}
	*(dest.(*models.Profile)) = profile
	return nil
}

func TestDirectoryServiceCachesProfiles(t *testing.T) {
	fetcher := &profileFetcherStub{profiles: map[string]models.Profile{
		"/api/v1/accounts/9": {ID: 9, Name: "Ms. Rahma"},
		"/api/v1/students/5": {Name: "Budi"},
	}}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewDirectoryService(fetcher, cache, 5*time.Minute, nil, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, "Ms. Rahma", svc.TeacherName(ctx, 9))
	assert.Equal(t, "Ms. Rahma", svc.TeacherName(ctx, 9))
	assert.Equal(t, []string{"/api/v1/accounts/9"}, fetcher.calls)
	assert.Equal(t, 5*time.Minute, cacheRepo.ttls["profile:teacher:9"])

	profile, err := svc.Lookup(ctx, ProfileStudent, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), profile.ID)
	assert.Equal(t, "Budi", profile.Name)

	delete(cacheRepo.entries, "profile:teacher:9")
	assert.Equal(t, "Ms. Rahma", svc.TeacherName(ctx, 9))
	assert.Len(t, fetcher.calls, 3)
}

func TestDirectoryServiceFallsBackToUnknown(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		svc := NewDirectoryService(&profileFetcherStub{}, nil, time.Minute, nil, zap.NewNop())
		assert.Equal(t, models.UnknownIdentity, svc.ParentName(ctx, 3))
	})

	t.Run("upstream down", func(t *testing.T) {
		fetcher := &profileFetcherStub{err: errors.New("connection refused")}
		svc := NewDirectoryService(fetcher, nil, time.Minute, NewMetricsService(), zap.NewNop())
		assert.Equal(t, models.UnknownIdentity, svc.StudentName(ctx, 5))
	})

	t.Run("no client configured", func(t *testing.T) {
		svc := NewDirectoryService(nil, nil, time.Minute, nil, zap.NewNop())
		assert.Equal(t, models.UnknownIdentity, svc.TeacherName(ctx, 9))
	})

	t.Run("unknown kind", func(t *testing.T) {
		svc := NewDirectoryService(&profileFetcherStub{}, nil, time.Minute, nil, zap.NewNop())
		_, err := svc.Lookup(ctx, "janitor", 1)
		assert.Error(t, err)
	})
}
