package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/upstream"
)

// Directory lookup kinds.
const (
	ProfileTeacher = "teacher"
	ProfileStudent = "student"
	ProfileParent  = "parent"
)

var profilePaths = map[string]string{
	ProfileTeacher: "/api/v1/accounts/%d",
	ProfileParent:  "/api/v1/accounts/%d",
	ProfileStudent: "/api/v1/students/%d",
}

type profileFetcher interface {
	GetJSON(ctx context.Context, path string, dest interface{}) error
}

type profileCache interface {
	Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(context.Context) error) (bool, error)
}

// DirectoryService resolves teacher, student and parent identities from the sibling
// identity service, caching profiles and degrading to a placeholder on failure.
type DirectoryService struct {
	client  profileFetcher
	cache   profileCache
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
	flights singleflight.Group
}

// NewDirectoryService constructs the directory service. cache may be nil.
func NewDirectoryService(client profileFetcher, cache profileCache, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{client: client, cache: cache, ttl: ttl, metrics: metrics, logger: logger}
}

// Lookup fetches a profile of the given kind.
func (s *DirectoryService) Lookup(ctx context.Context, kind string, id int64) (*models.Profile, error) {
	pathFormat, ok := profilePaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown profile kind %q", kind)
	}
	key := fmt.Sprintf("profile:%s:%d", kind, id)

	// Concurrent lookups of one profile share a single cache read and upstream call.
	v, err, _ := s.flights.Do(key, func() (interface{}, error) {
		var profile models.Profile
		fetch := func(ctx context.Context) error {
			if s.client == nil {
				return errors.New("identity service client is not configured")
			}
			if err := s.client.GetJSON(ctx, fmt.Sprintf(pathFormat, id), &profile); err != nil {
				return err
			}
			if profile.ID == 0 {
				profile.ID = id
			}
			return nil
		}
		if s.cache == nil {
			err := fetch(ctx)
			return profile, err
		}
		_, err := s.cache.Remember(ctx, key, s.ttl, &profile, fetch)
		return profile, err
	})
	if err != nil {
		return nil, err
	}
	profile := v.(models.Profile)
	return &profile, nil
}

// TeacherName returns the teacher's display name or the placeholder identity.
func (s *DirectoryService) TeacherName(ctx context.Context, id int64) string {
	return s.name(ctx, ProfileTeacher, id)
}

// StudentName returns the student's display name or the placeholder identity.
func (s *DirectoryService) StudentName(ctx context.Context, id int64) string {
	return s.name(ctx, ProfileStudent, id)
}

// ParentName returns the parent's display name or the placeholder identity.
func (s *DirectoryService) ParentName(ctx context.Context, id int64) string {
	return s.name(ctx, ProfileParent, id)
}

func (s *DirectoryService) name(ctx context.Context, kind string, id int64) string {
	profile, err := s.Lookup(ctx, kind, id)
	if err != nil || profile.Name == "" {
		if err != nil && !errors.Is(err, upstream.ErrNotFound) {
			s.logger.Warn("directory lookup degraded", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		}
		s.metrics.RecordUpstreamFallback(kind)
		return models.UnknownIdentity
	}
	return profile.Name
}
