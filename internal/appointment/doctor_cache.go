package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/pkg/logging"
)

// jsonCache is the subset of redisclient.Cache used here.
type jsonCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedDoctors keeps doctor profiles in Redis for ttl. Cache failures fall
// through to the wrapped directory.
type CachedDoctors struct {
	next   DoctorDirectory
	cache  jsonCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDoctors(next DoctorDirectory, cache *redisclient.Cache, ttl time.Duration, logger *zap.Logger) *CachedDoctors {
	return &CachedDoctors{next: next, cache: cache, ttl: ttl, logger: logging.OrNop(logger)}
}

// DoctorCachePrefix is the Redis key prefix shared by every process that
// caches doctor profiles.
const DoctorCachePrefix = "scheduling:doctor:"

func profileKey(id uuid.UUID) string { return "profile:" + id.String() }
func userKey(id uuid.UUID) string    { return "user:" + id.String() }

func (c *CachedDoctors) GetDoctorByProfileID(ctx context.Context, profileID uuid.UUID) (*Doctor, error) {
	return c.lookup(ctx, profileKey(profileID), func() (*Doctor, error) {
		return c.next.GetDoctorByProfileID(ctx, profileID)
	})
}

func (c *CachedDoctors) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return c.lookup(ctx, userKey(userID), func() (*Doctor, error) {
		return c.next.GetDoctorByUserID(ctx, userID)
	})
}

func (c *CachedDoctors) lookup(ctx context.Context, key string, load func() (*Doctor, error)) (*Doctor, error) {
	var d Doctor
	err := c.cache.Get(ctx, key, &d)
	if err == nil {
		return &d, nil
	}
	if !redisclient.IsMiss(err) {
		c.logger.Warn("doctor cache read failed", zap.String("key", key), zap.Error(err))
	}

	loaded, err := load()
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, loaded, c.ttl); err != nil {
		c.logger.Warn("doctor cache write failed", zap.String("key", key), zap.Error(err))
	}
	return loaded, nil
}

// Invalidate drops both cached entries of a doctor after its profile or
// reviews change.
func (c *CachedDoctors) Invalidate(ctx context.Context, ref DoctorRef) error {
	if err := c.cache.Delete(ctx, profileKey(ref.ProfileID)); err != nil {
		return err
	}
	return c.cache.Delete(ctx, userKey(ref.UserID))
}
