package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor lock not acquired")
)

// Locker is used by the appointment service to serialize availability checks
// and writes per doctor.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorUserID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisDoctorLocker struct {
	client   *redis.Client
	ttl      time.Duration
	attempts int
	backoff  time.Duration
}

// LockOption tunes acquisition retries.
type LockOption func(*redisDoctorLocker)

// WithRetry makes a contended acquisition retry attempts times, sleeping
// backoff between tries.
func WithRetry(attempts int, backoff time.Duration) LockOption {
	return func(l *redisDoctorLocker) {
		if attempts > 0 {
			l.attempts = attempts
		}
		if backoff > 0 {
			l.backoff = backoff
		}
	}
}

// NewRedisDoctorLocker creates a locker that uses a per doctor Redis key.
func NewRedisDoctorLocker(client *redis.Client, ttl time.Duration, opts ...LockOption) Locker {
	l := &redisDoctorLocker{
		client:   client,
		ttl:      ttl,
		attempts: 5,
		backoff:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func lockKey(doctorUserID uuid.UUID) string {
	return fmt.Sprintf("lock:doctor:%s", doctorUserID.String())
}

func (l *redisDoctorLocker) WithDoctorLock(ctx context.Context, doctorUserID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(doctorUserID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must run even when ctx was cancelled mid-critical-section
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDoctorLocker) acquire(ctx context.Context, key, token string) error {
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(l.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire doctor lock: %w", err)
		}
		if ok {
			return nil
		}
	}
	return ErrLockNotAcquired
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDoctorLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor lock: %w", err)
	}
	return nil
}
