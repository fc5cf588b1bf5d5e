package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/palms-core/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOASTS
// Веб-клиенты подписаны на pubsub:toasts:<user_id> через websocket-шлюз.
// ══════════════════════════════════════════════════════════════════════════════

// ToastTopic is the pub/sub topic of a user's toasts.
func ToastTopic(userID string) string {
	return PubSubChannel("toasts:" + userID)
}

// ToastPublisher fans toasts out over Redis pub/sub.
type ToastPublisher struct {
	cache *Cache
}

// NewToastPublisher creates a ToastPublisher.
func NewToastPublisher(cache *Cache) *ToastPublisher {
	return &ToastPublisher{cache: cache}
}

// PublishToast publishes the toast to its user's topic.
func (p *ToastPublisher) PublishToast(ctx context.Context, toast notification.Toast) error {
	if toast.UserID == "" {
		return ErrCacheKeyEmpty
	}
	return p.cache.Publish(ctx, ToastTopic(toast.UserID), toast)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

// ErrLockNotHeld is returned when releasing a lock owned by someone else.
var ErrLockNotHeld = errors.New("lock: not held")

// unlockScript deletes the key only when it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker grants exclusive runs of scheduled jobs across instances.
type Locker struct {
	cache *Cache
}

// NewLocker creates a Locker.
func NewLocker(cache *Cache) *Locker {
	return &Locker{cache: cache}
}

// TryLock acquires resource for ttl. It returns the release function, or
// ok=false when another instance holds the lock.
func (l *Locker) TryLock(ctx context.Context, resource string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	if resource == "" {
		return nil, false, ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}

	key := LockKey(resource)
	token := uuid.NewString()

	ok, err = l.cache.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release = func(ctx context.Context) error {
		n, err := unlockScript.Run(ctx, l.cache.client, []string{key}, token).Int()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
	return release, true, nil
}
