package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	unreadKeyPrefix    = "notify:unread:"
	unreadGenKeyPrefix = "notify:unread-gen:"
)

// UnreadCache memoises per-user unread counts in Redis. A nil cache is valid
// and disables caching. Postgres stays the source of truth: the cache is
// dropped whenever a user's notifications change.
type UnreadCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewUnreadCache constructs an UnreadCache.
func NewUnreadCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *UnreadCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnreadCache{client: client, ttl: ttl, logger: logger}
}

func unreadKey(userID uuid.UUID) string {
	return unreadKeyPrefix + userID.String()
}

func unreadGenKey(userID uuid.UUID) string {
	return unreadGenKeyPrefix + userID.String()
}

// Get returns the cached count when present.
func (c *UnreadCache) Get(ctx context.Context, userID uuid.UUID) (int64, bool) {
	if c == nil {
		return 0, false
	}
	raw, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("unread cache get", slog.Any("error", err))
		}
		return 0, false
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return count, true
}

// Fill loads the count and caches it unless the user's notifications
// changed while it was loading. The generation key is bumped on every
// invalidation; watching it aborts a fill that raced one, leaving the cache
// empty rather than stale.
func (c *UnreadCache) Fill(ctx context.Context, userID uuid.UUID, load func(context.Context) (int64, error)) (int64, error) {
	if c == nil {
		return load(ctx)
	}
	var (
		count   int64
		loadErr error
		loaded  bool
	)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		count, loadErr = load(ctx)
		if loadErr != nil {
			return loadErr
		}
		loaded = true
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, unreadKey(userID), count, c.ttl)
			return nil
		})
		return err
	}, unreadGenKey(userID))
	switch {
	case loadErr != nil:
		return 0, loadErr
	case loaded:
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			c.logger.Warn("unread cache set", slog.Any("error", err))
		}
		return count, nil
	default:
		c.logger.Warn("unread cache watch", slog.Any("error", err))
		return load(ctx)
	}
}

func (c *UnreadCache) drop(ctx context.Context, userID uuid.UUID) error {
	gen := unreadGenKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gen)
		pipe.Expire(ctx, gen, c.ttl)
		pipe.Del(ctx, unreadKey(userID))
		return nil
	})
	return err
}

// Invalidate drops the cached count for userID.
func (c *UnreadCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.drop(ctx, userID); err != nil {
		c.logger.Warn("unread cache invalidate", slog.Any("error", err))
	}
}

// Deliver implements Sink by dropping the recipient's cached count.
func (c *UnreadCache) Deliver(ctx context.Context, n Notification) error {
	if c == nil {
		return nil
	}
	if err := c.drop(ctx, n.UserID); err != nil {
		return fmt.Errorf("invalidate unread count: %w", err)
	}
	return nil
}
