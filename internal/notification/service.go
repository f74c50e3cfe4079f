package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/shared"
)

// ServiceConfig bounds listing sizes.
type ServiceConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Service exposes the read side of notifications to their owner.
type Service struct {
	repo  Repository
	cache *UnreadCache
	cfg   ServiceConfig
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache *UnreadCache, cfg ServiceConfig) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &Service{repo: repo, cache: cache, cfg: cfg}
}

// ListForUser returns the newest notifications for userID, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	limit = shared.ClampLimit(limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	notes, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []Notification{}
	}
	return notes, nil
}

// MarkAsRead flags a single notification as read. Repeating it is a no-op.
func (s *Service) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: notification %s", shared.ErrNotFound, id)
		}
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("%w: notification belongs to another user", shared.ErrForbidden)
	}
	if n.IsRead {
		return nil
	}
	if err := s.repo.MarkAsRead(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// MarkAllAsRead flags every unread notification of userID. Repeating it is a no-op.
func (s *Service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Invalidate(ctx, userID)
	}
	return n, nil
}

// UnreadCount returns the number of unread notifications, served from cache when possible.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if count, ok := s.cache.Get(ctx, userID); ok {
		return count, nil
	}
	return s.cache.Fill(ctx, userID, func(ctx context.Context) (int64, error) {
		return s.repo.CountUnread(ctx, userID)
	})
}
