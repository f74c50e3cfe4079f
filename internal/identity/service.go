package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/shared"
)

// CodeResolver maps a room join code to its room.
type CodeResolver interface {
	Join(ctx context.Context, code string) (uuid.UUID, error)
}

// Service resolves principals and registers new ones.
type Service struct {
	repo       Repository
	rooms      CodeResolver
	dispatcher *notification.Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
	lookups    singleflight.Group
	now        func() time.Time
}

// NewService constructs an identity Service.
func NewService(repo Repository, rooms CodeResolver, dispatcher *notification.Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		rooms:      rooms,
		dispatcher: dispatcher,
		validate:   shared.NewValidator(),
		logger:     logger,
		now:        time.Now,
	}
}

// Resolve loads the principal with id. Concurrent lookups of one id share a
// single storage call, which outlives the cancellation of any one caller.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (Principal, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.lookups.DoChan(id.String(), func() (any, error) {
		return s.repo.FindByID(detached, id)
	})
	select {
	case <-ctx.Done():
		return Principal{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Principal{}, res.Err
		}
		return res.Val.(Principal), nil
	}
}

// Current resolves the authenticated caller of ctx. It does not check the
// account status, so it also serves reading one's own status.
func (s *Service) Current(ctx context.Context) (Principal, error) {
	id, ok := shared.SubjectFromContext(ctx)
	if !ok {
		return Principal{}, shared.ErrUnauthenticated
	}
	return s.Resolve(ctx, id)
}

// Authorize resolves the caller and gates it on account status and role.
func (s *Service) Authorize(ctx context.Context, required ...Role) (Principal, error) {
	p, err := s.Current(ctx)
	if err != nil {
		return Principal{}, err
	}
	if err := Authorize(p, required...); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Register creates the profile of the authenticated caller. Users join a room
// by code and wait for admin approval; admins are approved immediately and
// create their room afterwards.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Principal, error) {
	id, ok := shared.SubjectFromContext(ctx)
	if !ok {
		return Principal{}, shared.ErrUnauthenticated
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.RoomCode = strings.ToUpper(strings.TrimSpace(in.RoomCode))
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Principal{}, err
	}

	now := s.now().UTC()
	p := Principal{
		ID:        id,
		Username:  in.Username,
		Email:     in.Email,
		Role:      in.Role,
		Status:    StatusApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Role == RoleUser {
		roomID, err := s.rooms.Join(ctx, in.RoomCode)
		if err != nil {
			return Principal{}, err
		}
		p.RoomID = &roomID
		p.Status = StatusPending
	}

	var published []notification.Notification
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, p); err != nil {
			return err
		}
		if p.Status != StatusPending {
			return nil
		}
		admins, err := tx.ApprovedAdmins(ctx, *p.RoomID)
		if err != nil {
			return err
		}
		for _, admin := range admins {
			n, err := s.dispatcher.Dispatch(ctx, tx, notification.Event{
				UserID:  admin,
				Type:    notification.TypeApprovalRequest,
				Message: fmt.Sprintf("New member awaiting approval: %s", p.Username),
			})
			if err != nil {
				return err
			}
			published = append(published, n)
		}
		return nil
	})
	if err != nil {
		return Principal{}, err
	}
	s.dispatcher.Publish(ctx, published...)
	s.lookups.Forget(id.String())
	s.logger.Info("principal registered",
		slog.String("principal_id", p.ID.String()),
		slog.String("role", string(p.Role)),
		slog.String("status", string(p.Status)))
	return p, nil
}

// RequireWorker resolves id and checks it can be assigned work in roomID.
func (s *Service) RequireWorker(ctx context.Context, id, roomID uuid.UUID) (Principal, error) {
	p, err := s.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Principal{}, fmt.Errorf("%w: assignee %s does not exist", shared.ErrValidation, id)
		}
		return Principal{}, err
	}
	if !p.InRoom(roomID) {
		return Principal{}, fmt.Errorf("%w: assignee is not a member of this room", shared.ErrValidation)
	}
	if !p.IsApproved() {
		return Principal{}, fmt.Errorf("%w: assignee account is not approved", shared.ErrValidation)
	}
	if !IsWorker(p.Role) {
		return Principal{}, fmt.Errorf("%w: assignee must hold the user or approver role", shared.ErrValidation)
	}
	return p, nil
}
