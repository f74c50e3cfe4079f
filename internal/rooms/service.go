package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/shared"
)

const defaultHistoryLimit = 50

// ServiceConfig tunes code generation.
type ServiceConfig struct {
	MaxCodeAttempts int
}

// Service implements the room boundary operations.
type Service struct {
	repo       Repository
	dispatcher *notification.Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
	cfg        ServiceConfig
	generate   CodeGenerator
	now        func() time.Time
}

// NewService constructs a rooms Service.
func NewService(repo Repository, dispatcher *notification.Dispatcher, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 10
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		validate:   shared.NewValidator(),
		logger:     logger,
		cfg:        cfg,
		generate:   RandomCode,
		now:        time.Now,
	}
}

// Join resolves a join code to its room. Codes are matched exactly after
// uppercasing; retired codes do not resolve.
func (s *Service) Join(ctx context.Context, code string) (uuid.UUID, error) {
	code, ok := NormalizeCode(code)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: code must be %d letters or digits", shared.ErrInvalidCode, CodeLength)
	}
	room, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: no room uses this code", shared.ErrInvalidCode)
		}
		return uuid.Nil, err
	}
	return room.ID, nil
}

// withFreshCode runs fn in a transaction with a newly generated code until a
// code that no room uses or used is found, or attempts run out.
func (s *Service) withFreshCode(ctx context.Context, fn func(context.Context, TxRepository, string) error) error {
	for attempt := 1; attempt <= s.cfg.MaxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return err
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			used, err := tx.CodeInUse(ctx, code)
			if err != nil {
				return err
			}
			if used {
				return errCodeTaken
			}
			return fn(ctx, tx, code)
		})
		if errors.Is(err, errCodeTaken) {
			s.logger.Debug("room code collision", slog.Int("attempt", attempt))
			continue
		}
		return err
	}
	return fmt.Errorf("%w: could not generate a unique room code after %d attempts", shared.ErrValidation, s.cfg.MaxCodeAttempts)
}

// Create opens a new room owned by actor and makes actor its first member.
func (s *Service) Create(ctx context.Context, actor identity.Principal, in CreateRoomInput) (Room, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return Room{}, err
	}
	if actor.RoomID != nil {
		return Room{}, fmt.Errorf("%w: admin already owns a room", shared.ErrValidation)
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Room{}, err
	}

	var room Room
	err := s.withFreshCode(ctx, func(ctx context.Context, tx TxRepository, code string) error {
		now := s.now().UTC()
		room = Room{ID: uuid.New(), Name: in.Name, CurrentCode: code, CreatedBy: actor.ID, CreatedAt: now}
		if err := tx.InsertRoom(ctx, room); err != nil {
			return err
		}
		if err := tx.AttachPrincipal(ctx, actor.ID, room.ID, now); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, RoomID: room.ID, Action: "room.create",
			Entity: "room", EntityID: room.ID.String(), At: now,
			Meta: map[string]any{"name": room.Name},
		})
	})
	if err != nil {
		return Room{}, err
	}
	s.logger.Info("room created", slog.String("room_id", room.ID.String()))
	return room, nil
}

// Current returns the room of actor.
func (s *Service) Current(ctx context.Context, actor identity.Principal) (Room, error) {
	if err := identity.CheckAccount(actor); err != nil {
		return Room{}, err
	}
	roomID, err := RoomOf(actor)
	if err != nil {
		return Room{}, err
	}
	return s.repo.Get(ctx, roomID)
}

// RotateCode replaces the join code of roomID. The history entry and the new
// current code commit together; existing members are unaffected.
func (s *Service) RotateCode(ctx context.Context, actor identity.Principal, roomID uuid.UUID) (Room, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return Room{}, err
	}
	if err := AssertSameRoom(actor, roomID); err != nil {
		return Room{}, err
	}
	var room Room
	err := s.withFreshCode(ctx, func(ctx context.Context, tx TxRepository, code string) error {
		var err error
		room, err = tx.LockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := tx.AppendRotation(ctx, CodeRotation{
			RoomID: roomID, OldCode: room.CurrentCode, NewCode: code, RotatedBy: actor.ID, RotatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.UpdateCode(ctx, roomID, code); err != nil {
			return err
		}
		room.CurrentCode = code
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	s.logger.Info("room code rotated",
		slog.String("room_id", roomID.String()),
		slog.String("actor_id", actor.ID.String()))
	return room, nil
}

// History lists the code rotations of roomID, newest first.
func (s *Service) History(ctx context.Context, actor identity.Principal, roomID uuid.UUID, limit int) ([]CodeRotation, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return nil, err
	}
	if err := AssertSameRoom(actor, roomID); err != nil {
		return nil, err
	}
	limit = shared.ClampLimit(limit, defaultHistoryLimit, 200)
	out, err := s.repo.ListHistory(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []CodeRotation{}
	}
	return out, nil
}

// ListMembers lists the principals of roomID.
func (s *Service) ListMembers(ctx context.Context, actor identity.Principal, roomID uuid.UUID, filter MemberFilter) ([]identity.Principal, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return nil, err
	}
	if err := AssertSameRoom(actor, roomID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown account status %q", shared.ErrValidation, filter.Status)
	}
	out, err := s.repo.ListMembers(ctx, roomID, filter)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []identity.Principal{}
	}
	return out, nil
}

// lockMember loads target for an administrative change by actor.
func lockMember(ctx context.Context, tx TxRepository, actor identity.Principal, targetID uuid.UUID) (identity.Principal, error) {
	target, err := tx.LockPrincipal(ctx, targetID)
	if err != nil {
		return identity.Principal{}, err
	}
	if target.RoomID == nil {
		return identity.Principal{}, fmt.Errorf("%w: member has no room", shared.ErrCrossTenantAccess)
	}
	if err := AssertSameRoom(actor, *target.RoomID); err != nil {
		return identity.Principal{}, err
	}
	if target.ID == actor.ID || target.Role == identity.RoleAdmin {
		return identity.Principal{}, fmt.Errorf("%w: admins cannot change admin accounts", shared.ErrForbidden)
	}
	return target, nil
}

// SetAccountStatus approves, rejects, suspends or reinstates a member.
func (s *Service) SetAccountStatus(ctx context.Context, actor identity.Principal, targetID uuid.UUID, in SetStatusInput) (identity.Principal, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return identity.Principal{}, err
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return identity.Principal{}, err
	}

	var (
		target    identity.Principal
		published []notification.Notification
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		target, err = lockMember(ctx, tx, actor, targetID)
		if err != nil {
			return err
		}
		from := target.Status
		if !CanChangeStatus(from, in.Status) {
			return fmt.Errorf("%w: account cannot move from %s to %s", shared.ErrInvalidTransition, from, in.Status)
		}
		now := s.now().UTC()
		if err := tx.UpdateAccountStatus(ctx, target.ID, in.Status, now); err != nil {
			return err
		}
		target.Status = in.Status
		target.UpdatedAt = now
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, RoomID: *target.RoomID, Action: "member.status",
			Entity: "principal", EntityID: target.ID.String(), At: now,
			Meta: map[string]any{"from": string(from), "to": string(in.Status)},
		}); err != nil {
			return err
		}
		ev, ok := statusEvent(from, in.Status)
		if !ok {
			return nil
		}
		ev.UserID = target.ID
		n, err := s.dispatcher.Dispatch(ctx, tx, ev)
		if err != nil {
			return err
		}
		published = append(published, n)
		return nil
	})
	if err != nil {
		return identity.Principal{}, err
	}
	s.dispatcher.Publish(ctx, published...)
	return target, nil
}

func statusEvent(from, to identity.AccountStatus) (notification.Event, bool) {
	switch {
	case from == identity.StatusPending && to == identity.StatusApproved:
		return notification.Event{Type: notification.TypeUserApproved, Message: "Your account has been approved"}, true
	case to == identity.StatusRejected:
		return notification.Event{Type: notification.TypeUserRejected, Message: "Your account registration was rejected"}, true
	default:
		return notification.Event{}, false
	}
}

// ChangeRole promotes a user to approver or demotes an approver to user.
// Role and account status are independent; only approved members qualify.
func (s *Service) ChangeRole(ctx context.Context, actor identity.Principal, targetID uuid.UUID, in ChangeRoleInput) (identity.Principal, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return identity.Principal{}, err
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return identity.Principal{}, err
	}

	var target identity.Principal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		target, err = lockMember(ctx, tx, actor, targetID)
		if err != nil {
			return err
		}
		if !target.IsApproved() {
			return fmt.Errorf("%w: only approved members can change role", shared.ErrInvalidTransition)
		}
		from := target.Role
		if !CanChangeRole(from, in.Role) {
			return fmt.Errorf("%w: role cannot change from %s to %s", shared.ErrInvalidTransition, from, in.Role)
		}
		now := s.now().UTC()
		if err := tx.UpdateRole(ctx, target.ID, in.Role, actor.ID, now); err != nil {
			return err
		}
		target.Role = in.Role
		target.UpdatedAt = now
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, RoomID: *target.RoomID, Action: "member.role",
			Entity: "principal", EntityID: target.ID.String(), At: now,
			Meta: map[string]any{"from": string(from), "to": string(in.Role)},
		})
	})
	if err != nil {
		return identity.Principal{}, err
	}
	s.logger.Info("member role changed",
		slog.String("principal_id", target.ID.String()),
		slog.String("role", string(target.Role)))
	return target, nil
}
