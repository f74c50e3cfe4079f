package rooms

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/platform/db"
	"github.com/taskroom/taskroom/internal/shared"
)

// memState is the committed state of memRepo. Transactions work on a copy
// and replace it only when the callback succeeds.
type memState struct {
	rooms      map[uuid.UUID]Room
	history    []CodeRotation
	principals map[uuid.UUID]identity.Principal
	notes      []notification.Notification
	audit      []shared.AuditLog
}

func (s memState) clone() memState {
	out := memState{
		rooms:      make(map[uuid.UUID]Room, len(s.rooms)),
		history:    append([]CodeRotation(nil), s.history...),
		principals: make(map[uuid.UUID]identity.Principal, len(s.principals)),
		notes:      append([]notification.Notification(nil), s.notes...),
		audit:      append([]shared.AuditLog(nil), s.audit...),
	}
	for k, v := range s.rooms {
		out.rooms[k] = v
	}
	for k, v := range s.principals {
		out.principals[k] = v
	}
	return out
}

type memRepo struct {
	mu            sync.Mutex
	state         memState
	failUpdateErr error
	failLockErr   error
	txCalls       int
}

func newMemRepo() *memRepo {
	return &memRepo{state: memState{
		rooms:      make(map[uuid.UUID]Room),
		principals: make(map[uuid.UUID]identity.Principal),
	}}
}

func (m *memRepo) addRoom(room Room) {
	m.state.rooms[room.ID] = room
}

func (m *memRepo) addPrincipal(p identity.Principal) {
	m.state.principals[p.ID] = p
}

func (m *memRepo) Get(ctx context.Context, id uuid.UUID) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.state.rooms[id]
	if !ok {
		return Room{}, shared.ErrNotFound
	}
	return room, nil
}

func (m *memRepo) FindByCode(ctx context.Context, code string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range m.state.rooms {
		if room.CurrentCode == code {
			return room, nil
		}
	}
	return Room{}, shared.ErrNotFound
}

func (m *memRepo) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]CodeRotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CodeRotation
	for i := len(m.state.history) - 1; i >= 0; i-- {
		if m.state.history[i].RoomID == roomID {
			out = append(out, m.state.history[i])
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) ListMembers(ctx context.Context, roomID uuid.UUID, filter MemberFilter) ([]identity.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []identity.Principal
	for _, p := range m.state.principals {
		if p.InRoom(roomID) && (filter.Status == "" || p.Status == filter.Status) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	tx := &memTx{state: m.state.clone(), failUpdateErr: m.failUpdateErr, failLockErr: m.failLockErr}
	if err := fn(ctx, tx); err != nil {
		return db.TranslateConflict(err)
	}
	m.state = tx.state
	return nil
}

type memTx struct {
	state         memState
	failUpdateErr error
	failLockErr   error
}

func (t *memTx) InsertNotification(ctx context.Context, n notification.Notification) error {
	t.state.notes = append(t.state.notes, n)
	return nil
}

func (t *memTx) CodeInUse(ctx context.Context, code string) (bool, error) {
	for _, room := range t.state.rooms {
		if room.CurrentCode == code {
			return true, nil
		}
	}
	for _, rot := range t.state.history {
		if rot.OldCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertRoom(ctx context.Context, room Room) error {
	t.state.rooms[room.ID] = room
	return nil
}

func (t *memTx) LockRoom(ctx context.Context, id uuid.UUID) (Room, error) {
	if t.failLockErr != nil {
		return Room{}, t.failLockErr
	}
	room, ok := t.state.rooms[id]
	if !ok {
		return Room{}, shared.ErrNotFound
	}
	return room, nil
}

func (t *memTx) AppendRotation(ctx context.Context, rot CodeRotation) error {
	rot.ID = int64(len(t.state.history) + 1)
	t.state.history = append(t.state.history, rot)
	return nil
}

func (t *memTx) UpdateCode(ctx context.Context, roomID uuid.UUID, code string) error {
	if t.failUpdateErr != nil {
		return t.failUpdateErr
	}
	room, ok := t.state.rooms[roomID]
	if !ok {
		return shared.ErrNotFound
	}
	room.CurrentCode = code
	t.state.rooms[roomID] = room
	return nil
}

func (t *memTx) AttachPrincipal(ctx context.Context, principalID, roomID uuid.UUID, at time.Time) error {
	p, ok := t.state.principals[principalID]
	if !ok || p.RoomID != nil {
		return errors.New("principal cannot be attached")
	}
	p.RoomID = &roomID
	p.UpdatedAt = at
	t.state.principals[principalID] = p
	return nil
}

func (t *memTx) LockPrincipal(ctx context.Context, id uuid.UUID) (identity.Principal, error) {
	if t.failLockErr != nil {
		return identity.Principal{}, t.failLockErr
	}
	p, ok := t.state.principals[id]
	if !ok {
		return identity.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status identity.AccountStatus, at time.Time) error {
	p := t.state.principals[id]
	p.Status = status
	p.UpdatedAt = at
	t.state.principals[id] = p
	return nil
}

func (t *memTx) UpdateRole(ctx context.Context, id uuid.UUID, role identity.Role, actor uuid.UUID, at time.Time) error {
	p := t.state.principals[id]
	p.Role = role
	p.UpdatedAt = at
	t.state.principals[id] = p
	return nil
}

func (t *memTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.state.audit = append(t.state.audit, log)
	return nil
}
