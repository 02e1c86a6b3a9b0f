package service

import (
	"context"
	"sort"
	"sync"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/transport/mailer"

	"github.com/gofrs/uuid"
)

// memStore повторяет условные UPDATE'ы из sql-queries.go поверх map под мьютексом.
// Мьютекс играет роль блокировки строки в Postgres.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*entity.User
	events      map[uuid.UUID]*entity.Event
	votes       map[[2]uuid.UUID]entity.Vote
	outbox      []*entity.OutboxEmail
	resets      []*entity.PasswordReset
	invitations []*entity.Invitation
	dispatches  []*entity.ReminderDispatch

	healthErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*entity.User{},
		events: map[uuid.UUID]*entity.Event{},
		votes:  map[[2]uuid.UUID]entity.Vote{},
	}
}

func (s *memStore) addUser(email, name string, role entity.Role) *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &entity.User{ID: uuid.Must(uuid.NewV4()), Email: email, Name: name, PasswordHash: "old-hash", Role: role, RemindersEnabled: true}
	s.users[email] = u
	return u
}

func (s *memStore) addEvent(title string, startsAt time.Time, visible bool) *entity.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entity.Event{ID: uuid.Must(uuid.NewV4()), Title: title, Location: "Schießstand", StartsAt: startsAt, Visible: visible}
	s.events[e.ID] = e
	return e
}

func (s *memStore) user(email string) entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[email]
}

func (s *memStore) emails() []entity.OutboxEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.OutboxEmail, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, *e)
	}
	return out
}

func (s *memStore) email(id int64) entity.OutboxEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.outbox[id-1]
}

// ===== Repo =====

func (s *memStore) HealthCheck(context.Context) error { return s.healthErr }

func (s *memStore) enqueueLocked(e *entity.OutboxEmail) int64 {
	cp := *e
	cp.ID = int64(len(s.outbox) + 1)
	cp.Status = entity.OutboxPending
	cp.NextAttemptAt = cp.QueuedAt
	vars := make(map[string]string, len(e.Variables))
	for k, v := range e.Variables {
		vars[k] = v
	}
	cp.Variables = vars
	s.outbox = append(s.outbox, &cp)
	e.ID = cp.ID
	e.Status = cp.Status
	e.NextAttemptAt = cp.NextAttemptAt
	return cp.ID
}

func (s *memStore) EnqueueEmail(_ context.Context, e *entity.OutboxEmail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(e), nil
}

func (s *memStore) ClaimDueBatch(_ context.Context, now time.Time, limit int, lease time.Duration) ([]entity.OutboxEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*entity.OutboxEmail, 0)
	for _, e := range s.outbox {
		if !e.Status.Claimable() || e.NextAttemptAt.After(now) {
			continue
		}
		if e.LockedUntil != nil && e.LockedUntil.After(now) {
			continue
		}
		due = append(due, e)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]entity.OutboxEmail, 0, len(due))
	for _, e := range due {
		until := now.Add(lease)
		e.LockedUntil = &until
		out = append(out, *e)
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.outbox[id-1]
	if !e.Status.Claimable() {
		return nil
	}
	e.Status = entity.OutboxSent
	e.SentAt = &now
	e.LockedUntil = nil
	e.LastError = nil
	return nil
}

func (s *memStore) ReleaseEmail(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.outbox[id-1]
	if e.Status.Claimable() {
		e.LockedUntil = nil
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, errMsg string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.outbox[id-1]
	if !e.Status.Claimable() {
		return nil
	}
	e.Attempts++
	e.LastError = &errMsg
	e.LockedUntil = nil
	if next == nil {
		e.Status = entity.OutboxFailed
		return nil
	}
	e.Status = entity.OutboxRetrying
	e.NextAttemptAt = *next
	return nil
}

func (s *memStore) RetryEmail(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || int(id) > len(s.outbox) {
		return appers.ErrOutboxNotFound
	}
	e := s.outbox[id-1]
	if e.Status != entity.OutboxFailed && e.Status != entity.OutboxRetrying {
		return appers.ErrOutboxNotFound
	}
	e.Status = entity.OutboxRetrying
	e.Attempts = 0
	e.NextAttemptAt = now
	e.LockedUntil = nil
	return nil
}

func (s *memStore) ListEmails(_ context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.OutboxEmail, 0)
	for i := len(s.outbox) - 1; i >= 0 && len(out) < limit; i-- {
		if status == "" || s.outbox[i].Status == status {
			out = append(out, *s.outbox[i])
		}
	}
	return out, nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, appers.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) GetPasswordResetByHash(_ context.Context, hash string) (*entity.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resets {
		if r.TokenHash == hash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, appers.ErrTokenInvalidOrExpired
}

func (s *memStore) GetInvitationByHash(_ context.Context, hash string) (*entity.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.invitations {
		if i.TokenHash == hash {
			cp := *i
			return &cp, nil
		}
	}
	return nil, appers.ErrTokenInvalidOrExpired
}

func (s *memStore) GetReminderByRsvpHash(_ context.Context, hash string) (*entity.ReminderDispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dispatches {
		if d.RsvpTokenHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, appers.ErrTokenInvalidOrExpired
}

func (s *memStore) GetEvent(_ context.Context, id uuid.UUID) (*entity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, appers.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) GetVote(_ context.Context, eventID, userID uuid.UUID) (*entity.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[[2]uuid.UUID{eventID, userID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memStore) ListEventsStartingBetween(_ context.Context, from, to time.Time) ([]entity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Event, 0)
	for _, e := range s.events {
		if e.Visible && !e.StartsAt.Before(from) && e.StartsAt.Before(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) ListReminderRecipients(_ context.Context, eventID uuid.UUID, daysBefore int) ([]entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.User, 0)
	for _, u := range s.users {
		if !u.RemindersEnabled {
			continue
		}
		sent := false
		for _, d := range s.dispatches {
			if d.EventID == eventID && d.UserID == u.ID && d.DaysBefore == daysBefore {
				sent = true
				break
			}
		}
		if !sent {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *memStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	keptResets := s.resets[:0]
	for _, r := range s.resets {
		if r.ExpiresAt.Before(before) || (r.UsedAt != nil && r.UsedAt.Before(before)) {
			n++
			continue
		}
		keptResets = append(keptResets, r)
	}
	s.resets = keptResets
	return n, nil
}

// ===== Transactions =====

func (s *memStore) ClaimOutboxBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]entity.OutboxEmail, error) {
	return s.ClaimDueBatch(ctx, now, limit, lease)
}

func (s *memStore) CreatePasswordReset(_ context.Context, reset *entity.PasswordReset, mail *entity.OutboxEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resets {
		if r.UserID == reset.UserID && r.UsedAt == nil {
			at := reset.CreatedAt
			r.UsedAt = &at
		}
	}
	cp := *reset
	cp.ID = int64(len(s.resets) + 1)
	s.resets = append(s.resets, &cp)
	reset.ID = cp.ID
	s.enqueueLocked(mail)
	return nil
}

func (s *memStore) ConsumePasswordReset(_ context.Context, hash, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resets {
		if r.TokenHash != hash || r.UsedAt != nil || !r.ExpiresAt.After(now) {
			continue
		}
		at := now
		r.UsedAt = &at
		for _, u := range s.users {
			if u.ID == r.UserID {
				u.PasswordHash = passwordHash
			}
		}
		return nil
	}
	return appers.ErrTokenInvalidOrExpired
}

func (s *memStore) CreateInvitation(_ context.Context, inv *entity.Invitation, mail *entity.OutboxEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[inv.Email]; ok {
		return appers.ErrUserAlreadyExists
	}
	for _, i := range s.invitations {
		if i.Email == inv.Email && i.UsedAt == nil {
			at := inv.CreatedAt
			i.UsedAt = &at
		}
	}
	cp := *inv
	cp.ID = int64(len(s.invitations) + 1)
	s.invitations = append(s.invitations, &cp)
	inv.ID = cp.ID
	s.enqueueLocked(mail)
	return nil
}

func (s *memStore) RedeemInvitation(_ context.Context, hash string, user *entity.User, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.invitations {
		if i.TokenHash != hash || i.UsedAt != nil || !i.ExpiresAt.After(now) {
			continue
		}
		if _, ok := s.users[i.Email]; ok {
			return appers.ErrUserAlreadyExists
		}
		at := now
		i.UsedAt = &at
		user.Email = i.Email
		user.Role = i.Role
		user.RemindersEnabled = true
		user.CreatedAt = now
		cp := *user
		s.users[user.Email] = &cp
		return nil
	}
	return appers.ErrTokenInvalidOrExpired
}

func (s *memStore) CreateReminderDispatch(_ context.Context, d *entity.ReminderDispatch, mail *entity.OutboxEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.dispatches {
		if x.EventID == d.EventID && x.UserID == d.UserID && x.DaysBefore == d.DaysBefore {
			return appers.ErrReminderAlreadySent
		}
	}
	cp := *d
	cp.ID = int64(len(s.dispatches) + 1)
	s.dispatches = append(s.dispatches, &cp)
	d.ID = cp.ID
	s.enqueueLocked(mail)
	return nil
}

func (s *memStore) CastRsvpVote(_ context.Context, hash string, vote entity.Vote, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dispatches {
		if d.RsvpTokenHash != hash || d.RsvpUsedAt != nil || !d.RsvpExpiresAt.After(now) {
			continue
		}
		e, ok := s.events[d.EventID]
		if !ok || !e.Visible || !e.StartsAt.After(now) {
			continue
		}
		at := now
		d.RsvpUsedAt = &at
		s.votes[[2]uuid.UUID{d.EventID, d.UserID}] = vote
		return d.EventID, nil
	}
	return uuid.Nil, appers.ErrTokenInvalidOrExpired
}

func (s *memStore) Unsubscribe(_ context.Context, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dispatches {
		if d.UnsubscribeTokenHash != hash || !d.UnsubscribeExpiresAt.After(now) {
			continue
		}
		if d.UnsubscribeUsedAt == nil {
			at := now
			d.UnsubscribeUsedAt = &at
		}
		for _, u := range s.users {
			if u.ID == d.UserID {
				u.RemindersEnabled = false
			}
		}
		return nil
	}
	return appers.ErrTokenInvalidOrExpired
}

// ===== транспорт =====

type fakeTransport struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
	// block — Send ждёт отмены контекста (проверка SendTimeout)
	block bool
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Send(ctx context.Context, msg mailer.Message) error {
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) messages() []mailer.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]mailer.Message(nil), t.sent...)
}

type fakeGeocoder struct {
	res []entity.GeoResult
	err error
}

func (g *fakeGeocoder) Search(context.Context, string) ([]entity.GeoResult, error) {
	return g.res, g.err
}
