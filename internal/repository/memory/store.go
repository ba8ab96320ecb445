// Package memory implements repository.Store in process memory. It backs
// STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/domain/outbox"
	"upforit/internal/domain/user"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
)

// Store keeps each collection behind its own mutex. Locks are only ever nested
// users before chats, which is the order MutateBadge needs.
type Store struct {
	usersMu sync.Mutex
	users   map[string]*user.User

	crewMu       sync.RWMutex
	crews        map[string]crew.Crew
	members      map[string]map[string]time.Time
	availability map[availabilityKey]crew.Availability

	chatMu        sync.RWMutex
	conversations map[string]*conversation.Conversation
	messages      map[string][]conversation.Message
	readStates    map[readKey]time.Time

	outboxMu sync.Mutex
	outbox   []*outbox.OutboxEvent

	now func() time.Time
}

type availabilityKey struct {
	crewID, date, userID string
}

type readKey struct {
	userID, conversationID string
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]*user.User),
		crews:         make(map[string]crew.Crew),
		members:       make(map[string]map[string]time.Time),
		availability:  make(map[availabilityKey]crew.Availability),
		conversations: make(map[string]*conversation.Conversation),
		messages:      make(map[string][]conversation.Message),
		readStates:    make(map[readKey]time.Time),
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

var _ repository.Store = (*Store)(nil)

// SetClock replaces the time source used for stored timestamps. It stands in for the
// database clock and must be called before the store is shared.
func (s *Store) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Crews() repository.CrewRepository                 { return crewRepo{s} }
func (s *Store) Conversations() repository.ConversationRepository { return conversationRepo{s} }
func (s *Store) Messages() repository.MessageRepository           { return messageRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository              { return outboxRepo{s} }

// WithTx runs fn against the same store. Writes are not rolled back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

func (s *Store) userExists(ids ...string) bool {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			return false
		}
	}
	return true
}

func cloneUser(u *user.User) user.User {
	out := *u
	out.PushTokens = slices.Clone(u.PushTokens)
	out.ActiveChats = slices.Clone(u.ActiveChats)
	return out
}

func cloneConversation(c *conversation.Conversation) conversation.Conversation {
	out := *c
	out.MemberIDs = slices.Clone(c.MemberIDs)
	return out
}

// --- users ---

type userRepo struct{ s *Store }

func (r userRepo) Upsert(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		return upforit_errors.ErrInvalidInput
	}
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()

	now := r.s.now()
	existing, ok := r.s.users[u.ID]
	if !ok {
		existing = &user.User{ID: u.ID, CreatedAt: now}
		r.s.users[u.ID] = existing
	}
	existing.DisplayName = u.DisplayName
	existing.AvatarURL = u.AvatarURL
	existing.UpdatedAt = now
	*u = cloneUser(existing)
	return nil
}

func (r userRepo) GetUserByID(ctx context.Context, id string) (user.User, error) {
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, upforit_errors.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r userRepo) GetUsersByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	if len(ids) > repository.MaxDirectoryBatch {
		return nil, upforit_errors.ErrInvalidInput
	}
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	var out []user.User
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (r userRepo) AddPushToken(ctx context.Context, userID, token string) error {
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return upforit_errors.ErrNotFound
	}
	if !slices.Contains(u.PushTokens, token) {
		u.PushTokens = append(u.PushTokens, token)
	}
	return nil
}

func (r userRepo) RemovePushToken(ctx context.Context, userID, token string) error {
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	if u, ok := r.s.users[userID]; ok {
		u.PushTokens = slices.DeleteFunc(u.PushTokens, func(t string) bool { return t == token })
	}
	return nil
}

func (r userRepo) SetActiveChat(ctx context.Context, userID, conversationID string, active bool) error {
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return upforit_errors.ErrNotFound
	}
	switch {
	case active && !slices.Contains(u.ActiveChats, conversationID):
		u.ActiveChats = append(u.ActiveChats, conversationID)
	case !active:
		u.ActiveChats = slices.DeleteFunc(u.ActiveChats, func(id string) bool { return id == conversationID })
	}
	u.UpdatedAt = r.s.now()
	return nil
}

func (r userRepo) MutateBadge(ctx context.Context, userID string, fn func(u *user.User) (bool, error)) (user.User, error) {
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	stored, ok := r.s.users[userID]
	if !ok {
		return user.User{}, upforit_errors.ErrNotFound
	}

	working := cloneUser(stored)
	write, err := fn(&working)
	if err != nil {
		return user.User{}, err
	}
	if write {
		stored.BadgeCount = max(working.BadgeCount, 0)
		stored.UpdatedAt = r.s.now()
		working.BadgeCount = stored.BadgeCount
		working.UpdatedAt = stored.UpdatedAt
	}
	return working, nil
}

// --- crews ---

type crewRepo struct{ s *Store }

func (r crewRepo) Create(ctx context.Context, c *crew.Crew) error {
	if !r.s.userExists(c.OwnerID) {
		return upforit_errors.ErrNotFound
	}
	r.s.crewMu.Lock()
	defer r.s.crewMu.Unlock()
	if _, ok := r.s.crews[c.ID]; ok {
		return upforit_errors.ErrAlreadyExists
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.crews[c.ID] = *c
	return nil
}

func (r crewRepo) GetByID(ctx context.Context, id string) (crew.Crew, error) {
	r.s.crewMu.RLock()
	defer r.s.crewMu.RUnlock()
	c, ok := r.s.crews[id]
	if !ok {
		return crew.Crew{}, upforit_errors.ErrNotFound
	}
	return c, nil
}

func (r crewRepo) Delete(ctx context.Context, id string) error {
	r.s.crewMu.Lock()
	if _, ok := r.s.crews[id]; !ok {
		r.s.crewMu.Unlock()
		return upforit_errors.ErrNotFound
	}
	delete(r.s.crews, id)
	delete(r.s.members, id)
	for key := range r.s.availability {
		if key.crewID == id {
			delete(r.s.availability, key)
		}
	}
	r.s.crewMu.Unlock()

	r.s.chatMu.Lock()
	defer r.s.chatMu.Unlock()
	for convID, c := range r.s.conversations {
		if c.CrewID != id {
			continue
		}
		delete(r.s.conversations, convID)
		delete(r.s.messages, convID)
		for key := range r.s.readStates {
			if key.conversationID == convID {
				delete(r.s.readStates, key)
			}
		}
	}
	return nil
}

func (r crewRepo) GetUserCrews(ctx context.Context, userID string) ([]crew.Crew, error) {
	r.s.crewMu.RLock()
	defer r.s.crewMu.RUnlock()
	var out []crew.Crew
	for crewID, members := range r.s.members {
		if _, ok := members[userID]; ok {
			out = append(out, r.s.crews[crewID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r crewRepo) AddMember(ctx context.Context, m *crew.Member) error {
	if !r.s.userExists(m.UserID) {
		return upforit_errors.ErrNotFound
	}
	r.s.crewMu.Lock()
	defer r.s.crewMu.Unlock()
	if _, ok := r.s.crews[m.CrewID]; !ok {
		return upforit_errors.ErrNotFound
	}
	members := r.s.members[m.CrewID]
	if members == nil {
		members = make(map[string]time.Time)
		r.s.members[m.CrewID] = members
	}
	if _, ok := members[m.UserID]; ok {
		return upforit_errors.ErrAlreadyExists
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = r.s.now()
	}
	members[m.UserID] = m.JoinedAt
	return nil
}

func (r crewRepo) RemoveMember(ctx context.Context, crewID, userID string) error {
	r.s.crewMu.Lock()
	defer r.s.crewMu.Unlock()
	members := r.s.members[crewID]
	if _, ok := members[userID]; !ok {
		return upforit_errors.ErrNotFound
	}
	delete(members, userID)
	return nil
}

func (r crewRepo) GetMemberIDs(ctx context.Context, crewID string) ([]string, error) {
	r.s.crewMu.RLock()
	defer r.s.crewMu.RUnlock()
	members := r.s.members[crewID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ji, jj := members[ids[i]], members[ids[j]]; !ji.Equal(jj) {
			return ji.Before(jj)
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

func (r crewRepo) IsMember(ctx context.Context, crewID, userID string) (bool, error) {
	r.s.crewMu.RLock()
	defer r.s.crewMu.RUnlock()
	_, ok := r.s.members[crewID][userID]
	return ok, nil
}

func (r crewRepo) SetAvailability(ctx context.Context, a crew.Availability) (bool, error) {
	r.s.crewMu.Lock()
	defer r.s.crewMu.Unlock()
	if _, ok := r.s.crews[a.CrewID]; !ok {
		return false, upforit_errors.ErrNotFound
	}
	key := availabilityKey{a.CrewID, a.Date, a.UserID}
	previous := r.s.availability[key].UpForIt
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = r.s.now()
	}
	r.s.availability[key] = a
	return previous, nil
}

func (r crewRepo) GetAvailability(ctx context.Context, crewID, date string) ([]crew.Availability, error) {
	r.s.crewMu.RLock()
	defer r.s.crewMu.RUnlock()
	var out []crew.Availability
	for key, a := range r.s.availability {
		if key.crewID == crewID && key.date == date {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r crewRepo) IsUpForIt(ctx context.Context, crewID, date, userID string) (bool, error) {
	r.s.crewMu.RLock()
	defer r.s.crewMu.RUnlock()
	return r.s.availability[availabilityKey{crewID, date, userID}].UpForIt, nil
}

// --- conversations ---

type conversationRepo struct{ s *Store }

func (r conversationRepo) CreateIfNotExists(ctx context.Context, c *conversation.Conversation) (bool, error) {
	if !r.s.userExists(c.MemberIDs...) {
		return false, upforit_errors.ErrNotFound
	}
	r.s.chatMu.Lock()
	defer r.s.chatMu.Unlock()
	if existing, ok := r.s.conversations[c.ID]; ok {
		*c = cloneConversation(existing)
		return false, nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	stored := cloneConversation(c)
	slices.Sort(stored.MemberIDs)
	stored.MemberIDs = slices.Compact(stored.MemberIDs)
	r.s.conversations[c.ID] = &stored
	*c = cloneConversation(&stored)
	return true, nil
}

func (r conversationRepo) GetByID(ctx context.Context, id string) (conversation.Conversation, error) {
	r.s.chatMu.RLock()
	defer r.s.chatMu.RUnlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return conversation.Conversation{}, upforit_errors.ErrNotFound
	}
	return cloneConversation(c), nil
}

func (r conversationRepo) AddMember(ctx context.Context, conversationID, userID string) error {
	if !r.s.userExists(userID) {
		return upforit_errors.ErrNotFound
	}
	r.s.chatMu.Lock()
	defer r.s.chatMu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return upforit_errors.ErrNotFound
	}
	if !c.HasMember(userID) {
		c.MemberIDs = append(c.MemberIDs, userID)
		slices.Sort(c.MemberIDs)
	}
	return nil
}

func (r conversationRepo) GetDirectConversations(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	return r.listByKind(userID, conversation.KindDirect), nil
}

func (r conversationRepo) GetGroupConversations(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	return r.listByKind(userID, conversation.KindGroup), nil
}

func (r conversationRepo) listByKind(userID string, kind conversation.Kind) []conversation.Conversation {
	r.s.chatMu.RLock()
	defer r.s.chatMu.RUnlock()
	var out []conversation.Conversation
	for _, c := range r.s.conversations {
		if c.Kind == kind && c.HasMember(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r conversationRepo) MarkRead(ctx context.Context, userID, conversationID string, at time.Time) error {
	r.s.chatMu.Lock()
	defer r.s.chatMu.Unlock()
	if _, ok := r.s.conversations[conversationID]; !ok {
		return upforit_errors.ErrNotFound
	}
	key := readKey{userID, conversationID}
	if at.After(r.s.readStates[key]) {
		r.s.readStates[key] = at
	}
	return nil
}

// --- messages ---

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, m *conversation.Message) error {
	if m.Text == "" {
		return upforit_errors.ErrInvalidInput
	}
	if !r.s.userExists(m.SenderID) {
		return upforit_errors.ErrNotFound
	}
	r.s.chatMu.Lock()
	defer r.s.chatMu.Unlock()
	if _, ok := r.s.conversations[m.ConversationID]; !ok {
		return upforit_errors.ErrNotFound
	}

	at := r.s.now()
	if existing := r.s.messages[m.ConversationID]; len(existing) > 0 {
		if last := existing[len(existing)-1].CreatedAt; !at.After(last) {
			at = last.Add(time.Microsecond)
		}
	}
	m.CreatedAt = at
	r.s.messages[m.ConversationID] = append(r.s.messages[m.ConversationID], *m)
	return nil
}

func (r messageRepo) GetLatest(ctx context.Context, conversationID string) (conversation.Message, error) {
	r.s.chatMu.RLock()
	defer r.s.chatMu.RUnlock()
	msgs := r.s.messages[conversationID]
	if len(msgs) == 0 {
		return conversation.Message{}, upforit_errors.ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (r messageRepo) List(ctx context.Context, conversationID string, before time.Time, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	r.s.chatMu.RLock()
	defer r.s.chatMu.RUnlock()
	msgs := r.s.messages[conversationID]
	var out []conversation.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if before.IsZero() || msgs[i].CreatedAt.Before(before) {
			out = append(out, msgs[i])
		}
	}
	return out, nil
}

func (r messageRepo) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	r.s.chatMu.RLock()
	defer r.s.chatMu.RUnlock()
	return r.s.countUnreadLocked(conversationID, userID), nil
}

func (r messageRepo) CountUnreadTotal(ctx context.Context, userID string) (int, error) {
	r.s.chatMu.RLock()
	defer r.s.chatMu.RUnlock()
	total := 0
	for id, c := range r.s.conversations {
		if c.HasMember(userID) {
			total += r.s.countUnreadLocked(id, userID)
		}
	}
	return total, nil
}

func (s *Store) countUnreadLocked(conversationID, userID string) int {
	lastRead, hasRead := s.readStates[readKey{userID, conversationID}]
	n := 0
	for _, m := range s.messages[conversationID] {
		if m.SenderID == userID {
			continue
		}
		if !hasRead || m.CreatedAt.After(lastRead) {
			n++
		}
	}
	return n
}

// --- outbox ---

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(ctx context.Context, event *outbox.OutboxEvent) error {
	r.s.outboxMu.Lock()
	defer r.s.outboxMu.Unlock()
	now := r.s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = outbox.StatusPending
	}
	for _, e := range r.s.outbox {
		if e.ID == event.ID {
			return upforit_errors.ErrAlreadyExists
		}
	}
	stored := *event
	r.s.outbox = append(r.s.outbox, &stored)
	return nil
}

func (r outboxRepo) GetPending(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error) {
	r.s.outboxMu.Lock()
	defer r.s.outboxMu.Unlock()
	var out []outbox.OutboxEvent
	for _, e := range r.s.outbox {
		if len(out) >= limit {
			break
		}
		if (e.Status == outbox.StatusPending || e.Status == outbox.StatusFailed) && e.RetryCount < maxRetries {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r outboxRepo) update(id string, fn func(e *outbox.OutboxEvent)) error {
	r.s.outboxMu.Lock()
	defer r.s.outboxMu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			fn(e)
			e.UpdatedAt = r.s.now()
			return nil
		}
	}
	return upforit_errors.ErrNotFound
}

func (r outboxRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.update(id, func(e *outbox.OutboxEvent) { e.Status = outbox.StatusProcessing })
}

func (r outboxRepo) MarkCompleted(ctx context.Context, id string) error {
	return r.update(id, func(e *outbox.OutboxEvent) {
		now := r.s.now()
		e.Status = outbox.StatusCompleted
		e.ProcessedAt = &now
		e.Error = ""
	})
}

func (r outboxRepo) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	return r.update(id, func(e *outbox.OutboxEvent) {
		e.Status = outbox.StatusFailed
		e.Error = errorMsg
	})
}

func (r outboxRepo) IncrementRetry(ctx context.Context, id string) error {
	return r.update(id, func(e *outbox.OutboxEvent) { e.RetryCount++ })
}
