package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store, EventStore,
// PreferenceStore and EndpointStore. Suitable for development and testing;
// the postgres implementation is the production system of record.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
	byUser        map[string][]uuid.UUID
	events        map[uuid.UUID][]Event
	preferences   map[string]Preference // userID|channel|category
	endpoints     map[string][]Endpoint // userID|channel
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[uuid.UUID]*Notification),
		byUser:        make(map[string][]uuid.UUID),
		events:        make(map[uuid.UUID][]Event),
		preferences:   make(map[string]Preference),
		endpoints:     make(map[string][]Endpoint),
	}
}

func prefKey(userID string, ch Channel, cat Category) string {
	return strings.Join([]string{userID, string(ch), string(cat)}, "|")
}

func endpointKey(userID string, ch Channel) string {
	return userID + "|" + string(ch)
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	if n == nil {
		return errors.New("notification cannot be nil")
	}
	if n.ID == uuid.Nil {
		return errors.New("notification ID is required")
	}
	if n.UserID == "" {
		return errors.New("user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; exists {
		return errors.New("notification already exists")
	}

	cp := cloneNotification(n)
	s.notifications[n.ID] = cp
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func (s *MemoryStore) GetByExternalID(ctx context.Context, ch Channel, externalID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications {
		if n.Channel == ch && n.ExternalID == externalID {
			return cloneNotification(n), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !claimable(n, now) {
		return nil, ErrAlreadyClaimed
	}

	n.Status = StatusInFlight
	n.UpdatedAt = now
	return cloneNotification(n), nil
}

func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Notification
	for _, n := range s.notifications {
		if claimable(n, now) && isDue(n, now) {
			due = append(due, n)
		}
	}
	// Oldest first so starved retries are picked up before fresh work.
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Notification, 0, len(due))
	for _, n := range due {
		n.Status = StatusInFlight
		n.UpdatedAt = now
		claimed = append(claimed, *cloneNotification(n))
	}
	return claimed, nil
}

// claimable reports whether the row may move to in_flight. Terminal rows and
// rows already in flight are excluded, which makes cancellation effective as
// long as it lands before the claim.
func claimable(n *Notification, now time.Time) bool {
	switch n.Status {
	case StatusPending:
		return true
	case StatusScheduled:
		return n.ScheduledAt != nil && !n.ScheduledAt.After(now)
	}
	return false
}

// isDue applies the scheduler's due test on top of claimable.
func isDue(n *Notification, now time.Time) bool {
	if n.Status == StatusPending && n.NextRetryAt != nil {
		return !n.NextRetryAt.After(now)
	}
	return true
}

func (s *MemoryStore) Transition(ctx context.Context, n *Notification, ev *Event) error {
	if n == nil {
		return errors.New("notification cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.notifications[n.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status.Terminal() {
		return ErrInvalidTransition
	}

	// Both writes happen under one lock, mirroring the single transaction
	// the postgres store uses for the status+event pair.
	s.notifications[n.ID] = cloneNotification(n)
	if ev != nil {
		s.appendLocked(*ev)
	}
	return nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id uuid.UUID, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	if n.Status != StatusScheduled {
		return ErrInvalidTransition
	}

	n.Status = StatusCancelled
	n.UpdatedAt = now
	return nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	filtered := make([]Notification, 0, len(ids))
	for _, id := range ids {
		n := s.notifications[id]
		if opts.Channel != "" && n.Channel != opts.Channel {
			continue
		}
		if opts.Category != "" && n.Category != opts.Category {
			continue
		}
		if opts.UnreadOnly && n.Read() {
			continue
		}
		filtered = append(filtered, *cloneNotification(n))
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.byUser[userID] {
		n := s.notifications[id]
		if n.Channel == ChannelInApp && !n.Read() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, userID string, now time.Time, ids ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || n.UserID != userID || n.Read() {
			continue
		}
		at := now
		n.ReadAt = &at
		n.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byUser[userID] {
		n := s.notifications[id]
		if n.Read() {
			continue
		}
		at := now
		n.ReadAt = &at
		n.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(ev)
	return nil
}

func (s *MemoryStore) appendLocked(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	s.events[ev.NotificationID] = append(s.events[ev.NotificationID], ev)
}

func (s *MemoryStore) ListByNotification(ctx context.Context, id uuid.UUID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[id]
	out := make([]Event, len(evs))
	copy(out, evs)
	return out, nil
}

func (s *MemoryStore) GetPreference(ctx context.Context, userID string, ch Channel, cat Category) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.preferences[prefKey(userID, ch, cat)]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (s *MemoryStore) ListPreferences(ctx context.Context, userID string) ([]Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Preference
	for _, p := range s.preferences {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *MemoryStore) SetPreference(ctx context.Context, p Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[prefKey(p.UserID, p.Channel, p.Category)] = p
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, e Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := endpointKey(e.UserID, e.Channel)
	for i, cur := range s.endpoints[key] {
		if cur.Address == e.Address {
			if e.CreatedAt.IsZero() {
				e.CreatedAt = cur.CreatedAt
			}
			s.endpoints[key][i] = e
			return nil
		}
	}
	s.endpoints[key] = append(s.endpoints[key], e)
	return nil
}

func (s *MemoryStore) Active(ctx context.Context, userID string, ch Channel) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Endpoint
	for i := range s.endpoints[endpointKey(userID, ch)] {
		e := &s.endpoints[endpointKey(userID, ch)][i]
		if !e.Eligible() {
			continue
		}
		if best == nil || lastUsedAfter(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrEndpointNotFound
	}
	cp := *best
	return &cp, nil
}

// lastUsedAfter prefers the endpoint with the most recent use; never-used
// endpoints lose to used ones and fall back to creation order.
func lastUsedAfter(a, b *Endpoint) bool {
	switch {
	case a.LastUsedAt != nil && b.LastUsedAt != nil:
		return a.LastUsedAt.After(*b.LastUsedAt)
	case a.LastUsedAt != nil:
		return true
	case b.LastUsedAt != nil:
		return false
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

func (s *MemoryStore) Deactivate(ctx context.Context, userID string, ch Channel, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := endpointKey(userID, ch)
	for i := range s.endpoints[key] {
		if s.endpoints[key][i].Address == address {
			s.endpoints[key][i].IsActive = false
			return nil
		}
	}
	return ErrEndpointNotFound
}

func (s *MemoryStore) TouchUsed(ctx context.Context, userID string, ch Channel, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := endpointKey(userID, ch)
	for i := range s.endpoints[key] {
		if s.endpoints[key][i].Address == address {
			t := at
			s.endpoints[key][i].LastUsedAt = &t
			return nil
		}
	}
	return ErrEndpointNotFound
}

func cloneNotification(n *Notification) *Notification {
	cp := *n
	if n.Data != nil {
		cp.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			cp.Data[k] = v
		}
	}
	return &cp
}
