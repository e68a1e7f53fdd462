package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// InAppMessage is the payload delivered to a live in-app session or parked
// in the offline backlog for replay.
type InAppMessage struct {
	ID             string         `json:"id"`
	NotificationID uuid.UUID      `json:"notification_id"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Session is one live real-time connection of a user. Transport layers
// (WebSocket, SSE) read from Receive and must Close on disconnect.
type Session struct {
	userID string
	ch     chan InAppMessage
	once   sync.Once
	closed func(*Session)
}

// Receive returns the session's message stream. The channel closes when the
// session is closed.
func (s *Session) Receive() <-chan InAppMessage {
	return s.ch
}

// Close detaches the session from the presence registry. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		s.closed(s)
		close(s.ch)
	})
}

// DefaultBacklogLimit bounds the per-user offline backlog.
const DefaultBacklogLimit = 100

// InAppAdapter delivers in-app notifications. Users with a live session
// receive messages immediately; offline users get a bounded per-user backlog
// replayed on next connect.
//
// Presence is process-local state with explicit connect/disconnect
// lifecycle. Multi-instance deployments need this registry externalized to a
// shared presence store; that is a deliberate scaling limit of the
// single-process design.
type InAppAdapter struct {
	mu           sync.RWMutex
	sessions     map[string]map[*Session]struct{}
	backlog      map[string][]InAppMessage
	backlogLimit int
	bufferSize   int
	logger       *slog.Logger
}

// InAppOption configures an InAppAdapter.
type InAppOption func(*InAppAdapter)

// WithBacklogLimit sets the per-user offline backlog size.
func WithBacklogLimit(n int) InAppOption {
	return func(a *InAppAdapter) {
		if n > 0 {
			a.backlogLimit = n
		}
	}
}

// WithSessionBuffer sets the per-session channel buffer.
func WithSessionBuffer(n int) InAppOption {
	return func(a *InAppAdapter) {
		if n > 0 {
			a.bufferSize = n
		}
	}
}

// WithInAppLogger sets the logger.
func WithInAppLogger(logger *slog.Logger) InAppOption {
	return func(a *InAppAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewInAppAdapter creates the in-app channel adapter.
func NewInAppAdapter(opts ...InAppOption) *InAppAdapter {
	a := &InAppAdapter{
		sessions:     make(map[string]map[*Session]struct{}),
		backlog:      make(map[string][]InAppMessage),
		backlogLimit: DefaultBacklogLimit,
		bufferSize:   32,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *InAppAdapter) Channel() notification.Channel {
	return notification.ChannelInApp
}

// Connect registers a live session for the user and replays any backlog
// into it. The caller owns the returned session and must Close it on
// disconnect.
func (a *InAppAdapter) Connect(ctx context.Context, userID string) *Session {
	s := &Session{
		userID: userID,
		ch:     make(chan InAppMessage, a.bufferSize),
		closed: a.disconnect,
	}

	a.mu.Lock()
	if a.sessions[userID] == nil {
		a.sessions[userID] = make(map[*Session]struct{})
	}
	a.sessions[userID][s] = struct{}{}
	replay := a.backlog[userID]
	delete(a.backlog, userID)
	a.mu.Unlock()

	for _, msg := range replay {
		select {
		case s.ch <- msg:
		default:
			// Session buffer smaller than the backlog; repark the rest.
			a.mu.Lock()
			a.backlog[userID] = append(a.backlog[userID], msg)
			a.mu.Unlock()
		}
	}

	// Detach automatically when the connection context ends.
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s
}

func (a *InAppAdapter) disconnect(s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if set, ok := a.sessions[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(a.sessions, s.userID)
		}
	}
}

// Online reports whether the user has at least one live session.
func (a *InAppAdapter) Online(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions[userID]) > 0
}

// Send delivers to live sessions or parks the message in the backlog. The
// endpoint is the user identifier; in-app needs no registered address.
func (a *InAppAdapter) Send(ctx context.Context, endpoint string, content Content, opts Options) (*Result, error) {
	userID := opts.UserID
	if userID == "" {
		userID = endpoint
	}

	msg := InAppMessage{
		ID:             "inapp-" + uuid.New().String(),
		NotificationID: opts.NotificationID,
		Title:          content.Title,
		Message:        content.Message,
		Data:           content.Data,
		CreatedAt:      time.Now(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	live := a.sessions[userID]
	if len(live) == 0 {
		a.pushBacklogLocked(userID, msg)
		return &Result{ExternalID: msg.ID, Queued: true}, nil
	}

	for s := range live {
		select {
		case s.ch <- msg:
		default:
			// Slow consumer; drop rather than block the delivery path.
			a.logger.LogAttrs(ctx, slog.LevelWarn, "dropped in-app message for slow session",
				slog.String("user_id", userID),
				slog.String("message_id", msg.ID))
		}
	}
	return &Result{ExternalID: msg.ID}, nil
}

// pushBacklogLocked appends to the bounded backlog, evicting the oldest
// entry once the limit is reached.
func (a *InAppAdapter) pushBacklogLocked(userID string, msg InAppMessage) {
	q := append(a.backlog[userID], msg)
	if len(q) > a.backlogLimit {
		q = q[len(q)-a.backlogLimit:]
	}
	a.backlog[userID] = q
}

// BacklogSize returns the queued message count for a user.
func (a *InAppAdapter) BacklogSize(userID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.backlog[userID])
}
