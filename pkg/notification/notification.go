package notification

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail       Channel = "email"
	ChannelSMS         Channel = "sms"
	ChannelPushIOS     Channel = "push_ios"
	ChannelPushAndroid Channel = "push_android"
	ChannelPushWeb     Channel = "push_web"
	ChannelInApp       Channel = "in_app"
)

// Channels lists all known delivery channels.
var Channels = []Channel{
	ChannelEmail,
	ChannelSMS,
	ChannelPushIOS,
	ChannelPushAndroid,
	ChannelPushWeb,
	ChannelInApp,
}

// Valid reports whether the channel is one of the known delivery media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPushIOS, ChannelPushAndroid, ChannelPushWeb, ChannelInApp:
		return true
	}
	return false
}

// Category classifies a notification for preference and rate-limit purposes.
// The set is open: unknown categories are accepted as-is.
type Category string

const (
	CategoryTransactional Category = "transactional"
	CategoryMarketing     Category = "marketing"
	CategorySystem        Category = "system"
	CategoryReminder      Category = "reminder"
)

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusInFlight  Status = "in_flight"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Notification is one logical message destined for one user through one channel.
type Notification struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"user_id"`
	Channel     Channel        `json:"channel"`
	Category    Category       `json:"category"`
	Priority    Priority       `json:"priority"`
	Title       string         `json:"title,omitempty"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	TemplateID  string         `json:"template_id,omitempty"`
	Status      Status         `json:"status"`
	ExternalID  string         `json:"external_id,omitempty"`
	RetryCount  int            `json:"retry_count"`
	LastError   string         `json:"last_error,omitempty"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsExpired returns true if the notification has expired at the given instant.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt == nil {
		return false
	}
	return now.After(*n.ExpiresAt)
}

// Read reports whether the notification has been read (in-app read model only;
// read state is not part of the delivery state machine).
func (n *Notification) Read() bool {
	return n.ReadAt != nil
}

// Preference is the per-user delivery policy for one (channel, category) pair.
// Absence of a stored preference means "enabled, default frequency limit".
type Preference struct {
	UserID    string         `json:"user_id"`
	Channel   Channel        `json:"channel"`
	Category  Category       `json:"category"`
	Enabled   bool           `json:"enabled"`
	Settings  map[string]any `json:"settings,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DefaultFrequencyLimit is the per-day cap applied when a preference row is
// absent or carries no frequency_limit setting.
const DefaultFrequencyLimit = 100

// FrequencyLimit returns the daily frequency cap from the preference settings,
// falling back to DefaultFrequencyLimit. A nil receiver yields the default,
// so callers can use the result of a preference lookup directly.
func (p *Preference) FrequencyLimit() int {
	if p == nil || p.Settings == nil {
		return DefaultFrequencyLimit
	}
	switch v := p.Settings["frequency_limit"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64: // JSON round-trips numbers as float64
		if v > 0 {
			return int(v)
		}
	}
	return DefaultFrequencyLimit
}

// Allowed reports whether delivery is permitted. A nil preference allows.
func (p *Preference) Allowed() bool {
	return p == nil || p.Enabled
}

// Endpoint is a channel-specific address registered by a user: an email
// address, an E.164 phone number, a device token or a session identifier.
type Endpoint struct {
	UserID     string            `json:"user_id"`
	Channel    Channel           `json:"channel"`
	Address    string            `json:"address"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IsActive   bool              `json:"is_active"`
	IsVerified bool              `json:"is_verified"`
	LastUsedAt *time.Time        `json:"last_used_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Eligible reports whether the endpoint may receive deliveries.
func (e *Endpoint) Eligible() bool {
	return e.IsActive && e.IsVerified
}
