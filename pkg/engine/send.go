package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

// SendRequest describes one notification to deliver. Either TemplateID or a
// verbatim Title/Message must be set; template data is substituted from Data.
type SendRequest struct {
	UserID      string                `json:"user_id"`
	Channel     notification.Channel  `json:"channel"`
	Category    notification.Category `json:"category,omitempty"`
	Priority    notification.Priority `json:"priority,omitempty"`
	TemplateID  string                `json:"template_id,omitempty"`
	Title       string                `json:"title,omitempty"`
	Message     string                `json:"message,omitempty"`
	Data        map[string]any        `json:"data,omitempty"`
	ScheduledAt *time.Time            `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
}

// SendResult reports the outcome of a Send call. Rejections are results,
// not errors: Success is false and Reason carries a stable machine-readable
// cause.
type SendResult struct {
	NotificationID uuid.UUID           `json:"notification_id,omitempty"`
	Success        bool                `json:"success"`
	Status         notification.Status `json:"status,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Error          string              `json:"error,omitempty"`
}

func rejected(reason string) SendResult {
	return SendResult{Success: false, Reason: reason}
}

// Send runs the full acceptance pipeline for one notification: validation,
// preference check, rate limit, persistence, then synchronous delivery
// unless the notification is scheduled for later.
func (e *Engine) Send(ctx context.Context, req SendRequest) SendResult {
	if req.UserID == "" || !req.Channel.Valid() {
		return rejected(ReasonInvalidRequest)
	}
	if req.TemplateID == "" && req.Message == "" {
		return rejected(ReasonInvalidRequest)
	}
	if req.Category == "" {
		req.Category = notification.CategoryTransactional
	}
	if req.Priority == "" {
		req.Priority = notification.PriorityNormal
	}

	pref, err := e.prefs.GetPreference(ctx, req.UserID, req.Channel, req.Category)
	if err != nil && !errors.Is(err, notification.ErrNotFound) {
		return SendResult{Success: false, Reason: ReasonInvalidRequest, Error: err.Error()}
	}
	if !pref.Allowed() {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "notification blocked by preference",
			logger.UserID(req.UserID), logger.Channel(string(req.Channel)), logger.Category(string(req.Category)))
		return rejected(ReasonBlockedByPref)
	}

	key := ratelimit.Key{UserID: req.UserID, Channel: string(req.Channel), Category: string(req.Category)}
	limit := pref.FrequencyLimit()
	rl, err := e.limiter.Check(ctx, key, limit)
	if err != nil {
		return SendResult{Success: false, Reason: ReasonRateLimitExceeded, Error: err.Error()}
	}
	if !rl.Allowed {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "notification rate limited",
			logger.UserID(req.UserID), logger.Channel(string(req.Channel)), logger.Category(string(req.Category)))
		return rejected(ReasonRateLimitExceeded)
	}

	now := e.now()
	n := notification.Notification{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Channel:     req.Channel,
		Category:    req.Category,
		Priority:    req.Priority,
		TemplateID:  req.TemplateID,
		Title:       req.Title,
		Message:     req.Message,
		Data:        req.Data,
		Status:      notification.StatusPending,
		ScheduledAt: req.ScheduledAt,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	deferred := req.ScheduledAt != nil && req.ScheduledAt.After(now)
	if deferred {
		n.Status = notification.StatusScheduled
	}

	if err := e.store.Create(ctx, &n); err != nil {
		return SendResult{Success: false, Reason: ReasonInvalidRequest, Error: errors.Join(ErrStoreUnavailable, err).Error()}
	}
	e.appendEvent(ctx, n.ID, notification.EventCreated, nil)

	if deferred {
		return SendResult{NotificationID: n.ID, Success: true, Status: notification.StatusScheduled}
	}

	if e.countFailedAttempts {
		if _, err := e.limiter.Reserve(ctx, key, limit); err != nil {
			e.logError(ctx, "failed to reserve rate limit slot", err, logger.UserID(req.UserID))
		}
	}

	claimed, err := e.store.Claim(ctx, n.ID, e.now())
	if err != nil {
		return SendResult{NotificationID: n.ID, Success: false, Reason: ReasonDeliveryFailed, Error: err.Error()}
	}
	return e.deliver(ctx, *claimed, key, limit)
}

// BulkResult aggregates the per-item outcomes of a SendBulk call. Results
// are positionally aligned with the input requests.
type BulkResult struct {
	Results   []SendResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// SendBulk runs each request through the full acceptance pipeline. One
// rejected item never aborts the batch.
func (e *Engine) SendBulk(ctx context.Context, reqs []SendRequest) BulkResult {
	out := BulkResult{Results: make([]SendResult, len(reqs))}
	for i, req := range reqs {
		out.Results[i] = e.Send(ctx, req)
		if out.Results[i].Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out
}

func (e *Engine) newEvent(id uuid.UUID, typ notification.EventType, data map[string]any) notification.Event {
	return notification.Event{
		ID:             uuid.New(),
		NotificationID: id,
		Type:           typ,
		Data:           data,
		Timestamp:      e.now(),
	}
}

func (e *Engine) appendEvent(ctx context.Context, id uuid.UUID, typ notification.EventType, data map[string]any) {
	ev := e.newEvent(id, typ, data)
	if err := e.events.Append(ctx, ev); err != nil {
		e.logError(ctx, "failed to append notification event", err,
			logger.NotificationID(id.String()), logger.EventType(string(typ)))
	}
}
