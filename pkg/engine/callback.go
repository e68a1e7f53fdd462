package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Callback is a provider delivery-status report, correlated to a
// notification by the provider-assigned external ID.
type Callback struct {
	ExternalID string         `json:"external_id"`
	Status     string         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Provider callback statuses.
const (
	CallbackDelivered = "delivered"
	CallbackFailed    = "failed"
	CallbackBounced   = "bounced"
)

// HandleCallback applies a provider delivery report. Only notifications in
// sent react to callbacks; reports arriving after a terminal state are
// recorded as events but change nothing else.
func (e *Engine) HandleCallback(ctx context.Context, ch notification.Channel, cb Callback) error {
	if cb.ExternalID == "" {
		return ErrUnknownExternalID
	}
	n, err := e.store.GetByExternalID(ctx, ch, cb.ExternalID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return ErrUnknownExternalID
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	if n.Status != notification.StatusSent {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "callback for non-sent notification ignored",
			logger.NotificationID(n.ID.String()),
			logger.Status(string(n.Status)),
			logger.ExternalID(cb.ExternalID))
		e.appendEvent(ctx, n.ID, callbackEventType(cb.Status), cb.Metadata)
		return nil
	}

	switch cb.Status {
	case CallbackDelivered:
		n.Status = notification.StatusDelivered
		n.UpdatedAt = e.now()
		ev := e.newEvent(n.ID, notification.EventDelivered, cb.Metadata)
		if err := e.store.Transition(ctx, n, &ev); err != nil {
			return errors.Join(ErrStoreUnavailable, err)
		}
	case CallbackFailed, CallbackBounced:
		n.Status = notification.StatusFailed
		n.LastError = cb.Reason
		n.UpdatedAt = e.now()
		ev := e.newEvent(n.ID, callbackEventType(cb.Status), map[string]any{"reason": cb.Reason})
		if err := e.store.Transition(ctx, n, &ev); err != nil {
			return errors.Join(ErrStoreUnavailable, err)
		}
	default:
		e.appendEvent(ctx, n.ID, callbackEventType(cb.Status), cb.Metadata)
		return nil
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "delivery callback applied",
		logger.NotificationID(n.ID.String()),
		logger.Channel(string(ch)),
		logger.Status(string(n.Status)))
	return nil
}

func callbackEventType(status string) notification.EventType {
	switch status {
	case CallbackDelivered:
		return notification.EventDelivered
	case CallbackBounced:
		return notification.EventBounced
	case CallbackFailed:
		return notification.EventFailed
	default:
		return notification.EventType(status)
	}
}

// TrackOpen records an email-open beacon hit. Unknown IDs are silently
// ignored so the tracking pixel never leaks whether an ID exists.
func (e *Engine) TrackOpen(ctx context.Context, id uuid.UUID) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return
	}
	e.appendEvent(ctx, id, notification.EventOpened, nil)
}

// TrackClick records a tracked-link click.
func (e *Engine) TrackClick(ctx context.Context, id uuid.UUID, url string) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return
	}
	var data map[string]any
	if url != "" {
		data = map[string]any{"url": url}
	}
	e.appendEvent(ctx, id, notification.EventClicked, data)
}
