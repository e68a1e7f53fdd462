package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

// deliver executes one delivery attempt for a claimed (in_flight)
// notification and records the outcome. It is the only code path that moves
// a notification out of in_flight.
func (e *Engine) deliver(ctx context.Context, n notification.Notification, key ratelimit.Key, limit int) SendResult {
	now := e.now()
	if n.IsExpired(now) {
		return e.fail(ctx, n, errors.New("notification expired before delivery"), false)
	}

	endpoint, err := e.endpoints.Active(ctx, n.UserID, n.Channel)
	if err != nil {
		if errors.Is(err, notification.ErrEndpointNotFound) {
			n.LastError = "no active endpoint for channel"
			return e.terminate(ctx, n, ReasonNoActiveChannel)
		}
		return e.fail(ctx, n, err, true)
	}

	content := e.render(n)

	adapter, err := e.registry.Get(n.Channel)
	if err != nil {
		n.LastError = err.Error()
		return e.terminate(ctx, n, ReasonNoActiveChannel)
	}

	e.sem <- struct{}{}
	result, sendErr := adapter.Send(ctx, endpoint.Address, content, channel.Options{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Metadata:       endpoint.Metadata,
	})
	<-e.sem

	if sendErr != nil {
		if channel.Permanent(sendErr) {
			if derr := e.endpoints.Deactivate(ctx, n.UserID, n.Channel, endpoint.Address); derr != nil {
				e.logError(ctx, "failed to deactivate endpoint", derr,
					logger.UserID(n.UserID), logger.Endpoint(endpoint.Address))
			}
		}
		return e.fail(ctx, n, sendErr, channel.Retryable(sendErr))
	}

	if !e.countFailedAttempts {
		if _, rerr := e.limiter.Reserve(ctx, key, limit); rerr != nil {
			e.logError(ctx, "failed to reserve rate limit slot", rerr, logger.UserID(n.UserID))
		}
	}

	n.Status = notification.StatusSent
	n.ExternalID = result.ExternalID
	n.LastError = ""
	n.NextRetryAt = nil
	n.UpdatedAt = e.now()
	// In-app sessions have no provider hop; a live hand-off is already in
	// front of the user.
	if n.Channel == notification.ChannelInApp && !result.Queued {
		n.Status = notification.StatusDelivered
	}

	ev := e.newEvent(n.ID, notification.EventSent, map[string]any{"endpoint": endpoint.Address})
	if err := e.store.Transition(ctx, &n, &ev); err != nil {
		e.logError(ctx, "failed to record sent transition", err, logger.NotificationID(n.ID.String()))
		return SendResult{NotificationID: n.ID, Success: false, Reason: ReasonDeliveryFailed, Error: err.Error()}
	}
	if n.Status == notification.StatusDelivered {
		e.appendEvent(ctx, n.ID, notification.EventDelivered, nil)
	}

	if err := e.endpoints.TouchUsed(ctx, n.UserID, n.Channel, endpoint.Address, e.now()); err != nil {
		e.logError(ctx, "failed to touch endpoint", err, logger.Endpoint(endpoint.Address))
	}
	if e.sentHook != nil {
		e.sentHook(n)
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification sent",
		logger.NotificationID(n.ID.String()),
		logger.Channel(string(n.Channel)),
		logger.ExternalID(n.ExternalID))
	return SendResult{NotificationID: n.ID, Success: true, Status: n.Status}
}

// render produces the adapter content from the notification's template or
// its verbatim title and message.
func (e *Engine) render(n notification.Notification) channel.Content {
	content := channel.Content{Title: n.Title, Message: n.Message, Data: n.Data}
	if n.TemplateID == "" {
		return content
	}
	def, ok := e.templates.Get(n.TemplateID)
	if !ok {
		return content
	}
	rendered := def.Render(n.Data)
	if rendered.Subject != "" {
		content.Title = rendered.Subject
	}
	if rendered.Body != "" {
		content.Message = rendered.Body
	}
	content.HTML = rendered.HTML
	return content
}

// fail records a delivery failure: a retryable error below the retry cap
// schedules the next attempt with exponential backoff, anything else is
// terminal.
func (e *Engine) fail(ctx context.Context, n notification.Notification, cause error, retryable bool) SendResult {
	n.LastError = cause.Error()
	n.UpdatedAt = e.now()

	if retryable && n.RetryCount < e.maxRetries {
		n.RetryCount++
		next := e.now().Add(e.backoffBase * time.Duration(1<<n.RetryCount))
		n.NextRetryAt = &next
		n.Status = notification.StatusPending

		ev := e.newEvent(n.ID, notification.EventFailed, map[string]any{
			"error":         cause.Error(),
			"retry_count":   n.RetryCount,
			"next_retry_at": next,
		})
		if err := e.store.Transition(ctx, &n, &ev); err != nil {
			e.logError(ctx, "failed to schedule retry", err, logger.NotificationID(n.ID.String()))
		}
		e.logger.LogAttrs(ctx, slog.LevelWarn, "delivery failed, retry scheduled",
			logger.NotificationID(n.ID.String()),
			logger.Channel(string(n.Channel)),
			logger.RetryCount(n.RetryCount),
			logger.Error(cause))
		return SendResult{NotificationID: n.ID, Success: false, Status: notification.StatusPending, Reason: ReasonDeliveryFailed, Error: cause.Error()}
	}

	return e.terminate(ctx, n, ReasonDeliveryFailed)
}

// terminate moves the notification to failed and records the final event.
func (e *Engine) terminate(ctx context.Context, n notification.Notification, reason string) SendResult {
	n.Status = notification.StatusFailed
	n.NextRetryAt = nil
	n.UpdatedAt = e.now()

	ev := e.newEvent(n.ID, notification.EventFailed, map[string]any{
		"error":  n.LastError,
		"reason": reason,
	})
	if err := e.store.Transition(ctx, &n, &ev); err != nil {
		e.logError(ctx, "failed to record terminal failure", err, logger.NotificationID(n.ID.String()))
	}
	e.logger.LogAttrs(ctx, slog.LevelError, "notification delivery failed",
		logger.NotificationID(n.ID.String()),
		logger.Channel(string(n.Channel)),
		logger.Reason(reason),
		logger.RetryCount(n.RetryCount))
	return SendResult{NotificationID: n.ID, Success: false, Status: notification.StatusFailed, Reason: reason, Error: n.LastError}
}
