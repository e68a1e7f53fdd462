package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// NotificationID records the notification identifier under the key
// "notification_id".
func NotificationID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("notification_id", id)
}

// Channel records the delivery channel under the key "channel".
func Channel(ch any) slog.Attr {
	return slog.Any("channel", ch)
}

// Category records the notification category under the key "category".
func Category(cat any) slog.Attr {
	return slog.Any("category", cat)
}

// Endpoint records the delivery address under the key "endpoint".
func Endpoint(addr string) slog.Attr {
	return slog.String("endpoint", addr)
}

// ExternalID records the provider tracking identifier under the key
// "external_id".
func ExternalID(id string) slog.Attr {
	return slog.String("external_id", id)
}

// EventType records the lifecycle event type under the key "event_type".
func EventType(t any) slog.Attr {
	return slog.Any("event_type", t)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Reason records a structured result reason under the key "reason".
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}

// Status records a lifecycle status under the key "status".
func Status(s any) slog.Attr {
	return slog.Any("status", s)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
