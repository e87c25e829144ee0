package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// Provider records the billing provider under the key "provider".
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// CorrelationID records a provider object id under the key "correlation_id".
func CorrelationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("correlation_id", id)
}

// EventType records the provider event name under the key "event_type".
func EventType(eventType string) slog.Attr {
	if eventType == "" {
		return slog.Attr{}
	}
	return slog.String("event_type", eventType)
}

// EventID records the provider delivery id under the key "event_id".
func EventID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("event_id", id)
}

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
