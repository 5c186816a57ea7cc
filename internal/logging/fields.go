package logging

import "log/slog"

// Common field names for consistent logging across the broker.
const (
	FieldService  = "service"
	FieldUserID   = "uid"
	FieldClientID = "client_id"
	FieldEvent    = "event"
	FieldStage    = "stage"
	FieldCache    = "cache"
	FieldError    = "error"
	FieldDuration = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the subject's user id.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// ClientID returns a slog attribute for the relying-party client id.
func ClientID(id string) slog.Attr {
	return slog.String(FieldClientID, id)
}

// Event returns a slog attribute for the notification event kind.
func Event(kind string) slog.Attr {
	return slog.String(FieldEvent, kind)
}

// Stage returns a slog attribute identifying which handler stage failed.
func Stage(stage string) slog.Attr {
	return slog.String(FieldStage, stage)
}

// Cache returns a slog attribute identifying which self-updating cache is involved.
func Cache(name string) slog.Attr {
	return slog.String(FieldCache, name)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
