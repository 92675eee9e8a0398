package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService    = "service"
	FieldIP         = "ip"
	FieldError      = "error"
	FieldUUID       = "uuid"
	FieldRepository = "repository"
	FieldTopic      = "topic"
	FieldReason     = "reason"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// IP returns a slog attribute for the caller IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// UUID returns a slog attribute for an event correlation id.
func UUID(id string) slog.Attr {
	return slog.String(FieldUUID, id)
}

// Repository returns a slog attribute for a repository name.
func Repository(name string) slog.Attr {
	return slog.String(FieldRepository, name)
}

// Topic returns a slog attribute for an event topic.
func Topic(topic string) slog.Attr {
	return slog.String(FieldTopic, topic)
}

// Reason returns a slog attribute for a skip or failure reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}
