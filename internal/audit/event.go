package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sabha-admin/sabha/internal/identity"
)

// EventType classifies a security event.
type EventType string

// Security event types.
const (
	EventFailedLogin        EventType = "failed_login"
	EventSuccessfulLogin    EventType = "successful_login"
	EventLogout             EventType = "logout"
	EventRoleChange         EventType = "role_change"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventValidationFailure  EventType = "validation_failure"
	EventFileUploadFailure  EventType = "file_upload_failure"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
)

// EventTypes lists every known event type in display order.
func EventTypes() []EventType {
	return []EventType{
		EventFailedLogin,
		EventSuccessfulLogin,
		EventLogout,
		EventRoleChange,
		EventUnauthorizedAccess,
		EventValidationFailure,
		EventFileUploadFailure,
		EventRateLimitExceeded,
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Event is an immutable, append-only security record.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	Actor     string
	Subject   string
	Metadata  map[string]string
	Timestamp time.Time
}

// Recorder accepts security events without blocking the caller.
type Recorder interface {
	Record(event Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Event)

// Record calls f(event).
func (f RecorderFunc) Record(event Event) {
	f(event)
}

// Discard drops every event.
var Discard Recorder = RecorderFunc(func(Event) {})

// NewEvent builds an event for actor; an empty actor becomes the anonymous marker.
func NewEvent(typ EventType, actor, subject string, metadata map[string]string) Event {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = identity.Anonymous
	}
	return Event{
		Type:     typ,
		Actor:    actor,
		Subject:  subject,
		Metadata: metadata,
	}
}

// UnauthorizedAccess records a gate denial for (module, action).
func UnauthorizedAccess(actor, module, action string, metadata map[string]string) Event {
	md := map[string]string{"module": module, "action": action}
	for k, v := range metadata {
		md[k] = v
	}
	return NewEvent(EventUnauthorizedAccess, actor, Subject(module, action), md)
}

// ValidationFailure records a rejected input. Only shape information of the
// offending value is kept.
func ValidationFailure(actor, field, kind, reason string, length int) Event {
	return NewEvent(EventValidationFailure, actor, field, map[string]string{
		"field":  field,
		"kind":   kind,
		"reason": reason,
		"length": strconv.Itoa(length),
	})
}

// RoleChange records an administrative role or grant mutation.
func RoleChange(actor, role, change string, metadata map[string]string) Event {
	md := map[string]string{"role": role, "change": change}
	for k, v := range metadata {
		md[k] = v
	}
	return NewEvent(EventRoleChange, actor, "roles:"+role, md)
}

// Subject formats a module/action pair.
func Subject(module, action string) string {
	return module + ":" + action
}

var sensitiveKeys = []string{"password", "secret", "token", "credential"}

// scrubMetadata copies md without keys that may carry sensitive input.
func scrubMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		lower := strings.ToLower(k)
		sensitive := false
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			out[k] = v
		}
	}
	return out
}
