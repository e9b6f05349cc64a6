package domain

import "time"

// EventSessionCheck is recorded for every session-audit call.
const EventSessionCheck = "session_check"

// AuditEntry is one append-only audit record. Entries are never mutated or
// deleted by this service.
type AuditEntry struct {
	ID        string
	UserID    string
	Event     string
	Details   map[string]any
	IPAddress string
	CreatedAt time.Time
}
