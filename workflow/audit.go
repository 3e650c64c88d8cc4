/*
audit.go - Append-only workflow audit trail

PURPOSE:
  Every successful transition is followed, in the same logical operation, by
  exactly one log append. Entries are never mutated or deleted. A transition
  that fails validation writes nothing.

SEE ALSO:
  - transition.go: The validation that precedes every append
*/
package workflow

import (
	"context"
	"time"
)

// LogEntry records one state transition: who moved what from where to where.
type LogEntry struct {
	ID         string
	OrgID      string
	EntityKind Kind
	EntityID   string
	FromState  State
	ToState    State
	ActorID    string
	Payload    map[string]any
	CreatedAt  time.Time
}

// AuditLog stores transition log entries. Append-only: no update, no delete.
type AuditLog interface {
	AppendLog(ctx context.Context, entry LogEntry) error
	ListLogs(ctx context.Context, orgID string, filter LogFilter) ([]LogEntry, error)
}

// LogFilter narrows ListLogs. Nil fields match everything.
type LogFilter struct {
	EntityKind *Kind
	EntityID   *string
	ActorID    *string
}
