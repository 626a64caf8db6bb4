// Package audit records every authorization decision and invocation outcome
// of the tool gateway. The trail is append-only: events are never mutated or
// deleted after insert.
package audit

import (
	"context"
	"time"
)

// Decision is the terminal outcome of one runTool invocation.
type Decision string

const (
	DecisionAllowed   Decision = "allowed"
	DecisionDenied    Decision = "denied"
	DecisionThrottled Decision = "throttled"
	DecisionError     Decision = "error"
)

// Event is one audit record.
type Event struct {
	ID          string
	TenantID    string
	ActorUserID string
	ToolKey     string
	Decision    Decision
	Reason      string
	RunID       string
	RequestID   string
	LatencyMs   float32
	Timestamp   time.Time
}

// Appender persists audit events. Append is called synchronously before the
// dispatcher responds; implementations must bound their own timeouts. A
// returned error is logged and swallowed by the caller, never surfaced as
// the primary error.
type Appender interface {
	Append(ctx context.Context, event *Event) error
	Close()
}
