package audit

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded in the audit trail.
const (
	ActionIssue   = "issue"
	ActionRedeem  = "redeem"
	ActionConsume = "consume"
	ActionRotate  = "rotate"
	ActionRevoke  = "revoke"
	ActionSignup  = "signup"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor,omitempty"`  // API key id, client id or user id
	Target    string    `json:"target,omitempty"` // Credential id, never the secret value
	Details   string    `json:"details,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes audit events as JSON lines. A nil *Logger drops events.
type Logger struct {
	logger zerolog.Logger
}

// New creates an audit logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{logger: zerolog.New(w).With().Str("stream", "audit").Logger()}
}

// Log records an audit event.
func (l *Logger) Log(e Event) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.logger.Log().
		Time("timestamp", e.Timestamp).
		Str("action", e.Action).
		Str("kind", e.Kind).
		Str("actor", e.Actor).
		Str("target", e.Target).
		Str("details", e.Details).
		Bool("success", e.Success).
		Str("error", e.Error).
		Msg("")
}

// Record is a shorthand for Log that fills Success and Error from err.
func (l *Logger) Record(action, kind, actor, target string, err error) {
	e := Event{Action: action, Kind: kind, Actor: actor, Target: target, Success: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	l.Log(e)
}
