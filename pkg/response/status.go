// Package response holds the application-attempt record and its lifecycle.
//
// Valid status graph:
//
//	pending ──► sent ──► viewed ──► invited
//	    │         │  │       │ └──► rejected
//	    │         │  └───────┴────► expired
//	    └─────────┴───────────────► error
//
// invited, rejected, expired and error are terminal states.
package response

import "fmt"

// Status values mirror the response_status enum in PostgreSQL.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusViewed   Status = "viewed"
	StatusInvited  Status = "invited"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

// validTransitions lists every allowed (from → to) pair. Reconciliation
// relies on this map to never regress a record.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusError},
	StatusSent:    {StatusViewed, StatusInvited, StatusRejected, StatusExpired, StatusError},
	StatusViewed:  {StatusInvited, StatusRejected, StatusExpired},
	// invited, rejected, expired, error are terminal — no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusSent, StatusViewed, StatusInvited, StatusRejected, StatusExpired, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown response status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}
