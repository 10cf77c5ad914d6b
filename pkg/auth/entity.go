package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is a domain entity representing a system user.
//
// AccessToken is the user's HH platform credential, stored as an opaque
// string (the OAuth flow that obtains it lives outside this service).
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	AccessToken  string
	Subscription Subscription
	IsAdmin      bool
	CreatedAt    time.Time
}

// Subscription tracks the plan-level response quota. ResponsesUsed is the
// single counter shared by the scheduler and the manual response path.
type Subscription struct {
	Plan           string
	Active         bool
	ResponsesUsed  int
	ResponsesLimit int
}

// QuotaRemaining returns how many responses the plan still allows.
func (s Subscription) QuotaRemaining() int {
	if !s.Active {
		return 0
	}
	if rem := s.ResponsesLimit - s.ResponsesUsed; rem > 0 {
		return rem
	}
	return 0
}
