package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("search not found")
	// ErrHasResponses blocks deletion of a search that responses still
	// reference; history must be kept intact.
	ErrHasResponses = errors.New("search has recorded responses")
)

// Status of a saved search. A search in StatusError is never auto-recovered;
// Reactivate is the only way back to StatusActive.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ParseStatus converts a raw string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusActive, StatusPaused, StatusCompleted, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown search status %q", s)
}

// LetterMode selects how the cover letter for each application is produced.
// Modeled as a closed enum so adding a mode forces every dispatch site to be
// revisited.
type LetterMode string

const (
	// LetterModeDefault renders the deterministic built-in template.
	LetterModeDefault LetterMode = "default"
	// LetterModeCustom sends the user-supplied CoverLetter text verbatim.
	LetterModeCustom LetterMode = "custom"
	// LetterModeAI asks the language model, falling back to the default
	// template when generation fails.
	LetterModeAI LetterMode = "ai_generated"
)

func ParseLetterMode(s string) (LetterMode, error) {
	m := LetterMode(s)
	switch m {
	case LetterModeDefault, LetterModeCustom, LetterModeAI:
		return m, nil
	}
	return "", fmt.Errorf("unknown letter mode %q", s)
}

// SalaryRange in the search criteria. From acts as the platform-side salary
// floor; To is informational.
type SalaryRange struct {
	From     int
	To       int
	Currency string
}

// Criteria mirrors the platform's vacancy search parameters.
type Criteria struct {
	Keywords        string
	ExcludeKeywords string
	AreaIDs         []string
	Salary          SalaryRange
	Experience      string
	Schedule        string
	Employment      string
	Specializations []string
	Industries      []string
}

// LastError keeps the most recent search-level failure for the user to see.
type LastError struct {
	Message string
	At      time.Time
}

// Search is one saved auto-response configuration. Runtime fields are mutated
// only by the scheduler; criteria and limits only through the user-facing
// use case.
type Search struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string

	Criteria Criteria

	LetterMode  LetterMode
	CoverLetter string    // used when LetterMode == LetterModeCustom
	ResumeID    uuid.UUID // optional explicit resume; zero value means "use primary"

	DailyLimit  int // max applications per UTC day for this search
	TotalLimit  int // lifetime cap; reaching it completes the search
	RunInterval int // minutes between runs

	Status           Status
	ResponsesCount   int
	InvitationsCount int
	RejectionsCount  int
	LastRunAt        time.Time
	NextRunAt        time.Time
	ErrorCount       int
	LastError        *LastError

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunStats is what one completed processing cycle reports back.
type RunStats struct {
	Sent   int
	Failed int
}

// Repository is the persistence port for searches.
type Repository interface {
	Create(ctx context.Context, s Search) error
	GetByID(ctx context.Context, id uuid.UUID) (Search, error)
	GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (Search, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Search, error)
	Update(ctx context.Context, s Search) error
	// Delete removes a search; implementations return ErrHasResponses when
	// response records still reference it.
	Delete(ctx context.Context, ownerID, id uuid.UUID) error

	// DueForRun returns active searches whose next_run_at is unset or has
	// passed, oldest first.
	DueForRun(ctx context.Context, now time.Time) ([]Search, error)

	// Runtime mutators used by the scheduler.
	SetNextRun(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordRunSuccess(ctx context.Context, id uuid.UUID, stats RunStats, lastRun, nextRun time.Time) error
	// RecordRunError increments error_count, stores the message, and flips
	// status to StatusError once the count reaches threshold. It reports
	// whether this call caused the flip.
	RecordRunError(ctx context.Context, id uuid.UUID, msg string, at time.Time, threshold int) (escalated bool, err error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, ownerID, id uuid.UUID, st Status) error
	// IncrementOutcome bumps invitations_count or rejections_count when
	// reconciliation resolves a response.
	IncrementOutcome(ctx context.Context, id uuid.UUID, invited bool) error
}
