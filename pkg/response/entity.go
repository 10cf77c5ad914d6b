package response

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("response not found")
	// ErrDuplicate is returned when a response for the same
	// (user, search, vacancy) triple already exists. Callers treat it as
	// "already handled", not as a failure.
	ErrDuplicate = errors.New("response already recorded for this vacancy")
)

// Result is set exactly once, when a response reaches terminal resolution.
type Result string

const (
	ResultInvitation Result = "invitation"
	ResultRejection  Result = "rejection"
	ResultNoResponse Result = "no_response"
	ResultExpired    Result = "expired"
)

// Employer as captured at submission time.
type Employer struct {
	Name       string
	ExternalID string
	URL        string
}

// Area as captured at submission time.
type Area struct {
	Name string
	ID   string
}

// Salary as captured at submission time.
type Salary struct {
	From     int
	To       int
	Currency string
	Gross    bool
}

// VacancySnapshot is a denormalized copy of the vacancy taken when the
// application was submitted. Deliberately not a live reference: the source
// vacancy can change or disappear after we apply.
type VacancySnapshot struct {
	ExternalID  string
	Title       string
	Employer    Employer
	Area        Area
	Salary      Salary
	Experience  string
	Schedule    string
	Employment  string
	Description string
	URL         string
	PublishedAt time.Time
}

// Letter is the cover letter that went out with the application.
type Letter struct {
	Text string
	Mode string // default / custom / ai_generated
}

// ErrorInfo is populated only on failed submissions.
type ErrorInfo struct {
	Message string
	Code    string
	At      time.Time
}

// Response is one application attempt. Once terminal it is immutable except
// for Result/RespondedAt being filled in exactly once.
type Response struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	SearchID uuid.UUID
	ResumeID uuid.UUID

	Vacancy VacancySnapshot
	Letter  Letter

	Status      Status
	Result      Result
	ExternalRef string // platform-side negotiation id

	CreatedAt   time.Time
	SentAt      time.Time
	ViewedAt    time.Time
	RespondedAt time.Time

	Error *ErrorInfo
}

// StatusCounts aggregates responses per status for a user.
type StatusCounts struct {
	Total    int
	Sent     int
	Viewed   int
	Invited  int
	Rejected int
	Failed   int
}

// Repository is the persistence port for responses. Create must be backed by
// a unique constraint on (user_id, search_id, vacancy external id) and map a
// constraint violation to ErrDuplicate — that constraint is the idempotency
// boundary for the whole scheduler.
type Repository interface {
	Create(ctx context.Context, r Response) error
	GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (Response, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Response, error)

	// ExistingVacancyIDs filters candidate vacancy ids down to those that
	// already have a response under (owner, search).
	ExistingVacancyIDs(ctx context.Context, ownerID, searchID uuid.UUID, vacancyIDs []string) (map[string]struct{}, error)
	// CountSentSince counts responses of one search with sent_at >= since.
	CountSentSince(ctx context.Context, searchID uuid.UUID, since time.Time) (int, error)
	ExistsForSearch(ctx context.Context, searchID uuid.UUID) (bool, error)

	// ListOpenByOwner returns non-terminal sent/viewed responses for
	// reconciliation.
	ListOpenByOwner(ctx context.Context, ownerID uuid.UUID) ([]Response, error)
	// OwnersWithOpenResponses returns distinct user ids that have at least
	// one sent/viewed response.
	OwnersWithOpenResponses(ctx context.Context) ([]uuid.UUID, error)
	// Advance moves a record forward through the state machine, setting the
	// timestamp and result that belong to the target status. Implementations
	// must refuse backward moves and must not overwrite an already-set
	// result or responded_at.
	Advance(ctx context.Context, id uuid.UUID, to Status, at time.Time) error

	CountsByOwner(ctx context.Context, ownerID uuid.UUID) (StatusCounts, error)
}
