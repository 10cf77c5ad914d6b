package resume

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resume not found")

// Resume is a stored pointer to a platform-side resume plus the summary
// fields the cover-letter producer needs. ExternalID is the HH resume id
// submitted with every application.
type Resume struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ExternalID string
	Title      string
	Summary    string
	FirstName  string
	LastName   string
	IsPrimary  bool
	IsActive   bool
	CreatedAt  time.Time
}

// FullName joins the name parts, tolerating either being empty.
func (r Resume) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// Repository is the persistence port for resumes.
type Repository interface {
	Create(ctx context.Context, r Resume) error
	GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (Resume, error)
	// GetPrimary returns the owner's active primary resume.
	GetPrimary(ctx context.Context, ownerID uuid.UUID) (Resume, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Resume, error)
	SetPrimary(ctx context.Context, ownerID, id uuid.UUID) error
	DeleteForOwner(ctx context.Context, ownerID, id uuid.UUID) error
}
