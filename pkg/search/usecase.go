package search

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UseCase is the user-facing surface for managing saved searches. Runtime
// fields stay out of Update on purpose; only the scheduler writes those.
type UseCase interface {
	Create(ctx context.Context, s Search) (Search, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (Search, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Search, error)
	Update(ctx context.Context, s Search) (Search, error)
	Pause(ctx context.Context, ownerID, id uuid.UUID) error
	Resume(ctx context.Context, ownerID, id uuid.UUID) error
	// Reactivate returns an errored search to active and clears its failure
	// streak. It is the only path out of StatusError.
	Reactivate(ctx context.Context, ownerID, id uuid.UUID) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) UseCase { return &service{repo: repo} }

// ErrValidation is a simple validation error.
type ErrValidation string

func (e ErrValidation) Error() string { return string(e) }

func (s *service) Create(ctx context.Context, in Search) (Search, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Criteria.Keywords = strings.TrimSpace(in.Criteria.Keywords)
	if in.Name == "" {
		return Search{}, ErrValidation("name is required")
	}
	if in.Criteria.Keywords == "" {
		return Search{}, ErrValidation("keywords are required")
	}
	if in.LetterMode == "" {
		in.LetterMode = LetterModeDefault
	}
	if _, err := ParseLetterMode(string(in.LetterMode)); err != nil {
		return Search{}, ErrValidation(err.Error())
	}
	if in.LetterMode == LetterModeCustom && strings.TrimSpace(in.CoverLetter) == "" {
		return Search{}, ErrValidation("custom letter mode requires cover letter text")
	}
	if in.DailyLimit <= 0 {
		in.DailyLimit = 50
	}
	if in.TotalLimit <= 0 {
		in.TotalLimit = 200
	}
	if in.RunInterval <= 0 {
		in.RunInterval = 60
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	in.Status = StatusActive
	now := time.Now().UTC()
	in.CreatedAt = now
	// Due immediately; the scheduler picks it up on the next tick.
	in.NextRunAt = now
	if err := s.repo.Create(ctx, in); err != nil {
		return Search{}, err
	}
	return in, nil
}

func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (Search, error) {
	return s.repo.GetByIDForOwner(ctx, ownerID, id)
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Search, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *service) Update(ctx context.Context, in Search) (Search, error) {
	cur, err := s.repo.GetByIDForOwner(ctx, in.UserID, in.ID)
	if err != nil {
		return Search{}, err
	}
	// User-editable fields only; runtime state is carried over untouched.
	cur.Name = strings.TrimSpace(in.Name)
	cur.Description = in.Description
	cur.Criteria = in.Criteria
	cur.LetterMode = in.LetterMode
	cur.CoverLetter = in.CoverLetter
	cur.ResumeID = in.ResumeID
	if in.DailyLimit > 0 {
		cur.DailyLimit = in.DailyLimit
	}
	if in.TotalLimit > 0 {
		cur.TotalLimit = in.TotalLimit
	}
	if in.RunInterval > 0 {
		cur.RunInterval = in.RunInterval
	}
	if cur.Name == "" {
		return Search{}, ErrValidation("name is required")
	}
	if strings.TrimSpace(cur.Criteria.Keywords) == "" {
		return Search{}, ErrValidation("keywords are required")
	}
	if _, err := ParseLetterMode(string(cur.LetterMode)); err != nil {
		return Search{}, ErrValidation(err.Error())
	}
	cur.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, cur); err != nil {
		return Search{}, err
	}
	return cur, nil
}

func (s *service) Pause(ctx context.Context, ownerID, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, ownerID, id, StatusPaused)
}

func (s *service) Resume(ctx context.Context, ownerID, id uuid.UUID) error {
	cur, err := s.repo.GetByIDForOwner(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if cur.Status != StatusPaused {
		return ErrValidation("only a paused search can be resumed")
	}
	if err := s.repo.SetStatus(ctx, ownerID, id, StatusActive); err != nil {
		return err
	}
	return s.repo.SetNextRun(ctx, id, time.Now().UTC())
}

func (s *service) Reactivate(ctx context.Context, ownerID, id uuid.UUID) error {
	cur, err := s.repo.GetByIDForOwner(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if cur.Status != StatusError {
		return ErrValidation("only an errored search can be reactivated")
	}
	cur.Status = StatusActive
	cur.ErrorCount = 0
	cur.LastError = nil
	cur.NextRunAt = time.Now().UTC()
	cur.UpdatedAt = cur.NextRunAt
	return s.repo.Update(ctx, cur)
}

func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	return s.repo.Delete(ctx, ownerID, id)
}
