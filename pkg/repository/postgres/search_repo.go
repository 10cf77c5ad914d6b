package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavel8512/hhpilot/pkg/search"
)

// SearchRepository implements search.Repository backed by PostgreSQL (pgx).
type SearchRepository struct {
	pool *pgxpool.Pool
}

func NewSearchRepository(pool *pgxpool.Pool) (*SearchRepository, error) {
	repo := &SearchRepository{pool: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *SearchRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS searches (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL,
			exclude_keywords TEXT NOT NULL DEFAULT '',
			area_ids TEXT[] NOT NULL DEFAULT '{}',
			salary_from INT NOT NULL DEFAULT 0,
			salary_to INT NOT NULL DEFAULT 0,
			salary_currency TEXT NOT NULL DEFAULT '',
			experience TEXT NOT NULL DEFAULT '',
			schedule TEXT NOT NULL DEFAULT '',
			employment TEXT NOT NULL DEFAULT '',
			specializations TEXT[] NOT NULL DEFAULT '{}',
			industries TEXT[] NOT NULL DEFAULT '{}',
			letter_mode TEXT NOT NULL DEFAULT 'default',
			cover_letter TEXT NOT NULL DEFAULT '',
			resume_id UUID,
			daily_limit INT NOT NULL,
			total_limit INT NOT NULL,
			run_interval INT NOT NULL,
			status TEXT NOT NULL,
			responses_count INT NOT NULL DEFAULT 0,
			invitations_count INT NOT NULL DEFAULT 0,
			rejections_count INT NOT NULL DEFAULT 0,
			last_run_at TIMESTAMPTZ,
			next_run_at TIMESTAMPTZ,
			error_count INT NOT NULL DEFAULT 0,
			last_error_message TEXT,
			last_error_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_searches_user ON searches(user_id);
		CREATE INDEX IF NOT EXISTS idx_searches_due ON searches(next_run_at) WHERE status = 'active';
	`)
	return err
}

const searchColumns = `id, user_id, name, description,
	keywords, exclude_keywords, area_ids, salary_from, salary_to, salary_currency,
	experience, schedule, employment, specializations, industries,
	letter_mode, cover_letter, resume_id, daily_limit, total_limit, run_interval,
	status, responses_count, invitations_count, rejections_count,
	last_run_at, next_run_at, error_count, last_error_message, last_error_at,
	created_at, updated_at`

func scanSearch(row pgx.Row) (search.Search, error) {
	var s search.Search
	var resumeID *uuid.UUID
	var lastRun, nextRun, lastErrAt *time.Time
	var lastErrMsg *string
	var createdAt, updatedAt time.Time
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Description,
		&s.Criteria.Keywords, &s.Criteria.ExcludeKeywords, &s.Criteria.AreaIDs,
		&s.Criteria.Salary.From, &s.Criteria.Salary.To, &s.Criteria.Salary.Currency,
		&s.Criteria.Experience, &s.Criteria.Schedule, &s.Criteria.Employment,
		&s.Criteria.Specializations, &s.Criteria.Industries,
		&s.LetterMode, &s.CoverLetter, &resumeID, &s.DailyLimit, &s.TotalLimit, &s.RunInterval,
		&s.Status, &s.ResponsesCount, &s.InvitationsCount, &s.RejectionsCount,
		&lastRun, &nextRun, &s.ErrorCount, &lastErrMsg, &lastErrAt,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return search.Search{}, search.ErrNotFound
		}
		return search.Search{}, err
	}
	if resumeID != nil {
		s.ResumeID = *resumeID
	}
	if lastRun != nil {
		s.LastRunAt = lastRun.UTC()
	}
	if nextRun != nil {
		s.NextRunAt = nextRun.UTC()
	}
	if lastErrMsg != nil {
		s.LastError = &search.LastError{Message: *lastErrMsg}
		if lastErrAt != nil {
			s.LastError.At = lastErrAt.UTC()
		}
	}
	s.CreatedAt = createdAt.UTC()
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (r *SearchRepository) Create(ctx context.Context, s search.Search) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO searches (id, user_id, name, description,
			keywords, exclude_keywords, area_ids, salary_from, salary_to, salary_currency,
			experience, schedule, employment, specializations, industries,
			letter_mode, cover_letter, resume_id, daily_limit, total_limit, run_interval,
			status, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`, s.ID, s.UserID, s.Name, s.Description,
		s.Criteria.Keywords, s.Criteria.ExcludeKeywords, s.Criteria.AreaIDs,
		s.Criteria.Salary.From, s.Criteria.Salary.To, s.Criteria.Salary.Currency,
		s.Criteria.Experience, s.Criteria.Schedule, s.Criteria.Employment,
		s.Criteria.Specializations, s.Criteria.Industries,
		s.LetterMode, s.CoverLetter, nullUUID(s.ResumeID), s.DailyLimit, s.TotalLimit, s.RunInterval,
		s.Status, nullTime(s.NextRunAt), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *SearchRepository) GetByID(ctx context.Context, id uuid.UUID) (search.Search, error) {
	return scanSearch(r.pool.QueryRow(ctx, `
		SELECT `+searchColumns+` FROM searches WHERE id = $1
	`, id))
}

func (r *SearchRepository) GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (search.Search, error) {
	return scanSearch(r.pool.QueryRow(ctx, `
		SELECT `+searchColumns+` FROM searches WHERE id = $1 AND user_id = $2
	`, id, ownerID))
}

func (r *SearchRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]search.Search, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+searchColumns+` FROM searches
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []search.Search
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Update rewrites the fields the use case owns: the user-editable criteria
// plus status and failure state (Reactivate clears the latter through here).
// Run counters stay with the dedicated mutators below.
func (r *SearchRepository) Update(ctx context.Context, s search.Search) error {
	var lastErrMsg any
	var lastErrAt any
	if s.LastError != nil {
		lastErrMsg = s.LastError.Message
		lastErrAt = s.LastError.At
	}
	cmd, err := r.pool.Exec(ctx, `
		UPDATE searches SET
			name = $3, description = $4,
			keywords = $5, exclude_keywords = $6, area_ids = $7,
			salary_from = $8, salary_to = $9, salary_currency = $10,
			experience = $11, schedule = $12, employment = $13,
			specializations = $14, industries = $15,
			letter_mode = $16, cover_letter = $17, resume_id = $18,
			daily_limit = $19, total_limit = $20, run_interval = $21,
			status = $22, next_run_at = $23,
			error_count = $24, last_error_message = $25, last_error_at = $26,
			updated_at = $27
		WHERE id = $1 AND user_id = $2
	`, s.ID, s.UserID, s.Name, s.Description,
		s.Criteria.Keywords, s.Criteria.ExcludeKeywords, s.Criteria.AreaIDs,
		s.Criteria.Salary.From, s.Criteria.Salary.To, s.Criteria.Salary.Currency,
		s.Criteria.Experience, s.Criteria.Schedule, s.Criteria.Employment,
		s.Criteria.Specializations, s.Criteria.Industries,
		s.LetterMode, s.CoverLetter, nullUUID(s.ResumeID),
		s.DailyLimit, s.TotalLimit, s.RunInterval,
		s.Status, nullTime(s.NextRunAt),
		s.ErrorCount, lastErrMsg, lastErrAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}

func (r *SearchRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM searches WHERE id = $1 AND user_id = $2
	`, id, ownerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return search.ErrHasResponses
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}

func (r *SearchRepository) DueForRun(ctx context.Context, now time.Time) ([]search.Search, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+searchColumns+` FROM searches
		WHERE status = 'active' AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at ASC NULLS FIRST
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []search.Search
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *SearchRepository) SetNextRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE searches SET next_run_at = $2, updated_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}

func (r *SearchRepository) RecordRunSuccess(ctx context.Context, id uuid.UUID, stats search.RunStats, lastRun, nextRun time.Time) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE searches SET
			responses_count = responses_count + $2,
			last_run_at = $3,
			next_run_at = $4,
			error_count = 0,
			last_error_message = NULL,
			last_error_at = NULL,
			updated_at = $3
		WHERE id = $1
	`, id, stats.Sent, lastRun, nextRun)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}

// RecordRunError bumps the failure counter and flips the search to 'error'
// once the counter reaches threshold, all in one statement. The RETURNING
// clause reports whether this call caused the flip.
func (r *SearchRepository) RecordRunError(ctx context.Context, id uuid.UUID, msg string, at time.Time, threshold int) (bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE searches SET
			error_count = error_count + 1,
			last_error_message = $2,
			last_error_at = $3,
			status = CASE WHEN error_count + 1 >= $4 AND status = 'active' THEN 'error' ELSE status END,
			updated_at = $3
		WHERE id = $1
		RETURNING status = 'error' AND error_count = $4
	`, id, msg, at, threshold)
	var escalated bool
	if err := row.Scan(&escalated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, search.ErrNotFound
		}
		return false, err
	}
	return escalated, nil
}

func (r *SearchRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE searches SET status = 'completed', next_run_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}

func (r *SearchRepository) SetStatus(ctx context.Context, ownerID, id uuid.UUID, st search.Status) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE searches SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, id, ownerID, st)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}

func (r *SearchRepository) IncrementOutcome(ctx context.Context, id uuid.UUID, invited bool) error {
	query := `UPDATE searches SET rejections_count = rejections_count + 1, updated_at = NOW() WHERE id = $1`
	if invited {
		query = `UPDATE searches SET invitations_count = invitations_count + 1, updated_at = NOW() WHERE id = $1`
	}
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return search.ErrNotFound
	}
	return nil
}
