package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavel8512/hhpilot/pkg/response"
)

// ResponseRepository implements response.Repository backed by PostgreSQL
// (pgx). The unique index on (user_id, search_id, vacancy_external_id) is the
// hard idempotency boundary; everything above it only narrows the candidate
// set earlier.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

func NewResponseRepository(pool *pgxpool.Pool) (*ResponseRepository, error) {
	repo := &ResponseRepository{pool: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *ResponseRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS responses (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			search_id UUID NOT NULL REFERENCES searches(id) ON DELETE RESTRICT,
			resume_id UUID,
			vacancy_external_id TEXT NOT NULL,
			vacancy JSONB NOT NULL,
			letter_text TEXT NOT NULL DEFAULT '',
			letter_mode TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			external_ref TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			sent_at TIMESTAMPTZ,
			viewed_at TIMESTAMPTZ,
			responded_at TIMESTAMPTZ,
			error JSONB,
			UNIQUE (user_id, search_id, vacancy_external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_responses_user ON responses(user_id);
		CREATE INDEX IF NOT EXISTS idx_responses_search ON responses(search_id);
		CREATE INDEX IF NOT EXISTS idx_responses_open ON responses(user_id) WHERE status IN ('sent', 'viewed');
	`)
	return err
}

func (r *ResponseRepository) Create(ctx context.Context, rec response.Response) error {
	vacancyJSON, err := json.Marshal(rec.Vacancy)
	if err != nil {
		return err
	}
	var errorJSON any
	if rec.Error != nil {
		b, err := json.Marshal(rec.Error)
		if err != nil {
			return err
		}
		errorJSON = b
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO responses (id, user_id, search_id, resume_id, vacancy_external_id,
			vacancy, letter_text, letter_mode, status, result, external_ref,
			created_at, sent_at, viewed_at, responded_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, rec.ID, rec.UserID, rec.SearchID, nullUUID(rec.ResumeID), rec.Vacancy.ExternalID,
		vacancyJSON, rec.Letter.Text, rec.Letter.Mode, rec.Status, rec.Result, rec.ExternalRef,
		rec.CreatedAt, nullTime(rec.SentAt), nullTime(rec.ViewedAt), nullTime(rec.RespondedAt), errorJSON)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return response.ErrDuplicate
		}
		return err
	}
	return nil
}

const responseColumns = `id, user_id, search_id, resume_id, vacancy, letter_text, letter_mode,
	status, result, external_ref, created_at, sent_at, viewed_at, responded_at, error`

func scanResponse(row pgx.Row) (response.Response, error) {
	var rec response.Response
	var resumeID *uuid.UUID
	var vacancyJSON, errorJSON []byte
	var createdAt time.Time
	var sentAt, viewedAt, respondedAt *time.Time
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SearchID, &resumeID, &vacancyJSON,
		&rec.Letter.Text, &rec.Letter.Mode, &rec.Status, &rec.Result, &rec.ExternalRef,
		&createdAt, &sentAt, &viewedAt, &respondedAt, &errorJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return response.Response{}, response.ErrNotFound
		}
		return response.Response{}, err
	}
	if resumeID != nil {
		rec.ResumeID = *resumeID
	}
	if err := json.Unmarshal(vacancyJSON, &rec.Vacancy); err != nil {
		return response.Response{}, err
	}
	if len(errorJSON) > 0 {
		rec.Error = &response.ErrorInfo{}
		if err := json.Unmarshal(errorJSON, rec.Error); err != nil {
			return response.Response{}, err
		}
	}
	rec.CreatedAt = createdAt.UTC()
	if sentAt != nil {
		rec.SentAt = sentAt.UTC()
	}
	if viewedAt != nil {
		rec.ViewedAt = viewedAt.UTC()
	}
	if respondedAt != nil {
		rec.RespondedAt = respondedAt.UTC()
	}
	return rec, nil
}

func (r *ResponseRepository) GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (response.Response, error) {
	return scanResponse(r.pool.QueryRow(ctx, `
		SELECT `+responseColumns+` FROM responses WHERE id = $1 AND user_id = $2
	`, id, ownerID))
}

func (r *ResponseRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]response.Response, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+responseColumns+` FROM responses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

func collectResponses(rows pgx.Rows) ([]response.Response, error) {
	var res []response.Response
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r *ResponseRepository) ExistingVacancyIDs(ctx context.Context, ownerID, searchID uuid.UUID, vacancyIDs []string) (map[string]struct{}, error) {
	if len(vacancyIDs) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT vacancy_external_id FROM responses
		WHERE user_id = $1 AND search_id = $2 AND vacancy_external_id = ANY($3)
	`, ownerID, searchID, vacancyIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = struct{}{}
	}
	return seen, rows.Err()
}

func (r *ResponseRepository) CountSentSince(ctx context.Context, searchID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM responses
		WHERE search_id = $1 AND sent_at IS NOT NULL AND sent_at >= $2
	`, searchID, since).Scan(&n)
	return n, err
}

func (r *ResponseRepository) ExistsForSearch(ctx context.Context, searchID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM responses WHERE search_id = $1)
	`, searchID).Scan(&exists)
	return exists, err
}

func (r *ResponseRepository) ListOpenByOwner(ctx context.Context, ownerID uuid.UUID) ([]response.Response, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+responseColumns+` FROM responses
		WHERE user_id = $1 AND status IN ('sent', 'viewed')
		ORDER BY sent_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (r *ResponseRepository) OwnersWithOpenResponses(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM responses WHERE status IN ('sent', 'viewed')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// Advance moves one record forward. The current status is read under a row
// lock and checked against the transition table before any write, so a
// resolved response can never regress, and result/responded_at are written
// at most once (COALESCE keeps the first value).
func (r *ResponseRepository) Advance(ctx context.Context, id uuid.UUID, to response.Status, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur response.Status
	err = tx.QueryRow(ctx, `
		SELECT status FROM responses WHERE id = $1 FOR UPDATE
	`, id).Scan(&cur)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return response.ErrNotFound
		}
		return err
	}
	if !response.IsTransitionAllowed(cur, to) {
		return fmt.Errorf("response %s: transition %s -> %s not allowed", id, cur, to)
	}

	switch to {
	case response.StatusViewed:
		_, err = tx.Exec(ctx, `
			UPDATE responses SET status = $2, viewed_at = COALESCE(viewed_at, $3) WHERE id = $1
		`, id, to, at)
	case response.StatusInvited:
		_, err = tx.Exec(ctx, `
			UPDATE responses SET status = $2,
				responded_at = COALESCE(responded_at, $3),
				result = CASE WHEN result = '' THEN 'invitation' ELSE result END
			WHERE id = $1
		`, id, to, at)
	case response.StatusRejected:
		_, err = tx.Exec(ctx, `
			UPDATE responses SET status = $2,
				responded_at = COALESCE(responded_at, $3),
				result = CASE WHEN result = '' THEN 'rejection' ELSE result END
			WHERE id = $1
		`, id, to, at)
	case response.StatusExpired:
		_, err = tx.Exec(ctx, `
			UPDATE responses SET status = $2,
				responded_at = COALESCE(responded_at, $3),
				result = CASE WHEN result = '' THEN 'expired' ELSE result END
			WHERE id = $1
		`, id, to, at)
	default:
		_, err = tx.Exec(ctx, `
			UPDATE responses SET status = $2 WHERE id = $1
		`, id, to)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ResponseRepository) CountsByOwner(ctx context.Context, ownerID uuid.UUID) (response.StatusCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM responses WHERE user_id = $1 GROUP BY status
	`, ownerID)
	if err != nil {
		return response.StatusCounts{}, err
	}
	defer rows.Close()
	var counts response.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return response.StatusCounts{}, err
		}
		counts.Total += n
		switch response.Status(status) {
		case response.StatusSent:
			counts.Sent += n
		case response.StatusViewed:
			counts.Viewed += n
		case response.StatusInvited:
			counts.Invited += n
		case response.StatusRejected:
			counts.Rejected += n
		case response.StatusError:
			counts.Failed += n
		}
	}
	return counts, rows.Err()
}
