package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavel8512/hhpilot/pkg/resume"
)

// ResumeRepository implements resume.Repository backed by PostgreSQL (pgx).
type ResumeRepository struct {
	pool *pgxpool.Pool
}

func NewResumeRepository(pool *pgxpool.Pool) (*ResumeRepository, error) {
	repo := &ResumeRepository{pool: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *ResumeRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS resumes (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			external_id TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_resumes_user ON resumes(user_id);
	`)
	return err
}

const resumeColumns = `id, user_id, external_id, title, summary, first_name, last_name,
	is_primary, is_active, created_at`

func scanResume(row pgx.Row) (resume.Resume, error) {
	var res resume.Resume
	var createdAt time.Time
	err := row.Scan(&res.ID, &res.UserID, &res.ExternalID, &res.Title, &res.Summary,
		&res.FirstName, &res.LastName, &res.IsPrimary, &res.IsActive, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resume.Resume{}, resume.ErrNotFound
		}
		return resume.Resume{}, err
	}
	res.CreatedAt = createdAt.UTC()
	return res, nil
}

func (r *ResumeRepository) Create(ctx context.Context, res resume.Resume) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if res.IsPrimary {
		if _, err := tx.Exec(ctx, `
			UPDATE resumes SET is_primary = FALSE WHERE user_id = $1
		`, res.UserID); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO resumes (id, user_id, external_id, title, summary, first_name, last_name,
			is_primary, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, res.ID, res.UserID, res.ExternalID, res.Title, res.Summary, res.FirstName, res.LastName,
		res.IsPrimary, res.IsActive, res.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ResumeRepository) GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (resume.Resume, error) {
	return scanResume(r.pool.QueryRow(ctx, `
		SELECT `+resumeColumns+` FROM resumes WHERE id = $1 AND user_id = $2
	`, id, ownerID))
}

func (r *ResumeRepository) GetPrimary(ctx context.Context, ownerID uuid.UUID) (resume.Resume, error) {
	return scanResume(r.pool.QueryRow(ctx, `
		SELECT `+resumeColumns+` FROM resumes
		WHERE user_id = $1 AND is_primary AND is_active
	`, ownerID))
}

func (r *ResumeRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]resume.Resume, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+resumeColumns+` FROM resumes
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []resume.Resume
	for rows.Next() {
		item, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// SetPrimary makes one resume primary and demotes the rest in the same
// transaction; at most one primary per user holds at all times.
func (r *ResumeRepository) SetPrimary(ctx context.Context, ownerID, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cmd, err := tx.Exec(ctx, `
		UPDATE resumes SET is_primary = TRUE WHERE id = $1 AND user_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return resume.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `
		UPDATE resumes SET is_primary = FALSE WHERE user_id = $1 AND id <> $2
	`, ownerID, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ResumeRepository) DeleteForOwner(ctx context.Context, ownerID, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM resumes WHERE id = $1 AND user_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return resume.ErrNotFound
	}
	return nil
}
