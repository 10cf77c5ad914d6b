package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavel8512/hhpilot/pkg/auth"
)

// UserRepository implements auth.UserRepository backed by PostgreSQL (pgx).
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) (*UserRepository, error) {
	repo := &UserRepository{pool: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *UserRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			plan TEXT NOT NULL DEFAULT 'free',
			plan_active BOOLEAN NOT NULL DEFAULT TRUE,
			responses_used INT NOT NULL DEFAULT 0,
			responses_limit INT NOT NULL DEFAULT 0,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		);
		-- backfill for older schemas
		ALTER TABLE users ADD COLUMN IF NOT EXISTS access_token TEXT NOT NULL DEFAULT '';
		ALTER TABLE users ADD COLUMN IF NOT EXISTS plan TEXT NOT NULL DEFAULT 'free';
		ALTER TABLE users ADD COLUMN IF NOT EXISTS plan_active BOOLEAN NOT NULL DEFAULT TRUE;
		ALTER TABLE users ADD COLUMN IF NOT EXISTS responses_used INT NOT NULL DEFAULT 0;
		ALTER TABLE users ADD COLUMN IF NOT EXISTS responses_limit INT NOT NULL DEFAULT 0;
	`)
	return err
}

func (r *UserRepository) Create(ctx context.Context, user auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, access_token,
			plan, plan_active, responses_used, responses_limit, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, strings.ToLower(user.Email), user.PasswordHash, user.FirstName, user.LastName,
		user.AccessToken, user.Subscription.Plan, user.Subscription.Active,
		user.Subscription.ResponsesUsed, user.Subscription.ResponsesLimit, user.IsAdmin, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return auth.ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

const userColumns = `id, email, password_hash, first_name, last_name, access_token,
	plan, plan_active, responses_used, responses_limit, is_admin, created_at`

func scanUser(row pgx.Row) (auth.User, error) {
	var user auth.User
	var createdAt time.Time
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.AccessToken, &user.Subscription.Plan, &user.Subscription.Active,
		&user.Subscription.ResponsesUsed, &user.Subscription.ResponsesLimit, &user.IsAdmin, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, err
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (auth.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, strings.ToLower(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (auth.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
}

func (r *UserRepository) SetAccessToken(ctx context.Context, id uuid.UUID, token string) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users SET access_token = $2 WHERE id = $1
	`, id, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// ConsumeResponseQuota spends one unit of the subscription quota. The check
// and the increment happen in a single statement so concurrent consumers
// cannot both take the last unit.
func (r *UserRepository) ConsumeResponseQuota(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users SET responses_used = responses_used + 1
		WHERE id = $1 AND plan_active AND responses_used < responses_limit
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return auth.ErrQuotaExhausted
	}
	return nil
}

func (r *UserRepository) RefundResponseQuota(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users SET responses_used = GREATEST(responses_used - 1, 0) WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}
