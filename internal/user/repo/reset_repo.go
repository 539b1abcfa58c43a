package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

// ResetRepo stores outstanding password reset links keyed by token.
type ResetRepo struct {
	db *sqlx.DB
}

func NewResetRepo(db *sqlx.DB) *ResetRepo {
	return &ResetRepo{db: db}
}

func (r *ResetRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS password_reset_requests (
  token TEXT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  email TEXT NOT NULL,
  email_sent BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_password_reset_requests_user ON password_reset_requests(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *ResetRepo) Save(ctx context.Context, req entity.PasswordResetRequest) error {
	query := `INSERT INTO password_reset_requests (token, user_id, email, email_sent, created_at, expires_at)
		VALUES (:token, :user_id, :email, :email_sent, :created_at, :expires_at)`
	_, err := r.db.NamedExecContext(ctx, query, req)
	return err
}

func (r *ResetRepo) Get(ctx context.Context, token string) (*entity.PasswordResetRequest, error) {
	var req entity.PasswordResetRequest
	query := `SELECT token, user_id, email, email_sent, created_at, expires_at FROM password_reset_requests WHERE token = $1`
	if err := r.db.GetContext(ctx, &req, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Reset request not found.")
		}
		return nil, err
	}
	return &req, nil
}

func (r *ResetRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_requests WHERE token = $1`, token)
	return err
}
