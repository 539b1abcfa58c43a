package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber/entity"
)

type SubscriberRepo struct {
	db *sqlx.DB
}

func NewSubscriberRepo(db *sqlx.DB) *SubscriberRepo {
	return &SubscriberRepo{db: db}
}

// EnsureTable creates the subscribers table if it does not already exist.
func (r *SubscriberRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE EXTENSION IF NOT EXISTS citext;
	CREATE TABLE IF NOT EXISTS subscribers (
		id varchar(32) PRIMARY KEY,
		record_meta JSONB NOT NULL DEFAULT '{}'::jsonb,
		email CITEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscribers_email ON subscribers (email);
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

// Add inserts s unless the address is already subscribed. It reports whether
// a row was written.
func (r *SubscriberRepo) Add(ctx context.Context, s *entity.Subscriber) (bool, error) {
	var id string
	err := r.db.GetContext(ctx, &id,
		`INSERT INTO subscribers (id, record_meta, email, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING RETURNING id`,
		s.ID, string(s.RecordMeta), s.Email, s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SubscriberRepo) List(ctx context.Context) ([]entity.Subscriber, error) {
	var out []entity.Subscriber
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, record_meta, email, created_at FROM subscribers ORDER BY created_at`)
	return out, err
}
