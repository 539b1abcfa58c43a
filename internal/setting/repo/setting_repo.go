package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/setting/entity"
)

// Repo is the repository implementation for settings backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the settings table and its index exist.
// Fields:
// - id varchar(32) PRIMARY KEY
// - record_meta jsonb
// - category varchar(32) (indexed)
// - metadata jsonb
func (r *Repo) EnsureTable(ctx context.Context) error {
	// Check if table exists using to_regclass (Postgres). If it exists, skip creation.
	var tblName sql.NullString
	if err := r.db.GetContext(ctx, &tblName, "SELECT to_regclass('public.settings')"); err != nil {
		return err
	}
	if !tblName.Valid {
		createTable := `CREATE TABLE settings (
			id varchar(32) PRIMARY KEY,
			record_meta jsonb NOT NULL DEFAULT '{}'::jsonb,
			category varchar(32) NOT NULL DEFAULT '',
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb
		)`
		if _, err := r.db.ExecContext(ctx, createTable); err != nil {
			return err
		}
	}

	var idxName sql.NullString
	if err := r.db.GetContext(ctx, &idxName, "SELECT to_regclass('public.idx_settings_category')"); err != nil {
		return err
	}
	if !idxName.Valid {
		if _, err := r.db.ExecContext(ctx, `CREATE INDEX idx_settings_category ON settings (category)`); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the setting with id or an error wrapping apperror.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*entity.Setting, error) {
	var s entity.Setting
	err := r.db.GetContext(ctx, &s, `SELECT id, category, record_meta, metadata FROM settings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("Setting not found.")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOrCreate inserts s unless a row with its id exists, then returns the
// stored row.
func (r *Repo) FindOrCreate(ctx context.Context, s *entity.Setting) (*entity.Setting, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (id, category, record_meta, metadata) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.Category, string(s.RecordMeta), string(s.Metadata))
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, s.ID)
}

// Save upserts s.
func (r *Repo) Save(ctx context.Context, s *entity.Setting) error {
	// jsonb parameters go over the wire as text; lib/pq would send []byte as bytea
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (id, category, record_meta, metadata) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, metadata = EXCLUDED.metadata`,
		s.ID, s.Category, string(s.RecordMeta), string(s.Metadata))
	return err
}
