package donation

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// Repo is the sqlx implementation of Repository.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the donations table. It references users, so the user
// tables must exist first.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS donations (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL,
  amount_cents BIGINT NOT NULL,
  remarks TEXT NOT NULL DEFAULT '',
  payment_intent_id TEXT NOT NULL,
  card_brand TEXT NOT NULL DEFAULT '',
  card_last4 TEXT NOT NULL DEFAULT '',
  refunded BOOLEAN NOT NULL DEFAULT false,
  refunded_cents BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_donations_payment_intent ON donations(payment_intent_id);
CREATE INDEX IF NOT EXISTS idx_donations_user ON donations(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *Repo) Create(ctx context.Context, d *Donation) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO donations (id, user_id, amount_cents, remarks, payment_intent_id, card_brand, card_last4, refunded, refunded_cents, created_at)
		 VALUES (:id, :user_id, :amount_cents, :remarks, :payment_intent_id, :card_brand, :card_last4, :refunded, :refunded_cents, :created_at)`, d)
	return err
}

func (r *Repo) MarkRefunded(ctx context.Context, paymentIntentID string, amount utilities.Cents) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE donations SET refunded = true, refunded_cents = $2 WHERE payment_intent_id = $1`,
		paymentIntentID, int64(amount))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type listedRow struct {
	Donation
	DonorID       sql.NullInt64  `db:"donor_id"`
	DonorFullName sql.NullString `db:"donor_full_name"`
	DonorEmail    sql.NullString `db:"donor_email"`
}

// List returns every donation, newest first, with donor name and email.
func (r *Repo) List(ctx context.Context) ([]Listed, error) {
	var rows []listedRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT d.id, d.user_id, d.amount_cents, d.remarks, d.payment_intent_id, d.card_brand,
       d.card_last4, d.refunded, d.refunded_cents, d.created_at,
       u.id AS donor_id, u.full_name AS donor_full_name, u.email AS donor_email
FROM donations d
LEFT JOIN users u ON u.id = d.user_id
ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, err
	}
	out := make([]Listed, 0, len(rows))
	for _, row := range rows {
		l := Listed{Donation: row.Donation}
		if row.DonorID.Valid {
			l.Donor = &Donor{ID: row.DonorID.Int64, FullName: row.DonorFullName.String, Email: row.DonorEmail.String}
		}
		out = append(out, l)
	}
	return out, nil
}
