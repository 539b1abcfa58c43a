// Package counter allocates monotonically increasing receipt numbers from a
// persisted sequence row.
package counter

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReceiptSequence is the counter row used for membership receipts.
const ReceiptSequence = "receiptNumber"

// Format renders a receipt number as #JHA-0001. Values past 9999 grow wider.
func Format(n int64) string {
	return fmt.Sprintf("#JHA-%04d", n)
}

// Allocator issues the next value of a named sequence.
type Allocator interface {
	Next(ctx context.Context) (int64, error)
}

// Repo stores named counters in postgres. Every call is a single
// INSERT .. ON CONFLICT statement, so concurrent callers never observe the
// same value.
type Repo struct {
	db   *sqlx.DB
	name string
}

func NewRepo(db *sqlx.DB, name string) *Repo {
	return &Repo{db: db, name: name}
}

// NewReceiptAllocator returns the allocator behind receipt numbering.
func NewReceiptAllocator(db *sqlx.DB) *Repo {
	return NewRepo(db, ReceiptSequence)
}

func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS counters (
  name TEXT PRIMARY KEY,
  seq  BIGINT NOT NULL DEFAULT 0
);`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Next increments and returns the sequence, creating it at 1 when missing.
func (r *Repo) Next(ctx context.Context) (int64, error) {
	const q = `INSERT INTO counters (name, seq) VALUES ($1, 1)
	           ON CONFLICT (name) DO UPDATE SET seq = counters.seq + 1
	           RETURNING seq`
	var seq int64
	if err := r.db.GetContext(ctx, &seq, q, r.name); err != nil {
		return 0, fmt.Errorf("next %s: %w", r.name, err)
	}
	return seq, nil
}

// NextFormatted allocates a number and renders it with Format.
func NextFormatted(ctx context.Context, a Allocator) (string, error) {
	n, err := a.Next(ctx)
	if err != nil {
		return "", err
	}
	return Format(n), nil
}
