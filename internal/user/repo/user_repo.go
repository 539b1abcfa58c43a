package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

const uniqueViolation = "23505"

var errUserNotFound = apperror.NotFound("User not found.")

// UserRepo provides data access for the users table and its child tables
// using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the member tables if they do not exist (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  full_name TEXT NOT NULL,
  username TEXT NOT NULL UNIQUE,
  email CITEXT NOT NULL UNIQUE,
  contact TEXT NOT NULL DEFAULT '',
  profession TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  password_algo TEXT NOT NULL DEFAULT '',
  password_updated_at TIMESTAMPTZ,
  profile_picture TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  can_receive_text BOOLEAN NOT NULL DEFAULT false,
  has_spouse BOOLEAN NOT NULL DEFAULT false,
  spouse JSONB,
  family_members JSONB NOT NULL DEFAULT '[]'::jsonb,
  membership_type TEXT NOT NULL DEFAULT 'general'
    CHECK (membership_type IN ('general','patron','associate','supporter')),
  membership_fee_cents BIGINT NOT NULL DEFAULT 0,
  membership_paid BOOLEAN NOT NULL DEFAULT false,
  membership_paid_at TIMESTAMPTZ,
  donated_cents BIGINT NOT NULL DEFAULT 0,
  membership_receipt_file_name TEXT,
  membership_receipt_file_path TEXT,
  membership_receipt_uploaded_at TIMESTAMPTZ,
  status_reason TEXT,
  account_locked BOOLEAN NOT NULL DEFAULT false,
  login_attempts INT NOT NULL DEFAULT 0,
  account_status TEXT NOT NULL DEFAULT 'pending'
    CHECK (account_status IN ('pending','pendingVerification','active','suspended','rejected','deactivated')),
  account_expiry TIMESTAMPTZ,
  role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user','admin','superadmin')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS user_receipts (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  receipt_number TEXT UNIQUE,
  file_name TEXT NOT NULL,
  file_path TEXT NOT NULL,
  remarks TEXT NOT NULL DEFAULT '',
  uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_user_receipts_user ON user_receipts(user_id);
CREATE TABLE IF NOT EXISTS user_login_logs (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  ip TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_user_login_logs_user ON user_login_logs(user_id);
CREATE TABLE IF NOT EXISTS deleted_users (
  id BIGINT PRIMARY KEY,
  original_user_id BIGINT NOT NULL,
  full_name TEXT NOT NULL,
  username TEXT NOT NULL,
  email TEXT NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  contact TEXT NOT NULL DEFAULT '',
  profession TEXT NOT NULL DEFAULT '',
  membership_type TEXT NOT NULL,
  membership_fee_cents BIGINT NOT NULL DEFAULT 0,
  membership_paid BOOLEAN NOT NULL DEFAULT false,
  donated_cents BIGINT NOT NULL DEFAULT 0,
  account_expiry TIMESTAMPTZ,
  role TEXT NOT NULL,
  deleted_by BIGINT NOT NULL,
  deleted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  reason TEXT NOT NULL DEFAULT ''
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// userRow mirrors the users table; entity.User stays free of storage tags.
type userRow struct {
	ID                 int64                `db:"id"`
	FullName           string               `db:"full_name"`
	Username           string               `db:"username"`
	Email              string               `db:"email"`
	Contact            string               `db:"contact"`
	Profession         string               `db:"profession"`
	Address            string               `db:"address"`
	PasswordHash       string               `db:"password_hash"`
	PasswordAlgo       string               `db:"password_algo"`
	PasswordUpdatedAt  sql.NullTime         `db:"password_updated_at"`
	ProfilePicture     string               `db:"profile_picture"`
	City               string               `db:"city"`
	State              string               `db:"state"`
	CanReceiveText     bool                 `db:"can_receive_text"`
	HasSpouse          bool                 `db:"has_spouse"`
	Spouse             *entity.Spouse       `db:"spouse"`
	FamilyMembers      entity.FamilyMembers `db:"family_members"`
	MembershipType     string               `db:"membership_type"`
	MembershipFeeCents int64                `db:"membership_fee_cents"`
	MembershipPaid     bool                 `db:"membership_paid"`
	MembershipPaidAt   sql.NullTime         `db:"membership_paid_at"`
	DonatedCents       int64                `db:"donated_cents"`
	ReceiptFileName    sql.NullString       `db:"membership_receipt_file_name"`
	ReceiptFilePath    sql.NullString       `db:"membership_receipt_file_path"`
	ReceiptUploadedAt  sql.NullTime         `db:"membership_receipt_uploaded_at"`
	StatusReason       sql.NullString       `db:"status_reason"`
	AccountLocked      bool                 `db:"account_locked"`
	LoginAttempts      int                  `db:"login_attempts"`
	AccountStatus      string               `db:"account_status"`
	AccountExpiry      sql.NullTime         `db:"account_expiry"`
	Role               string               `db:"role"`
	CreatedAt          time.Time            `db:"created_at"`
	UpdatedAt          time.Time            `db:"updated_at"`
}

const userColumns = `id, full_name, username, email, contact, profession, address,
  password_hash, password_algo, password_updated_at, profile_picture, city, state,
  can_receive_text, has_spouse, spouse, family_members, membership_type,
  membership_fee_cents, membership_paid, membership_paid_at, donated_cents,
  membership_receipt_file_name, membership_receipt_file_path, membership_receipt_uploaded_at,
  status_reason, account_locked, login_attempts, account_status, account_expiry, role,
  created_at, updated_at`

func (row *userRow) toEntity() *entity.User {
	u := &entity.User{
		ID:             row.ID,
		FullName:       row.FullName,
		Username:       row.Username,
		Email:          row.Email,
		Contact:        row.Contact,
		Profession:     row.Profession,
		Address:        row.Address,
		PasswordHash:   row.PasswordHash,
		PasswordAlgo:   row.PasswordAlgo,
		ProfilePicture: row.ProfilePicture,
		City:           row.City,
		State:          row.State,
		CanReceiveText: row.CanReceiveText,
		HasSpouse:      row.HasSpouse,
		Spouse:         row.Spouse,
		FamilyMembers:  row.FamilyMembers,
		MembershipType: row.MembershipType,
		MembershipFee:  utilities.Cents(row.MembershipFeeCents),
		MembershipPaid: row.MembershipPaid,
		DonatedAmount:  utilities.Cents(row.DonatedCents),
		AccountLocked:  row.AccountLocked,
		LoginAttempts:  row.LoginAttempts,
		AccountStatus:  row.AccountStatus,
		Role:           row.Role,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Receipts:       []entity.Receipt{},
		LoginLogs:      []entity.LoginLog{},
	}
	if u.FamilyMembers == nil {
		u.FamilyMembers = entity.FamilyMembers{}
	}
	if row.MembershipPaidAt.Valid {
		t := row.MembershipPaidAt.Time
		u.MembershipPaidAt = &t
	}
	if row.AccountExpiry.Valid {
		t := row.AccountExpiry.Time
		u.AccountExpiry = &t
	}
	if row.StatusReason.Valid {
		s := row.StatusReason.String
		u.StatusReason = &s
	}
	if row.ReceiptFileName.Valid {
		u.MembershipReceipt = &entity.MembershipReceipt{
			FileName:   row.ReceiptFileName.String,
			FilePath:   row.ReceiptFilePath.String,
			UploadedAt: row.ReceiptUploadedAt.Time,
		}
	}
	return u
}

// pendingReceipt splits the optional membership receipt into nullable columns.
func pendingReceipt(mr *entity.MembershipReceipt) (name, path sql.NullString, at sql.NullTime) {
	if mr == nil {
		return
	}
	return sql.NullString{String: mr.FileName, Valid: true},
		sql.NullString{String: mr.FilePath, Valid: true},
		sql.NullTime{Time: mr.UploadedAt, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// mapWriteErr turns unique violations into the public duplicate message.
func mapWriteErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperror.BadRequest("Username or Email already exists.")
	}
	return err
}

func notFoundIfNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errUserNotFound
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errUserNotFound
	}
	return nil
}

// Create inserts a new user row. The id is assigned by the caller.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	q := `INSERT INTO users (id, full_name, username, email, contact, profession, address,
		password_hash, password_algo, password_updated_at, profile_picture, city, state,
		can_receive_text, has_spouse, spouse, family_members, membership_type,
		membership_fee_cents, membership_paid, account_status, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`
	_, err := r.db.ExecContext(ctx, q,
		u.ID, u.FullName, u.Username, u.Email, u.Contact, u.Profession, u.Address,
		u.PasswordHash, u.PasswordAlgo, u.CreatedAt, u.ProfilePicture, u.City, u.State,
		u.CanReceiveText, u.HasSpouse, u.Spouse, u.FamilyMembers, u.MembershipType,
		int64(u.MembershipFee), u.MembershipPaid, u.AccountStatus, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return row.toEntity(), nil
}

// GetByID returns the user with receipt history and login logs.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	u, err := r.getOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &u.Receipts,
		`SELECT id, user_id, receipt_number, file_name, file_path, remarks, uploaded_at
		 FROM user_receipts WHERE user_id = $1 ORDER BY uploaded_at, id`, id); err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	if err := r.db.SelectContext(ctx, &u.LoginLogs,
		`SELECT logged_at, ip, user_agent FROM user_login_logs WHERE user_id = $1 ORDER BY logged_at`, id); err != nil {
		return nil, fmt.Errorf("load login logs: %w", err)
	}
	return u, nil
}

// FindByLogin matches the exact username or the case-insensitive email.
func (r *UserRepo) FindByLogin(ctx context.Context, usernameOrEmail string) (*entity.User, error) {
	return r.getOne(ctx, `username = $1 OR email = $1`, usernameOrEmail)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, `email = $1`, email)
}

func (r *UserRepo) Taken(ctx context.Context, username, email string, exceptID int64) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM users WHERE (username = $1 OR email = $2) AND id <> $3)`,
		username, email, exceptID)
	return taken, err
}

// List returns every user with their receipts, newest accounts first.
func (r *UserRepo) List(ctx context.Context) ([]*entity.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	var receipts []entity.Receipt
	if err := r.db.SelectContext(ctx, &receipts,
		`SELECT id, user_id, receipt_number, file_name, file_path, remarks, uploaded_at
		 FROM user_receipts ORDER BY uploaded_at, id`); err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	byUser := make(map[int64][]entity.Receipt)
	for _, rc := range receipts {
		byUser[rc.UserID] = append(byUser[rc.UserID], rc)
	}
	out := make([]*entity.User, 0, len(rows))
	for i := range rows {
		u := rows[i].toEntity()
		if rs, ok := byUser[u.ID]; ok {
			u.Receipts = rs
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	q := `UPDATE users SET full_name=$2, username=$3, email=$4, contact=$5, profession=$6,
		address=$7, city=$8, state=$9, can_receive_text=$10, has_spouse=$11, spouse=$12,
		family_members=$13, membership_type=$14, membership_paid=$15, account_status=$16,
		updated_at=$17 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q,
		u.ID, u.FullName, u.Username, u.Email, u.Contact, u.Profession,
		u.Address, u.City, u.State, u.CanReceiveText, u.HasSpouse, u.Spouse,
		u.FamilyMembers, u.MembershipType, u.MembershipPaid, u.AccountStatus, u.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res)
}

// RecordFailedLogin increments and locks in one statement so concurrent
// failures cannot both read a stale counter.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id int64, threshold int) (int, bool, error) {
	var out struct {
		Attempts int  `db:"login_attempts"`
		Locked   bool `db:"account_locked"`
	}
	err := r.db.GetContext(ctx, &out,
		`UPDATE users SET login_attempts = login_attempts + 1,
		   account_locked = account_locked OR login_attempts + 1 >= $2,
		   updated_at = NOW()
		 WHERE id = $1 RETURNING login_attempts, account_locked`, id, threshold)
	if err != nil {
		return 0, false, notFoundIfNoRows(err)
	}
	return out.Attempts, out.Locked, nil
}

func (r *UserRepo) RecordLogin(ctx context.Context, id int64, log entity.LoginLog) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET login_attempts = 0, account_locked = false WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_login_logs (user_id, logged_at, ip, user_agent) VALUES ($1, $2, $3, $4)`,
			id, log.Timestamp, log.IP, log.UserAgent)
		return err
	})
}

func (r *UserRepo) SetPassword(ctx context.Context, id int64, hash, algo string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, password_algo = $3, password_updated_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, hash, algo)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *UserRepo) SaveVerification(ctx context.Context, u *entity.User, promoted *entity.Receipt) error {
	name, path, at := pendingReceipt(u.MembershipReceipt)
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET account_status=$2, status_reason=$3, membership_fee_cents=$4,
			   membership_paid=$5, membership_paid_at=$6, account_expiry=$7,
			   membership_receipt_file_name=$8, membership_receipt_file_path=$9,
			   membership_receipt_uploaded_at=$10, updated_at=$11
			 WHERE id=$1`,
			u.ID, u.AccountStatus, nullString(u.StatusReason), int64(u.MembershipFee),
			u.MembershipPaid, nullTime(u.MembershipPaidAt), nullTime(u.AccountExpiry),
			name, path, at, u.UpdatedAt)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		if promoted == nil {
			return nil
		}
		return insertReceipt(ctx, tx, promoted)
	})
}

func (r *UserRepo) SetMembershipReceipt(ctx context.Context, id int64, mr entity.MembershipReceipt) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET membership_receipt_file_name=$2, membership_receipt_file_path=$3,
		   membership_receipt_uploaded_at=$4, account_status='pendingVerification', updated_at=NOW()
		 WHERE id=$1`, id, mr.FileName, mr.FilePath, mr.UploadedAt)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *UserRepo) SetProfilePicture(ctx context.Context, id int64, path string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET profile_picture=$2, updated_at=NOW() WHERE id=$1`, id, path)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func insertReceipt(ctx context.Context, ex sqlx.ExecerContext, rc *entity.Receipt) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO user_receipts (id, user_id, receipt_number, file_name, file_path, remarks, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rc.ID, rc.UserID, nullString(rc.ReceiptNumber), rc.FileName, rc.FilePath, rc.Remarks, rc.UploadedAt)
	return err
}

func (r *UserRepo) AddReceipt(ctx context.Context, rc *entity.Receipt) error {
	return insertReceipt(ctx, r.db, rc)
}

func (r *UserRepo) DeleteReceipt(ctx context.Context, userID, receiptID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_receipts WHERE id = $1 AND user_id = $2`, receiptID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("Receipt not found.")
	}
	return nil
}

func (r *UserRepo) SetRole(ctx context.Context, id int64, role string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, id, role)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *UserRepo) ArchiveAndDelete(ctx context.Context, d *entity.DeletedUser) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO deleted_users (id, original_user_id, full_name, username, email, address,
			   contact, profession, membership_type, membership_fee_cents, membership_paid,
			   donated_cents, account_expiry, role, deleted_by, deleted_at, reason)
			 VALUES (:id, :original_user_id, :full_name, :username, :email, :address,
			   :contact, :profession, :membership_type, :membership_fee_cents, :membership_paid,
			   :donated_cents, :account_expiry, :role, :deleted_by, :deleted_at, :reason)`, d)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, d.OriginalUserID)
		if err != nil {
			return err
		}
		return expectOne(res)
	})
}

func (r *UserRepo) AdjustDonated(ctx context.Context, id int64, delta utilities.Cents, receipt *entity.Receipt) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET donated_cents = donated_cents + $2, updated_at = NOW() WHERE id = $1`,
			id, int64(delta))
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		if receipt == nil {
			return nil
		}
		return insertReceipt(ctx, tx, receipt)
	})
}
