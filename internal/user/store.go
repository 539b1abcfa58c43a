package user

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// Store persists members. Lookups that match nothing return an error
// wrapping apperror.ErrNotFound.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	// GetByID loads the user with receipts and login logs.
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	FindByLogin(ctx context.Context, usernameOrEmail string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	// Taken reports whether another account than exceptID uses username or email.
	Taken(ctx context.Context, username, email string, exceptID int64) (bool, error)
	List(ctx context.Context) ([]*entity.User, error)
	// Update writes the profile, membership and role fields of u.
	Update(ctx context.Context, u *entity.User) error

	// RecordFailedLogin increments the attempt counter and locks the account
	// once it reaches threshold, in a single statement.
	RecordFailedLogin(ctx context.Context, id int64, threshold int) (attempts int, locked bool, err error)
	// RecordLogin clears attempts and lock and appends log.
	RecordLogin(ctx context.Context, id int64, log entity.LoginLog) error
	SetPassword(ctx context.Context, id int64, hash, algo string) error

	// SaveVerification persists a status decision. When promoted is set it is
	// inserted and the pending membership receipt cleared in the same
	// transaction.
	SaveVerification(ctx context.Context, u *entity.User, promoted *entity.Receipt) error
	// SetMembershipReceipt stores the pending receipt and moves the account
	// to pendingVerification.
	SetMembershipReceipt(ctx context.Context, id int64, r entity.MembershipReceipt) error
	SetProfilePicture(ctx context.Context, id int64, path string) error
	AddReceipt(ctx context.Context, r *entity.Receipt) error
	DeleteReceipt(ctx context.Context, userID, receiptID int64) error
	SetRole(ctx context.Context, id int64, role string) error
	// ArchiveAndDelete writes d and removes the live account atomically.
	ArchiveAndDelete(ctx context.Context, d *entity.DeletedUser) error

	// AdjustDonated adds delta (negative for refunds) to the donated total and
	// appends receipt when non-nil.
	AdjustDonated(ctx context.Context, id int64, delta utilities.Cents, receipt *entity.Receipt) error
}

// ResetStore keeps outstanding password reset links.
type ResetStore interface {
	Save(ctx context.Context, r entity.PasswordResetRequest) error
	Get(ctx context.Context, token string) (*entity.PasswordResetRequest, error)
	Delete(ctx context.Context, token string) error
}
