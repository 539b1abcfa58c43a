// Package donation records card donations taken through Stripe and keeps
// member donation totals in step with payment and refund webhooks.
package donation

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// Donation is one successful charge.
type Donation struct {
	ID              int64           `db:"id" json:"_id,string"`
	UserID          int64           `db:"user_id" json:"-"`
	Amount          utilities.Cents `db:"amount_cents" json:"amount"`
	Remarks         string          `db:"remarks" json:"remarks"`
	PaymentIntentID string          `db:"payment_intent_id" json:"paymentIntentId"`
	CardBrand       string          `db:"card_brand" json:"cardBrand"`
	CardLast4       string          `db:"card_last4" json:"cardLast4"`
	Refunded        bool            `db:"refunded" json:"refunded"`
	RefundedAmount  utilities.Cents `db:"refunded_cents" json:"refundedAmount"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Donor is the member a donation is attributed to.
type Donor struct {
	ID       int64  `json:"_id,string"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Listed is a donation with its donor inlined under userId. Donor is nil
// when the member has since been deleted.
type Listed struct {
	Donation
	Donor *Donor `json:"userId"`
}

// Repository persists donation records.
type Repository interface {
	Create(ctx context.Context, d *Donation) error
	// MarkRefunded flags the donation for paymentIntentID. It reports whether
	// a record matched.
	MarkRefunded(ctx context.Context, paymentIntentID string, amount utilities.Cents) (bool, error)
	List(ctx context.Context) ([]Listed, error)
}

// Donors adjusts member accounts for donations.
type Donors interface {
	LookupDonor(ctx context.Context, userID int64) (Donor, error)
	// CreditDonation adds amount to the donated total and appends a card
	// receipt in one transaction.
	CreditDonation(ctx context.Context, userID int64, amount utilities.Cents, paymentIntentID, remarks string) error
	DebitDonation(ctx context.Context, userID int64, amount utilities.Cents) error
}
