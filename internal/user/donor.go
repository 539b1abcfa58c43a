package user

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/donation"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

var _ donation.Donors = (*Service)(nil)

func (s *Service) LookupDonor(ctx context.Context, userID int64) (donation.Donor, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return donation.Donor{}, err
	}
	return donation.Donor{ID: u.ID, FullName: u.FullName, Email: u.Email}, nil
}

// CreditDonation adds a card payment to the member's donated total and
// receipt history.
func (s *Service) CreditDonation(ctx context.Context, userID int64, amount utilities.Cents, paymentIntentID, remarks string) error {
	r := &entity.Receipt{
		ID:         s.ids.NextID(),
		UserID:     userID,
		FileName:   "Stripe_" + paymentIntentID,
		FilePath:   "/receipts/" + paymentIntentID + ".pdf",
		Remarks:    remarks,
		UploadedAt: s.now(),
	}
	return s.store.AdjustDonated(ctx, userID, amount, r)
}

// DebitDonation removes a refunded amount from the donated total.
func (s *Service) DebitDonation(ctx context.Context, userID int64, amount utilities.Cents) error {
	return s.store.AdjustDonated(ctx, userID, -amount, nil)
}
