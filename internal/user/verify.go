package user

import (
	"context"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/counter"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

// statuses an administrator may move an account to
var verifyTargets = map[string]bool{
	entity.StatusActive:      true,
	entity.StatusSuspended:   true,
	entity.StatusRejected:    true,
	entity.StatusDeactivated: true,
}

// VerifyUser applies an administrator's status decision. Activating an
// account with a pending membership receipt turns it into a numbered receipt.
func (s *Service) VerifyUser(ctx context.Context, in VerifyInput) (*entity.User, error) {
	if in.UserID == 0 || in.NewStatus == "" {
		return nil, apperror.BadRequest("userId and newStatus fields are required.")
	}
	if !verifyTargets[in.NewStatus] {
		return nil, apperror.BadRequest("Invalid status.")
	}
	u, err := s.store.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	pending := applyDecision(u, in, now)

	var promoted *entity.Receipt
	if pending != nil {
		n, err := s.counter.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocate receipt number: %w", err)
		}
		number := counter.Format(n)
		promoted = &entity.Receipt{
			ID:            s.ids.NextID(),
			UserID:        u.ID,
			ReceiptNumber: &number,
			FileName:      pending.FileName,
			FilePath:      pending.FilePath,
			UploadedAt:    now,
		}
		u.Receipts = append(u.Receipts, *promoted)
	}

	if err := s.store.SaveVerification(ctx, u, promoted); err != nil {
		return nil, fmt.Errorf("save verification: %w", err)
	}
	s.logger.Infow("user status updated", "userId", u.ID, "status", u.AccountStatus, "receiptPromoted", promoted != nil)
	return u, nil
}

// applyDecision mutates u for the decision in. It returns the pending
// membership receipt that must be promoted, which it has already cleared
// from u.
func applyDecision(u *entity.User, in VerifyInput, now time.Time) *entity.MembershipReceipt {
	var promote *entity.MembershipReceipt
	u.AccountStatus = in.NewStatus
	switch in.NewStatus {
	case entity.StatusRejected:
		u.MembershipReceipt = nil
		u.StatusReason = in.StatusReason
		u.MembershipFee = 0
		u.MembershipPaid = false
	case entity.StatusDeactivated:
		u.StatusReason = in.StatusReason
		u.MembershipFee = 0
		u.MembershipPaid = false
	case entity.StatusSuspended:
		u.StatusReason = in.StatusReason
	case entity.StatusActive:
		if in.MembershipFee != nil {
			u.MembershipFee = *in.MembershipFee
		}
		u.MembershipPaid = true
		u.StatusReason = nil
		if u.MembershipReceipt != nil && u.MembershipReceipt.FileName != "" {
			promote = u.MembershipReceipt
			u.MembershipReceipt = nil
		}
	}

	if in.MembershipPaid != nil {
		u.MembershipPaid = *in.MembershipPaid
		if u.MembershipPaid {
			t := now
			u.MembershipPaidAt = &t
		}
	}
	if in.SetExpiryInDays > 0 {
		exp := now.AddDate(0, 0, in.SetExpiryInDays)
		u.AccountExpiry = &exp
	}
	u.UpdatedAt = now
	return promote
}
