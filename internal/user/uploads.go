package user

import (
	"context"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/counter"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

const msgAlreadyActive = "This membership is already active."

// SubmitMembershipReceipt stores proof of payment for review and moves the
// account to pendingVerification. A previous pending receipt is replaced.
// Active accounts are refused: the route is public and must not demote them.
func (s *Service) SubmitMembershipReceipt(ctx context.Context, userID int64, f upload.File) (*entity.MembershipReceipt, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.AccountStatus == entity.StatusActive {
		return nil, apperror.BadRequest(msgAlreadyActive)
	}
	stored, err := s.files.Save(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("store membership receipt: %w", err)
	}
	mr := entity.MembershipReceipt{FileName: stored.FileName, FilePath: stored.Path, UploadedAt: s.now()}
	if err := s.store.SetMembershipReceipt(ctx, u.ID, mr); err != nil {
		return nil, fmt.Errorf("save membership receipt: %w", err)
	}
	s.logger.Infow("membership receipt submitted", "userId", u.ID, "file", mr.FileName)
	return &mr, nil
}

// AddReceipt stores a receipt uploaded by the member and numbers it
// immediately.
func (s *Service) AddReceipt(ctx context.Context, userID int64, f upload.File) ([]entity.Receipt, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored, err := s.files.Save(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	n, err := s.counter.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate receipt number: %w", err)
	}
	number := counter.Format(n)
	r := entity.Receipt{
		ID:            s.ids.NextID(),
		UserID:        u.ID,
		ReceiptNumber: &number,
		FileName:      stored.FileName,
		FilePath:      stored.Path,
		UploadedAt:    s.now(),
	}
	if err := s.store.AddReceipt(ctx, &r); err != nil {
		return nil, fmt.Errorf("save receipt: %w", err)
	}
	return append(u.Receipts, r), nil
}

// SetProfilePicture stores an image and points the profile at it.
func (s *Service) SetProfilePicture(ctx context.Context, userID int64, f upload.File) (string, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	stored, err := s.files.Save(ctx, f)
	if err != nil {
		return "", fmt.Errorf("store profile picture: %w", err)
	}
	if err := s.store.SetProfilePicture(ctx, u.ID, stored.Path); err != nil {
		return "", fmt.Errorf("save profile picture: %w", err)
	}
	return stored.Path, nil
}
