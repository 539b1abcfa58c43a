package user

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

// Promote grants or revokes the admin role. Superadmins keep their role.
func (s *Service) Promote(ctx context.Context, id int64, makeAdmin bool) (*entity.User, error) {
	if id == 0 {
		return nil, apperror.BadRequest("userIdToPromote is required.")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == entity.RoleSuperAdmin {
		return nil, apperror.BadRequest("A superadmin's role cannot be changed.")
	}
	role := entity.RoleUser
	if makeAdmin {
		role = entity.RoleAdmin
	}
	if err := s.store.SetRole(ctx, u.ID, role); err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	u.Role = role
	s.logger.Infow("role changed", "userId", u.ID, "role", role)
	return u, nil
}

// UpdateUser applies an administrator's edit of any account.
func (s *Service) UpdateUser(ctx context.Context, id int64, p AdminPatch) (*entity.User, error) {
	if id == 0 {
		return nil, apperror.BadRequest("No user ID specified.")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &apperror.Validation{}
	if p.Username != nil {
		if u.Username = trimmed(p.Username); u.Username == "" {
			v.Add("username", "Username is required.")
		}
	}
	if p.Email != nil {
		u.Email = strings.ToLower(trimmed(p.Email))
		if !registerEmail.MatchString(u.Email) {
			v.Add("email", "Please enter a valid email address.")
		}
	}
	if p.FullName != nil {
		if u.FullName = trimmed(p.FullName); u.FullName == "" {
			v.Add("fullName", "Full Name is required.")
		}
	}
	if p.Address != nil {
		u.Address = trimmed(p.Address)
	}
	if p.Contact != nil {
		u.Contact = trimmed(p.Contact)
	}
	if p.Profession != nil {
		u.Profession = trimmed(p.Profession)
	}
	if p.MembershipType != nil {
		if !entity.ValidMembershipType(*p.MembershipType) {
			v.Add("membershipType", "Invalid membership type.")
		}
		u.MembershipType = *p.MembershipType
	}
	if p.AccountStatus != nil {
		if !entity.ValidStatus(*p.AccountStatus) {
			v.Add("accountStatus", "Invalid status.")
		}
		u.AccountStatus = *p.AccountStatus
	}
	if p.MembershipPaid != nil {
		u.MembershipPaid = *p.MembershipPaid
	}
	if p.HasSpouse != nil {
		u.HasSpouse = *p.HasSpouse
	}
	if p.Spouse != nil {
		u.Spouse = p.Spouse
	}
	if p.FamilyMembers.Set {
		for _, m := range p.FamilyMembers.Members {
			if strings.TrimSpace(m.FullName) == "" {
				v.Add("familyMembers", "Each family member must have a fullName.")
			}
		}
		u.FamilyMembers = normalizeFamily(p.FamilyMembers.Members)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if p.Username != nil || p.Email != nil {
		taken, err := s.store.Taken(ctx, u.Username, u.Email, u.ID)
		if err != nil {
			return nil, fmt.Errorf("check duplicates: %w", err)
		}
		if taken {
			return nil, apperror.BadRequest(msgDuplicate)
		}
	}

	u.UpdatedAt = s.now()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// DeleteUser archives id and removes the live account.
func (s *Service) DeleteUser(ctx context.Context, id, actorID int64, reason string) (*entity.User, error) {
	if id == 0 {
		return nil, apperror.BadRequest("No userId provided.")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if id == actorID {
		return nil, apperror.BadRequest("You cannot delete your own account.")
	}
	archive := entity.Archive(u, s.ids.NextID(), actorID, strings.TrimSpace(reason), s.now())
	if err := s.store.ArchiveAndDelete(ctx, archive); err != nil {
		return nil, fmt.Errorf("archive user: %w", err)
	}
	s.logger.Infow("user deleted", "userId", u.ID, "deletedBy", actorID)
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*entity.User, error) {
	return s.store.List(ctx)
}

// DeleteReceipt removes one entry from a member's receipt history.
func (s *Service) DeleteReceipt(ctx context.Context, userID, receiptID int64) error {
	if userID == 0 || receiptID == 0 {
		return apperror.BadRequest("userId and receiptId are required.")
	}
	if _, err := s.store.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteReceipt(ctx, userID, receiptID); err != nil {
		return err
	}
	return nil
}

// SendIDCard emails a rendered membership card. image is a base64 PNG,
// optionally as a data URL.
func (s *Service) SendIDCard(ctx context.Context, image, fullName, email string) error {
	email = strings.TrimSpace(email)
	if image == "" || email == "" {
		return apperror.BadRequest("Missing data")
	}
	png, err := base64.StdEncoding.DecodeString(mailer.StripDataURL(image))
	if err != nil {
		return apperror.BadRequest("Image must be a base64 encoded PNG.")
	}
	if err := s.mail.Send(ctx, mailer.IDCard(email, fullName, png)); err != nil {
		return fmt.Errorf("send id card: %w", err)
	}
	return nil
}

// EnsureSuperAdmin creates an active superadmin account, or raises the
// existing account with that email to superadmin. It reports whether a new
// account was created.
func (s *Service) EnsureSuperAdmin(ctx context.Context, username, email, password string) (*entity.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if username == "" || !registerEmail.MatchString(email) || len(password) < minPasswordLen {
		return nil, false, apperror.BadRequest("A username, a valid email and a password of at least 6 characters are required.")
	}

	existing, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != entity.RoleSuperAdmin {
			if err := s.store.SetRole(ctx, existing.ID, entity.RoleSuperAdmin); err != nil {
				return nil, false, fmt.Errorf("set role: %w", err)
			}
			existing.Role = entity.RoleSuperAdmin
		}
		return existing, false, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, false, fmt.Errorf("find admin: %w", err)
	}

	taken, err := s.store.Taken(ctx, username, email, 0)
	if err != nil {
		return nil, false, fmt.Errorf("check duplicates: %w", err)
	}
	if taken {
		return nil, false, apperror.BadRequest(msgDuplicate)
	}
	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &entity.User{
		ID:             s.ids.NextID(),
		FullName:       "Administrator",
		Username:       username,
		Email:          email,
		Contact:        "-",
		Profession:     "Administrator",
		PasswordHash:   hash,
		PasswordAlgo:   algo,
		City:           "-",
		State:          "-",
		FamilyMembers:  entity.FamilyMembers{},
		MembershipType: entity.MembershipGeneral,
		AccountStatus:  entity.StatusActive,
		Role:           entity.RoleSuperAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Infow("superadmin created", "userId", u.ID, "username", u.Username)
	return u, true, nil
}
