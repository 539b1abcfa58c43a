package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

// MsgResetSent is returned whether or not the address belongs to an account.
const MsgResetSent = "If a user with that email exists, a reset link has been sent."

const minPasswordLen = 6

var errInvalidReset = apperror.BadRequest("Invalid or expired token. Please request a new password reset link.")

// ForgotPassword emails a one hour reset link when email matches an account.
// Unknown addresses succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperror.BadRequest("Email is required.")
	}
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	token, err := s.tokens.IssueReset(u.ID, u.Email)
	if err != nil {
		return err
	}
	link := s.resetLinkBase + "/" + token

	sent := false
	if msg, err := mailer.ResetLink(u.Email, link); err != nil {
		s.logger.Warnw("render reset email", "err", err)
	} else if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warnw("send reset email", "err", err, "userId", u.ID)
	} else {
		sent = true
	}

	now := s.now()
	req := entity.PasswordResetRequest{
		Token:     token,
		UserID:    u.ID,
		Email:     u.Email,
		EmailSent: sent,
		CreatedAt: now,
		ExpiresAt: now.Add(auth.ResetTTL),
	}
	if err := s.resets.Save(ctx, req); err != nil {
		return fmt.Errorf("save reset request: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset link. The token must both verify and still
// be on record; it cannot be used twice.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return apperror.BadRequest("Token and new password are required.")
	}
	if len(newPassword) < minPasswordLen {
		return apperror.BadRequest("Password must be at least 6 characters.")
	}
	rec, err := s.resets.Get(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return errInvalidReset
		}
		return fmt.Errorf("load reset request: %w", err)
	}
	claims, err := s.tokens.ParseReset(token)
	if err != nil || claims.UserID != rec.UserID || rec.ExpiresAt.Before(s.now()) {
		return errInvalidReset
	}
	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	hash, algo, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetPassword(ctx, u.ID, hash, algo); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if err := s.resets.Delete(ctx, token); err != nil {
		s.logger.Warnw("delete reset request", "err", err, "userId", u.ID)
	}

	name := u.Username
	if name == "" {
		name = u.Email
	}
	if msg, err := mailer.ResetConfirmation(u.Email, name); err != nil {
		s.logger.Warnw("render reset confirmation", "err", err)
	} else if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warnw("send reset confirmation", "err", err, "userId", u.ID)
	}
	return nil
}

// AdminResetPassword replaces the password of id with a generated one and
// emails it to the member.
func (s *Service) AdminResetPassword(ctx context.Context, id int64) (*entity.User, error) {
	if id == 0 {
		return nil, apperror.BadRequest("User not found!")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.BadRequest("User not found!")
		}
		return nil, err
	}
	pw, err := GeneratePassword(8)
	if err != nil {
		return nil, err
	}
	hash, algo, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetPassword(ctx, u.ID, hash, algo); err != nil {
		return nil, fmt.Errorf("set password: %w", err)
	}
	msg, err := mailer.PasswordChanged(u.Email, u.Username, pw)
	if err != nil {
		return nil, err
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		// the member cannot learn the new password any other way
		return nil, fmt.Errorf("send new password: %w", err)
	}
	s.logger.Infow("password reset by admin", "userId", u.ID)
	return u, nil
}

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "@#!^%*"
)

// GeneratePassword returns a random password of length n (at least 4)
// holding at least one upper case letter, lower case letter, digit and symbol.
func GeneratePassword(n int) (string, error) {
	if n < 4 {
		n = 4
	}
	all := upperChars + lowerChars + digitChars + symbolChars
	out := make([]byte, 0, n)
	for _, set := range []string{upperChars, lowerChars, digitChars, symbolChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < n {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		k := j.Int64()
		out[i], out[k] = out[k], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("random: %w", err)
	}
	return set[i.Int64()], nil
}
