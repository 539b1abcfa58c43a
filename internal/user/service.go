package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/counter"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// MaxLoginAttempts is the number of consecutive failures that locks an account.
const MaxLoginAttempts = 5

var (
	msgInvalidCredentials = "Invalid credentials."
	msgExpired            = "Your membership has expired. Please renew or contact admin."
	msgLocked             = "Account is locked due to too many failed logins. Please Contact Admin."
	msgDuplicate          = "Username or Email already exists."

	registerEmail = regexp.MustCompile(`^\S+@\S+\.\S+$`)
)

// Deps are the collaborators of Service. Mail, Files and IDs fall back to
// no-op or in-process defaults when nil.
type Deps struct {
	Store         Store
	Resets        ResetStore
	Counter       counter.Allocator
	Hasher        PasswordHasher
	Tokens        *auth.Issuer
	Mail          mailer.Sender
	Files         upload.Store
	IDs           utilities.IDGenerator
	Logger        *zap.SugaredLogger
	ResetLinkBase string
}

// Service orchestrates the member account lifecycle.
type Service struct {
	store         Store
	resets        ResetStore
	counter       counter.Allocator
	hasher        PasswordHasher
	tokens        *auth.Issuer
	mail          mailer.Sender
	files         upload.Store
	ids           utilities.IDGenerator
	logger        *zap.SugaredLogger
	resetLinkBase string
	now           func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:         d.Store,
		resets:        d.Resets,
		counter:       d.Counter,
		hasher:        d.Hasher,
		tokens:        d.Tokens,
		mail:          d.Mail,
		files:         d.Files,
		ids:           d.IDs,
		logger:        d.Logger,
		resetLinkBase: strings.TrimRight(d.ResetLinkBase, "/"),
		now:           time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.hasher == nil {
		s.hasher = MigratingHasher{}
	}
	if s.mail == nil {
		s.mail = mailer.NopSender{Logger: s.logger}
	}
	if s.ids == nil {
		s.ids = &utilities.SequenceGenerator{}
	}
	return s
}

// Register creates a pending account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	v := &apperror.Validation{}
	if strings.TrimSpace(in.FullName) == "" {
		v.Add("fullName", "Full Name is required.")
	}
	if strings.TrimSpace(in.Username) == "" {
		v.Add("username", "Username is required.")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		v.Add("email", "Email is required.")
	} else if !registerEmail.MatchString(email) {
		v.Add("email", "Please enter a valid email address.")
	}
	if strings.TrimSpace(in.State) == "" {
		v.Add("state", "State is required.")
	}
	if strings.TrimSpace(in.Contact) == "" {
		v.Add("contact", "Contact is required.")
	}
	if strings.TrimSpace(in.Profession) == "" {
		v.Add("profession", "Profession is required.")
	}
	if in.Password == "" {
		v.Add("password", "Password is required.")
	}
	mt := strings.TrimSpace(in.MembershipType)
	if mt == "" {
		mt = entity.MembershipGeneral
	} else if !entity.ValidMembershipType(mt) {
		v.Add("membershipType", "Invalid membership type.")
	}
	for _, m := range in.FamilyMembers.Members {
		if strings.TrimSpace(m.FullName) == "" {
			v.Add("familyMembers", "Each family member must have a fullName.")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	taken, err := s.store.Taken(ctx, username, email, 0)
	if err != nil {
		return nil, fmt.Errorf("check duplicates: %w", err)
	}
	if taken {
		return nil, apperror.BadRequest(msgDuplicate)
	}

	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	state := strings.TrimSpace(in.State)
	city := strings.TrimSpace(in.City)
	if city == "" || city == "Other" {
		city = state
	}
	now := s.now()
	u := &entity.User{
		ID:             s.ids.NextID(),
		FullName:       strings.TrimSpace(in.FullName),
		Username:       username,
		Email:          email,
		Contact:        strings.TrimSpace(in.Contact),
		Profession:     strings.TrimSpace(in.Profession),
		Address:        strings.TrimSpace(in.Address),
		PasswordHash:   hash,
		PasswordAlgo:   algo,
		City:           city,
		State:          state,
		CanReceiveText: bool(in.CanReceiveText),
		HasSpouse:      bool(in.HasSpouse),
		Spouse:         in.Spouse,
		FamilyMembers:  normalizeFamily(in.FamilyMembers.Members),
		MembershipType: mt,
		AccountStatus:  entity.StatusPending,
		Role:           entity.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if msg, err := mailer.Welcome(u.Email, u.Username); err != nil {
		s.logger.Warnw("render welcome email", "err", err)
	} else if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warnw("send welcome email", "err", err, "userId", u.ID)
	}
	s.logger.Infow("user registered", "userId", u.ID, "username", u.Username)
	return u, nil
}

func normalizeFamily(in entity.FamilyMembers) entity.FamilyMembers {
	out := make(entity.FamilyMembers, 0, len(in))
	for _, m := range in {
		out = append(out, entity.FamilyMember{
			FullName:     strings.TrimSpace(m.FullName),
			Profession:   strings.TrimSpace(m.Profession),
			Email:        strings.ToLower(strings.TrimSpace(m.Email)),
			Relationship: strings.TrimSpace(m.Relationship),
		})
	}
	return out
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Token string
	User  *entity.User
}

// Login runs the sign-in gate: expiry, status and lock checks come before the
// password is compared. Only a password mismatch counts as a failed attempt.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	id := strings.TrimSpace(in.UsernameOrEmail)
	if id == "" || in.Password == "" {
		return nil, apperror.BadRequest("Username/email and password are required.")
	}
	u, err := s.store.FindByLogin(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	if u.AccountExpiry != nil && u.AccountExpiry.Before(now) {
		return nil, apperror.Forbidden(msgExpired)
	}
	if u.AccountStatus == entity.StatusSuspended || u.AccountStatus == entity.StatusDeactivated {
		return nil, apperror.Forbidden(fmt.Sprintf("Account is %s. Please contact support.", u.AccountStatus))
	}
	if u.AccountLocked {
		return nil, apperror.Forbidden(msgLocked)
	}

	if !s.hasher.Verify(u.PasswordHash, in.Password) {
		attempts, locked, err := s.store.RecordFailedLogin(ctx, u.ID, MaxLoginAttempts)
		if err != nil {
			return nil, fmt.Errorf("record failed login: %w", err)
		}
		if locked {
			s.logger.Warnw("account locked", "userId", u.ID, "attempts", attempts)
		}
		remaining := MaxLoginAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		st := apperror.Unauthorized(msgInvalidCredentials)
		st.Extra = map[string]any{"attemptsRemaining": remaining}
		return nil, st
	}

	log := entity.LoginLog{Timestamp: now, IP: in.IP, UserAgent: in.UserAgent}
	if log.UserAgent == "" {
		log.UserAgent = "unknown"
	}
	if err := s.store.RecordLogin(ctx, u.ID, log); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LoginAttempts = 0
	u.AccountLocked = false
	u.LoginLogs = append(u.LoginLogs, log)

	if s.hasher.NeedsRehash(u.PasswordHash) {
		if hash, algo, err := s.hasher.Hash(in.Password); err == nil {
			if err := s.store.SetPassword(ctx, u.ID, hash, algo); err != nil {
				s.logger.Warnw("rehash password", "err", err, "userId", u.ID)
			}
		}
	}

	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Profile returns the caller's account.
func (s *Service) Profile(ctx context.Context, id int64) (*entity.User, error) {
	return s.store.GetByID(ctx, id)
}

// UpdateProfile applies the member-editable fields present in p.
func (s *Service) UpdateProfile(ctx context.Context, id int64, p ProfilePatch) (*entity.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.FullName != nil {
		u.FullName = trimmed(p.FullName)
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
	if u.FullName == "" {
		return nil, apperror.BadRequest("Full Name is required.")
	}
	u.UpdatedAt = s.now()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// LoadPrincipal resolves the live role of an authenticated caller.
func (s *Service) LoadPrincipal(ctx context.Context, id int64) (auth.Principal, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: u.ID, Role: u.Role}, nil
}
