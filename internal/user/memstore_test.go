package user

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// memStore is an in-memory Store. It hands out copies so callers cannot
// mutate stored state without going through the interface.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*entity.User
	archived []*entity.DeletedUser
	failSave error
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*entity.User{}}
}

func clone(u *entity.User) *entity.User {
	c := *u
	c.Receipts = append([]entity.Receipt{}, u.Receipts...)
	c.LoginLogs = append([]entity.LoginLog{}, u.LoginLogs...)
	c.FamilyMembers = append(entity.FamilyMembers{}, u.FamilyMembers...)
	if u.MembershipReceipt != nil {
		mr := *u.MembershipReceipt
		c.MembershipReceipt = &mr
	}
	return &c
}

func notFound() error { return apperror.NotFound("User not found.") }

func (m *memStore) put(u *entity.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = clone(u)
}

func (m *memStore) get(id int64) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return clone(u)
	}
	return nil
}

func (m *memStore) Create(_ context.Context, u *entity.User) error {
	m.put(u)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.User, error) {
	if u := m.get(id); u != nil {
		return u, nil
	}
	return nil, notFound()
}

func (m *memStore) find(match func(*entity.User) bool) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, notFound()
}

func (m *memStore) FindByLogin(_ context.Context, login string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool {
		return u.Username == login || strings.EqualFold(u.Email, login)
	})
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memStore) Taken(_ context.Context, username, email string, except int64) (bool, error) {
	_, err := m.find(func(u *entity.User) bool {
		return u.ID != except && (u.Username == username || strings.EqualFold(u.Email, email))
	})
	return err == nil, nil
}

func (m *memStore) List(context.Context) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, clone(u))
	}
	return out, nil
}

func (m *memStore) update(id int64, fn func(u *entity.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return notFound()
	}
	fn(u)
	return nil
}

func (m *memStore) Update(_ context.Context, u *entity.User) error {
	return m.update(u.ID, func(s *entity.User) {
		receipts, logs := s.Receipts, s.LoginLogs
		*s = *clone(u)
		s.Receipts, s.LoginLogs = receipts, logs
	})
}

func (m *memStore) RecordFailedLogin(_ context.Context, id int64, threshold int) (int, bool, error) {
	var attempts int
	var locked bool
	err := m.update(id, func(u *entity.User) {
		u.LoginAttempts++
		if u.LoginAttempts >= threshold {
			u.AccountLocked = true
		}
		attempts, locked = u.LoginAttempts, u.AccountLocked
	})
	return attempts, locked, err
}

func (m *memStore) RecordLogin(_ context.Context, id int64, log entity.LoginLog) error {
	return m.update(id, func(u *entity.User) {
		u.LoginAttempts = 0
		u.AccountLocked = false
		u.LoginLogs = append(u.LoginLogs, log)
	})
}

func (m *memStore) SetPassword(_ context.Context, id int64, hash, algo string) error {
	return m.update(id, func(u *entity.User) { u.PasswordHash, u.PasswordAlgo = hash, algo })
}

func (m *memStore) SaveVerification(_ context.Context, u *entity.User, promoted *entity.Receipt) error {
	if m.failSave != nil {
		return m.failSave
	}
	return m.update(u.ID, func(s *entity.User) {
		s.AccountStatus = u.AccountStatus
		s.StatusReason = u.StatusReason
		s.MembershipFee = u.MembershipFee
		s.MembershipPaid = u.MembershipPaid
		s.MembershipPaidAt = u.MembershipPaidAt
		s.AccountExpiry = u.AccountExpiry
		s.MembershipReceipt = u.MembershipReceipt
		if promoted != nil {
			s.Receipts = append(s.Receipts, *promoted)
		}
	})
}

func (m *memStore) SetMembershipReceipt(_ context.Context, id int64, mr entity.MembershipReceipt) error {
	return m.update(id, func(u *entity.User) {
		u.MembershipReceipt = &mr
		u.AccountStatus = entity.StatusPendingVerification
	})
}

func (m *memStore) SetProfilePicture(_ context.Context, id int64, path string) error {
	return m.update(id, func(u *entity.User) { u.ProfilePicture = path })
}

func (m *memStore) AddReceipt(_ context.Context, r *entity.Receipt) error {
	return m.update(r.UserID, func(u *entity.User) { u.Receipts = append(u.Receipts, *r) })
}

func (m *memStore) DeleteReceipt(_ context.Context, userID, receiptID int64) error {
	var found bool
	err := m.update(userID, func(u *entity.User) {
		for i, r := range u.Receipts {
			if r.ID == receiptID {
				u.Receipts = append(u.Receipts[:i], u.Receipts[i+1:]...)
				found = true
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return apperror.NotFound("Receipt not found.")
	}
	return nil
}

func (m *memStore) SetRole(_ context.Context, id int64, role string) error {
	return m.update(id, func(u *entity.User) { u.Role = role })
}

func (m *memStore) ArchiveAndDelete(_ context.Context, d *entity.DeletedUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[d.OriginalUserID]; !ok {
		return notFound()
	}
	m.archived = append(m.archived, d)
	delete(m.users, d.OriginalUserID)
	return nil
}

func (m *memStore) AdjustDonated(_ context.Context, id int64, delta utilities.Cents, r *entity.Receipt) error {
	return m.update(id, func(u *entity.User) {
		u.DonatedAmount += delta
		if r != nil {
			u.Receipts = append(u.Receipts, *r)
		}
	})
}

type memResets struct {
	mu   sync.Mutex
	reqs map[string]entity.PasswordResetRequest
}

func newMemResets() *memResets {
	return &memResets{reqs: map[string]entity.PasswordResetRequest{}}
}

func (m *memResets) Save(_ context.Context, r entity.PasswordResetRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[r.Token] = r
	return nil
}

func (m *memResets) Get(_ context.Context, token string) (*entity.PasswordResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[token]
	if !ok {
		return nil, apperror.NotFound("Reset request not found.")
	}
	return &r, nil
}

func (m *memResets) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reqs, token)
	return nil
}

// seqCounter stands in for the receipt counter.
type seqCounter struct {
	mu  sync.Mutex
	n   int64
	err error
}

func (c *seqCounter) Next(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.n++
	return c.n, nil
}

// memFiles stores uploads in memory.
type memFiles struct {
	saved []upload.File
}

func (f *memFiles) Save(_ context.Context, file upload.File) (upload.Stored, error) {
	f.saved = append(f.saved, file)
	name := fmt.Sprintf("file%d-%s", len(f.saved), file.OriginalName)
	return upload.Stored{FileName: name, Path: "/uploads/" + file.Category + "/" + name}, nil
}
