package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// Account statuses.
const (
	StatusPending             = "pending"
	StatusPendingVerification = "pendingVerification"
	StatusActive              = "active"
	StatusSuspended           = "suspended"
	StatusRejected            = "rejected"
	StatusDeactivated         = "deactivated"
)

// Membership types.
const (
	MembershipGeneral   = "general"
	MembershipPatron    = "patron"
	MembershipAssociate = "associate"
	MembershipSupporter = "supporter"
)

// Roles.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPendingVerification, StatusActive, StatusSuspended, StatusRejected, StatusDeactivated:
		return true
	}
	return false
}

func ValidMembershipType(s string) bool {
	switch s {
	case MembershipGeneral, MembershipPatron, MembershipAssociate, MembershipSupporter:
		return true
	}
	return false
}

func ValidRole(s string) bool {
	return s == RoleUser || s == RoleAdmin || s == RoleSuperAdmin
}

// User is a member account.
type User struct {
	ID             int64           `json:"_id,string"`
	FullName       string          `json:"fullName"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Contact        string          `json:"contact"`
	Profession     string          `json:"profession"`
	Address        string          `json:"address"`
	PasswordHash   string          `json:"-"`
	PasswordAlgo   string          `json:"-"`
	ProfilePicture string          `json:"profilePicture"`
	City           string          `json:"city"`
	State          string          `json:"state"`
	CanReceiveText bool            `json:"canReceiveText"`
	HasSpouse      bool            `json:"hasSpouse"`
	Spouse         *Spouse         `json:"spouse"`
	FamilyMembers  FamilyMembers   `json:"familyMembers"`
	MembershipType string          `json:"membershipType"`
	MembershipFee  utilities.Cents `json:"membershipFee"`
	MembershipPaid bool            `json:"membershipPaid"`
	// MembershipPaidAt is set whenever membershipPaid is switched on.
	MembershipPaidAt  *time.Time         `json:"membershipPaidAt"`
	DonatedAmount     utilities.Cents    `json:"donatedAmount"`
	MembershipReceipt *MembershipReceipt `json:"membershipReceipt"`
	Receipts          []Receipt          `json:"receipts"`
	StatusReason      *string            `json:"statusReason"`
	AccountLocked     bool               `json:"accountLocked"`
	LoginAttempts     int                `json:"loginAttempts"`
	LoginLogs         []LoginLog         `json:"loginLogs"`
	AccountStatus     string             `json:"accountStatus"`
	AccountExpiry     *time.Time         `json:"accountExpiry"`
	Role              string             `json:"role"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// MembershipReceipt is an uploaded proof of payment waiting for review.
type MembershipReceipt struct {
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Receipt is a permanent entry in a member's receipt history. Receipts
// created from card payments carry no receipt number.
type Receipt struct {
	ID            int64     `db:"id" json:"_id,string"`
	UserID        int64     `db:"user_id" json:"-"`
	ReceiptNumber *string   `db:"receipt_number" json:"receiptNumber,omitempty"`
	FileName      string    `db:"file_name" json:"fileName"`
	FilePath      string    `db:"file_path" json:"filePath"`
	Remarks       string    `db:"remarks" json:"remarks,omitempty"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploadedAt"`
}

type LoginLog struct {
	Timestamp time.Time `db:"logged_at" json:"timestamp"`
	IP        string    `db:"ip" json:"ip"`
	UserAgent string    `db:"user_agent" json:"userAgent"`
}

type Spouse struct {
	FullName   string `json:"fullName"`
	Profession string `json:"profession"`
	Contact    string `json:"contact"`
	Email      string `json:"email"`
}

func (s Spouse) Value() (driver.Value, error) { return jsonValue(s) }

func (s *Spouse) Scan(src any) error { return scanJSON(src, s) }

type FamilyMember struct {
	FullName     string `json:"fullName"`
	Profession   string `json:"profession"`
	Email        string `json:"email"`
	Relationship string `json:"relationship"`
}

type FamilyMembers []FamilyMember

func (f FamilyMembers) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	return jsonValue([]FamilyMember(f))
}

func (f *FamilyMembers) Scan(src any) error { return scanJSON(src, (*[]FamilyMember)(f)) }

// jsonb parameters are sent as text
func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported jsonb source")
	}
}

// DeletedUser is the archive row written when an account is removed.
type DeletedUser struct {
	ID             int64           `db:"id" json:"_id,string"`
	OriginalUserID int64           `db:"original_user_id" json:"originalUserId,string"`
	FullName       string          `db:"full_name" json:"fullName"`
	Username       string          `db:"username" json:"username"`
	Email          string          `db:"email" json:"email"`
	Address        string          `db:"address" json:"address"`
	Contact        string          `db:"contact" json:"contact"`
	Profession     string          `db:"profession" json:"profession"`
	MembershipType string          `db:"membership_type" json:"membershipType"`
	MembershipFee  utilities.Cents `db:"membership_fee_cents" json:"membershipFee"`
	MembershipPaid bool            `db:"membership_paid" json:"membershipPaid"`
	DonatedAmount  utilities.Cents `db:"donated_cents" json:"donatedAmount"`
	AccountExpiry  *time.Time      `db:"account_expiry" json:"accountExpiry"`
	Role           string          `db:"role" json:"role"`
	DeletedBy      int64           `db:"deleted_by" json:"deletedBy,string"`
	DeletedAt      time.Time       `db:"deleted_at" json:"deletedAt"`
	Reason         string          `db:"reason" json:"reason"`
}

// Archive snapshots u for deletion.
func Archive(u *User, id, deletedBy int64, reason string, at time.Time) *DeletedUser {
	return &DeletedUser{
		ID:             id,
		OriginalUserID: u.ID,
		FullName:       u.FullName,
		Username:       u.Username,
		Email:          u.Email,
		Address:        u.Address,
		Contact:        u.Contact,
		Profession:     u.Profession,
		MembershipType: u.MembershipType,
		MembershipFee:  u.MembershipFee,
		MembershipPaid: u.MembershipPaid,
		DonatedAmount:  u.DonatedAmount,
		AccountExpiry:  u.AccountExpiry,
		Role:           u.Role,
		DeletedBy:      deletedBy,
		DeletedAt:      at,
		Reason:         reason,
	}
}

// PasswordResetRequest records an emailed reset link.
type PasswordResetRequest struct {
	Token     string    `db:"token"`
	UserID    int64     `db:"user_id"`
	Email     string    `db:"email"`
	EmailSent bool      `db:"email_sent"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Summary is the short projection returned by most mutations.
type Summary struct {
	ID             int64      `json:"_id,string"`
	FullName       string     `json:"fullName,omitempty"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Role           string     `json:"role,omitempty"`
	MembershipType string     `json:"membershipType,omitempty"`
	AccountStatus  string     `json:"accountStatus,omitempty"`
	AccountExpiry  *time.Time `json:"accountExpiry,omitempty"`
	MembershipPaid *bool      `json:"membershipPaid,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}
