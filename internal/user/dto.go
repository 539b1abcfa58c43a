package user

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

var errFamilyFormat = apperror.BadRequest("Invalid familyMembers JSON format.")

// FlexBool accepts true/false as well as the strings "yes", "true" and "on".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*b = false
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "on", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// FamilyInput accepts family members as an array, an object keyed by index
// or a JSON encoded string of either.
type FamilyInput struct {
	Set     bool
	Members entity.FamilyMembers
}

func (f *FamilyInput) UnmarshalJSON(data []byte) error {
	f.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Members = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errFamilyFormat
		}
		if strings.TrimSpace(s) == "" {
			f.Members = nil
			return nil
		}
		data = []byte(s)
	}
	var list []entity.FamilyMember
	if err := json.Unmarshal(data, &list); err == nil {
		f.Members = list
		return nil
	}
	var obj map[string]entity.FamilyMember
	if err := json.Unmarshal(data, &obj); err != nil {
		return errFamilyFormat
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.Members = append(f.Members, obj[k])
	}
	return nil
}

// RegisterInput is the public sign-up form.
type RegisterInput struct {
	FullName       string         `json:"fullName"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	Contact        string         `json:"contact"`
	Profession     string         `json:"profession"`
	Address        string         `json:"address"`
	Password       string         `json:"password"`
	MembershipType string         `json:"membershipType"`
	City           string         `json:"city"`
	State          string         `json:"state"`
	CanReceiveText FlexBool       `json:"canReceiveText"`
	HasSpouse      FlexBool       `json:"hasSpouse"`
	Spouse         *entity.Spouse `json:"spouse"`
	FamilyMembers  FamilyInput    `json:"familyMembers"`
}

type LoginInput struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
	IP              string `json:"-"`
	UserAgent       string `json:"-"`
}

// ProfilePatch holds the fields a member may change on their own profile.
type ProfilePatch struct {
	FullName   *string `json:"fullName"`
	Address    *string `json:"address"`
	Contact    *string `json:"contact"`
	Profession *string `json:"profession"`
}

// AdminPatch holds the fields an administrator may change on any account.
type AdminPatch struct {
	Username       *string        `json:"username"`
	Email          *string        `json:"email"`
	FullName       *string        `json:"fullName"`
	Address        *string        `json:"address"`
	Contact        *string        `json:"contact"`
	Profession     *string        `json:"profession"`
	MembershipType *string        `json:"membershipType"`
	AccountStatus  *string        `json:"accountStatus"`
	MembershipPaid *bool          `json:"membershipPaid"`
	HasSpouse      *bool          `json:"hasSpouse"`
	Spouse         *entity.Spouse `json:"spouse"`
	FamilyMembers  FamilyInput    `json:"familyMembers"`
}

// VerifyInput is an administrator's decision on an account.
type VerifyInput struct {
	UserID          int64            `json:"userId,string"`
	NewStatus       string           `json:"newStatus"`
	StatusReason    *string          `json:"statusReason"`
	MembershipFee   *utilities.Cents `json:"membershipFee"`
	MembershipPaid  *bool            `json:"membershipPaid"`
	SetExpiryInDays int              `json:"setExpiryInDays"`
}

func trimmed(p *string) string { return strings.TrimSpace(*p) }

func summarize(u *entity.User) entity.Summary {
	return entity.Summary{
		ID:             u.ID,
		FullName:       u.FullName,
		Username:       u.Username,
		Email:          u.Email,
		MembershipType: u.MembershipType,
		AccountStatus:  u.AccountStatus,
	}
}
