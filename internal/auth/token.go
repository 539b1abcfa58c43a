// Package auth issues and verifies bearer tokens and decides which roles may
// reach which routes.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeAccess = "access"
	purposeReset  = "password-reset"

	// ResetTTL bounds the lifetime of password reset links.
	ResetTTL = time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of both access and reset tokens.
type Claims struct {
	UserID  int64  `json:"userId,string"`
	Role    string `json:"role,omitempty"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, issuer: "member-api", now: time.Now}
}

// Issue creates an access token for userID carrying role.
func (i *Issuer) Issue(userID int64, role string) (string, error) {
	return i.sign(Claims{UserID: userID, Role: role, Purpose: purposeAccess}, i.ttl)
}

// IssueReset creates a one hour password reset token.
func (i *Issuer) IssueReset(userID int64, email string) (string, error) {
	return i.sign(Claims{UserID: userID, Email: email, Purpose: purposeReset}, ResetTTL)
}

func (i *Issuer) sign(c Claims, ttl time.Duration) (string, error) {
	now := i.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   strconv.FormatInt(c.UserID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies an access token.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	return i.parse(raw, purposeAccess)
}

// ParseReset verifies a password reset token.
func (i *Issuer) ParseReset(raw string) (*Claims, error) {
	return i.parse(raw, purposeReset)
}

func (i *Issuer) parse(raw, purpose string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Purpose != purpose || c.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return &c, nil
}
