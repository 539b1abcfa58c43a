package user

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher verifies hashes carried over from the previous system.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was made with a lower cost than b's.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	want := b.Cost
	if want == 0 {
		want = bcrypt.DefaultCost
	}
	return cost < want
}

// Argon2Hasher produces $argon2id$ PHC strings.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

const (
	argonKeyLen  = 32
	argonSaltLen = 16
)

var errInvalidHash = errors.New("invalid password hash")

func (a Argon2Hasher) params() (uint32, uint32, uint8) {
	t, m, p := a.Time, a.Memory, a.Threads
	if t == 0 {
		t = 3
	}
	if m == 0 {
		m = 64 * 1024
	}
	if p == 0 {
		p = 2
	}
	return t, m, p
}

func (a Argon2Hasher) Hash(pw string) (string, string, error) {
	t, m, p := a.params()
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(pw), salt, t, m, p, argonKeyLen)
	h := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, m, t, p,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	)
	return h, "argon2id", nil
}

func (a Argon2Hasher) Verify(hash, pw string) bool {
	ph, err := parseArgon2(hash)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(pw), ph.salt, ph.time, ph.memory, ph.threads, uint32(len(ph.key)))
	return subtle.ConstantTimeCompare(got, ph.key) == 1
}

// NeedsRehash is true when hash is not argon2id or uses weaker parameters.
func (a Argon2Hasher) NeedsRehash(hash string) bool {
	ph, err := parseArgon2(hash)
	if err != nil {
		return true
	}
	t, m, p := a.params()
	return ph.time < t || ph.memory < m || ph.threads < p
}

type argon2Hash struct {
	time, memory uint32
	threads      uint8
	salt, key    []byte
}

func parseArgon2(hash string) (argon2Hash, error) {
	var ph argon2Hash
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ph, errInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return ph, errInvalidHash
	}
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &ph.memory, &ph.time, &threads); err != nil || threads > 255 {
		return ph, errInvalidHash
	}
	ph.threads = uint8(threads)
	var err error
	if ph.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return ph, errInvalidHash
	}
	if ph.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(ph.key) == 0 {
		return ph, errInvalidHash
	}
	return ph, nil
}

// MigratingHasher hashes with Primary and still accepts Legacy (bcrypt)
// hashes, which then report NeedsRehash so the caller can upgrade them.
type MigratingHasher struct {
	Primary Argon2Hasher
	Legacy  BcryptHasher
}

func (h MigratingHasher) Hash(pw string) (string, string, error) { return h.Primary.Hash(pw) }

func (h MigratingHasher) Verify(hash, pw string) bool {
	if isBcrypt(hash) {
		return h.Legacy.Verify(hash, pw)
	}
	return h.Primary.Verify(hash, pw)
}

func (h MigratingHasher) NeedsRehash(hash string) bool { return h.Primary.NeedsRehash(hash) }

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
