package password

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a submitted secret against a stored hash of any supported
// format. It is safe for concurrent use.
type Verifier struct {
	argon *Argon2
	decoy string
}

// NewVerifier builds a Verifier whose argon2id parameters also drive the
// decoy hash used by DummyVerify.
func NewVerifier(cfg Config) (*Verifier, error) {
	argon, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}

	var seed [24]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	decoy, err := argon.Hash(base64.RawURLEncoding.EncodeToString(seed[:]))
	if err != nil {
		return nil, err
	}

	return &Verifier{argon: argon, decoy: decoy}, nil
}

// Verify reports whether secret matches encoded. Unknown or malformed hash
// formats never match.
func (v *Verifier) Verify(secret, encoded string) bool {
	if secret == "" || encoded == "" {
		return false
	}

	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		ok, err := v.argon.Verify(secret, encoded)
		return err == nil && ok
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)) == nil
	default:
		return false
	}
}

// DummyVerify spends one argon2id derivation on a decoy hash. Login calls it
// for unknown accounts so response time does not reveal account existence.
func (v *Verifier) DummyVerify(secret string) {
	_, _ = v.argon.Verify(secret, v.decoy)
}

// Hasher exposes the underlying argon2id hasher for seeding and upgrades.
func (v *Verifier) Hasher() *Argon2 {
	return v.argon
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
