package jwt

import (
	"testing"
	"time"
)

// FuzzValidateAccess feeds arbitrary strings to the validator: no panics, and
// nothing but the seeded token may validate.
func FuzzValidateAccess(f *testing.F) {
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    hmacKey,
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	valid, err := m.IssueAccess("acct-fuzz", now)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid.Token)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := m.ValidateAccess(token, now)
		if err == nil && claims.AccountID != "acct-fuzz" {
			t.Fatalf("unexpected valid token for %q", claims.AccountID)
		}
	})
}
