package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var hmacKey = []byte("0123456789abcdef0123456789abcdef")

func newHSManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    hmacKey,
		Issuer:        "authcore",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	m := newHSManager(t, nil)
	issuedAt := time.Unix(1_700_000_000, 0)

	tok, err := m.IssueAccess("acct-1", issuedAt)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !tok.ExpiresAt.Equal(issuedAt.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", tok.ExpiresAt)
	}

	for _, at := range []time.Time{issuedAt, issuedAt.Add(time.Minute), issuedAt.Add(15 * time.Minute)} {
		claims, err := m.ValidateAccess(tok.Token, at)
		if err != nil {
			t.Fatalf("validate at %v: %v", at, err)
		}
		if claims.AccountID != "acct-1" {
			t.Fatalf("expected subject acct-1, got %q", claims.AccountID)
		}
		if claims.TokenID != tok.TokenID {
			t.Fatalf("token id mismatch")
		}
	}
}

func TestFractionalIssueTimeKeepsFullLifetime(t *testing.T) {
	m := newHSManager(t, nil)

	for _, issuedAt := range []time.Time{
		time.Unix(1_700_000_000, 700*int64(time.Millisecond)),
		time.Unix(1_700_000_000, 700_400_000),
		time.Unix(1_700_000_000, 999*int64(time.Millisecond)),
	} {
		tok, err := m.IssueAccess("acct-1", issuedAt)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		want := issuedAt.Add(15 * time.Minute).Truncate(time.Millisecond)
		if !tok.ExpiresAt.Equal(want) {
			t.Fatalf("issued at %v: expected expiry %v, got %v", issuedAt, want, tok.ExpiresAt)
		}

		end := issuedAt.Add(15 * time.Minute)
		for _, at := range []time.Time{end.Add(-100 * time.Millisecond), end} {
			claims, err := m.ValidateAccess(tok.Token, at)
			if err != nil {
				t.Fatalf("issued at %v: validate at %v: %v", issuedAt, at, err)
			}
			if !claims.ExpiresAt.Equal(want) {
				t.Fatalf("decoded expiry %v, want %v", claims.ExpiresAt, want)
			}
		}

		if _, err := m.ValidateAccess(tok.Token, want.Add(time.Millisecond)); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("issued at %v: expected expiry one millisecond later, got %v", issuedAt, err)
		}
	}
}

func TestValidateRejectsAfterExpiry(t *testing.T) {
	m := newHSManager(t, nil)
	issuedAt := time.Unix(1_700_000_000, 0)

	tok, err := m.IssueAccess("acct-1", issuedAt)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = m.ValidateAccess(tok.Token, issuedAt.Add(15*time.Minute+time.Second))
	if !errors.Is(err, ErrTokenExpired) || !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	m := newHSManager(t, nil)
	now := time.Unix(1_700_000_000, 0)
	tok, _ := m.IssueAccess("acct-1", now)

	parts := strings.Split(tok.Token, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := m.ValidateAccess(strings.Join(parts, "."), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	other := newHSManager(t, func(c *Config) { c.PrivateKey = []byte("ffffffffffffffffffffffffffffffff") })
	if _, err := other.ValidateAccess(tok.Token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign key to be rejected, got %v", err)
	}
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ed, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new ed manager: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	tok, err := ed.IssueAccess("acct-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ed.ValidateAccess(tok.Token, now); err != nil {
		t.Fatalf("ed25519 round trip: %v", err)
	}

	hs := newHSManager(t, func(c *Config) { c.Issuer = "" })
	if _, err := hs.ValidateAccess(tok.Token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected algorithm mismatch to be rejected, got %v", err)
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	m := newHSManager(t, func(c *Config) { c.Issuer = "" })
	now := time.Unix(1_700_000_000, 0)

	claims := AccessClaims{
		Type: "refresh",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "acct-1",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hmacKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ValidateAccess(signed, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong typ to be rejected, got %v", err)
	}
}

func TestValidateIssuerAndAudience(t *testing.T) {
	m := newHSManager(t, func(c *Config) { c.Audience = "api" })
	other := newHSManager(t, func(c *Config) { c.Issuer = "someone-else"; c.Audience = "api" })
	now := time.Unix(1_700_000_000, 0)

	tok, _ := other.IssueAccess("acct-1", now)
	if _, err := m.ValidateAccess(tok.Token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}

	noAud := newHSManager(t, nil)
	tok, _ = noAud.IssueAccess("acct-1", now)
	if _, err := m.ValidateAccess(tok.Token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
}

func TestKeyVersionRotation(t *testing.T) {
	oldKey := []byte("old-old-old-old-old-old-old-old-")
	now := time.Unix(1_700_000_000, 0)

	v1 := newHSManager(t, func(c *Config) { c.PrivateKey = oldKey; c.KeyID = "v1" })
	tok, err := v1.IssueAccess("acct-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	v2 := newHSManager(t, func(c *Config) {
		c.KeyID = "v2"
		c.VerifyKeys = map[string][]byte{"v1": oldKey}
	})
	claims, err := v2.ValidateAccess(tok.Token, now)
	if err != nil {
		t.Fatalf("expected v1 token to validate under v2 manager: %v", err)
	}
	if claims.KeyID != "v1" {
		t.Fatalf("expected kid v1, got %q", claims.KeyID)
	}

	v2only := newHSManager(t, func(c *Config) { c.KeyID = "v2" })
	if _, err := v2only.ValidateAccess(tok.Token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown kid rejection, got %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"ttl":    {AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: hmacKey},
		"short":  {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"method": {AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: hmacKey},
		"ed":     {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("nope")},
		"leeway": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hmacKey, Leeway: time.Hour},
		"kid":    {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: hmacKey, VerifyKeys: map[string][]byte{" ": hmacKey}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewRefreshID(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		id, err := NewRefreshID()
		if err != nil {
			t.Fatalf("new refresh id: %v", err)
		}
		if !ValidRefreshID(id) {
			t.Fatalf("generated id %q failed shape check", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate refresh id %q", id)
		}
		seen[id] = struct{}{}
	}
	if ValidRefreshID("short") || ValidRefreshID("") {
		t.Fatal("expected malformed ids to be rejected")
	}
}
