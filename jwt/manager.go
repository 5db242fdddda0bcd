package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"

	// TokenTypeAccess is the value of the "typ" claim on access tokens.
	TokenTypeAccess = "access"

	minHMACKeyBytes = 32

	// timePrecision is the resolution of iat and exp. Issuance and validation
	// both work at this resolution, so a token issued at t stays valid through
	// t+AccessTTL.
	timePrecision = time.Millisecond
)

func init() {
	// exp is decoded through a float64; microsecond wire digits keep enough
	// headroom for the value to round back to the issued millisecond.
	jwt.TimePrecision = time.Microsecond
}

var (
	// ErrInvalidToken is returned for any token that must not be trusted.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrTokenExpired wraps ErrInvalidToken for tokens past their expiry.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Config describes the signing material and claim policy of a Manager.
//
// KeyID is stamped into the "kid" header of issued tokens. VerifyKeys maps
// older key versions to their verification keys so tokens signed before a
// key rotation stay valid until they expire.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// AccessClaims is the JWT body of an access token.
type AccessClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// AccessToken is a freshly signed access token and its timing metadata.
type AccessToken struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the validated view of an access token.
type Claims struct {
	AccountID string
	TokenID   string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager signs and validates access tokens. It holds no mutable state and
// is safe for concurrent use.
type Manager struct {
	config     Config
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	verifyKeys map[string]any
}

// NewManager validates cfg and decodes its key material once.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("leeway must be within [0, 2m]")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, verifyKeys: make(map[string]any, len(cfg.VerifyKeys))}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeyBytes)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verifyKey = priv.Public()
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		key, err := m.decodeVerifyKey(raw)
		if err != nil {
			return nil, fmt.Errorf("verify key %q: %w", kid, err)
		}
		m.verifyKeys[kid] = key
	}

	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// IssueAccess signs an access token for accountID valid from now until
// now+AccessTTL. Times are carried at millisecond precision.
func (m *Manager) IssueAccess(accountID string, now time.Time) (AccessToken, error) {
	if accountID == "" {
		return AccessToken{}, errors.New("empty account id")
	}

	issuedAt := jwt.NewNumericDate(now.Truncate(timePrecision))
	expiresAt := jwt.NewNumericDate(now.Add(m.config.AccessTTL).Truncate(timePrecision))
	claims := AccessClaims{
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return AccessToken{
		Token:     signed,
		TokenID:   claims.ID,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// ValidateAccess checks signature, key version, token type and expiry at now.
// A token is valid while now <= exp (plus leeway), compared at millisecond
// precision. Every failure wraps
// ErrInvalidToken.
func (m *Manager) ValidateAccess(tokenStr string, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var kid string
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ = t.Header["kid"].(string)
		return m.keyFor(kid)
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if err := m.checkClaims(claims, now); err != nil {
		return Claims{}, err
	}

	return Claims{
		AccountID: claims.Subject,
		TokenID:   claims.ID,
		KeyID:     kid,
		IssuedAt:  claims.IssuedAt.Time.Round(timePrecision),
		ExpiresAt: claims.ExpiresAt.Time.Round(timePrecision),
	}, nil
}

func (m *Manager) checkClaims(claims *AccessClaims, now time.Time) error {
	if claims.Type != TokenTypeAccess {
		return fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return fmt.Errorf("%w: missing time claims", ErrInvalidToken)
	}
	now = now.Truncate(timePrecision)
	if now.After(claims.ExpiresAt.Time.Round(timePrecision).Add(m.config.Leeway)) {
		return ErrTokenExpired
	}
	if claims.IssuedAt.Time.Round(timePrecision).After(now.Add(m.config.Leeway)) {
		return fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	}
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return fmt.Errorf("%w: issuer", ErrInvalidToken)
	}
	if m.config.Audience != "" && !hasAudience(claims.Audience, m.config.Audience) {
		return fmt.Errorf("%w: audience", ErrInvalidToken)
	}
	return nil
}

func (m *Manager) keyFor(kid string) (any, error) {
	if kid == m.config.KeyID {
		return m.verifyKey, nil
	}
	if key, ok := m.verifyKeys[kid]; ok {
		return key, nil
	}
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

func (m *Manager) decodeVerifyKey(raw []byte) (any, error) {
	if m.config.SigningMethod == MethodHS256 {
		if len(raw) < minHMACKeyBytes {
			return nil, errors.New("hs256 verify key too short")
		}
		return raw, nil
	}
	return parseEdPublicKey(raw)
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
