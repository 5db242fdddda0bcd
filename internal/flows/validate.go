package flows

import (
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// ValidateResult carries the decoded claims or the parse error.
type ValidateResult struct {
	Claims jwt.Claims
	Err    error
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	Now         func() time.Time
	ParseAccess func(token string, now time.Time) (jwt.Claims, error)
}

// RunValidate checks signature and expiry of an access token. It touches no
// store.
func RunValidate(token string, deps ValidateDeps) ValidateResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	claims, err := deps.ParseAccess(token, deps.Now())
	if err != nil {
		return ValidateResult{Err: err}
	}
	return ValidateResult{Claims: claims}
}
