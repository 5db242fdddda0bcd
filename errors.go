package authcore

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of failure classes returned by the Engine.
type Kind uint8

const (
	// KindUnknown is never produced by the Engine; it is what KindOf reports
	// for errors that did not originate here.
	KindUnknown Kind = iota
	// KindInvalidCredentials covers an unknown identifier, a wrong secret and
	// a disabled account. All three look identical to the caller.
	KindInvalidCredentials
	// KindAccountLocked means the lockout threshold was reached. The error
	// carries the remaining lock duration.
	KindAccountLocked
	// KindInvalidRefreshToken covers absent, expired, rotated and revoked
	// refresh tokens.
	KindInvalidRefreshToken
	// KindTransientStore is an infrastructure failure of the directory or a
	// Redis-backed store. Callers may retry with backoff.
	KindTransientStore
	// KindConfiguration is an invalid startup configuration.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountLocked:
		return "account_locked"
	case KindInvalidRefreshToken:
		return "invalid_refresh_token"
	case KindTransientStore:
		return "transient_store_error"
	case KindConfiguration:
		return "configuration_error"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidCredentials matches every KindInvalidCredentials error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked matches every KindAccountLocked error.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidRefreshToken matches every KindInvalidRefreshToken error.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrTransientStore matches every KindTransientStore error.
	ErrTransientStore = errors.New("transient store error")
	// ErrConfiguration matches every KindConfiguration error.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidAccessToken is returned by ValidateAccess.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrEngineNotReady is returned when a method is called on a nil or
	// partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var kindSentinels = [...]error{
	KindUnknown:             nil,
	KindInvalidCredentials:  ErrInvalidCredentials,
	KindAccountLocked:       ErrAccountLocked,
	KindInvalidRefreshToken: ErrInvalidRefreshToken,
	KindTransientStore:      ErrTransientStore,
	KindConfiguration:       ErrConfiguration,
}

// Error is the tagged failure returned by Engine operations. Err holds the
// underlying cause for logs and is never part of the message shown to end
// users.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindAccountLocked && e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s: retry after %s", msg, e.RetryAfter.Round(time.Second))
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so errors.Is(err,
// ErrAccountLocked) holds for any locked failure.
func (e *Error) Is(target error) bool {
	if int(e.Kind) < len(kindSentinels) && kindSentinels[e.Kind] != nil {
		return target == kindSentinels[e.Kind]
	}
	return false
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindTransientStore
}

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return KindConfiguration
	}
	return KindUnknown
}

// RetryAfter returns the remaining lock duration of an AccountLocked error.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindAccountLocked {
		return e.RetryAfter, true
	}
	return 0, false
}

// ConfigError reports an invalid Config field. It is returned by
// Config.Validate and Builder.Build.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
