package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
)

// APIError is the JSON error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeEngineError translates an Engine failure. Causes are never echoed.
func writeEngineError(w http.ResponseWriter, err error) {
	switch authcore.KindOf(err) {
	case authcore.KindInvalidCredentials:
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid identifier or password")
	case authcore.KindAccountLocked:
		if d, ok := authcore.RetryAfter(err); ok && d > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
		writeError(w, http.StatusLocked, "ACCOUNT_LOCKED", "account temporarily locked")
	case authcore.KindInvalidRefreshToken:
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid")
	case authcore.KindTransientStore:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
