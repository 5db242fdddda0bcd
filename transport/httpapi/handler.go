package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccountID        string    `json:"account_id"`
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// ClaimsResponse is returned by validate.
type ClaimsResponse struct {
	AccountID string    `json:"account_id"`
	TokenID   string    `json:"token_id"`
	KeyID     string    `json:"kid"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler serves the auth API.
type Handler struct {
	engine *authcore.Engine
	logger *zap.Logger
}

func NewHandler(engine *authcore.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// Router mounts every route with request-id and logging middleware. Extra
// routes (metrics, debug) can be added to the returned router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging(h.logger))

	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1/auth").Subrouter()
	v1.HandleFunc("/login", h.HandleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/refresh", h.HandleRefresh).Methods(http.MethodPost)
	v1.HandleFunc("/logout", h.HandleLogout).Methods(http.MethodPost)

	guarded := v1.NewRoute().Subrouter()
	guarded.Use(middleware.Guard(h.engine))
	guarded.HandleFunc("/logout-all", h.HandleLogoutAll).Methods(http.MethodPost)
	guarded.HandleFunc("/validate", h.HandleValidate).Methods(http.MethodGet)

	return r
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	res, err := h.engine.Login(r.Context(), in.Identifier, in.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccountID:        res.AccountID,
		TokenType:        "Bearer",
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
	})
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decode(r, &in); err != nil || in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token is required")
		return
	}

	res, err := h.engine.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccountID:        res.AccountID,
		TokenType:        "Bearer",
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.engine.Logout(r.Context(), in.RefreshToken); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	n, err := h.engine.LogoutAll(r.Context(), claims.AccountID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, ClaimsResponse{
		AccountID: claims.AccountID,
		TokenID:   claims.TokenID,
		KeyID:     claims.KeyID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Health(r.Context())
	if err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"redis_latency": d.String(),
	})
}
