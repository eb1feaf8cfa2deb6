package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/portal-scheduler/internal/application"
)

const defaultSessionTTL = 12 * time.Hour

type sessionIssuer interface {
	VerifyAdminKey(key string) bool
	Issue(principal application.Principal, ttl time.Duration) (string, time.Time, error)
}

// SessionHandler exchanges the administrator key for a session token, so
// browsers can authenticate with a cookie instead of sending the key.
type SessionHandler struct {
	issuer    sessionIssuer
	ttl       time.Duration
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(issuer sessionIssuer, ttl time.Duration, logger *slog.Logger) *SessionHandler {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	base := defaultLogger(logger)
	return &SessionHandler{issuer: issuer, ttl: ttl, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.issuer == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode session request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	if !h.issuer.VerifyAdminKey(req.AdminKey) {
		logger.ErrorContext(r.Context(), "admin key rejected", "error_kind", "unauthorized")
		h.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_INVALID_CREDENTIALS",
			Message:   "管理者キーが正しくありません",
		})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = AdminKeyPrincipalID
	}
	principal := application.Principal{UserID: userID, IsAdmin: true}
	token, expires, err := h.issuer.Issue(principal, h.ttl)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to issue session", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	setSessionCookie(w, token, expires)
	w.Header().Set("X-Session-Token", token)
	logger.With("user_id", userID).InfoContext(r.Context(), "administrator session issued")

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339Nano),
		Principal: principalDTO{UserID: principal.UserID, IsAdmin: principal.IsAdmin},
	})
}

// Delete clears the session cookie. Tokens are stateless and simply expire.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type sessionRequest struct {
	AdminKey string `json:"admin_key"`
	UserID   string `json:"user_id"`
}

type principalDTO struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	Principal principalDTO `json:"principal"`
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     "session_token",
		Value:    token,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
	})
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie("session_token"); err == nil {
		return cookie.Value
	}
	return ""
}
