package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/portal-scheduler/internal/application"
)

const adminKeyHeader = "X-Admin-Key"

type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (application.Principal, error)
}

// AdminKeyVerifier authenticates automation clients that present the
// administrator key instead of a session token.
type AdminKeyVerifier interface {
	VerifyAdminKey(key string) bool
}

func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)
	keys, _ := validator.(AdminKeyVerifier)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := strings.TrimSpace(r.Header.Get(adminKeyHeader)); key != "" && keys != nil {
				if !keys.VerifyAdminKey(key) {
					responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Message: "管理者キーが正しくありません"})
					return
				}
				ctx := ContextWithPrincipal(r.Context(), application.Principal{UserID: AdminKeyPrincipalID, IsAdmin: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := extractTokenFromRequest(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
				return
			}

			principal, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, application.ErrUnauthorized):
					responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Message: "セッションが無効です。再度ログインしてください。"})
				case errors.Is(err, application.ErrNotFound):
					responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Message: "セッションが見つかりません。再度ログインしてください。"})
				default:
					responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: "セッション検証中にエラーが発生しました。"})
				}
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logger. The request id comes from
// chi's RequestID middleware when it runs first, otherwise from a counter.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id any = middleware.GetReqID(r.Context())
			if id == "" {
				id = counter.Add(1)
			}
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", ww.Status(), "duration", time.Since(start))
		})
	}
}
