package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/portal-scheduler/internal/application"
)

var (
	errBadRequestBody      = errors.New("無効なリクエスト形式です。")
	errInvalidRequestID    = errors.New("無効な申請 ID です。")
	errInvalidMeetingID    = errors.New("無効な会議 ID です。")
	errInvalidDate         = errors.New("日付は YYYY-MM-DD 形式で指定してください。")
	errInvalidMonth        = errors.New("月は YYYY-MM 形式で指定してください。")
	errInvalidFilter       = errors.New("表示範囲の指定が不正です。")
	errInvalidStatus       = errors.New("申請ステータスの指定が不正です。")
	errInvalidClock        = errors.New("時刻は HH:MM 形式で指定してください。")
	errInvalidDuration     = errors.New("所要時間は正の整数で指定してください。")
	errInvalidPolicy       = errors.New("曜日の指定が不正です。")
	errMissingSessionToken = errors.New("認証トークンを指定してください")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr        *application.ValidationError
		conflictErr *application.ConflictError
		stateErr    *application.InvalidStateError
		persistErr  *application.PersistenceError
	)

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "この操作を実行する権限がありません。",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "入力内容に誤りがあります。",
			Errors:  localizeValidationErrors(vErr),
		})
	case errors.As(err, &conflictErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SLOT_ALREADY_BOOKED",
			Message:   "この時間枠はすでに予約されています。空き状況を再取得してください。",
			Conflicts: conflictErr.Conflicts,
		})
	case errors.As(err, &stateErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "REQUEST_ALREADY_DECIDED",
			Message:   "この申請はすでに処理されています。",
		})
	case errors.As(err, &persistErr):
		r.loggerFor(ctx).ErrorContext(ctx, "storage unavailable", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Message: "データの保存先に接続できません。しばらくしてから再度お試しください。"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusServiceUnavailable:
		return "サービスを一時的に利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "requester id must be a UUID":
		return "申請者 ID は UUID 形式で指定してください。"
	case "title is required":
		return "タイトルは必須です。"
	case "title is too long":
		return "タイトルが長すぎます。"
	case "description is too long":
		return "説明が長すぎます。"
	case "reason is too long":
		return "却下理由が長すぎます。"
	case "duration must be positive":
		return "所要時間は正の整数で指定してください。"
	case "duration must match the slot duration":
		return "所要時間は時間枠の長さと一致させてください。"
	case "date must use the YYYY-MM-DD format":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "start time must use the HH:MM format":
		return "開始時刻は HH:MM 形式で指定してください。"
	case "slot has already started":
		return "この時間枠はすでに開始しています。"
	case "slot is not available":
		return "この時間枠は予約できません。"
	case "end date must not precede start date":
		return "終了日は開始日以降を指定してください。"
	case "date range is too large":
		return "指定できる期間を超えています。"
	case "slot duration must be positive":
		return "時間枠の長さは正の整数で指定してください。"
	case "slot duration must not exceed one day":
		return "時間枠の長さは 1 日以内で指定してください。"
	case "all seven weekdays must be configured":
		return "7 曜日すべてを設定してください。"
	case "hour must be between 0 and 23":
		return "時刻は 0〜23 の範囲で指定してください。"
	case "end hour must be after start hour":
		return "終了時刻は開始時刻より後である必要があります。"
	case "request violates storage constraints":
		return "申請内容を保存できませんでした。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflicts []string          `json:"conflicts,omitempty"`
}
