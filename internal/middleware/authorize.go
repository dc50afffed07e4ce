package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/model"
)

// DecisionRecorder はアクセス判定の結果を記録する。
type DecisionRecorder interface {
	RecordAccessDecision(kind string)
}

// Authorize はルートごとのアクセスポリシーを評価するミドルウェアを返す。
// 認証ミドルウェアの後段に配置する。拒否した場合はハンドラーを呼び出さない。
// 所有者の解決はロール判定を通過した場合のみ行う。
func Authorize(policy access.Policy, recorder DecisionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester := RequesterFromContext(r.Context())

			decision := access.Evaluate(requester, policy.Required, nil)
			if decision.Allowed() && policy.Owner != nil {
				owner, err := policy.Owner(r)
				if err != nil {
					if errors.Is(err, access.ErrResourceNotFound) {
						WriteErrorResponse(w, http.StatusNotFound, model.NewEventNotFoundError(chi.URLParam(r, "id")))
						return
					}
					slog.Error("failed to resolve resource owner",
						slog.String("error", err.Error()),
						slog.String("path", r.URL.Path),
					)
					WriteInternalServerError(w)
					return
				}
				decision = access.Evaluate(requester, policy.Required, &access.Ownership{
					OwnerEmail: owner,
					Bypass:     policy.Bypass,
				})
			}

			if recorder != nil {
				recorder.RecordAccessDecision(decision.String())
			}
			trace.SpanFromContext(r.Context()).AddEvent("access_decision",
				trace.WithAttributes(attribute.String("access.decision", decision.String())))

			if !decision.Allowed() {
				slog.Info("access denied",
					slog.String("decision", decision.String()),
					slog.String("user_id", requester.SubjectID),
					slog.String("role", requester.Role.String()),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteAccessDenied(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteAccessDenied は拒否判定を統一エラーフォーマットで書き込む。
func WriteAccessDenied(w http.ResponseWriter, decision access.Decision) {
	switch decision.Kind {
	case access.AuthenticationRequired:
		w.Header().Set("WWW-Authenticate", `Bearer realm="campusevent"`)
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
	case access.InsufficientRole:
		WriteErrorResponse(w, http.StatusForbidden, model.NewInsufficientRoleError())
	case access.OwnershipViolation:
		WriteErrorResponse(w, http.StatusForbidden, model.NewOwnershipViolationError())
	default:
		WriteInternalServerError(w)
	}
}
