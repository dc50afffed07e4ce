// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/model"
)

// AccessTokenCookieName はログイン時に発行するトークンCookieの名前。
const AccessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// requesterContextKey はリクエストコンテキストに実効リクエスト主体を格納するためのキー。
var requesterContextKey = contextKey("requester")

// credentialSourceContextKey は検証に成功したトークンの取得元を格納するためのキー。
var credentialSourceContextKey = contextKey("credential_source")

// トークンの取得元。
const (
	CredentialSourceHeader = "header"
	CredentialSourceCookie = "cookie"
)

// TokenDecoder はトークンの検証に必要なインターフェース。
type TokenDecoder interface {
	Decode(token string) (*model.SessionAssertion, error)
}

// NewAuthenticateMiddleware はトークンを検証し、実効リクエスト主体をコンテキストに注入するミドルウェアを返す。
// トークンはAuthorizationヘッダー（Bearer）を優先し、なければaccess_token Cookieから読み取る。
// トークンが無い、または検証に失敗した場合はguestとして扱う。リクエストを拒否することはない。
func NewAuthenticateMiddleware(decoder TokenDecoder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester := access.Guest()
			ctx := r.Context()

			if token, source := extractToken(r); token != "" {
				assertion, err := decoder.Decode(token)
				if err != nil {
					slog.Debug("token rejected, continuing as guest",
						slog.String("source", source),
						slog.String("error", err.Error()),
						slog.String("path", r.URL.Path),
					)
				} else {
					requester = access.FromAssertion(assertion)
					ctx = ContextWithCredentialSource(ctx, source)
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithRequester(ctx, requester)))
		})
	}
}

// RequesterFromContext はリクエストコンテキストから実効リクエスト主体を取得する。
// 認証ミドルウェアを通過していない場合はguestを返す。
func RequesterFromContext(ctx context.Context) access.Requester {
	requester, ok := ctx.Value(requesterContextKey).(access.Requester)
	if !ok {
		return access.Guest()
	}
	return requester
}

// ContextWithRequester はコンテキストに実効リクエスト主体を注入する。
// テストやミドルウェア以外のコンテキスト生成でも使用する。
func ContextWithRequester(ctx context.Context, requester access.Requester) context.Context {
	if holder, ok := ctx.Value(requestLogContextKey).(*requestLogFields); ok {
		holder.requester = requester
		holder.set = true
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("enduser.id", requester.SubjectID),
		attribute.String("enduser.role", requester.Role.String()),
	)
	return context.WithValue(ctx, requesterContextKey, requester)
}

// ContextWithCredentialSource は認証に使われたトークンの取得元をコンテキストに格納する。
func ContextWithCredentialSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, credentialSourceContextKey, source)
}

// CredentialSourceFromContext は認証に使われたトークンの取得元を返す。
// guestとして扱われたリクエストでは空文字列。
func CredentialSourceFromContext(ctx context.Context) string {
	source, _ := ctx.Value(credentialSourceContextKey).(string)
	return source
}

// extractToken はリクエストからトークンと取得元を返す。
func extractToken(r *http.Request) (token, source string) {
	if token, ok := bearerToken(r); ok {
		return token, CredentialSourceHeader
	}
	if cookie, err := r.Cookie(AccessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, CredentialSourceCookie
	}
	return "", ""
}

// bearerToken はAuthorizationヘッダーのBearerトークンを返す。
// ヘッダーがBearer形式でない場合は ok=false。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
