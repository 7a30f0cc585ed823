// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/ssogate/internal/model"
)

// APIKeyHeader はAPIキーを受け取るリクエストヘッダー名。
const APIKeyHeader = "X-API-Key"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	apiKeyContextKey    = contextKey("api_key")
)

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(raw string) (*model.Principal, error)
}

// APIKeyVerifier はAPIキーの検証に必要なインターフェース。
type APIKeyVerifier interface {
	Verify(ctx context.Context, plaintext string) (*model.APIKey, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みのPrincipalをリクエストコンテキストに注入する。
// 期限切れはTOKEN_EXPIRED、それ以外の失敗はAUTHENTICATION_FAILEDで401を返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.Verify(BearerToken(r))
			if err != nil {
				WriteError(w, r, err)
				return
			}

			setLoggedIdentity(r.Context(), principal.IdentityID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// NewAPIKeyMiddleware はX-API-Keyヘッダーを検証するミドルウェアを返す。
// 検証済みのキーをリクエストコンテキストに注入する。
func NewAPIKeyMiddleware(verifier APIKeyVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if raw == "" {
				WriteError(w, r, model.NewAuthenticationError("Missing API key"))
				return
			}
			key, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyContextKey, key)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。無い場合は空文字を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// Bearer認証ミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || principal == nil {
		return nil, fmt.Errorf("principal not found in context")
	}
	return principal, nil
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// APIKeyFromContext はリクエストコンテキストから検証済みのAPIキーを取得する。
func APIKeyFromContext(ctx context.Context) (*model.APIKey, error) {
	key, ok := ctx.Value(apiKeyContextKey).(*model.APIKey)
	if !ok || key == nil {
		return nil, fmt.Errorf("api key not found in context")
	}
	return key, nil
}

// ContextWithAPIKey はコンテキストにAPIキーを注入する。
func ContextWithAPIKey(ctx context.Context, key *model.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}
