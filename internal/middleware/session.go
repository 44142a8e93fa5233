// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/humanize/internal/auth"
	"github.com/hitoshi/humanize/internal/model"
)

// SessionCookieName はログインセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var principalContextKey = contextKey("principal")

// PrincipalResolver は資格情報から呼び出し元を解決する。
// 資格情報が無効な場合は (nil, nil) を返す。
type PrincipalResolver interface {
	ResolveGuestToken(ctx context.Context, token string) (*model.Principal, error)
	ResolveSession(ctx context.Context, sessionID string) (*model.Principal, error)
}

// NewAuthMiddleware は資格情報を検証し、呼び出し元をリクエストコンテキストに注入するミドルウェアを返す。
// 資格情報は Authorization: Bearer ヘッダーを優先し、無ければセッションCookieを使う。
// ベアラートークンはJWT形式ならゲストトークン、それ以外はセッションIDとして解決する。
// 資格情報が無い、または無効な場合は401を返す。
func NewAuthMiddleware(resolver PrincipalResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer, ok := Credential(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			var (
				principal *model.Principal
				err       error
			)
			if bearer && auth.LooksLikeJWT(token) {
				principal, err = resolver.ResolveGuestToken(r.Context(), token)
			} else {
				principal, err = resolver.ResolveSession(r.Context(), token)
			}
			if err != nil {
				slog.Error("failed to resolve credential",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if principal == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// Credential はリクエストから資格情報を取り出す。
// bearerはAuthorizationヘッダーから取得した場合にtrueとなる。
// Authorizationヘッダーがあるのに形式が不正な場合はCookieへフォールバックしない。
func Credential(r *http.Request) (token string, bearer bool, ok bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false, false
		}
		value = strings.TrimSpace(value)
		return value, true, value != ""
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false, false
	}
	return cookie.Value, false, true
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || principal == nil || principal.UserID == "" {
		return nil, fmt.Errorf("principal not found in context")
	}
	return principal, nil
}

// UserIDFromContext はリクエストコンテキストから呼び出し元のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", err
	}
	return principal.UserID, nil
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// 外側のロギングミドルウェアが置いた器があれば、そこにも呼び出し元を記録する。
func ContextWithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	if h, ok := ctx.Value(principalHolderKey).(*principalHolder); ok {
		h.principal = principal
	}
	return context.WithValue(ctx, principalContextKey, principal)
}

var principalHolderKey = contextKey("principal_holder")

// principalHolder は内側のミドルウェアで解決された呼び出し元を外側に渡すための器。
type principalHolder struct {
	principal *model.Principal
}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	if p, err := PrincipalFromContext(ctx); err == nil {
		h.principal = p
	}
	return context.WithValue(ctx, principalHolderKey, h)
}
