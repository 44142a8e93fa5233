package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/humanize/internal/middleware"
	"github.com/hitoshi/humanize/internal/model"
)

// withPrincipal はリクエストコンテキストに呼び出し元を設定するテストヘルパー。
func withPrincipal(r *http.Request, userID string, isGuest bool) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), &model.Principal{UserID: userID, IsGuest: isGuest})
	return r.WithContext(ctx)
}

// withUserID は登録ユーザーとして呼び出し元を設定するテストヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return withPrincipal(r, userID, false)
}

// newJSONRequest はJSONボディ付きのリクエストを生成する。
func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeErrorBody はエラーレスポンスのボディをデコードする。
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func containsStr(s, substr string) bool {
	return strings.Contains(s, substr)
}
