package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/humanize/internal/diff"
	"github.com/hitoshi/humanize/internal/middleware"
	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/rewrite"
)

// idempotencyKeyHeader はリライトの再送を識別するリクエストヘッダー。
const idempotencyKeyHeader = "Idempotency-Key"

// RewriteServiceInterface はリライトハンドラーが必要とするサービスインターフェース。
type RewriteServiceInterface interface {
	Rewrite(ctx context.Context, req rewrite.Request) (*rewrite.Result, error)
	Alternatives(ctx context.Context, word, sentence string) ([]string, error)
	Explain(ctx context.Context, original, changed, sentence string) (string, error)
}

// HumanizerHandler はリライトと差分表示のHTTPハンドラー。
type HumanizerHandler struct {
	service       RewriteServiceInterface
	maxInputChars int
}

// NewHumanizerHandler はHumanizerHandlerを生成する。
// maxInputCharsは差分表示APIの入力上限にも使う。
func NewHumanizerHandler(service RewriteServiceInterface, maxInputChars int) *HumanizerHandler {
	return &HumanizerHandler{service: service, maxInputChars: maxInputChars}
}

// humanizeRequest はリライトリクエストのボディ。
// 旧クライアントのtextフィールドはinputTextが空の場合のみ使う。
type humanizeRequest struct {
	InputText string `json:"inputText"`
	Text      string `json:"text"`
	HTML      bool   `json:"html"`
}

type alternativesRequest struct {
	Word    string `json:"word"`
	Context string `json:"context"`
}

type explainRequest struct {
	Original string `json:"original"`
	Changed  string `json:"changed"`
	Context  string `json:"context"`
}

type diffRequest struct {
	InputText  string `json:"inputText"`
	OutputText string `json:"outputText"`
}

type diffResponse struct {
	Changes    []diff.Mark      `json:"changes"`
	Ops        []diff.Op        `json:"ops"`
	Highlights []diff.Highlight `json:"highlights"`
	HTML       string           `json:"html"`
}

// Humanize は入力テキストをリライトする。成功時はクレジットを1消費する。
// POST /api/humanizer
func (h *HumanizerHandler) Humanize(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	var req humanizeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewValidationError("Request body is too large."))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Request body must be valid JSON."))
		return
	}

	input := req.InputText
	if input == "" {
		input = req.Text
	}

	result, err := h.service.Rewrite(r.Context(), rewrite.Request{
		Principal:      principal,
		InputText:      input,
		HTML:           req.HTML,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, http.StatusOK, result)
}

// Alternatives は単語の言い換え候補を返す。クレジットは消費しない。
// POST /api/humanizer/alternatives
func (h *HumanizerHandler) Alternatives(w http.ResponseWriter, r *http.Request) {
	if principalOrUnauthorized(w, r) == nil {
		return
	}

	var req alternativesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	alternatives, err := h.service.Alternatives(r.Context(), req.Word, req.Context)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"alternatives": alternatives})
}

// Explain は語句を変更した理由の説明を返す。クレジットは消費しない。
// POST /api/humanizer/explain
func (h *HumanizerHandler) Explain(w http.ResponseWriter, r *http.Request) {
	if principalOrUnauthorized(w, r) == nil {
		return
	}

	var req explainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	explanation, err := h.service.Explain(r.Context(), req.Original, req.Changed, req.Context)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

// Diff は上流を呼び出さずに2つのテキストの差分注釈を返す。
// POST /api/diff
func (h *HumanizerHandler) Diff(w http.ResponseWriter, r *http.Request) {
	if principalOrUnauthorized(w, r) == nil {
		return
	}

	var req diffRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.InputText) == "" && strings.TrimSpace(req.OutputText) == "" {
		handleServiceError(w, model.NewMissingInputError())
		return
	}
	for _, text := range []string{req.InputText, req.OutputText} {
		if n := utf8.RuneCountInString(text); h.maxInputChars > 0 && n > h.maxInputChars {
			handleServiceError(w, model.NewInputTooLongError(n, h.maxInputChars))
			return
		}
	}

	ops := diff.Align(req.InputText, req.OutputText)
	writeJSON(w, http.StatusOK, diffResponse{
		Changes:    diff.Positional(req.InputText, req.OutputText),
		Ops:        ops,
		Highlights: diff.Highlights(ops),
		HTML:       diff.RenderHTML(ops),
	})
}
