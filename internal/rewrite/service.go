// Package rewrite は補完APIを使ったテキストのリライト（ヒューマナイズ）を提供する。
// クレジット判定、上流呼び出し、消費記録、差分注釈を1リクエストの中で順に行う。
package rewrite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/humanize/internal/completion"
	"github.com/hitoshi/humanize/internal/credit"
	"github.com/hitoshi/humanize/internal/diff"
	"github.com/hitoshi/humanize/internal/idempotency"
	"github.com/hitoshi/humanize/internal/metrics"
	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/security"
)

// CreditGate はリライト前の残高判定とリライト後の消費記録のインターフェース。
type CreditGate interface {
	Check(ctx context.Context, principal *model.Principal) (credit.Permit, error)
	KeyUsed(ctx context.Context, userID, key string) (bool, error)
	Spend(ctx context.Context, req credit.SpendRequest) (*credit.Receipt, error)
}

// Config はリライトサービスの設定。
type Config struct {
	Policy         completion.Policy
	MaxInputChars  int           // 0以下の場合は無制限
	Timeout        time.Duration // 上流呼び出し1回の上限
	IdempotencyTTL time.Duration
}

// Request はリライト1回分の入力。
type Request struct {
	Principal      *model.Principal
	InputText      string
	HTML           bool // trueの場合、入力をHTMLとして本文テキストを取り出してから送る
	IdempotencyKey string
}

// Result はリライト結果。
// Chargedがfalseの場合、クレジットは消費されていない（空の補完結果、または消費記録の失敗）。
type Result struct {
	Output           string           `json:"output"`
	Changes          []diff.Mark      `json:"changes"`
	Highlights       []diff.Highlight `json:"highlights"`
	CreditsRemaining int              `json:"creditsRemaining"`
	Charged          bool             `json:"charged"`
	Replayed         bool             `json:"replayed,omitempty"`
}

// Service はリライト処理のサービス層。
type Service struct {
	completer completion.Completer
	credits   CreditGate
	store     idempotency.Store
	metrics   metrics.MetricsCollector
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。storeとmはnilでもよい。
func NewService(completer completion.Completer, credits CreditGate, store idempotency.Store, m metrics.MetricsCollector, config Config) *Service {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 10 * time.Minute
	}
	return &Service{
		completer: completer,
		credits:   credits,
		store:     store,
		metrics:   m,
		config:    config,
		now:       time.Now,
	}
}

// Rewrite は入力テキストを補完APIでリライトする。
//
// 処理順序:
//  1. 入力検証（空、文字数上限）
//  2. 同じIdempotency-Keyの保存済み結果があればそれを返す（入力が異なればIDEMPOTENCY_KEY_MISMATCH）。
//     保存済み結果が無くても消費記録に残るキーはIDEMPOTENCY_KEY_USED
//  3. APIキー未設定ならCONFIGURATION_ERROR
//  4. 残高0以下ならINSUFFICIENT_CREDITS（上流呼び出し・消費記録なし）
//  5. 上流呼び出しは1回のみ。空の結果なら入力をそのまま返し課金しない
//  6. 成功時にクレジットを1消費し、差分注釈を付けて返す
func (s *Service) Rewrite(ctx context.Context, req Request) (*Result, error) {
	if req.Principal == nil || req.Principal.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	userID := req.Principal.UserID

	input := req.InputText
	if req.HTML {
		input = security.ExtractText(input)
	}
	if strings.TrimSpace(input) == "" {
		return nil, model.NewMissingInputError()
	}
	inputLen := utf8.RuneCountInString(input)
	if s.config.MaxInputChars > 0 && inputLen > s.config.MaxInputChars {
		return nil, model.NewInputTooLongError(inputLen, s.config.MaxInputChars)
	}

	var storeKey string
	if req.IdempotencyKey != "" {
		if err := idempotency.ValidateKey(req.IdempotencyKey); err != nil {
			return nil, model.NewValidationError("Idempotency-Key must be 1-255 printable characters.")
		}
		if s.store != nil {
			storeKey = idempotency.ScopedKey(userID, req.IdempotencyKey)
			cached, err := s.loadCached(ctx, storeKey, input)
			if err != nil {
				return nil, err
			}
			if cached != nil {
				return cached, nil
			}
			token, ok, err := s.store.TryLock(ctx, storeKey, s.config.Timeout+30*time.Second)
			switch {
			case err != nil:
				slog.Warn("idempotency lock unavailable",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				storeKey = ""
			case !ok:
				return nil, model.NewRewriteInProgressError()
			default:
				defer func() {
					if err := s.store.Unlock(context.WithoutCancel(ctx), storeKey, token); err != nil {
						slog.Warn("failed to release idempotency lock", slog.String("error", err.Error()))
					}
				}()
			}
		}

		// 消費記録は保存済み結果より長く残る。上流を呼ぶ前に確認する
		used, err := s.credits.KeyUsed(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, model.NewIdempotencyKeyUsedError()
		}
	}

	if !s.completer.Configured() {
		s.record(metrics.ResultConfig)
		slog.Error("completion API key is not configured")
		return nil, model.NewConfigurationError("The rewrite service is not configured.")
	}

	permit, err := s.credits.Check(ctx, req.Principal)
	if err != nil {
		return nil, err
	}
	if !permit.Allowed {
		s.record(metrics.ResultInsufficient)
		return nil, model.NewInsufficientCreditsError(credit.CreditsPerRewrite, permit.Remaining)
	}

	output, err := s.complete(ctx, s.config.Policy.Request(input))
	if err != nil {
		slog.Warn("rewrite upstream call failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, s.mapUpstreamError(err)
	}

	if output == "" {
		// 空の補完結果は入力をそのまま返し、課金しない
		s.record(metrics.ResultEmpty)
		return &Result{
			Output:           input,
			Changes:          []diff.Mark{},
			Highlights:       []diff.Highlight{},
			CreditsRemaining: permit.Remaining,
			Charged:          false,
		}, nil
	}

	result := &Result{
		Output:     output,
		Changes:    changedMarks(diff.Positional(input, output)),
		Highlights: diff.Highlights(diff.Align(input, output)),
	}

	receipt, err := s.credits.Spend(ctx, credit.SpendRequest{
		UserID:         userID,
		Credits:        credit.CreditsPerRewrite,
		InputLength:    inputLen,
		IdempotencyKey: req.IdempotencyKey,
	})
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInsufficientCredits:
		// 並行リクエストに残高を先に消費された
		s.record(metrics.ResultInsufficient)
		return nil, apiErr
	case err != nil:
		// リライト自体は成功しているため結果は返す
		s.record(metrics.ResultLedger)
		slog.Error("failed to record credit usage after successful rewrite",
			slog.String("user_id", userID),
			slog.Int("input_length", inputLen),
			slog.String("error", err.Error()),
		)
		result.CreditsRemaining = permit.Remaining
		result.Charged = false
		return result, nil
	}

	result.CreditsRemaining = receipt.Balance.Remaining
	if !receipt.Charged {
		// 同じキーの並行リクエストが先に消費を記録した
		s.record(metrics.ResultReplayed)
		slog.Warn("credit spend replayed after upstream call",
			slog.String("user_id", userID),
			slog.String("idempotency_key", req.IdempotencyKey),
		)
		return result, nil
	}

	s.record(metrics.ResultSuccess)
	result.Charged = true

	if storeKey != "" {
		s.saveCached(ctx, storeKey, input, result)
	}
	return result, nil
}

// complete は上流を1回だけ呼び出す。呼び出しはConfig.Timeoutで打ち切る。
func (s *Service) complete(ctx context.Context, req completion.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := s.now()
	output, err := s.completer.Complete(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordUpstreamLatency(s.now().Sub(start))
	}
	return strings.TrimSpace(output), err
}

// mapUpstreamError は補完APIのエラーをAPIErrorに変換する。
func (s *Service) mapUpstreamError(err error) error {
	if errors.Is(err, completion.ErrNotConfigured) {
		s.record(metrics.ResultConfig)
		return model.NewConfigurationError("The rewrite service is not configured.")
	}
	s.record(metrics.ResultUpstream)
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewUpstreamError("The rewrite service timed out.")
	}
	var upstream *completion.UpstreamError
	if errors.As(err, &upstream) {
		return model.NewUpstreamError(upstream.Message)
	}
	return model.NewUpstreamError("")
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordRewrite(result)
	}
}

// cachedEntry は保存済み結果。InputHashは結果を作った入力のSHA-256。
type cachedEntry struct {
	InputHash string  `json:"inputHash"`
	Result    *Result `json:"result"`
}

func inputHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func (s *Service) loadCached(ctx context.Context, key, input string) (*Result, error) {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		slog.Warn("idempotency lookup failed", slog.String("error", err.Error()))
		return nil, nil
	}
	if !found {
		return nil, nil
	}
	var cached cachedEntry
	if err := json.Unmarshal(raw, &cached); err != nil || cached.Result == nil {
		slog.Warn("discarding corrupt idempotency entry")
		return nil, nil
	}
	if cached.InputHash != inputHash(input) {
		return nil, model.NewIdempotencyMismatchError()
	}
	cached.Result.Replayed = true
	return cached.Result, nil
}

func (s *Service) saveCached(ctx context.Context, key, input string, result *Result) {
	raw, err := json.Marshal(cachedEntry{InputHash: inputHash(input), Result: result})
	if err != nil {
		return
	}
	if err := s.store.Put(context.WithoutCancel(ctx), key, raw, s.config.IdempotencyTTL); err != nil {
		slog.Warn("failed to store idempotent response", slog.String("error", err.Error()))
	}
}

// changedMarks は変更ありのトークンだけを返す。
func changedMarks(marks []diff.Mark) []diff.Mark {
	out := []diff.Mark{}
	for _, m := range marks {
		if m.Changed {
			out = append(out, m)
		}
	}
	return out
}
