// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, quota, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeAccountRequired     = "ACCOUNT_REQUIRED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeMissingInput        = "MISSING_INPUT"
	ErrCodeInputTooLong        = "INPUT_TOO_LONG"
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodeUpstream            = "UPSTREAM_ERROR"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
	ErrCodeProjectNotFound     = "PROJECT_NOT_FOUND"
	ErrCodePlanNotFound        = "PLAN_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeRewriteInProgress   = "REWRITE_IN_PROGRESS"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeCSRF                = "CSRF_TOKEN_INVALID"
	ErrCodeIdempotencyKeyUsed  = "IDEMPOTENCY_KEY_USED"
	ErrCodeIdempotencyMismatch = "IDEMPOTENCY_KEY_MISMATCH"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "You must sign in to continue.",
		Category: "auth",
		Action:   "Sign in or start a guest session, then try again.",
	}
}

// NewAccountRequiredError はゲストセッションでは利用できない操作のエラーを生成する。
func NewAccountRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountRequired,
		Message:  "This feature requires a registered account.",
		Category: "auth",
		Action:   "Create an account to save projects and purchase plans.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewEmailTakenError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Log in instead, or use a different email address.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "Correct the highlighted fields and submit again.",
	}
}

// NewMissingInputError はリライト対象テキストが空の場合のエラーを生成する。
func NewMissingInputError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingInput,
		Message:  "Please enter some text to humanize",
		Category: "validation",
		Action:   "Paste the text you want to rewrite into the input field.",
	}
}

// NewInputTooLongError は入力文字数が上限を超えた場合のエラーを生成する。
func NewInputTooLongError(length, limit int) *APIError {
	return &APIError{
		Code:     ErrCodeInputTooLong,
		Message:  fmt.Sprintf("Input is too long: %d characters (limit %d).", length, limit),
		Category: "validation",
		Action:   "Split the text into smaller parts and rewrite them separately.",
	}
}

// NewInsufficientCreditsError はクレジット不足エラーを生成する。
// 必要数と残数をメッセージに含める。
func NewInsufficientCreditsError(required, remaining int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientCredits,
		Message:  fmt.Sprintf("Insufficient credits: %d required, %d remaining.", required, remaining),
		Category: "quota",
		Action:   "Upgrade your plan to get more credits.",
	}
}

// NewUpstreamError は補完APIの失敗を表すエラーを生成する。
// 上流のメッセージが空の場合は汎用メッセージを使う。
func NewUpstreamError(upstreamMessage string) *APIError {
	msg := upstreamMessage
	if msg == "" {
		msg = "Failed to humanize text"
	}
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  msg,
		Category: "upstream",
		Action:   "Please wait a moment and try again.",
	}
}

// NewConfigurationError はサーバー設定不備のエラーを生成する。
func NewConfigurationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  reason,
		Category: "system",
		Action:   "The service is not fully configured. Please contact support.",
	}
}

// NewProjectNotFoundError はプロジェクト未検出エラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("Project not found: %s", projectID),
		Category: "validation",
		Action:   "Reload your dashboard and try again.",
	}
}

// NewPlanNotFoundError はプラン未検出エラーを生成する。
func NewPlanNotFoundError(planID string) *APIError {
	return &APIError{
		Code:     ErrCodePlanNotFound,
		Message:  fmt.Sprintf("Plan not found: %s", planID),
		Category: "validation",
		Action:   "Choose one of the plans listed on the pricing page.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewRewriteInProgressError は同じIdempotency-Keyのリライトが処理中の場合のエラーを生成する。
func NewRewriteInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeRewriteInProgress,
		Message:  "A rewrite with this idempotency key is already in progress.",
		Category: "validation",
		Action:   "Wait for the previous request to finish, then retry with the same key.",
	}
}

// NewInternalError は予期しないサーバー内部エラーを生成する。詳細はログにのみ出力する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An unexpected error occurred.",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewRateLimitedError はリクエスト頻度の上限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "quota",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFError はCookie認証の状態変更リクエストでCSRFトークンが検証できない場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token is missing or invalid.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewIdempotencyKeyUsedError は消費記録済みのIdempotency-Keyで保存済みの結果が無い場合のエラーを生成する。
func NewIdempotencyKeyUsedError() *APIError {
	return &APIError{
		Code:     ErrCodeIdempotencyKeyUsed,
		Message:  "This idempotency key has already been used.",
		Category: "validation",
		Action:   "Send a new Idempotency-Key for a new rewrite.",
	}
}

// NewIdempotencyMismatchError は同じIdempotency-Keyが別の入力で再利用された場合のエラーを生成する。
func NewIdempotencyMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeIdempotencyMismatch,
		Message:  "This idempotency key was used with a different input.",
		Category: "validation",
		Action:   "Send a new Idempotency-Key when the text changes.",
	}
}
