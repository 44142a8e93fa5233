// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/humanize/internal/model"
)

// ErrInsufficientCredits は条件付きUPDATEが残高不足で0行だった場合に返る。
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrEmailTaken はメールアドレスの一意制約違反で返る。
var ErrEmailTaken = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateAccount はユーザー、identity、初期クレジット残高、sign_upログを同一トランザクションで作成する。
	// メールアドレスが登録済みの場合はErrEmailTakenを返す。
	CreateAccount(ctx context.Context, user *model.User, identity *model.Identity, balance *model.CreditBalance) error

	// CreateGuest はゲストユーザーと初期クレジット残高を同一トランザクションで作成する。
	CreateGuest(ctx context.Context, user *model.User, balance *model.CreditBalance) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、user_credits、credit_usage_history、projects、paymentsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// DeleteGuestsCreatedBefore は指定日時より前に作成されたゲストユーザーを削除し、削除件数を返す。
	DeleteGuestsCreatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// ListProvidersByUserID はユーザーに紐付く認証プロバイダー名の一覧を返す。
	ListProvidersByUserID(ctx context.Context, userID string) ([]string, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SpendParams はクレジット消費1回分のパラメータ。
type SpendParams struct {
	UserID         string
	Credits        int
	Action         model.UsageAction
	InputLength    int
	IdempotencyKey string // 空の場合は冪等性チェックを行わない
}

// SpendResult はクレジット消費の結果。
// Replayedがtrueの場合、同じ冪等キーで既に消費済みのため今回は減算していない。
type SpendResult struct {
	Balance  *model.CreditBalance
	Replayed bool
}

// CreditRepository はクレジット残高と利用履歴の永続化インターフェース。
type CreditRepository interface {
	// FindByUserID はユーザーの残高を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.CreditBalance, error)

	// Provision は残高行が存在しない場合のみ作成し、現在の残高を返す。
	Provision(ctx context.Context, userID string, credits int, planType string) (*model.CreditBalance, error)

	// Spend は残高の条件付き減算と利用履歴の追記を1トランザクションで行う。
	// 残高不足の場合はErrInsufficientCreditsを返し、何も書き込まない。
	Spend(ctx context.Context, params SpendParams) (*SpendResult, error)

	// UsageKeyExists は指定の冪等キーで消費記録済みかを返す。
	UsageKeyExists(ctx context.Context, userID, idempotencyKey string) (bool, error)

	// ListUsage はユーザーの利用履歴を新しい順に最大limit件返す。
	ListUsage(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error)

	// RenewDue はperiod_ends_atを過ぎた残高にプランの月間クレジットを再付与し、更新件数を返す。
	RenewDue(ctx context.Context, now time.Time) (int64, error)
}

// ProjectRepository は保存済みリライト結果の永続化インターフェース。
type ProjectRepository interface {
	// ListByUserID はユーザーのプロジェクトを新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Project, error)
	// Create はプロジェクトを作成する。
	Create(ctx context.Context, project *model.Project) error
	// Delete はユーザーが所有するプロジェクトを削除する。対象が無い場合はfalseを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)
}

// PlanRepository は料金プランの参照インターフェース。
type PlanRepository interface {
	// List は全プランを価格の安い順に返す。
	List(ctx context.Context) ([]*model.Plan, error)
	// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Plan, error)
}

// PaymentRepository は支払い記録の永続化インターフェース。
type PaymentRepository interface {
	// CreateWithGrant は支払いを記録し、同一トランザクションでプランのクレジットを残高に加算する。
	CreateWithGrant(ctx context.Context, payment *model.Payment, periodEndsAt time.Time) (*model.CreditBalance, error)
	// ListByUserID はユーザーの支払い履歴を新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Payment, error)
}

// ContactRepository は問い合わせの永続化インターフェース。
type ContactRepository interface {
	Create(ctx context.Context, msg *model.ContactMessage) error
}

// AuthLogRepository は認証イベントログの追記インターフェース。
type AuthLogRepository interface {
	// Record は認証イベントを記録する。userIDが空の場合はNULLとして保存する。
	Record(ctx context.Context, event model.AuthEvent, userID string) error
}
