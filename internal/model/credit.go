package model

import "time"

// CreditBalance はユーザーごとのクレジット残高を表す（user_creditsテーブル）。
// Remainingは0未満にならず、TotalUsedは単調増加する。
type CreditBalance struct {
	UserID       string
	Remaining    int
	TotalUsed    int
	PlanType     string
	PeriodEndsAt *time.Time // 月次付与の次回更新日時。ゲストはnil
	UpdatedAt    time.Time
}

// 既定のプラン種別
const (
	PlanTypeFree  = "free"
	PlanTypeGuest = "guest"
)

// UsageAction は利用履歴のアクション種別を表す。
type UsageAction string

const (
	// UsageActionHumanize はリライト1回分のクレジット消費。
	UsageActionHumanize UsageAction = "humanize"
)

// UsageRecord はクレジット消費の監査ログを表す（credit_usage_historyテーブル）。
// 作成後に更新・削除しない追記専用の行。
type UsageRecord struct {
	ID             string
	UserID         string
	ActionType     UsageAction
	CreditsUsed    int
	InputLength    int
	IdempotencyKey string
	CreatedAt      time.Time
}

// Plan は料金プランを表す。
type Plan struct {
	ID             string
	Name           string
	MonthlyCredits int
	PriceCents     int
}

// PaymentStatus は支払い状態を表す。
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
)

// Payment はプラン購入の支払い記録を表す。
// デモ決済のため外部決済サービスとは連携しない。
type Payment struct {
	ID          string
	UserID      string
	PlanID      string
	PlanName    string
	AmountCents int
	Credits     int
	Status      PaymentStatus
	CreatedAt   time.Time
}
