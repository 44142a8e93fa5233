// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ゲストセッションごとに発行される一時ユーザーもIsGuest=trueとして保持する。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // パスワード認証を使わないユーザーは空
	IsGuest      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は認証手段との紐付け情報を表す。
// Providerは "password", "google" のいずれか。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// 認証プロバイダー名
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal はリクエストを送信した呼び出し元を表す。
// 認証ミドルウェアがリクエストコンテキストに注入する。
type Principal struct {
	UserID  string
	IsGuest bool
}

// AuthEvent は認証イベントの種別を表す。
type AuthEvent string

const (
	AuthEventSignUp AuthEvent = "sign_up"
	AuthEventLogin  AuthEvent = "login"
	AuthEventLogout AuthEvent = "logout"
	AuthEventGuest  AuthEvent = "guest_start"
)
