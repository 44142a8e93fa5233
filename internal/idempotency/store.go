// Package idempotency はIdempotency-Keyごとのレスポンスキャッシュと処理中ロックを提供する。
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxKeyLength はIdempotency-Keyヘッダーの最大長。
const MaxKeyLength = 255

// ErrInvalidKey はキーが空、長すぎる、または制御文字を含む場合に返る。
var ErrInvalidKey = errors.New("invalid idempotency key")

// Store は冪等キーの状態を保持する。
type Store interface {
	// Get は保存済みレスポンスを返す。無い場合はfoundがfalse。
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put はレスポンスをttlの間保存する。
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// TryLock はキーの処理中ロックを取得する。既に他で処理中の場合はokがfalse。
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock はTryLockで取得したロックを解放する。トークンが一致しない場合は何もしない。
	Unlock(ctx context.Context, key, token string) error
}

// ValidateKey はクライアントから受け取ったキーを検証する。
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidKey
		}
	}
	return nil
}

// ScopedKey はユーザーごとに名前空間を分けたキーを返す。
// 別ユーザーが同じキーを送っても衝突しない。
func ScopedKey(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, strings.TrimSpace(key))
}

// lockKey はレスポンスキーに対応するロック用キーを返す。
func lockKey(key string) string {
	return key + ":lock"
}
