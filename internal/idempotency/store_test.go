package idempotency

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// exerciseStore はStore実装に共通する振る舞いを検証する。
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := ScopedKey("user-"+uuid.NewString(), "req-1")

	if _, found, err := s.Get(ctx, key); err != nil || found {
		t.Fatalf("Get(empty) = found %v, err %v", found, err)
	}

	token, ok, err := s.TryLock(ctx, key, time.Minute)
	if err != nil || !ok || token == "" {
		t.Fatalf("TryLock() = %q, %v, %v", token, ok, err)
	}
	if _, ok, err := s.TryLock(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("second TryLock() = %v, %v; want not acquired", ok, err)
	}

	if err := s.Put(ctx, key, []byte(`{"output":"hi"}`), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	value, found, err := s.Get(ctx, key)
	if err != nil || !found || string(value) != `{"output":"hi"}` {
		t.Fatalf("Get() = %q, %v, %v", value, found, err)
	}

	// 別トークンでは解放されない
	if err := s.Unlock(ctx, key, "someone-else"); err != nil {
		t.Fatalf("Unlock(other) error = %v", err)
	}
	if _, ok, _ := s.TryLock(ctx, key, time.Minute); ok {
		t.Fatal("lock should still be held after unlock with wrong token")
	}

	if err := s.Unlock(ctx, key, token); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	token2, ok, err := s.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock after unlock = %v, %v", ok, err)
	}
	_ = s.Unlock(ctx, key, token2)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.TryLock(ctx, "k", 30*time.Second); !ok {
		t.Fatal("TryLock should succeed")
	}

	now = now.Add(45 * time.Second)
	if _, ok, _ := s.TryLock(ctx, "k", 30*time.Second); !ok {
		t.Error("expired lock should be re-acquirable")
	}
	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Error("value should still be cached")
	}

	now = now.Add(time.Minute)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Error("value should have expired")
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, "k", []byte("abc"), time.Minute)

	v, _, _ := s.Get(ctx, "k")
	v[0] = 'x'

	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	s, err := NewRedisStore(url)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	exerciseStore(t, s)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"3f0c9a1e-7b55-4c1e-9c1f-3b1e2c9d0a11", true},
		{"client-retry#2", true},
		{"", false},
		{strings.Repeat("k", MaxKeyLength+1), false},
		{"with\nnewline", false},
	}
	for _, tt := range tests {
		if err := ValidateKey(tt.key); (err == nil) != tt.valid {
			t.Errorf("ValidateKey(%q) = %v, want valid=%v", tt.key, err, tt.valid)
		}
	}
}

func TestScopedKey_SeparatesUsers(t *testing.T) {
	if ScopedKey("a", "k") == ScopedKey("b", "k") {
		t.Error("keys for different users must differ")
	}
	if got := ScopedKey("a", " k "); got != "idem:a:k" {
		t.Errorf("ScopedKey = %q", got)
	}
}
