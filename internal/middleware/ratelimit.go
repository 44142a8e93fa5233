package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/humanize/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 認証済みAPI全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	RewriteRate     rate.Limit    // リライト・補助APIのレート（req/sec）
	RewriteBurst    int           // リライトのバーストサイズ
	PublicRate      rate.Limit    // 未認証エンドポイントのクライアントIPごとのレート（req/sec）
	PublicBurst     int           // 未認証エンドポイントのバーストサイズ
	GuestRate       rate.Limit    // ゲストセッション発行のクライアントIPごとのレート（req/sec）
	GuestBurst      int           // ゲストセッション発行のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、リライト 10 req/min、未認証 30 req/min、ゲスト発行 5 req/hour。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 10, 30)
}

// RateLimiterConfigPerMinute は1分あたりのリクエスト数からレート制限設定を作る。
// バーストサイズは1分あたりのリクエスト数と同じにする。ゲスト発行は1時間あたり5回。
func RateLimiterConfigPerMinute(general, rewrite, public int) RateLimiterConfig {
	return RateLimiterConfig{
		GuestRate:       perHour(defaultGuestPerHour),
		GuestBurst:      defaultGuestPerHour,
		GeneralRate:     perMinute(general),
		GeneralBurst:    general,
		RewriteRate:     perMinute(rewrite),
		RewriteBurst:    rewrite,
		PublicRate:      perMinute(public),
		PublicBurst:     public,
		CleanupInterval: 5 * time.Minute,
	}
}

const defaultGuestPerHour = 5

// WithGuestPerHour はゲストセッション発行の上限を1時間あたりの回数で設定する。
// バーストサイズは1時間あたりの回数と同じにする。
func (c RateLimiterConfig) WithGuestPerHour(n int) RateLimiterConfig {
	c.GuestRate = perHour(n)
	c.GuestBurst = n
	return c
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

func perHour(n int) rate.Limit {
	return rate.Limit(float64(n) / 3600.0)
}

// keyedLimiter はキー（ユーザーIDまたはクライアントIP）ごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてキーごとのリミッターを管理する。
type limiterSet struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(name string, r rate.Limit, burst int) *limiterSet {
	return &limiterSet{name: name, rate: r, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

// get はキーのリミッターを取得または作成し、最終アクセス時刻を更新する。
func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	kl, ok := s.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.limiters[key] = kl
	}
	kl.lastAccess = now
	return kl.limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict は最終アクセスがttlより古いエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter は呼び出し元ごとのレート制限を管理する。
// API全般・リライト・未認証エンドポイント・ゲスト発行の4種類を独立に提供する。
type RateLimiter struct {
	config RateLimiterConfig

	general *limiterSet
	rewrite *limiterSet
	public  *limiterSet
	guest   *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		rewrite: newLimiterSet("rewrite", config.RewriteRate, config.RewriteBurst),
		public:  newLimiterSet("public", config.PublicRate, config.PublicBurst),
		guest:   newLimiterSet("guest", config.GuestRate, config.GuestBurst),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止し、終了を待つ。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	<-rl.doneCh
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.userMiddleware(rl.general)
}

// RewriteMiddleware は補完APIを呼び出すエンドポイント用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) RewriteMiddleware() func(next http.Handler) http.Handler {
	return rl.userMiddleware(rl.rewrite)
}

// PublicMiddleware は未認証エンドポイント用にクライアントIPごとのレート制限を行うミドルウェアを返す。
func (rl *RateLimiter) PublicMiddleware() func(next http.Handler) http.Handler {
	return ipMiddleware(rl.public)
}

// GuestMiddleware はゲストセッション発行をクライアントIPごとに制限するミドルウェアを返す。
// 発行のたびに無料クレジットが割り当てられるため、未認証エンドポイント全体より厳しくする。
func (rl *RateLimiter) GuestMiddleware() func(next http.Handler) http.Handler {
	return ipMiddleware(rl.guest)
}

func ipMiddleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !set.get(ip, time.Now()).Allow() {
				writeRateLimitResponse(w, set.rate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", set.name),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) userMiddleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			if !set.get(userID, time.Now()).Allow() {
				writeRateLimitResponse(w, set.rate)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", set.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// RewriteLimiterCount は現在管理されているリライトリミッターのエントリ数を返す。
func (rl *RateLimiter) RewriteLimiterCount() int {
	return rl.rewrite.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.doneCh)

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.rewrite.evict(now, ttl)
	rl.public.evict(now, ttl)
	rl.guest.evict(now, ttl)
}

// clientIP はリクエスト元のIPアドレスを返す。
// リバースプロキシ配下ではchiのRealIPミドルウェアでRemoteAddrが置き換えられている前提。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
