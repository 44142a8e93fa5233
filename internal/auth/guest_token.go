package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	guestTokenIssuer = "humanize"
	guestTokenType   = "guest"
)

// ErrInvalidGuestToken はゲストトークンの検証に失敗した場合に返る。
var ErrInvalidGuestToken = errors.New("invalid guest token")

// guestClaims はゲストトークンのクレーム。subにゲストユーザーIDを格納する。
type guestClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// GuestTokenIssuer はゲストセッション用のHS256署名トークンを発行・検証する。
type GuestTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewGuestTokenIssuer はGuestTokenIssuerを生成する。
func NewGuestTokenIssuer(secret string, ttl time.Duration) *GuestTokenIssuer {
	return &GuestTokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue はゲストユーザーIDを埋め込んだトークンと有効期限を返す。
func (g *GuestTokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := g.now()
	expiresAt := now.Add(g.ttl)
	claims := guestClaims{
		Type: guestTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    guestTokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign guest token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse はトークンを検証し、ゲストユーザーIDを返す。
// 署名不正、期限切れ、種別違いの場合はErrInvalidGuestTokenを返す。
func (g *GuestTokenIssuer) Parse(token string) (string, error) {
	claims := &guestClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return g.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(guestTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidGuestToken, err)
	}
	if claims.Type != guestTokenType || claims.Subject == "" {
		return "", ErrInvalidGuestToken
	}
	return claims.Subject, nil
}

// LooksLikeJWT はベアラートークンがJWT形式（ドット区切り3要素）かを判定する。
// セッションIDは16進文字列のためドットを含まない。
func LooksLikeJWT(token string) bool {
	dots := 0
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			dots++
		}
	}
	return dots == 2
}
