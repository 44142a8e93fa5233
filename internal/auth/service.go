// Package auth はメールアドレス/パスワード認証、Google OAuth、ゲストセッション、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/repository"
)

// ErrOAuthDisabled はOAuthプロバイダーが未設定の場合に返る。
var ErrOAuthDisabled = errors.New("oauth login is not configured")

// maxPasswordBytes はbcryptが扱える最大バイト数。
const maxPasswordBytes = 72

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	SignupCredits int // 新規登録時に付与するクレジット
	GuestCredits  int // ゲストに付与するクレジット
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// SignupInput はサインアップフォームの入力。
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// GuestSession は発行したゲストセッションを表す。
type GuestSession struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	Credits   int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	authLogRepo repository.AuthLogRepository
	guestTokens *GuestTokenIssuer
	config      ServiceConfig
}

// NewService はServiceを生成する。oauthがnilの場合Googleログインは無効になる。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	authLogRepo repository.AuthLogRepository,
	guestTokens *GuestTokenIssuer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		authLogRepo: authLogRepo,
		guestTokens: guestTokens,
		config:      config,
	}
}

// OAuthEnabled はOAuthログインが利用可能かを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", ErrOAuthDisabled
	}
	return s.oauth.GetLoginURL(state), nil
}

// Signup はメールアドレスとパスワードでアカウントを作成し、セッションを発行する。
// ユーザー、identity、初期クレジット（無料プラン）は同一トランザクションで作成される。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at most %d bytes.", maxPasswordBytes))
	}

	hash, err := hashPassword(in.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(strings.TrimSpace(in.FirstName) + " " + strings.TrimSpace(in.LastName))
	user, err := s.createAccount(ctx, email, name, hash, model.ProviderPassword, email)
	if err != nil {
		return nil, err
	}

	return s.createSession(ctx, user.ID)
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := checkPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, model.AuthEventLogin, user.ID)
	return session, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はユーザー、identity、初期クレジットを同時に自動作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.oauth == nil {
		return nil, ErrOAuthDisabled
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
		s.recordEvent(ctx, model.AuthEventLogin, userID)
	} else {
		user, err := s.createAccount(ctx, userInfo.Email, userInfo.Name, "", userInfo.Provider, userInfo.ProviderUserID)
		if err != nil {
			return nil, err
		}
		userID = user.ID
	}

	return s.createSession(ctx, userID)
}

// StartGuest は新しいゲストユーザーを作成し、署名付きゲストトークンを発行する。
// ゲストはブラウザセッションごとに別ユーザーとなり、残高は共有されない。
func (s *Service) StartGuest(ctx context.Context) (*GuestSession, error) {
	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		IsGuest:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	balance := &model.CreditBalance{
		UserID:    user.ID,
		Remaining: s.config.GuestCredits,
		PlanType:  model.PlanTypeGuest,
	}
	if err := s.userRepo.CreateGuest(ctx, user, balance); err != nil {
		return nil, fmt.Errorf("failed to create guest user: %w", err)
	}

	token, expiresAt, err := s.guestTokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("guest session started", slog.String("user_id", user.ID))
	s.recordEvent(ctx, model.AuthEventGuest, user.ID)

	return &GuestSession{Token: token, UserID: user.ID, ExpiresAt: expiresAt, Credits: balance.Remaining}, nil
}

// ResolveGuestToken はゲストトークンを検証し、呼び出し元を返す。
// トークンが無効、またはゲストユーザーが削除済みの場合はnilを返す。
func (s *Service) ResolveGuestToken(ctx context.Context, token string) (*model.Principal, error) {
	userID, err := s.guestTokens.Parse(token)
	if err != nil {
		return nil, nil
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find guest user: %w", err)
	}
	if user == nil || !user.IsGuest {
		return nil, nil
	}
	return &model.Principal{UserID: user.ID, IsGuest: true}, nil
}

// ResolveSession はセッションIDから呼び出し元を返す。
// セッションが存在しないか期限切れの場合はnilを返す。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*model.Principal, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	return &model.Principal{UserID: session.UserID}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if session != nil {
		slog.Info("user logged out", slog.String("user_id", session.UserID))
		s.recordEvent(ctx, model.AuthEventLogout, session.UserID)
	}
	return nil
}

// CurrentUser はユーザーと紐付く認証プロバイダーの一覧。
type CurrentUser struct {
	User      *model.User
	Providers []string
}

// GetCurrentUser は呼び出し元のユーザー情報を取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*CurrentUser, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	var providers []string
	if !user.IsGuest {
		providers, err = s.identRepo.ListProvidersByUserID(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}
	return &CurrentUser{User: user, Providers: providers}, nil
}

// createAccount はユーザー、identity、無料プランの初期残高を作成する。
func (s *Service) createAccount(ctx context.Context, email, name, passwordHash, provider, providerUserID string) (*model.User, error) {
	now := time.Now()
	periodEnds := now.AddDate(0, 1, 0)

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      now,
	}
	balance := &model.CreditBalance{
		UserID:       user.ID,
		Remaining:    s.config.SignupCredits,
		PlanType:     model.PlanTypeFree,
		PeriodEndsAt: &periodEnds,
	}

	if err := s.userRepo.CreateAccount(ctx, user, identity, balance); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
	)
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// recordEvent は認証ログを記録する。失敗しても認証処理は継続する。
func (s *Service) recordEvent(ctx context.Context, event model.AuthEvent, userID string) {
	if s.authLogRepo == nil {
		return
	}
	if err := s.authLogRepo.Record(ctx, event, userID); err != nil {
		slog.Warn("failed to record auth event",
			slog.String("event", string(event)),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// normalizeEmail はメールアドレスを検証し、前後空白を除いた小文字に揃える。
func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", model.NewValidationError("Please enter a valid email address.")
	}
	return strings.ToLower(trimmed), nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
