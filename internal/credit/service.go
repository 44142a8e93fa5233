// Package credit はクレジット残高の判定（クレジットゲート）と消費記録を提供する。
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/humanize/internal/metrics"
	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/repository"
)

// CreditsPerRewrite はリライト1回あたりの消費クレジット。
const CreditsPerRewrite = 1

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Permit はクレジットゲートの判定結果。
type Permit struct {
	Allowed   bool
	Remaining int
}

// SpendRequest はクレジット消費1回分の入力。
type SpendRequest struct {
	UserID         string
	Credits        int
	InputLength    int
	IdempotencyKey string
}

// Receipt はクレジット消費の結果。Chargedは今回の呼び出しで減算した場合のみtrueになる。
type Receipt struct {
	Balance *model.CreditBalance
	Charged bool
}

// Service はクレジット残高の参照・判定・消費を行う。
type Service struct {
	repo         repository.CreditRepository
	guestCredits int
	metrics      metrics.MetricsCollector
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(repo repository.CreditRepository, guestCredits int, m metrics.MetricsCollector) *Service {
	return &Service{repo: repo, guestCredits: guestCredits, metrics: m}
}

// Check は呼び出し元がリライトを実行できるかを判定する。
// 残高行が無いゲストには初回割り当てを作成する。アカウントで残高行が無い場合は拒否する。
// 残高の減算は行わない。
func (s *Service) Check(ctx context.Context, principal *model.Principal) (Permit, error) {
	if principal == nil || principal.UserID == "" {
		return Permit{}, model.NewUnauthenticatedError()
	}

	balance, err := s.repo.FindByUserID(ctx, principal.UserID)
	if err != nil {
		return Permit{}, fmt.Errorf("failed to load credit balance: %w", err)
	}

	if balance == nil {
		if !principal.IsGuest {
			return Permit{Allowed: false, Remaining: 0}, nil
		}
		balance, err = s.repo.Provision(ctx, principal.UserID, s.guestCredits, model.PlanTypeGuest)
		if err != nil {
			return Permit{}, fmt.Errorf("failed to provision guest credits: %w", err)
		}
		slog.Info("guest credits provisioned",
			slog.String("user_id", principal.UserID),
			slog.Int("credits", balance.Remaining),
		)
	}

	return Permit{Allowed: balance.Remaining > 0, Remaining: balance.Remaining}, nil
}

// Spend は残高の減算と利用履歴の追記を原子的に行い、更新後の残高を返す。
// 残高不足の場合はINSUFFICIENT_CREDITSエラーを返し、何も記録しない。
// 同じ冪等キーで消費済みの場合は減算せず、Charged=falseで現在の残高を返す。
func (s *Service) Spend(ctx context.Context, req SpendRequest) (*Receipt, error) {
	if req.Credits <= 0 {
		req.Credits = CreditsPerRewrite
	}

	result, err := s.repo.Spend(ctx, repository.SpendParams{
		UserID:         req.UserID,
		Credits:        req.Credits,
		Action:         model.UsageActionHumanize,
		InputLength:    req.InputLength,
		IdempotencyKey: req.IdempotencyKey,
	})
	if errors.Is(err, repository.ErrInsufficientCredits) {
		remaining := 0
		if balance, ferr := s.repo.FindByUserID(ctx, req.UserID); ferr == nil && balance != nil {
			remaining = balance.Remaining
		}
		return nil, model.NewInsufficientCreditsError(req.Credits, remaining)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to spend credits: %w", err)
	}

	if result.Replayed {
		slog.Info("credit spend replayed",
			slog.String("user_id", req.UserID),
			slog.String("idempotency_key", req.IdempotencyKey),
		)
	} else if s.metrics != nil {
		s.metrics.RecordCreditsSpent(req.Credits)
	}

	return &Receipt{Balance: result.Balance, Charged: !result.Replayed}, nil
}

// KeyUsed は冪等キーが消費記録に残っているかを返す。空のキーは常にfalse。
func (s *Service) KeyUsed(ctx context.Context, userID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	used, err := s.repo.UsageKeyExists(ctx, userID, key)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return used, nil
}

// Balance は呼び出し元の残高を返す。残高行が無い場合は残高0として扱う。
func (s *Service) Balance(ctx context.Context, principal *model.Principal) (*model.CreditBalance, error) {
	if principal == nil || principal.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	balance, err := s.repo.FindByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit balance: %w", err)
	}
	if balance == nil {
		planType := model.PlanTypeFree
		if principal.IsGuest {
			planType = model.PlanTypeGuest
		}
		return &model.CreditBalance{UserID: principal.UserID, PlanType: planType}, nil
	}
	return balance, nil
}

// History はクレジット利用履歴を新しい順に返す。limitは1〜200に丸める。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	records, err := s.repo.ListUsage(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit usage: %w", err)
	}
	if records == nil {
		records = []*model.UsageRecord{}
	}
	return records, nil
}

// Renew は更新日時を過ぎた残高にプランの月間クレジットを再付与し、更新件数を返す。
func (s *Service) Renew(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.RenewDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to renew credits: %w", err)
	}
	return n, nil
}
