// Package billing は料金プランの参照とデモ決済によるクレジット付与を提供する。
// 外部決済サービスとは連携せず、支払いは常に成功として記録する。
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/repository"
)

// CheckoutResult はデモ決済の結果。
type CheckoutResult struct {
	Payment *model.Payment
	Balance *model.CreditBalance
}

// Service はプラン一覧・購入・支払い履歴を扱う。
type Service struct {
	plans    repository.PlanRepository
	payments repository.PaymentRepository
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(plans repository.PlanRepository, payments repository.PaymentRepository) *Service {
	return &Service{plans: plans, payments: payments, now: time.Now}
}

// ListPlans は全プランを価格の安い順に返す。認証不要。
func (s *Service) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	if plans == nil {
		plans = []*model.Plan{}
	}
	return plans, nil
}

// Checkout は指定プランを購入する。
// 支払い記録・クレジット加算・プラン種別の切り替えは同一トランザクションで行われ、
// 次回更新日時は購入から1か月後になる。
func (s *Service) Checkout(ctx context.Context, principal *model.Principal, planID string) (*CheckoutResult, error) {
	if err := requireAccount(principal); err != nil {
		return nil, err
	}

	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, model.NewValidationError("planId is required")
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	if plan == nil {
		return nil, model.NewPlanNotFoundError(planID)
	}
	if plan.PriceCents <= 0 {
		return nil, model.NewValidationError("The free plan cannot be purchased")
	}

	now := s.now()
	payment := &model.Payment{
		ID:          uuid.New().String(),
		UserID:      principal.UserID,
		PlanID:      plan.ID,
		PlanName:    plan.Name,
		AmountCents: plan.PriceCents,
		Credits:     plan.MonthlyCredits,
		Status:      model.PaymentStatusSucceeded,
		CreatedAt:   now,
	}

	balance, err := s.payments.CreateWithGrant(ctx, payment, now.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	slog.Info("plan purchased",
		slog.String("user_id", principal.UserID),
		slog.String("plan_id", plan.ID),
		slog.Int("credits", plan.MonthlyCredits),
		slog.Int("credits_remaining", balance.Remaining),
	)

	return &CheckoutResult{Payment: payment, Balance: balance}, nil
}

// ListPayments は呼び出し元の支払い履歴を新しい順に返す。
func (s *Service) ListPayments(ctx context.Context, principal *model.Principal) ([]*model.Payment, error) {
	if err := requireAccount(principal); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	if payments == nil {
		payments = []*model.Payment{}
	}
	return payments, nil
}

func requireAccount(principal *model.Principal) error {
	if principal == nil || principal.UserID == "" {
		return model.NewUnauthenticatedError()
	}
	if principal.IsGuest {
		return model.NewAccountRequiredError()
	}
	return nil
}
