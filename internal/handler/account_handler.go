package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/humanize/internal/billing"
	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/project"
)

// CreditServiceInterface はクレジット残高と利用履歴の参照に必要なサービスインターフェース。
type CreditServiceInterface interface {
	Balance(ctx context.Context, principal *model.Principal) (*model.CreditBalance, error)
	History(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error)
}

// ProjectServiceInterface はプロジェクト管理に必要なサービスインターフェース。
type ProjectServiceInterface interface {
	List(ctx context.Context, principal *model.Principal) ([]*model.Project, error)
	Create(ctx context.Context, principal *model.Principal, in project.CreateInput) (*model.Project, error)
	Delete(ctx context.Context, principal *model.Principal, projectID string) error
	Analytics(ctx context.Context, principal *model.Principal) (*project.Analytics, error)
}

// BillingServiceInterface はプランと支払いに必要なサービスインターフェース。
type BillingServiceInterface interface {
	ListPlans(ctx context.Context) ([]*model.Plan, error)
	Checkout(ctx context.Context, principal *model.Principal, planID string) (*billing.CheckoutResult, error)
	ListPayments(ctx context.Context, principal *model.Principal) ([]*model.Payment, error)
}

// AccountHandler はクレジット残高、プロジェクト、プランと支払いのHTTPハンドラー。
type AccountHandler struct {
	credits  CreditServiceInterface
	projects ProjectServiceInterface
	billing  BillingServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(credits CreditServiceInterface, projects ProjectServiceInterface, billing BillingServiceInterface) *AccountHandler {
	return &AccountHandler{credits: credits, projects: projects, billing: billing}
}

type creditsResponse struct {
	CreditsRemaining int        `json:"creditsRemaining"`
	TotalCreditsUsed int        `json:"totalCreditsUsed"`
	PlanType         string     `json:"planType"`
	PeriodEndsAt     *time.Time `json:"periodEndsAt,omitempty"`
}

type usageResponse struct {
	ID          string    `json:"id"`
	ActionType  string    `json:"actionType"`
	CreditsUsed int       `json:"creditsUsed"`
	InputLength int       `json:"inputLength"`
	CreatedAt   time.Time `json:"createdAt"`
}

type projectRequest struct {
	InputText  string `json:"inputText"`
	OutputText string `json:"outputText"`
}

type projectResponse struct {
	ID         string    `json:"id"`
	InputText  string    `json:"inputText"`
	OutputText string    `json:"outputText"`
	CreatedAt  time.Time `json:"createdAt"`
}

type planResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MonthlyCredits int    `json:"monthlyCredits"`
	PriceCents     int    `json:"priceCents"`
}

type checkoutRequest struct {
	PlanID string `json:"planId"`
}

type paymentResponse struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"planId"`
	PlanName    string    `json:"planName"`
	AmountCents int       `json:"amountCents"`
	Credits     int       `json:"credits"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type checkoutResponse struct {
	Payment paymentResponse `json:"payment"`
	Credits creditsResponse `json:"credits"`
}

// Credits は呼び出し元の残高を返す。
// GET /api/credits
func (h *AccountHandler) Credits(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	balance, err := h.credits.Balance(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditsResponse(balance))
}

// CreditHistory はクレジット利用履歴を新しい順に返す。
// GET /api/credits/history?limit=50
func (h *AccountHandler) CreditHistory(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			handleServiceError(w, model.NewValidationError("limit must be a positive integer."))
			return
		}
		limit = n
	}

	records, err := h.credits.History(r.Context(), principal.UserID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]usageResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, usageResponse{
			ID:          rec.ID,
			ActionType:  string(rec.ActionType),
			CreditsUsed: rec.CreditsUsed,
			InputLength: rec.InputLength,
			CreatedAt:   rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListProjects は保存済みプロジェクトを新しい順に返す。
// GET /api/projects
func (h *AccountHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	projects, err := h.projects.List(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProject はリライト結果をプロジェクトとして保存する。
// POST /api/projects
func (h *AccountHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.projects.Create(r.Context(), principal, project.CreateInput{
		InputText:  req.InputText,
		OutputText: req.OutputText,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// DeleteProject はプロジェクトを削除する。
// DELETE /api/projects/{id}
func (h *AccountHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	if err := h.projects.Delete(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProjectAnalytics は保存済みプロジェクトの集計を返す。
// GET /api/projects/analytics
func (h *AccountHandler) ProjectAnalytics(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	analytics, err := h.projects.Analytics(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// ListPlans は料金プランの一覧を返す。認証不要。
// GET /plans
func (h *AccountHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.billing.ListPlans(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		resp = append(resp, planResponse{
			ID:             p.ID,
			Name:           p.Name,
			MonthlyCredits: p.MonthlyCredits,
			PriceCents:     p.PriceCents,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Checkout はプランを購入してクレジットを付与する（デモ決済）。
// POST /api/payments
func (h *AccountHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.billing.Checkout(r.Context(), principal, req.PlanID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		Payment: toPaymentResponse(result.Payment),
		Credits: toCreditsResponse(result.Balance),
	})
}

// ListPayments は支払い履歴を新しい順に返す。
// GET /api/payments
func (h *AccountHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	principal := principalOrUnauthorized(w, r)
	if principal == nil {
		return
	}

	payments, err := h.billing.ListPayments(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- ヘルパー関数 ---

func toCreditsResponse(b *model.CreditBalance) creditsResponse {
	return creditsResponse{
		CreditsRemaining: b.Remaining,
		TotalCreditsUsed: b.TotalUsed,
		PlanType:         b.PlanType,
		PeriodEndsAt:     b.PeriodEndsAt,
	}
}

func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ID:         p.ID,
		InputText:  p.InputText,
		OutputText: p.OutputText,
		CreatedAt:  p.CreatedAt,
	}
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		PlanID:      p.PlanID,
		PlanName:    p.PlanName,
		AmountCents: p.AmountCents,
		Credits:     p.Credits,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
	}
}
