package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/humanize/internal/billing"
	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/project"
)

// --- モック定義 ---

type mockCreditService struct {
	balanceFn func(ctx context.Context, principal *model.Principal) (*model.CreditBalance, error)
	historyFn func(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error)
}

func (m *mockCreditService) Balance(ctx context.Context, principal *model.Principal) (*model.CreditBalance, error) {
	if m.balanceFn != nil {
		return m.balanceFn(ctx, principal)
	}
	return &model.CreditBalance{UserID: principal.UserID, PlanType: model.PlanTypeFree}, nil
}

func (m *mockCreditService) History(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, limit)
	}
	return nil, nil
}

type mockProjectService struct {
	listFn      func(ctx context.Context, principal *model.Principal) ([]*model.Project, error)
	createFn    func(ctx context.Context, principal *model.Principal, in project.CreateInput) (*model.Project, error)
	deleteFn    func(ctx context.Context, principal *model.Principal, projectID string) error
	analyticsFn func(ctx context.Context, principal *model.Principal) (*project.Analytics, error)
}

func (m *mockProjectService) List(ctx context.Context, principal *model.Principal) ([]*model.Project, error) {
	if m.listFn != nil {
		return m.listFn(ctx, principal)
	}
	return []*model.Project{}, nil
}

func (m *mockProjectService) Create(ctx context.Context, principal *model.Principal, in project.CreateInput) (*model.Project, error) {
	if m.createFn != nil {
		return m.createFn(ctx, principal, in)
	}
	return &model.Project{}, nil
}

func (m *mockProjectService) Delete(ctx context.Context, principal *model.Principal, projectID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, principal, projectID)
	}
	return nil
}

func (m *mockProjectService) Analytics(ctx context.Context, principal *model.Principal) (*project.Analytics, error) {
	if m.analyticsFn != nil {
		return m.analyticsFn(ctx, principal)
	}
	return project.Summarize(nil), nil
}

type mockBillingService struct {
	listPlansFn    func(ctx context.Context) ([]*model.Plan, error)
	checkoutFn     func(ctx context.Context, principal *model.Principal, planID string) (*billing.CheckoutResult, error)
	listPaymentsFn func(ctx context.Context, principal *model.Principal) ([]*model.Payment, error)
}

func (m *mockBillingService) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	if m.listPlansFn != nil {
		return m.listPlansFn(ctx)
	}
	return []*model.Plan{}, nil
}

func (m *mockBillingService) Checkout(ctx context.Context, principal *model.Principal, planID string) (*billing.CheckoutResult, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, principal, planID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockBillingService) ListPayments(ctx context.Context, principal *model.Principal) ([]*model.Payment, error) {
	if m.listPaymentsFn != nil {
		return m.listPaymentsFn(ctx, principal)
	}
	return []*model.Payment{}, nil
}

func newTestAccountHandler(c *mockCreditService, p *mockProjectService, b *mockBillingService) *AccountHandler {
	if c == nil {
		c = &mockCreditService{}
	}
	if p == nil {
		p = &mockProjectService{}
	}
	if b == nil {
		b = &mockBillingService{}
	}
	return NewAccountHandler(c, p, b)
}

// withURLParam はchiのURLパラメータを設定するテストヘルパー。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- GET /api/credits ---

func TestAccountHandler_Credits_ReturnsBalance(t *testing.T) {
	credits := &mockCreditService{
		balanceFn: func(ctx context.Context, principal *model.Principal) (*model.CreditBalance, error) {
			return &model.CreditBalance{UserID: principal.UserID, Remaining: 7, TotalUsed: 3, PlanType: "basic"}, nil
		},
	}
	h := newTestAccountHandler(credits, nil, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/credits", nil), "user-1")
	w := httptest.NewRecorder()

	h.Credits(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body creditsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.CreditsRemaining != 7 || body.TotalCreditsUsed != 3 || body.PlanType != "basic" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAccountHandler_Credits_NoPrincipal_Returns401(t *testing.T) {
	h := newTestAccountHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/credits", nil)
	w := httptest.NewRecorder()

	h.Credits(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- GET /api/credits/history ---

func TestAccountHandler_CreditHistory_PassesLimit(t *testing.T) {
	var gotLimit int
	credits := &mockCreditService{
		historyFn: func(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
			gotLimit = limit
			return []*model.UsageRecord{
				{ID: "u1", UserID: userID, ActionType: model.UsageActionHumanize, CreditsUsed: 1, InputLength: 42},
			}, nil
		},
	}
	h := newTestAccountHandler(credits, nil, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/credits/history?limit=5", nil), "user-1")
	w := httptest.NewRecorder()

	h.CreditHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d, want 5", gotLimit)
	}

	var body []usageResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 || body[0].ActionType != "humanize" || body[0].InputLength != 42 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAccountHandler_CreditHistory_InvalidLimit_Returns400(t *testing.T) {
	h := newTestAccountHandler(nil, nil, nil)

	for _, q := range []string{"abc", "0", "-3"} {
		req := withUserID(httptest.NewRequest(http.MethodGet, "/api/credits/history?limit="+q, nil), "user-1")
		w := httptest.NewRecorder()

		h.CreditHistory(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}

func TestAccountHandler_CreditHistory_Empty_ReturnsArray(t *testing.T) {
	h := newTestAccountHandler(nil, nil, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/credits/history", nil), "user-1")
	w := httptest.NewRecorder()

	h.CreditHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want %q", got, "[]\n")
	}
}

// --- /api/projects ---

func TestAccountHandler_CreateProject_Success(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	projects := &mockProjectService{
		createFn: func(ctx context.Context, principal *model.Principal, in project.CreateInput) (*model.Project, error) {
			if in.InputText != "in" || in.OutputText != "out" {
				t.Errorf("unexpected input: %+v", in)
			}
			return &model.Project{ID: "p1", UserID: principal.UserID, InputText: in.InputText, OutputText: in.OutputText, CreatedAt: created}, nil
		},
	}
	h := newTestAccountHandler(nil, projects, nil)

	req := withUserID(newJSONRequest(http.MethodPost, "/api/projects", `{"inputText":"in","outputText":"out"}`), "user-1")
	w := httptest.NewRecorder()

	h.CreateProject(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var body projectResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "p1" || body.InputText != "in" || body.OutputText != "out" || !body.CreatedAt.Equal(created) {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAccountHandler_CreateProject_Guest_Returns403(t *testing.T) {
	projects := &mockProjectService{
		createFn: func(ctx context.Context, principal *model.Principal, in project.CreateInput) (*model.Project, error) {
			if !principal.IsGuest {
				t.Error("expected guest principal")
			}
			return nil, model.NewAccountRequiredError()
		},
	}
	h := newTestAccountHandler(nil, projects, nil)

	req := withPrincipal(newJSONRequest(http.MethodPost, "/api/projects", `{"inputText":"in","outputText":"out"}`), "guest-1", true)
	w := httptest.NewRecorder()

	h.CreateProject(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeAccountRequired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeAccountRequired)
	}
}

func TestAccountHandler_ListProjects_EmptyReturnsArray(t *testing.T) {
	h := newTestAccountHandler(nil, nil, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/projects", nil), "user-1")
	w := httptest.NewRecorder()

	h.ListProjects(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want %q", got, "[]\n")
	}
}

func TestAccountHandler_DeleteProject(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusNoContent},
		{"not found", model.NewProjectNotFoundError("p1"), http.StatusNotFound},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID string
			projects := &mockProjectService{
				deleteFn: func(ctx context.Context, principal *model.Principal, projectID string) error {
					gotID = projectID
					return tt.err
				},
			}
			h := newTestAccountHandler(nil, projects, nil)

			req := httptest.NewRequest(http.MethodDelete, "/api/projects/p1", nil)
			req = withURLParam(withUserID(req, "user-1"), "id", "p1")
			w := httptest.NewRecorder()

			h.DeleteProject(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotID != "p1" {
				t.Errorf("projectID = %q, want %q", gotID, "p1")
			}
		})
	}
}

func TestAccountHandler_ProjectAnalytics_ReturnsSummary(t *testing.T) {
	projects := &mockProjectService{
		analyticsFn: func(ctx context.Context, principal *model.Principal) (*project.Analytics, error) {
			return project.Summarize([]*model.Project{
				{ID: "p1", InputText: "hello world", OutputText: "hello there", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			}), nil
		},
	}
	h := newTestAccountHandler(nil, projects, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/projects/analytics", nil), "user-1")
	w := httptest.NewRecorder()

	h.ProjectAnalytics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !containsStr(w.Body.String(), "2026-01-01") {
		t.Errorf("body should contain usage date, got %s", w.Body.String())
	}
}

// --- /plans, /api/payments ---

func TestAccountHandler_ListPlans(t *testing.T) {
	billingSvc := &mockBillingService{
		listPlansFn: func(ctx context.Context) ([]*model.Plan, error) {
			return []*model.Plan{
				{ID: "free", Name: "Free", MonthlyCredits: 10, PriceCents: 0},
				{ID: "pro", Name: "Pro", MonthlyCredits: 50, PriceCents: 2000},
			}, nil
		},
	}
	h := newTestAccountHandler(nil, nil, billingSvc)

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	w := httptest.NewRecorder()

	h.ListPlans(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body []planResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 2 || body[1].ID != "pro" || body[1].MonthlyCredits != 50 || body[1].PriceCents != 2000 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAccountHandler_Checkout_Success(t *testing.T) {
	billingSvc := &mockBillingService{
		checkoutFn: func(ctx context.Context, principal *model.Principal, planID string) (*billing.CheckoutResult, error) {
			if planID != "pro" {
				t.Errorf("planID = %q, want %q", planID, "pro")
			}
			return &billing.CheckoutResult{
				Payment: &model.Payment{ID: "pay-1", PlanID: "pro", PlanName: "Pro", AmountCents: 2000, Credits: 50, Status: model.PaymentStatusSucceeded},
				Balance: &model.CreditBalance{UserID: principal.UserID, Remaining: 55, PlanType: "pro"},
			}, nil
		},
	}
	h := newTestAccountHandler(nil, nil, billingSvc)

	req := withUserID(newJSONRequest(http.MethodPost, "/api/payments", `{"planId":"pro"}`), "user-1")
	w := httptest.NewRecorder()

	h.Checkout(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var body checkoutResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Payment.Status != "succeeded" || body.Payment.Credits != 50 {
		t.Errorf("unexpected payment: %+v", body.Payment)
	}
	if body.Credits.CreditsRemaining != 55 || body.Credits.PlanType != "pro" {
		t.Errorf("unexpected credits: %+v", body.Credits)
	}
}

func TestAccountHandler_Checkout_PlanNotFound_Returns404(t *testing.T) {
	billingSvc := &mockBillingService{
		checkoutFn: func(ctx context.Context, principal *model.Principal, planID string) (*billing.CheckoutResult, error) {
			return nil, model.NewPlanNotFoundError(planID)
		},
	}
	h := newTestAccountHandler(nil, nil, billingSvc)

	req := withUserID(newJSONRequest(http.MethodPost, "/api/payments", `{"planId":"gold"}`), "user-1")
	w := httptest.NewRecorder()

	h.Checkout(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodePlanNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodePlanNotFound)
	}
}

func TestAccountHandler_ListPayments(t *testing.T) {
	billingSvc := &mockBillingService{
		listPaymentsFn: func(ctx context.Context, principal *model.Principal) ([]*model.Payment, error) {
			return []*model.Payment{{ID: "pay-1", PlanID: "basic", Status: model.PaymentStatusSucceeded}}, nil
		},
	}
	h := newTestAccountHandler(nil, nil, billingSvc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/payments", nil), "user-1")
	w := httptest.NewRecorder()

	h.ListPayments(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body []paymentResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 || body[0].ID != "pay-1" {
		t.Errorf("unexpected body: %+v", body)
	}
}
