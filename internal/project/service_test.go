package project

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/repository"
)

// --- モック定義 ---

type mockProjectRepo struct {
	listByUserIDFn func(ctx context.Context, userID string) ([]*model.Project, error)
	createFn       func(ctx context.Context, project *model.Project) error
	deleteFn       func(ctx context.Context, id, userID string) (bool, error)
}

func (m *mockProjectRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Project, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProjectRepo) Create(ctx context.Context, project *model.Project) error {
	if m.createFn != nil {
		return m.createFn(ctx, project)
	}
	return nil
}

func (m *mockProjectRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, userID)
	}
	return false, nil
}

var _ repository.ProjectRepository = (*mockProjectRepo)(nil)

var (
	account = &model.Principal{UserID: "user-1"}
	guest   = &model.Principal{UserID: "guest-1", IsGuest: true}
)

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("expected error code %s, got %s", code, apiErr.Code)
	}
}

// --- List ---

func TestList_ReturnsEmptySliceForNoProjects(t *testing.T) {
	svc := NewService(&mockProjectRepo{})

	projects, err := svc.List(context.Background(), account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if projects == nil || len(projects) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", projects)
	}
}

func TestList_GuestIsRejected(t *testing.T) {
	svc := NewService(&mockProjectRepo{
		listByUserIDFn: func(context.Context, string) ([]*model.Project, error) {
			t.Error("repository should not be called for guests")
			return nil, nil
		},
	})

	_, err := svc.List(context.Background(), guest)
	assertAPIErrorCode(t, err, model.ErrCodeAccountRequired)
}

func TestList_NilPrincipal(t *testing.T) {
	svc := NewService(&mockProjectRepo{})
	_, err := svc.List(context.Background(), nil)
	assertAPIErrorCode(t, err, model.ErrCodeUnauthenticated)
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var saved *model.Project
	svc := NewService(&mockProjectRepo{
		createFn: func(_ context.Context, p *model.Project) error {
			saved = p
			return nil
		},
	})
	svc.now = func() time.Time { return fixed }

	p, err := svc.Create(context.Background(), account, CreateInput{InputText: "in", OutputText: "out"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved != p {
		t.Fatal("expected the returned project to be the saved one")
	}
	if p.ID == "" || p.UserID != "user-1" || !p.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected project: %+v", p)
	}
}

func TestCreate_Validation(t *testing.T) {
	long := strings.Repeat("a", MaxTextChars+1)
	tests := []struct {
		name string
		in   CreateInput
		code string
	}{
		{"empty input", CreateInput{InputText: " ", OutputText: "out"}, model.ErrCodeValidation},
		{"empty output", CreateInput{InputText: "in", OutputText: ""}, model.ErrCodeValidation},
		{"input too long", CreateInput{InputText: long, OutputText: "out"}, model.ErrCodeInputTooLong},
		{"output too long", CreateInput{InputText: "in", OutputText: long}, model.ErrCodeInputTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockProjectRepo{
				createFn: func(context.Context, *model.Project) error {
					t.Error("repository should not be called")
					return nil
				},
			})
			_, err := svc.Create(context.Background(), account, tt.in)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

func TestCreate_GuestIsRejected(t *testing.T) {
	svc := NewService(&mockProjectRepo{})
	_, err := svc.Create(context.Background(), guest, CreateInput{InputText: "in", OutputText: "out"})
	assertAPIErrorCode(t, err, model.ErrCodeAccountRequired)
}

func TestCreate_RepositoryError(t *testing.T) {
	svc := NewService(&mockProjectRepo{
		createFn: func(context.Context, *model.Project) error { return errors.New("db down") },
	})
	_, err := svc.Create(context.Background(), account, CreateInput{InputText: "in", OutputText: "out"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("repository failure should not be an APIError, got %v", apiErr)
	}
}

// --- Delete ---

func TestDelete(t *testing.T) {
	const validID = "6f1c1f4e-9a59-4c1e-8f0a-2f5d3b9c7e11"
	tests := []struct {
		name    string
		id      string
		deleted bool
		wantErr string
	}{
		{"deleted", validID, true, ""},
		{"not owned or missing", validID, false, model.ErrCodeProjectNotFound},
		{"malformed id", "not-a-uuid", false, model.ErrCodeProjectNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockProjectRepo{
				deleteFn: func(_ context.Context, id, userID string) (bool, error) {
					if id != validID || userID != "user-1" {
						t.Errorf("unexpected args id=%s user=%s", id, userID)
					}
					return tt.deleted, nil
				},
			})
			err := svc.Delete(context.Background(), account, tt.id)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertAPIErrorCode(t, err, tt.wantErr)
		})
	}
}

func TestDelete_GuestIsRejected(t *testing.T) {
	svc := NewService(&mockProjectRepo{})
	err := svc.Delete(context.Background(), guest, "6f1c1f4e-9a59-4c1e-8f0a-2f5d3b9c7e11")
	assertAPIErrorCode(t, err, model.ErrCodeAccountRequired)
}

// --- Analytics ---

func TestAnalytics_GuestIsRejected(t *testing.T) {
	svc := NewService(&mockProjectRepo{})
	_, err := svc.Analytics(context.Background(), guest)
	assertAPIErrorCode(t, err, model.ErrCodeAccountRequired)
}

func TestAnalytics_UsesOwnProjects(t *testing.T) {
	svc := NewService(&mockProjectRepo{
		listByUserIDFn: func(_ context.Context, userID string) ([]*model.Project, error) {
			if userID != "user-1" {
				t.Errorf("expected user-1, got %s", userID)
			}
			return []*model.Project{
				{ID: "p1", InputText: "We utilize data.", OutputText: "We use data.", CreatedAt: time.Now()},
			}, nil
		},
	})

	a, err := svc.Analytics(context.Background(), account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TotalProjects != 1 {
		t.Errorf("expected 1 project, got %d", a.TotalProjects)
	}
}
