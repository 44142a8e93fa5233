// Package project はダッシュボードに保存するリライト結果の管理と集計を提供する。
package project

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/repository"
)

// MaxTextChars は保存できる入力・出力テキストそれぞれの最大文字数。
const MaxTextChars = 20000

// Service はプロジェクトの一覧・保存・削除・集計を行う。
// ゲストセッションでは利用できない。
type Service struct {
	repo repository.ProjectRepository
	now  func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ProjectRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateInput はプロジェクト保存の入力。
type CreateInput struct {
	InputText  string
	OutputText string
}

// List は呼び出し元のプロジェクトを新しい順に返す。
func (s *Service) List(ctx context.Context, principal *model.Principal) ([]*model.Project, error) {
	if err := requireAccount(principal); err != nil {
		return nil, err
	}
	projects, err := s.repo.ListByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if projects == nil {
		projects = []*model.Project{}
	}
	return projects, nil
}

// Create はリライト結果をプロジェクトとして保存する。
func (s *Service) Create(ctx context.Context, principal *model.Principal, in CreateInput) (*model.Project, error) {
	if err := requireAccount(principal); err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.InputText) == "" || strings.TrimSpace(in.OutputText) == "" {
		return nil, model.NewValidationError("inputText and outputText are required")
	}
	if n := utf8.RuneCountInString(in.InputText); n > MaxTextChars {
		return nil, model.NewInputTooLongError(n, MaxTextChars)
	}
	if n := utf8.RuneCountInString(in.OutputText); n > MaxTextChars {
		return nil, model.NewInputTooLongError(n, MaxTextChars)
	}

	p := &model.Project{
		ID:         uuid.New().String(),
		UserID:     principal.UserID,
		InputText:  in.InputText,
		OutputText: in.OutputText,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	slog.Info("project saved",
		slog.String("user_id", principal.UserID),
		slog.String("project_id", p.ID),
	)
	return p, nil
}

// Delete は呼び出し元が所有するプロジェクトを削除する。
// IDの形式不正や他ユーザーのプロジェクトはPROJECT_NOT_FOUNDとして扱う。
func (s *Service) Delete(ctx context.Context, principal *model.Principal, projectID string) error {
	if err := requireAccount(principal); err != nil {
		return err
	}
	if _, err := uuid.Parse(projectID); err != nil {
		return model.NewProjectNotFoundError(projectID)
	}

	deleted, err := s.repo.Delete(ctx, projectID, principal.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if !deleted {
		return model.NewProjectNotFoundError(projectID)
	}

	slog.Info("project deleted",
		slog.String("user_id", principal.UserID),
		slog.String("project_id", projectID),
	)
	return nil
}

// Analytics は呼び出し元のプロジェクト全体の集計を返す。
func (s *Service) Analytics(ctx context.Context, principal *model.Principal) (*Analytics, error) {
	projects, err := s.List(ctx, principal)
	if err != nil {
		return nil, err
	}
	return Summarize(projects), nil
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
