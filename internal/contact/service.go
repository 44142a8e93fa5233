// Package contact は問い合わせフォームの受付を提供する。
package contact

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/humanize/internal/model"
	"github.com/hitoshi/humanize/internal/repository"
	"github.com/hitoshi/humanize/internal/security"
)

const (
	maxNameChars    = 100
	maxMessageChars = 5000
)

// Input は問い合わせフォームの入力。
type Input struct {
	Name    string
	Email   string
	Message string
}

// Service は問い合わせを検証・無害化して保存する。
type Service struct {
	repo      repository.ContactRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ContactRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, now: time.Now}
}

// Submit は問い合わせを保存する。
// 名前とメッセージはHTMLタグを除去してから保存する。
func (s *Service) Submit(ctx context.Context, in Input) (*model.ContactMessage, error) {
	name := s.sanitizer.Sanitize(in.Name)
	message := s.sanitizer.Sanitize(in.Message)
	email := strings.TrimSpace(in.Email)

	switch {
	case name == "":
		return nil, model.NewValidationError("Please enter your name.")
	case utf8.RuneCountInString(name) > maxNameChars:
		return nil, model.NewValidationError(fmt.Sprintf("Name must be at most %d characters.", maxNameChars))
	case !validEmail(email):
		return nil, model.NewValidationError("Please enter a valid email address.")
	case message == "":
		return nil, model.NewValidationError("Please enter a message.")
	case utf8.RuneCountInString(message) > maxMessageChars:
		return nil, model.NewValidationError(fmt.Sprintf("Message must be at most %d characters.", maxMessageChars))
	}

	msg := &model.ContactMessage{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     strings.ToLower(email),
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save contact message: %w", err)
	}

	slog.Info("contact message received", slog.String("contact_id", msg.ID))
	return msg, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
