package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/humanize/internal/model"
)

// PostgresContactRepo はPostgreSQLを使用した問い合わせリポジトリ。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

// Create は問い合わせを保存する。
func (r *PostgresContactRepo) Create(ctx context.Context, msg *model.ContactMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (id, name, email, message, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.Name, msg.Email, msg.Message, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact message: %w", err)
	}
	return nil
}

// PostgresAuthLogRepo はPostgreSQLを使用した認証ログリポジトリ。
type PostgresAuthLogRepo struct {
	db *sql.DB
}

// NewPostgresAuthLogRepo はPostgresAuthLogRepoを生成する。
func NewPostgresAuthLogRepo(db *sql.DB) *PostgresAuthLogRepo {
	return &PostgresAuthLogRepo{db: db}
}

// Record は認証イベントを追記する。
func (r *PostgresAuthLogRepo) Record(ctx context.Context, event model.AuthEvent, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_logs (event_type, user_id) VALUES ($1, NULLIF($2, '')::uuid)`,
		string(event), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to record auth event: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ ContactRepository = (*PostgresContactRepo)(nil)
	_ AuthLogRepository = (*PostgresAuthLogRepo)(nil)
)
