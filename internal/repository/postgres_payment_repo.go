package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/humanize/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した支払いリポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

// CreateWithGrant は支払いを記録し、同一トランザクションでクレジットを加算してプラン種別を切り替える。
// 残高行が存在しない場合は作成する。
func (r *PostgresPaymentRepo) CreateWithGrant(ctx context.Context, payment *model.Payment, periodEndsAt time.Time) (*model.CreditBalance, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, plan_id, amount_cents, credits, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		payment.ID, payment.UserID, payment.PlanID, payment.AmountCents, payment.Credits, string(payment.Status), payment.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	balance, err := scanBalance(tx.QueryRowContext(ctx,
		`INSERT INTO user_credits (id, credits_remaining, plan_type, period_ends_at, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE
		 SET credits_remaining = user_credits.credits_remaining + EXCLUDED.credits_remaining,
		     plan_type = EXCLUDED.plan_type,
		     period_ends_at = EXCLUDED.period_ends_at,
		     updated_at = now()
		 RETURNING `+balanceColumns,
		payment.UserID, payment.Credits, payment.PlanID, periodEndsAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to grant credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// ListByUserID はユーザーの支払い履歴をプラン名付きで新しい順に返す。
func (r *PostgresPaymentRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pay.id, pay.user_id, pay.plan_id, pl.name, pay.amount_cents, pay.credits, pay.status, pay.created_at
		 FROM payments AS pay
		 JOIN plans AS pl ON pl.id = pay.plan_id
		 WHERE pay.user_id = $1
		 ORDER BY pay.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := []*model.Payment{}
	for rows.Next() {
		p := &model.Payment{}
		var status string
		if err := rows.Scan(&p.ID, &p.UserID, &p.PlanID, &p.PlanName, &p.AmountCents, &p.Credits, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Status = model.PaymentStatus(status)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
