package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/humanize/internal/model"
)

// PostgresCreditRepo はPostgreSQLを使用したクレジットリポジトリ。
// 残高の減算は条件付きUPDATEで行い、同一ユーザーへの同時消費でも残高が負にならない。
type PostgresCreditRepo struct {
	db *sql.DB
}

// NewPostgresCreditRepo はPostgresCreditRepoを生成する。
func NewPostgresCreditRepo(db *sql.DB) *PostgresCreditRepo {
	return &PostgresCreditRepo{db: db}
}

const balanceColumns = `id, credits_remaining, total_credits_used, plan_type, period_ends_at, updated_at`

func scanBalance(row interface{ Scan(...any) error }) (*model.CreditBalance, error) {
	b := &model.CreditBalance{}
	var periodEndsAt sql.NullTime
	if err := row.Scan(&b.UserID, &b.Remaining, &b.TotalUsed, &b.PlanType, &periodEndsAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if periodEndsAt.Valid {
		t := periodEndsAt.Time
		b.PeriodEndsAt = &t
	}
	return b, nil
}

// FindByUserID はユーザーの残高を取得する。見つからない場合はnilを返す。
func (r *PostgresCreditRepo) FindByUserID(ctx context.Context, userID string) (*model.CreditBalance, error) {
	b, err := scanBalance(r.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM user_credits WHERE id = $1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credit balance: %w", err)
	}
	return b, nil
}

// Provision は残高行が無い場合のみ作成する。既存の行は変更しない。
func (r *PostgresCreditRepo) Provision(ctx context.Context, userID string, credits int, planType string) (*model.CreditBalance, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_credits (id, credits_remaining, plan_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		userID, credits, planType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to provision credit balance: %w", err)
	}
	b, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("credit balance missing after provision: %s", userID)
	}
	return b, nil
}

// Spend は残高の減算と利用履歴の追記を1トランザクションで行う。
func (r *PostgresCreditRepo) Spend(ctx context.Context, p SpendParams) (*SpendResult, error) {
	if p.Credits <= 0 {
		return nil, fmt.Errorf("credits to spend must be positive: %d", p.Credits)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.IdempotencyKey != "" {
		var seen bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM credit_usage_history WHERE user_id = $1 AND idempotency_key = $2
			 )`,
			p.UserID, p.IdempotencyKey,
		).Scan(&seen)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if seen {
			return r.replayed(ctx, tx, p.UserID)
		}
	}

	balance, err := scanBalance(tx.QueryRowContext(ctx,
		`UPDATE user_credits
		 SET credits_remaining = credits_remaining - $2,
		     total_credits_used = total_credits_used + $2,
		     updated_at = now()
		 WHERE id = $1 AND credits_remaining >= $2
		 RETURNING `+balanceColumns,
		p.UserID, p.Credits,
	))
	if err == sql.ErrNoRows {
		return nil, ErrInsufficientCredits
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrement credits: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_usage_history (id, user_id, action_type, credits_used, input_length, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now())`,
		uuid.NewString(), p.UserID, string(p.Action), p.Credits, p.InputLength, p.IdempotencyKey,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		// 同じ冪等キーの並行リクエストが先にコミットした
		return r.replayed(ctx, tx, p.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert usage record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &SpendResult{Balance: balance}, nil
}

// UsageKeyExists は指定の冪等キーで消費記録済みかを返す。
func (r *PostgresCreditRepo) UsageKeyExists(ctx context.Context, userID, idempotencyKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM credit_usage_history WHERE user_id = $1 AND idempotency_key = $2
		 )`,
		userID, idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists, nil
}

// replayed は進行中のトランザクションを破棄し、現在の残高を再実行結果として返す。
func (r *PostgresCreditRepo) replayed(ctx context.Context, tx *sql.Tx, userID string) (*SpendResult, error) {
	if err := tx.Rollback(); err != nil {
		return nil, fmt.Errorf("failed to rollback transaction: %w", err)
	}
	b, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SpendResult{Balance: b, Replayed: true}, nil
}

// ListUsage はユーザーの利用履歴を新しい順に返す。
func (r *PostgresCreditRepo) ListUsage(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, action_type, credits_used, input_length, COALESCE(idempotency_key, ''), created_at
		 FROM credit_usage_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage history: %w", err)
	}
	defer rows.Close()

	records := []*model.UsageRecord{}
	for rows.Next() {
		rec := &model.UsageRecord{}
		var action string
		if err := rows.Scan(&rec.ID, &rec.UserID, &action, &rec.CreditsUsed, &rec.InputLength, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.ActionType = model.UsageAction(action)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage history: %w", err)
	}
	return records, nil
}

// RenewDue は更新期限を過ぎた残高にプランの月間クレジットを再付与する。
// 残高がプランの付与数を上回っている場合は減らさない。
func (r *PostgresCreditRepo) RenewDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_credits AS uc
		 SET credits_remaining = GREATEST(uc.credits_remaining, p.monthly_credits),
		     period_ends_at = $1::timestamptz + interval '1 month',
		     updated_at = now()
		 FROM plans AS p
		 WHERE p.id = uc.plan_type
		   AND uc.period_ends_at IS NOT NULL
		   AND uc.period_ends_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to renew credits: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ CreditRepository = (*PostgresCreditRepo)(nil)
