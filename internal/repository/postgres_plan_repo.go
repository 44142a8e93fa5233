package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/humanize/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用したプランリポジトリ。
// プランはマイグレーションで投入され、アプリケーションからは参照のみ行う。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

// List は全プランを価格の安い順に返す。
func (r *PostgresPlanRepo) List(ctx context.Context) ([]*model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, monthly_credits, price_cents FROM plans ORDER BY price_cents, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []*model.Plan{}
	for rows.Next() {
		p := &model.Plan{}
		if err := rows.Scan(&p.ID, &p.Name, &p.MonthlyCredits, &p.PriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return plans, nil
}

// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
func (r *PostgresPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	p := &model.Plan{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, monthly_credits, price_cents FROM plans WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.MonthlyCredits, &p.PriceCents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

// compile-time interface check
var _ PlanRepository = (*PostgresPlanRepo)(nil)
