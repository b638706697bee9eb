package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const planColumns = `
	id, code, name, price_cents, currency, period_days,
	max_employees, is_active, created_at, updated_at
`

type PlanRepository struct {
	db DBTX
}

func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) FindByID(ctx context.Context, id uint64) (*entity.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = ?`

	item := &entity.Plan{}
	err := scanPlan(r.db.QueryRowContext(ctx, query, id), item)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return item, nil
}

func (r *PlanRepository) ListActive(ctx context.Context) ([]*entity.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE is_active = 1 ORDER BY price_cents ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Plan, 0)
	for rows.Next() {
		item := &entity.Plan{}
		if err := scanPlan(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func scanPlan(scanner rowScanner, item *entity.Plan) error {
	return scanner.Scan(
		&item.ID,
		&item.Code,
		&item.Name,
		&item.PriceCents,
		&item.Currency,
		&item.PeriodDays,
		&item.MaxEmployees,
		&item.IsActive,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}
