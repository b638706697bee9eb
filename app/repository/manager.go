package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type ManagerRepository struct {
	db DBTX
}

func NewManagerRepository(db DBTX) *ManagerRepository {
	return &ManagerRepository{db: db}
}

func (r *ManagerRepository) FindByID(ctx context.Context, id string) (*entity.Manager, error) {
	query := `
		SELECT id, email, is_active, subscription_ends_at
		FROM managers
		WHERE id = ?
	`

	item := &entity.Manager{}
	var email sql.NullString
	var endsAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(&item.ID, &email, &item.IsActive, &endsAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if email.Valid {
		item.Email = email.String
	}
	item.SubscriptionEndsAt = timePtr(endsAt)
	return item, nil
}

// UpdateSubscriptionMirror does not check affected rows: MySQL reports zero for
// rows whose values did not change, and existence is checked at subscribe time.
func (r *ManagerRepository) UpdateSubscriptionMirror(ctx context.Context, id string, endsAt *time.Time, isActive bool) error {
	query := `
		UPDATE managers
		SET subscription_ends_at = ?, is_active = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query, nullableTimeValue(endsAt), isActive, id)
	return err
}
