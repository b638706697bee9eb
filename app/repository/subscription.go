package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var (
	ErrSubscriptionNotFound        = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists   = errors.New("subscription already exists")
	ErrSubscriptionVersionConflict = errors.New("subscription was modified concurrently")
)

const subscriptionColumns = `
	id, manager_id, plan_id, status, is_active, auto_renew,
	start_at, end_at, version, created_at, updated_at
`

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			manager_id, plan_id, status, is_active, auto_renew,
			start_at, end_at, version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		subscription.ManagerID,
		subscription.PlanID,
		subscription.Status,
		subscription.IsActive,
		subscription.AutoRenew,
		subscription.StartAt,
		subscription.EndAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrSubscriptionAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	subscription.ID = uint64(id)
	subscription.Version = 1
	return nil
}

// Update writes the row only if nobody bumped its version since it was read.
func (r *SubscriptionRepository) Update(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = ?, status = ?, is_active = ?, auto_renew = ?,
		    start_at = ?, end_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		subscription.PlanID,
		subscription.Status,
		subscription.IsActive,
		subscription.AutoRenew,
		subscription.StartAt,
		subscription.EndAt,
		subscription.UpdatedAt,
		subscription.ID,
		subscription.Version,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubscriptionVersionConflict
	}

	subscription.Version++
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id uint64) (*entity.Subscription, error) {
	return r.findOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *SubscriptionRepository) FindByManagerID(ctx context.Context, managerID string) (*entity.Subscription, error) {
	return r.findOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE manager_id = ?`, managerID)
}

func (r *SubscriptionRepository) LockByID(ctx context.Context, id uint64) (*entity.Subscription, error) {
	return r.findOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`, id)
}

func (r *SubscriptionRepository) LockByManagerID(ctx context.Context, managerID string) (*entity.Subscription, error) {
	return r.findOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE manager_id = ? FOR UPDATE`, managerID)
}

func (r *SubscriptionRepository) ListExpiredActiveIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	query := `
		SELECT id
		FROM subscriptions
		WHERE is_active = 1
		  AND end_at <= ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *SubscriptionRepository) ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE is_active = 1
		  AND end_at >= ?
		  AND end_at < ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Subscription, 0)
	for rows.Next() {
		item := &entity.Subscription{}
		if err := scanSubscription(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Subscription, error) {
	item := &entity.Subscription{}
	if err := scanSubscription(r.db.QueryRowContext(ctx, query, args...), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func scanSubscription(scanner rowScanner, item *entity.Subscription) error {
	return scanner.Scan(
		&item.ID,
		&item.ManagerID,
		&item.PlanID,
		&item.Status,
		&item.IsActive,
		&item.AutoRenew,
		&item.StartAt,
		&item.EndAt,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}
