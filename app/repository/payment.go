package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment with this transaction id already exists")
)

const paymentColumns = `
	id, subscription_id, amount_cents, currency, status, transaction_id,
	gateway, paid_at, refunded_at, created_at, updated_at
`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			subscription_id, amount_cents, currency, status, transaction_id,
			gateway, paid_at, refunded_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(payment.SubscriptionID),
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.TransactionID,
		payment.Gateway,
		nullableTimeValue(payment.PaidAt),
		nullableTimeValue(payment.RefundedAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments
		SET status = ?, paid_at = ?, refunded_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.Status,
		nullableTimeValue(payment.PaidAt),
		nullableTimeValue(payment.RefundedAt),
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = ?`, transactionID)
}

func (r *PaymentRepository) LockByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = ? FOR UPDATE`, transactionID)
}

func (r *PaymentRepository) ListStalePending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ?
		  AND created_at >= ?
		  AND created_at < ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.PaymentStatusPending, createdAfter, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *PaymentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Payment, error) {
	item := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, args...), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func scanPayment(scanner rowScanner, item *entity.Payment) error {
	var subscriptionID sql.NullInt64
	var paidAt sql.NullTime
	var refundedAt sql.NullTime

	err := scanner.Scan(
		&item.ID,
		&subscriptionID,
		&item.AmountCents,
		&item.Currency,
		&item.Status,
		&item.TransactionID,
		&item.Gateway,
		&paidAt,
		&refundedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if subscriptionID.Valid {
		id := uint64(subscriptionID.Int64)
		item.SubscriptionID = &id
	} else {
		item.SubscriptionID = nil
	}
	item.PaidAt = timePtr(paidAt)
	item.RefundedAt = timePtr(refundedAt)

	return nil
}
