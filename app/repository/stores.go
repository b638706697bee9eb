package repository

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type SubscriptionStore interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	Update(ctx context.Context, subscription *entity.Subscription) error
	FindByID(ctx context.Context, id uint64) (*entity.Subscription, error)
	FindByManagerID(ctx context.Context, managerID string) (*entity.Subscription, error)
	// LockByID and LockByManagerID take a row lock; callers must be inside Transact.
	LockByID(ctx context.Context, id uint64) (*entity.Subscription, error)
	LockByManagerID(ctx context.Context, managerID string) (*entity.Subscription, error)
	ListExpiredActiveIDs(ctx context.Context, now time.Time) ([]uint64, error)
	ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]*entity.Subscription, error)
}

type PaymentStore interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error)
	LockByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error)
	ListStalePending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*entity.Payment, error)
}

type ManagerStore interface {
	FindByID(ctx context.Context, id string) (*entity.Manager, error)
	UpdateSubscriptionMirror(ctx context.Context, id string, endsAt *time.Time, isActive bool) error
}

type PlanStore interface {
	FindByID(ctx context.Context, id uint64) (*entity.Plan, error)
	ListActive(ctx context.Context) ([]*entity.Plan, error)
}

// Stores groups the repositories bound to one connection or transaction.
type Stores struct {
	Subscriptions SubscriptionStore
	Payments      PaymentStore
	Managers      ManagerStore
	Plans         PlanStore
}

func NewStores(db DBTX) Stores {
	return Stores{
		Subscriptions: NewSubscriptionRepository(db),
		Payments:      NewPaymentRepository(db),
		Managers:      NewManagerRepository(db),
		Plans:         NewPlanRepository(db),
	}
}
