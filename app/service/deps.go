package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/collaborator"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

// transactor is satisfied by repository.Store and memstore.Store.
type transactor interface {
	Transact(ctx context.Context, fn repository.TxFunc) error
	Stores() repository.Stores
}

type planCatalog interface {
	Get(ctx context.Context, id uint64) (*entity.Plan, error)
	ListActive(ctx context.Context) ([]*entity.Plan, error)
}

type gatewayRegistry interface {
	Get(p gateway.Provider) (gateway.Gateway, error)
	Lookup(name string) (gateway.Gateway, error)
}

type notifier interface {
	Notify(ctx context.Context, n collaborator.Notification) error
}

type employeeCounter interface {
	ActiveEmployeeCount(ctx context.Context, managerID string) (int, error)
}

type jobLocker interface {
	TryAcquire(ctx context.Context, name string) (release func(context.Context) error, acquired bool, err error)
}

type clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
