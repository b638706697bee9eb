package memstore

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type lockedSubscriptions struct{ store *Store }

func (r lockedSubscriptions) Create(ctx context.Context, subscription *entity.Subscription) error {
	return r.store.withState(func(st *state) error { return (&subscriptions{st: st}).Create(ctx, subscription) })
}

func (r lockedSubscriptions) Update(ctx context.Context, subscription *entity.Subscription) error {
	return r.store.withState(func(st *state) error { return (&subscriptions{st: st}).Update(ctx, subscription) })
}

func (r lockedSubscriptions) FindByID(ctx context.Context, id uint64) (item *entity.Subscription, err error) {
	err = r.store.withState(func(st *state) error {
		item, err = (&subscriptions{st: st}).FindByID(ctx, id)
		return err
	})
	return item, err
}

func (r lockedSubscriptions) FindByManagerID(ctx context.Context, managerID string) (item *entity.Subscription, err error) {
	err = r.store.withState(func(st *state) error {
		item, err = (&subscriptions{st: st}).FindByManagerID(ctx, managerID)
		return err
	})
	return item, err
}

func (r lockedSubscriptions) LockByID(ctx context.Context, id uint64) (*entity.Subscription, error) {
	return r.FindByID(ctx, id)
}

func (r lockedSubscriptions) LockByManagerID(ctx context.Context, managerID string) (*entity.Subscription, error) {
	return r.FindByManagerID(ctx, managerID)
}

func (r lockedSubscriptions) ListExpiredActiveIDs(ctx context.Context, now time.Time) (ids []uint64, err error) {
	err = r.store.withState(func(st *state) error {
		ids, err = (&subscriptions{st: st}).ListExpiredActiveIDs(ctx, now)
		return err
	})
	return ids, err
}

func (r lockedSubscriptions) ListActiveEndingBetween(ctx context.Context, from, to time.Time) (items []*entity.Subscription, err error) {
	err = r.store.withState(func(st *state) error {
		items, err = (&subscriptions{st: st}).ListActiveEndingBetween(ctx, from, to)
		return err
	})
	return items, err
}

type lockedPayments struct{ store *Store }

func (r lockedPayments) Create(ctx context.Context, payment *entity.Payment) error {
	return r.store.withState(func(st *state) error { return (&payments{st: st}).Create(ctx, payment) })
}

func (r lockedPayments) Update(ctx context.Context, payment *entity.Payment) error {
	return r.store.withState(func(st *state) error { return (&payments{st: st}).Update(ctx, payment) })
}

func (r lockedPayments) FindByTransactionID(ctx context.Context, transactionID string) (item *entity.Payment, err error) {
	err = r.store.withState(func(st *state) error {
		item, err = (&payments{st: st}).FindByTransactionID(ctx, transactionID)
		return err
	})
	return item, err
}

func (r lockedPayments) LockByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error) {
	return r.FindByTransactionID(ctx, transactionID)
}

func (r lockedPayments) ListStalePending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) (items []*entity.Payment, err error) {
	err = r.store.withState(func(st *state) error {
		items, err = (&payments{st: st}).ListStalePending(ctx, createdAfter, createdBefore, limit)
		return err
	})
	return items, err
}

type lockedManagers struct{ store *Store }

func (r lockedManagers) FindByID(ctx context.Context, id string) (item *entity.Manager, err error) {
	err = r.store.withState(func(st *state) error {
		item, err = (&managers{st: st}).FindByID(ctx, id)
		return err
	})
	return item, err
}

func (r lockedManagers) UpdateSubscriptionMirror(ctx context.Context, id string, endsAt *time.Time, isActive bool) error {
	return r.store.withState(func(st *state) error {
		return (&managers{st: st}).UpdateSubscriptionMirror(ctx, id, endsAt, isActive)
	})
}

type lockedPlans struct{ store *Store }

func (r lockedPlans) FindByID(ctx context.Context, id uint64) (item *entity.Plan, err error) {
	err = r.store.withState(func(st *state) error {
		item, err = (&plans{st: st}).FindByID(ctx, id)
		return err
	})
	return item, err
}

func (r lockedPlans) ListActive(ctx context.Context) (items []*entity.Plan, err error) {
	err = r.store.withState(func(st *state) error {
		items, err = (&plans{st: st}).ListActive(ctx)
		return err
	})
	return items, err
}
