// Package memstore is an in-memory implementation of the repository stores.
// Transactions are serialised by a single mutex and applied copy-on-commit,
// which gives tests the same atomicity and locking guarantees MySQL row locks
// give the service.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

type state struct {
	plans         map[uint64]entity.Plan
	subscriptions map[uint64]entity.Subscription
	payments      map[uint64]entity.Payment
	managers      map[string]entity.Manager
	nextSubID     uint64
	nextPaymentID uint64
}

func newState() *state {
	return &state{
		plans:         make(map[uint64]entity.Plan),
		subscriptions: make(map[uint64]entity.Subscription),
		payments:      make(map[uint64]entity.Payment),
		managers:      make(map[string]entity.Manager),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.plans {
		cp.plans[k] = v
	}
	for k, v := range s.subscriptions {
		cp.subscriptions[k] = v
	}
	for k, v := range s.payments {
		cp.payments[k] = v
	}
	for k, v := range s.managers {
		cp.managers[k] = v
	}
	cp.nextSubID = s.nextSubID
	cp.nextPaymentID = s.nextPaymentID
	return cp
}

type Store struct {
	mu    sync.Mutex
	state *state
	// Commits counts successful transactions.
	Commits int
}

func New() *Store {
	return &Store{state: newState()}
}

// Transact runs fn against a private copy of the data and publishes it only
// when fn succeeds.
func (s *Store) Transact(ctx context.Context, fn repository.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, storesFor(working)); err != nil {
		return err
	}
	s.state = working
	s.Commits++
	return nil
}

// Stores returns auto-committing repositories; each call locks the store.
// Inside Transact use the stores passed to fn instead.
func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Subscriptions: lockedSubscriptions{store: s},
		Payments:      lockedPayments{store: s},
		Managers:      lockedManagers{store: s},
		Plans:         lockedPlans{store: s},
	}
}

func (s *Store) PutPlan(plan entity.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.plans[plan.ID] = plan
}

func (s *Store) PutManager(manager entity.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.managers[manager.ID] = manager
}

func (s *Store) PutSubscription(subscription entity.Subscription) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subscription.ID == 0 {
		s.state.nextSubID++
		subscription.ID = s.state.nextSubID
	} else if subscription.ID > s.state.nextSubID {
		s.state.nextSubID = subscription.ID
	}
	if subscription.Version == 0 {
		subscription.Version = 1
	}
	s.state.subscriptions[subscription.ID] = subscription
	return subscription.ID
}

func (s *Store) PutPayment(payment entity.Payment) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.ID == 0 {
		s.state.nextPaymentID++
		payment.ID = s.state.nextPaymentID
	} else if payment.ID > s.state.nextPaymentID {
		s.state.nextPaymentID = payment.ID
	}
	s.state.payments[payment.ID] = payment
	return payment.ID
}

func (s *Store) Subscription(id uint64) (entity.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.subscriptions[id]
	return v, ok
}

func (s *Store) Manager(id string) (entity.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.managers[id]
	return v, ok
}

func (s *Store) PaymentByTransaction(transactionID string) (entity.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.state.payments {
		if p.TransactionID == transactionID {
			return p, true
		}
	}
	return entity.Payment{}, false
}

func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.payments)
}

func (s *Store) SubscriptionCount(managerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.state.subscriptions {
		if sub.ManagerID == managerID {
			n++
		}
	}
	return n
}

func (s *Store) withState(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func storesFor(st *state) repository.Stores {
	return repository.Stores{
		Subscriptions: &subscriptions{st: st},
		Payments:      &payments{st: st},
		Managers:      &managers{st: st},
		Plans:         &plans{st: st},
	}
}

type subscriptions struct{ st *state }

func (r *subscriptions) Create(_ context.Context, subscription *entity.Subscription) error {
	for _, existing := range r.st.subscriptions {
		if existing.ManagerID == subscription.ManagerID {
			return repository.ErrSubscriptionAlreadyExists
		}
	}
	r.st.nextSubID++
	subscription.ID = r.st.nextSubID
	subscription.Version = 1
	r.st.subscriptions[subscription.ID] = *subscription
	return nil
}

func (r *subscriptions) Update(_ context.Context, subscription *entity.Subscription) error {
	existing, ok := r.st.subscriptions[subscription.ID]
	if !ok || existing.Version != subscription.Version {
		return repository.ErrSubscriptionVersionConflict
	}
	subscription.Version++
	r.st.subscriptions[subscription.ID] = *subscription
	return nil
}

func (r *subscriptions) FindByID(_ context.Context, id uint64) (*entity.Subscription, error) {
	v, ok := r.st.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *subscriptions) FindByManagerID(_ context.Context, managerID string) (*entity.Subscription, error) {
	for _, v := range r.st.subscriptions {
		if v.ManagerID == managerID {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *subscriptions) LockByID(ctx context.Context, id uint64) (*entity.Subscription, error) {
	return r.FindByID(ctx, id)
}

func (r *subscriptions) LockByManagerID(ctx context.Context, managerID string) (*entity.Subscription, error) {
	return r.FindByManagerID(ctx, managerID)
}

func (r *subscriptions) ListExpiredActiveIDs(_ context.Context, now time.Time) ([]uint64, error) {
	ids := make([]uint64, 0)
	for id, v := range r.st.subscriptions {
		if v.IsActive && !v.EndAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *subscriptions) ListActiveEndingBetween(_ context.Context, from, to time.Time) ([]*entity.Subscription, error) {
	items := make([]*entity.Subscription, 0)
	for _, v := range r.st.subscriptions {
		if v.IsActive && !v.EndAt.Before(from) && v.EndAt.Before(to) {
			cp := v
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

type payments struct{ st *state }

func (r *payments) Create(_ context.Context, payment *entity.Payment) error {
	for _, existing := range r.st.payments {
		if existing.TransactionID == payment.TransactionID {
			return repository.ErrPaymentAlreadyExists
		}
	}
	r.st.nextPaymentID++
	payment.ID = r.st.nextPaymentID
	r.st.payments[payment.ID] = *payment
	return nil
}

func (r *payments) Update(_ context.Context, payment *entity.Payment) error {
	if _, ok := r.st.payments[payment.ID]; !ok {
		return repository.ErrPaymentNotFound
	}
	r.st.payments[payment.ID] = *payment
	return nil
}

func (r *payments) FindByTransactionID(_ context.Context, transactionID string) (*entity.Payment, error) {
	for _, v := range r.st.payments {
		if v.TransactionID == transactionID {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *payments) LockByTransactionID(ctx context.Context, transactionID string) (*entity.Payment, error) {
	return r.FindByTransactionID(ctx, transactionID)
}

func (r *payments) ListStalePending(_ context.Context, createdAfter, createdBefore time.Time, limit int) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, v := range r.st.payments {
		if v.Status == entity.PaymentStatusPending && !v.CreatedAt.Before(createdAfter) && v.CreatedAt.Before(createdBefore) {
			cp := v
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type managers struct{ st *state }

func (r *managers) FindByID(_ context.Context, id string) (*entity.Manager, error) {
	v, ok := r.st.managers[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *managers) UpdateSubscriptionMirror(_ context.Context, id string, endsAt *time.Time, isActive bool) error {
	v, ok := r.st.managers[id]
	if !ok {
		return nil
	}
	v.SubscriptionEndsAt = endsAt
	v.IsActive = isActive
	r.st.managers[id] = v
	return nil
}

type plans struct{ st *state }

func (r *plans) FindByID(_ context.Context, id uint64) (*entity.Plan, error) {
	v, ok := r.st.plans[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *plans) ListActive(_ context.Context) ([]*entity.Plan, error) {
	items := make([]*entity.Plan, 0)
	for _, v := range r.st.plans {
		if v.IsActive {
			cp := v
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].PriceCents < items[j].PriceCents })
	return items, nil
}
