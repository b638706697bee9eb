package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/collaborator"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/repository/memstore"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const (
	testManagerID = "m-1"
	testPlanID    = uint64(1)
	inactivePlan  = uint64(2)
	testPeriod    = 30 * 24 * time.Hour
)

func fixedClock(t time.Time) clock {
	return func() time.Time { return t }
}

type mockGateway struct {
	provider       gateway.Provider
	createIntentFn func(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
	verifyFn       func(ctx context.Context, cb gateway.Callback) (*gateway.Outcome, error)
	queryFn        func(ctx context.Context, transactionID string) (*gateway.Outcome, error)

	mu          sync.Mutex
	createCalls int
}

func (m *mockGateway) Provider() gateway.Provider {
	return m.provider
}

func (m *mockGateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	m.mu.Lock()
	m.createCalls++
	n := m.createCalls
	m.mu.Unlock()
	if m.createIntentFn != nil {
		return m.createIntentFn(ctx, req)
	}
	return &gateway.Intent{
		TransactionID: fmt.Sprintf("tx-%s-%d", req.Reference, n),
		ClientPayload: "https://pay.example.com/" + req.Reference,
	}, nil
}

func (m *mockGateway) VerifyCallback(ctx context.Context, cb gateway.Callback) (*gateway.Outcome, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, cb)
	}
	return nil, gateway.ErrAuthenticity
}

func (m *mockGateway) QueryStatus(ctx context.Context, transactionID string) (*gateway.Outcome, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, transactionID)
	}
	return &gateway.Outcome{Provider: m.provider, TransactionID: transactionID, Status: gateway.OutcomePending}, nil
}

func (m *mockGateway) intentCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

type mockNotifier struct {
	mu       sync.Mutex
	notifyFn func(ctx context.Context, n collaborator.Notification) error
	sent     []collaborator.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n collaborator.Notification) error {
	if m.notifyFn != nil {
		if err := m.notifyFn(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

type mockEmployeeCounter struct {
	countFn func(ctx context.Context, managerID string) (int, error)
	calls   int
}

func (m *mockEmployeeCounter) ActiveEmployeeCount(ctx context.Context, managerID string) (int, error) {
	m.calls++
	if m.countFn != nil {
		return m.countFn(ctx, managerID)
	}
	return 0, nil
}

type mockLocker struct {
	acquired bool
	err      error
	released int
}

func (m *mockLocker) TryAcquire(context.Context, string) (func(context.Context) error, bool, error) {
	if m.err != nil || !m.acquired {
		return nil, false, m.err
	}
	return func(context.Context) error {
		m.released++
		return nil
	}, true, nil
}

type createReq struct {
	managerID string
	planID    uint64
	gateway   string
	email     string
	autoRenew bool
}

func (r createReq) GetManagerId() string { return r.managerID }
func (r createReq) GetPlanId() uint64    { return r.planID }
func (r createReq) GetGateway() string   { return r.gateway }
func (r createReq) GetEmail() string     { return r.email }
func (r createReq) GetAutoRenew() bool   { return r.autoRenew }

type fixture struct {
	store      *memstore.Store
	catalog    *PlanCatalog
	gw         *mockGateway
	registry   *gateway.Registry
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutPlan(entity.Plan{ID: testPlanID, Code: "team", Name: "Team", PriceCents: 2500, Currency: "USD", PeriodDays: 30, MaxEmployees: 30, IsActive: true})
	store.PutPlan(entity.Plan{ID: inactivePlan, Code: "legacy", Name: "Legacy", PriceCents: 1000, Currency: "USD", PeriodDays: 30, MaxEmployees: 5, IsActive: false})
	store.PutManager(entity.Manager{ID: testManagerID, Email: "boss@example.com", IsActive: false})

	gw := &mockGateway{provider: gateway.ProviderStripe}
	registry := gateway.NewRegistry(gw)
	catalog := NewPlanCatalog(store.Stores().Plans, 16, time.Minute)
	reconciler := NewReconciler(store, registry)
	reconciler.now = fixedClock(testNow)

	return &fixture{store: store, catalog: catalog, gw: gw, registry: registry, reconciler: reconciler}
}

func (f *fixture) subscriptionService() *SubscriptionService {
	svc := NewSubscriptionService(f.store, f.catalog, f.registry)
	svc.now = fixedClock(testNow)
	return svc
}

// seedPending stores a subscription in the given state plus a Pending payment for it.
func (f *fixture) seedPending(t *testing.T, subscription entity.Subscription, transactionID string) uint64 {
	t.Helper()
	if subscription.ManagerID == "" {
		subscription.ManagerID = testManagerID
	}
	if subscription.PlanID == 0 {
		subscription.PlanID = testPlanID
	}
	id := f.store.PutSubscription(subscription)
	f.store.PutPayment(entity.Payment{
		SubscriptionID: &id,
		AmountCents:    2500,
		Currency:       "USD",
		Status:         entity.PaymentStatusPending,
		TransactionID:  transactionID,
		Gateway:        string(gateway.ProviderStripe),
		CreatedAt:      testNow.Add(-time.Hour),
	})
	return id
}

func succeeded(transactionID string) *gateway.Outcome {
	return &gateway.Outcome{
		Provider:      gateway.ProviderStripe,
		TransactionID: transactionID,
		Status:        gateway.OutcomeSucceeded,
		AmountCents:   2500,
		Currency:      "USD",
	}
}

var errBoom = errors.New("boom")
