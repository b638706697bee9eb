package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

func newQuota(f *fixture, counter *mockEmployeeCounter) *QuotaEnforcer {
	q := NewQuotaEnforcer(f.store, f.catalog, counter)
	q.now = fixedClock(testNow)
	return q
}

func activeSubscription(f *fixture, end time.Time) {
	f.store.PutSubscription(entity.Subscription{
		ManagerID: testManagerID, PlanID: testPlanID, Status: entity.SubscriptionStatusActive, IsActive: true,
		StartAt: testNow.Add(-24 * time.Hour), EndAt: end,
	})
}

func TestCheckEmployeeLimitWithinPlan(t *testing.T) {
	f := newFixture(t)
	activeSubscription(f, testNow.Add(testPeriod))
	counter := &mockEmployeeCounter{countFn: func(context.Context, string) (int, error) { return 29, nil }}
	q := newQuota(f, counter)

	allowed, err := q.CheckEmployeeLimit(context.Background(), testManagerID, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !allowed {
		t.Fatal("expected 29+1 to fit a 30 seat plan")
	}

	allowed, err = q.CheckEmployeeLimit(context.Background(), testManagerID, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if allowed {
		t.Fatal("expected 29+2 to exceed a 30 seat plan")
	}
}

func TestEvaluateReportsLimit(t *testing.T) {
	f := newFixture(t)
	activeSubscription(f, testNow.Add(testPeriod))
	q := newQuota(f, &mockEmployeeCounter{countFn: func(context.Context, string) (int, error) { return 30, nil }})

	decision, err := q.Evaluate(context.Background(), testManagerID, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if decision.Allowed || decision.Reason != QuotaReasonLimitExceeded || decision.Current != 30 || decision.MaxEmployees != 30 {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestCheckEmployeeLimitWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	counter := &mockEmployeeCounter{}
	q := newQuota(f, counter)

	decision, err := q.Evaluate(context.Background(), testManagerID, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if decision.Allowed || decision.Reason != QuotaReasonNoSubscription {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if counter.calls != 0 {
		t.Fatal("employee count must not be fetched without a subscription")
	}
}

func TestCheckEmployeeLimitLapsedSubscription(t *testing.T) {
	f := newFixture(t)
	activeSubscription(f, testNow.Add(-time.Second))
	counter := &mockEmployeeCounter{}

	allowed, err := newQuota(f, counter).CheckEmployeeLimit(context.Background(), testManagerID, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if allowed || counter.calls != 0 {
		t.Fatalf("lapsed subscription must deny without counting, allowed=%v calls=%d", allowed, counter.calls)
	}
}

func TestCheckEmployeeLimitValidation(t *testing.T) {
	f := newFixture(t)
	q := newQuota(f, &mockEmployeeCounter{})

	for _, requested := range []int{0, -1} {
		if _, err := q.CheckEmployeeLimit(context.Background(), testManagerID, requested); !errors.Is(err, ErrValidation) {
			t.Fatalf("requested=%d: expected ErrValidation, got %v", requested, err)
		}
	}
	if _, err := q.CheckEmployeeLimit(context.Background(), " ", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty manager, got %v", err)
	}
}

func TestCheckEmployeeLimitCounterError(t *testing.T) {
	f := newFixture(t)
	activeSubscription(f, testNow.Add(testPeriod))
	q := newQuota(f, &mockEmployeeCounter{countFn: func(context.Context, string) (int, error) { return 0, errBoom }})

	if _, err := q.CheckEmployeeLimit(context.Background(), testManagerID, 1); !errors.Is(err, errBoom) {
		t.Fatalf("expected counter error, got %v", err)
	}
}
