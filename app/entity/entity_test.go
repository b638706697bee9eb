package entity

import (
	"testing"
	"time"
)

func TestPaymentTransitions(t *testing.T) {
	cases := []struct {
		from, to int32
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusCompleted, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusRefunded, false},
		{PaymentStatusCompleted, PaymentStatusRefunded, true},
		{PaymentStatusCompleted, PaymentStatusPending, false},
		{PaymentStatusCompleted, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusCompleted, false},
		{PaymentStatusRefunded, PaymentStatusCompleted, false},
	}
	for _, tc := range cases {
		p := &Payment{Status: tc.from}
		if got := p.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", PaymentStatusName(tc.from), PaymentStatusName(tc.to), tc.want, got)
		}
	}
}

func TestSubscriptionIsCurrent(t *testing.T) {
	now := time.Now().UTC()
	s := &Subscription{Status: SubscriptionStatusActive, IsActive: true, EndAt: now.Add(time.Hour)}
	if !s.IsCurrent(now) {
		t.Fatal("expected current subscription")
	}
	s.EndAt = now
	if s.IsCurrent(now) {
		t.Fatal("subscription ending now must not be current")
	}
	if !s.IsLapsed(now) {
		t.Fatal("expected lapsed subscription")
	}
}

func TestPlanPeriod(t *testing.T) {
	p := &Plan{PeriodDays: 30}
	if p.Period() != 720*time.Hour {
		t.Fatalf("unexpected period: %v", p.Period())
	}
}
