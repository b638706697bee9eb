package mapper

import (
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

func TestPlanToDTOFormatsPrice(t *testing.T) {
	usd := PlanToDTO(&entity.Plan{ID: 1, PriceCents: 2500, Currency: "USD"})
	if usd.Price != "25.00" {
		t.Fatalf("expected 25.00, got %s", usd.Price)
	}
	kwd := PlanToDTO(&entity.Plan{ID: 2, PriceCents: 12500, Currency: "KWD"})
	if kwd.Price != "12.500" {
		t.Fatalf("expected 12.500, got %s", kwd.Price)
	}
}

func TestSubscriptionToDTOOmitsZeroTimes(t *testing.T) {
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	item := SubscriptionToDTO(&entity.Subscription{ID: 1, ManagerID: "m-1", Status: entity.SubscriptionStatusActive, EndAt: end})
	if item.StartAt != nil {
		t.Fatalf("expected nil start_at, got %v", *item.StartAt)
	}
	if item.EndAt == nil || *item.EndAt != "2026-04-01T00:00:00Z" {
		t.Fatalf("unexpected end_at: %v", item.EndAt)
	}
	if item.Status != "active" {
		t.Fatalf("expected active status, got %s", item.Status)
	}
}

func TestPaymentToDTO(t *testing.T) {
	paid := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	item := PaymentToDTO(&entity.Payment{ID: 5, Status: entity.PaymentStatusCompleted, TransactionID: "tx", Gateway: "stripe", PaidAt: &paid})
	if item.Status != "completed" || item.PaidAt == nil || item.RefundedAt != nil {
		t.Fatalf("unexpected payment dto: %+v", item)
	}
}
