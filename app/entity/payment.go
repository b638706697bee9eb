package entity

import "time"

const (
	PaymentStatusPending   int32 = 1
	PaymentStatusCompleted int32 = 10
	PaymentStatusFailed    int32 = 20
	PaymentStatusRefunded  int32 = 30
)

type Payment struct {
	ID             uint64
	SubscriptionID *uint64
	AmountCents    int64
	Currency       string
	Status         int32
	TransactionID  string
	Gateway        string
	PaidAt         *time.Time
	RefundedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransitionTo enforces Pending->{Completed,Failed} and Completed->Refunded.
func (p *Payment) CanTransitionTo(status int32) bool {
	switch p.Status {
	case PaymentStatusPending:
		return status == PaymentStatusCompleted || status == PaymentStatusFailed
	case PaymentStatusCompleted:
		return status == PaymentStatusRefunded
	default:
		return false
	}
}

func PaymentStatusName(status int32) string {
	switch status {
	case PaymentStatusPending:
		return "pending"
	case PaymentStatusCompleted:
		return "completed"
	case PaymentStatusFailed:
		return "failed"
	case PaymentStatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}
