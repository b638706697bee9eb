package entity

import "time"

const (
	SubscriptionStatusPending   int32 = 1
	SubscriptionStatusActive    int32 = 10
	SubscriptionStatusExpired   int32 = 20
	SubscriptionStatusCancelled int32 = 30
)

type Subscription struct {
	ID        uint64
	ManagerID string
	PlanID    uint64
	Status    int32
	IsActive  bool
	AutoRenew bool
	StartAt   time.Time
	EndAt     time.Time
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCurrent reports whether the subscription grants access at the given instant.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.IsActive && s.EndAt.After(now)
}

// IsLapsed reports whether the row is flagged active but its window has already closed.
func (s *Subscription) IsLapsed(now time.Time) bool {
	return s.IsActive && !s.EndAt.After(now)
}
