package entity

import "time"

// Manager is owned by the identity service; billing only reads it and keeps
// the subscription mirror columns in sync.
type Manager struct {
	ID                 string
	Email              string
	IsActive           bool
	SubscriptionEndsAt *time.Time
}
