package entity

import "time"

type Plan struct {
	ID           uint64
	Code         string
	Name         string
	PriceCents   int64
	Currency     string
	PeriodDays   int32
	MaxEmployees int32
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Period returns the validity extension granted by one paid period.
func (p *Plan) Period() time.Duration {
	return time.Duration(p.PeriodDays) * 24 * time.Hour
}
