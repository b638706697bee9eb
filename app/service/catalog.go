package service

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"golang.org/x/sync/singleflight"
)

// PlanCatalog serves plans from an expiring LRU. Concurrent misses for the same
// plan share one database read.
type PlanCatalog struct {
	plans repository.PlanStore
	cache *expirable.LRU[uint64, entity.Plan]
	group singleflight.Group
}

func NewPlanCatalog(plans repository.PlanStore, size int, ttl time.Duration) *PlanCatalog {
	if size <= 0 {
		size = 128
	}
	return &PlanCatalog{
		plans: plans,
		cache: expirable.NewLRU[uint64, entity.Plan](size, nil, ttl),
	}
}

// Get returns the plan or ErrPlanNotFound. Inactive plans are returned as-is.
func (c *PlanCatalog) Get(ctx context.Context, id uint64) (*entity.Plan, error) {
	if plan, ok := c.cache.Get(id); ok {
		return &plan, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(id, 10), func() (interface{}, error) {
		plan, err := c.plans.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, ErrPlanNotFound
		}
		c.cache.Add(id, *plan)
		return *plan, nil
	})
	if err != nil {
		return nil, err
	}
	plan := v.(entity.Plan)
	return &plan, nil
}

func (c *PlanCatalog) ListActive(ctx context.Context) ([]*entity.Plan, error) {
	items, err := c.plans.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		c.cache.Add(item.ID, *item)
	}
	return items, nil
}
