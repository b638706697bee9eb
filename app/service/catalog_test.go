package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type countingPlans struct {
	calls   atomic.Int32
	release chan struct{}
	plans   map[uint64]entity.Plan
}

func (c *countingPlans) FindByID(_ context.Context, id uint64) (*entity.Plan, error) {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	plan, ok := c.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

func (c *countingPlans) ListActive(context.Context) ([]*entity.Plan, error) {
	items := make([]*entity.Plan, 0, len(c.plans))
	for _, p := range c.plans {
		cp := p
		items = append(items, &cp)
	}
	return items, nil
}

func TestPlanCatalogCachesPlans(t *testing.T) {
	plans := &countingPlans{plans: map[uint64]entity.Plan{1: {ID: 1, Code: "team", MaxEmployees: 30}}}
	catalog := NewPlanCatalog(plans, 4, time.Minute)

	first, err := catalog.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	first.MaxEmployees = 999

	second, err := catalog.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second.MaxEmployees != 30 {
		t.Fatal("cached plan must not be shared with callers")
	}
	if plans.calls.Load() != 1 {
		t.Fatalf("expected one store read, got %d", plans.calls.Load())
	}
}

func TestPlanCatalogRereadsAfterTTL(t *testing.T) {
	plans := &countingPlans{plans: map[uint64]entity.Plan{1: {ID: 1, Code: "team"}}}
	catalog := NewPlanCatalog(plans, 4, 20*time.Millisecond)

	if _, err := catalog.Get(context.Background(), 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := catalog.Get(context.Background(), 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if plans.calls.Load() != 2 {
		t.Fatalf("expected re-read after expiry, got %d", plans.calls.Load())
	}
}

func TestPlanCatalogNotFound(t *testing.T) {
	catalog := NewPlanCatalog(&countingPlans{plans: map[uint64]entity.Plan{}}, 4, time.Minute)
	if _, err := catalog.Get(context.Background(), 9); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestPlanCatalogListActiveWarmsCache(t *testing.T) {
	plans := &countingPlans{plans: map[uint64]entity.Plan{1: {ID: 1}, 2: {ID: 2}}}
	catalog := NewPlanCatalog(plans, 4, time.Minute)

	items, err := catalog.ListActive(context.Background())
	if err != nil || len(items) != 2 {
		t.Fatalf("unexpected list result: %v %v", items, err)
	}
	if _, err := catalog.Get(context.Background(), 2); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if plans.calls.Load() != 0 {
		t.Fatalf("expected cache hit after list, got %d reads", plans.calls.Load())
	}
}

func TestPlanCatalogCollapsesConcurrentMisses(t *testing.T) {
	plans := &countingPlans{
		release: make(chan struct{}),
		plans:   map[uint64]entity.Plan{1: {ID: 1}},
	}
	catalog := NewPlanCatalog(plans, 4, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := catalog.Get(context.Background(), 1); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		}()
	}
	// Let the in-flight read finish once the callers have piled up.
	time.Sleep(50 * time.Millisecond)
	close(plans.release)
	wg.Wait()

	if plans.calls.Load() != 1 {
		t.Fatalf("expected one store read, got %d", plans.calls.Load())
	}
}
