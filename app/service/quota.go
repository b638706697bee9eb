package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vibast-solutions/ms-go-billing/app/metrics"
)

type QuotaDecision struct {
	Allowed      bool
	Current      int
	Requested    int
	MaxEmployees int
	// Reason is set when Allowed is false.
	Reason string
}

const (
	QuotaReasonNoSubscription = "no_active_subscription"
	QuotaReasonLimitExceeded  = "limit_exceeded"
)

// QuotaEnforcer answers whether a manager may add employees. It never writes.
type QuotaEnforcer struct {
	store     transactor
	catalog   planCatalog
	employees employeeCounter
	now       clock
}

func NewQuotaEnforcer(store transactor, catalog planCatalog, employees employeeCounter) *QuotaEnforcer {
	return &QuotaEnforcer{
		store:     store,
		catalog:   catalog,
		employees: employees,
		now:       utcNow,
	}
}

func (q *QuotaEnforcer) CheckEmployeeLimit(ctx context.Context, managerID string, requested int) (bool, error) {
	decision, err := q.Evaluate(ctx, managerID, requested)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

func (q *QuotaEnforcer) Evaluate(ctx context.Context, managerID string, requested int) (*QuotaDecision, error) {
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return nil, fmt.Errorf("%w: manager id is required", ErrValidation)
	}
	if requested <= 0 {
		return nil, fmt.Errorf("%w: requested must be positive", ErrValidation)
	}

	decision := &QuotaDecision{Requested: requested}
	subscription, err := q.store.Stores().Subscriptions.FindByManagerID(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if subscription == nil || !subscription.IsCurrent(q.now()) {
		decision.Reason = QuotaReasonNoSubscription
		metrics.QuotaChecks.WithLabelValues("false").Inc()
		return decision, nil
	}

	plan, err := q.catalog.Get(ctx, subscription.PlanID)
	if err != nil {
		return nil, err
	}
	current, err := q.employees.ActiveEmployeeCount(ctx, managerID)
	if err != nil {
		return nil, err
	}

	decision.Current = current
	decision.MaxEmployees = int(plan.MaxEmployees)
	decision.Allowed = current+requested <= decision.MaxEmployees
	if !decision.Allowed {
		decision.Reason = QuotaReasonLimitExceeded
	}
	metrics.QuotaChecks.WithLabelValues(strconv.FormatBool(decision.Allowed)).Inc()
	return decision, nil
}
