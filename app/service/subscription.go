package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

type createSubscriptionRequest interface {
	GetManagerId() string
	GetPlanId() uint64
	GetGateway() string
	GetEmail() string
	GetAutoRenew() bool
}

type renewSubscriptionRequest interface {
	GetManagerId() string
	GetGateway() string
	GetEmail() string
}

type CheckoutResult struct {
	Subscription *entity.Subscription
	Payment      *entity.Payment
	PaymentURL   string
}

type SubscriptionService struct {
	store    transactor
	catalog  planCatalog
	gateways gatewayRegistry
	logger   logrus.FieldLogger
	now      clock
}

func NewSubscriptionService(store transactor, catalog planCatalog, gateways gatewayRegistry) *SubscriptionService {
	return &SubscriptionService{
		store:    store,
		catalog:  catalog,
		gateways: gateways,
		logger:   factory.NewModuleLogger("subscription"),
		now:      utcNow,
	}
}

func (s *SubscriptionService) ListPlans(ctx context.Context) ([]*entity.Plan, error) {
	return s.catalog.ListActive(ctx)
}

// CreateSubscription records a Pending subscription for the manager, or reuses
// an inactive one, and opens a payment intent for the plan. Access is granted
// only once the payment is reconciled.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req createSubscriptionRequest) (*CheckoutResult, error) {
	managerID := strings.TrimSpace(req.GetManagerId())
	if managerID == "" {
		return nil, fmt.Errorf("%w: manager_id is required", ErrInvalidRequest)
	}
	gw, err := s.gateways.Lookup(req.GetGateway())
	if err != nil {
		return nil, err
	}
	plan, err := s.activePlan(ctx, req.GetPlanId())
	if err != nil {
		return nil, err
	}

	var subscription *entity.Subscription
	err = s.store.Transact(ctx, func(ctx context.Context, st repository.Stores) error {
		manager, err := st.Managers.FindByID(ctx, managerID)
		if err != nil {
			return err
		}
		if manager == nil {
			return ErrManagerNotFound
		}

		now := s.now()
		existing, err := st.Subscriptions.LockByManagerID(ctx, managerID)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsCurrent(now) {
			return ErrActiveSubscriptionExists
		}

		if existing == nil {
			subscription = &entity.Subscription{
				ManagerID: managerID,
				CreatedAt: now,
			}
		} else {
			subscription = existing
		}
		wasActive := subscription.IsActive
		previousEnd := subscription.EndAt
		subscription.PlanID = plan.ID
		subscription.AutoRenew = req.GetAutoRenew()
		subscription.Status = entity.SubscriptionStatusPending
		subscription.IsActive = false
		subscription.StartAt = now
		subscription.EndAt = now.Add(plan.Period())
		subscription.UpdatedAt = now

		if existing == nil {
			if err := st.Subscriptions.Create(ctx, subscription); err != nil {
				if errors.Is(err, repository.ErrSubscriptionAlreadyExists) {
					return ErrActiveSubscriptionExists
				}
				return err
			}
			return nil
		}

		if err := st.Subscriptions.Update(ctx, subscription); err != nil {
			return err
		}
		if wasActive {
			// A lapsed row the sweep has not reached yet.
			return st.Managers.UpdateSubscriptionMirror(ctx, managerID, &previousEnd, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.checkout(ctx, gw, subscription, plan, req.GetEmail())
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RenewSubscription opens a payment intent for the current plan without
// touching the subscription; the reconciler extends it when the payment lands.
func (s *SubscriptionService) RenewSubscription(ctx context.Context, req renewSubscriptionRequest) (*CheckoutResult, error) {
	gw, err := s.gateways.Lookup(req.GetGateway())
	if err != nil {
		return nil, err
	}
	subscription, err := s.GetSubscription(ctx, req.GetManagerId())
	if err != nil {
		return nil, err
	}
	if subscription.Status == entity.SubscriptionStatusCancelled {
		return nil, ErrSubscriptionCancelled
	}
	plan, err := s.activePlan(ctx, subscription.PlanID)
	if err != nil {
		return nil, err
	}

	return s.checkout(ctx, gw, subscription, plan, req.GetEmail())
}

// CancelSubscription revokes access immediately. Cancelled and Expired
// subscriptions are returned unchanged.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, managerID string) (*entity.Subscription, error) {
	managerID = strings.TrimSpace(managerID)
	var subscription *entity.Subscription
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		subscription, err = st.Subscriptions.LockByManagerID(ctx, managerID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return ErrSubscriptionNotFound
		}
		if subscription.Status == entity.SubscriptionStatusCancelled || subscription.Status == entity.SubscriptionStatusExpired {
			return nil
		}

		now := s.now()
		subscription.Status = entity.SubscriptionStatusCancelled
		subscription.IsActive = false
		subscription.AutoRenew = false
		if subscription.EndAt.After(now) {
			subscription.EndAt = now
		}
		subscription.UpdatedAt = now
		if err := st.Subscriptions.Update(ctx, subscription); err != nil {
			return err
		}
		return st.Managers.UpdateSubscriptionMirror(ctx, managerID, &subscription.EndAt, false)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("manager_id", managerID).Info("subscription_cancelled")
	return subscription, nil
}

func (s *SubscriptionService) GetSubscription(ctx context.Context, managerID string) (*entity.Subscription, error) {
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return nil, fmt.Errorf("%w: manager_id is required", ErrInvalidRequest)
	}
	subscription, err := s.store.Stores().Subscriptions.FindByManagerID(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *SubscriptionService) activePlan(ctx context.Context, planID uint64) (*entity.Plan, error) {
	if planID == 0 {
		return nil, fmt.Errorf("%w: plan_id is required", ErrInvalidRequest)
	}
	plan, err := s.catalog.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// checkout creates the provider intent outside any transaction and records
// the Pending payment that the reconciler will later settle.
func (s *SubscriptionService) checkout(ctx context.Context, gw gateway.Gateway, subscription *entity.Subscription, plan *entity.Plan, email string) (*CheckoutResult, error) {
	intent, err := gw.CreateIntent(ctx, gateway.IntentRequest{
		Reference:   strconv.FormatUint(subscription.ID, 10),
		ManagerID:   subscription.ManagerID,
		Email:       strings.TrimSpace(email),
		PlanCode:    plan.Code,
		PlanName:    plan.Name,
		AmountCents: plan.PriceCents,
		Currency:    plan.Currency,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"manager_id": subscription.ManagerID,
			"gateway":    gw.Provider().String(),
		}).Error("payment_intent_failed")
		return nil, err
	}

	now := s.now()
	subscriptionID := subscription.ID
	payment := &entity.Payment{
		SubscriptionID: &subscriptionID,
		AmountCents:    plan.PriceCents,
		Currency:       strings.ToUpper(plan.Currency),
		Status:         entity.PaymentStatusPending,
		TransactionID:  intent.TransactionID,
		Gateway:        gw.Provider().String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Stores().Payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"manager_id":     subscription.ManagerID,
		"transaction_id": payment.TransactionID,
		"gateway":        payment.Gateway,
	}).Info("payment_intent_created")

	return &CheckoutResult{
		Subscription: subscription,
		Payment:      payment,
		PaymentURL:   intent.ClientPayload,
	}, nil
}
