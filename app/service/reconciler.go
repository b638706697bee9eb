package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

type ReconcileResult int

const (
	// ReconcileApplied means the outcome changed the payment (and possibly the subscription).
	ReconcileApplied ReconcileResult = iota
	// ReconcileDuplicate means the payment already carried this outcome.
	ReconcileDuplicate
	// ReconcileNotFinal means the provider has not settled the payment yet.
	ReconcileNotFinal
)

func (r ReconcileResult) String() string {
	switch r {
	case ReconcileApplied:
		return "applied"
	case ReconcileDuplicate:
		return "duplicate"
	default:
		return "not_final"
	}
}

// Reconciler applies verified gateway outcomes to payments and subscriptions.
// Every outcome is applied in one transaction holding the payment row lock, so
// redelivered or concurrent callbacks for the same transaction apply once.
type Reconciler struct {
	store    transactor
	gateways gatewayRegistry
	logger   logrus.FieldLogger
	now      clock
}

func NewReconciler(store transactor, gateways gatewayRegistry) *Reconciler {
	return &Reconciler{
		store:    store,
		gateways: gateways,
		logger:   factory.NewModuleLogger("reconciler"),
		now:      utcNow,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, outcome *gateway.Outcome) (ReconcileResult, error) {
	result, err := r.reconcile(ctx, outcome)

	label := result.String()
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotFound):
		label = "not_found"
	case errors.Is(err, ErrInvalidPaymentTransition):
		label = "ignored"
	default:
		label = "error"
	}
	metrics.Reconciliations.WithLabelValues(outcome.Provider.String(), outcome.Status.String(), label).Inc()

	entry := r.logger.WithFields(logrus.Fields{
		"provider":       outcome.Provider.String(),
		"transaction_id": outcome.TransactionID,
		"outcome":        outcome.Status.String(),
		"result":         label,
	})
	if err != nil {
		entry.WithError(err).Warn("reconcile_rejected")
	} else {
		entry.Info("reconcile_completed")
	}
	return result, err
}

func (r *Reconciler) reconcile(ctx context.Context, outcome *gateway.Outcome) (ReconcileResult, error) {
	if strings.TrimSpace(outcome.TransactionID) == "" {
		return ReconcileNotFinal, fmt.Errorf("%w: outcome has no transaction id", ErrInvalidRequest)
	}

	var result ReconcileResult
	err := r.store.Transact(ctx, func(ctx context.Context, st repository.Stores) error {
		result = ReconcileApplied

		payment, err := st.Payments.LockByTransactionID(ctx, outcome.TransactionID)
		if err != nil {
			return err
		}
		if payment == nil || payment.Gateway != outcome.Provider.String() {
			return fmt.Errorf("%w: %s/%s", ErrPaymentNotFound, outcome.Provider, outcome.TransactionID)
		}

		desired, final := paymentStatusFor(outcome.Status)
		if !final {
			result = ReconcileNotFinal
			return nil
		}
		if payment.Status == desired {
			result = ReconcileDuplicate
			return nil
		}
		if !payment.CanTransitionTo(desired) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentTransition,
				entity.PaymentStatusName(payment.Status), entity.PaymentStatusName(desired))
		}

		now := r.now()
		payment.Status = desired
		payment.UpdatedAt = now
		switch desired {
		case entity.PaymentStatusCompleted:
			payment.PaidAt = &now
		case entity.PaymentStatusRefunded:
			payment.RefundedAt = &now
		}
		if err := st.Payments.Update(ctx, payment); err != nil {
			return err
		}

		if desired != entity.PaymentStatusCompleted {
			return nil
		}
		r.checkAmount(payment, outcome)
		return r.activate(ctx, st, payment, now)
	})
	if err != nil {
		return ReconcileApplied, err
	}
	return result, nil
}

// activate extends the subscription paid for by payment. It runs under the
// payment lock and takes the subscription lock second.
func (r *Reconciler) activate(ctx context.Context, st repository.Stores, payment *entity.Payment, now time.Time) error {
	if payment.SubscriptionID == nil {
		r.logger.WithField("transaction_id", payment.TransactionID).Warn("payment_without_subscription")
		return nil
	}

	subscription, err := st.Subscriptions.LockByID(ctx, *payment.SubscriptionID)
	if err != nil {
		return err
	}
	if subscription == nil {
		r.logger.WithFields(logrus.Fields{
			"transaction_id":  payment.TransactionID,
			"subscription_id": *payment.SubscriptionID,
		}).Warn("payment_subscription_missing")
		return nil
	}

	// The shared catalog must not be used while row locks are held.
	plan, err := st.Plans.FindByID(ctx, subscription.PlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("%w: %d", ErrPlanNotFound, subscription.PlanID)
	}

	ApplyPayment(subscription, plan.Period(), now)
	if err := st.Subscriptions.Update(ctx, subscription); err != nil {
		return err
	}
	return st.Managers.UpdateSubscriptionMirror(ctx, subscription.ManagerID, &subscription.EndAt, true)
}

// ApplyPayment grants one paid period. A window that has already closed starts
// fresh at now; otherwise the period is appended to the current end.
func ApplyPayment(subscription *entity.Subscription, period time.Duration, now time.Time) {
	if !subscription.EndAt.After(now) {
		subscription.StartAt = now
		subscription.EndAt = now.Add(period)
	} else {
		subscription.EndAt = subscription.EndAt.Add(period)
	}
	subscription.Status = entity.SubscriptionStatusActive
	subscription.IsActive = true
	subscription.UpdatedAt = now
}

func (r *Reconciler) checkAmount(payment *entity.Payment, outcome *gateway.Outcome) {
	if outcome.Currency == "" {
		return
	}
	if outcome.AmountCents == payment.AmountCents && strings.EqualFold(outcome.Currency, payment.Currency) {
		return
	}
	metrics.AmountMismatches.WithLabelValues(outcome.Provider.String()).Inc()
	r.logger.WithFields(logrus.Fields{
		"transaction_id":    payment.TransactionID,
		"expected_amount":   payment.AmountCents,
		"expected_currency": payment.Currency,
		"paid_amount":       outcome.AmountCents,
		"paid_currency":     outcome.Currency,
	}).Warn("payment_amount_mismatch")
}

// ReconcileByQuery asks the provider for the transaction's state and applies
// it. No lock is held during the provider call.
func (r *Reconciler) ReconcileByQuery(ctx context.Context, provider gateway.Provider, transactionID string) (ReconcileResult, *gateway.Outcome, error) {
	gw, err := r.gateways.Get(provider)
	if err != nil {
		return ReconcileNotFinal, nil, err
	}
	outcome, err := gw.QueryStatus(ctx, transactionID)
	if err != nil {
		return ReconcileNotFinal, nil, err
	}
	if outcome.TransactionID == "" {
		outcome.TransactionID = transactionID
	}
	if !outcome.IsFinal() {
		return ReconcileNotFinal, outcome, nil
	}
	result, err := r.Reconcile(ctx, outcome)
	return result, outcome, err
}

// SyncPayment reconciles one stored payment against its provider.
func (r *Reconciler) SyncPayment(ctx context.Context, transactionID string) (ReconcileResult, *entity.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return ReconcileNotFinal, nil, fmt.Errorf("%w: transaction id is required", ErrInvalidRequest)
	}
	payment, err := r.store.Stores().Payments.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return ReconcileNotFinal, nil, err
	}
	if payment == nil {
		return ReconcileNotFinal, nil, ErrPaymentNotFound
	}
	provider, err := gateway.ParseProvider(payment.Gateway)
	if err != nil {
		return ReconcileNotFinal, nil, err
	}

	result, _, err := r.ReconcileByQuery(ctx, provider, transactionID)
	if err != nil {
		return result, nil, err
	}

	updated, err := r.store.Stores().Payments.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return result, nil, err
	}
	return result, updated, nil
}

func paymentStatusFor(status gateway.OutcomeStatus) (int32, bool) {
	switch status {
	case gateway.OutcomeSucceeded:
		return entity.PaymentStatusCompleted, true
	case gateway.OutcomeFailed:
		return entity.PaymentStatusFailed, true
	case gateway.OutcomeRefunded:
		return entity.PaymentStatusRefunded, true
	default:
		return 0, false
	}
}
