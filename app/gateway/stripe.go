package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/config"
)

const stripeSignatureHeader = "Stripe-Signature"

// Stripe drives card payments through hosted Checkout Sessions. The session
// ID is the transaction identifier.
type Stripe struct {
	webhookSecret string
	successURL    string
	cancelURL     string
	retry         retrier
	logger        logrus.FieldLogger

	newSession         func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession         func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	sessionByIntentRef func(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error)
}

func NewStripe(cfg config.StripeConfig, retryCfg config.RetryConfig) *Stripe {
	stripe.Key = cfg.SecretKey
	return &Stripe{
		webhookSecret:      cfg.WebhookSecret,
		successURL:         cfg.SuccessURL,
		cancelURL:          cfg.CancelURL,
		retry:              newRetrier(retryCfg),
		logger:             factory.NewModuleLogger("gateway.stripe"),
		newSession:         session.New,
		getSession:         session.Get,
		sessionByIntentRef: listSessionByPaymentIntent,
	}
}

func (g *Stripe) Provider() Provider {
	return ProviderStripe
}

func (g *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.PlanName),
					},
				},
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("manager_id", req.ManagerID)
	params.AddMetadata("plan_code", req.PlanCode)

	start := time.Now()
	s, err := g.newSession(params)
	observe(ProviderStripe, "create_intent", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", ErrGateway, err)
	}
	return &Intent{TransactionID: s.ID, ClientPayload: s.URL}, nil
}

func (g *Stripe) VerifyCallback(ctx context.Context, cb Callback) (*Outcome, error) {
	event, err := webhook.ConstructEventWithOptions(cb.Body, cb.Header.Get(stripeSignatureHeader), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: parse checkout session: %v", ErrGateway, err)
		}
		return sessionOutcome(&s), nil
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: parse checkout session: %v", ErrGateway, err)
		}
		out := sessionOutcome(&s)
		out.Status = OutcomeFailed
		return out, nil
	case "charge.refunded":
		return g.refundOutcome(ctx, event.Data.Raw)
	default:
		g.logger.WithField("event_type", event.Type).Debug("stripe_event_ignored")
		return &Outcome{Provider: ProviderStripe, Status: OutcomePending}, nil
	}
}

func (g *Stripe) refundOutcome(ctx context.Context, raw json.RawMessage) (*Outcome, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, fmt.Errorf("%w: parse charge: %v", ErrGateway, err)
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return &Outcome{Provider: ProviderStripe, Status: OutcomePending}, nil
	}
	if !charge.Refunded {
		// Partial refunds keep the payment Completed.
		g.logger.WithField("charge_id", charge.ID).Info("stripe_partial_refund_ignored")
		return &Outcome{Provider: ProviderStripe, Status: OutcomePending}, nil
	}

	var s *stripe.CheckoutSession
	err := g.retry.do(ctx, g.logger, ProviderStripe, "resolve_refund", func() error {
		var err error
		s, err = g.sessionByIntentRef(ctx, charge.PaymentIntent.ID)
		return classifyStripeError(err)
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: no checkout session for payment intent %s", ErrGateway, charge.PaymentIntent.ID)
	}

	return &Outcome{
		Provider:      ProviderStripe,
		TransactionID: s.ID,
		Status:        OutcomeRefunded,
		AmountCents:   charge.AmountRefunded,
		Currency:      strings.ToUpper(string(charge.Currency)),
	}, nil
}

func (g *Stripe) QueryStatus(ctx context.Context, transactionID string) (*Outcome, error) {
	var s *stripe.CheckoutSession
	err := g.retry.do(ctx, g.logger, ProviderStripe, "query_status", func() error {
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		var err error
		s, err = g.getSession(transactionID, params)
		return classifyStripeError(err)
	})
	if err != nil {
		return nil, err
	}

	out := sessionOutcome(s)
	if s.Status == stripe.CheckoutSessionStatusExpired {
		out.Status = OutcomeFailed
	}
	return out, nil
}

func sessionOutcome(s *stripe.CheckoutSession) *Outcome {
	out := &Outcome{
		Provider:      ProviderStripe,
		TransactionID: s.ID,
		Status:        OutcomePending,
		AmountCents:   s.AmountTotal,
		Currency:      strings.ToUpper(string(s.Currency)),
	}
	switch s.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		out.Status = OutcomeSucceeded
	}
	return out
}

func listSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	it := session.List(params)
	if it.Next() {
		return it.CheckoutSession(), nil
	}
	return nil, it.Err()
}

func classifyStripeError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= http.StatusBadRequest &&
		stripeErr.HTTPStatusCode < http.StatusInternalServerError && stripeErr.HTTPStatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrGateway, err))
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}
