package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testStripeSecret = "whsec_test_secret"

func newTestStripe() *Stripe {
	return &Stripe{
		webhookSecret: testStripeSecret,
		successURL:    "https://example.com/ok",
		cancelURL:     "https://example.com/cancel",
		retry:         newRetrier(testRetryConfig()),
		logger:        logrus.New(),
		newSession: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, errors.New("unexpected newSession call")
		},
		getSession: func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, errors.New("unexpected getSession call")
		},
		sessionByIntentRef: func(context.Context, string) (*stripe.CheckoutSession, error) {
			return nil, errors.New("unexpected sessionByIntentRef call")
		},
	}
}

func signedStripeCallback(payload string, secret string) Callback {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	header := http.Header{}
	header.Set(stripeSignatureHeader, signed.Header)
	return Callback{Body: signed.Payload, Header: header}
}

func TestStripeVerifyCallbackCompletedSession(t *testing.T) {
	g := newTestStripe()
	cb := signedStripeCallback(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "object": "checkout.session", "payment_status": "paid", "amount_total": 2500, "currency": "usd"}}
	}`, testStripeSecret)

	out, err := g.VerifyCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.TransactionID != "cs_test_1" || out.Status != OutcomeSucceeded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.AmountCents != 2500 || out.Currency != "USD" {
		t.Fatalf("unexpected amount: %+v", out)
	}
}

func TestStripeVerifyCallbackUnpaidSessionIsPending(t *testing.T) {
	g := newTestStripe()
	cb := signedStripeCallback(`{
		"id": "evt_2",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_2", "object": "checkout.session", "payment_status": "unpaid"}}
	}`, testStripeSecret)

	out, err := g.VerifyCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.IsFinal() {
		t.Fatalf("expected pending outcome, got %+v", out)
	}
}

func TestStripeVerifyCallbackExpiredSessionFails(t *testing.T) {
	g := newTestStripe()
	cb := signedStripeCallback(`{
		"id": "evt_3",
		"object": "event",
		"type": "checkout.session.expired",
		"data": {"object": {"id": "cs_test_3", "object": "checkout.session", "payment_status": "unpaid"}}
	}`, testStripeSecret)

	out, err := g.VerifyCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Status != OutcomeFailed || out.TransactionID != "cs_test_3" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestStripeVerifyCallbackRejectsBadSignature(t *testing.T) {
	g := newTestStripe()
	cb := signedStripeCallback(`{"id": "evt_4", "object": "event", "type": "checkout.session.completed", "data": {"object": {}}}`, "whsec_other")

	_, err := g.VerifyCallback(context.Background(), cb)
	if !errors.Is(err, ErrAuthenticity) {
		t.Fatalf("expected ErrAuthenticity, got %v", err)
	}
}

func TestStripeVerifyCallbackRejectsMissingSignature(t *testing.T) {
	g := newTestStripe()
	_, err := g.VerifyCallback(context.Background(), Callback{Body: []byte(`{}`), Header: http.Header{}})
	if !errors.Is(err, ErrAuthenticity) {
		t.Fatalf("expected ErrAuthenticity, got %v", err)
	}
}

func TestStripeVerifyCallbackResolvesRefundToSession(t *testing.T) {
	g := newTestStripe()
	g.sessionByIntentRef = func(_ context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
		if paymentIntentID != "pi_1" {
			t.Fatalf("unexpected payment intent: %s", paymentIntentID)
		}
		return &stripe.CheckoutSession{ID: "cs_test_9"}, nil
	}
	cb := signedStripeCallback(`{
		"id": "evt_5",
		"object": "event",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "object": "charge", "payment_intent": "pi_1", "refunded": true, "amount_refunded": 2500, "currency": "usd"}}
	}`, testStripeSecret)

	out, err := g.VerifyCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Status != OutcomeRefunded || out.TransactionID != "cs_test_9" || out.AmountCents != 2500 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestStripeVerifyCallbackIgnoresUnknownEvents(t *testing.T) {
	g := newTestStripe()
	cb := signedStripeCallback(`{"id": "evt_6", "object": "event", "type": "customer.created", "data": {"object": {}}}`, testStripeSecret)

	out, err := g.VerifyCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.IsFinal() || out.TransactionID != "" {
		t.Fatalf("expected non-final outcome without transaction, got %+v", out)
	}
}

func TestStripeQueryStatus(t *testing.T) {
	g := newTestStripe()
	g.getSession = func(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{ID: id, Status: stripe.CheckoutSessionStatusExpired, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}, nil
	}

	out, err := g.QueryStatus(context.Background(), "cs_test_7")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Status != OutcomeFailed || out.TransactionID != "cs_test_7" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestStripeQueryStatusDoesNotRetryClientErrors(t *testing.T) {
	g := newTestStripe()
	calls := 0
	g.getSession = func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		calls++
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such checkout session"}
	}

	_, err := g.QueryStatus(context.Background(), "cs_missing")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestStripeCreateIntent(t *testing.T) {
	g := newTestStripe()
	g.newSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		if *params.ClientReferenceID != "42" {
			t.Fatalf("unexpected reference: %s", *params.ClientReferenceID)
		}
		item := params.LineItems[0]
		if *item.PriceData.UnitAmount != 2500 || *item.PriceData.Currency != "usd" {
			t.Fatalf("unexpected line item: %+v", item.PriceData)
		}
		return &stripe.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.com/c/pay/cs_new"}, nil
	}

	intent, err := g.CreateIntent(context.Background(), IntentRequest{
		Reference:   "42",
		ManagerID:   "m-1",
		PlanName:    "Team",
		AmountCents: 2500,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent.TransactionID != "cs_new" || intent.ClientPayload == "" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}
