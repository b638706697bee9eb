// Package gateway adapts the payment providers to a single contract: create a
// payment intent, authenticate a provider callback, and query a transaction.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrAuthenticity is returned when a callback cannot be proven to come from the provider.
	ErrAuthenticity = errors.New("callback authenticity check failed")
	// ErrGateway wraps provider transport and protocol failures.
	ErrGateway           = errors.New("payment gateway error")
	ErrGatewayNotEnabled = errors.New("payment gateway not enabled")
	ErrUnknownProvider   = errors.New("unknown payment provider")
)

type Provider string

const (
	ProviderStripe     Provider = "stripe"
	ProviderMyFatoorah Provider = "myfatoorah"
	ProviderPayTabs    Provider = "paytabs"
)

var providers = []Provider{ProviderStripe, ProviderMyFatoorah, ProviderPayTabs}

func ParseProvider(value string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, value)
}

func (p Provider) String() string {
	return string(p)
}

type IntentRequest struct {
	// Reference identifies the subscription the payment is for.
	Reference   string
	ManagerID   string
	Email       string
	PlanCode    string
	PlanName    string
	AmountCents int64
	Currency    string
}

type Intent struct {
	TransactionID string
	// ClientPayload is what the caller hands to the payer, a hosted page URL for all current providers.
	ClientPayload string
}

// Callback is the raw inbound provider request.
type Callback struct {
	Body   []byte
	Query  url.Values
	Header http.Header
}

type OutcomeStatus int

const (
	OutcomePending OutcomeStatus = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeRefunded
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeRefunded:
		return "refunded"
	default:
		return "pending"
	}
}

// Outcome is a provider-verified payment result.
type Outcome struct {
	Provider      Provider
	TransactionID string
	Status        OutcomeStatus
	AmountCents   int64
	Currency      string
}

func (o *Outcome) IsFinal() bool {
	return o.Status != OutcomePending
}

type Gateway interface {
	Provider() Provider
	// CreateIntent is never retried: a retry could open a second charge.
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	VerifyCallback(ctx context.Context, cb Callback) (*Outcome, error)
	QueryStatus(ctx context.Context, transactionID string) (*Outcome, error)
}

// Registry holds the gateways enabled at startup.
type Registry struct {
	gateways map[Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Provider]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}
	return r
}

func (r *Registry) Get(p Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotEnabled, p)
	}
	return g, nil
}

// Lookup parses name and returns the matching enabled gateway.
func (r *Registry) Lookup(name string) (Gateway, error) {
	p, err := ParseProvider(name)
	if err != nil {
		return nil, err
	}
	return r.Get(p)
}

func (r *Registry) Enabled() []Provider {
	out := make([]Provider, 0, len(r.gateways))
	for _, p := range providers {
		if _, ok := r.gateways[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
