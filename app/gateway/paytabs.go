package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/config"
)

const payTabsTokenParam = "token"

// PayTabs serves a hosted payment page. Callbacks must present the shared
// callback token and are then confirmed with payment/query.
type PayTabs struct {
	baseURL       string
	profileID     int64
	serverKey     string
	callbackToken string
	returnURL     string
	callbackURL   string
	client        *http.Client
	retry         retrier
	logger        logrus.FieldLogger
}

func NewPayTabs(cfg config.PayTabsConfig, retryCfg config.RetryConfig) *PayTabs {
	return &PayTabs{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		profileID:     cfg.ProfileID,
		serverKey:     cfg.ServerKey,
		callbackToken: cfg.CallbackToken,
		returnURL:     cfg.ReturnURL,
		callbackURL:   cfg.CallbackURL,
		client:        &http.Client{Timeout: retryCfg.RequestTimeout},
		retry:         newRetrier(retryCfg),
		logger:        factory.NewModuleLogger("gateway.paytabs"),
	}
}

func (g *PayTabs) Provider() Provider {
	return ProviderPayTabs
}

type payTabsCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type payTabsPaymentRequest struct {
	ProfileID       int64           `json:"profile_id"`
	TranType        string          `json:"tran_type"`
	TranClass       string          `json:"tran_class"`
	CartID          string          `json:"cart_id"`
	CartCurrency    string          `json:"cart_currency"`
	CartAmount      jsonAmount      `json:"cart_amount"`
	CartDescription string          `json:"cart_description"`
	Callback        string          `json:"callback"`
	Return          string          `json:"return"`
	Customer        payTabsCustomer `json:"customer_details"`
	HideShipping    bool            `json:"hide_shipping"`
}

type payTabsPaymentResponse struct {
	TranRef     string `json:"tran_ref"`
	RedirectURL string `json:"redirect_url"`
}

type payTabsQueryRequest struct {
	ProfileID int64  `json:"profile_id"`
	TranRef   string `json:"tran_ref"`
}

type payTabsTransaction struct {
	TranRef         string          `json:"tran_ref"`
	PreviousTranRef string          `json:"previous_tran_ref"`
	TranType        string          `json:"tran_type"`
	CartID          string          `json:"cart_id"`
	CartCurrency    string          `json:"cart_currency"`
	CartAmount      decimal.Decimal `json:"cart_amount"`
	PaymentResult   struct {
		ResponseStatus  string `json:"response_status"`
		ResponseCode    string `json:"response_code"`
		ResponseMessage string `json:"response_message"`
	} `json:"payment_result"`
}

func (g *PayTabs) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := payTabsPaymentRequest{
		ProfileID:       g.profileID,
		TranType:        "sale",
		TranClass:       "ecom",
		CartID:          req.Reference,
		CartCurrency:    strings.ToUpper(req.Currency),
		CartAmount:      jsonAmount{FromMinorUnits(req.AmountCents, req.Currency)},
		CartDescription: req.PlanName,
		Callback:        g.signedCallbackURL(),
		Return:          g.returnURL,
		Customer:        payTabsCustomer{Name: req.ManagerID, Email: req.Email},
		HideShipping:    true,
	}

	start := time.Now()
	var resp payTabsPaymentResponse
	err := doJSON(ctx, g.client, http.MethodPost, g.baseURL+"/payment/request", g.authHeader(), body, &resp)
	observe(ProviderPayTabs, "create_intent", start, err)
	if err != nil {
		return nil, unwrapPermanent(err)
	}
	if resp.TranRef == "" || resp.RedirectURL == "" {
		return nil, fmt.Errorf("%w: payment/request returned no transaction", ErrGateway)
	}
	return &Intent{TransactionID: resp.TranRef, ClientPayload: resp.RedirectURL}, nil
}

func (g *PayTabs) VerifyCallback(ctx context.Context, cb Callback) (*Outcome, error) {
	if !g.tokenMatches(cb) {
		return nil, fmt.Errorf("%w: missing or invalid callback token", ErrAuthenticity)
	}

	var posted payTabsTransaction
	if err := json.Unmarshal(cb.Body, &posted); err != nil || posted.TranRef == "" {
		return nil, fmt.Errorf("%w: callback carries no tran_ref", ErrAuthenticity)
	}

	return g.QueryStatus(ctx, posted.TranRef)
}

func (g *PayTabs) QueryStatus(ctx context.Context, transactionID string) (*Outcome, error) {
	var tx payTabsTransaction
	err := g.retry.do(ctx, g.logger, ProviderPayTabs, "query_status", func() error {
		return doJSON(ctx, g.client, http.MethodPost, g.baseURL+"/payment/query", g.authHeader(),
			payTabsQueryRequest{ProfileID: g.profileID, TranRef: transactionID}, &tx)
	})
	if err != nil {
		return nil, err
	}
	if tx.TranRef == "" {
		return nil, fmt.Errorf("%w: payment/query returned no transaction for %s", ErrGateway, transactionID)
	}
	return payTabsOutcome(&tx), nil
}

func payTabsOutcome(tx *payTabsTransaction) *Outcome {
	currency := strings.ToUpper(tx.CartCurrency)
	out := &Outcome{
		Provider:      ProviderPayTabs,
		TransactionID: tx.TranRef,
		Status:        OutcomePending,
		AmountCents:   ToMinorUnits(tx.CartAmount, currency),
		Currency:      currency,
	}

	approved := strings.EqualFold(tx.PaymentResult.ResponseStatus, "A")
	if strings.EqualFold(tx.TranType, "refund") {
		// Refunds are their own transactions; the payment on record is the parent sale.
		if approved && tx.PreviousTranRef != "" {
			out.TransactionID = tx.PreviousTranRef
			out.Status = OutcomeRefunded
		}
		return out
	}

	switch strings.ToUpper(tx.PaymentResult.ResponseStatus) {
	case "A":
		out.Status = OutcomeSucceeded
	case "D", "E", "X", "V":
		out.Status = OutcomeFailed
	}
	return out
}

func (g *PayTabs) tokenMatches(cb Callback) bool {
	if g.callbackToken == "" {
		return false
	}
	presented := ""
	if auth := cb.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if presented == "" {
		presented = cb.Query.Get(payTabsTokenParam)
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.callbackToken)) == 1
}

func (g *PayTabs) signedCallbackURL() string {
	u, err := url.Parse(g.callbackURL)
	if err != nil {
		return g.callbackURL
	}
	q := u.Query()
	q.Set(payTabsTokenParam, g.callbackToken)
	u.RawQuery = q.Encode()
	return u.String()
}

func (g *PayTabs) authHeader() http.Header {
	header := http.Header{}
	header.Set("Authorization", g.serverKey)
	return header
}
