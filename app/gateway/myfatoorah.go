package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/config"
)

// MyFatoorah issues invoices. Callbacks carry only a payment or invoice id,
// so every callback is confirmed with GetPaymentStatus, or GetRefundStatus for
// refund events, using the API key.
type MyFatoorah struct {
	baseURL     string
	apiKey      string
	callbackURL string
	errorURL    string
	client      *http.Client
	retry       retrier
	logger      logrus.FieldLogger
}

func NewMyFatoorah(cfg config.MyFatoorahConfig, retryCfg config.RetryConfig) *MyFatoorah {
	return &MyFatoorah{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		errorURL:    cfg.ErrorURL,
		client:      &http.Client{Timeout: retryCfg.RequestTimeout},
		retry:       newRetrier(retryCfg),
		logger:      factory.NewModuleLogger("gateway.myfatoorah"),
	}
}

func (g *MyFatoorah) Provider() Provider {
	return ProviderMyFatoorah
}

type myFatoorahEnvelope struct {
	IsSuccess bool            `json:"IsSuccess"`
	Message   string          `json:"Message"`
	Data      json.RawMessage `json:"Data"`
}

type myFatoorahSendPaymentRequest struct {
	InvoiceValue       jsonAmount `json:"InvoiceValue"`
	CustomerName       string     `json:"CustomerName"`
	CustomerEmail      string     `json:"CustomerEmail,omitempty"`
	NotificationOption string     `json:"NotificationOption"`
	DisplayCurrencyIso string     `json:"DisplayCurrencyIso"`
	CallBackURL        string     `json:"CallBackUrl"`
	ErrorURL           string     `json:"ErrorUrl"`
	CustomerReference  string     `json:"CustomerReference"`
	UserDefinedField   string     `json:"UserDefinedField"`
}

type myFatoorahSendPaymentData struct {
	InvoiceID  int64  `json:"InvoiceId"`
	InvoiceURL string `json:"InvoiceURL"`
}

type myFatoorahStatusRequest struct {
	Key     string `json:"Key"`
	KeyType string `json:"KeyType"`
}

type myFatoorahStatusData struct {
	InvoiceID           int64           `json:"InvoiceId"`
	InvoiceStatus       string          `json:"InvoiceStatus"`
	InvoiceValue        decimal.Decimal `json:"InvoiceValue"`
	CustomerReference   string          `json:"CustomerReference"`
	InvoiceTransactions []struct {
		PaymentID         string `json:"PaymentId"`
		TransactionStatus string `json:"TransactionStatus"`
		PaidCurrency      string `json:"PaidCurrency"`
	} `json:"InvoiceTransactions"`
}

type myFatoorahRefundStatusData struct {
	RefundStatusResult []struct {
		RefundID     int64           `json:"RefundId"`
		RefundStatus string          `json:"RefundStatus"`
		InvoiceID    int64           `json:"InvoiceId"`
		Amount       decimal.Decimal `json:"Amount"`
	} `json:"RefundStatusResult"`
}

// myFatoorahRefundEvent is EventType 2 in webhook v2.
const myFatoorahRefundEvent = 2

type myFatoorahWebhook struct {
	EventType int    `json:"EventType"`
	Event     string `json:"Event"`
	Data      struct {
		InvoiceID json.Number `json:"InvoiceId"`
		PaymentID string      `json:"PaymentId"`
	} `json:"Data"`
}

func (g *MyFatoorah) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := myFatoorahSendPaymentRequest{
		InvoiceValue:       jsonAmount{FromMinorUnits(req.AmountCents, req.Currency)},
		CustomerName:       req.ManagerID,
		CustomerEmail:      req.Email,
		NotificationOption: "LNK",
		DisplayCurrencyIso: strings.ToUpper(req.Currency),
		CallBackURL:        g.callbackURL,
		ErrorURL:           g.errorURL,
		CustomerReference:  req.Reference,
		UserDefinedField:   req.PlanCode,
	}

	start := time.Now()
	var data myFatoorahSendPaymentData
	err := g.call(ctx, "/v2/SendPayment", body, &data)
	observe(ProviderMyFatoorah, "create_intent", start, err)
	if err != nil {
		return nil, unwrapPermanent(err)
	}
	if data.InvoiceID == 0 || data.InvoiceURL == "" {
		return nil, fmt.Errorf("%w: SendPayment returned no invoice", ErrGateway)
	}
	return &Intent{
		TransactionID: strconv.FormatInt(data.InvoiceID, 10),
		ClientPayload: data.InvoiceURL,
	}, nil
}

// VerifyCallback extracts the identifier from a redirect query or webhook body
// and resolves it against the provider. Nothing else in the callback is used.
func (g *MyFatoorah) VerifyCallback(ctx context.Context, cb Callback) (*Outcome, error) {
	key, keyType, refund := myFatoorahCallbackKey(cb)
	if key == "" {
		return nil, fmt.Errorf("%w: callback carries no payment identifier", ErrAuthenticity)
	}

	var (
		out *Outcome
		err error
	)
	if refund {
		out, err = g.refundStatus(ctx, key)
	} else {
		out, err = g.status(ctx, key, keyType)
	}
	if err != nil {
		var statusErr *myFatoorahRejected
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticity, err)
		}
		return nil, err
	}
	return out, nil
}

func (g *MyFatoorah) QueryStatus(ctx context.Context, transactionID string) (*Outcome, error) {
	out, err := g.status(ctx, transactionID, "InvoiceId")
	if err != nil {
		var statusErr *myFatoorahRejected
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return nil, err
	}
	return out, nil
}

// myFatoorahCallbackKey returns the lookup key, its type and whether the
// callback announces a refund. Refunds are only resolvable by invoice id.
func myFatoorahCallbackKey(cb Callback) (string, string, bool) {
	if id := strings.TrimSpace(cb.Query.Get("paymentId")); id != "" {
		return id, "PaymentId", false
	}
	if id := strings.TrimSpace(cb.Query.Get("Id")); id != "" {
		return id, "PaymentId", false
	}
	if len(cb.Body) == 0 {
		return "", "", false
	}
	var hook myFatoorahWebhook
	if err := json.Unmarshal(cb.Body, &hook); err != nil {
		return "", "", false
	}
	refund := hook.EventType == myFatoorahRefundEvent || strings.EqualFold(hook.Event, "RefundStatusChanged")
	if id := hook.Data.InvoiceID.String(); id != "" && id != "0" {
		return id, "InvoiceId", refund
	}
	if refund {
		return "", "", false
	}
	if id := strings.TrimSpace(hook.Data.PaymentID); id != "" {
		return id, "PaymentId", false
	}
	return "", "", false
}

// myFatoorahRejected is a well-formed refusal from the provider, typically an unknown key.
type myFatoorahRejected struct {
	message string
}

func (e *myFatoorahRejected) Error() string {
	return "myfatoorah rejected request: " + e.message
}

func (g *MyFatoorah) status(ctx context.Context, key, keyType string) (*Outcome, error) {
	var data myFatoorahStatusData
	err := g.retry.do(ctx, g.logger, ProviderMyFatoorah, "get_payment_status", func() error {
		return g.call(ctx, "/v2/GetPaymentStatus", myFatoorahStatusRequest{Key: key, KeyType: keyType}, &data)
	})
	if err != nil {
		return nil, err
	}
	if data.InvoiceID == 0 {
		return nil, &myFatoorahRejected{message: "no invoice in status response"}
	}

	currency := ""
	for _, tx := range data.InvoiceTransactions {
		if tx.PaidCurrency != "" {
			currency = strings.ToUpper(tx.PaidCurrency)
		}
	}

	out := &Outcome{
		Provider:      ProviderMyFatoorah,
		TransactionID: strconv.FormatInt(data.InvoiceID, 10),
		Status:        myFatoorahStatus(data.InvoiceStatus),
		Currency:      currency,
	}
	if currency != "" {
		out.AmountCents = ToMinorUnits(data.InvoiceValue, currency)
	}
	return out, nil
}

// refundStatus reports Refunded once any refund on the invoice has completed,
// Pending otherwise.
func (g *MyFatoorah) refundStatus(ctx context.Context, invoiceID string) (*Outcome, error) {
	var data myFatoorahRefundStatusData
	err := g.retry.do(ctx, g.logger, ProviderMyFatoorah, "get_refund_status", func() error {
		return g.call(ctx, "/v2/GetRefundStatus", myFatoorahStatusRequest{Key: invoiceID, KeyType: "InvoiceId"}, &data)
	})
	if err != nil {
		return nil, err
	}
	if len(data.RefundStatusResult) == 0 {
		return nil, &myFatoorahRejected{message: "no refund for invoice " + invoiceID}
	}

	out := &Outcome{
		Provider:      ProviderMyFatoorah,
		TransactionID: invoiceID,
		Status:        OutcomePending,
	}
	for _, item := range data.RefundStatusResult {
		if item.InvoiceID != 0 && strconv.FormatInt(item.InvoiceID, 10) != invoiceID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(item.RefundStatus), "refunded") {
			out.Status = OutcomeRefunded
			break
		}
	}
	return out, nil
}

func myFatoorahStatus(status string) OutcomeStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return OutcomeSucceeded
	case "canceled", "cancelled", "expired", "failed":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

func (g *MyFatoorah) call(ctx context.Context, path string, body, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.apiKey)

	var envelope myFatoorahEnvelope
	if err := doJSON(ctx, g.client, http.MethodPost, g.baseURL+path, header, body, &envelope); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return backoff.Permanent(&myFatoorahRejected{message: permanent.Err.Error()})
		}
		return err
	}
	if !envelope.IsSuccess {
		return backoff.Permanent(&myFatoorahRejected{message: envelope.Message})
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: decode %s data: %v", ErrGateway, path, err))
	}
	return nil
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if errors.Is(err, ErrGateway) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}
