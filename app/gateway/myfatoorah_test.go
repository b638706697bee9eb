package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestMyFatoorah(baseURL string) *MyFatoorah {
	return &MyFatoorah{
		baseURL:     baseURL,
		apiKey:      "mf-key",
		callbackURL: "https://billing.example.com/webhooks/myfatoorah",
		errorURL:    "https://billing.example.com/webhooks/myfatoorah",
		client:      http.DefaultClient,
		retry:       newRetrier(testRetryConfig()),
		logger:      logrus.New(),
	}
}

func myFatoorahStatusServer(t *testing.T, handler func(req myFatoorahStatusRequest) (int, string)) *httptest.Server {
	t.Helper()
	return myFatoorahServer(t, "/v2/GetPaymentStatus", handler)
}

func myFatoorahServer(t *testing.T, path string, handler func(req myFatoorahStatusRequest) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mf-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != path {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req myFatoorahStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		status, body := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestMyFatoorahVerifyCallbackConfirmsWithProvider(t *testing.T) {
	srv := myFatoorahStatusServer(t, func(req myFatoorahStatusRequest) (int, string) {
		if req.Key != "070601" || req.KeyType != "PaymentId" {
			t.Errorf("unexpected status request: %+v", req)
		}
		return http.StatusOK, `{"IsSuccess": true, "Data": {"InvoiceId": 555, "InvoiceStatus": "Paid", "InvoiceValue": 12.5, "InvoiceTransactions": [{"PaymentId": "070601", "PaidCurrency": "KWD"}]}}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	out, err := g.VerifyCallback(context.Background(), Callback{Query: url.Values{"paymentId": {"070601"}}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.TransactionID != "555" || out.Status != OutcomeSucceeded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Currency != "KWD" || out.AmountCents != 12500 {
		t.Fatalf("unexpected amount: %+v", out)
	}
}

func TestMyFatoorahVerifyCallbackFromWebhookBody(t *testing.T) {
	srv := myFatoorahStatusServer(t, func(req myFatoorahStatusRequest) (int, string) {
		if req.Key != "777" || req.KeyType != "InvoiceId" {
			t.Errorf("unexpected status request: %+v", req)
		}
		return http.StatusOK, `{"IsSuccess": true, "Data": {"InvoiceId": 777, "InvoiceStatus": "Expired"}}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	body := []byte(`{"EventType": 1, "Event": "TransactionsStatusChanged", "Data": {"InvoiceId": 777, "TransactionStatus": "SUCCESS"}}`)
	out, err := g.VerifyCallback(context.Background(), Callback{Body: body, Query: url.Values{}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// The body claimed success; the provider says expired.
	if out.Status != OutcomeFailed {
		t.Fatalf("expected provider status to win, got %+v", out)
	}
}

func TestMyFatoorahVerifyCallbackRejectsUnknownPayment(t *testing.T) {
	srv := myFatoorahStatusServer(t, func(myFatoorahStatusRequest) (int, string) {
		return http.StatusBadRequest, `{"IsSuccess": false, "Message": "Invalid key"}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	_, err := g.VerifyCallback(context.Background(), Callback{Query: url.Values{"paymentId": {"forged"}}})
	if !errors.Is(err, ErrAuthenticity) {
		t.Fatalf("expected ErrAuthenticity, got %v", err)
	}
}

func TestMyFatoorahVerifyCallbackRejectsMissingIdentifier(t *testing.T) {
	g := newTestMyFatoorah("http://127.0.0.1:0")
	_, err := g.VerifyCallback(context.Background(), Callback{Body: []byte(`{"Data": {}}`), Query: url.Values{}})
	if !errors.Is(err, ErrAuthenticity) {
		t.Fatalf("expected ErrAuthenticity, got %v", err)
	}
}

func TestMyFatoorahRefundWebhookConfirmedByRefundStatus(t *testing.T) {
	srv := myFatoorahServer(t, "/v2/GetRefundStatus", func(req myFatoorahStatusRequest) (int, string) {
		if req.Key != "555" || req.KeyType != "InvoiceId" {
			t.Errorf("unexpected refund status request: %+v", req)
		}
		return http.StatusOK, `{"IsSuccess": true, "Data": {"RefundStatusResult": [{"RefundId": 9, "RefundStatus": "Refunded", "InvoiceId": 555, "Amount": 12.5}]}}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	body := []byte(`{"EventType": 2, "Event": "RefundStatusChanged", "Data": {"InvoiceId": 555, "RefundStatus": "REFUNDED"}}`)
	out, err := g.VerifyCallback(context.Background(), Callback{Body: body, Query: url.Values{}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.TransactionID != "555" || out.Status != OutcomeRefunded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestMyFatoorahRefundWebhookStillProcessingIsPending(t *testing.T) {
	srv := myFatoorahServer(t, "/v2/GetRefundStatus", func(myFatoorahStatusRequest) (int, string) {
		return http.StatusOK, `{"IsSuccess": true, "Data": {"RefundStatusResult": [{"RefundId": 9, "RefundStatus": "Pending", "InvoiceId": 555}]}}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	// The body claims completion; only the provider's answer counts.
	body := []byte(`{"EventType": 2, "Data": {"InvoiceId": 555, "RefundStatus": "REFUNDED"}}`)
	out, err := g.VerifyCallback(context.Background(), Callback{Body: body, Query: url.Values{}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Status != OutcomePending || out.IsFinal() {
		t.Fatalf("expected pending outcome, got %+v", out)
	}
}

func TestMyFatoorahRefundWebhookRejectsUnknownInvoice(t *testing.T) {
	srv := myFatoorahServer(t, "/v2/GetRefundStatus", func(myFatoorahStatusRequest) (int, string) {
		return http.StatusBadRequest, `{"IsSuccess": false, "Message": "Invalid key"}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	body := []byte(`{"EventType": 2, "Event": "RefundStatusChanged", "Data": {"InvoiceId": 999}}`)
	if _, err := g.VerifyCallback(context.Background(), Callback{Body: body, Query: url.Values{}}); !errors.Is(err, ErrAuthenticity) {
		t.Fatalf("expected ErrAuthenticity, got %v", err)
	}
}

func TestMyFatoorahRefundWebhookWithoutInvoiceIsRejected(t *testing.T) {
	g := newTestMyFatoorah("http://127.0.0.1:0")
	body := []byte(`{"EventType": 2, "Data": {"PaymentId": "070601"}}`)
	if _, err := g.VerifyCallback(context.Background(), Callback{Body: body, Query: url.Values{}}); !errors.Is(err, ErrAuthenticity) {
		t.Fatalf("expected ErrAuthenticity, got %v", err)
	}
}

func TestMyFatoorahQueryStatusRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := myFatoorahStatusServer(t, func(myFatoorahStatusRequest) (int, string) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return http.StatusBadGateway, `upstream`
		}
		return http.StatusOK, `{"IsSuccess": true, "Data": {"InvoiceId": 9, "InvoiceStatus": "Pending"}}`
	})
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	out, err := g.QueryStatus(context.Background(), "9")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.IsFinal() {
		t.Fatalf("expected pending outcome, got %+v", out)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestMyFatoorahCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/SendPayment" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if raw["InvoiceValue"] != 12.345 {
			t.Errorf("expected numeric invoice value, got %#v", raw["InvoiceValue"])
		}
		if raw["CustomerReference"] != "42" {
			t.Errorf("unexpected reference: %#v", raw["CustomerReference"])
		}
		_, _ = w.Write([]byte(`{"IsSuccess": true, "Data": {"InvoiceId": 1001, "InvoiceURL": "https://demo.myfatoorah.com/pay/1001"}}`))
	}))
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	intent, err := g.CreateIntent(context.Background(), IntentRequest{Reference: "42", ManagerID: "m-1", AmountCents: 12345, Currency: "KWD"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent.TransactionID != "1001" || intent.ClientPayload != "https://demo.myfatoorah.com/pay/1001" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestMyFatoorahCreateIntentIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestMyFatoorah(srv.URL)
	_, err := g.CreateIntent(context.Background(), IntentRequest{Reference: "1", AmountCents: 100, Currency: "USD"})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
