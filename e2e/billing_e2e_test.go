//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/dto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultHTTPBase = "http://localhost:38080"
	defaultGRPCAddr = "localhost:39090"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	return c.doJSONWithAPIKey(t, method, path, body, billingCallerAPIKey())
}

func (c *httpClient) doJSONWithAPIKey(t *testing.T, method, path string, body any, apiKey string) (*http.Response, []byte) {
	t.Helper()

	reqBody := bytes.NewReader(nil)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, string(body))
	}
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func dialBillingGRPC(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial failed: %v", err)
	}
	return conn
}

func grpcContextWithAPIKey(apiKey string) context.Context {
	if apiKey == "" {
		return context.Background()
	}
	return metadata.AppendToOutgoingContext(context.Background(), "x-api-key", apiKey)
}

func TestBillingE2E(t *testing.T) {
	httpBase := os.Getenv("BILLING_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultHTTPBase
	}
	grpcAddr := os.Getenv("BILLING_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = defaultGRPCAddr
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	client := newHTTPClient(httpBase)

	t.Run("HealthIsPublic", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodGet, "/health", nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
		}
		var health dto.HealthResponse
		decode(t, body, &health)
		if health.Status != "ok" {
			t.Fatalf("unexpected health status %q", health.Status)
		}
	})

	t.Run("InternalAuth", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodGet, "/plans", nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 without api key, got %d: %s", resp.StatusCode, string(body))
		}
		resp, body = client.doJSONWithAPIKey(t, http.MethodGet, "/plans", nil, billingNoAccessAPIKey())
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for caller without access, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("ListPlans", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/plans", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
		}
		var plans dto.ListPlansResponse
		decode(t, body, &plans)
		found := false
		for _, plan := range plans.Plans {
			if plan.Code == "team" {
				found = true
				if plan.PriceCents <= 0 || plan.PeriodDays <= 0 {
					t.Fatalf("unexpected team plan: %+v", plan)
				}
			}
		}
		if !found {
			t.Fatalf("seeded team plan missing from %s", string(body))
		}
	})

	t.Run("EmployeeLimitWithoutSubscription", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/managers/e2e-unknown-manager/employee-limit?requested=1", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
		}
		var decision dto.EmployeeLimitResponse
		decode(t, body, &decision)
		if decision.Allowed || decision.Reason != "no_active_subscription" {
			t.Fatalf("unexpected decision: %+v", decision)
		}
	})

	t.Run("EmployeeLimitRejectsBadRequested", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/managers/e2e-unknown-manager/employee-limit?requested=0", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("GetSubscriptionUnknownManager", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/subscriptions/managers/e2e-unknown-manager", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("CreateSubscriptionUnknownManager", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/subscriptions", map[string]any{
			"manager_id": "e2e-unknown-manager",
			"plan_id":    2,
			"gateway":    "stripe",
			"email":      "owner@example.com",
		})
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "not enabled") {
			t.Skip("stripe gateway is not enabled in this environment")
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("CreateSubscriptionValidation", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/subscriptions", map[string]any{
			"manager_id": "e2e-manager",
			"plan_id":    2,
			"gateway":    "cash",
			"email":      "owner@example.com",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("SyncUnknownPayment", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/e2e-missing-transaction/sync", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("UnsignedStripeWebhook", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodPost, "/webhooks/stripe", map[string]any{
			"type": "checkout.session.completed",
		}, "")
		if resp.StatusCode == http.StatusNotFound {
			t.Skip("stripe gateway is not enabled in this environment")
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("GRPCHealth", func(t *testing.T) {
		conn := dialBillingGRPC(t, grpcAddr)
		defer conn.Close()
		healthClient := healthpb.NewHealthClient(conn)

		ctx, cancel := context.WithTimeout(grpcContextWithAPIKey(""), 5*time.Second)
		defer cancel()
		_, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{})
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected unauthenticated without api key, got %v", err)
		}

		ctx, cancel = context.WithTimeout(grpcContextWithAPIKey(billingCallerAPIKey()), 5*time.Second)
		defer cancel()
		resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: "billing-service"})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("expected SERVING, got %s", resp.GetStatus())
		}
	})
}
