package cmd

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	"github.com/vibast-solutions/ms-go-billing/app/controller"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
)

func setupHTTPServer(
	subscriptionController *controller.SubscriptionController,
	webhookController *controller.WebhookController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: func() string {
			return "billing-" + uuid.NewString()
		},
	}))

	e.GET("/health", subscriptionController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Provider callbacks authenticate per gateway, not with internal credentials.
	webhooks := e.Group("/webhooks")
	webhooks.POST("/stripe", webhookController.Handler(gateway.ProviderStripe))
	webhooks.GET("/myfatoorah", webhookController.Handler(gateway.ProviderMyFatoorah))
	webhooks.POST("/myfatoorah", webhookController.Handler(gateway.ProviderMyFatoorah))
	webhooks.POST("/paytabs", webhookController.Handler(gateway.ProviderPayTabs))

	internal := e.Group("", internalAuthMiddleware.RequireInternalAccess(appServiceName))
	internal.GET("/plans", subscriptionController.ListPlans)

	subscriptions := internal.Group("/subscriptions")
	subscriptions.POST("", subscriptionController.CreateSubscription)
	subscriptions.GET("/managers/:managerId", subscriptionController.GetSubscription)
	subscriptions.POST("/managers/:managerId/renew", subscriptionController.RenewSubscription)
	subscriptions.POST("/managers/:managerId/cancel", subscriptionController.CancelSubscription)

	internal.GET("/managers/:managerId/employee-limit", subscriptionController.EmployeeLimit)
	internal.POST("/payments/:transactionId/sync", subscriptionController.SyncPayment)

	return e
}

// requestLogger writes one http_request entry per call and feeds the
// latency histogram.
func requestLogger() echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.
				WithLabelValues(v.Method, route, strconv.Itoa(v.Status)).
				Observe(v.Latency.Seconds())

			entry := logrus.WithFields(logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"method":     v.Method,
				"uri":        v.URI,
				"route":      route,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			})
			switch {
			case v.Error != nil:
				entry.WithError(v.Error).Warn("http_request")
			case route == "/metrics" || route == "/health":
				entry.Debug("http_request")
			default:
				entry.Info("http_request")
			}
			return nil
		},
	})
}
