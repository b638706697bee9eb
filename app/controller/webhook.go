package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/dto"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type gatewayLookup interface {
	Get(p gateway.Provider) (gateway.Gateway, error)
}

// WebhookController receives provider callbacks. Each provider has its own
// route; a callback is only reconciled after the adapter authenticates it.
type WebhookController struct {
	gateways   gatewayLookup
	reconciler *service.Reconciler
	logger     logrus.FieldLogger
}

func NewWebhookController(gateways gatewayLookup, reconciler *service.Reconciler) *WebhookController {
	return &WebhookController{
		gateways:   gateways,
		reconciler: reconciler,
		logger:     factory.NewModuleLogger("webhook-controller"),
	}
}

func (c *WebhookController) Handler(provider gateway.Provider) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return c.handle(ctx, provider)
	}
}

func (c *WebhookController) handle(ctx echo.Context, provider gateway.Provider) error {
	logger := factory.LoggerWithContext(c.logger, ctx).WithField("provider", provider.String())

	gw, err := c.gateways.Get(provider)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, &dto.ErrorResponse{Error: "gateway not enabled"})
	}
	cb, err := types.NewCallbackFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, &dto.ErrorResponse{Error: "invalid callback body"})
	}

	// Once the provider has reached us the work must finish even if it hangs up.
	reqCtx := context.WithoutCancel(ctx.Request().Context())

	outcome, err := gw.VerifyCallback(reqCtx, cb)
	if err != nil {
		if errors.Is(err, gateway.ErrAuthenticity) {
			metrics.CallbackRejections.WithLabelValues(provider.String()).Inc()
			logger.WithError(err).Warn("callback_rejected")
			return ctx.JSON(http.StatusUnauthorized, &dto.ErrorResponse{Error: "callback authentication failed"})
		}
		logger.WithError(err).Error("callback_verification_failed")
		if errors.Is(err, gateway.ErrGateway) {
			return ctx.JSON(http.StatusBadGateway, &dto.ErrorResponse{Error: "payment provider unavailable"})
		}
		return ctx.JSON(http.StatusInternalServerError, &dto.ErrorResponse{Error: "internal server error"})
	}

	if outcome.TransactionID == "" {
		return ctx.JSON(http.StatusOK, &dto.WebhookResponse{Result: "ignored"})
	}

	result, err := c.reconciler.Reconcile(reqCtx, outcome)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPaymentTransition):
			return ctx.JSON(http.StatusOK, &dto.WebhookResponse{Result: "ignored"})
		case errors.Is(err, service.ErrPaymentNotFound):
			return ctx.JSON(http.StatusNotFound, &dto.ErrorResponse{Error: "payment not found"})
		case errors.Is(err, service.ErrInvalidRequest):
			return ctx.JSON(http.StatusBadRequest, &dto.ErrorResponse{Error: err.Error()})
		default:
			logger.WithError(err).Error("callback_reconcile_failed")
			return ctx.JSON(http.StatusInternalServerError, &dto.ErrorResponse{Error: "internal server error"})
		}
	}

	if result == service.ReconcileNotFinal {
		return ctx.JSON(http.StatusAccepted, &dto.WebhookResponse{Result: result.String()})
	}
	return ctx.JSON(http.StatusOK, &dto.WebhookResponse{Result: result.String()})
}
