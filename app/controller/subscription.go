package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/dto"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type SubscriptionController struct {
	subscriptionService *service.SubscriptionService
	reconciler          *service.Reconciler
	quota               *service.QuotaEnforcer
	logger              logrus.FieldLogger
}

func NewSubscriptionController(
	subscriptionService *service.SubscriptionService,
	reconciler *service.Reconciler,
	quota *service.QuotaEnforcer,
) *SubscriptionController {
	return &SubscriptionController{
		subscriptionService: subscriptionService,
		reconciler:          reconciler,
		quota:               quota,
		logger:              factory.NewModuleLogger("subscriptions-controller"),
	}
}

func (c *SubscriptionController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &dto.HealthResponse{Status: "ok"})
}

func (c *SubscriptionController) ListPlans(ctx echo.Context) error {
	items, err := c.subscriptionService.ListPlans(ctx.Request().Context())
	if err != nil {
		return c.handleError(ctx, err, "List plans failed")
	}
	return ctx.JSON(http.StatusOK, &dto.ListPlansResponse{Plans: mapper.PlansToDTO(items)})
}

func (c *SubscriptionController) CreateSubscription(ctx echo.Context) error {
	req, err := types.NewCreateSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.subscriptionService.CreateSubscription(ctx.Request().Context(), req)
	if err != nil {
		return c.handleError(ctx, err, "Create subscription failed")
	}
	return ctx.JSON(http.StatusCreated, checkoutResponse(result))
}

func (c *SubscriptionController) RenewSubscription(ctx echo.Context) error {
	req, err := types.NewRenewSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.subscriptionService.RenewSubscription(ctx.Request().Context(), req)
	if err != nil {
		return c.handleError(ctx, err, "Renew subscription failed")
	}
	return ctx.JSON(http.StatusCreated, checkoutResponse(result))
}

func (c *SubscriptionController) GetSubscription(ctx echo.Context) error {
	req, err := types.NewManagerRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.subscriptionService.GetSubscription(ctx.Request().Context(), req.GetManagerId())
	if err != nil {
		return c.handleError(ctx, err, "Get subscription failed")
	}
	return ctx.JSON(http.StatusOK, &dto.SubscriptionEnvelopeResponse{Subscription: mapper.SubscriptionToDTO(item)})
}

func (c *SubscriptionController) CancelSubscription(ctx echo.Context) error {
	req, err := types.NewManagerRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.subscriptionService.CancelSubscription(ctx.Request().Context(), req.GetManagerId())
	if err != nil {
		return c.handleError(ctx, err, "Cancel subscription failed")
	}
	return ctx.JSON(http.StatusOK, &dto.SubscriptionEnvelopeResponse{Subscription: mapper.SubscriptionToDTO(item)})
}

func (c *SubscriptionController) EmployeeLimit(ctx echo.Context) error {
	req, err := types.NewEmployeeLimitRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid query params")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	decision, err := c.quota.Evaluate(ctx.Request().Context(), req.GetManagerId(), req.GetRequested())
	if err != nil {
		return c.handleError(ctx, err, "Employee limit check failed")
	}
	return ctx.JSON(http.StatusOK, &dto.EmployeeLimitResponse{
		Allowed:      decision.Allowed,
		Current:      decision.Current,
		Requested:    decision.Requested,
		MaxEmployees: decision.MaxEmployees,
		Reason:       decision.Reason,
	})
}

// SyncPayment asks the provider for a payment's state and reconciles it.
func (c *SubscriptionController) SyncPayment(ctx echo.Context) error {
	req, err := types.NewSyncPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, item, err := c.reconciler.SyncPayment(ctx.Request().Context(), req.GetTransactionId())
	if err != nil {
		return c.handleError(ctx, err, "Sync payment failed")
	}
	return ctx.JSON(http.StatusOK, &dto.SyncPaymentResponse{
		Result:  result.String(),
		Payment: mapper.PaymentToDTO(item),
	})
}

func (c *SubscriptionController) handleError(ctx echo.Context, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, gateway.ErrGatewayNotEnabled),
		errors.Is(err, gateway.ErrUnknownProvider):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrManagerNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		return c.writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrActiveSubscriptionExists),
		errors.Is(err, service.ErrSubscriptionCancelled),
		errors.Is(err, service.ErrInvalidPaymentTransition):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrGateway):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn(message)
		return c.writeError(ctx, http.StatusBadGateway, "payment provider unavailable")
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(message)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *SubscriptionController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &dto.ErrorResponse{Error: message})
}

func checkoutResponse(result *service.CheckoutResult) *dto.CheckoutResponse {
	return &dto.CheckoutResponse{
		Subscription: mapper.SubscriptionToDTO(result.Subscription),
		Payment:      mapper.PaymentToDTO(result.Payment),
		PaymentURL:   result.PaymentURL,
	}
}
