package types

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type CreateSubscriptionRequest struct {
	ManagerId string `json:"manager_id" validate:"required,max=64"`
	PlanId    uint64 `json:"plan_id" validate:"required"`
	Gateway   string `json:"gateway" validate:"required,provider"`
	Email     string `json:"email" validate:"omitempty,email"`
	AutoRenew bool   `json:"auto_renew"`
}

func NewCreateSubscriptionRequestFromContext(ctx echo.Context) (*CreateSubscriptionRequest, error) {
	var body CreateSubscriptionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ManagerId = strings.TrimSpace(body.ManagerId)
	body.Gateway = strings.ToLower(strings.TrimSpace(body.Gateway))
	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *CreateSubscriptionRequest) Validate() error {
	return validateStruct(r)
}

func (r *CreateSubscriptionRequest) GetManagerId() string { return r.ManagerId }
func (r *CreateSubscriptionRequest) GetPlanId() uint64    { return r.PlanId }
func (r *CreateSubscriptionRequest) GetGateway() string   { return r.Gateway }
func (r *CreateSubscriptionRequest) GetEmail() string     { return r.Email }
func (r *CreateSubscriptionRequest) GetAutoRenew() bool   { return r.AutoRenew }

type RenewSubscriptionRequest struct {
	ManagerId string `json:"manager_id" validate:"required,max=64"`
	Gateway   string `json:"gateway" validate:"required,provider"`
	Email     string `json:"email" validate:"omitempty,email"`
}

func NewRenewSubscriptionRequestFromContext(ctx echo.Context) (*RenewSubscriptionRequest, error) {
	var body RenewSubscriptionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ManagerId = strings.TrimSpace(ctx.Param("managerId"))
	body.Gateway = strings.ToLower(strings.TrimSpace(body.Gateway))
	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *RenewSubscriptionRequest) Validate() error {
	return validateStruct(r)
}

func (r *RenewSubscriptionRequest) GetManagerId() string { return r.ManagerId }
func (r *RenewSubscriptionRequest) GetGateway() string   { return r.Gateway }
func (r *RenewSubscriptionRequest) GetEmail() string     { return r.Email }

// ManagerRequest addresses a manager's subscription by path parameter.
type ManagerRequest struct {
	ManagerId string `json:"manager_id" validate:"required,max=64"`
}

func NewManagerRequestFromContext(ctx echo.Context) (*ManagerRequest, error) {
	return &ManagerRequest{ManagerId: strings.TrimSpace(ctx.Param("managerId"))}, nil
}

func (r *ManagerRequest) Validate() error {
	return validateStruct(r)
}

func (r *ManagerRequest) GetManagerId() string { return r.ManagerId }

type EmployeeLimitRequest struct {
	ManagerId string `json:"manager_id" validate:"required,max=64"`
	Requested int    `json:"requested" validate:"gte=1"`
}

// NewEmployeeLimitRequestFromContext defaults requested to 1 when omitted.
func NewEmployeeLimitRequestFromContext(ctx echo.Context) (*EmployeeLimitRequest, error) {
	req := &EmployeeLimitRequest{
		ManagerId: strings.TrimSpace(ctx.Param("managerId")),
		Requested: 1,
	}
	if raw := strings.TrimSpace(ctx.QueryParam("requested")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		req.Requested = value
	}
	return req, nil
}

func (r *EmployeeLimitRequest) Validate() error {
	return validateStruct(r)
}

func (r *EmployeeLimitRequest) GetManagerId() string { return r.ManagerId }
func (r *EmployeeLimitRequest) GetRequested() int    { return r.Requested }

type SyncPaymentRequest struct {
	TransactionId string `json:"transaction_id" validate:"required,max=191"`
}

func NewSyncPaymentRequestFromContext(ctx echo.Context) (*SyncPaymentRequest, error) {
	return &SyncPaymentRequest{TransactionId: strings.TrimSpace(ctx.Param("transactionId"))}, nil
}

func (r *SyncPaymentRequest) Validate() error {
	return validateStruct(r)
}

func (r *SyncPaymentRequest) GetTransactionId() string { return r.TransactionId }
