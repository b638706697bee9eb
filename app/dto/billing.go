package dto

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type PlanResponse struct {
	ID           uint64 `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	PeriodDays   int32  `json:"period_days"`
	MaxEmployees int32  `json:"max_employees"`
}

type ListPlansResponse struct {
	Plans []PlanResponse `json:"plans"`
}

type SubscriptionResponse struct {
	ID        uint64  `json:"id"`
	ManagerID string  `json:"manager_id"`
	PlanID    uint64  `json:"plan_id"`
	Status    string  `json:"status"`
	IsActive  bool    `json:"is_active"`
	AutoRenew bool    `json:"auto_renew"`
	StartAt   *string `json:"start_at,omitempty"`
	EndAt     *string `json:"end_at,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type SubscriptionEnvelopeResponse struct {
	Subscription SubscriptionResponse `json:"subscription"`
}

type PaymentResponse struct {
	ID             uint64  `json:"id"`
	SubscriptionID *uint64 `json:"subscription_id,omitempty"`
	AmountCents    int64   `json:"amount_cents"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	TransactionID  string  `json:"transaction_id"`
	Gateway        string  `json:"gateway"`
	PaidAt         *string `json:"paid_at,omitempty"`
	RefundedAt     *string `json:"refunded_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type CheckoutResponse struct {
	Subscription SubscriptionResponse `json:"subscription"`
	Payment      PaymentResponse      `json:"payment"`
	// PaymentURL is the redirect URL or client secret the caller hands to the payer.
	PaymentURL string `json:"payment_url"`
}

type EmployeeLimitResponse struct {
	Allowed      bool   `json:"allowed"`
	Current      int    `json:"current"`
	Requested    int    `json:"requested"`
	MaxEmployees int    `json:"max_employees"`
	Reason       string `json:"reason,omitempty"`
}

type SyncPaymentResponse struct {
	Result  string          `json:"result"`
	Payment PaymentResponse `json:"payment"`
}

type WebhookResponse struct {
	Result string `json:"result"`
}
