package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/dto"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
)

func PlanToDTO(item *entity.Plan) dto.PlanResponse {
	return dto.PlanResponse{
		ID:           item.ID,
		Code:         item.Code,
		Name:         item.Name,
		Price:        gateway.FormatMinorUnits(item.PriceCents, item.Currency),
		PriceCents:   item.PriceCents,
		Currency:     item.Currency,
		PeriodDays:   item.PeriodDays,
		MaxEmployees: item.MaxEmployees,
	}
}

func PlansToDTO(items []*entity.Plan) []dto.PlanResponse {
	result := make([]dto.PlanResponse, 0, len(items))
	for _, item := range items {
		result = append(result, PlanToDTO(item))
	}
	return result
}

func SubscriptionToDTO(item *entity.Subscription) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		ID:        item.ID,
		ManagerID: item.ManagerID,
		PlanID:    item.PlanID,
		Status:    SubscriptionStatusName(item.Status),
		IsActive:  item.IsActive,
		AutoRenew: item.AutoRenew,
		StartAt:   formatTime(item.StartAt),
		EndAt:     formatTime(item.EndAt),
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentToDTO(item *entity.Payment) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:             item.ID,
		SubscriptionID: item.SubscriptionID,
		AmountCents:    item.AmountCents,
		Currency:       item.Currency,
		Status:         entity.PaymentStatusName(item.Status),
		TransactionID:  item.TransactionID,
		Gateway:        item.Gateway,
		PaidAt:         formatTimePtr(item.PaidAt),
		RefundedAt:     formatTimePtr(item.RefundedAt),
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func SubscriptionStatusName(status int32) string {
	switch status {
	case entity.SubscriptionStatusPending:
		return "pending"
	case entity.SubscriptionStatusActive:
		return "active"
	case entity.SubscriptionStatusExpired:
		return "expired"
	case entity.SubscriptionStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func formatTime(value time.Time) *string {
	if value.IsZero() {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339)
	return &formatted
}

func formatTimePtr(value *time.Time) *string {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}
