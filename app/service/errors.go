package service

import "errors"

var (
	ErrValidation               = errors.New("validation failed")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrPlanNotFound             = errors.New("plan not found")
	ErrManagerNotFound          = errors.New("manager not found")
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrActiveSubscriptionExists = errors.New("manager already has an active subscription")
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")
	ErrSubscriptionCancelled    = errors.New("subscription is cancelled")
)
