package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CustomOrderStatus string

const (
	CustomPending        CustomOrderStatus = "pending"
	CustomUnderReview    CustomOrderStatus = "under_review"
	CustomPaymentPending CustomOrderStatus = "payment_pending"
	CustomPaymentDone    CustomOrderStatus = "payment_done"
	CustomInProgress     CustomOrderStatus = "in_progress"
	CustomInDelivery     CustomOrderStatus = "in_delivery"
	CustomDelivered      CustomOrderStatus = "delivered"
	CustomRejected       CustomOrderStatus = "rejected"
)

var customOrderFlow = map[CustomOrderStatus][]CustomOrderStatus{
	CustomPending:        {CustomUnderReview, CustomRejected},
	CustomUnderReview:    {CustomPaymentPending, CustomRejected},
	CustomPaymentPending: {CustomPaymentDone, CustomRejected},
	CustomPaymentDone:    {CustomInProgress},
	CustomInProgress:     {CustomInDelivery},
	CustomInDelivery:     {CustomDelivered},
}

func (s CustomOrderStatus) Valid() bool {
	if _, ok := customOrderFlow[s]; ok {
		return true
	}
	return s == CustomDelivered || s == CustomRejected
}

func (s CustomOrderStatus) CanTransitionTo(next CustomOrderStatus) bool {
	for _, allowed := range customOrderFlow[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type CustomOrderRequest struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	RequesterName     string
	RequesterEmail    string
	Size              string
	Usage             string
	Notes             string
	ReferenceImages   []string
	Status            CustomOrderStatus
	EstimatedPrice    decimal.NullDecimal
	EstimatedDelivery *time.Time
	AdminNotes        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	EmailsSent        []EmailEvent
}

// StatusEmail maps a pipeline status to the email announcing it, if any.
func (s CustomOrderStatus) StatusEmail() (EmailType, bool) {
	switch s {
	case CustomPaymentPending:
		return EmailCustomQuote, true
	case CustomPaymentDone:
		return EmailCustomPaymentReceived, true
	case CustomInProgress:
		return EmailCustomInProgress, true
	case CustomInDelivery:
		return EmailCustomShipped, true
	case CustomDelivered:
		return EmailCustomDelivered, true
	case CustomRejected:
		return EmailCustomRejected, true
	}
	return "", false
}
