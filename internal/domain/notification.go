package domain

import (
	"time"

	"github.com/google/uuid"
)

type EmailType string

const (
	EmailOrderConfirmation     EmailType = "order_confirmation"
	EmailBookingConfirmation   EmailType = "booking_confirmation"
	EmailCustomReceived        EmailType = "custom_order_received"
	EmailCustomQuote           EmailType = "custom_order_quote"
	EmailCustomPaymentReceived EmailType = "custom_order_payment_received"
	EmailCustomInProgress      EmailType = "custom_order_in_progress"
	EmailCustomShipped         EmailType = "custom_order_shipped"
	EmailCustomDelivered       EmailType = "custom_order_delivered"
	EmailCustomRejected        EmailType = "custom_order_rejected"
)

func (t EmailType) Valid() bool {
	switch t {
	case EmailOrderConfirmation, EmailBookingConfirmation, EmailCustomReceived, EmailCustomQuote,
		EmailCustomPaymentReceived, EmailCustomInProgress, EmailCustomShipped, EmailCustomDelivered,
		EmailCustomRejected:
		return true
	}
	return false
}

type EntityType string

const (
	EntityOrder       EntityType = "order"
	EntityBooking     EntityType = "booking"
	EntityCustomOrder EntityType = "custom_order"
)

type EmailStatus string

const (
	EmailClaimed EmailStatus = "claimed"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailEvent is one row of the append-only email ledger.
type EmailEvent struct {
	ID         uuid.UUID
	EntityType EntityType
	EntityID   uuid.UUID
	EmailType  EmailType
	Override   bool
	Status     EmailStatus
	CreatedAt  time.Time
}

type AdminNotification struct {
	ID         uuid.UUID
	Kind       string
	Title      string
	Message    string
	EntityType EntityType
	EntityID   uuid.UUID
	Read       bool
	CreatedAt  time.Time
}

func NewAdminNotification(kind, title, message string, entity EntityType, entityID uuid.UUID) *AdminNotification {
	return &AdminNotification{
		ID:         uuid.New(),
		Kind:       kind,
		Title:      title,
		Message:    message,
		EntityType: entity,
		EntityID:   entityID,
		CreatedAt:  time.Now().UTC(),
	}
}

// PaidEvent is published once per pending to paid transition.
type PaidEvent struct {
	Kind             PayableKind `json:"kind"`
	LocalID          uuid.UUID   `json:"local_id"`
	Reference        string      `json:"reference"`
	Amount           string      `json:"amount"`
	GatewayOrderID   string      `json:"gateway_order_id"`
	GatewayPaymentID string      `json:"gateway_payment_id"`
	PaidAt           time.Time   `json:"paid_at"`
}
