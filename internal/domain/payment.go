package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Terminal reports whether no further payment transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

type PayableKind string

const (
	PayableOrder   PayableKind = "order"
	PayableBooking PayableKind = "booking"
)

func (k PayableKind) Valid() bool {
	return k == PayableOrder || k == PayableBooking
}

// Payable is the slice of an order or booking the payment flow works on.
type Payable struct {
	Kind             PayableKind
	ID               uuid.UUID
	Reference        string
	Amount           decimal.Decimal
	PaymentStatus    PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	UserID           *uuid.UUID
	SessionID        string
	Customer         Customer
	// ExpiresAt ends the pending window. After it the sweep fails the record.
	ExpiresAt time.Time
}

// Expired reports whether the pending window closed before now.
func (p Payable) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

func (p Payable) OwnedBy(id Identity) bool {
	if id.IsAdmin() {
		return true
	}
	if p.UserID != nil {
		return id.UserID != uuid.Nil && *p.UserID == id.UserID
	}
	return p.SessionID != "" && p.SessionID == id.SessionID
}

// MinorUnits converts a major-unit amount (rupees) into the integer minor
// units (paise) the gateway expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Session is what the client payment surface needs to collect a payment.
type Session struct {
	Kind           PayableKind     `json:"kind"`
	LocalID        uuid.UUID       `json:"localId"`
	GatewayOrderID string          `json:"gatewayOrderId"`
	KeyID          string          `json:"keyId"`
	Amount         int64           `json:"amount"`
	DisplayAmount  decimal.Decimal `json:"displayAmount"`
	Currency       string          `json:"currency"`
	Receipt        string          `json:"receipt"`
	Prefill        SessionPrefill  `json:"prefill"`
}

type SessionPrefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// PaymentCompletion is the gateway callback payload delivered to the client.
// These three fields are the only trusted input to verification.
type PaymentCompletion struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type VerifyOutcome string

const (
	OutcomeVerified          VerifyOutcome = "verified"
	OutcomeAlreadyPaid       VerifyOutcome = "already_paid"
	OutcomeSignatureMismatch VerifyOutcome = "signature_mismatch"
	OutcomeOrderMismatch     VerifyOutcome = "gateway_order_mismatch"
	OutcomeNotPayable        VerifyOutcome = "not_payable"
)

type VerifyResult struct {
	Verified bool
	Outcome  VerifyOutcome
}
