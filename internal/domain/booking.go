package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ExperienceType string

const (
	ExperienceCouple   ExperienceType = "couple"
	ExperienceBirthday ExperienceType = "birthday"
	ExperienceFarm     ExperienceType = "farm"
	ExperienceStudio   ExperienceType = "studio"
)

func (t ExperienceType) Valid() bool {
	switch t {
	case ExperienceCouple, ExperienceBirthday, ExperienceFarm, ExperienceStudio:
		return true
	}
	return false
}

// PerGuest reports whether the experience is priced per head.
func (t ExperienceType) PerGuest() bool {
	return t == ExperienceStudio
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	return s == BookingConfirmed || s == BookingCompleted || s == BookingCancelled
}

var (
	ErrUnknownExperience = errors.New("unknown experience type")
	ErrInvalidGuests     = errors.New("guest count out of range")
	ErrBookingInPast     = errors.New("booking date is in the past")
)

// ExperiencePricing holds the base price of each experience type.
type ExperiencePricing map[ExperienceType]decimal.Decimal

// PriceFor returns base*guests for per-guest experiences and the flat base
// price for everything else.
func (p ExperiencePricing) PriceFor(t ExperienceType, guests int) (decimal.Decimal, error) {
	base, ok := p[t]
	if !ok || !t.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownExperience, t)
	}
	if guests <= 0 {
		return decimal.Zero, ErrInvalidGuests
	}
	if t.PerGuest() {
		return base.Mul(decimal.NewFromInt(int64(guests))), nil
	}
	return base, nil
}

type ExperienceBooking struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	ExperienceType   ExperienceType
	BookingDate      time.Time
	TimeSlot         string
	Guests           int
	Notes            string
	TotalAmount      decimal.Decimal
	PaymentStatus    PaymentStatus
	BookingStatus    BookingStatus
	GatewayOrderID   string
	GatewayPaymentID string
	CustomerName     string
	CustomerEmail    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type BookingRequest struct {
	UserID         uuid.UUID
	CustomerName   string
	CustomerEmail  string
	ExperienceType ExperienceType
	BookingDate    time.Time
	TimeSlot       string
	Guests         int
	Notes          string
}

func NewExperienceBooking(req BookingRequest, pricing ExperiencePricing, maxGuests int, now time.Time) (*ExperienceBooking, error) {
	if maxGuests > 0 && req.Guests > maxGuests {
		return nil, ErrInvalidGuests
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if req.BookingDate.UTC().Before(today) {
		return nil, ErrBookingInPast
	}
	total, err := pricing.PriceFor(req.ExperienceType, req.Guests)
	if err != nil {
		return nil, err
	}
	return &ExperienceBooking{
		ID:             uuid.New(),
		UserID:         req.UserID,
		ExperienceType: req.ExperienceType,
		BookingDate:    req.BookingDate.UTC().Truncate(24 * time.Hour),
		TimeSlot:       req.TimeSlot,
		Guests:         req.Guests,
		Notes:          req.Notes,
		TotalAmount:    total,
		PaymentStatus:  PaymentPending,
		BookingStatus:  BookingConfirmed,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}, nil
}

func (b *ExperienceBooking) Payable() Payable {
	userID := b.UserID
	return Payable{
		Kind:             PayableBooking,
		ID:               b.ID,
		Reference:        "BKG-" + b.ID.String()[:8],
		Amount:           b.TotalAmount,
		PaymentStatus:    b.PaymentStatus,
		GatewayOrderID:   b.GatewayOrderID,
		GatewayPaymentID: b.GatewayPaymentID,
		UserID:           &userID,
		Customer:         Customer{Name: b.CustomerName, Email: b.CustomerEmail},
		ExpiresAt:        b.BookingDate.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}
