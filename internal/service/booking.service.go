package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/repo"
)

type CreateBookingInput struct {
	Caller         domain.Identity
	CustomerName   string
	ExperienceType domain.ExperienceType
	BookingDate    time.Time
	TimeSlot       string
	Guests         int
	Notes          string
}

type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.ExperienceBooking, error)
	ListBookings(ctx context.Context, caller domain.Identity) ([]domain.ExperienceBooking, error)
	UpdateStatus(ctx context.Context, caller domain.Identity, id uuid.UUID, from, to domain.BookingStatus) error
}

type bookingService struct {
	tx        repo.Transactor
	bookings  repo.BookingRepo
	pricing   domain.ExperiencePricing
	maxGuests int
	now       func() time.Time
}

func NewBookingService(tx repo.Transactor, bookings repo.BookingRepo, pricing domain.ExperiencePricing, maxGuests int) BookingService {
	return &bookingService{
		tx:        tx,
		bookings:  bookings,
		pricing:   pricing,
		maxGuests: maxGuests,
		now:       time.Now,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.ExperienceBooking, error) {
	if !in.Caller.Authenticated() {
		return nil, apperr.Unauthorized("sign in to book an experience")
	}

	booking, err := domain.NewExperienceBooking(domain.BookingRequest{
		UserID:         in.Caller.UserID,
		CustomerName:   in.CustomerName,
		CustomerEmail:  in.Caller.Email,
		ExperienceType: in.ExperienceType,
		BookingDate:    in.BookingDate,
		TimeSlot:       in.TimeSlot,
		Guests:         in.Guests,
		Notes:          in.Notes,
	}, s.pricing, s.maxGuests, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.bookings.CreateBooking(ctx, tx, booking)
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	log.WithFields(log.Fields{
		"booking_id": booking.ID,
		"experience": booking.ExperienceType,
		"guests":     booking.Guests,
		"total":      booking.TotalAmount.StringFixed(2),
	}).Info("booking created")
	return booking, nil
}

func (s *bookingService) ListBookings(ctx context.Context, caller domain.Identity) ([]domain.ExperienceBooking, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthorized("sign in to list bookings")
	}
	bookings, err := s.bookings.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return bookings, nil
}

func (s *bookingService) UpdateStatus(ctx context.Context, caller domain.Identity, id uuid.UUID, from, to domain.BookingStatus) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden("admin only")
	}
	if !from.Valid() || !to.Valid() {
		return apperr.Validation("unknown booking status")
	}

	var updated bool
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = s.bookings.UpdateBookingStatus(ctx, tx, id, from, to)
		return err
	})
	if err != nil {
		return apperr.Internal(err)
	}
	if !updated {
		if _, err := s.bookings.FindById(ctx, id); errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("booking not found")
		}
		return apperr.Conflict("booking status changed, reload and retry")
	}
	return nil
}
