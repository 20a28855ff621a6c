package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studio-checkout/internal/domain"
)

type BookingRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.ExperienceBooking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ExperienceBooking, error)
	CreateBooking(ctx context.Context, tx *sql.Tx, booking *domain.ExperienceBooking) error
	UpdateBookingStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.BookingStatus) (bool, error)
	FindUnpaidBefore(ctx context.Context, day time.Time, limit int) ([]domain.ExperienceBooking, error)
	ExpireBooking(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
}

type bookingRepo struct {
	store
}

func NewBookingRepo(db *sql.DB, opts ...Option) BookingRepo {
	return &bookingRepo{store: newStore(db, opts)}
}

const bookingColumns = `id, user_id, customer_name, customer_email, experience_type, booking_date, time_slot, guests,
	notes, total_amount, payment_status, booking_status, gateway_order_id, gateway_payment_id, created_at, updated_at`

func scanBooking(row rowScanner) (*domain.ExperienceBooking, error) {
	var (
		b              domain.ExperienceBooking
		gwOrder, gwPay sql.NullString
	)
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.ExperienceType,
		&b.BookingDate,
		&b.TimeSlot,
		&b.Guests,
		&b.Notes,
		&b.TotalAmount,
		&b.PaymentStatus,
		&b.BookingStatus,
		&gwOrder,
		&gwPay,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.GatewayOrderID = gwOrder.String
	b.GatewayPaymentID = gwPay.String
	return &b, nil
}

func (r *bookingRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.ExperienceBooking, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	b, err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM experience_bookings WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find booking %s: %w", id, err)
	}
	return b, nil
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ExperienceBooking, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return r.query(ctx, "SELECT "+bookingColumns+" FROM experience_bookings WHERE user_id = $1 ORDER BY booking_date DESC, created_at DESC", userID)
}

func (r *bookingRepo) CreateBooking(ctx context.Context, tx *sql.Tx, b *domain.ExperienceBooking) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO experience_bookings (id, user_id, customer_name, customer_email, experience_type, booking_date,
			time_slot, guests, notes, total_amount, payment_status, booking_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.UserID, b.CustomerName, b.CustomerEmail, b.ExperienceType, b.BookingDate,
		b.TimeSlot, b.Guests, b.Notes, b.TotalAmount, b.PaymentStatus, b.BookingStatus, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (r *bookingRepo) UpdateBookingStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.BookingStatus) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx,
		"UPDATE experience_bookings SET booking_status = $3, updated_at = now() WHERE id = $1 AND booking_status = $2",
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// FindUnpaidBefore returns pending bookings dated strictly before day.
func (r *bookingRepo) FindUnpaidBefore(ctx context.Context, day time.Time, limit int) ([]domain.ExperienceBooking, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return r.query(ctx,
		"SELECT "+bookingColumns+" FROM experience_bookings WHERE payment_status = 'pending' AND booking_date < $1::date ORDER BY booking_date LIMIT $2",
		day.UTC().Format("2006-01-02"), limit,
	)
}

func (r *bookingRepo) ExpireBooking(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx, `
		UPDATE experience_bookings
		SET payment_status = 'failed', booking_status = 'cancelled', updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *bookingRepo) query(ctx context.Context, query string, args ...any) ([]domain.ExperienceBooking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.ExperienceBooking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
