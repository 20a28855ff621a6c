package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studio-checkout/internal/domain"
)

// PaymentRepo works on the payment columns shared by orders and bookings.
// Every write is a compare-and-swap on the current payment status; the
// returned bool reports whether this call made the transition.
type PaymentRepo interface {
	FindPayable(ctx context.Context, kind domain.PayableKind, id uuid.UUID) (*domain.Payable, error)
	AttachGatewayOrder(ctx context.Context, tx *sql.Tx, kind domain.PayableKind, id uuid.UUID, gatewayOrderID string) (bool, error)
	MarkPaid(ctx context.Context, tx *sql.Tx, kind domain.PayableKind, id uuid.UUID, gatewayOrderID, gatewayPaymentID string) (bool, error)
	MarkFailed(ctx context.Context, tx *sql.Tx, kind domain.PayableKind, id uuid.UUID) (bool, error)
}

type paymentRepo struct {
	store
}

func NewPaymentRepo(db *sql.DB, opts ...Option) PaymentRepo {
	return &paymentRepo{store: newStore(db, opts)}
}

type payableTable struct {
	table   string
	selectQ string
	cancelQ string
}

var payableTables = map[domain.PayableKind]payableTable{
	domain.PayableOrder: {
		table: "orders",
		selectQ: `SELECT id, order_number, total_amount, payment_status, gateway_order_id, gateway_payment_id,
			user_id, session_id, customer_name, customer_email, customer_phone, expires_at
			FROM orders WHERE id = $1`,
		cancelQ: "fulfillment_status = 'cancelled'",
	},
	domain.PayableBooking: {
		table: "experience_bookings",
		selectQ: `SELECT id, '', total_amount, payment_status, gateway_order_id, gateway_payment_id,
			user_id, NULL, customer_name, customer_email, '', (booking_date + 1)::timestamp AT TIME ZONE 'UTC'
			FROM experience_bookings WHERE id = $1`,
		cancelQ: "booking_status = 'cancelled'",
	},
}

func tableFor(kind domain.PayableKind) (payableTable, error) {
	t, ok := payableTables[kind]
	if !ok {
		return payableTable{}, fmt.Errorf("unknown payable kind %q", kind)
	}
	return t, nil
}

func (r *paymentRepo) FindPayable(ctx context.Context, kind domain.PayableKind, id uuid.UUID) (*domain.Payable, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var (
		p                         = domain.Payable{Kind: kind}
		userID                    uuid.NullUUID
		sessionID, gwOrder, gwPay sql.NullString
	)
	err = r.db.QueryRowContext(ctx, t.selectQ, id).Scan(
		&p.ID,
		&p.Reference,
		&p.Amount,
		&p.PaymentStatus,
		&gwOrder,
		&gwPay,
		&userID,
		&sessionID,
		&p.Customer.Name,
		&p.Customer.Email,
		&p.Customer.Phone,
		&p.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", kind, id, err)
	}
	if userID.Valid {
		p.UserID = &userID.UUID
	}
	p.SessionID = sessionID.String
	p.GatewayOrderID = gwOrder.String
	p.GatewayPaymentID = gwPay.String
	if kind == domain.PayableBooking {
		p.Reference = "BKG-" + p.ID.String()[:8]
	}
	return &p, nil
}

func (r *paymentRepo) AttachGatewayOrder(ctx context.Context, tx *sql.Tx, kind domain.PayableKind, id uuid.UUID, gatewayOrderID string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE `+t.table+`
		SET gateway_order_id = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending' AND gateway_order_id IS NULL`,
		id, gatewayOrderID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *paymentRepo) MarkPaid(ctx context.Context, tx *sql.Tx, kind domain.PayableKind, id uuid.UUID, gatewayOrderID, gatewayPaymentID string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE `+t.table+`
		SET payment_status = 'paid', gateway_payment_id = $3, updated_at = now()
		WHERE id = $1 AND gateway_order_id = $2 AND payment_status = 'pending'`,
		id, gatewayOrderID, gatewayPaymentID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx *sql.Tx, kind domain.PayableKind, id uuid.UUID) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE `+t.table+`
		SET payment_status = 'failed', `+t.cancelQ+`, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`,
		id,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}
