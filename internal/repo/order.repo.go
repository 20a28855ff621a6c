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

const OrderNumberConstraint = "orders_order_number_key"

type OrderFilter struct {
	UserID        *uuid.UUID
	PaymentStatus domain.PaymentStatus
	Limit         int
	Offset        int
}

// ExpiryCursor resumes FindExpiredPending after the last order of a page.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

type OrderRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	UpdateFulfillmentStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.FulfillmentStatus) (bool, error)
	// FindExpiredPending pages through pending orders that expired before
	// the given time, oldest first, skipping orders held for manual review.
	FindExpiredPending(ctx context.Context, before time.Time, after *ExpiryCursor, limit int) ([]domain.Order, error)
	ExpireOrder(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
	// MarkNeedsReview holds a pending order back from the expiry sweep.
	MarkNeedsReview(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
}

type orderRepo struct {
	store
}

func NewOrderRepo(db *sql.DB, opts ...Option) OrderRepo {
	return &orderRepo{store: newStore(db, opts)}
}

const orderColumns = `id, order_number, user_id, session_id, customer_name, customer_email, customer_phone,
	shipping_address, tax_id, subtotal, shipping_cost, total_amount, payment_status, fulfillment_status,
	gateway_order_id, gateway_payment_id, expires_at, needs_review, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                                    domain.Order
		userID                               uuid.NullUUID
		sessionID, taxID, gwOrder, gwPayment sql.NullString
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&userID,
		&sessionID,
		&o.Customer.Name,
		&o.Customer.Email,
		&o.Customer.Phone,
		&o.ShippingAddress,
		&taxID,
		&o.Subtotal,
		&o.ShippingCost,
		&o.TotalAmount,
		&o.PaymentStatus,
		&o.FulfillmentStatus,
		&gwOrder,
		&gwPayment,
		&o.ExpiresAt,
		&o.NeedsReview,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		o.UserID = &userID.UUID
	}
	o.SessionID = sessionID.String
	o.TaxID = taxID.String
	o.GatewayOrderID = gwOrder.String
	o.GatewayPaymentID = gwPayment.String
	return &o, nil
}

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, item_type, item_ref, item_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = $1 ORDER BY item_name, id`, id)
	if err != nil {
		return nil, fmt.Errorf("find order items %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item domain.OrderItem
			ref  uuid.NullUUID
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemType, &ref, &item.ItemName, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		if ref.Valid {
			item.ItemRef = &ref.UUID
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (r *orderRepo) List(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := "SELECT " + orderColumns + ` FROM orders
		WHERE ($1::uuid IS NULL OR user_id = $1)
		AND ($2 = '' OR payment_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	var userID uuid.NullUUID
	if filter.UserID != nil {
		userID = uuid.NullUUID{UUID: *filter.UserID, Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, query, userID, string(filter.PaymentStatus), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, session_id, customer_name, customer_email, customer_phone,
			shipping_address, tax_id, subtotal, shipping_cost, total_amount, payment_status, fulfillment_status,
			expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		order.ID, order.OrderNumber, order.UserID, nullString(order.SessionID),
		order.Customer.Name, order.Customer.Email, order.Customer.Phone,
		order.ShippingAddress, nullString(order.TaxID),
		order.Subtotal, order.ShippingCost, order.TotalAmount,
		order.PaymentStatus, order.FulfillmentStatus,
		order.ExpiresAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, item_type, item_ref, item_name, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, order.ID, item.ItemType, item.ItemRef, item.ItemName, item.Quantity, item.UnitPrice, item.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepo) UpdateFulfillmentStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.FulfillmentStatus) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET fulfillment_status = $3, updated_at = now() WHERE id = $1 AND fulfillment_status = $2",
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *orderRepo) FindExpiredPending(ctx context.Context, before time.Time, after *ExpiryCursor, limit int) ([]domain.Order, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var (
		afterAt sql.NullTime
		afterID uuid.NullUUID
	)
	if after != nil {
		afterAt = sql.NullTime{Time: after.ExpiresAt, Valid: true}
		afterID = uuid.NullUUID{UUID: after.ID, Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+orderColumns+` FROM orders
		WHERE payment_status = 'pending' AND NOT needs_review AND expires_at < $1
		AND ($2::timestamptz IS NULL OR (expires_at, id) > ($2::timestamptz, $3::uuid))
		ORDER BY expires_at, id
		LIMIT $4`,
		before, afterAt, afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *orderRepo) ExpireOrder(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'failed', fulfillment_status = 'cancelled', updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *orderRepo) MarkNeedsReview(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET needs_review = TRUE, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending' AND NOT needs_review`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}
