package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"studio-checkout/internal/domain"
)

type CustomOrderRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.CustomOrderRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CustomOrderRequest, error)
	ListAll(ctx context.Context, status domain.CustomOrderStatus, limit int) ([]domain.CustomOrderRequest, error)
	Create(ctx context.Context, tx *sql.Tx, req *domain.CustomOrderRequest) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.CustomOrderStatus, adminNotes string) (bool, error)
	SetQuote(ctx context.Context, tx *sql.Tx, id uuid.UUID, from domain.CustomOrderStatus, price decimal.Decimal, delivery *time.Time, adminNotes string) (bool, error)
}

type customOrderRepo struct {
	store
}

func NewCustomOrderRepo(db *sql.DB, opts ...Option) CustomOrderRepo {
	return &customOrderRepo{store: newStore(db, opts)}
}

const customOrderColumns = `id, user_id, requester_name, requester_email, size, usage, notes, reference_images,
	status, estimated_price, estimated_delivery, admin_notes, created_at, updated_at`

func (r *customOrderRepo) scan(row rowScanner) (*domain.CustomOrderRequest, error) {
	var (
		c        domain.CustomOrderRequest
		delivery sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.RequesterName,
		&c.RequesterEmail,
		&c.Size,
		&c.Usage,
		&c.Notes,
		pgtype.NewMap().SQLScanner(&c.ReferenceImages),
		&c.Status,
		&c.EstimatedPrice,
		&delivery,
		&c.AdminNotes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if delivery.Valid {
		c.EstimatedDelivery = &delivery.Time
	}
	return &c, nil
}

func (r *customOrderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.CustomOrderRequest, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	c, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+customOrderColumns+" FROM custom_order_requests WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find custom order %s: %w", id, err)
	}

	events, err := listEmailEvents(ctx, r.db, domain.EntityCustomOrder, id)
	if err != nil {
		return nil, err
	}
	c.EmailsSent = events
	return c, nil
}

func (r *customOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CustomOrderRequest, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return r.query(ctx, "SELECT "+customOrderColumns+" FROM custom_order_requests WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (r *customOrderRepo) ListAll(ctx context.Context, status domain.CustomOrderStatus, limit int) ([]domain.CustomOrderRequest, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.query(ctx,
		"SELECT "+customOrderColumns+" FROM custom_order_requests WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2",
		string(status), limit,
	)
}

func (r *customOrderRepo) Create(ctx context.Context, tx *sql.Tx, c *domain.CustomOrderRequest) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	images := c.ReferenceImages
	if images == nil {
		images = []string{}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO custom_order_requests (id, user_id, requester_name, requester_email, size, usage, notes,
			reference_images, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.UserID, c.RequesterName, c.RequesterEmail, c.Size, c.Usage, c.Notes,
		images, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *customOrderRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.CustomOrderStatus, adminNotes string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx, `
		UPDATE custom_order_requests
		SET status = $3, admin_notes = CASE WHEN $4 = '' THEN admin_notes ELSE $4 END, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to, adminNotes,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *customOrderRepo) SetQuote(ctx context.Context, tx *sql.Tx, id uuid.UUID, from domain.CustomOrderStatus, price decimal.Decimal, delivery *time.Time, adminNotes string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var day sql.NullString
	if delivery != nil {
		day = sql.NullString{String: delivery.UTC().Format("2006-01-02"), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE custom_order_requests
		SET status = 'payment_pending', estimated_price = $3, estimated_delivery = $4::date,
			admin_notes = CASE WHEN $5 = '' THEN admin_notes ELSE $5 END, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, price, day, adminNotes,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *customOrderRepo) query(ctx context.Context, query string, args ...any) ([]domain.CustomOrderRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CustomOrderRequest
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
