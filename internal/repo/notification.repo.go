package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"studio-checkout/internal/domain"
)

// NotificationRepo owns the append-only email ledger and the admin
// notification feed. Ledger rows are never deleted.
type NotificationRepo interface {
	// ClaimEmail inserts the ledger row. A non-override row loses to an
	// earlier one for the same entity and type, and false is returned.
	ClaimEmail(ctx context.Context, event *domain.EmailEvent) (bool, error)
	SetEmailStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus) error
	ListEmailEvents(ctx context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.EmailEvent, error)
	CreateAdminNotification(ctx context.Context, n *domain.AdminNotification) error
	ListAdminNotifications(ctx context.Context, unreadOnly bool, limit int) ([]domain.AdminNotification, error)
	MarkAdminNotificationRead(ctx context.Context, id uuid.UUID) error
}

type notificationRepo struct {
	store
}

func NewNotificationRepo(db *sql.DB, opts ...Option) NotificationRepo {
	return &notificationRepo{store: newStore(db, opts)}
}

func (r *notificationRepo) ClaimEmail(ctx context.Context, e *domain.EmailEvent) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO email_events (id, entity_type, entity_id, email_type, override, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, entity_id, email_type) WHERE NOT override DO NOTHING`,
		e.ID, e.EntityType, e.EntityID, e.EmailType, e.Override, e.Status, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("claim %s email for %s %s: %w", e.EmailType, e.EntityType, e.EntityID, err)
	}
	return affected(res)
}

func (r *notificationRepo) SetEmailStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, "UPDATE email_events SET status = $2 WHERE id = $1", id, status)
	return err
}

func (r *notificationRepo) ListEmailEvents(ctx context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.EmailEvent, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return listEmailEvents(ctx, r.db, entity, entityID)
}

func listEmailEvents(ctx context.Context, db *sql.DB, entity domain.EntityType, entityID uuid.UUID) ([]domain.EmailEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, email_type, override, status, created_at
		FROM email_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at, id`,
		entity, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list email events: %w", err)
	}
	defer rows.Close()

	var events []domain.EmailEvent
	for rows.Next() {
		var e domain.EmailEvent
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.EmailType, &e.Override, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *notificationRepo) CreateAdminNotification(ctx context.Context, n *domain.AdminNotification) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_notifications (id, kind, title, message, entity_type, entity_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.Kind, n.Title, n.Message, n.EntityType, n.EntityID, n.Read, n.CreatedAt,
	)
	return err
}

func (r *notificationRepo) ListAdminNotifications(ctx context.Context, unreadOnly bool, limit int) ([]domain.AdminNotification, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, title, message, entity_type, entity_id, read, created_at
		FROM admin_notifications WHERE (NOT $1 OR NOT read) ORDER BY created_at DESC LIMIT $2`,
		unreadOnly, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AdminNotification
	for rows.Next() {
		var n domain.AdminNotification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Title, &n.Message, &n.EntityType, &n.EntityID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationRepo) MarkAdminNotificationRead(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, "UPDATE admin_notifications SET read = TRUE WHERE id = $1", id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
