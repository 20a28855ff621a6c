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

const (
	maxItemQuantity     = 99
	orderNumberAttempts = 3
)

type OrderItemInput struct {
	Type     domain.ItemType
	RefID    uuid.UUID
	Quantity int
}

type CreateOrderInput struct {
	Caller          domain.Identity
	Customer        domain.Customer
	ShippingAddress string
	TaxID           string
	Items           []OrderItemInput
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, caller domain.Identity, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, caller domain.Identity, filter repo.OrderFilter) ([]domain.Order, error)
	UpdateFulfillment(ctx context.Context, caller domain.Identity, id uuid.UUID, from, to domain.FulfillmentStatus) error
}

type orderService struct {
	tx         repo.Transactor
	orderRepo  repo.OrderRepo
	catalog    repo.CatalogRepo
	shipping   domain.ShippingPolicy
	pendingTTL time.Duration
	now        func() time.Time
}

func NewOrderService(
	tx repo.Transactor,
	orderRepo repo.OrderRepo,
	catalog repo.CatalogRepo,
	shipping domain.ShippingPolicy,
	pendingTTL time.Duration,
) OrderService {
	return &orderService{
		tx:         tx,
		orderRepo:  orderRepo,
		catalog:    catalog,
		shipping:   shipping,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// CreateOrder prices the cart from the catalog, never from the client, and
// persists the pending order with its items in one transaction.
func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if in.Caller.Anonymous() {
		return nil, apperr.Unauthorized("sign in or provide a checkout session")
	}
	if len(in.Items) == 0 {
		return nil, apperr.Validation("order has no items")
	}

	items, err := s.priceItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	for attempt := 1; ; attempt++ {
		number, err := domain.NewOrderNumber(s.now())
		if err != nil {
			return nil, apperr.Internal(err)
		}
		order, err = domain.NewOrder(number, in.Customer, in.ShippingAddress, items, s.shipping, s.pendingTTL)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
		}
		order.UserID = in.Caller.UserRef()
		if order.UserID == nil {
			order.SessionID = in.Caller.SessionID
		}
		order.TaxID = in.TaxID

		err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			return s.orderRepo.CreateOrder(ctx, tx, order)
		})
		if err == nil {
			break
		}
		if repo.IsUniqueViolation(err, repo.OrderNumberConstraint) && attempt < orderNumberAttempts {
			log.WithField("order_number", number).Warn("order number collision, regenerating")
			continue
		}
		return nil, apperr.Internal(err)
	}

	log.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("order created")
	return order, nil
}

func (s *orderService) priceItems(ctx context.Context, inputs []OrderItemInput) ([]domain.OrderItem, error) {
	ids := map[domain.ItemType][]uuid.UUID{}
	for _, in := range inputs {
		if !in.Type.Valid() {
			return nil, apperr.Validation("unknown item type " + string(in.Type))
		}
		if in.Quantity < 1 || in.Quantity > maxItemQuantity {
			return nil, apperr.Validation("quantity must be between 1 and 99")
		}
		ids[in.Type] = append(ids[in.Type], in.RefID)
	}

	catalog := map[uuid.UUID]repo.CatalogItem{}
	for itemType, refs := range ids {
		found, err := s.catalog.FindItems(ctx, itemType, refs)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		for id, item := range found {
			catalog[id] = item
		}
	}

	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		entry, ok := catalog[in.RefID]
		if !ok || entry.Type != in.Type || !entry.Active {
			return nil, apperr.Validation("item " + in.RefID.String() + " is not available")
		}
		ref := entry.ID
		item, err := domain.NewOrderItem(uuid.Nil, in.Type, &ref, entry.Name, in.Quantity, entry.Price)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *orderService) GetOrder(ctx context.Context, caller domain.Identity, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order not found")
	}
	if !order.OwnedBy(caller) {
		// Same answer as a missing order so ids cannot be enumerated.
		return nil, apperr.NotFound("order not found")
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, caller domain.Identity, filter repo.OrderFilter) ([]domain.Order, error) {
	if !caller.IsAdmin() {
		if !caller.Authenticated() {
			return nil, apperr.Unauthorized("sign in to list orders")
		}
		filter.UserID = caller.UserRef()
	}
	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return orders, nil
}

func (s *orderService) UpdateFulfillment(ctx context.Context, caller domain.Identity, id uuid.UUID, from, to domain.FulfillmentStatus) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden("admin only")
	}
	if !from.Valid() || !to.Valid() {
		return apperr.Validation("unknown fulfillment status")
	}

	var updated bool
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = s.orderRepo.UpdateFulfillmentStatus(ctx, tx, id, from, to)
		return err
	})
	if err != nil {
		return apperr.Internal(err)
	}
	if !updated {
		if _, err := s.orderRepo.FindById(ctx, id); errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("order not found")
		}
		return apperr.Conflict("fulfillment status changed, reload and retry")
	}
	return nil
}
