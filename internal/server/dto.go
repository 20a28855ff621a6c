package server

import (
	"time"

	"github.com/google/uuid"

	"studio-checkout/internal/domain"
	"studio-checkout/internal/service"
)

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requests

type customerDTO struct {
	Name  string `json:"name" binding:"required,max=120"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"required,min=7,max=20"`
}

type orderItemDTO struct {
	Type     string `json:"type" binding:"required,oneof=product workshop"`
	RefID    string `json:"refId" binding:"required,uuid"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=99"`
}

type createOrderRequest struct {
	Customer        customerDTO    `json:"customer" binding:"required"`
	ShippingAddress string         `json:"shippingAddress" binding:"required,max=500"`
	TaxID           string         `json:"taxId" binding:"omitempty,max=32"`
	Items           []orderItemDTO `json:"items" binding:"required,min=1,max=50,dive"`
}

type payableRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=order booking"`
	LocalID string `json:"localId" binding:"required,uuid"`
}

type verifyPaymentRequest struct {
	Kind             string `json:"kind" binding:"omitempty,oneof=order booking"`
	LocalOrderID     string `json:"localOrderId" binding:"required,uuid"`
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required,max=64"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required,max=64"`
	Signature        string `json:"signature" binding:"required,max=128"`
}

type orderConfirmationRequest struct {
	OrderID string `json:"orderId" binding:"required,uuid"`
}

type createBookingRequest struct {
	CustomerName   string `json:"customerName" binding:"required,max=120"`
	ExperienceType string `json:"experienceType" binding:"required,oneof=couple birthday farm studio"`
	BookingDate    string `json:"bookingDate" binding:"required,datetime=2006-01-02"`
	TimeSlot       string `json:"timeSlot" binding:"required,max=40"`
	Guests         int    `json:"guests" binding:"required,min=1"`
	Notes          string `json:"notes" binding:"omitempty,max=1000"`
}

type createCustomOrderRequest struct {
	RequesterName   string   `json:"requesterName" binding:"required,max=120"`
	Size            string   `json:"size" binding:"required,max=120"`
	Usage           string   `json:"usage" binding:"required,max=240"`
	Notes           string   `json:"notes" binding:"omitempty,max=2000"`
	ReferenceImages []string `json:"referenceImages" binding:"omitempty,max=5,dive,url"`
}

type statusChangeRequest struct {
	From       string `json:"from" binding:"required"`
	To         string `json:"to" binding:"required"`
	AdminNotes string `json:"adminNotes" binding:"omitempty,max=2000"`
}

type quoteRequest struct {
	From              string `json:"from" binding:"required"`
	EstimatedPrice    string `json:"estimatedPrice" binding:"required,numeric"`
	EstimatedDelivery string `json:"estimatedDelivery" binding:"omitempty,datetime=2006-01-02"`
	AdminNotes        string `json:"adminNotes" binding:"omitempty,max=2000"`
}

type emailRequest struct {
	EntityType string `json:"entityType" binding:"omitempty,oneof=order booking custom_order"`
	EntityID   string `json:"entityId" binding:"omitempty,uuid"`
	EmailType  string `json:"emailType" binding:"required"`
	Override   bool   `json:"override"`
}

// responses

type orderItemResponse struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	RefID      *uuid.UUID `json:"refId,omitempty"`
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	UnitPrice  string     `json:"unitPrice"`
	TotalPrice string     `json:"totalPrice"`
}

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	CustomerName      string              `json:"customerName"`
	CustomerEmail     string              `json:"customerEmail"`
	CustomerPhone     string              `json:"customerPhone"`
	ShippingAddress   string              `json:"shippingAddress"`
	TaxID             string              `json:"taxId,omitempty"`
	Subtotal          string              `json:"subtotal"`
	ShippingCost      string              `json:"shippingCost"`
	TotalAmount       string              `json:"totalAmount"`
	PaymentStatus     string              `json:"paymentStatus"`
	FulfillmentStatus string              `json:"fulfillmentStatus"`
	ExpiresAt         time.Time           `json:"expiresAt"`
	NeedsReview       bool                `json:"needsReview,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	Items             []orderItemResponse `json:"items"`
}

func newOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		CustomerName:      o.Customer.Name,
		CustomerEmail:     o.Customer.Email,
		CustomerPhone:     o.Customer.Phone,
		ShippingAddress:   o.ShippingAddress,
		TaxID:             o.TaxID,
		Subtotal:          o.Subtotal.StringFixed(2),
		ShippingCost:      o.ShippingCost.StringFixed(2),
		TotalAmount:       o.TotalAmount.StringFixed(2),
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		ExpiresAt:         o.ExpiresAt,
		NeedsReview:       o.NeedsReview,
		CreatedAt:         o.CreatedAt,
		Items:             make([]orderItemResponse, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:         item.ID,
			Type:       string(item.ItemType),
			RefID:      item.ItemRef,
			Name:       item.ItemName,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			TotalPrice: item.TotalPrice.StringFixed(2),
		})
	}
	return resp
}

type bookingResponse struct {
	ID             uuid.UUID `json:"id"`
	Reference      string    `json:"reference"`
	ExperienceType string    `json:"experienceType"`
	BookingDate    string    `json:"bookingDate"`
	TimeSlot       string    `json:"timeSlot"`
	Guests         int       `json:"guests"`
	Notes          string    `json:"notes,omitempty"`
	TotalAmount    string    `json:"totalAmount"`
	PaymentStatus  string    `json:"paymentStatus"`
	BookingStatus  string    `json:"bookingStatus"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newBookingResponse(b *domain.ExperienceBooking) bookingResponse {
	return bookingResponse{
		ID:             b.ID,
		Reference:      b.Payable().Reference,
		ExperienceType: string(b.ExperienceType),
		BookingDate:    b.BookingDate.Format("2006-01-02"),
		TimeSlot:       b.TimeSlot,
		Guests:         b.Guests,
		Notes:          b.Notes,
		TotalAmount:    b.TotalAmount.StringFixed(2),
		PaymentStatus:  string(b.PaymentStatus),
		BookingStatus:  string(b.BookingStatus),
		CreatedAt:      b.CreatedAt,
	}
}

type emailEventResponse struct {
	EmailType string    `json:"emailType"`
	Status    string    `json:"status"`
	Override  bool      `json:"override"`
	CreatedAt time.Time `json:"createdAt"`
}

type customOrderResponse struct {
	ID                uuid.UUID            `json:"id"`
	RequesterName     string               `json:"requesterName"`
	RequesterEmail    string               `json:"requesterEmail"`
	Size              string               `json:"size"`
	Usage             string               `json:"usage"`
	Notes             string               `json:"notes,omitempty"`
	ReferenceImages   []string             `json:"referenceImages"`
	Status            string               `json:"status"`
	EstimatedPrice    *string              `json:"estimatedPrice,omitempty"`
	EstimatedDelivery *string              `json:"estimatedDelivery,omitempty"`
	AdminNotes        string               `json:"adminNotes,omitempty"`
	EmailsSent        []emailEventResponse `json:"emailsSent,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

func newCustomOrderResponse(r *domain.CustomOrderRequest) customOrderResponse {
	resp := customOrderResponse{
		ID:              r.ID,
		RequesterName:   r.RequesterName,
		RequesterEmail:  r.RequesterEmail,
		Size:            r.Size,
		Usage:           r.Usage,
		Notes:           r.Notes,
		ReferenceImages: r.ReferenceImages,
		Status:          string(r.Status),
		AdminNotes:      r.AdminNotes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if resp.ReferenceImages == nil {
		resp.ReferenceImages = []string{}
	}
	if r.EstimatedPrice.Valid {
		price := r.EstimatedPrice.Decimal.StringFixed(2)
		resp.EstimatedPrice = &price
	}
	if r.EstimatedDelivery != nil {
		date := r.EstimatedDelivery.Format("2006-01-02")
		resp.EstimatedDelivery = &date
	}
	for _, e := range r.EmailsSent {
		resp.EmailsSent = append(resp.EmailsSent, emailEventResponse{
			EmailType: string(e.EmailType),
			Status:    string(e.Status),
			Override:  e.Override,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp
}

type dispatchResponse struct {
	Success     bool `json:"success"`
	Suppressed  bool `json:"suppressed"`
	AlreadySent bool `json:"alreadySent"`
}

func newDispatchResponse(r service.DispatchResult) dispatchResponse {
	return dispatchResponse{Success: true, Suppressed: r.Suppressed, AlreadySent: r.AlreadySent}
}

type adminNotificationResponse struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	EntityType string    `json:"entityType"`
	EntityID   uuid.UUID `json:"entityId"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}
