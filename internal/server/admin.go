package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/service"
)

func (s *Server) handleUpdateFulfillment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusChangeRequest
	if !bind(c, &req) {
		return
	}
	err := s.deps.Orders.UpdateFulfillment(c.Request.Context(), caller(c), id,
		domain.FulfillmentStatus(req.From), domain.FulfillmentStatus(req.To))
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateBookingStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusChangeRequest
	if !bind(c, &req) {
		return
	}
	err := s.deps.Bookings.UpdateStatus(c.Request.Context(), caller(c), id,
		domain.BookingStatus(req.From), domain.BookingStatus(req.To))
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateCustomOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusChangeRequest
	if !bind(c, &req) {
		return
	}
	err := s.deps.CustomOrders.Transition(c.Request.Context(), caller(c), id,
		domain.CustomOrderStatus(req.From), domain.CustomOrderStatus(req.To), req.AdminNotes)
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleQuoteCustomOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req quoteRequest
	if !bind(c, &req) {
		return
	}
	price, err := decimal.NewFromString(req.EstimatedPrice)
	if err != nil {
		fail(c, apperr.Validation("estimatedPrice must be a number"))
		return
	}
	in := service.QuoteInput{
		From:       domain.CustomOrderStatus(req.From),
		Price:      price,
		AdminNotes: req.AdminNotes,
	}
	if req.EstimatedDelivery != "" {
		date, err := time.Parse("2006-01-02", req.EstimatedDelivery)
		if err != nil {
			fail(c, apperr.Validation("estimatedDelivery must be YYYY-MM-DD"))
			return
		}
		in.Delivery = &date
	}
	if err := s.deps.CustomOrders.Quote(c.Request.Context(), caller(c), id, in); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCustomOrderEmail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	s.sendEmail(c, service.EmailRequest{
		EntityType: domain.EntityCustomOrder,
		EntityID:   id,
		EmailType:  domain.EmailType(req.EmailType),
		Override:   req.Override,
	})
}

func (s *Server) handleSendEmail(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	if req.EntityType == "" || req.EntityID == "" {
		fail(c, apperr.Validation("entityType and entityId are required"))
		return
	}
	id, ok := bodyID(c, "entityId", req.EntityID)
	if !ok {
		return
	}
	s.sendEmail(c, service.EmailRequest{
		EntityType: domain.EntityType(req.EntityType),
		EntityID:   id,
		EmailType:  domain.EmailType(req.EmailType),
		Override:   req.Override,
	})
}

func (s *Server) sendEmail(c *gin.Context, req service.EmailRequest) {
	res, err := s.deps.Notifications.SendEmail(c.Request.Context(), caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDispatchResponse(res))
}

func (s *Server) handleListAdminNotifications(c *gin.Context) {
	unread := c.Query("unread") == "true"
	notes, err := s.deps.Notifications.ListAdminNotifications(c.Request.Context(), caller(c), unread, queryInt(c, "limit", 100))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]adminNotificationResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, adminNotificationResponse{
			ID:         n.ID,
			Kind:       n.Kind,
			Title:      n.Title,
			Message:    n.Message,
			EntityType: string(n.EntityType),
			EntityID:   n.EntityID,
			Read:       n.Read,
			CreatedAt:  n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.deps.Notifications.MarkAdminNotificationRead(c.Request.Context(), caller(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
