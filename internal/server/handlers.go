package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/repo"
	"studio-checkout/internal/service"
)

// orders

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if !bind(c, &req) {
		return
	}

	in := service.CreateOrderInput{
		Caller: caller(c),
		Customer: domain.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		ShippingAddress: req.ShippingAddress,
		TaxID:           req.TaxID,
	}
	for _, item := range req.Items {
		ref, ok := bodyID(c, "items.refId", item.RefID)
		if !ok {
			return
		}
		in.Items = append(in.Items, service.OrderItemInput{
			Type:     domain.ItemType(item.Type),
			RefID:    ref,
			Quantity: item.Quantity,
		})
	}

	order, err := s.deps.Orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (s *Server) handleGetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := s.deps.Orders.GetOrder(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (s *Server) handleListOrders(c *gin.Context) {
	filter := repo.OrderFilter{
		PaymentStatus: domain.PaymentStatus(c.Query("payment_status")),
		Limit:         queryInt(c, "limit", 50),
		Offset:        queryInt(c, "offset", 0),
	}
	orders, err := s.deps.Orders.ListOrders(c.Request.Context(), caller(c), filter)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, out)
}

// payments

func (s *Server) handleBeginPayment(c *gin.Context) {
	var req payableRequest
	if !bind(c, &req) {
		return
	}
	id, ok := bodyID(c, "localId", req.LocalID)
	if !ok {
		return
	}
	session, err := s.deps.Payments.BeginPayment(c.Request.Context(), caller(c), domain.PayableKind(req.Kind), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// handleVerifyPayment answers with a plain verdict. The outcome detail is
// logged server side and not echoed to the client.
func (s *Server) handleVerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if !bind(c, &req) {
		return
	}
	id, ok := bodyID(c, "localOrderId", req.LocalOrderID)
	if !ok {
		return
	}
	kind := domain.PayableOrder
	if req.Kind != "" {
		kind = domain.PayableKind(req.Kind)
	}
	result, err := s.deps.Payments.Verify(c.Request.Context(), service.VerifyRequest{
		Kind:             kind,
		LocalID:          id,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": result.Verified})
}

func (s *Server) handleCancelPayment(c *gin.Context) {
	var req payableRequest
	if !bind(c, &req) {
		return
	}
	id, ok := bodyID(c, "localId", req.LocalID)
	if !ok {
		return
	}
	if err := s.deps.Payments.Cancel(c.Request.Context(), caller(c), domain.PayableKind(req.Kind), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// notifications

func (s *Server) handleOrderConfirmation(c *gin.Context) {
	var req orderConfirmationRequest
	if !bind(c, &req) {
		return
	}
	id, ok := bodyID(c, "orderId", req.OrderID)
	if !ok {
		return
	}
	res, err := s.deps.Notifications.RequestOrderConfirmation(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDispatchResponse(res))
}

// bookings

func (s *Server) handleCreateBooking(c *gin.Context) {
	var req createBookingRequest
	if !bind(c, &req) {
		return
	}
	date, err := time.Parse("2006-01-02", req.BookingDate)
	if err != nil {
		fail(c, apperr.Validation("bookingDate must be YYYY-MM-DD"))
		return
	}
	booking, err := s.deps.Bookings.CreateBooking(c.Request.Context(), service.CreateBookingInput{
		Caller:         caller(c),
		CustomerName:   req.CustomerName,
		ExperienceType: domain.ExperienceType(req.ExperienceType),
		BookingDate:    date,
		TimeSlot:       req.TimeSlot,
		Guests:         req.Guests,
		Notes:          req.Notes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(booking))
}

func (s *Server) handleListBookings(c *gin.Context) {
	bookings, err := s.deps.Bookings.ListBookings(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, newBookingResponse(&bookings[i]))
	}
	c.JSON(http.StatusOK, out)
}

// custom orders

func (s *Server) handleCreateCustomOrder(c *gin.Context) {
	var req createCustomOrderRequest
	if !bind(c, &req) {
		return
	}
	created, err := s.deps.CustomOrders.Create(c.Request.Context(), service.CreateCustomOrderInput{
		Caller:          caller(c),
		RequesterName:   req.RequesterName,
		Size:            req.Size,
		Usage:           req.Usage,
		Notes:           req.Notes,
		ReferenceImages: req.ReferenceImages,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCustomOrderResponse(created))
}

func (s *Server) handleListCustomOrders(c *gin.Context) {
	list, err := s.deps.CustomOrders.List(c.Request.Context(), caller(c), domain.CustomOrderStatus(c.Query("status")))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]customOrderResponse, 0, len(list))
	for i := range list {
		out = append(out, newCustomOrderResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetCustomOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	got, err := s.deps.CustomOrders.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCustomOrderResponse(got))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
