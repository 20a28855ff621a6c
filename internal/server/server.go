package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/config"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/service"
)

type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type IdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Orders        service.OrderService
	Payments      service.PaymentService
	Notifications service.NotificationService
	Bookings      service.BookingService
	CustomOrders  service.CustomOrderService
	Tokens        IdentityVerifier
	Health        HealthChecker
}

type Server struct {
	deps   Deps
	router *gin.Engine
	http   *http.Server
}

func NewServer(cfg config.HTTPConfig, deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", sessionHeader)
	corsCfg.ExposeHeaders = []string{"Retry-After"}
	router.Use(cors.New(corsCfg))

	s := &Server{
		deps:   deps,
		router: router,
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api", s.identify())
	{
		api.POST("/orders", s.handleCreateOrder)
		api.GET("/orders", s.handleListOrders)
		api.GET("/orders/:id", s.handleGetOrder)

		api.POST("/payments/begin", s.handleBeginPayment)
		api.POST("/payments/verify", s.handleVerifyPayment)
		api.POST("/payments/cancel", s.handleCancelPayment)

		api.POST("/notifications/order-confirmation", s.handleOrderConfirmation)

		api.POST("/bookings", s.handleCreateBooking)
		api.GET("/bookings", s.handleListBookings)

		api.POST("/custom-orders", s.handleCreateCustomOrder)
		api.GET("/custom-orders", s.handleListCustomOrders)
		api.GET("/custom-orders/:id", s.handleGetCustomOrder)
	}

	admin := api.Group("/admin", requireAdmin())
	{
		admin.GET("/orders", s.handleListOrders)
		admin.PATCH("/orders/:id/fulfillment", s.handleUpdateFulfillment)
		admin.PATCH("/bookings/:id/status", s.handleUpdateBookingStatus)
		admin.GET("/custom-orders", s.handleListCustomOrders)
		admin.PATCH("/custom-orders/:id/status", s.handleUpdateCustomOrderStatus)
		admin.POST("/custom-orders/:id/quote", s.handleQuoteCustomOrder)
		admin.POST("/custom-orders/:id/emails", s.handleCustomOrderEmail)
		admin.POST("/emails", s.handleSendEmail)
		admin.GET("/notifications", s.handleListAdminNotifications)
		admin.PATCH("/notifications/:id/read", s.handleMarkNotificationRead)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.http.Addr).Info("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.deps.Health.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
