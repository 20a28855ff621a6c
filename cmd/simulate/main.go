package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"studio-checkout/internal/auth"
	"studio-checkout/internal/checkout"
	"studio-checkout/internal/config"
	"studio-checkout/internal/database"
	"studio-checkout/internal/domain"
	"studio-checkout/internal/infrastructure/events"
	"studio-checkout/internal/infrastructure/mail"
	"studio-checkout/internal/infrastructure/payment"
	"studio-checkout/internal/infrastructure/ratelimit"
	"studio-checkout/internal/repo"
	"studio-checkout/internal/server"
	"studio-checkout/internal/service"
	"studio-checkout/internal/worker"
)

func main() {
	var (
		configPath string
		orders     int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive customers through checkout against the mock gateway and sweep the leftovers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, orders)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to studio.yaml")
	cmd.Flags().IntVarP(&orders, "orders", "n", 20, "number of simulated checkouts")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stack is the whole service wired against the mock gateway, served on a
// loopback listener so customers go through the real HTTP surface.
type stack struct {
	db      database.Service
	gateway *payment.MockGateway
	catalog repo.CatalogRepo
	orders  repo.OrderRepo
	tokens  *auth.TokenVerifier
	worker  *worker.ReconciliationWorker
	baseURL string
}

func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	db, err := database.New(ctx, database.Options{DSN: cfg.Database.DSN(), Name: cfg.Database.Database})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	shipping, err := cfg.Pricing.Shipping()
	if err != nil {
		return nil, err
	}
	experiences, err := cfg.Pricing.ExperiencePricing()
	if err != nil {
		return nil, err
	}

	sqlDB := db.DB()
	deadline := repo.WithQueryTimeout(cfg.Database.QueryTimeout)
	tx := repo.NewTransactor(sqlDB, deadline)
	s := &stack{
		db:      db,
		gateway: payment.NewMockGateway("rzp_test_simulator", cfg.Gateway.KeySecret).WithLatency(50 * time.Millisecond),
		catalog: repo.NewCatalogRepo(sqlDB, deadline),
		orders:  repo.NewOrderRepo(sqlDB, deadline),
		tokens:  auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
	}
	bookings := repo.NewBookingRepo(sqlDB, deadline)
	custom := repo.NewCustomOrderRepo(sqlDB, deadline)

	notifications := service.NewNotificationService(s.orders, bookings, custom, repo.NewNotificationRepo(sqlDB, deadline),
		ratelimit.NewMemoryLimiter(), mail.LogMailer{},
		service.NotificationConfig{
			RateLimit:  cfg.Notifications.RateLimit,
			RateWindow: cfg.Notifications.RateWindow,
			Cooldown:   cfg.Notifications.Cooldown,
		})

	srv := server.NewServer(cfg.HTTP, server.Deps{
		Orders:        service.NewOrderService(tx, s.orders, s.catalog, shipping, time.Second),
		Bookings:      service.NewBookingService(tx, bookings, experiences, cfg.Pricing.MaxGuests),
		Payments:      service.NewPaymentService(tx, repo.NewPaymentRepo(sqlDB, deadline), s.gateway, notifications, events.LogPublisher{}, service.PaymentConfig{Secret: cfg.Gateway.KeySecret}),
		Notifications: notifications,
		CustomOrders:  service.NewCustomOrderService(tx, custom, notifications),
		Tokens:        s.tokens,
		Health:        db,
	})
	s.worker = worker.NewReconciliationWorker(tx, s.orders, bookings, s.gateway, notifications, time.Second, 100)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	go func() {
		if err := http.Serve(ln, srv.Handler()); err != nil {
			log.WithError(err).Debug("simulator listener closed")
		}
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.baseURL = "http://" + ln.Addr().String()
	return s, nil
}

type tally struct {
	paid, dismissed, cancelled, retryable, support int
}

func run(ctx context.Context, configPath string, n int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.db.Close()

	mug := repo.CatalogItem{ID: uuid.New(), Type: domain.ItemProduct, Name: "Speckled Mug", Price: decimal.NewFromInt(650), Active: true}
	if err := s.catalog.UpsertItem(ctx, mug); err != nil {
		return err
	}

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", n)
	var t tally
	for i := 0; i < n; i++ {
		if err := s.customer(ctx, i+1, mug.ID, &t); err != nil {
			log.WithError(err).Error("customer could not place an order")
		}
		fmt.Println("---------------------------------------------------")
	}

	// Let the pending orders outlive their one-second window, then sweep.
	time.Sleep(2 * time.Second)
	res, err := s.worker.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Println("--- SUMMARY ---")
	fmt.Printf("paid=%d dismissed=%d cancelled=%d retryable=%d contact-support=%d\n",
		t.paid, t.dismissed, t.cancelled, t.retryable, t.support)
	fmt.Printf("sweep: expired=%d needs-review=%d errors=%d\n", res.OrdersExpired, res.NeedsReview, res.Errors)
	return nil
}

// customer places one order and pays for it the way a real shopper might:
// most pay, some close the checkout, some hit the gateway's failure modes.
func (s *stack) customer(ctx context.Context, n int, productID uuid.UUID, t *tally) error {
	id := domain.Identity{UserID: uuid.New(), Email: fmt.Sprintf("customer%02d@example.com", n)}
	token, err := s.tokens.Issue(id, time.Hour)
	if err != nil {
		return err
	}
	client := checkout.NewClient(s.baseURL, checkout.WithBearer(token))

	order, err := client.CreateOrder(ctx, checkout.OrderRequest{
		Customer:        checkout.Customer{Name: fmt.Sprintf("Customer %02d", n), Email: id.Email, Phone: "9800000000"},
		ShippingAddress: "12 Kiln Lane, Pune",
		Items:           []checkout.Item{{Type: string(domain.ItemProduct), RefID: productID, Quantity: 1 + n%3}},
	})
	if err != nil {
		return err
	}
	fmt.Printf("[%d] Order %s total %s ... ", n, order.OrderNumber, order.TotalAmount)

	session := checkout.NewSession(client, domain.PayableOrder, order.ID)
	surface := checkout.SurfaceFunc(func(ctx context.Context, gs domain.Session) (checkout.Outcome, error) {
		switch roll := rand.IntN(100); {
		case roll < 10:
			return checkout.Outcome{Dismissed: true}, nil
		case roll < 15:
			c, err := s.gateway.Pay(ctx, gs.GatewayOrderID, payment.PaySuccess)
			if err != nil {
				return checkout.Outcome{}, err
			}
			c.Signature = tamper(c.Signature)
			return checkout.Outcome{Completion: &c}, nil
		default:
			c, err := s.gateway.Pay(ctx, gs.GatewayOrderID, payment.PayRandom)
			if err != nil {
				return checkout.Outcome{}, err
			}
			return checkout.Outcome{Completion: &c}, nil
		}
	})

	err = session.Run(ctx, surface)
	switch {
	case err == nil:
		t.paid++
		fmt.Println("PAID")
		// A second confirmation request lands inside the cooldown.
		res, err := client.RequestOrderConfirmation(ctx, order.ID)
		if err == nil {
			fmt.Printf("    -> duplicate confirmation suppressed=%t alreadySent=%t\n", res.Suppressed, res.AlreadySent)
		}
	case errors.Is(err, checkout.ErrDismissed):
		if n%2 == 0 {
			if err := session.Cancel(ctx); err == nil {
				t.cancelled++
				fmt.Println("DISMISSED, CANCELLED")
				break
			}
		}
		t.dismissed++
		fmt.Println("DISMISSED, LEFT PENDING")
	case errors.Is(err, checkout.ErrRetryable):
		t.retryable++
		fmt.Printf("FAILED (retryable): %v\n", err)
	case errors.Is(err, checkout.ErrContactSupport):
		t.support++
		fmt.Println("NOT VERIFIED, CONTACT SUPPORT")
	default:
		return err
	}

	fresh, err := s.orders.FindById(ctx, order.ID)
	if err != nil {
		return err
	}
	fmt.Printf("    -> DB Status: %s (session %s)\n", fresh.PaymentStatus, session.State())
	return nil
}

func tamper(sig string) string {
	b := []byte(sig)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}
