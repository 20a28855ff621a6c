package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/auth"
	"studio-checkout/internal/config"
	"studio-checkout/internal/database"
	"studio-checkout/internal/infrastructure/events"
	"studio-checkout/internal/infrastructure/mail"
	"studio-checkout/internal/infrastructure/payment"
	"studio-checkout/internal/infrastructure/ratelimit"
	"studio-checkout/internal/repo"
	"studio-checkout/internal/server"
	"studio-checkout/internal/service"
	"studio-checkout/internal/worker"
)

// app holds every long-lived collaborator. Close releases them in reverse
// order of acquisition.
type app struct {
	db        database.Service
	redis     *redis.Client
	publisher events.Publisher
	server    *server.Server
	worker    *worker.ReconciliationWorker
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.New(ctx, database.Options{
		DSN:          cfg.Database.DSN(),
		Name:         cfg.Database.Database,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	limiter, err := a.newLimiter(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.publisher, err = newPublisher(cfg.Kafka); err != nil {
		a.Close()
		return nil, err
	}
	shipping, err := cfg.Pricing.Shipping()
	if err != nil {
		a.Close()
		return nil, err
	}
	experiences, err := cfg.Pricing.ExperiencePricing()
	if err != nil {
		a.Close()
		return nil, err
	}

	sqlDB := db.DB()
	deadline := repo.WithQueryTimeout(cfg.Database.QueryTimeout)
	tx := repo.NewTransactor(sqlDB, deadline)
	orderRepo := repo.NewOrderRepo(sqlDB, deadline)
	bookingRepo := repo.NewBookingRepo(sqlDB, deadline)
	customRepo := repo.NewCustomOrderRepo(sqlDB, deadline)
	gateway := newGateway(cfg.Gateway)

	notifications := service.NewNotificationService(
		orderRepo, bookingRepo, customRepo, repo.NewNotificationRepo(sqlDB, deadline),
		limiter, newMailer(cfg.Mail),
		service.NotificationConfig{
			RateLimit:  cfg.Notifications.RateLimit,
			RateWindow: cfg.Notifications.RateWindow,
			Cooldown:   cfg.Notifications.Cooldown,
			AdminEmail: cfg.Mail.AdminEmail,
		},
	)

	a.server = server.NewServer(cfg.HTTP, server.Deps{
		Orders:   service.NewOrderService(tx, orderRepo, repo.NewCatalogRepo(sqlDB, deadline), shipping, cfg.Payments.PendingTTL),
		Bookings: service.NewBookingService(tx, bookingRepo, experiences, cfg.Pricing.MaxGuests),
		Payments: service.NewPaymentService(tx, repo.NewPaymentRepo(sqlDB, deadline), gateway, notifications, a.publisher,
			service.PaymentConfig{Currency: cfg.Gateway.Currency, Secret: cfg.Gateway.KeySecret}),
		Notifications: notifications,
		CustomOrders:  service.NewCustomOrderService(tx, customRepo, notifications),
		Tokens:        auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		Health:        a,
	})
	a.worker = worker.NewReconciliationWorker(tx, orderRepo, bookingRepo, gateway, notifications,
		cfg.Sweep.Interval, cfg.Sweep.BatchSize)

	return a, nil
}

func (a *app) newLimiter(ctx context.Context, c config.RedisConfig) (ratelimit.Limiter, error) {
	if c.Addr == "" {
		log.Warn("redis not configured, rate limits are per process")
		return ratelimit.NewMemoryLimiter(), nil
	}
	a.redis = ratelimit.NewRedisClient(c.Addr, c.Password, c.DB)
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return ratelimit.NewRedisLimiter(a.redis, "studio:"), nil
}

func newPublisher(c config.KafkaConfig) (events.Publisher, error) {
	if len(c.Brokers) == 0 {
		return events.LogPublisher{}, nil
	}
	publisher, err := events.NewKafkaPublisher(c.Brokers, c.Topic)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func newMailer(c config.MailConfig) mail.Mailer {
	if c.Host == "" {
		log.Warn("smtp not configured, emails are logged only")
		return mail.LogMailer{}
	}
	return mail.NewSMTPMailer(c.Host, c.Port, c.Username, c.Password, c.From)
}

func newGateway(c config.GatewayConfig) payment.PaymentGateway {
	if c.Provider == "mock" {
		log.Warn("using the in-process mock payment gateway")
		return payment.NewMockGateway(c.KeyID, c.KeySecret)
	}
	return payment.NewRazorpayGateway(c.BaseURL, c.KeyID, c.KeySecret, c.Timeout)
}

// Health extends the database report with the shared rate limit store.
func (a *app) Health(ctx context.Context) map[string]string {
	stats := a.db.Health(ctx)
	if a.redis == nil {
		return stats
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["redis"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}
	stats["redis"] = "up"
	return stats
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.WithError(err).Warn("close publisher")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("close redis")
		}
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("close database")
	}
}
