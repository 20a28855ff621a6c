package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

// Service owns the connection pool and the embedded schema.
type Service interface {
	// Health reports "status" as "up" or "down" plus pool and backlog
	// figures for the /health endpoint.
	Health(ctx context.Context) map[string]string

	// DB exposes the pool for repositories.
	DB() *sql.DB

	// Migrate applies the schema. Every statement is idempotent.
	Migrate(ctx context.Context) error

	Close() error
}

type service struct {
	db   *sql.DB
	name string
}

type Options struct {
	DSN          string
	Name         string
	MaxOpenConns int
}

func New(ctx context.Context, opts Options) (Service, error) {
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &service{db: db, name: opts.Name}, nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Printf("Schema applied to database: %s", s.name)
	return nil
}

// Health pings the pool and reports whether the schema is in place, plus
// the pool counters and the backlog of orders still awaiting payment.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		log.WithError(err).Error("database unreachable")
		return map[string]string{"status": "down", "error": fmt.Sprintf("db down: %v", err)}
	}

	pool := s.db.Stats()
	stats := map[string]string{
		"status":           "up",
		"database":         s.name,
		"open_connections": strconv.Itoa(pool.OpenConnections),
		"in_use":           strconv.Itoa(pool.InUse),
		"wait_count":       strconv.FormatInt(pool.WaitCount, 10),
	}

	var ordersTable sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass('orders')::text`).Scan(&ordersTable); err != nil || !ordersTable.Valid {
		stats["status"] = "down"
		stats["error"] = "schema not applied, run studio migrate"
		return stats
	}

	var pending int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM orders WHERE payment_status = 'pending'`).Scan(&pending); err == nil {
		stats["pending_orders"] = strconv.FormatInt(pending, 10)
	}

	if limit := pool.MaxOpenConnections; limit > 0 && pool.InUse >= limit {
		stats["message"] = "connection pool saturated"
	}
	return stats
}

func (s *service) Close() error {
	log.Printf("Disconnected from database: %s", s.name)
	return s.db.Close()
}
