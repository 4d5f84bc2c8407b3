// Package db owns the Postgres schema and shared error helpers.
package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id         TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name  TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id          BIGSERIAL PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		first_name  TEXT NOT NULL,
		last_name   TEXT NOT NULL,
		street      TEXT NOT NULL,
		street2     TEXT,
		city        TEXT NOT NULL,
		state       TEXT NOT NULL,
		zip_code    TEXT NOT NULL,
		country     TEXT NOT NULL DEFAULT 'USA',
		is_default  BOOLEAN NOT NULL DEFAULT false,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		category_id BIGINT NOT NULL REFERENCES categories(id),
		image       TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		brand       TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL,
		quantity    INT NOT NULL CHECK (quantity >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id          BIGSERIAL PRIMARY KEY,
		product_id  BIGINT NOT NULL REFERENCES products(id),
		customer_id TEXT NOT NULL REFERENCES customers(id),
		rating      INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		title       TEXT NOT NULL DEFAULT '',
		comment     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (product_id, customer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              BIGSERIAL PRIMARY KEY,
		customer_id     TEXT NOT NULL REFERENCES customers(id),
		total_cents     BIGINT NOT NULL,
		ship_address_id BIGINT NOT NULL REFERENCES addresses(id),
		status          INT NOT NULL DEFAULT 0,
		order_date      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id          BIGSERIAL PRIMARY KEY,
		order_id    BIGINT NOT NULL REFERENCES orders(id),
		product_id  BIGINT NOT NULL REFERENCES products(id),
		quantity    INT NOT NULL,
		price_cents BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_checkouts (
		ref            UUID PRIMARY KEY,
		customer_id    TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		address_id     BIGINT NOT NULL,
		lines          JSONB NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		tax_cents      BIGINT NOT NULL,
		total_cents    BIGINT NOT NULL,
		session_id     TEXT,
		session_url    TEXT,
		idempotency_key TEXT UNIQUE,
		consumed_at    TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_sessions (
		session_id TEXT PRIMARY KEY,
		order_id   BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id         BIGSERIAL PRIMARY KEY,
		event_id   TEXT NOT NULL UNIQUE,
		topic      TEXT NOT NULL,
		key        TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at    TIMESTAMPTZ
	)`,
}

// EnsureSchema creates all tables on startup. Every statement is
// IF NOT EXISTS, so repeated boots are no-ops.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres UNIQUE violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// fallback
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
