// Package order materializes and queries orders. Orders are created exactly
// once, by the payment webhook consumer, as a single transaction covering
// the order row, its items, the inventory decrement, the session idempotency
// record and the outbox event.
package order

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/internal/catalog"
	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/pkg/contracts"
	"github.com/nazeru/shop-backend-go/pkg/outbox"
)

type Store struct {
	pool  *pgxpool.Pool
	topic string
}

func NewStore(pool *pgxpool.Pool, eventTopic string) *Store {
	return &Store{pool: pool, topic: eventTopic}
}

type MaterializeParams struct {
	SessionID  string
	CustomerID domain.CustomerID
	AddressID  domain.AddressID
	// TotalCents is the processor-reported charged amount.
	TotalCents int64
	// Ref and Lines come from the pending_checkouts record; item prices are
	// the frozen checkout-time prices.
	Ref   string
	Lines []checkout.PricedLine
}

// Materialize creates the order for a completed session. The session id is
// the idempotency key: a redelivered event finds the order_sessions row
// already present and returns the first order untouched (created=false).
func (s *Store) Materialize(ctx context.Context, p MaterializeParams) (domain.OrderID, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO order_sessions(session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING`, p.SessionID)
	if err != nil {
		return 0, false, err
	}
	if tag.RowsAffected() == 0 {
		// Duplicate delivery. The first transaction won; report its order.
		var existing domain.OrderID
		err := s.pool.QueryRow(ctx, `SELECT order_id FROM order_sessions WHERE session_id=$1`, p.SessionID).Scan(&existing)
		if err != nil {
			return 0, false, err
		}
		return existing, false, nil
	}

	var orderID domain.OrderID
	err = tx.QueryRow(ctx,
		`INSERT INTO orders(customer_id, total_cents, ship_address_id, status) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.CustomerID, p.TotalCents, p.AddressID, domain.OrderStatusProcessing).Scan(&orderID)
	if err != nil {
		return 0, false, err
	}

	for _, line := range p.Lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items(order_id, product_id, quantity, price_cents) VALUES ($1, $2, $3, $4)`,
			orderID, line.ProductID, line.Quantity, line.UnitPriceCents*int64(line.Quantity))
		if err != nil {
			return 0, false, err
		}
		if err := catalog.DecrementInventory(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return 0, false, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE order_sessions SET order_id=$2 WHERE session_id=$1`, p.SessionID, orderID); err != nil {
		return 0, false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE pending_checkouts SET consumed_at=now() WHERE ref=$1`, p.Ref); err != nil {
		return 0, false, err
	}

	deducted := make([]map[string]any, 0, len(p.Lines))
	for _, line := range p.Lines {
		deducted = append(deducted, map[string]any{
			"product_id": int64(line.ProductID),
			"quantity":   line.Quantity,
		})
	}
	events := []contracts.Event{
		{
			EventID:   uuid.NewString(),
			OrderID:   strconv.FormatInt(int64(orderID), 10),
			SessionID: p.SessionID,
			CreatedAt: time.Now().UTC(),
			Type:      contracts.EventOrderCreated,
			Payload: map[string]any{
				"customer_id": string(p.CustomerID),
				"total_cents": p.TotalCents,
			},
		},
		{
			EventID:   uuid.NewString(),
			OrderID:   strconv.FormatInt(int64(orderID), 10),
			SessionID: p.SessionID,
			CreatedAt: time.Now().UTC(),
			Type:      contracts.EventInventoryDeducted,
			Payload:   map[string]any{"lines": deducted},
		},
	}
	for _, evt := range events {
		if err := outbox.Insert(ctx, tx, evt, s.topic); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return orderID, true, nil
}

const orderColumns = `id, customer_id, total_cents, ship_address_id, status, order_date`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.ShipAddressID, &o.Status, &o.OrderDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListByCustomer(ctx context.Context, customerID domain.CustomerID) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY order_date DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.ShipAddressID, &o.Status, &o.OrderDate); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) MostRecent(ctx context.Context, customerID domain.CustomerID) (*domain.Order, error) {
	return scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY order_date DESC LIMIT 1`, customerID))
}

// ItemViews expands an order's items with product and category data. The
// category name is resolved at query time: renaming a category relabels
// historical orders. The item subtotal stays the captured purchase price.
func (s *Store) ItemViews(ctx context.Context, orderID domain.OrderID) ([]ItemView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, c.name, p.name, p.image, p.brand, p.price_cents, oi.quantity, oi.price_cents
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 JOIN categories c ON c.id = p.category_id
		 WHERE oi.order_id = $1
		 ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemView
	for rows.Next() {
		var v ItemView
		var unitCents, subtotalCents int64
		if err := rows.Scan(&v.ID, &v.Category, &v.Name, &v.Image, &v.Brand, &unitCents, &v.Quantity, &subtotalCents); err != nil {
			return nil, err
		}
		v.Price = Dollars(unitCents)
		v.Subtotal = Dollars(subtotalCents)
		out = append(out, v)
	}
	return out, rows.Err()
}
