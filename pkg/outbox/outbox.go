// Package outbox implements the transactional outbox for storefront events.
// Rows are inserted inside the same transaction that mutates state and a
// background relay ships them to Kafka, so an event is published if and only
// if the write committed.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/pkg/contracts"
	"github.com/nazeru/shop-backend-go/pkg/kafka"
	"github.com/nazeru/shop-backend-go/pkg/logging"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx, so events can be
// enqueued inside the order-materialization transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert enqueues one event. A duplicate event_id is a no-op so replayed
// webhook deliveries cannot double-publish.
func Insert(ctx context.Context, ex Execer, evt contracts.Event, topic string) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, topic, evt.OrderID, data)
	return err
}

func MarkSent(ctx context.Context, pool *pgxpool.Pool, id int64) error {
	_, err := pool.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

func FetchPending(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Record, error) {
	rows, err := pool.Query(ctx, `SELECT id, event_id, topic, key, payload, created_at, sent_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Relay polls for unsent rows and publishes them. Blocks until ctx is done.
// Rows that fail to publish stay pending and are retried next tick.
func Relay(ctx context.Context, pool *pgxpool.Pool, client *kafka.Client, topic string, interval time.Duration) {
	writer := client.NewWriter(topic)
	defer writer.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := FetchPending(ctx, pool, 100)
		if err != nil {
			logging.Log(logging.Fields{Service: "shop-api", Step: "outbox_fetch", Status: "error", Message: err.Error()})
			continue
		}
		for _, rec := range pending {
			if err := kafka.PublishRaw(ctx, writer, rec.Key, rec.Payload); err != nil {
				logging.Log(logging.Fields{Service: "shop-api", EventID: rec.EventID, Step: "outbox_publish", Status: "error", Message: err.Error()})
				break
			}
			if err := MarkSent(ctx, pool, rec.ID); err != nil {
				logging.Log(logging.Fields{Service: "shop-api", EventID: rec.EventID, Step: "outbox_mark_sent", Status: "error", Message: err.Error()})
				break
			}
			logging.Log(logging.Fields{Service: "shop-api", EventID: rec.EventID, Step: "outbox_publish", Status: "sent"})
		}
	}
}
