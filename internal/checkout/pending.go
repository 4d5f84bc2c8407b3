package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/internal/db"
	"github.com/nazeru/shop-backend-go/internal/domain"
)

// PendingCheckout is the internal correlation record for an in-flight
// checkout session. Processor metadata carries only its Ref; cart contents
// and prices never cross the processor boundary.
type PendingCheckout struct {
	Ref            string
	CustomerID     domain.CustomerID
	CustomerEmail  string
	AddressID      domain.AddressID
	Lines          []PricedLine
	SubtotalCents  int64
	TaxCents       int64
	TotalCents     int64
	SessionID      string
	SessionURL     string
	IdempotencyKey string
	ConsumedAt     *time.Time
	CreatedAt      time.Time
}

type PendingStore struct {
	pool *pgxpool.Pool
}

func NewPendingStore(pool *pgxpool.Pool) *PendingStore {
	return &PendingStore{pool: pool}
}

func (s *PendingStore) Create(ctx context.Context, pc *PendingCheckout) error {
	lines, err := json.Marshal(pc.Lines)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_checkouts(ref, customer_id, customer_email, address_id, lines, subtotal_cents, tax_cents, total_cents, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`,
		pc.Ref, pc.CustomerID, pc.CustomerEmail, pc.AddressID, lines, pc.SubtotalCents, pc.TaxCents, pc.TotalCents, pc.IdempotencyKey)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("idempotency key %q: %w", pc.IdempotencyKey, domain.ErrConflict)
	}
	return err
}

// AttachSession records the processor's session handle once creation
// succeeded.
func (s *PendingStore) AttachSession(ctx context.Context, ref, sessionID, sessionURL string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pending_checkouts SET session_id=$2, session_url=$3 WHERE ref=$1`,
		ref, sessionID, sessionURL)
	return err
}

const pendingColumns = `ref, customer_id, customer_email, address_id, lines, subtotal_cents, tax_cents, total_cents,
	COALESCE(session_id, ''), COALESCE(session_url, ''), COALESCE(idempotency_key, ''), consumed_at, created_at`

func (s *PendingStore) scan(row pgx.Row) (*PendingCheckout, error) {
	var pc PendingCheckout
	var lines []byte
	err := row.Scan(&pc.Ref, &pc.CustomerID, &pc.CustomerEmail, &pc.AddressID, &lines, &pc.SubtotalCents, &pc.TaxCents, &pc.TotalCents,
		&pc.SessionID, &pc.SessionURL, &pc.IdempotencyKey, &pc.ConsumedAt, &pc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &pc.Lines); err != nil {
		return nil, err
	}
	return &pc, nil
}

func (s *PendingStore) GetByRef(ctx context.Context, ref string) (*PendingCheckout, error) {
	return s.scan(s.pool.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_checkouts WHERE ref=$1`, ref))
}

// GetByIdempotencyKey resolves a previously initiated checkout so a client
// retry returns the original session instead of creating a second charge.
func (s *PendingStore) GetByIdempotencyKey(ctx context.Context, key string) (*PendingCheckout, error) {
	return s.scan(s.pool.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_checkouts WHERE idempotency_key=$1`, key))
}
