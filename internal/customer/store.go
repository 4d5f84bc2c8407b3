// Package customer persists customers and their address book. The address
// book carries one invariant: once any address exists, exactly one per
// customer is flagged default.
package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/internal/db"
	"github.com/nazeru/shop-backend-go/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const customerColumns = `id, first_name, last_name, email, created_at, updated_at`

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) Get(ctx context.Context, id domain.CustomerID) (*domain.Customer, error) {
	return scanCustomer(s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return scanCustomer(s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE email=$1`, email))
}

func (s *Store) Exists(ctx context.Context, id domain.CustomerID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM customers WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

// Create inserts the customer together with their first address, which
// becomes the default. One transaction: a customer is never visible without
// a default address.
func (s *Store) Create(ctx context.Context, c *domain.Customer, addr *domain.Address) (*domain.Customer, *domain.Address, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanCustomer(tx.QueryRow(ctx,
		`INSERT INTO customers(id, first_name, last_name, email) VALUES ($1, $2, $3, $4) RETURNING `+customerColumns,
		c.ID, c.FirstName, c.LastName, c.Email))
	if db.IsUniqueViolation(err) {
		return nil, nil, fmt.Errorf("customer %s: %w", c.ID, domain.ErrConflict)
	}
	if err != nil {
		return nil, nil, err
	}

	createdAddr, err := scanAddress(tx.QueryRow(ctx,
		`INSERT INTO addresses(customer_id, first_name, last_name, street, street2, city, state, zip_code, country, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
		 RETURNING `+addressColumns,
		created.ID, addr.FirstName, addr.LastName, addr.Street, nullable(addr.Street2), addr.City, addr.State, addr.ZipCode, country(addr.Country)))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return created, createdAddr, nil
}

// UpdateName applies a name change. Returns false without writing when the
// stored name already matches.
func (s *Store) UpdateName(ctx context.Context, id domain.CustomerID, firstName, lastName string) (bool, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing.FirstName == firstName && existing.LastName == lastName {
		return false, nil
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE customers SET first_name=$2, last_name=$3, updated_at=now() WHERE id=$1`,
		id, firstName, lastName)
	return err == nil, err
}

const addressColumns = `id, customer_id, first_name, last_name, street, COALESCE(street2, ''), city, state, zip_code, country, is_default, created_at, updated_at`

func scanAddress(row pgx.Row) (*domain.Address, error) {
	var a domain.Address
	err := row.Scan(&a.ID, &a.CustomerID, &a.FirstName, &a.LastName, &a.Street, &a.Street2, &a.City, &a.State, &a.ZipCode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAddress(ctx context.Context, id domain.AddressID) (*domain.Address, error) {
	return scanAddress(s.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id=$1`, id))
}

// GetCustomerAddress resolves an address and checks ownership.
func (s *Store) GetCustomerAddress(ctx context.Context, customerID domain.CustomerID, id domain.AddressID) (*domain.Address, error) {
	addr, err := s.GetAddress(ctx, id)
	if err != nil {
		return nil, err
	}
	if addr.CustomerID != customerID {
		return nil, domain.ErrNotFound
	}
	return addr, nil
}

func (s *Store) ListAddresses(ctx context.Context, customerID domain.CustomerID) ([]domain.Address, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+addressColumns+` FROM addresses WHERE customer_id=$1 ORDER BY id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Address
	for rows.Next() {
		var a domain.Address
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.FirstName, &a.LastName, &a.Street, &a.Street2, &a.City, &a.State, &a.ZipCode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddAddress appends an address; the customer's first address becomes the
// default automatically.
func (s *Store) AddAddress(ctx context.Context, customerID domain.CustomerID, addr *domain.Address) (*domain.Address, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var hasAny bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM addresses WHERE customer_id=$1)`, customerID).Scan(&hasAny); err != nil {
		return nil, err
	}

	created, err := scanAddress(tx.QueryRow(ctx,
		`INSERT INTO addresses(customer_id, first_name, last_name, street, street2, city, state, zip_code, country, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+addressColumns,
		customerID, addr.FirstName, addr.LastName, addr.Street, nullable(addr.Street2), addr.City, addr.State, addr.ZipCode, country(addr.Country), !hasAny))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// SetDefaultAddress demotes every address of the customer and promotes the
// chosen one, in a single transaction so concurrent calls cannot leave zero
// or two defaults.
func (s *Store) SetDefaultAddress(ctx context.Context, customerID domain.CustomerID, id domain.AddressID) (*domain.Address, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE addresses SET is_default=false, updated_at=now() WHERE customer_id=$1 AND is_default`, customerID); err != nil {
		return nil, err
	}

	promoted, err := scanAddress(tx.QueryRow(ctx,
		`UPDATE addresses SET is_default=true, updated_at=now() WHERE id=$1 AND customer_id=$2 RETURNING `+addressColumns,
		id, customerID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return promoted, nil
}

// UpdateAddress applies a field-diff update. Returns false without writing
// when nothing changed.
func (s *Store) UpdateAddress(ctx context.Context, customerID domain.CustomerID, id domain.AddressID, incoming *domain.Address) (*domain.Address, bool, error) {
	existing, err := s.GetCustomerAddress(ctx, customerID, id)
	if err != nil {
		return nil, false, err
	}

	if existing.FirstName == incoming.FirstName &&
		existing.LastName == incoming.LastName &&
		existing.Street == incoming.Street &&
		existing.Street2 == incoming.Street2 &&
		existing.City == incoming.City &&
		existing.State == incoming.State &&
		existing.ZipCode == incoming.ZipCode {
		return existing, false, nil
	}

	updated, err := scanAddress(s.pool.QueryRow(ctx,
		`UPDATE addresses SET first_name=$3, last_name=$4, street=$5, street2=$6, city=$7, state=$8, zip_code=$9, updated_at=now()
		 WHERE id=$1 AND customer_id=$2
		 RETURNING `+addressColumns,
		id, customerID, incoming.FirstName, incoming.LastName, incoming.Street, nullable(incoming.Street2), incoming.City, incoming.State, incoming.ZipCode))
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func country(s string) string {
	if s == "" {
		return "USA"
	}
	return s
}
