// Package catalog persists categories and products.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/internal/db"
	"github.com/nazeru/shop-backend-go/internal/domain"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx so inventory updates can
// run inside the order-materialization transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const productColumns = `id, category_id, image, name, description, brand, price_cents, quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Image, &p.Name, &p.Description, &p.Brand, &p.PriceCents, &p.Quantity, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (s *Store) ListProductsByCategory(ctx context.Context, categoryName string) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.category_id, p.image, p.name, p.description, p.brand, p.price_cents, p.quantity, p.created_at, p.updated_at
		 FROM products p JOIN categories c ON c.id = p.category_id
		 WHERE c.name = $1 ORDER BY p.id`, categoryName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Image, &p.Name, &p.Description, &p.Brand, &p.PriceCents, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchProducts matches the query as a case-insensitive substring of the
// product name or brand.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE name ILIKE '%' || $1 || '%' OR brand ILIKE '%' || $1 || '%'
		 ORDER BY id`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// RandomProducts returns up to n products in random order.
func (s *Store) RandomProducts(ctx context.Context, n int) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// DecrementInventory subtracts qty conditionally: the update only matches
// when enough stock remains, so concurrent checkouts cannot oversell.
func DecrementInventory(ctx context.Context, ex Execer, id domain.ProductID, qty int32) error {
	tag, err := ex.Exec(ctx,
		`UPDATE products SET quantity = quantity - $2, updated_at = now() WHERE id = $1 AND quantity >= $2`,
		id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, domain.ErrInsufficientStock)
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id domain.CategoryID) (*domain.Category, error) {
	var c domain.Category
	err := s.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// NormalizeCategoryName maps URL forms ("cold-brew") to stored names
// ("cold brew").
func NormalizeCategoryName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", " "))
}

func (s *Store) CategoryExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE name=$1)`, NormalizeCategoryName(name)).Scan(&exists)
	return exists, err
}

func (s *Store) CreateCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	var c domain.Category
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories(name, description) VALUES ($1, $2) RETURNING id, name, description, created_at, updated_at`,
		strings.ToLower(name), description).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("category %q: %w", name, domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCategory applies non-empty fields only.
func (s *Store) UpdateCategory(ctx context.Context, id domain.CategoryID, name, description string) error {
	if name == "" && description == "" {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE categories SET
			name = COALESCE(NULLIF($2, ''), name),
			description = COALESCE(NULLIF($3, ''), description),
			updated_at = now()
		 WHERE id = $1`,
		id, strings.ToLower(name), description)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", name, domain.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id domain.CategoryID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
