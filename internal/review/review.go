// Package review persists product reviews. One review per customer per
// product, enforced by a unique index rather than a read-then-write check.
package review

import (
	"context"
	"fmt"
	"math"

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

func (s *Store) Add(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	var created domain.Review
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reviews(product_id, customer_id, rating, title, comment)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, product_id, customer_id, rating, title, comment, created_at, updated_at`,
		r.ProductID, r.CustomerID, r.Rating, r.Title, r.Comment).
		Scan(&created.ID, &created.ProductID, &created.CustomerID, &created.Rating, &created.Title, &created.Comment, &created.CreatedAt, &created.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("review for product %d by %s: %w", r.ProductID, r.CustomerID, domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) HasReviewed(ctx context.Context, productID domain.ProductID, customerID domain.CustomerID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reviews WHERE product_id=$1 AND customer_id=$2)`,
		productID, customerID).Scan(&exists)
	return exists, err
}

func (s *Store) ListByProduct(ctx context.Context, productID domain.ProductID) ([]domain.Review, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, customer_id, rating, title, comment, created_at, updated_at
		 FROM reviews WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var r domain.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.CustomerID, &r.Rating, &r.Title, &r.Comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RatingBucket groups a product's reviews by star value.
type RatingBucket struct {
	Reviews    []domain.Review `json:"reviews"`
	Percentage float64         `json:"percentage"`
}

// AverageRating returns the mean rating, 0 when there are no reviews.
func AverageRating(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(reviews))
}

// BucketByRating builds the per-star breakdown with each bucket's share of
// the total, rounded to two decimals.
func BucketByRating(reviews []domain.Review) map[int]RatingBucket {
	out := make(map[int]RatingBucket)
	if len(reviews) == 0 {
		return out
	}
	for _, r := range reviews {
		bucket := out[r.Rating]
		bucket.Reviews = append(bucket.Reviews, r)
		out[r.Rating] = bucket
	}
	total := float64(len(reviews))
	for rating, bucket := range out {
		bucket.Percentage = math.Round(float64(len(bucket.Reviews))/total*100*100) / 100
		out[rating] = bucket
	}
	return out
}
