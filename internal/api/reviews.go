package api

import (
	"encoding/json"
	"net/http"

	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/internal/review"
)

func (h *Handler) addReview(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathInt64(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	customerID := domain.CustomerID(r.PathValue("customer_id"))

	var body struct {
		Rating  int    `json:"rating"`
		Title   string `json:"title"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	_, err := h.reviews.Add(r.Context(), &domain.Review{
		ProductID:  domain.ProductID(productID),
		CustomerID: customerID,
		Rating:     body.Rating,
		Title:      body.Title,
		Comment:    body.Comment,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Review added successfully"})
}

// reviewBreakdown groups a product's reviews by star value with each
// bucket's share of the total.
func (h *Handler) reviewBreakdown(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathInt64(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	reviews, err := h.reviews.ListByProduct(r.Context(), domain.ProductID(productID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review.BucketByRating(reviews))
}

func (h *Handler) didReview(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathInt64(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	customerID := domain.CustomerID(r.PathValue("customer_id"))

	reviewed, err := h.reviews.HasReviewed(r.Context(), domain.ProductID(productID), customerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewed)
}
