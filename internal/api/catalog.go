package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nazeru/shop-backend-go/internal/catalog"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/internal/order"
	"github.com/nazeru/shop-backend-go/internal/review"
)

type categoryView struct {
	ID          domain.CategoryID `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		views = append(views, categoryView{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) categoryExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.catalog.CategoryExists(r.Context(), r.PathValue("category_name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exists)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "category name is required")
		return
	}

	created, err := h.catalog.CreateCategory(r.Context(), body.Name, body.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryView{ID: created.ID, Name: created.Name, Description: created.Description})
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "category_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.catalog.UpdateCategory(r.Context(), domain.CategoryID(id), body.Name, body.Description); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Category updated successfully"})
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "category_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), domain.CategoryID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Category deleted successfully"})
}

type reviewView struct {
	ID         int64             `json:"id"`
	CustomerID domain.CustomerID `json:"customer_id"`
	Rating     int               `json:"rating"`
	Title      string            `json:"title"`
	Comment    string            `json:"comment"`
}

type productView struct {
	ID           domain.ProductID `json:"id"`
	CategoryName string           `json:"category_name"`
	Image        string           `json:"image"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Brand        string           `json:"brand"`
	Price        float64          `json:"price"`
	Quantity     int32            `json:"quantity"`
	Reviews      []reviewView     `json:"reviews"`
	Rating       float64          `json:"rating"`
}

// productViews expands products with their category name, reviews and
// average rating.
func (h *Handler) productViews(r *http.Request, products []domain.Product) ([]productView, error) {
	views := make([]productView, 0, len(products))
	for i := range products {
		p := &products[i]
		cat, err := h.catalog.GetCategory(r.Context(), p.CategoryID)
		if err != nil {
			return nil, err
		}
		reviews, err := h.reviews.ListByProduct(r.Context(), p.ID)
		if err != nil {
			return nil, err
		}
		reviewViews := make([]reviewView, 0, len(reviews))
		for _, rv := range reviews {
			reviewViews = append(reviewViews, reviewView{ID: rv.ID, CustomerID: rv.CustomerID, Rating: rv.Rating, Title: rv.Title, Comment: rv.Comment})
		}
		views = append(views, productView{
			ID:           p.ID,
			CategoryName: cat.Name,
			Image:        p.Image,
			Name:         p.Name,
			Description:  p.Description,
			Brand:        p.Brand,
			Price:        order.Dollars(p.PriceCents),
			Quantity:     p.Quantity,
			Reviews:      reviewViews,
			Rating:       review.AverageRating(reviews),
		})
	}
	return views, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views, err := h.productViews(r, products)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) productsByCategory(w http.ResponseWriter, r *http.Request) {
	name := catalog.NormalizeCategoryName(r.PathValue("category_name"))
	products, err := h.catalog.ListProductsByCategory(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views, err := h.productViews(r, products)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.SearchProducts(r.Context(), r.PathValue("query"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views, err := h.productViews(r, products)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// cartCheck answers whether the requested quantity is in stock; when it is
// not, the response carries how many units remain.
func (h *Handler) cartCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 32)
	if err != nil || quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), domain.ProductID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if int32(quantity) <= product.Quantity {
		writeJSON(w, http.StatusOK, map[string]any{"can_add": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"can_add": false, "quantity": product.Quantity})
}

func (h *Handler) productRoulette(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.RandomProducts(r.Context(), 4)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views, err := h.productViews(r, products)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), domain.ProductID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views, err := h.productViews(r, []domain.Product{*product})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}
