// Package api wires the storefront HTTP surface. Handlers stay thin: decode,
// call a store or service, map the error taxonomy onto a status code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/customer"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/internal/order"
	"github.com/nazeru/shop-backend-go/pkg/metrics"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

// Catalog is the slice of the catalog store the handlers call.
type Catalog interface {
	GetProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsByCategory(ctx context.Context, categoryName string) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
	RandomProducts(ctx context.Context, n int) ([]domain.Product, error)
	GetCategory(ctx context.Context, id domain.CategoryID) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CategoryExists(ctx context.Context, name string) (bool, error)
	CreateCategory(ctx context.Context, name, description string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id domain.CategoryID, name, description string) error
	DeleteCategory(ctx context.Context, id domain.CategoryID) error
}

type Reviews interface {
	Add(ctx context.Context, r *domain.Review) (*domain.Review, error)
	HasReviewed(ctx context.Context, productID domain.ProductID, customerID domain.CustomerID) (bool, error)
	ListByProduct(ctx context.Context, productID domain.ProductID) ([]domain.Review, error)
}

type Handler struct {
	checkout  *checkout.Service
	orders    *order.Service
	customers *customer.Store
	catalog   Catalog
	reviews   Reviews
	metrics   *metrics.ServerMetrics
}

func New(co *checkout.Service, ord *order.Service, cust *customer.Store, cat Catalog, rev Reviews, m *metrics.ServerMetrics) *Handler {
	return &Handler{checkout: co, orders: ord, customers: cust, catalog: cat, reviews: rev, metrics: m}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /order/checkout/session", h.instrument("checkout_session", h.checkoutSession))
	mux.HandleFunc("POST /order/webhook", h.instrument("webhook", h.webhook))
	mux.HandleFunc("GET /order/recent/{customer_id}", h.instrument("recent_order", h.recentOrder))
	mux.HandleFunc("GET /order/{customer_id}", h.instrument("list_orders", h.listOrders))

	mux.HandleFunc("GET /customer/exists/{customer_id}", h.instrument("customer_exists", h.customerExists))
	mux.HandleFunc("GET /customer/{customer_id}", h.instrument("get_customer", h.getCustomer))
	mux.HandleFunc("POST /customer/create", h.instrument("create_customer", h.createCustomer))
	mux.HandleFunc("POST /customer/editName/{customer_id}", h.instrument("edit_customer_name", h.editCustomerName))

	mux.HandleFunc("GET /address/{customer_id}", h.instrument("list_addresses", h.listAddresses))
	mux.HandleFunc("POST /address/add/{customer_id}", h.instrument("add_address", h.addAddress))
	mux.HandleFunc("POST /address/updateMain/{customer_id}/{address_id}", h.instrument("set_main_address", h.setMainAddress))
	mux.HandleFunc("POST /address/update/{customer_id}/{address_id}", h.instrument("update_address", h.updateAddress))

	mux.HandleFunc("GET /category", h.instrument("list_categories", h.listCategories))
	mux.HandleFunc("GET /category/exists/{category_name}", h.instrument("category_exists", h.categoryExists))
	mux.HandleFunc("POST /category/create", h.instrument("create_category", h.createCategory))
	mux.HandleFunc("PUT /category/update/{category_id}", h.instrument("update_category", h.updateCategory))
	mux.HandleFunc("DELETE /category/delete/{category_id}", h.instrument("delete_category", h.deleteCategory))

	mux.HandleFunc("GET /product/all", h.instrument("list_products", h.listProducts))
	mux.HandleFunc("GET /product/category/{category_name}", h.instrument("products_by_category", h.productsByCategory))
	mux.HandleFunc("GET /product/search/{query}", h.instrument("search_products", h.searchProducts))
	mux.HandleFunc("GET /product/cart/{product_id}", h.instrument("cart_check", h.cartCheck))
	mux.HandleFunc("GET /product/random/roulette", h.instrument("product_roulette", h.productRoulette))
	mux.HandleFunc("GET /product/{product_id}", h.instrument("get_product", h.getProduct))

	mux.HandleFunc("POST /review/{product_id}/{customer_id}", h.instrument("add_review", h.addReview))
	mux.HandleFunc("GET /review/rating/{product_id}", h.instrument("review_breakdown", h.reviewBreakdown))
	mux.HandleFunc("GET /review/{product_id}/{customer_id}", h.instrument("did_review", h.didReview))
}

// statusRecorder captures the written status for metrics labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		h.metrics.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, checkout.ErrInvalidCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrExternal):
		writeError(w, http.StatusBadGateway, "payment processor error")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return v, err == nil
}
