package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/internal/order"
	"github.com/nazeru/shop-backend-go/pkg/metrics"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

// one registration per test binary; prometheus panics on duplicates
var testMetrics = metrics.NewServerMetrics("api_test")

const testWebhookSecret = "whsec_api_test"

type stubCustomers struct{}

func (stubCustomers) GetByEmail(_ context.Context, email string) (*domain.Customer, error) {
	if email != "jane@example.com" {
		return nil, domain.ErrNotFound
	}
	return &domain.Customer{ID: "cus_1", Email: email}, nil
}

func (stubCustomers) GetCustomerAddress(_ context.Context, _ domain.CustomerID, _ domain.AddressID) (*domain.Address, error) {
	return &domain.Address{ID: 7, CustomerID: "cus_1"}, nil
}

func (stubCustomers) GetAddress(_ context.Context, id domain.AddressID) (*domain.Address, error) {
	return &domain.Address{ID: id, FirstName: "Jane", LastName: "Doe", Street: "1 Main St", City: "Newark", State: "NJ", ZipCode: "07101"}, nil
}

type stubProducts struct{}

func (stubProducts) GetProduct(_ context.Context, id domain.ProductID) (*domain.Product, error) {
	return &domain.Product{ID: id, Name: "Cola", PriceCents: 250, Quantity: 10}, nil
}

type stubProcessor struct{}

func (stubProcessor) CreateSession(_ context.Context, _ payment.SessionParams) (*payment.Session, error) {
	return &payment.Session{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

type stubPendings struct{}

func (stubPendings) Create(_ context.Context, _ *checkout.PendingCheckout) error { return nil }
func (stubPendings) AttachSession(_ context.Context, _, _, _ string) error       { return nil }
func (stubPendings) GetByIdempotencyKey(_ context.Context, _ string) (*checkout.PendingCheckout, error) {
	return nil, domain.ErrNotFound
}
func (stubPendings) GetByRef(_ context.Context, ref string) (*checkout.PendingCheckout, error) {
	if ref != "ref-1" {
		return nil, domain.ErrNotFound
	}
	return &checkout.PendingCheckout{Ref: ref, CustomerID: "cus_1", AddressID: 7, TotalCents: 1066}, nil
}

type stubOrders struct {
	orders []domain.Order
}

func (s stubOrders) Materialize(_ context.Context, p order.MaterializeParams) (domain.OrderID, bool, error) {
	return 1, true, nil
}

func (s stubOrders) ListByCustomer(_ context.Context, _ domain.CustomerID) ([]domain.Order, error) {
	return s.orders, nil
}

func (s stubOrders) MostRecent(_ context.Context, _ domain.CustomerID) (*domain.Order, error) {
	if len(s.orders) == 0 {
		return nil, domain.ErrNotFound
	}
	return &s.orders[0], nil
}

func (s stubOrders) ItemViews(_ context.Context, _ domain.OrderID) ([]order.ItemView, error) {
	return nil, nil
}

// stubCatalog serves a fixed two-product catalog.
type stubCatalog struct{}

func (stubCatalog) catalogProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, CategoryID: 1, Name: "Cola", Brand: "Fizz Co", PriceCents: 250, Quantity: 10},
		{ID: 2, CategoryID: 1, Name: "Sparkling Water", Brand: "Fizz Co", PriceCents: 199, Quantity: 3},
	}
}

func (c stubCatalog) GetProduct(_ context.Context, id domain.ProductID) (*domain.Product, error) {
	for _, p := range c.catalogProducts() {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c stubCatalog) ListProducts(_ context.Context) ([]domain.Product, error) {
	return c.catalogProducts(), nil
}

func (c stubCatalog) ListProductsByCategory(_ context.Context, _ string) ([]domain.Product, error) {
	return c.catalogProducts(), nil
}

func (c stubCatalog) SearchProducts(_ context.Context, query string) ([]domain.Product, error) {
	q := strings.ToLower(query)
	var out []domain.Product
	for _, p := range c.catalogProducts() {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Brand), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c stubCatalog) RandomProducts(_ context.Context, n int) ([]domain.Product, error) {
	products := c.catalogProducts()
	if n < len(products) {
		products = products[:n]
	}
	return products, nil
}

func (stubCatalog) GetCategory(_ context.Context, id domain.CategoryID) (*domain.Category, error) {
	return &domain.Category{ID: id, Name: "soda"}, nil
}

func (stubCatalog) ListCategories(_ context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: 1, Name: "soda"}}, nil
}

func (stubCatalog) CategoryExists(_ context.Context, name string) (bool, error) {
	return name == "soda", nil
}

func (stubCatalog) CreateCategory(_ context.Context, name, description string) (*domain.Category, error) {
	return &domain.Category{ID: 2, Name: name, Description: description}, nil
}

func (stubCatalog) UpdateCategory(_ context.Context, _ domain.CategoryID, _, _ string) error {
	return nil
}

func (stubCatalog) DeleteCategory(_ context.Context, _ domain.CategoryID) error { return nil }

type stubReviews struct{}

func (stubReviews) Add(_ context.Context, r *domain.Review) (*domain.Review, error) { return r, nil }

func (stubReviews) HasReviewed(_ context.Context, _ domain.ProductID, _ domain.CustomerID) (bool, error) {
	return false, nil
}

func (stubReviews) ListByProduct(_ context.Context, _ domain.ProductID) ([]domain.Review, error) {
	return nil, nil
}

func newTestMux(t *testing.T, orders stubOrders) *http.ServeMux {
	t.Helper()
	checkoutSvc := checkout.NewService(stubProducts{}, stubCustomers{}, stubProcessor{}, stubPendings{}, "http://localhost:3000")
	orderSvc := order.NewService(stubCustomers{}, stubPendings{}, orders, orders, testWebhookSecret)

	mux := http.NewServeMux()
	New(checkoutSvc, orderSvc, nil, stubCatalog{}, stubReviews{}, testMetrics).Register(mux)
	return mux
}

func TestCheckoutSessionEndpoint(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	body := `{"customer_email":"jane@example.com","address_id":7,"cartItems":[{"product_id":1,"quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/order/checkout/session", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var session payment.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "cs_1", session.ID)
}

func TestCheckoutSessionEmptyCart(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	body := `{"customer_email":"jane@example.com","address_id":7,"cartItems":[]}`
	req := httptest.NewRequest(http.MethodPost, "/order/checkout/session", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutSessionInvalidJSON(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodPost, "/order/checkout/session", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookEndpointAck(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": payment.EventCheckoutSessionCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_1",
			"customer_email": "jane@example.com",
			"amount_total":   1066,
			"metadata":       map[string]string{"checkout_ref": "ref-1"},
		}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/order/webhook", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, payment.Sign(payload, testWebhookSecret, time.Now()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true}`, rec.Body.String())
}

func TestWebhookEndpointBadSignature(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/order/webhook", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, payment.Sign(payload, "whsec_wrong", time.Now()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentOrderFalseSentinel(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/order/recent/cus_1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", strings.TrimSpace(rec.Body.String()))
}

func TestRecentOrderInsideWindow(t *testing.T) {
	mux := newTestMux(t, stubOrders{orders: []domain.Order{{
		ID: 4, CustomerID: "cus_1", TotalCents: 1066, ShipAddressID: 7,
		OrderDate: time.Now().Add(-10 * time.Second),
	}}})

	req := httptest.NewRequest(http.MethodGet, "/order/recent/cus_1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, domain.OrderID(4), view.ID)
	assert.Equal(t, "Jane Doe", view.FullName)
}

func TestListOrdersEndpoint(t *testing.T) {
	mux := newTestMux(t, stubOrders{orders: []domain.Order{{
		ID: 2, CustomerID: "cus_1", TotalCents: 500, ShipAddressID: 7, OrderDate: time.Now(),
	}}})

	req := httptest.NewRequest(http.MethodGet, "/order/cus_1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, 5.0, views[0].Subtotal)
}

func TestSearchProductsEndpoint(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/product/search/sparkling", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Sparkling Water", views[0]["name"])
	assert.Equal(t, "soda", views[0]["category_name"])
}

func TestSearchProductsByBrand(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/product/search/fizz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 2)
}

func TestCartCheckInStock(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/product/cart/2?quantity=3", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"can_add": true}`, rec.Body.String())
}

func TestCartCheckInsufficientStock(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/product/cart/2?quantity=4", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"can_add": false, "quantity": 3}`, rec.Body.String())
}

func TestCartCheckBadQuantity(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	for _, target := range []string{
		"/product/cart/2",
		"/product/cart/2?quantity=0",
		"/product/cart/2?quantity=abc",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

func TestCartCheckUnknownProduct(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/product/cart/99?quantity=1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductRouletteEndpoint(t *testing.T) {
	mux := newTestMux(t, stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/product/random/roulette", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.LessOrEqual(t, len(views), 4)
	assert.NotEmpty(t, views)
}

func TestWriteDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{payment.ErrInvalidSignature, http.StatusBadRequest},
		{checkout.ErrInvalidCart, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{payment.ErrExternal, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, "error %v", tc.err)
	}
}
