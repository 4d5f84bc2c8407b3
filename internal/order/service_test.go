package order

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

const webhookSecret = "whsec_order_test"

var frozenNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCustomers struct {
	customer *domain.Customer
	address  *domain.Address
}

func (f *fakeCustomers) GetByEmail(_ context.Context, email string) (*domain.Customer, error) {
	if f.customer == nil || f.customer.Email != email {
		return nil, domain.ErrNotFound
	}
	return f.customer, nil
}

func (f *fakeCustomers) GetAddress(_ context.Context, id domain.AddressID) (*domain.Address, error) {
	if f.address == nil || f.address.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.address, nil
}

type fakePendings struct {
	byRef map[string]*checkout.PendingCheckout
}

func (f *fakePendings) GetByRef(_ context.Context, ref string) (*checkout.PendingCheckout, error) {
	pc, ok := f.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pc, nil
}

// fakeMaterializer mimics the order_sessions idempotency key: the first
// delivery of a session id creates, every later one replays.
type fakeMaterializer struct {
	calls    int
	lastP    MaterializeParams
	sessions map[string]domain.OrderID
	nextID   domain.OrderID
}

func (f *fakeMaterializer) Materialize(_ context.Context, p MaterializeParams) (domain.OrderID, bool, error) {
	f.calls++
	f.lastP = p
	if f.sessions == nil {
		f.sessions = make(map[string]domain.OrderID)
	}
	if id, ok := f.sessions[p.SessionID]; ok {
		return id, false, nil
	}
	f.nextID++
	f.sessions[p.SessionID] = f.nextID
	return f.nextID, true, nil
}

type fakeReader struct {
	orders []domain.Order
	items  map[domain.OrderID][]ItemView
}

func (f *fakeReader) ListByCustomer(_ context.Context, customerID domain.CustomerID) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeReader) MostRecent(_ context.Context, customerID domain.CustomerID) (*domain.Order, error) {
	var newest *domain.Order
	for i := range f.orders {
		o := &f.orders[i]
		if o.CustomerID != customerID {
			continue
		}
		if newest == nil || o.OrderDate.After(newest.OrderDate) {
			newest = o
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	return newest, nil
}

func (f *fakeReader) ItemViews(_ context.Context, orderID domain.OrderID) ([]ItemView, error) {
	return f.items[orderID], nil
}

func testPending() *checkout.PendingCheckout {
	return &checkout.PendingCheckout{
		Ref:           "ref-1",
		CustomerID:    "cus_1",
		CustomerEmail: "jane@example.com",
		AddressID:     7,
		Lines: []checkout.PricedLine{
			{ProductID: 1, Name: "Cola", UnitPriceCents: 250, Quantity: 4},
		},
		SubtotalCents: 1000,
		TaxCents:      66,
		TotalCents:    1066,
	}
}

func newWebhookService(m *fakeMaterializer) *Service {
	customers := &fakeCustomers{
		customer: &domain.Customer{ID: "cus_1", Email: "jane@example.com"},
		address:  &domain.Address{ID: 7, FirstName: "Jane", LastName: "Doe"},
	}
	pendings := &fakePendings{byRef: map[string]*checkout.PendingCheckout{"ref-1": testPending()}}
	svc := NewService(customers, pendings, m, &fakeReader{}, webhookSecret)
	svc.now = func() time.Time { return frozenNow }
	return svc
}

func completedEvent(t *testing.T, sessionID string, amount int64, metadata map[string]string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_" + sessionID,
		"type": payment.EventCheckoutSessionCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":             sessionID,
			"customer_email": "jane@example.com",
			"amount_total":   amount,
			"metadata":       metadata,
		}},
	})
	require.NoError(t, err)
	return payload, payment.Sign(payload, webhookSecret, time.Now())
}

func TestHandleWebhookCreatesOrder(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, sig := completedEvent(t, "cs_1", 1066, map[string]string{"checkout_ref": "ref-1"})
	result, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.False(t, result.Ignored)
	assert.Equal(t, domain.OrderID(1), result.OrderID)

	assert.Equal(t, "cs_1", m.lastP.SessionID)
	assert.Equal(t, domain.CustomerID("cus_1"), m.lastP.CustomerID)
	assert.Equal(t, domain.AddressID(7), m.lastP.AddressID)
	assert.Equal(t, int64(1066), m.lastP.TotalCents)
	require.Len(t, m.lastP.Lines, 1)
	assert.Equal(t, int64(250), m.lastP.Lines[0].UnitPriceCents)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, sig := completedEvent(t, "cs_dup", 1066, map[string]string{"checkout_ref": "ref-1"})

	first, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	second, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 2, m.calls)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, _ := completedEvent(t, "cs_1", 1066, map[string]string{"checkout_ref": "ref-1"})
	forged := payment.Sign(payload, "whsec_wrong", time.Now())

	_, err := svc.HandleWebhook(context.Background(), payload, forged)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	assert.Zero(t, m.calls, "unverified payloads must never materialize")
}

func TestHandleWebhookIgnoresOtherEventKinds(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_x",
		"type": "payment_intent.created",
		"data": map[string]any{"object": map[string]any{"id": "pi_1"}},
	})
	require.NoError(t, err)
	sig := payment.Sign(payload, webhookSecret, time.Now())

	result, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Zero(t, m.calls)
}

func TestHandleWebhookUnknownCustomer(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_y",
		"type": payment.EventCheckoutSessionCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_1",
			"customer_email": "ghost@example.com",
			"amount_total":   1066,
			"metadata":       map[string]string{"checkout_ref": "ref-1"},
		}},
	})
	require.NoError(t, err)
	sig := payment.Sign(payload, webhookSecret, time.Now())

	_, err = svc.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, m.calls)
}

func TestHandleWebhookMissingRef(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, sig := completedEvent(t, "cs_1", 1066, nil)
	_, err := svc.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, m.calls)
}

func TestHandleWebhookRefCustomerMismatch(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)
	pc := testPending()
	pc.CustomerID = "cus_other"
	svc.pendings = &fakePendings{byRef: map[string]*checkout.PendingCheckout{"ref-1": pc}}

	payload, sig := completedEvent(t, "cs_1", 1066, map[string]string{"checkout_ref": "ref-1"})
	_, err := svc.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, m.calls)
}

func TestHandleWebhookAmountMismatchStillCreates(t *testing.T) {
	m := &fakeMaterializer{}
	svc := newWebhookService(m)

	payload, sig := completedEvent(t, "cs_1", 9999, map[string]string{"checkout_ref": "ref-1"})
	result, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Created)
	// the charged amount wins; reconciliation happens offline
	assert.Equal(t, int64(9999), m.lastP.TotalCents)
}

func TestRecentViewInsideWindow(t *testing.T) {
	reader := &fakeReader{
		orders: []domain.Order{{
			ID: 4, CustomerID: "cus_1", TotalCents: 1066, ShipAddressID: 7,
			Status: domain.OrderStatusProcessing, OrderDate: frozenNow.Add(-30 * time.Second),
		}},
		items: map[domain.OrderID][]ItemView{4: {{ID: 1, Name: "Cola", Quantity: 4}}},
	}
	svc := newRecentService(reader)

	view, err := svc.RecentView(context.Background(), "cus_1")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, domain.OrderID(4), view.ID)
	assert.Equal(t, "Jane Doe", view.FullName)
	assert.Len(t, view.OrderItems, 1)
}

func TestRecentViewOutsideWindow(t *testing.T) {
	reader := &fakeReader{
		orders: []domain.Order{{
			ID: 4, CustomerID: "cus_1", ShipAddressID: 7,
			OrderDate: frozenNow.Add(-RecentWindow),
		}},
	}
	svc := newRecentService(reader)

	view, err := svc.RecentView(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestRecentViewNoOrders(t *testing.T) {
	svc := newRecentService(&fakeReader{})

	view, err := svc.RecentView(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestViewsAssemblesEveryOrder(t *testing.T) {
	reader := &fakeReader{
		orders: []domain.Order{
			{ID: 2, CustomerID: "cus_1", TotalCents: 1066, ShipAddressID: 7, OrderDate: frozenNow},
			{ID: 1, CustomerID: "cus_1", TotalCents: 500, ShipAddressID: 7, OrderDate: frozenNow.Add(-time.Hour)},
			{ID: 3, CustomerID: "cus_other", TotalCents: 9, ShipAddressID: 8, OrderDate: frozenNow},
		},
		items: map[domain.OrderID][]ItemView{
			2: {{ID: 1, Name: "Cola"}},
			1: {{ID: 2, Name: "Seltzer"}},
		},
	}
	svc := newRecentService(reader)

	views, err := svc.Views(context.Background(), "cus_1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, domain.OrderID(2), views[0].ID)
	assert.Equal(t, 10.66, views[0].Subtotal)
	assert.Equal(t, "Cola", views[0].OrderItems[0].Name)
}

func newRecentService(reader *fakeReader) *Service {
	customers := &fakeCustomers{
		customer: &domain.Customer{ID: "cus_1", Email: "jane@example.com"},
		address: &domain.Address{
			ID: 7, FirstName: "Jane", LastName: "Doe",
			Street: "1 Main St", City: "Newark", State: "NJ", ZipCode: "07101",
		},
	}
	svc := NewService(customers, &fakePendings{}, &fakeMaterializer{}, reader, webhookSecret)
	svc.now = func() time.Time { return frozenNow }
	return svc
}
