package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/pkg/logging"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

type CustomerResolver interface {
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetAddress(ctx context.Context, id domain.AddressID) (*domain.Address, error)
}

type PendingResolver interface {
	GetByRef(ctx context.Context, ref string) (*checkout.PendingCheckout, error)
}

type Materializer interface {
	Materialize(ctx context.Context, p MaterializeParams) (domain.OrderID, bool, error)
}

type OrderReader interface {
	ListByCustomer(ctx context.Context, customerID domain.CustomerID) ([]domain.Order, error)
	MostRecent(ctx context.Context, customerID domain.CustomerID) (*domain.Order, error)
	ItemViews(ctx context.Context, orderID domain.OrderID) ([]ItemView, error)
}

type Service struct {
	customers CustomerResolver
	pendings  PendingResolver
	orders    Materializer
	reader    OrderReader

	webhookSecret string
	now           func() time.Time
}

func NewService(customers CustomerResolver, pendings PendingResolver, orders Materializer, reader OrderReader, webhookSecret string) *Service {
	return &Service{
		customers:     customers,
		pendings:      pendings,
		orders:        orders,
		reader:        reader,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

type WebhookResult struct {
	OrderID domain.OrderID
	Created bool
	// Ignored is true for event kinds other than session completion; they
	// are acknowledged without any action.
	Ignored bool
}

// HandleWebhook verifies and processes one processor notification. The
// signature check fails closed; only checkout.session.completed material-
// izes an order, all other kinds are acked and dropped.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (WebhookResult, error) {
	evt, err := payment.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return WebhookResult{}, err
	}

	if evt.Type != payment.EventCheckoutSessionCompleted {
		return WebhookResult{Ignored: true}, nil
	}

	obj := evt.Data.Object
	cust, err := s.customers.GetByEmail(ctx, obj.CustomerEmail)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("customer %s: %w", obj.CustomerEmail, err)
	}

	ref := obj.Metadata[checkout.MetadataRefKey]
	if ref == "" {
		return WebhookResult{}, fmt.Errorf("session %s metadata: %w", obj.ID, domain.ErrNotFound)
	}
	pc, err := s.pendings.GetByRef(ctx, ref)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("pending checkout %s: %w", ref, err)
	}
	if pc.CustomerID != cust.ID {
		return WebhookResult{}, fmt.Errorf("pending checkout %s customer mismatch: %w", ref, domain.ErrNotFound)
	}

	if obj.AmountTotal != pc.TotalCents {
		// The processor already charged the shopper; keep the order but
		// leave a trail for reconciliation.
		logging.Log(logging.Fields{
			Service: "shop-api", SessionID: obj.ID, CustomerID: string(cust.ID),
			Step: "webhook", Status: "amount_mismatch",
			Message: fmt.Sprintf("processor=%d frozen=%d", obj.AmountTotal, pc.TotalCents),
		})
	}

	orderID, created, err := s.orders.Materialize(ctx, MaterializeParams{
		SessionID:  obj.ID,
		CustomerID: cust.ID,
		AddressID:  pc.AddressID,
		TotalCents: obj.AmountTotal,
		Ref:        pc.Ref,
		Lines:      pc.Lines,
	})
	if err != nil {
		return WebhookResult{}, err
	}

	status := "created"
	if !created {
		status = "idempotent_replay"
	}
	logging.Log(logging.Fields{
		Service: "shop-api", OrderID: strconv.FormatInt(int64(orderID), 10),
		SessionID: obj.ID, CustomerID: string(cust.ID), EventID: evt.ID,
		Step: "webhook", Status: status,
	})
	return WebhookResult{OrderID: orderID, Created: created}, nil
}

// Views returns every order of the customer expanded for display.
func (s *Service) Views(ctx context.Context, customerID domain.CustomerID) ([]View, error) {
	orders, err := s.reader.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		addr, err := s.customers.GetAddress(ctx, o.ShipAddressID)
		if err != nil {
			return nil, err
		}
		items, err := s.reader.ItemViews(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, NewView(o, addr, items))
	}
	return views, nil
}

// RecentView returns the newest order when it falls inside RecentWindow,
// nil otherwise. No orders is not an error.
func (s *Service) RecentView(ctx context.Context, customerID domain.CustomerID) (*View, error) {
	o, err := s.reader.MostRecent(ctx, customerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !IsRecent(o.OrderDate, s.now()) {
		return nil, nil
	}

	addr, err := s.customers.GetAddress(ctx, o.ShipAddressID)
	if err != nil {
		return nil, err
	}
	items, err := s.reader.ItemViews(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	view := NewView(o, addr, items)
	return &view, nil
}
