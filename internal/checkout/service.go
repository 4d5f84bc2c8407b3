package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/pkg/logging"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

// MetadataRefKey names the single metadata entry handed to the processor.
// The completion webhook echoes it back and everything else is resolved
// from the pending_checkouts record it points at.
const MetadataRefKey = "checkout_ref"

var ErrInvalidCart = errors.New("invalid cart")

type ProductResolver interface {
	GetProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error)
}

type CustomerResolver interface {
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetCustomerAddress(ctx context.Context, customerID domain.CustomerID, id domain.AddressID) (*domain.Address, error)
}

type SessionCreator interface {
	CreateSession(ctx context.Context, params payment.SessionParams) (*payment.Session, error)
}

type PendingRecorder interface {
	Create(ctx context.Context, pc *PendingCheckout) error
	AttachSession(ctx context.Context, ref, sessionID, sessionURL string) error
	GetByIdempotencyKey(ctx context.Context, key string) (*PendingCheckout, error)
}

type Service struct {
	products  ProductResolver
	customers CustomerResolver
	processor SessionCreator
	pendings  PendingRecorder

	successURL string
	cancelURL  string
}

func NewService(products ProductResolver, customers CustomerResolver, processor SessionCreator, pendings PendingRecorder, redirectBaseURL string) *Service {
	return &Service{
		products:   products,
		customers:  customers,
		processor:  processor,
		pendings:   pendings,
		successURL: redirectBaseURL + "/success",
		cancelURL:  redirectBaseURL + "/cart",
	}
}

type Request struct {
	CustomerEmail string            `json:"customer_email"`
	AddressID     domain.AddressID  `json:"address_id"`
	CartItems     []domain.CartItem `json:"cartItems"`
}

// CreateSession prices the cart, freezes it into a pending_checkouts record
// and requests a hosted payment session. Nothing in the catalog or order
// stores is mutated. Any product lookup failure aborts the whole session.
//
// idemKey, when non-empty, makes retries safe: a key that already produced a
// session returns that session without touching the processor again.
func (s *Service) CreateSession(ctx context.Context, req Request, idemKey string) (*payment.Session, error) {
	if idemKey != "" {
		if prior, err := s.pendings.GetByIdempotencyKey(ctx, idemKey); err == nil {
			if prior.SessionID != "" {
				logging.Log(logging.Fields{Service: "shop-api", SessionID: prior.SessionID, CustomerID: string(prior.CustomerID), Step: "checkout_session", Status: "idempotent_replay"})
				return &payment.Session{ID: prior.SessionID, URL: prior.SessionURL, AmountTotal: prior.TotalCents}, nil
			}
			// A prior attempt froze the cart but never got a session, which
			// happens when the processor call failed. Resume that record
			// instead of re-inserting and tripping the unique key.
			return s.resumeSession(ctx, prior)
		}
	}

	if len(req.CartItems) == 0 {
		return nil, fmt.Errorf("%w: empty cart", ErrInvalidCart)
	}
	for _, item := range req.CartItems {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be > 0", ErrInvalidCart)
		}
	}

	cust, err := s.customers.GetByEmail(ctx, req.CustomerEmail)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", req.CustomerEmail, err)
	}
	if _, err := s.customers.GetCustomerAddress(ctx, cust.ID, req.AddressID); err != nil {
		return nil, fmt.Errorf("address %d: %w", req.AddressID, err)
	}

	lines := make([]PricedLine, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, err)
		}
		lines = append(lines, PricedLine{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       item.Quantity,
		})
	}
	quote := NewQuote(lines)

	pc := &PendingCheckout{
		Ref:            uuid.NewString(),
		CustomerID:     cust.ID,
		CustomerEmail:  cust.Email,
		AddressID:      req.AddressID,
		Lines:          quote.Lines,
		SubtotalCents:  quote.SubtotalCents,
		TaxCents:       quote.TaxCents,
		TotalCents:     quote.TotalCents,
		IdempotencyKey: idemKey,
	}
	if err := s.pendings.Create(ctx, pc); err != nil {
		return nil, err
	}

	session, err := s.processor.CreateSession(ctx, payment.SessionParams{
		LineItems:     sessionLineItems(quote),
		CustomerEmail: cust.Email,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata:      map[string]string{MetadataRefKey: pc.Ref},
	})
	if err != nil {
		logging.Log(logging.Fields{Service: "shop-api", CustomerID: string(cust.ID), Step: "checkout_session", Status: "processor_error", Message: err.Error()})
		return nil, err
	}

	if err := s.pendings.AttachSession(ctx, pc.Ref, session.ID, session.URL); err != nil {
		return nil, err
	}

	logging.Log(logging.Fields{Service: "shop-api", SessionID: session.ID, CustomerID: string(cust.ID), Step: "checkout_session", Status: "created"})
	return session, nil
}

// resumeSession retries session creation for a pending checkout that has no
// session yet. Prices stay as frozen by the first attempt.
func (s *Service) resumeSession(ctx context.Context, pc *PendingCheckout) (*payment.Session, error) {
	quote := Quote{
		Lines:         pc.Lines,
		SubtotalCents: pc.SubtotalCents,
		TaxCents:      pc.TaxCents,
		TotalCents:    pc.TotalCents,
	}
	session, err := s.processor.CreateSession(ctx, payment.SessionParams{
		LineItems:     sessionLineItems(quote),
		CustomerEmail: pc.CustomerEmail,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata:      map[string]string{MetadataRefKey: pc.Ref},
	})
	if err != nil {
		logging.Log(logging.Fields{Service: "shop-api", CustomerID: string(pc.CustomerID), Step: "checkout_session", Status: "processor_error", Message: err.Error()})
		return nil, err
	}
	if err := s.pendings.AttachSession(ctx, pc.Ref, session.ID, session.URL); err != nil {
		return nil, err
	}

	logging.Log(logging.Fields{Service: "shop-api", SessionID: session.ID, CustomerID: string(pc.CustomerID), Step: "checkout_session", Status: "resumed"})
	return session, nil
}

// sessionLineItems maps the quote to processor line items: one per cart
// entry plus the synthetic taxes line.
func sessionLineItems(quote Quote) []payment.LineItem {
	items := make([]payment.LineItem, 0, len(quote.Lines)+1)
	for _, l := range quote.Lines {
		items = append(items, payment.LineItem{
			Name:       l.Name,
			UnitAmount: l.UnitPriceCents,
			Quantity:   int64(l.Quantity),
			Currency:   "usd",
		})
	}
	items = append(items, payment.LineItem{
		Name:       "Taxes and Fees",
		UnitAmount: quote.TaxCents,
		Quantity:   1,
		Currency:   "usd",
	})
	return items
}
