package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-backend-go/internal/domain"
)

// taxRate is the fixed 6.625% applied to every cart subtotal.
var taxRate = decimal.RequireFromString("0.06625")

// PricedLine is one cart line with the unit price frozen at checkout time.
// The webhook consumer prices order items from these, never from the live
// product row and never from client-echoed data.
type PricedLine struct {
	ProductID      domain.ProductID `json:"product_id"`
	Name           string           `json:"name"`
	UnitPriceCents int64            `json:"unit_price_cents"`
	Quantity       int32            `json:"quantity"`
}

type Quote struct {
	Lines         []PricedLine
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
}

// TaxCents computes round(subtotal * 0.06625) in cents.
func TaxCents(subtotalCents int64) int64 {
	return decimal.NewFromInt(subtotalCents).Mul(taxRate).Round(0).IntPart()
}

// NewQuote prices frozen lines: subtotal, tax line, total.
func NewQuote(lines []PricedLine) Quote {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.UnitPriceCents * int64(l.Quantity)
	}
	tax := TaxCents(subtotal)
	return Quote{
		Lines:         lines,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
	}
}
