package order

import (
	"time"

	"github.com/nazeru/shop-backend-go/internal/domain"
)

// RecentWindow is how far back GET /order/recent looks for a just-placed
// order.
const RecentWindow = 2 * time.Minute

const orderDateLayout = "January 02, 2006"

type ItemView struct {
	ID       domain.ProductID `json:"id"`
	Category string           `json:"category"`
	Name     string           `json:"name"`
	Image    string           `json:"image"`
	Brand    string           `json:"brand"`
	Price    float64          `json:"price"`
	Quantity int32            `json:"quantity"`
	Subtotal float64          `json:"subtotal"`
}

type View struct {
	ID          domain.OrderID `json:"id"`
	OrderItems  []ItemView     `json:"orderItems"`
	Subtotal    float64        `json:"subtotal"`
	Status      int            `json:"status"`
	FullName    string         `json:"full_name"`
	ShipAddress string         `json:"shipAddress"`
	OrderDate   string         `json:"orderDate"`
}

func Dollars(cents int64) float64 {
	return float64(cents) / 100
}

// NewView assembles the customer-facing order shape.
func NewView(o *domain.Order, addr *domain.Address, items []ItemView) View {
	return View{
		ID:          o.ID,
		OrderItems:  items,
		Subtotal:    Dollars(o.TotalCents),
		Status:      int(o.Status),
		FullName:    addr.FirstName + " " + addr.LastName,
		ShipAddress: addr.FullStreet(),
		OrderDate:   o.OrderDate.Format(orderDateLayout),
	}
}

// IsRecent reports whether the order was placed inside the confirmation
// window.
func IsRecent(orderDate, now time.Time) bool {
	return now.Sub(orderDate) < RecentWindow
}
