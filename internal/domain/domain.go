package domain

import "time"

type CustomerID string
type ProductID int64
type CategoryID int64
type AddressID int64
type OrderID int64

type OrderStatus int

const (
	OrderStatusProcessing OrderStatus = 0
	OrderStatusShipped    OrderStatus = 1
	OrderStatusDelivered  OrderStatus = 2
)

type Customer struct {
	ID        CustomerID
	FirstName string
	LastName  string
	Email     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Address struct {
	ID         AddressID
	CustomerID CustomerID
	FirstName  string
	LastName   string
	Street     string
	Street2    string
	City       string
	State      string
	ZipCode    string
	Country    string
	IsDefault  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullStreet renders the single-line display form used on order views.
func (a Address) FullStreet() string {
	if a.Street2 != "" {
		return a.Street + " " + a.Street2 + ", " + a.City + " " + a.State + " " + a.ZipCode
	}
	return a.Street + ", " + a.City + " " + a.State + " " + a.ZipCode
}

type Category struct {
	ID          CategoryID
	Name        string
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          ProductID
	CategoryID  CategoryID
	Image       string
	Name        string
	Description string
	Brand       string
	PriceCents  int64
	Quantity    int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Review struct {
	ID         int64
	ProductID  ProductID
	CustomerID CustomerID
	Rating     int
	Title      string
	Comment    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID         int64
	OrderID    OrderID
	ProductID  ProductID
	Quantity   int32
	PriceCents int64 // captured subtotal at purchase time
}

type Order struct {
	ID            OrderID
	CustomerID    CustomerID
	TotalCents    int64
	ShipAddressID AddressID
	Status        OrderStatus
	OrderDate     time.Time
}

// CartItem is a single line of a not-yet-persisted cart.
type CartItem struct {
	ProductID ProductID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}
