package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
	"github.com/xenking/kopernik-pizza/internal/domain/delivery"
	"github.com/xenking/kopernik-pizza/internal/domain/discount"
)

// Status is the lifecycle state of an order.
type Status string

// StatusPending is the status of a freshly placed order.
const StatusPending Status = "pending"

// Order is a placed order with its lines.
type Order struct {
	ID              int64
	CustomerID      int64
	Status          Status
	Total           decimal.Decimal
	DiscountCode    string
	DeliveryAgentID *int64
	CreatedAt       time.Time
	Lines           []Line
}

// Line is a single order line priced at placement time.
type Line struct {
	Ref       catalog.ItemRef
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineRequest is a requested cart line.
type LineRequest struct {
	Ref      catalog.ItemRef
	Quantity int
}

// Request holds the input of PlaceOrder. Exactly one of CustomerID and
// Customer must be set.
type Request struct {
	CustomerID   *int64
	Customer     *customer.Input
	Items        []LineRequest
	DiscountCode string
}

// Result describes a committed order. DeliveryAgentName and DiscountApplied
// are empty when no agent was assigned or no code was consumed.
type Result struct {
	OrderID           int64
	CustomerID        int64
	CustomerName      string
	Total             decimal.Decimal
	DeliveryAgentName string
	DiscountApplied   string
	ItemsCount        int
}

// Tx is the storage available inside one order transaction.
type Tx interface {
	customer.Repository
	catalog.Repository
	discount.Repository
	delivery.Repository

	// CreateOrder stores o with its lines and sets o.ID.
	CreateOrder(ctx context.Context, o *Order) error
	// GetOrder returns ErrOrderNotFound for unknown ids.
	GetOrder(ctx context.Context, id int64) (*Order, error)
}

// Store runs functions inside a storage transaction.
type Store interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
