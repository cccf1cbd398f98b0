package order

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
	"github.com/xenking/kopernik-pizza/internal/domain/delivery"
	"github.com/xenking/kopernik-pizza/internal/domain/discount"
)

// Kind classifies order failures.
type Kind string

const (
	// KindInvalidInput marks malformed requests: customer details, item
	// kinds, quantities.
	KindInvalidInput Kind = "InvalidInput"
	// KindNotFound marks a missing customer, catalog item, discount code or
	// order.
	KindNotFound Kind = "NotFound"
	// KindAlreadyUsed marks a single-use discount code that was redeemed.
	KindAlreadyUsed Kind = "AlreadyUsed"
	// KindBusinessRuleViolation marks carts that break ordering rules.
	KindBusinessRuleViolation Kind = "BusinessRuleViolation"
	// KindNoPostalCode marks an address without a 5-digit postal code. It
	// is logged, never returned: such orders commit without an agent.
	KindNoPostalCode Kind = "NoPostalCode"
	// KindTransactionFailed marks storage, commit, timeout and concurrency
	// failures, and anything not classified otherwise.
	KindTransactionFailed Kind = "TransactionFailed"
)

// MaxQuantity is the largest quantity of a single order line.
const MaxQuantity = math.MaxInt32

var (
	// ErrEmptyCart is returned for a request without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNoPizza is returned when no line of the cart is a pizza.
	ErrNoPizza = errors.New("order must contain at least one pizza")
	// ErrOrderNotFound is returned by GetOrder for an unknown id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrConflict is wrapped by storage errors caused by concurrent
	// transactions (serialization failures, deadlocks, unique races).
	ErrConflict = errors.New("concurrent update conflict")
	// ErrInvariant is returned when a staged order fails the final check.
	ErrInvariant = errors.New("order invariant violated")
)

// InvalidQuantityError indicates a cart line with a quantity outside
// [1, MaxQuantity].
type InvalidQuantityError struct {
	Ref      catalog.ItemRef
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for %s, got %d", MaxQuantity, e.Ref, e.Quantity)
}

// Error is returned by Service operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of an order error, or "" when err is not one.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func classify(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return &Error{Kind: kindOf(err), Message: err.Error(), Err: err}
}

func kindOf(err error) Kind {
	var iq *InvalidQuantityError
	switch {
	case errors.As(err, &iq),
		errors.Is(err, customer.ErrInvalid),
		errors.Is(err, customer.ErrAmbiguous),
		errors.Is(err, catalog.ErrUnknownKind):
		return KindInvalidInput
	case errors.Is(err, customer.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, discount.ErrCodeNotFound),
		errors.Is(err, ErrOrderNotFound):
		return KindNotFound
	case errors.Is(err, discount.ErrCodeUsed):
		return KindAlreadyUsed
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrNoPizza),
		errors.Is(err, ErrInvariant):
		return KindBusinessRuleViolation
	case errors.Is(err, delivery.ErrNoPostalCode):
		return KindNoPostalCode
	default:
		return KindTransactionFailed
	}
}
