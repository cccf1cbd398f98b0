package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
)

// LoyaltyThreshold is the number of past pizza units that earns the loyalty
// discount.
const LoyaltyThreshold = 10

var (
	// LoyaltyRate is the multiplicative loyalty discount.
	LoyaltyRate = decimal.RequireFromString("0.10")

	hundred = decimal.NewFromInt(100)
)

var (
	// ErrCodeNotFound is returned for a discount code that does not exist.
	ErrCodeNotFound = errors.New("discount code not found")
	// ErrCodeUsed is returned for a discount code that was already redeemed.
	ErrCodeUsed = errors.New("discount code already used")
)

// CodeError attaches the offending code to ErrCodeNotFound or ErrCodeUsed.
type CodeError struct {
	Code string
	Err  error
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Code)
}

func (e *CodeError) Unwrap() error { return e.Err }

// Code is a single-use percentage discount.
type Code struct {
	Code       string
	PercentOff decimal.Decimal
	Used       bool
	UsedAt     *time.Time
}

// Rate returns the percent off as a fraction.
func (c *Code) Rate() decimal.Decimal {
	return c.PercentOff.Div(hundred)
}

// PricedLine is an order line with its resolved unit price.
type PricedLine struct {
	Ref       catalog.ItemRef
	Quantity  int
	UnitPrice decimal.Decimal
}

// Breakdown explains how a total was reached.
type Breakdown struct {
	Base              decimal.Decimal
	PastPizzaUnits    int64
	LoyaltyApplied    bool
	CodeRate          decimal.Decimal
	Running           decimal.Decimal
	BirthdayApplied   bool
	BirthdayDeduction decimal.Decimal
	Total             decimal.Decimal
}

// Repository provides discount code and order history access.
type Repository interface {
	// FindDiscountCode returns ErrCodeNotFound for unknown codes. Storage
	// implementations lock the row for the rest of the transaction.
	FindDiscountCode(ctx context.Context, code string) (*Code, error)
	// MarkDiscountCodeUsed flips the used flag and returns ErrCodeUsed when
	// the code was already used.
	MarkDiscountCodeUsed(ctx context.Context, code string, at time.Time) error
	SumPastPizzaQuantity(ctx context.Context, customerID int64) (int64, error)
}
