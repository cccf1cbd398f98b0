package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
)

// Engine prices orders and redeems discount codes.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by repo.
func NewEngine(repo Repository, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, now: now}
}

// Lookup returns the named code if it exists and is unused.
func (e *Engine) Lookup(ctx context.Context, code string) (*Code, error) {
	code = strings.TrimSpace(code)
	c, err := e.repo.FindDiscountCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, &CodeError{Code: code, Err: ErrCodeNotFound}
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}
	if c.Used {
		return nil, &CodeError{Code: code, Err: ErrCodeUsed}
	}
	if c.PercentOff.IsNegative() || c.PercentOff.GreaterThan(hundred) {
		return nil, errors.Errorf("discount code %q: percent off %s out of range", code, c.PercentOff)
	}
	return c, nil
}

// Redeem marks code as used.
func (e *Engine) Redeem(ctx context.Context, code *Code) error {
	if err := e.repo.MarkDiscountCodeUsed(ctx, code.Code, e.now()); err != nil {
		if errors.Is(err, ErrCodeUsed) {
			return &CodeError{Code: code.Code, Err: ErrCodeUsed}
		}
		return errors.Wrap(err, "mark discount code used")
	}
	code.Used = true
	return nil
}

// PriceOrder computes the order total. Loyalty and code discounts multiply
// the running total in that order, then the birthday deduction is
// subtracted. code may be nil.
func (e *Engine) PriceOrder(ctx context.Context, lines []PricedLine, cust *customer.Customer, code *Code) (Breakdown, error) {
	var b Breakdown
	if code != nil && code.Used {
		return b, &CodeError{Code: code.Code, Err: ErrCodeUsed}
	}

	b.Base = Base(lines)
	b.Running = b.Base

	past, err := e.repo.SumPastPizzaQuantity(ctx, cust.ID)
	if err != nil {
		return b, errors.Wrap(err, "sum past pizza quantity")
	}
	b.PastPizzaUnits = past
	if past >= LoyaltyThreshold {
		b.LoyaltyApplied = true
		b.Running = b.Running.Mul(decimal.NewFromInt(1).Sub(LoyaltyRate))
	}

	b.CodeRate = decimal.Zero
	if code != nil {
		b.CodeRate = code.Rate()
		b.Running = b.Running.Mul(decimal.NewFromInt(1).Sub(b.CodeRate))
	}

	b.BirthdayDeduction = decimal.Zero
	if cust.HasBirthdayOn(e.now()) {
		if d, ok := BirthdayDeduction(lines); ok {
			b.BirthdayApplied = true
			b.BirthdayDeduction = d
		}
	}

	b.Total = b.Running.Sub(b.BirthdayDeduction).Round(2)
	if b.Total.IsNegative() {
		b.Total = decimal.Zero
	}
	return b, nil
}

// Base sums unit price times quantity over lines.
func Base(lines []PricedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// BirthdayDeduction returns the cheapest pizza unit price plus the cheapest
// drink unit price. ok is false unless lines hold at least one of each.
func BirthdayDeduction(lines []PricedLine) (d decimal.Decimal, ok bool) {
	var pizza, drink *decimal.Decimal
	for i := range lines {
		p := lines[i].UnitPrice
		switch lines[i].Ref.Kind {
		case catalog.KindPizza:
			if pizza == nil || p.LessThan(*pizza) {
				pizza = &p
			}
		case catalog.KindDrink:
			if drink == nil || p.LessThan(*drink) {
				drink = &p
			}
		}
	}
	if pizza == nil || drink == nil {
		return decimal.Zero, false
	}
	return pizza.Add(*drink), true
}
