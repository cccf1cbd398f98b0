package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	pizzaMargin = decimal.RequireFromString("1.40")
	pizzaTax    = decimal.RequireFromString("1.09")
)

// PizzaPrice returns the ingredient cost with a 40% margin and 9% tax applied
// in that order. Rounding happens once, on the final amount.
func PizzaPrice(portions []Portion) decimal.Decimal {
	cost := decimal.Zero
	for _, p := range portions {
		cost = cost.Add(p.CostPerUnit.Mul(p.Quantity))
	}
	return cost.Mul(pizzaMargin).Mul(pizzaTax).Round(2)
}

// UnitPrice returns the price of a single unit of the item.
func (i *Item) UnitPrice() (decimal.Decimal, error) {
	switch i.Ref.Kind {
	case KindPizza:
		return PizzaPrice(i.Portions), nil
	case KindDrink, KindDessert:
		return i.Price, nil
	default:
		return decimal.Zero, errors.Wrapf(ErrUnknownKind, "%q", i.Ref.Kind)
	}
}

// Oracle prices catalog items through a Repository.
type Oracle struct {
	repo Repository
}

// NewOracle returns an Oracle reading from repo.
func NewOracle(repo Repository) *Oracle {
	return &Oracle{repo: repo}
}

// UnitPrice looks up the referenced item and returns its unit price.
func (o *Oracle) UnitPrice(ctx context.Context, ref ItemRef) (decimal.Decimal, error) {
	if !ref.Kind.Valid() {
		return decimal.Zero, errors.Wrapf(ErrUnknownKind, "%q", ref.Kind)
	}
	item, err := o.repo.FindCatalogItem(ctx, ref)
	if err != nil {
		return decimal.Zero, err
	}
	return item.UnitPrice()
}
