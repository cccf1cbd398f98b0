package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind tags an orderable catalog item.
type Kind string

const (
	// KindPizza is a pizza whose price is derived from its ingredients.
	KindPizza Kind = "pizza"
	// KindDrink is a drink with a stored price.
	KindDrink Kind = "drink"
	// KindDessert is a dessert with a stored price.
	KindDessert Kind = "dessert"
)

var (
	// ErrNotFound is returned when a referenced catalog item does not exist.
	ErrNotFound = errors.New("catalog item not found")
	// ErrUnknownKind is returned for an item kind other than pizza, drink or dessert.
	ErrUnknownKind = errors.New("unknown item kind")
)

// ParseKind converts a wire value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPizza, KindDrink, KindDessert:
		return true
	default:
		return false
	}
}

// ItemRef identifies a catalog item by kind and id.
type ItemRef struct {
	Kind Kind
	ID   int64
}

func (r ItemRef) String() string {
	return string(r.Kind) + " " + strconv.FormatInt(r.ID, 10)
}

// NotFoundError reports a missing catalog item. It matches ErrNotFound.
type NotFoundError struct {
	Ref ItemRef
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Ref)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Portion is the amount of one ingredient used by a pizza.
type Portion struct {
	Ingredient  string
	CostPerUnit decimal.Decimal
	Quantity    decimal.Decimal
}

// Item is an orderable product. Pizzas carry Portions, drinks and desserts
// carry a stored Price.
type Item struct {
	Ref      ItemRef
	Name     string
	Price    decimal.Decimal
	Portions []Portion
}

// Repository looks up catalog items.
type Repository interface {
	FindCatalogItem(ctx context.Context, ref ItemRef) (*Item, error)
}
