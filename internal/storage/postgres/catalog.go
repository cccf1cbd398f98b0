package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
)

const (
	getPizzaSQL = `SELECT name FROM pizzas WHERE id = $1`

	listPizzaPortionsSQL = `SELECT i.name, i.cost_per_unit, pi.quantity
		FROM pizza_ingredients pi
		JOIN ingredients i ON i.id = pi.ingredient_id
		WHERE pi.pizza_id = $1
		ORDER BY i.id`

	getDrinkSQL   = `SELECT name, price FROM drinks WHERE id = $1`
	getDessertSQL = `SELECT name, price FROM desserts WHERE id = $1`
)

func (t *tx) FindCatalogItem(ctx context.Context, ref catalog.ItemRef) (*catalog.Item, error) {
	item := &catalog.Item{Ref: ref}

	var err error
	switch ref.Kind {
	case catalog.KindPizza:
		err = t.tx.QueryRow(ctx, getPizzaSQL, ref.ID).Scan(&item.Name)
	case catalog.KindDrink:
		err = t.tx.QueryRow(ctx, getDrinkSQL, ref.ID).Scan(&item.Name, &item.Price)
	case catalog.KindDessert:
		err = t.tx.QueryRow(ctx, getDessertSQL, ref.ID).Scan(&item.Name, &item.Price)
	default:
		return nil, errors.Wrapf(catalog.ErrUnknownKind, "%q", ref.Kind)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.NotFoundError{Ref: ref}
		}
		return nil, wrapError(err, fmt.Sprintf("getting %s", ref))
	}

	if ref.Kind != catalog.KindPizza {
		return item, nil
	}
	rows, err := t.tx.Query(ctx, listPizzaPortionsSQL, ref.ID)
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("listing ingredients of %s", ref))
	}
	item.Portions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Portion, error) {
		var p catalog.Portion
		err := row.Scan(&p.Ingredient, &p.CostPerUnit, &p.Quantity)
		return p, err
	})
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("listing ingredients of %s", ref))
	}
	return item, nil
}
