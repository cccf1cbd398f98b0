package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kopernik-pizza/internal/domain/customer"
)

type seedFile struct {
	Ingredients   []ingredientJSON `json:"ingredients"`
	Pizzas        []pizzaJSON      `json:"pizzas"`
	Drinks        []drinkJSON      `json:"drinks"`
	Desserts      []dessertJSON    `json:"desserts"`
	Customers     []customerJSON   `json:"customers"`
	Agents        []agentJSON      `json:"agents"`
	DiscountCodes []codeJSON       `json:"discountCodes"`
}

type ingredientJSON struct {
	Name        string          `json:"name"`
	CostPerUnit decimal.Decimal `json:"costPerUnit"`
	Vegetarian  bool            `json:"vegetarian"`
	Vegan       bool            `json:"vegan"`
}

type pizzaJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Ingredients []struct {
		Name     string          `json:"name"`
		Quantity decimal.Decimal `json:"quantity"`
	} `json:"ingredients"`
}

type drinkJSON struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Size  string          `json:"size"`
}

type dessertJSON struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

type customerJSON struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Birthday string `json:"birthday"`
}

type agentJSON struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Zones     []string `json:"zones"`
}

type codeJSON struct {
	Code       string          `json:"code"`
	PercentOff decimal.Decimal `json:"percentOff"`
}

var zoneRe = regexp.MustCompile(`^\d{3}$`)

// parseSeed decodes and cross-checks a seed file before anything touches
// the database.
func parseSeed(data []byte) (*seedFile, error) {
	var s seedFile
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	known := make(map[string]struct{}, len(s.Ingredients))
	for _, ing := range s.Ingredients {
		if !ing.CostPerUnit.IsPositive() {
			return nil, errors.Errorf("ingredient %q: cost must be positive", ing.Name)
		}
		known[ing.Name] = struct{}{}
	}
	for _, p := range s.Pizzas {
		if len(p.Ingredients) == 0 {
			return nil, errors.Errorf("pizza %q has no ingredients", p.Name)
		}
		for _, pi := range p.Ingredients {
			if _, ok := known[pi.Name]; !ok {
				return nil, errors.Errorf("pizza %q: unknown ingredient %q", p.Name, pi.Name)
			}
			if !pi.Quantity.IsPositive() {
				return nil, errors.Errorf("pizza %q: quantity of %q must be positive", p.Name, pi.Name)
			}
		}
	}
	now := time.Now()
	for _, c := range s.Customers {
		if _, err := (customer.Input{
			Name:     c.Name,
			Email:    c.Email,
			Phone:    c.Phone,
			Address:  c.Address,
			Birthday: c.Birthday,
		}).Validate(now); err != nil {
			return nil, errors.Wrapf(err, "customer %q", c.Email)
		}
	}
	for _, a := range s.Agents {
		for _, z := range a.Zones {
			if !zoneRe.MatchString(z) {
				return nil, errors.Errorf("agent %q: zone %q is not a 3-digit prefix", a.Name, z)
			}
		}
	}
	hundred := decimal.NewFromInt(100)
	for _, c := range s.DiscountCodes {
		if c.PercentOff.IsNegative() || c.PercentOff.GreaterThan(hundred) {
			return nil, errors.Errorf("discount code %q: percent %s out of range", c.Code, c.PercentOff)
		}
	}
	return &s, nil
}

// seedAll upserts the whole seed in one transaction. Re-running it is safe.
func seedAll(ctx context.Context, pool *pgxpool.Pool, s *seedFile) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		ingredientIDs := make(map[string]int64, len(s.Ingredients))
		for _, ing := range s.Ingredients {
			var id int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO ingredients (name, cost_per_unit, is_vegetarian, is_vegan)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (name) DO UPDATE
				SET cost_per_unit = EXCLUDED.cost_per_unit,
				    is_vegetarian = EXCLUDED.is_vegetarian,
				    is_vegan      = EXCLUDED.is_vegan
				RETURNING id`,
				ing.Name, ing.CostPerUnit, ing.Vegetarian, ing.Vegan,
			).Scan(&id); err != nil {
				return errors.Wrapf(err, "upsert ingredient %s", ing.Name)
			}
			ingredientIDs[ing.Name] = id
		}
		slog.Info("upserted ingredients", slog.Int("count", len(s.Ingredients)))

		for _, p := range s.Pizzas {
			var id int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO pizzas (name, description) VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
				RETURNING id`,
				p.Name, p.Description,
			).Scan(&id); err != nil {
				return errors.Wrapf(err, "upsert pizza %s", p.Name)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM pizza_ingredients WHERE pizza_id = $1`, id); err != nil {
				return errors.Wrapf(err, "reset recipe of %s", p.Name)
			}
			rows := make([][]any, 0, len(p.Ingredients))
			for _, pi := range p.Ingredients {
				rows = append(rows, []any{id, ingredientIDs[pi.Name], pi.Quantity})
			}
			if _, err := tx.CopyFrom(ctx,
				pgx.Identifier{"pizza_ingredients"},
				[]string{"pizza_id", "ingredient_id", "quantity"},
				pgx.CopyFromRows(rows),
			); err != nil {
				return errors.Wrapf(err, "copy recipe of %s", p.Name)
			}
		}
		slog.Info("upserted pizzas", slog.Int("count", len(s.Pizzas)))

		for _, d := range s.Drinks {
			if _, err := tx.Exec(ctx, `
				INSERT INTO drinks (name, price, size) VALUES ($1, $2, $3)
				ON CONFLICT (name) DO UPDATE SET price = EXCLUDED.price, size = EXCLUDED.size`,
				d.Name, d.Price, d.Size,
			); err != nil {
				return errors.Wrapf(err, "upsert drink %s", d.Name)
			}
		}
		for _, d := range s.Desserts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO desserts (name, price, description) VALUES ($1, $2, $3)
				ON CONFLICT (name) DO UPDATE SET price = EXCLUDED.price, description = EXCLUDED.description`,
				d.Name, d.Price, d.Description,
			); err != nil {
				return errors.Wrapf(err, "upsert dessert %s", d.Name)
			}
		}
		slog.Info("upserted drinks and desserts",
			slog.Int("drinks", len(s.Drinks)),
			slog.Int("desserts", len(s.Desserts)),
		)

		for _, c := range s.Customers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO customers (name, email, phone, address, birthday)
				VALUES ($1, $2, $3, $4, NULLIF($5, '')::date)
				ON CONFLICT DO NOTHING`,
				c.Name, c.Email, c.Phone, c.Address, c.Birthday,
			); err != nil {
				return errors.Wrapf(err, "insert customer %s", c.Email)
			}
		}
		slog.Info("inserted customers", slog.Int("count", len(s.Customers)))

		for _, a := range s.Agents {
			var id int64
			err := tx.QueryRow(ctx, `SELECT id FROM delivery_agents WHERE name = $1`, a.Name).Scan(&id)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				if err := tx.QueryRow(ctx,
					`INSERT INTO delivery_agents (name, available) VALUES ($1, $2) RETURNING id`,
					a.Name, a.Available,
				).Scan(&id); err != nil {
					return errors.Wrapf(err, "insert agent %s", a.Name)
				}
			case err != nil:
				return errors.Wrapf(err, "find agent %s", a.Name)
			default:
				if _, err := tx.Exec(ctx, `UPDATE delivery_agents SET available = $2 WHERE id = $1`, id, a.Available); err != nil {
					return errors.Wrapf(err, "update agent %s", a.Name)
				}
			}
			for _, z := range a.Zones {
				if _, err := tx.Exec(ctx,
					`INSERT INTO delivery_zones (prefix, agent_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					z, id,
				); err != nil {
					return errors.Wrapf(err, "insert zone %s for %s", z, a.Name)
				}
			}
		}
		slog.Info("upserted delivery agents", slog.Int("count", len(s.Agents)))

		for _, c := range s.DiscountCodes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO discount_codes (code, percent_off) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`,
				c.Code, c.PercentOff,
			); err != nil {
				return errors.Wrapf(err, "insert discount code %s", c.Code)
			}
		}
		slog.Info("inserted discount codes", slog.Int("count", len(s.DiscountCodes)))
		return nil
	})
}
