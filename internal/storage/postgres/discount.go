package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/discount"
)

const (
	// The row lock is held until commit, so a concurrent redeemer of the same
	// code blocks here and then observes used = TRUE.
	lockDiscountCodeSQL = `SELECT code, percent_off, used, used_at
		FROM discount_codes WHERE code = $1
		FOR UPDATE`

	markDiscountCodeUsedSQL = `UPDATE discount_codes SET used = TRUE, used_at = $2
		WHERE code = $1 AND NOT used`

	sumPastPizzaQuantitySQL = `SELECT COALESCE(SUM(l.quantity), 0)
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE o.customer_id = $1 AND l.item_kind = $2`
)

func (t *tx) FindDiscountCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := t.tx.Query(ctx, lockDiscountCodeSQL, code)
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("locking discount code %q", code))
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (discount.Code, error) {
		var c discount.Code
		err := row.Scan(&c.Code, &c.PercentOff, &c.Used, &c.UsedAt)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrCodeNotFound
		}
		return nil, wrapError(err, fmt.Sprintf("locking discount code %q", code))
	}
	return &c, nil
}

func (t *tx) MarkDiscountCodeUsed(ctx context.Context, code string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, markDiscountCodeUsedSQL, code, at)
	if err != nil {
		return wrapError(err, fmt.Sprintf("marking discount code %q used", code))
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrCodeUsed
	}
	return nil
}

func (t *tx) SumPastPizzaQuantity(ctx context.Context, customerID int64) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx, sumPastPizzaQuantitySQL, customerID, string(catalog.KindPizza)).Scan(&sum)
	if err != nil {
		return 0, wrapError(err, fmt.Sprintf("summing pizzas of customer %d", customerID))
	}
	return sum, nil
}
