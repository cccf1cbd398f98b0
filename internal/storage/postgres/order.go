package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (customer_id, status, total, discount_code, delivery_agent_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6) RETURNING id`

	getOrderSQL = `SELECT id, customer_id, status, total, COALESCE(discount_code, ''), delivery_agent_id, created_at
		FROM orders WHERE id = $1`

	listOrderLinesSQL = `SELECT item_kind, item_id, quantity, unit_price
		FROM order_lines WHERE order_id = $1 ORDER BY id`
)

var orderLineColumns = []string{"order_id", "item_kind", "item_id", "quantity", "unit_price"}

func (t *tx) CreateOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, createOrderSQL,
		o.CustomerID, string(o.Status), o.Total, o.DiscountCode, o.DeliveryAgentID, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return wrapError(err, "creating order")
	}

	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{"order_lines"}, orderLineColumns,
		pgx.CopyFromSlice(len(o.Lines), func(i int) ([]any, error) {
			l := o.Lines[i]
			return []any{o.ID, string(l.Ref.Kind), l.Ref.ID, int32(l.Quantity), l.UnitPrice}, nil
		}),
	)
	if err != nil {
		return wrapError(err, fmt.Sprintf("creating lines of order %d", o.ID))
	}
	if int(n) != len(o.Lines) {
		return errors.Errorf("order %d: copied %d of %d lines", o.ID, n, len(o.Lines))
	}
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := t.tx.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.CustomerID, &status, &o.Total, &o.DiscountCode, &o.DeliveryAgentID, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(order.ErrOrderNotFound, "id %d", id)
		}
		return nil, wrapError(err, fmt.Sprintf("getting order %d", id))
	}
	o.Status = order.Status(status)

	rows, err := t.tx.Query(ctx, listOrderLinesSQL, id)
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("listing lines of order %d", id))
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Line, error) {
		var (
			l    order.Line
			kind string
			qty  int32
		)
		if err := row.Scan(&kind, &l.Ref.ID, &qty, &l.UnitPrice); err != nil {
			return l, err
		}
		l.Ref.Kind = catalog.Kind(kind)
		l.Quantity = int(qty)
		return l, nil
	})
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("listing lines of order %d", id))
	}
	return &o, nil
}
