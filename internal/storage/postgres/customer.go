package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kopernik-pizza/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, name, email, phone, address, birthday
		FROM customers WHERE id = $1`

	findCustomerByEmailOrPhoneSQL = `SELECT id, name, email, phone, address, birthday
		FROM customers WHERE email = $1 OR phone = $2
		ORDER BY id LIMIT 1`

	createCustomerSQL = `INSERT INTO customers (name, email, phone, address, birthday)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
)

func (t *tx) FindCustomer(ctx context.Context, id int64) (*customer.Customer, error) {
	rows, err := t.tx.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("getting customer %d", id))
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(customer.ErrNotFound, "id %d", id)
		}
		return nil, wrapError(err, fmt.Sprintf("getting customer %d", id))
	}
	return &c, nil
}

func (t *tx) FindCustomerByEmailOrPhone(ctx context.Context, email, phone string) (*customer.Customer, error) {
	rows, err := t.tx.Query(ctx, findCustomerByEmailOrPhoneSQL, email, phone)
	if err != nil {
		return nil, wrapError(err, "finding customer by email or phone")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, wrapError(err, "finding customer by email or phone")
	}
	return &c, nil
}

func (t *tx) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	err := t.tx.QueryRow(ctx, createCustomerSQL,
		c.Name, c.Email, c.Phone, c.Address, c.Birthday,
	).Scan(&c.ID)
	if err != nil {
		return wrapError(err, fmt.Sprintf("creating customer %q", c.Email))
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Birthday)
	return c, err
}
