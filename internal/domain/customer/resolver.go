package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrAmbiguous is returned when a request names both a customer id and
// customer details.
var ErrAmbiguous = errors.New("customer id and customer details are mutually exclusive")

// Resolver finds or creates the customer an order belongs to.
type Resolver struct {
	repo Repository
	now  func() time.Time
}

// NewResolver returns a Resolver backed by repo.
func NewResolver(repo Repository, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{repo: repo, now: now}
}

// Resolve returns the customer with the given id, or the customer matching
// in by email or phone, creating one when nothing matches. Details are
// validated only on the create path. created reports whether a new record
// was stored.
func (r *Resolver) Resolve(ctx context.Context, id *int64, in *Input) (c *Customer, created bool, err error) {
	switch {
	case id != nil && in != nil:
		return nil, false, ErrAmbiguous
	case id != nil:
		c, err := r.repo.FindCustomer(ctx, *id)
		if err != nil {
			return nil, false, err
		}
		return c, false, nil
	case in == nil:
		return nil, false, &ValidationError{Field: "customer", Reason: "customerId or customer is required"}
	}

	email, phone := strings.TrimSpace(in.Email), strings.TrimSpace(in.Phone)
	if email == "" && phone == "" {
		return nil, false, &ValidationError{Field: "customer", Reason: "email or phone is required"}
	}

	// A returning customer is identified by email or phone alone; the
	// remaining fields only matter when a new record is created.
	existing, err := r.repo.FindCustomerByEmailOrPhone(ctx, email, phone)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, errors.Wrap(err, "lookup customer")
	}

	candidate, err := in.Validate(r.now())
	if err != nil {
		return nil, false, err
	}
	if err := r.repo.CreateCustomer(ctx, candidate); err != nil {
		return nil, false, errors.Wrap(err, "create customer")
	}
	return candidate, true, nil
}
