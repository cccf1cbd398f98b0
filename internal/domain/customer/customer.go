package customer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// DateLayout is the ISO date format accepted for birthdays.
const DateLayout = "2006-01-02"

// maxAge bounds how far in the past a birthday may lie.
const maxAge = 120

var (
	// ErrNotFound is returned when a customer id does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrInvalid is matched by every ValidationError.
	ErrInvalid = errors.New("invalid customer")
)

// ValidationError reports a missing or malformed customer field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("customer %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Customer is a persisted customer record.
type Customer struct {
	ID       int64
	Name     string
	Email    string
	Phone    string
	Address  string
	Birthday *time.Time
}

// HasBirthdayOn reports whether day falls on the customer's birth month and
// day. Both dates are compared in UTC.
func (c *Customer) HasBirthdayOn(day time.Time) bool {
	if c.Birthday == nil {
		return false
	}
	b := c.Birthday.UTC()
	d := day.UTC()
	return b.Month() == d.Month() && b.Day() == d.Day()
}

// Input carries the customer fields of an order request.
type Input struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	Birthday string
}

// Validate checks required fields and parses the birthday relative to now.
func (in Input) Validate(now time.Time) (*Customer, error) {
	c := &Customer{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
	}
	switch {
	case c.Name == "":
		return nil, &ValidationError{Field: "name", Reason: "required"}
	case c.Email == "":
		return nil, &ValidationError{Field: "email", Reason: "required"}
	case !strings.Contains(c.Email, "@"):
		return nil, &ValidationError{Field: "email", Reason: "malformed"}
	case c.Phone == "":
		return nil, &ValidationError{Field: "phone", Reason: "required"}
	case c.Address == "":
		return nil, &ValidationError{Field: "address", Reason: "required"}
	}

	raw := strings.TrimSpace(in.Birthday)
	if raw == "" {
		return c, nil
	}
	b, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil, &ValidationError{Field: "birthday", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", raw)}
	}
	today := truncateDay(now)
	if b.After(today) {
		return nil, &ValidationError{Field: "birthday", Reason: "cannot be in the future"}
	}
	if b.Before(today.AddDate(-maxAge, 0, 0)) {
		return nil, &ValidationError{Field: "birthday", Reason: fmt.Sprintf("cannot be more than %d years ago", maxAge)}
	}
	c.Birthday = &b
	return c, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Repository provides customer lookup and creation.
type Repository interface {
	FindCustomer(ctx context.Context, id int64) (*Customer, error)
	// FindCustomerByEmailOrPhone returns ErrNotFound when neither matches.
	FindCustomerByEmailOrPhone(ctx context.Context, email, phone string) (*Customer, error)
	// CreateCustomer stores c and sets its ID.
	CreateCustomer(ctx context.Context, c *Customer) error
}
