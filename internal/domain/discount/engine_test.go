package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type mockRepo struct {
	codes   map[string]*Code
	past    map[int64]int64
	findErr error
	sumErr  error
	marked  []string
}

func (m *mockRepo) FindDiscountCode(_ context.Context, code string) (*Code, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) MarkDiscountCodeUsed(_ context.Context, code string, at time.Time) error {
	c, ok := m.codes[code]
	if !ok {
		return ErrCodeNotFound
	}
	if c.Used {
		return ErrCodeUsed
	}
	c.Used = true
	c.UsedAt = &at
	m.marked = append(m.marked, code)
	return nil
}

func (m *mockRepo) SumPastPizzaQuantity(_ context.Context, customerID int64) (int64, error) {
	if m.sumErr != nil {
		return 0, m.sumErr
	}
	return m.past[customerID], nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pizza(id int64, price string, qty int) PricedLine {
	return PricedLine{Ref: catalog.ItemRef{Kind: catalog.KindPizza, ID: id}, Quantity: qty, UnitPrice: d(price)}
}

func drink(id int64, price string, qty int) PricedLine {
	return PricedLine{Ref: catalog.ItemRef{Kind: catalog.KindDrink, ID: id}, Quantity: qty, UnitPrice: d(price)}
}

func dessert(id int64, price string, qty int) PricedLine {
	return PricedLine{Ref: catalog.ItemRef{Kind: catalog.KindDessert, ID: id}, Quantity: qty, UnitPrice: d(price)}
}

func birthdayToday() *time.Time {
	b := time.Date(1990, testNow.Month(), testNow.Day(), 0, 0, 0, 0, time.UTC)
	return &b
}

func newEngine(repo *mockRepo) *Engine {
	return NewEngine(repo, func() time.Time { return testNow })
}

func TestPriceOrder(t *testing.T) {
	const (
		regular = int64(1)
		loyal   = int64(2)
		almost  = int64(3)
	)
	repo := &mockRepo{past: map[int64]int64{loyal: 10, almost: 9}}

	tests := []struct {
		name         string
		lines        []PricedLine
		cust         customer.Customer
		code         *Code
		wantTotal    string
		wantLoyalty  bool
		wantBirthday bool
	}{
		{
			name:      "single pizza",
			lines:     []PricedLine{pizza(1, "12.00", 1)},
			cust:      customer.Customer{ID: regular},
			wantTotal: "12.00",
		},
		{
			name:      "quantities multiply",
			lines:     []PricedLine{pizza(1, "12.00", 2), drink(1, "2.50", 3), dessert(1, "5.50", 1)},
			cust:      customer.Customer{ID: regular},
			wantTotal: "37.00",
		},
		{
			name:        "ten past pizzas earn loyalty",
			lines:       []PricedLine{pizza(1, "12.00", 1)},
			cust:        customer.Customer{ID: loyal},
			wantTotal:   "10.80",
			wantLoyalty: true,
		},
		{
			name:      "nine past pizzas do not",
			lines:     []PricedLine{pizza(1, "12.00", 1)},
			cust:      customer.Customer{ID: almost},
			wantTotal: "12.00",
		},
		{
			name:      "code percent",
			lines:     []PricedLine{pizza(1, "12.00", 1)},
			cust:      customer.Customer{ID: regular},
			code:      &Code{Code: "SAVE25", PercentOff: d("25")},
			wantTotal: "9.00",
		},
		{
			name:        "loyalty and code compound",
			lines:       []PricedLine{pizza(1, "12.00", 2), drink(1, "2.50", 1)},
			cust:        customer.Customer{ID: loyal},
			code:        &Code{Code: "SAVE20", PercentOff: d("20")},
			wantTotal:   "19.08",
			wantLoyalty: true,
		},
		{
			name:         "birthday with pizza and drink",
			lines:        []PricedLine{pizza(1, "12.00", 1), drink(1, "2.50", 1)},
			cust:         customer.Customer{ID: regular, Birthday: birthdayToday()},
			wantTotal:    "0.00",
			wantBirthday: true,
		},
		{
			name:      "birthday with pizza only",
			lines:     []PricedLine{pizza(1, "12.00", 1)},
			cust:      customer.Customer{ID: regular, Birthday: birthdayToday()},
			wantTotal: "12.00",
		},
		{
			name:      "birthday with pizza and dessert",
			lines:     []PricedLine{pizza(1, "12.00", 1), dessert(1, "5.50", 1)},
			cust:      customer.Customer{ID: regular, Birthday: birthdayToday()},
			wantTotal: "17.50",
		},
		{
			name: "birthday takes cheapest unit prices",
			lines: []PricedLine{
				pizza(1, "12.00", 1),
				pizza(2, "9.00", 3),
				drink(1, "2.50", 1),
				drink(2, "1.50", 4),
			},
			cust:         customer.Customer{ID: regular, Birthday: birthdayToday()},
			wantTotal:    "37.00",
			wantBirthday: true,
		},
		{
			name:         "deduction applied after multiplicative discounts",
			lines:        []PricedLine{pizza(1, "12.00", 2), drink(1, "2.50", 1)},
			cust:         customer.Customer{ID: loyal, Birthday: birthdayToday()},
			code:         &Code{Code: "SAVE20", PercentOff: d("20")},
			wantTotal:    "4.58",
			wantLoyalty:  true,
			wantBirthday: true,
		},
		{
			name:         "floored at zero",
			lines:        []PricedLine{pizza(1, "12.00", 1), drink(1, "2.50", 1)},
			cust:         customer.Customer{ID: regular, Birthday: birthdayToday()},
			code:         &Code{Code: "FREE", PercentOff: d("100")},
			wantTotal:    "0.00",
			wantBirthday: true,
		},
		{
			name:      "rounds half away from zero",
			lines:     []PricedLine{pizza(1, "10.05", 1)},
			cust:      customer.Customer{ID: regular},
			code:      &Code{Code: "HALF", PercentOff: d("50")},
			wantTotal: "5.03",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newEngine(repo).PriceOrder(context.Background(), tt.lines, &tt.cust, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, b.Total.StringFixed(2))
			assert.Equal(t, tt.wantLoyalty, b.LoyaltyApplied)
			assert.Equal(t, tt.wantBirthday, b.BirthdayApplied)
			assert.False(t, b.Total.IsNegative())
		})
	}
}

func TestPriceOrder_Deterministic(t *testing.T) {
	repo := &mockRepo{past: map[int64]int64{1: 12}}
	e := newEngine(repo)
	lines := []PricedLine{pizza(1, "12.37", 3), drink(1, "2.50", 2)}
	cust := &customer.Customer{ID: 1, Birthday: birthdayToday()}
	code := &Code{Code: "SAVE15", PercentOff: d("15")}

	first, err := e.PriceOrder(context.Background(), lines, cust, code)
	require.NoError(t, err)
	second, err := e.PriceOrder(context.Background(), lines, cust, code)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, repo.marked, "pricing must not redeem the code")
}

func TestPriceOrder_UsedCode(t *testing.T) {
	_, err := newEngine(&mockRepo{}).PriceOrder(context.Background(),
		[]PricedLine{pizza(1, "12.00", 1)},
		&customer.Customer{ID: 1},
		&Code{Code: "USED", PercentOff: d("10"), Used: true},
	)
	require.ErrorIs(t, err, ErrCodeUsed)
}

func TestPriceOrder_HistoryError(t *testing.T) {
	dbErr := errors.New("timeout")
	_, err := newEngine(&mockRepo{sumErr: dbErr}).PriceOrder(context.Background(),
		[]PricedLine{pizza(1, "12.00", 1)}, &customer.Customer{ID: 1}, nil)
	require.ErrorIs(t, err, dbErr)
}

func TestLookup(t *testing.T) {
	repo := &mockRepo{codes: map[string]*Code{
		"WELCOME10": {Code: "WELCOME10", PercentOff: d("10")},
		"SPENT":     {Code: "SPENT", PercentOff: d("10"), Used: true},
		"BROKEN":    {Code: "BROKEN", PercentOff: d("150")},
	}}
	e := newEngine(repo)

	c, err := e.Lookup(context.Background(), "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, "0.1", c.Rate().String())

	_, err = e.Lookup(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrCodeNotFound)
	var ce *CodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "NOPE", ce.Code)

	_, err = e.Lookup(context.Background(), "SPENT")
	require.ErrorIs(t, err, ErrCodeUsed)

	_, err = e.Lookup(context.Background(), "BROKEN")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCodeNotFound)

	// Codes match exactly.
	_, err = e.Lookup(context.Background(), "welcome10")
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedeem_SingleUse(t *testing.T) {
	repo := &mockRepo{codes: map[string]*Code{
		"ONCE": {Code: "ONCE", PercentOff: d("50")},
	}}
	e := newEngine(repo)

	c, err := e.Lookup(context.Background(), "ONCE")
	require.NoError(t, err)
	require.NoError(t, e.Redeem(context.Background(), c))
	assert.True(t, c.Used)
	assert.Equal(t, []string{"ONCE"}, repo.marked)
	require.NotNil(t, repo.codes["ONCE"].UsedAt)
	assert.Equal(t, testNow, *repo.codes["ONCE"].UsedAt)

	err = e.Redeem(context.Background(), &Code{Code: "ONCE"})
	require.ErrorIs(t, err, ErrCodeUsed)

	_, err = e.Lookup(context.Background(), "ONCE")
	require.ErrorIs(t, err, ErrCodeUsed)
}

func TestBirthdayDeduction(t *testing.T) {
	got, ok := BirthdayDeduction([]PricedLine{pizza(1, "12.00", 5), drink(1, "2.50", 5)})
	require.True(t, ok)
	assert.Equal(t, "14.50", got.StringFixed(2), "quantity does not scale the deduction")

	_, ok = BirthdayDeduction([]PricedLine{drink(1, "2.50", 1)})
	assert.False(t, ok)

	_, ok = BirthdayDeduction(nil)
	assert.False(t, ok)
}
