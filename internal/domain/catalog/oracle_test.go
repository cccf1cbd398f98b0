package catalog

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	items map[ItemRef]*Item
	err   error
	calls int
}

func (m *mockRepo) FindCatalogItem(_ context.Context, ref ItemRef) (*Item, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	it, ok := m.items[ref]
	if !ok {
		return nil, &NotFoundError{Ref: ref}
	}
	return it, nil
}

func portion(name, cost, qty string) Portion {
	return Portion{
		Ingredient:  name,
		CostPerUnit: decimal.RequireFromString(cost),
		Quantity:    decimal.RequireFromString(qty),
	}
}

func TestPizzaPrice(t *testing.T) {
	tests := []struct {
		name     string
		portions []Portion
		want     string
	}{
		{
			name:     "no ingredients",
			portions: nil,
			want:     "0",
		},
		{
			name:     "single ingredient",
			portions: []Portion{portion("Mozzarella", "10.00", "1")},
			want:     "15.26",
		},
		{
			name: "margherita",
			portions: []Portion{
				portion("Mozzarella", "2.50", "1"),
				portion("Tomato Sauce", "0.80", "1"),
			},
			want: "5.04",
		},
		{
			// Rounding the intermediate 1.665 would give 2.55.
			name:     "rounds only the final amount",
			portions: []Portion{portion("Basil", "3.33", "0.5")},
			want:     "2.54",
		},
		{
			name:     "fractional quantity",
			portions: []Portion{portion("Dough", "2.00", "3.932")},
			want:     "12.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PizzaPrice(tt.portions)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestOracle_UnitPrice(t *testing.T) {
	pizza := ItemRef{Kind: KindPizza, ID: 1}
	drink := ItemRef{Kind: KindDrink, ID: 1}
	dessert := ItemRef{Kind: KindDessert, ID: 2}

	repo := &mockRepo{items: map[ItemRef]*Item{
		pizza: {
			Ref:  pizza,
			Name: "Margherita",
			// Stored prices are ignored for pizzas.
			Price: decimal.RequireFromString("99.00"),
			Portions: []Portion{
				portion("Mozzarella", "2.50", "1"),
				portion("Tomato Sauce", "0.80", "1"),
			},
		},
		drink:   {Ref: drink, Name: "Coca Cola", Price: decimal.RequireFromString("2.50")},
		dessert: {Ref: dessert, Name: "Tiramisu", Price: decimal.RequireFromString("5.50")},
	}}
	oracle := NewOracle(repo)

	tests := []struct {
		ref  ItemRef
		want string
	}{
		{ref: pizza, want: "5.04"},
		{ref: drink, want: "2.50"},
		{ref: dessert, want: "5.50"},
	}
	for _, tt := range tests {
		t.Run(tt.ref.String(), func(t *testing.T) {
			got, err := oracle.UnitPrice(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestOracle_UnitPrice_NotFound(t *testing.T) {
	oracle := NewOracle(&mockRepo{})

	_, err := oracle.UnitPrice(context.Background(), ItemRef{Kind: KindPizza, ID: 99999})
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(99999), nf.Ref.ID)
	assert.Equal(t, "pizza 99999 not found", err.Error())
}

func TestOracle_UnitPrice_UnknownKind(t *testing.T) {
	repo := &mockRepo{}
	oracle := NewOracle(repo)

	_, err := oracle.UnitPrice(context.Background(), ItemRef{Kind: "salad", ID: 1})
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Zero(t, repo.calls, "unknown kinds must not reach storage")
}

func TestOracle_UnitPrice_RepoError(t *testing.T) {
	dbErr := errors.New("connection reset")
	oracle := NewOracle(&mockRepo{err: dbErr})

	_, err := oracle.UnitPrice(context.Background(), ItemRef{Kind: KindDrink, ID: 1})
	require.ErrorIs(t, err, dbErr)
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"pizza", "drink", "dessert"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}

	_, err := ParseKind("Pizza")
	require.ErrorIs(t, err, ErrUnknownKind)
	_, err = ParseKind("")
	require.ErrorIs(t, err, ErrUnknownKind)
}
