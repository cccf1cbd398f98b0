//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://pizza:pizza@%s:%s/pizza?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	return m.Run()
}

const fixtureSQL = `
TRUNCATE order_lines, orders, customers, discount_codes, delivery_zones, delivery_agents,
	pizza_ingredients, pizzas, ingredients, drinks, desserts RESTART IDENTITY CASCADE;

INSERT INTO ingredients (id, name, cost_per_unit) VALUES (1, 'Dough', 2.00), (2, 'Mozzarella', 2.50);
INSERT INTO pizzas (id, name) VALUES (1, 'Margherita');
INSERT INTO pizza_ingredients (pizza_id, ingredient_id, quantity) VALUES (1, 1, 3.932);
INSERT INTO drinks (id, name, price) VALUES (1, 'Coca Cola', 2.50);
INSERT INTO desserts (id, name, price) VALUES (1, 'Tiramisu', 5.50);
INSERT INTO delivery_agents (id, name) VALUES (1, 'Giuseppe Bianchi'), (2, 'Maria Rossi');
INSERT INTO delivery_zones (prefix, agent_id) VALUES ('100', 1), ('100', 2);
INSERT INTO discount_codes (code, percent_off) VALUES ('RACE', 20), ('ONCE', 50);
`

func setup(t *testing.T) *order.Service {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, fixtureSQL)
	require.NoError(t, err)

	svc, err := order.NewService(NewStore(testPool), order.Config{
		TxTimeout:        10 * time.Second,
		DeliveryCooldown: 30 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func newCustomer(n int) *customer.Input {
	return &customer.Input{
		Name:    fmt.Sprintf("Customer %d", n),
		Email:   fmt.Sprintf("customer%d@example.com", n),
		Phone:   fmt.Sprintf("+1555000%04d", n),
		Address: "5th Avenue 1, 10001 City",
	}
}

var margherita = order.LineRequest{Ref: catalog.ItemRef{Kind: catalog.KindPizza, ID: 1}, Quantity: 1}

func count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, testPool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestPlaceOrder_RoundTrip(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	res, err := svc.PlaceOrder(ctx, order.Request{
		Customer: newCustomer(1),
		Items: []order.LineRequest{
			margherita,
			{Ref: catalog.ItemRef{Kind: catalog.KindDrink, ID: 1}, Quantity: 2},
		},
		DiscountCode: "ONCE",
	})
	require.NoError(t, err)
	assert.Equal(t, "8.50", res.Total.StringFixed(2))
	assert.Equal(t, "Giuseppe Bianchi", res.DeliveryAgentName)
	assert.Equal(t, "ONCE", res.DiscountApplied)
	assert.Equal(t, 2, res.ItemsCount)

	o, err := svc.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "ONCE", o.DiscountCode)
	require.NotNil(t, o.DeliveryAgentID)
	assert.Equal(t, int64(1), *o.DeliveryAgentID)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "12.00", o.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, o.Lines[1].Quantity)

	_, err = svc.PlaceOrder(ctx, order.Request{
		Customer:     newCustomer(2),
		Items:        []order.LineRequest{margherita},
		DiscountCode: "ONCE",
	})
	assert.Equal(t, order.KindAlreadyUsed, order.KindOf(err))
	assert.Equal(t, 1, count(t, "customers"))

	_, err = svc.GetOrder(ctx, res.OrderID+100)
	assert.Equal(t, order.KindNotFound, order.KindOf(err))
}

func TestPlaceOrder_RollbackOnFailure(t *testing.T) {
	svc := setup(t)

	_, err := svc.PlaceOrder(context.Background(), order.Request{
		Customer: newCustomer(1),
		Items: []order.LineRequest{
			margherita,
			{Ref: catalog.ItemRef{Kind: catalog.KindDessert, ID: 42}, Quantity: 1},
		},
		DiscountCode: "ONCE",
	})
	assert.Equal(t, order.KindNotFound, order.KindOf(err))

	assert.Zero(t, count(t, "customers"))
	assert.Zero(t, count(t, "orders"))
	assert.Zero(t, count(t, "discount_codes WHERE used"))
	assert.Zero(t, count(t, "delivery_agents WHERE last_assigned_at IS NOT NULL"))
}

func TestPlaceOrder_ConcurrentCode(t *testing.T) {
	const attempts = 12
	svc := setup(t)

	var succeeded, alreadyUsed atomic.Int32
	var g errgroup.Group
	for i := range attempts {
		g.Go(func() error {
			_, err := svc.PlaceOrder(context.Background(), order.Request{
				Customer:     newCustomer(i),
				Items:        []order.LineRequest{margherita},
				DiscountCode: "RACE",
			})
			switch order.KindOf(err) {
			case "":
				if err != nil {
					return err
				}
				succeeded.Add(1)
			case order.KindAlreadyUsed:
				alreadyUsed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(attempts-1), alreadyUsed.Load())
	assert.Equal(t, 1, count(t, "orders WHERE discount_code = 'RACE'"))
}

func TestPlaceOrder_ConcurrentAgents(t *testing.T) {
	const attempts = 8
	svc := setup(t)

	var g errgroup.Group
	agents := make([]string, attempts)
	for i := range attempts {
		g.Go(func() error {
			res, err := svc.PlaceOrder(context.Background(), order.Request{
				Customer: newCustomer(i),
				Items:    []order.LineRequest{margherita},
			})
			if err != nil {
				return err
			}
			agents[i] = res.DeliveryAgentName
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assigned := map[string]int{}
	for _, name := range agents {
		if name != "" {
			assigned[name]++
		}
	}
	// Two agents serve the zone and each can take one order per cooldown.
	assert.Equal(t, map[string]int{"Giuseppe Bianchi": 1, "Maria Rossi": 1}, assigned)
	assert.Equal(t, attempts, count(t, "orders"))
	assert.Equal(t, 2, count(t, "orders WHERE delivery_agent_id IS NOT NULL"))
}

func TestTx_CustomerRoundTrip(t *testing.T) {
	setup(t)
	store := NewStore(testPool)
	bday := time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)

	err := store.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		c := &customer.Customer{Name: "Mario", Email: "mario@example.com", Phone: "+39061234567",
			Address: "Via Roma 1, 00100 Rome", Birthday: &bday}
		require.NoError(t, tx.CreateCustomer(ctx, c))

		got, err := tx.FindCustomerByEmailOrPhone(ctx, "other@example.com", "+39061234567")
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		require.NotNil(t, got.Birthday)
		assert.Equal(t, "1990-03-14", got.Birthday.Format(customer.DateLayout))

		dup := &customer.Customer{Name: "Luigi", Email: "mario@example.com", Phone: "+39000", Address: "x"}
		err = tx.CreateCustomer(ctx, dup)
		require.ErrorIs(t, err, order.ErrConflict)
		return err
	})
	require.Error(t, err)
	assert.Zero(t, count(t, "customers"))
}
