// Package memory implements the order storage in process memory.
//
// Transactions are fully serialized: InTx holds the store lock for the
// whole callback and works on a private copy of the data, which replaces
// the shared state only on commit.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
	"github.com/xenking/kopernik-pizza/internal/domain/delivery"
	"github.com/xenking/kopernik-pizza/internal/domain/discount"
	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

type state struct {
	customers map[int64]customer.Customer
	items     map[catalog.ItemRef]catalog.Item
	codes     map[string]discount.Code
	agents    map[int64]delivery.Agent
	zones     map[string][]int64
	orders    map[int64]order.Order

	lastCustomerID int64
	lastOrderID    int64
}

func newState() *state {
	return &state{
		customers: make(map[int64]customer.Customer),
		items:     make(map[catalog.ItemRef]catalog.Item),
		codes:     make(map[string]discount.Code),
		agents:    make(map[int64]delivery.Agent),
		zones:     make(map[string][]int64),
		orders:    make(map[int64]order.Order),
	}
}

// clone copies the maps. Stored values are never mutated in place, so the
// values themselves are shared.
func (s *state) clone() *state {
	return &state{
		customers:      maps.Clone(s.customers),
		items:          maps.Clone(s.items),
		codes:          maps.Clone(s.codes),
		agents:         maps.Clone(s.agents),
		zones:          maps.Clone(s.zones),
		orders:         maps.Clone(s.orders),
		lastCustomerID: s.lastCustomerID,
		lastOrderID:    s.lastOrderID,
	}
}

// Store is an in-memory order.Store.
type Store struct {
	mu         sync.Mutex
	data       *state
	commitHook func() error
}

var _ order.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{data: newState()}
}

// SetCommitHook installs fn to run right before a commit is applied. A
// non-nil error from fn aborts the commit.
func (s *Store) SetCommitHook(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

// InTx runs fn in a serialized transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "begin")
	}
	t := &tx{st: s.data.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "commit")
	}
	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return errors.Wrap(err, "commit")
		}
	}
	s.data = t.st
	return nil
}

// AddCustomer stores c, assigning an id when c.ID is zero.
func (s *Store) AddCustomer(c customer.Customer) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.data.lastCustomerID++
		c.ID = s.data.lastCustomerID
	} else if c.ID > s.data.lastCustomerID {
		s.data.lastCustomerID = c.ID
	}
	s.data.customers[c.ID] = c
	return c.ID
}

// AddItem stores a catalog item under its ref.
func (s *Store) AddItem(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.items[it.Ref] = it
}

// AddDiscountCode stores a discount code.
func (s *Store) AddDiscountCode(c discount.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.codes[c.Code] = c
}

// AddAgent stores a delivery agent serving the given zone prefixes.
func (s *Store) AddAgent(a delivery.Agent, prefixes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.agents[a.ID] = a
	for _, p := range prefixes {
		s.data.zones[p] = append(s.data.zones[p], a.ID)
	}
}

// AddOrder stores a historical order, assigning an id.
func (s *Store) AddOrder(o order.Order) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.lastOrderID++
	o.ID = s.data.lastOrderID
	s.data.orders[o.ID] = o
	return o.ID
}

// Snapshot is a point-in-time copy of the store contents.
type Snapshot struct {
	Customers []customer.Customer
	Codes     map[string]discount.Code
	Agents    map[int64]delivery.Agent
	Orders    []order.Order
}

// Snapshot returns the committed contents, customers and orders sorted by id.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Codes:  maps.Clone(s.data.codes),
		Agents: maps.Clone(s.data.agents),
	}
	for _, c := range s.data.customers {
		snap.Customers = append(snap.Customers, c)
	}
	sort.Slice(snap.Customers, func(i, j int) bool { return snap.Customers[i].ID < snap.Customers[j].ID })
	for _, o := range s.data.orders {
		snap.Orders = append(snap.Orders, o)
	}
	sort.Slice(snap.Orders, func(i, j int) bool { return snap.Orders[i].ID < snap.Orders[j].ID })
	return snap
}

type tx struct {
	st *state
}

var _ order.Tx = (*tx)(nil)

func (t *tx) FindCustomer(_ context.Context, id int64) (*customer.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return nil, errors.Wrapf(customer.ErrNotFound, "id %d", id)
	}
	return &c, nil
}

func (t *tx) FindCustomerByEmailOrPhone(_ context.Context, email, phone string) (*customer.Customer, error) {
	var found *customer.Customer
	for _, c := range t.st.customers {
		if (email == "" || c.Email != email) && (phone == "" || c.Phone != phone) {
			continue
		}
		if found == nil || c.ID < found.ID {
			found = &c
		}
	}
	if found == nil {
		return nil, customer.ErrNotFound
	}
	return found, nil
}

func (t *tx) CreateCustomer(_ context.Context, c *customer.Customer) error {
	for _, existing := range t.st.customers {
		if existing.Email == c.Email || existing.Phone == c.Phone {
			return errors.Wrapf(order.ErrConflict, "customer with email %q or phone %q exists", c.Email, c.Phone)
		}
	}
	t.st.lastCustomerID++
	c.ID = t.st.lastCustomerID
	t.st.customers[c.ID] = *c
	return nil
}

func (t *tx) FindCatalogItem(_ context.Context, ref catalog.ItemRef) (*catalog.Item, error) {
	it, ok := t.st.items[ref]
	if !ok {
		return nil, &catalog.NotFoundError{Ref: ref}
	}
	return &it, nil
}

func (t *tx) FindDiscountCode(_ context.Context, code string) (*discount.Code, error) {
	c, ok := t.st.codes[code]
	if !ok {
		return nil, discount.ErrCodeNotFound
	}
	return &c, nil
}

func (t *tx) MarkDiscountCodeUsed(_ context.Context, code string, at time.Time) error {
	c, ok := t.st.codes[code]
	if !ok {
		return discount.ErrCodeNotFound
	}
	if c.Used {
		return discount.ErrCodeUsed
	}
	c.Used = true
	c.UsedAt = &at
	t.st.codes[code] = c
	return nil
}

func (t *tx) SumPastPizzaQuantity(_ context.Context, customerID int64) (int64, error) {
	var sum int64
	for _, o := range t.st.orders {
		if o.CustomerID != customerID {
			continue
		}
		for _, l := range o.Lines {
			if l.Ref.Kind == catalog.KindPizza {
				sum += int64(l.Quantity)
			}
		}
	}
	return sum, nil
}

func eligible(a delivery.Agent, cutoff time.Time) bool {
	return a.Available && (a.LastAssignedAt == nil || !a.LastAssignedAt.After(cutoff))
}

func (t *tx) FindEligibleDeliveryAgent(_ context.Context, zonePrefix string, cutoff time.Time) (*delivery.Agent, error) {
	var best *delivery.Agent
	for _, id := range t.st.zones[zonePrefix] {
		a, ok := t.st.agents[id]
		if !ok || !eligible(a, cutoff) {
			continue
		}
		if best == nil || lessRecentlyAssigned(a, *best) {
			best = &a
		}
	}
	return best, nil
}

// lessRecentlyAssigned orders never-assigned agents first, then by
// assignment time, then by id.
func lessRecentlyAssigned(a, b delivery.Agent) bool {
	switch {
	case a.LastAssignedAt == nil && b.LastAssignedAt == nil:
		return a.ID < b.ID
	case a.LastAssignedAt == nil:
		return true
	case b.LastAssignedAt == nil:
		return false
	case a.LastAssignedAt.Equal(*b.LastAssignedAt):
		return a.ID < b.ID
	default:
		return a.LastAssignedAt.Before(*b.LastAssignedAt)
	}
}

func (t *tx) MarkAgentAssigned(_ context.Context, agentID int64, at, cutoff time.Time) error {
	a, ok := t.st.agents[agentID]
	if !ok || !eligible(a, cutoff) {
		return delivery.ErrAgentBusy
	}
	a.LastAssignedAt = &at
	t.st.agents[agentID] = a
	return nil
}

func (t *tx) CreateOrder(_ context.Context, o *order.Order) error {
	if _, ok := t.st.customers[o.CustomerID]; !ok {
		return errors.Errorf("order references unknown customer %d", o.CustomerID)
	}
	if o.Total.IsNegative() {
		return errors.Errorf("order total %s is negative", o.Total)
	}
	if o.DiscountCode != "" {
		if _, ok := t.st.codes[o.DiscountCode]; !ok {
			return errors.Errorf("order references unknown discount code %q", o.DiscountCode)
		}
	}
	if o.DeliveryAgentID != nil {
		if _, ok := t.st.agents[*o.DeliveryAgentID]; !ok {
			return errors.Errorf("order references unknown agent %d", *o.DeliveryAgentID)
		}
	}
	for _, l := range o.Lines {
		if l.Quantity <= 0 {
			return errors.Errorf("line %s has quantity %d", l.Ref, l.Quantity)
		}
	}

	t.st.lastOrderID++
	o.ID = t.st.lastOrderID
	stored := *o
	stored.Lines = append([]order.Line(nil), o.Lines...)
	t.st.orders[o.ID] = stored
	return nil
}

func (t *tx) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, errors.Wrapf(order.ErrOrderNotFound, "id %d", id)
	}
	o.Lines = append([]order.Line(nil), o.Lines...)
	return &o, nil
}
