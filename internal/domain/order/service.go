package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kopernik-pizza/internal/domain/catalog"
	"github.com/xenking/kopernik-pizza/internal/domain/customer"
	"github.com/xenking/kopernik-pizza/internal/domain/delivery"
	"github.com/xenking/kopernik-pizza/internal/domain/discount"
)

const instrumentationName = "github.com/xenking/kopernik-pizza/internal/domain/order"

// Service places orders as single storage transactions.
type Service struct {
	store  Store
	cfg    Config
	now    func() time.Time
	tracer trace.Tracer

	placed metric.Int64Counter
	failed metric.Int64Counter
	totals metric.Float64Histogram
}

// NewService creates an order Service on top of store.
func NewService(store Store, cfg Config, opts ...Option) (*Service, error) {
	o := newOptions(opts)
	meter := o.meterProvider.Meter(instrumentationName)

	placed, err := meter.Int64Counter("pizza.orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	failed, err := meter.Int64Counter("pizza.orders.failed",
		metric.WithDescription("Orders rolled back, by error kind"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	totals, err := meter.Float64Histogram("pizza.orders.total",
		metric.WithDescription("Committed order totals"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "totals histogram")
	}

	return &Service{
		store:  store,
		cfg:    cfg,
		now:    o.now,
		tracer: o.tracerProvider.Tracer(instrumentationName),
		placed: placed,
		failed: failed,
		totals: totals,
	}, nil
}

// PlaceOrder resolves the customer, prices the cart, redeems the discount
// code, assigns a delivery agent and stores the order, all in one
// transaction. Failures are returned as *Error and leave no trace in
// storage.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	if s.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
	}

	var res *Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := s.place(ctx, tx, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		oe := classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(oe.Kind))
		span.SetAttributes(attribute.String("order.error_kind", string(oe.Kind)))
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(oe.Kind))))

		lg := zctx.From(ctx).With(zap.String("order.kind", string(oe.Kind)), zap.Error(err))
		if oe.Kind == KindTransactionFailed {
			lg.Error("Order rolled back")
		} else {
			lg.Warn("Order rejected")
		}
		return nil, oe
	}

	span.SetAttributes(
		attribute.Int64("order.id", res.OrderID),
		attribute.Int64("customer.id", res.CustomerID),
		attribute.String("order.total", res.Total.StringFixed(2)),
	)
	s.placed.Add(ctx, 1)
	s.totals.Record(ctx, res.Total.InexactFloat64())

	zctx.From(ctx).Info("Order placed",
		zap.Int64("order.id", res.OrderID),
		zap.Int64("customer.id", res.CustomerID),
		zap.String("total", res.Total.StringFixed(2)),
		zap.String("delivery_agent", res.DeliveryAgentName),
		zap.String("discount_code", res.DiscountApplied),
	)
	return res, nil
}

func (s *Service) place(ctx context.Context, tx Tx, req Request) (*Result, error) {
	lg := zctx.From(ctx)
	now := s.now()
	clock := func() time.Time { return now }

	// 1. Customer.
	cust, created, err := customer.NewResolver(tx, clock).Resolve(ctx, req.CustomerID, req.Customer)
	if err != nil {
		return nil, err
	}
	lg.Debug("Customer resolved", zap.Int64("customer.id", cust.ID), zap.Bool("created", created))

	// 2. Cart.
	if err := validateCart(req.Items); err != nil {
		return nil, err
	}
	oracle := catalog.NewOracle(tx)
	priced := make([]discount.PricedLine, len(req.Items))
	for i, item := range req.Items {
		price, err := oracle.UnitPrice(ctx, item.Ref)
		if err != nil {
			return nil, err
		}
		priced[i] = discount.PricedLine{Ref: item.Ref, Quantity: item.Quantity, UnitPrice: price}
	}

	// 3. Stage the order; nothing is written until the final step.
	o := &Order{
		CustomerID: cust.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		Lines:      make([]Line, len(priced)),
	}
	for i, p := range priced {
		o.Lines[i] = Line{Ref: p.Ref, Quantity: p.Quantity, UnitPrice: p.UnitPrice}
	}

	// 4. Discount code.
	engine := discount.NewEngine(tx, clock)
	var code *discount.Code
	if c := strings.TrimSpace(req.DiscountCode); c != "" {
		code, err = engine.Lookup(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	// 5. Total.
	b, err := engine.PriceOrder(ctx, priced, cust, code)
	if err != nil {
		return nil, err
	}
	o.Total = b.Total
	lg.Debug("Order priced",
		zap.String("base", b.Base.StringFixed(2)),
		zap.Bool("loyalty", b.LoyaltyApplied),
		zap.String("code_rate", b.CodeRate.String()),
		zap.Bool("birthday", b.BirthdayApplied),
		zap.String("total", b.Total.StringFixed(2)),
	)

	// 6. Redeem.
	if code != nil {
		if err := engine.Redeem(ctx, code); err != nil {
			return nil, err
		}
		o.DiscountCode = code.Code
	}

	// 7. Delivery.
	agent, err := delivery.NewAssigner(tx, s.cfg.DeliveryCooldown, clock).Assign(ctx, cust.Address)
	switch {
	case errors.Is(err, delivery.ErrNoPostalCode):
		lg.Warn("Skipping delivery assignment",
			zap.Int64("customer.id", cust.ID),
			zap.String("order.kind", string(KindNoPostalCode)),
		)
	case err != nil:
		return nil, err
	case agent == nil:
		lg.Info("No delivery agent available", zap.Int64("customer.id", cust.ID))
	default:
		o.DeliveryAgentID = &agent.ID
	}

	// 8. Final check and write.
	if o.Total.IsNegative() {
		return nil, errors.Wrapf(ErrInvariant, "negative total %s", o.Total)
	}
	if len(o.Lines) == 0 {
		return nil, errors.Wrap(ErrInvariant, "no lines")
	}
	if err := tx.CreateOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	res := &Result{
		OrderID:         o.ID,
		CustomerID:      cust.ID,
		CustomerName:    cust.Name,
		Total:           o.Total,
		DiscountApplied: o.DiscountCode,
		ItemsCount:      len(o.Lines),
	}
	if agent != nil {
		res.DeliveryAgentName = agent.Name
	}
	return res, nil
}

func validateCart(items []LineRequest) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	hasPizza := false
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return &InvalidQuantityError{Ref: item.Ref, Quantity: item.Quantity}
		}
		if !item.Ref.Kind.Valid() {
			return errors.Wrapf(catalog.ErrUnknownKind, "%q", item.Ref.Kind)
		}
		if item.Ref.Kind == catalog.KindPizza {
			hasPizza = true
		}
	}
	if !hasPizza {
		return ErrNoPizza
	}
	return nil
}

// GetOrder returns a committed order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var o *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		o = got
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return o, nil
}
