package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
)

// DiscountTx is the transaction handle the discount pipeline runs on. Every
// method participates in the same database transaction.
type DiscountTx interface {
	// OrderForUpdate loads the order with items and discounts and locks it
	// until the transaction ends.
	OrderForUpdate(ctx context.Context, id string) (*Order, error)
	// CouponByCode resolves a coupon by its normalized code.
	CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	// InsertDiscount stores d and fills its ID and CreatedAt. It returns
	// coupon.ErrDuplicateDiscount when the pair already exists.
	InsertDiscount(ctx context.Context, d *Discount) error
	// DeleteDiscount removes the discount of couponID from the order. It
	// returns ErrDiscountNotFound when no row matched.
	DeleteDiscount(ctx context.Context, orderID string, couponID int64) error
	// DecrementCouponQuantity takes one use from the coupon, failing with
	// coupon.ErrExhausted when none is left.
	DecrementCouponQuantity(ctx context.Context, couponID int64) error
	// IncrementCouponQuantity returns one use to the coupon.
	IncrementCouponQuantity(ctx context.Context, couponID int64) error
}

// TxRunner runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx DiscountTx) error) error
}

// ApplyResult is the outcome of applying a coupon to an order.
type ApplyResult struct {
	Applied  bool
	Discount *Discount
	// Reason is a human readable explanation when Applied is false.
	Reason string
	// Err is the domain error behind Reason.
	Err error
}

// Preview is the read-only evaluation of a coupon against an order.
type Preview struct {
	Eligible bool
	Amount   decimal.Decimal
	Reason   string
	Err      error
}

// recoverable lists the domain failures reported through ApplyResult rather
// than returned as errors.
var recoverable = []error{
	ErrNotFound,
	coupon.ErrNotFound,
	coupon.ErrExpired,
	coupon.ErrScopeMismatch,
	coupon.ErrRecursionNotAllowed,
	coupon.ErrDuplicateDiscount,
	coupon.ErrExhausted,
}

func isRecoverable(err error) bool {
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DiscountOption configures a DiscountService.
type DiscountOption func(*DiscountService)

// WithClock overrides the time source used for validity checks.
func WithClock(now func() time.Time) DiscountOption {
	return func(s *DiscountService) { s.now = now }
}

// WithMeterProvider sets the meter provider for discount metrics.
func WithMeterProvider(mp metric.MeterProvider) DiscountOption {
	return func(s *DiscountService) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for discount spans.
func WithTracerProvider(tp trace.TracerProvider) DiscountOption {
	return func(s *DiscountService) { s.tracerProvider = tp }
}

// DiscountService applies coupons to orders and removes them again. Each
// operation is one transaction spanning the eligibility read, the discount
// row write and the coupon quantity update.
type DiscountService struct {
	tx      TxRunner
	coupons coupon.Repository
	orders  Repository
	now     func() time.Time

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	applied        metric.Int64Counter
	rejected       metric.Int64Counter
	removed        metric.Int64Counter
	amount         metric.Float64Histogram
}

// NewDiscountService creates a DiscountService. coupons and orders serve
// read-only previews; mutations go through tx.
func NewDiscountService(tx TxRunner, coupons coupon.Repository, orders Repository, opts ...DiscountOption) (*DiscountService, error) {
	s := &DiscountService{
		tx:             tx,
		coupons:        coupons,
		orders:         orders,
		now:            time.Now,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	const name = "github.com/fabianovilela/buymore/internal/domain/order"
	s.tracer = s.tracerProvider.Tracer(name)
	meter := s.meterProvider.Meter(name)

	var err error
	if s.applied, err = meter.Int64Counter("buymore.discount.applied",
		metric.WithDescription("Coupons applied to orders"),
	); err != nil {
		return nil, errors.Wrap(err, "applied counter")
	}
	if s.rejected, err = meter.Int64Counter("buymore.discount.rejected",
		metric.WithDescription("Coupon applications rejected by eligibility or ledger checks"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if s.removed, err = meter.Int64Counter("buymore.discount.removed",
		metric.WithDescription("Discounts removed from orders"),
	); err != nil {
		return nil, errors.Wrap(err, "removed counter")
	}
	if s.amount, err = meter.Float64Histogram("buymore.discount.amount",
		metric.WithDescription("Discount amount granted per application"),
	); err != nil {
		return nil, errors.Wrap(err, "amount histogram")
	}
	return s, nil
}

// Apply evaluates the coupon identified by code against the order and, when
// eligible, records the discount and takes one use from the coupon.
//
// Domain failures (unknown order or coupon, expired, scope mismatch,
// recursion, duplicate, exhausted) yield Applied=false with a nil error and
// leave no state behind. Infrastructure failures are returned as errors.
func (s *DiscountService) Apply(ctx context.Context, code, orderID string) (*ApplyResult, error) {
	code = coupon.NormalizeCode(code)
	ctx, span := s.tracer.Start(ctx, "DiscountService.Apply",
		trace.WithAttributes(
			attribute.String("coupon.code", code),
			attribute.String("order.id", orderID),
		),
	)
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("coupon", code), zap.String("order_id", orderID))

	var d *Discount
	err := s.tx.InTx(ctx, func(tx DiscountTx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		c, err := tx.CouponByCode(ctx, code)
		if err != nil {
			return err
		}
		if o.HasCoupon(c.ID) {
			return coupon.ErrDuplicateDiscount
		}

		t := o.CouponTarget()
		if err := c.Eligible(t, s.now()); err != nil {
			return err
		}

		d = &Discount{
			OrderID:    o.ID,
			CouponID:   c.ID,
			CouponCode: c.Code,
			Recursive:  c.Recursive,
			Amount:     coupon.Compute(c, t),
		}
		if err := tx.InsertDiscount(ctx, d); err != nil {
			return err
		}
		// Runs after the insert so an exhausted coupon rolls the row back.
		return tx.DecrementCouponQuantity(ctx, c.ID)
	})
	if err != nil {
		if isRecoverable(err) {
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", ReasonCode(err))))
			span.SetAttributes(attribute.Bool("discount.applied", false))
			lg.Info("Coupon rejected", zap.Error(err))
			return &ApplyResult{Reason: err.Error(), Err: err}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "apply coupon")
	}

	s.applied.Add(ctx, 1)
	s.amount.Record(ctx, d.Amount.InexactFloat64())
	span.SetAttributes(attribute.Bool("discount.applied", true))
	lg.Info("Coupon applied", zap.String("amount", d.Amount.StringFixed(2)))

	return &ApplyResult{Applied: true, Discount: d}, nil
}

// Remove detaches the discount of couponID from the order and returns one
// use to the coupon.
func (s *DiscountService) Remove(ctx context.Context, orderID string, couponID int64) error {
	ctx, span := s.tracer.Start(ctx, "DiscountService.Remove",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int64("coupon.id", couponID),
		),
	)
	defer span.End()

	err := s.tx.InTx(ctx, func(tx DiscountTx) error {
		if _, err := tx.OrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		if err := tx.DeleteDiscount(ctx, orderID, couponID); err != nil {
			return err
		}
		return tx.IncrementCouponQuantity(ctx, couponID)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDiscountNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return errors.Wrap(err, "remove discount")
	}

	s.removed.Add(ctx, 1)
	zctx.From(ctx).Info("Discount removed",
		zap.String("order_id", orderID),
		zap.Int64("coupon_id", couponID),
	)
	return nil
}

// Preview evaluates the coupon against the order without writing anything.
// It does not consult the remaining quantity beyond reporting an exhausted
// coupon as ineligible.
func (s *DiscountService) Preview(ctx context.Context, code, orderID string) (*Preview, error) {
	code = coupon.NormalizeCode(code)
	ctx, span := s.tracer.Start(ctx, "DiscountService.Preview")
	defer span.End()

	rejected := func(err error) (*Preview, error) {
		if isRecoverable(err) {
			return &Preview{Amount: decimal.Zero, Reason: err.Error(), Err: err}, nil
		}
		return nil, errors.Wrap(err, "preview discount")
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return rejected(err)
	}
	c, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return rejected(err)
	}
	if o.HasCoupon(c.ID) {
		return rejected(coupon.ErrDuplicateDiscount)
	}
	if c.Quantity <= 0 {
		return rejected(coupon.ErrExhausted)
	}

	t := o.CouponTarget()
	if err := c.Eligible(t, s.now()); err != nil {
		return rejected(err)
	}
	return &Preview{Eligible: true, Amount: coupon.Compute(c, t)}, nil
}

// ReasonCode returns a stable machine-readable code for a rejected application.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "order_not_found"
	case errors.Is(err, coupon.ErrNotFound):
		return "coupon_not_found"
	case errors.Is(err, coupon.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, coupon.ErrExpired):
		return "expired"
	case errors.Is(err, coupon.ErrScopeMismatch):
		return "scope_mismatch"
	case errors.Is(err, coupon.ErrRecursionNotAllowed):
		return "recursion_not_allowed"
	case errors.Is(err, coupon.ErrDuplicateDiscount):
		return "duplicate"
	case errors.Is(err, coupon.ErrExhausted):
		return "exhausted"
	default:
		return "unknown"
	}
}
