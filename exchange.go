package wyvern

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/events"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/ledger"
	"github.com/kaifufi/wyvern-exchange-go/registry"
	"github.com/kaifufi/wyvern-exchange-go/statics"
	"github.com/kaifufi/wyvern-exchange-go/telemetry"
)

// Exchange matches pairs of orders and settles them atomically through the
// makers' proxies.
type Exchange struct {
	address    common.Address
	domain     *chain.EIP712Domain
	host       *host.Host
	registries map[common.Address]*registry.Registry
	statics    *statics.Registry
	ledger     *ledger.Ledger

	verifier chain.Verifier
	sink     events.Sink
	metrics  *Metrics
	log      *logrus.Entry
	tracer   trace.Tracer
}

var _ host.Contract = (*Exchange)(nil)

// ExchangeOption configures an Exchange
type ExchangeOption func(*Exchange)

// WithVerifier replaces the ECDSA signature verifier
func WithVerifier(v chain.Verifier) ExchangeOption {
	return func(e *Exchange) {
		e.verifier = v
	}
}

// WithEventSink sets where committed events are published
func WithEventSink(sink events.Sink) ExchangeOption {
	return func(e *Exchange) {
		e.sink = sink
	}
}

// WithMetrics sets the exchange metrics
func WithMetrics(m *Metrics) ExchangeOption {
	return func(e *Exchange) {
		e.metrics = m
	}
}

// WithLogger sets the exchange logger
func WithLogger(log *logrus.Entry) ExchangeOption {
	return func(e *Exchange) {
		e.log = log
	}
}

// WithTracer sets the tracer used for exchange spans
func WithTracer(t trace.Tracer) ExchangeOption {
	return func(e *Exchange) {
		e.tracer = t
	}
}

// NewExchange creates the exchange living at address. Orders naming a
// registry outside registries are rejected.
func NewExchange(h *host.Host, address common.Address, chainID *big.Int, predicates *statics.Registry, registries []*registry.Registry, opts ...ExchangeOption) *Exchange {
	e := &Exchange{
		address:    address,
		domain:     chain.NewEIP712Domain(chainID, address),
		host:       h,
		registries: make(map[common.Address]*registry.Registry, len(registries)),
		statics:    predicates,
		ledger:     ledger.New(address),
		verifier:   chain.ECDSAVerifier{},
		sink:       events.Nop{},
		metrics:    NopMetrics(),
		log:        logrus.NewEntry(logrus.StandardLogger()),
		tracer:     telemetry.Tracer(),
	}
	for _, r := range registries {
		e.registries[r.Address()] = r
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("exchange", address.Hex())
	return e
}

// Address returns the exchange address
func (e *Exchange) Address() common.Address {
	return e.address
}

// Domain returns the EIP712 domain orders are signed under
func (e *Exchange) Domain() *chain.EIP712Domain {
	return e.domain
}

// Call implements host.Contract. The exchange is driven through its Go API only.
func (e *Exchange) Call(*host.Context, common.Address, []byte) ([]byte, error) {
	return nil, ErrNotCallable
}

// HashOrder returns the fingerprint of an order
func (e *Exchange) HashOrder(order *chain.Order) (common.Hash, error) {
	if order == nil {
		return common.Hash{}, &InvalidParamError{Message: "order is required"}
	}
	return chain.HashOrder(order)
}

// HashToSign returns the digest a maker signs for a fingerprint
func (e *Exchange) HashToSign(fingerprint common.Hash) common.Hash {
	return chain.HashToSign(e.domain, fingerprint)
}

// AtomicMatch validates both orders, evaluates their predicates, records the
// fills and executes both calls. Either every effect is committed or none is.
// Failures are *MatchError values.
func (e *Exchange) AtomicMatch(ctx context.Context, sender common.Address, req *MatchRequest) (*MatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "wyvern.AtomicMatch", trace.WithAttributes(
		attribute.String("wyvern.sender", sender.Hex()),
	))
	defer span.End()

	start := time.Now()
	var result *MatchResult
	err := e.host.Execute(ctx, sender, func(c *host.Context) error {
		r, err := e.match(c, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	e.metrics.MatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.Matches.With("result", "rejected").Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.WithFields(logrus.Fields{
			"sender": sender.Hex(),
			"reason": MatchReason(err),
		}).WithError(err).Warn("match rejected")
		return nil, err
	}

	e.metrics.Matches.With("result", "matched").Add(1)
	e.metrics.FillRecorded.With("side", "first").Add(toFloat(result.FirstFill))
	e.metrics.FillRecorded.With("side", "second").Add(toFloat(result.SecondFill))
	span.SetAttributes(
		attribute.String("wyvern.first_hash", result.FirstHash.Hex()),
		attribute.String("wyvern.second_hash", result.SecondHash.Hex()),
	)
	e.log.WithFields(logrus.Fields{
		"first_hash":  result.FirstHash.Hex(),
		"second_hash": result.SecondHash.Hex(),
		"first_fill":  result.FirstFill.String(),
		"second_fill": result.SecondFill.String(),
		"matcher":     sender.Hex(),
	}).Info("orders matched")

	e.publish(ctx, events.KindOrdersMatched, map[string]string{
		"first_hash":   result.FirstHash.Hex(),
		"second_hash":  result.SecondHash.Hex(),
		"first_maker":  result.FirstMaker.Hex(),
		"second_maker": result.SecondMaker.Hex(),
		"first_fill":   result.FirstTotal.String(),
		"second_fill":  result.SecondTotal.String(),
		"matcher":      result.Matcher.Hex(),
		"metadata":     result.Metadata.Hex(),
	})
	return result, nil
}

type matchSide struct {
	order    *chain.Order
	hash     common.Hash
	registry *registry.Registry
	fill     *big.Int
}

func (e *Exchange) match(c *host.Context, req *MatchRequest) (*MatchResult, error) {
	if req == nil {
		return nil, matchError(ReasonFirstInvalid, ErrOrderInvalid, &InvalidParamError{Message: "match request is required"})
	}

	firstHash, err := e.fingerprint(req.First)
	if err != nil {
		return nil, sideError(err, ReasonFirstInvalid, ReasonFirstFingerprint)
	}
	secondHash, err := e.fingerprint(req.Second)
	if err != nil {
		return nil, sideError(err, ReasonSecondInvalid, ReasonSecondFingerprint)
	}
	if firstHash == secondHash {
		return nil, matchError(ReasonSelfMatch, ErrOrderInvalid, nil)
	}

	if err := e.authorize(c, c.Sender(), req.First.Order, firstHash, req.First.Signature); err != nil {
		return nil, matchError(ReasonFirstAuthorization, ErrAuthorizationFailed, err)
	}
	if err := e.authorize(c, c.Sender(), req.Second.Order, secondHash, req.Second.Signature); err != nil {
		return nil, matchError(ReasonSecondAuthorization, ErrAuthorizationFailed, err)
	}

	first, err := e.load(c, req.First.Order, firstHash)
	if err != nil {
		return nil, matchError(ReasonFirstInvalid, ErrOrderInvalid, err)
	}
	second, err := e.load(c, req.Second.Order, secondHash)
	if err != nil {
		return nil, matchError(ReasonSecondInvalid, ErrOrderInvalid, err)
	}

	firstSide := predicateSide(first, req.First.Call)
	secondSide := predicateSide(second, req.Second.Call)
	firstFill, err := e.statics.Evaluate(first.order.StaticTarget, first.order.StaticSelector, statics.Input{
		Order:   firstSide,
		Counter: secondSide,
		Matcher: c.Sender(),
	})
	if err != nil {
		return nil, matchError(ReasonStaticCallFailed, ErrPredicateRejected, err)
	}
	secondFill, err := e.statics.Evaluate(second.order.StaticTarget, second.order.StaticSelector, statics.Input{
		Order:   secondSide,
		Counter: firstSide,
		Matcher: c.Sender(),
	})
	if err != nil {
		return nil, matchError(ReasonStaticCallFailed, ErrPredicateRejected, err)
	}

	kv := c.KV()
	firstTotal, err := e.ledger.RecordFill(kv, first.order.Maker, first.hash, firstFill, first.order.MaximumFill)
	if err != nil {
		return nil, matchError(ReasonStaticCallFailed, ErrFillExceeded, err)
	}
	secondTotal, err := e.ledger.RecordFill(kv, second.order.Maker, second.hash, secondFill, second.order.MaximumFill)
	if err != nil {
		return nil, matchError(ReasonStaticCallFailed, ErrFillExceeded, err)
	}

	if err := e.execute(c, first, req.First.Call); err != nil {
		return nil, matchError(ReasonFirstCallFailed, callKind(err), err)
	}
	if err := e.execute(c, second, req.Second.Call); err != nil {
		return nil, matchError(ReasonSecondCallFailed, callKind(err), err)
	}

	return &MatchResult{
		FirstHash:   firstHash,
		SecondHash:  secondHash,
		FirstMaker:  first.order.Maker,
		SecondMaker: second.order.Maker,
		FirstFill:   firstFill,
		SecondFill:  secondFill,
		FirstTotal:  firstTotal,
		SecondTotal: secondTotal,
		Matcher:     c.Sender(),
		Metadata:    req.Metadata,
		Timestamp:   c.Now(),
	}, nil
}

var errFingerprint = errors.New("supplied fingerprint differs from order hash")

// fingerprint hashes a side's order and checks it against the supplied fingerprint
func (e *Exchange) fingerprint(side MatchSide) (common.Hash, error) {
	if side.Order == nil {
		return common.Hash{}, &InvalidParamError{Message: "order is required"}
	}
	hash, err := chain.HashOrder(side.Order)
	if err != nil {
		return common.Hash{}, err
	}
	if side.Fingerprint != nil && *side.Fingerprint != hash {
		return common.Hash{}, fmt.Errorf("%w: %s != %s", errFingerprint, side.Fingerprint.Hex(), hash.Hex())
	}
	return hash, nil
}

func sideError(err error, invalid, mismatch string) *MatchError {
	if errors.Is(err, errFingerprint) {
		return matchError(mismatch, ErrFingerprintMismatch, err)
	}
	return matchError(invalid, ErrOrderInvalid, err)
}

// authorize accepts an order when sender is its maker, when the maker approved
// the fingerprint on the ledger, when a contract maker validates the
// signature, or when the signature over HashToSign recovers to the maker.
func (e *Exchange) authorize(c *host.Context, sender common.Address, order *chain.Order, hash common.Hash, signature []byte) error {
	if order.Maker == sender {
		return nil
	}
	approved, err := e.ledger.IsApproved(c.KV(), order.Maker, hash)
	if err != nil {
		return err
	}
	if approved {
		return nil
	}

	digest := e.HashToSign(hash)
	if contract, ok := c.Contract(order.Maker); ok {
		validator, ok := contract.(host.SignatureValidator)
		if ok && validator.IsValidSignature(c, digest, signature) {
			return nil
		}
		return fmt.Errorf("contract maker %s rejected signature", order.Maker.Hex())
	}
	if e.verifier.Verify(digest, signature, order.Maker) {
		return nil
	}
	return fmt.Errorf("signature does not recover to maker %s", order.Maker.Hex())
}

// load validates an order's parameters and ledger record
func (e *Exchange) load(c *host.Context, order *chain.Order, hash common.Hash) (*matchSide, error) {
	reg, ok := e.registries[order.Registry]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, order.Registry.Hex())
	}
	if !e.statics.HasTarget(order.StaticTarget) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStaticTarget, order.StaticTarget.Hex())
	}
	if err := e.ledger.Validate(c.KV(), order, hash, c.Now()); err != nil {
		return nil, err
	}
	fill, err := e.ledger.Filled(c.KV(), order.Maker, hash)
	if err != nil {
		return nil, err
	}
	return &matchSide{order: order, hash: hash, registry: reg, fill: fill}, nil
}

func predicateSide(s *matchSide, call chain.Call) statics.Side {
	return statics.Side{
		Registry:       s.order.Registry,
		Maker:          s.order.Maker,
		Call:           call,
		Fill:           s.fill,
		MaximumFill:    s.order.MaximumFill,
		ListingTime:    s.order.ListingTime,
		ExpirationTime: s.order.ExpirationTime,
		Extradata:      s.order.StaticExtradata,
	}
}

// execute runs call through the maker's proxy with the exchange as caller
func (e *Exchange) execute(c *host.Context, side *matchSide, call chain.Call) error {
	proxy, err := side.registry.Proxy(c, side.order.Maker)
	if err != nil {
		return err
	}
	_, err = proxy.Execute(c, e.address, call)
	return err
}

func callKind(err error) error {
	if errors.Is(err, registry.ErrUnauthorized) {
		return ErrProxyUnauthorized
	}
	return ErrCallExecutionFailed
}

// ApproveOrderHash records the sender's approval of a fingerprint, so the
// order can be matched without a signature.
func (e *Exchange) ApproveOrderHash(ctx context.Context, sender common.Address, hash common.Hash) error {
	err := e.host.Execute(ctx, sender, func(c *host.Context) error {
		return e.ledger.Approve(c.KV(), sender, hash)
	})
	if err != nil {
		return err
	}
	e.metrics.Approvals.Add(1)
	e.publish(ctx, events.KindOrderApproved, map[string]string{
		"hash":  hash.Hex(),
		"maker": sender.Hex(),
	})
	return nil
}

// ApproveOrder approves an order the sender made
func (e *Exchange) ApproveOrder(ctx context.Context, sender common.Address, order *chain.Order) (common.Hash, error) {
	hash, err := e.makerHash(sender, order)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, e.ApproveOrderHash(ctx, sender, hash)
}

// CancelOrderHash cancels the sender's order with the given fingerprint.
// Cancellation is terminal and idempotent.
func (e *Exchange) CancelOrderHash(ctx context.Context, sender common.Address, hash common.Hash) error {
	err := e.host.Execute(ctx, sender, func(c *host.Context) error {
		e.ledger.Cancel(c.KV(), sender, hash)
		return nil
	})
	if err != nil {
		return err
	}
	e.metrics.Cancellations.Add(1)
	e.publish(ctx, events.KindOrderCancelled, map[string]string{
		"hash":  hash.Hex(),
		"maker": sender.Hex(),
	})
	return nil
}

// CancelOrder cancels an order the sender made
func (e *Exchange) CancelOrder(ctx context.Context, sender common.Address, order *chain.Order) (common.Hash, error) {
	hash, err := e.makerHash(sender, order)
	if err != nil {
		return common.Hash{}, err
	}
	return hash, e.CancelOrderHash(ctx, sender, hash)
}

// SetOrderFill raises the recorded fill of one of the sender's orders.
// Setting the fill to the order's maximum retires it.
func (e *Exchange) SetOrderFill(ctx context.Context, sender common.Address, hash common.Hash, fill *big.Int) error {
	err := e.host.Execute(ctx, sender, func(c *host.Context) error {
		return e.ledger.SetFill(c.KV(), sender, hash, fill)
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events.KindOrderFillChanged, map[string]string{
		"hash":  hash.Hex(),
		"maker": sender.Hex(),
		"fill":  fill.String(),
	})
	return nil
}

// OrderState returns the ledger record of an order
func (e *Exchange) OrderState(ctx context.Context, maker common.Address, hash common.Hash) (*OrderState, error) {
	var out *OrderState
	err := e.host.View(ctx, func(c *host.Context) error {
		rec, err := e.ledger.Get(c.KV(), maker, hash)
		if err != nil {
			return err
		}
		out = &OrderState{
			Hash:      hash,
			Maker:     maker,
			Filled:    rec.Filled,
			Cancelled: rec.Cancelled,
			Approved:  rec.Approved,
		}
		return nil
	})
	return out, err
}

// ValidateOrder checks an order's parameters against the current ledger
// state, as a match would.
func (e *Exchange) ValidateOrder(ctx context.Context, order *chain.Order) error {
	hash, err := e.HashOrder(order)
	if err != nil {
		return err
	}
	return e.host.View(ctx, func(c *host.Context) error {
		_, err := e.load(c, order, hash)
		return err
	})
}

// ValidateOrderAuthorization checks whether a match submitted by sender
// would accept the order's authorization.
func (e *Exchange) ValidateOrderAuthorization(ctx context.Context, sender common.Address, order *chain.Order, signature []byte) error {
	hash, err := e.HashOrder(order)
	if err != nil {
		return err
	}
	return e.host.View(ctx, func(c *host.Context) error {
		if err := e.authorize(c, sender, order, hash, signature); err != nil {
			return fmt.Errorf("%w: %w", ErrAuthorizationFailed, err)
		}
		return nil
	})
}

func (e *Exchange) makerHash(sender common.Address, order *chain.Order) (common.Hash, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Hash{}, err
	}
	if order.Maker != sender {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrNotMaker, sender.Hex())
	}
	return hash, nil
}

// publish hands a committed event to the sink. Delivery failures are logged;
// the operation that produced the event already committed.
func (e *Exchange) publish(ctx context.Context, kind events.Kind, attrs map[string]string) {
	ev := events.New(kind, e.host.Clock().Now(), attrs)
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.log.WithFields(logrus.Fields{
			"event_id": ev.ID.String(),
			"kind":     string(kind),
		}).WithError(err).Error("failed to publish event")
	}
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
