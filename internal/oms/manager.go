// Package oms runs the order lifecycle: validation, pre-trade risk,
// matching against the simulated book, and settlement into the ledger.
// Every submission terminates synchronously in FILLED, PARTIALLY_FILLED,
// or REJECTED; nothing rests in the book and nothing stays PENDING.
package oms

import (
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/commission"
	"github.com/deltastream-lab/tradesim/internal/ledger"
	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/orderbook"
	"github.com/deltastream-lab/tradesim/internal/pricing"
	"github.com/deltastream-lab/tradesim/internal/risk"
	"github.com/deltastream-lab/tradesim/internal/store"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
	"github.com/deltastream-lab/tradesim/pkg/events"
)

// Deps carries the collaborators a Manager needs. Books, Risk, Ledger,
// Store, Prices and Logger are required; the rest default to no-ops.
type Deps struct {
	Books      *orderbook.Registry
	Risk       *risk.Engine
	Ledger     *ledger.Ledger
	Store      *store.Store
	Prices     pricing.Source
	Commission commission.CommissionFee
	Publisher  events.Publisher
	Logger     *logger.Logger
	// Clock supplies order timestamps and defaults to time.Now.
	Clock func() time.Time
}

// Manager is the order management system. The in-memory ledger transition
// is authoritative for every execution; persistence and event publishing
// happen after it and their failures never roll it back.
type Manager struct {
	books      *orderbook.Registry
	risk       *risk.Engine
	ledger     *ledger.Ledger
	store      *store.Store
	prices     pricing.Source
	commission commission.CommissionFee
	publisher  events.Publisher
	log        *logger.Logger
	now        func() time.Time

	// ownerLocks serializes the risk check against settlement per owner so
	// two concurrent orders cannot both pass on the same free margin.
	mu         sync.Mutex
	ownerLocks map[string]*sync.Mutex
}

// NewManager validates deps and returns a ready Manager.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Books == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "oms requires an order book registry")
	}

	if deps.Risk == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "oms requires a risk engine")
	}

	if deps.Ledger == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "oms requires a ledger")
	}

	if deps.Store == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "oms requires a store")
	}

	if deps.Prices == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "oms requires a price source")
	}

	if deps.Logger == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "oms requires a logger")
	}

	if deps.Commission == nil {
		deps.Commission = commission.NewZeroCommissionFee()
	}

	if deps.Publisher == nil {
		deps.Publisher = events.NewNopPublisher()
	}

	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Manager{
		books:      deps.Books,
		risk:       deps.Risk,
		ledger:     deps.Ledger,
		store:      deps.Store,
		prices:     deps.Prices,
		commission: deps.Commission,
		publisher:  deps.Publisher,
		log:        deps.Logger,
		now:        deps.Clock,
		ownerLocks: make(map[string]*sync.Mutex),
	}, nil
}

// SubmitOrder runs one order through the full lifecycle and returns its
// terminal record. Rejections return the REJECTED order together with the
// causing error so callers can distinguish the rule that fired; internal
// faults return a zero order. A non-nil error alongside a FILLED or
// PARTIALLY_FILLED order means the execution stands but persisting it
// failed and the durable state must be reconciled by replay.
func (m *Manager) SubmitOrder(req types.OrderRequest) (types.Order, error) {
	at := m.now()

	if err := req.Validate(); err != nil {
		return m.rejectOrder(req, err, at)
	}

	lock := m.ownerLock(req.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	referencePrice := m.referencePrice(req.Symbol)

	m.ledger.EnsurePortfolio(req.OwnerID, at)
	portfolio := m.ledger.RefreshPnL(req.OwnerID, m.prices, at)
	snapshot := risk.AccountSnapshot{
		Portfolio: portfolio,
		Positions: m.ledger.Positions(req.OwnerID),
	}

	if err := m.risk.CheckOrder(req, referencePrice, snapshot); err != nil {
		return m.rejectOrder(req, err, at)
	}

	fills, err := m.match(req, referencePrice)
	if err != nil {
		return m.rejectOrder(req, err, at)
	}

	return m.settle(req, fills, referencePrice, at)
}

// match executes the request against the symbol's book. Market orders fill
// completely or fail; limit orders may fill partially, and zero fills
// within the limit is reported as ErrCodeNotFillable.
func (m *Manager) match(req types.OrderRequest, referencePrice float64) ([]types.Fill, error) {
	var fills []types.Fill

	err := m.books.WithBook(req.Symbol, referencePrice, func(book *orderbook.OrderBook) error {
		var matchErr error

		switch req.OrderType {
		case types.OrderTypeMarket:
			fills, matchErr = book.MatchMarketOrder(req.Side, req.Quantity)
		case types.OrderTypeLimit:
			fills, matchErr = book.MatchLimitOrder(req.Side, req.LimitPrice.Unwrap(), req.Quantity)
		default:
			matchErr = errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order type %s", req.OrderType)
		}

		return matchErr
	})
	if err != nil {
		return nil, err
	}

	if len(fills) == 0 {
		return nil, errors.Newf(errors.ErrCodeNotFillable,
			"no executable depth for %s %s within limit %.2f", req.Side, req.Symbol, req.LimitPrice.Unwrap())
	}

	return fills, nil
}

// settle turns fills into the terminal order, its trades, and the ledger
// transition, then persists and publishes the result.
func (m *Manager) settle(req types.OrderRequest, fills []types.Fill, referencePrice float64, at time.Time) (types.Order, error) {
	orderID := newOrderID(at)
	filledQty, avgPrice := fillStats(fills)

	status := types.OrderStatusFilled
	if filledQty < req.Quantity {
		status = types.OrderStatusPartiallyFilled
	}

	order := types.Order{
		OrderID:         orderID,
		OwnerID:         req.OwnerID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		OrderType:       req.OrderType,
		Quantity:        req.Quantity,
		LimitPrice:      req.LimitPrice,
		Status:          status,
		FilledQuantity:  filledQty,
		AvgFillPrice:    optional.Some(avgPrice),
		RejectionReason: optional.None[string](),
		CreatedAt:       at,
		FilledAt:        optional.Some(at),
	}

	trades := m.buildTrades(orderID, req, fills, at)

	marginDelta, err := m.marginDelta(req, filledQty, trades, referencePrice)
	if err != nil {
		return types.Order{}, err
	}

	change, err := m.ledger.ApplyFill(req.OwnerID, req.Symbol, req.Side, filledQty, avgPrice, at)
	if err != nil {
		return types.Order{}, err
	}

	m.ledger.ApplyTrades(req.OwnerID, req.Side, trades, marginDelta, at)
	portfolio := m.ledger.RefreshPnL(req.OwnerID, m.prices, at)

	persistErr := m.persistExecution(order, trades, change, portfolio)

	m.publish(events.NewOrderEvent(order, at))

	for _, trade := range trades {
		m.publish(events.NewTradeEvent(trade))
	}

	m.log.Info("order executed",
		zap.String("order_id", orderID),
		zap.String("owner_id", req.OwnerID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("status", string(status)),
		zap.Float64("filled_quantity", filledQty),
		zap.Float64("avg_fill_price", avgPrice),
	)

	return order, persistErr
}

// rejectOrder records and publishes a REJECTED order for expected rejection
// causes. Unexpected errors propagate without producing an order record.
func (m *Manager) rejectOrder(req types.OrderRequest, cause error, at time.Time) (types.Order, error) {
	reason, ok := rejectReasonFor(cause)
	if !ok {
		return types.Order{}, cause
	}

	order := types.Order{
		OrderID:         newOrderID(at),
		OwnerID:         req.OwnerID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		OrderType:       req.OrderType,
		Quantity:        req.Quantity,
		LimitPrice:      req.LimitPrice,
		Status:          types.OrderStatusRejected,
		FilledQuantity:  0,
		AvgFillPrice:    optional.None[float64](),
		RejectionReason: optional.Some(reason),
		CreatedAt:       at,
		FilledAt:        optional.None[time.Time](),
	}

	// The rejection, not the persistence problem, is what the caller needs
	// to see; a failed write here is recovered by replaying the trade log.
	if err := m.store.SaveOrder(order); err != nil {
		m.log.Warn("failed to persist rejected order",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}

	m.publish(events.NewOrderEvent(order, at))

	m.log.Info("order rejected",
		zap.String("order_id", order.OrderID),
		zap.String("owner_id", req.OwnerID),
		zap.String("symbol", req.Symbol),
		zap.String("reason", reason),
		zap.Error(cause),
	)

	return order, cause
}

// buildTrades emits one trade per fill with the broker commission applied.
// Buys pay value plus commission, sells receive value minus commission.
func (m *Manager) buildTrades(orderID string, req types.OrderRequest, fills []types.Fill, at time.Time) []types.Trade {
	trades := make([]types.Trade, 0, len(fills))

	for _, fill := range fills {
		value, _ := decimal.NewFromFloat(fill.Price).Mul(decimal.NewFromFloat(fill.Quantity)).Float64()
		fee := m.commission.Calculate(value)

		net := value + fee
		if req.Side == types.SideSell {
			net = value - fee
		}

		trades = append(trades, types.Trade{
			TradeID:    newTradeID(at),
			OrderID:    orderID,
			OwnerID:    req.OwnerID,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Price:      fill.Price,
			Quantity:   fill.Quantity,
			Value:      value,
			Commission: fee,
			NetValue:   net,
			ExecutedAt: at,
		})
	}

	return trades
}

// marginDelta is the margin consumed by this execution. Buys block the
// full fill value; sells block the short margin on the filled quantity.
func (m *Manager) marginDelta(req types.OrderRequest, filledQty float64, trades []types.Trade, referencePrice float64) (float64, error) {
	if req.Side == types.SideBuy {
		total := decimal.Zero
		for _, trade := range trades {
			total = total.Add(decimal.NewFromFloat(trade.Value))
		}

		value, _ := total.Float64()

		return value, nil
	}

	filled := req
	filled.Quantity = filledQty

	return m.risk.RequiredMargin(filled, referencePrice)
}

// persistExecution writes the execution through to the store. The first
// failure is returned; earlier writes are not undone.
func (m *Manager) persistExecution(order types.Order, trades []types.Trade, change ledger.PositionChange, portfolio types.Portfolio) error {
	if err := m.store.SaveOrder(order); err != nil {
		return err
	}

	if err := m.store.SaveTrades(trades); err != nil {
		return err
	}

	if change.Deleted {
		if err := m.store.DeletePosition(order.OwnerID, order.Symbol); err != nil {
			return err
		}
	} else if err := m.store.UpsertPosition(change.Position); err != nil {
		return err
	}

	return m.store.SavePortfolio(portfolio)
}

func (m *Manager) publish(event events.Event) {
	if err := m.publisher.Publish(event); err != nil {
		m.log.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// referencePrice never fails: an unavailable price falls back to the
// default so a fresh symbol can still seed a book.
func (m *Manager) referencePrice(symbol string) float64 {
	price, err := m.prices.ReferencePrice(symbol)
	if err != nil || price <= 0 {
		m.log.Warn("reference price unavailable, using default",
			zap.String("symbol", symbol),
			zap.Error(err),
		)

		return pricing.DefaultReferencePrice
	}

	return price
}

func (m *Manager) ownerLock(ownerID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.ownerLocks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		m.ownerLocks[ownerID] = lock
	}

	return lock
}

// fillStats returns the total filled quantity and the quantity-weighted
// average fill price.
func fillStats(fills []types.Fill) (float64, float64) {
	qty := decimal.Zero
	notional := decimal.Zero

	for _, fill := range fills {
		q := decimal.NewFromFloat(fill.Quantity)
		qty = qty.Add(q)
		notional = notional.Add(decimal.NewFromFloat(fill.Price).Mul(q))
	}

	if qty.IsZero() {
		return 0, 0
	}

	total, _ := qty.Float64()
	avg, _ := notional.Div(qty).Float64()

	return total, avg
}

// rejectReasonFor maps expected rejection causes to the reason recorded on
// the order. Anything outside the validation, risk, and matching families
// is an internal fault, not a rejection.
func rejectReasonFor(err error) (string, bool) {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidParameter, errors.ErrCodeInvalidOrderRequest,
		errors.ErrCodeInvalidQuantity, errors.ErrCodeMissingLimitPrice,
		errors.ErrCodeUnknownSymbol:
		return types.RejectReasonInvalidOrder, true
	case errors.ErrCodeInsufficientMargin:
		return types.RejectReasonInsufficientMargin, true
	case errors.ErrCodePositionLimitExceeded:
		return types.RejectReasonPositionLimitExceeded, true
	case errors.ErrCodeOrderValueExceeded:
		return types.RejectReasonOrderValueExceeded, true
	case errors.ErrCodeDailyLossLimitExceeded:
		return types.RejectReasonDailyLossLimitExceeded, true
	case errors.ErrCodeConcentrationExceeded:
		return types.RejectReasonConcentrationExceeded, true
	case errors.ErrCodeInsufficientLiquidity:
		return types.RejectReasonInsufficientLiquidity, true
	case errors.ErrCodeNotFillable:
		return types.RejectReasonNotFillable, true
	default:
		return "", false
	}
}
