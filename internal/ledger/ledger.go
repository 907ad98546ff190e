// Package ledger is the in-memory book of record: portfolios, open
// positions and the append-only trade log. The order lifecycle applies
// fills here before anything is persisted; a persistence failure is
// reconciled later by replaying the trade log, never by rolling back the
// in-memory state.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// MarkSource supplies the mark price used for unrealized P&L.
type MarkSource interface {
	ReferencePrice(symbol string) (float64, error)
}

// PositionChange reports what a fill did to a position so the caller can
// persist an upsert or a delete.
type PositionChange struct {
	Position types.Position
	Deleted  bool
}

// Ledger holds all owner state. Callers serialize per-owner writes; the
// internal lock only guards cross-owner reads against concurrent
// mutation.
type Ledger struct {
	mu          sync.RWMutex
	initialCash float64
	portfolios  map[string]*types.Portfolio
	positions   map[string]map[string]*types.Position
	trades      []types.Trade
	log         *logger.Logger
}

// NewLedger creates an empty ledger. Every new owner's portfolio starts
// with initialCash.
func NewLedger(initialCash float64, log *logger.Logger) *Ledger {
	return &Ledger{
		initialCash: initialCash,
		portfolios:  make(map[string]*types.Portfolio),
		positions:   make(map[string]map[string]*types.Position),
		trades:      make([]types.Trade, 0),
		log:         log,
	}
}

// InitialCash returns the starting capital for new portfolios.
func (l *Ledger) InitialCash() float64 {
	return l.initialCash
}

// EnsurePortfolio returns the owner's portfolio, creating it with the
// initial funding if this is the owner's first touch.
func (l *Ledger) EnsurePortfolio(ownerID string, at time.Time) types.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	return *l.ensurePortfolioLocked(ownerID, at)
}

// Portfolio returns a copy of the owner's portfolio.
func (l *Ledger) Portfolio(ownerID string) (types.Portfolio, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.portfolios[ownerID]
	if !ok {
		return types.Portfolio{}, false
	}

	return *p, true
}

// Positions returns copies of the owner's open positions sorted by symbol.
func (l *Ledger) Positions(ownerID string) []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.positionsLocked(ownerID)
}

// Position returns a copy of one position.
func (l *Ledger) Position(ownerID, symbol string) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[ownerID][symbol]
	if !ok {
		return types.Position{}, false
	}

	return *pos, true
}

// Owners returns every owner with a portfolio, sorted.
func (l *Ledger) Owners() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.portfolios))
	for owner := range l.portfolios {
		out = append(out, owner)
	}

	sort.Strings(out)

	return out
}

// ApplyFill moves the owner's position for one filled order.
//
// A fill in the position's direction accumulates quantity and recomputes
// the weighted-average entry price. A reducing fill moves quantity toward
// zero and leaves the entry price untouched; crossing zero opens a fresh
// position in the new direction at the fill price for the excess only.
// Reaching exactly zero deletes the position.
func (l *Ledger) ApplyFill(ownerID, symbol string, side types.Side, quantity, price float64, at time.Time) (PositionChange, error) {
	if quantity <= 0 {
		return PositionChange{}, errors.Newf(errors.ErrCodeInvalidQuantity, "fill quantity must be positive, got %f", quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	signedQty := quantity
	if side == types.SideSell {
		signedQty = -quantity
	}

	book, ok := l.positions[ownerID]
	if !ok {
		book = make(map[string]*types.Position)
		l.positions[ownerID] = book
	}

	pos, exists := book[symbol]
	if !exists {
		created := &types.Position{
			OwnerID:       ownerID,
			Symbol:        symbol,
			Quantity:      signedQty,
			AvgEntryPrice: price,
			CurrentPrice:  price,
			OpenedAt:      at,
			UpdatedAt:     at,
		}
		book[symbol] = created

		l.log.Info("position opened",
			zap.String("owner_id", ownerID),
			zap.String("symbol", symbol),
			zap.Float64("quantity", signedQty),
		)

		return PositionChange{Position: *created}, nil
	}

	newQty := pos.Quantity + signedQty

	switch {
	case newQty == 0:
		delete(book, symbol)
		closed := *pos
		closed.Quantity = 0
		closed.UpdatedAt = at

		l.log.Info("position closed",
			zap.String("owner_id", ownerID),
			zap.String("symbol", symbol),
		)

		return PositionChange{Position: closed, Deleted: true}, nil

	case sameSign(pos.Quantity, signedQty):
		totalCost := decimal.NewFromFloat(pos.AbsQuantity()).
			Mul(decimal.NewFromFloat(pos.AvgEntryPrice)).
			Add(decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)))
		newAvg, _ := totalCost.Div(decimal.NewFromFloat(quantity + pos.AbsQuantity())).Float64()

		pos.Quantity = newQty
		pos.AvgEntryPrice = newAvg
		pos.UpdatedAt = at

	case sameSign(pos.Quantity, newQty):
		// Partial reduce: entry price is invariant.
		pos.Quantity = newQty
		pos.UpdatedAt = at

	default:
		// Crossed zero: the excess opens a new position at the fill price.
		pos.Quantity = newQty
		pos.AvgEntryPrice = price
		pos.CurrentPrice = price
		pos.UnrealizedPnL = 0
		pos.OpenedAt = at
		pos.UpdatedAt = at

		l.log.Info("position flipped",
			zap.String("owner_id", ownerID),
			zap.String("symbol", symbol),
			zap.Float64("quantity", newQty),
		)
	}

	return PositionChange{Position: *pos}, nil
}

// ApplyTrades applies the cash and margin impact of one order's trades to
// the owner's portfolio and appends them to the trade log. marginDelta is
// the margin blocked by the fill: the traded value for buys, the
// short-option margin for sells.
func (l *Ledger) ApplyTrades(ownerID string, side types.Side, trades []types.Trade, marginDelta float64, at time.Time) types.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.ensurePortfolioLocked(ownerID, at)

	net := decimal.Zero
	for _, t := range trades {
		net = net.Add(decimal.NewFromFloat(t.NetValue))
	}

	cash := decimal.NewFromFloat(p.CashBalance)
	if side == types.SideBuy {
		cash = cash.Sub(net)
	} else {
		cash = cash.Add(net)
	}

	p.CashBalance, _ = cash.Float64()
	p.MarginUsed, _ = decimal.NewFromFloat(p.MarginUsed).
		Add(decimal.NewFromFloat(marginDelta)).
		Float64()
	p.MarginAvailable, _ = decimal.NewFromFloat(p.CashBalance).
		Sub(decimal.NewFromFloat(p.MarginUsed)).
		Float64()
	p.UpdatedAt = at

	l.trades = append(l.trades, trades...)

	l.log.Info("portfolio updated",
		zap.String("owner_id", ownerID),
		zap.Float64("cash_balance", p.CashBalance),
		zap.Float64("margin_used", p.MarginUsed),
	)

	return *p
}

// Trades returns the owner's trades in chronological order.
func (l *Ledger) Trades(ownerID string) []types.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tradesLocked(ownerID)
}

// MarkedPositions returns the owner's positions with CurrentPrice and
// UnrealizedPnL refreshed from the mark source. Symbols the source cannot
// price keep their previous mark.
func (l *Ledger) MarkedPositions(ownerID string, marks MarkSource) []types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range l.positions[ownerID] {
		l.markLocked(pos, marks)
	}

	return l.positionsLocked(ownerID)
}

// RefreshPnL recomputes the owner's realized, unrealized and daily P&L and
// stores them on the portfolio. Realized figures come from FIFO
// reconciliation of the trade log; the daily figure counts round trips
// whose closing leg executed today.
func (l *Ledger) RefreshPnL(ownerID string, marks MarkSource, now time.Time) types.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.ensurePortfolioLocked(ownerID, now)

	result := MatchFIFO(l.tradesLocked(ownerID))

	unrealized := decimal.Zero
	for _, pos := range l.positions[ownerID] {
		l.markLocked(pos, marks)
		unrealized = unrealized.Add(decimal.NewFromFloat(pos.UnrealizedPnL))
	}

	p.RealizedPnL = result.RealizedPnL
	p.UnrealizedPnL, _ = unrealized.Float64()
	p.TotalPnL, _ = decimal.NewFromFloat(p.RealizedPnL).
		Add(decimal.NewFromFloat(p.UnrealizedPnL)).
		Float64()
	p.DailyRealizedPnL = result.RealizedSince(types.PeriodToday.Start(now))
	p.UpdatedAt = now

	return *p
}

func (l *Ledger) ensurePortfolioLocked(ownerID string, at time.Time) *types.Portfolio {
	if p, ok := l.portfolios[ownerID]; ok {
		return p
	}

	p := &types.Portfolio{
		OwnerID:         ownerID,
		CashBalance:     l.initialCash,
		MarginUsed:      0,
		MarginAvailable: l.initialCash,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	l.portfolios[ownerID] = p

	l.log.Info("initial portfolio created",
		zap.String("owner_id", ownerID),
		zap.Float64("cash_balance", l.initialCash),
	)

	return p
}

func (l *Ledger) positionsLocked(ownerID string) []types.Position {
	book := l.positions[ownerID]

	out := make([]types.Position, 0, len(book))
	for _, pos := range book {
		out = append(out, *pos)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})

	return out
}

func (l *Ledger) tradesLocked(ownerID string) []types.Trade {
	out := make([]types.Trade, 0)
	for _, t := range l.trades {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}

	return out
}

func (l *Ledger) markLocked(pos *types.Position, marks MarkSource) {
	if marks == nil {
		return
	}

	price, err := marks.ReferencePrice(pos.Symbol)
	if err != nil || price <= 0 {
		return
	}

	pos.CurrentPrice = price
	pos.UnrealizedPnL = pos.UnrealizedAt(price)
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
