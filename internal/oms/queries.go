package oms

import (
	"github.com/moznion/go-optional"

	"github.com/deltastream-lab/tradesim/internal/orderbook"
	"github.com/deltastream-lab/tradesim/internal/risk"
	"github.com/deltastream-lab/tradesim/internal/types"
)

// The read side. Orders come from the store because rejected orders never
// touch the ledger; everything else is answered by the in-memory ledger,
// marked with current prices on the way out.

// GetOrder returns one order by id.
func (m *Manager) GetOrder(orderID string) (types.Order, error) {
	return m.store.GetOrder(orderID)
}

// ListOrders returns an owner's orders, newest first, optionally filtered
// by status. A non-positive limit returns everything.
func (m *Manager) ListOrders(ownerID string, status optional.Option[types.OrderStatus], limit int) ([]types.Order, error) {
	return m.store.ListOrders(ownerID, status, limit)
}

// Portfolio returns the owner's account with P&L refreshed against current
// prices. Unknown owners receive a freshly funded portfolio.
func (m *Manager) Portfolio(ownerID string) types.Portfolio {
	at := m.now()
	m.ledger.EnsurePortfolio(ownerID, at)

	return m.ledger.RefreshPnL(ownerID, m.prices, at)
}

// Positions returns the owner's open positions marked to current prices.
func (m *Manager) Positions(ownerID string) []types.Position {
	return m.ledger.MarkedPositions(ownerID, m.prices)
}

// PnL summarizes realized and unrealized P&L over the period.
func (m *Manager) PnL(ownerID string, period types.Period) types.PnLSummary {
	at := m.now()
	m.ledger.EnsurePortfolio(ownerID, at)

	return m.ledger.PnLSummary(ownerID, period, m.prices, at)
}

// Performance summarizes the owner's FIFO round trips.
func (m *Manager) Performance(ownerID string) types.Performance {
	return m.ledger.Performance(ownerID)
}

// TradeHistory returns the owner's executions, newest first.
func (m *Manager) TradeHistory(ownerID string, limit int) []types.Trade {
	return m.ledger.TradeHistory(ownerID, limit)
}

// RiskReport reports the owner's current posture against the limits.
func (m *Manager) RiskReport(ownerID string) types.RiskReport {
	at := m.now()
	m.ledger.EnsurePortfolio(ownerID, at)

	snapshot := risk.AccountSnapshot{
		Portfolio: m.ledger.RefreshPnL(ownerID, m.prices, at),
		Positions: m.ledger.Positions(ownerID),
	}

	return m.risk.Report(snapshot)
}

// BookSnapshot returns the depth view for a symbol, creating and seeding
// the book around the reference price when the symbol has not traded yet.
func (m *Manager) BookSnapshot(symbol string, maxLevels int) types.BookSnapshot {
	if snapshot, ok := m.books.Snapshot(symbol, maxLevels); ok {
		return snapshot
	}

	_ = m.books.WithBook(symbol, m.referencePrice(symbol), func(*orderbook.OrderBook) error { return nil })

	snapshot, _ := m.books.Snapshot(symbol, maxLevels)

	return snapshot
}

// Owners lists every owner known to the ledger.
func (m *Manager) Owners() []string {
	return m.ledger.Owners()
}
