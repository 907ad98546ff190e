package oms

import (
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// RebuildFromTradeLog replays the persisted trade log through the ledger
// and rewrites the derived tables (positions, portfolios) from the result.
// Orders and trades are never touched; they are the log being replayed.
// Run it on a fresh ledger before serving traffic, otherwise every
// execution is applied twice.
func (m *Manager) RebuildFromTradeLog() (int, error) {
	trades, err := m.store.AllTrades()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeReplayFailed, "failed to load trade log", err)
	}

	bar := progressbar.Default(int64(len(trades)))
	bar.Describe("Replaying trade log")

	for _, execution := range groupByOrder(trades) {
		if err := m.replayExecution(execution); err != nil {
			return 0, err
		}

		_ = bar.Add(len(execution))
	}

	owners := m.ledger.Owners()
	at := m.now()

	if err := m.store.ResetDerived(); err != nil {
		return 0, errors.Wrap(errors.ErrCodeReplayFailed, "failed to clear derived state", err)
	}

	for _, ownerID := range owners {
		portfolio := m.ledger.RefreshPnL(ownerID, m.prices, at)

		for _, position := range m.ledger.Positions(ownerID) {
			if err := m.store.UpsertPosition(position); err != nil {
				return 0, errors.Wrapf(errors.ErrCodeReplayFailed, err, "failed to rewrite position %s/%s", ownerID, position.Symbol)
			}
		}

		if err := m.store.SavePortfolio(portfolio); err != nil {
			return 0, errors.Wrapf(errors.ErrCodeReplayFailed, err, "failed to rewrite portfolio %s", ownerID)
		}
	}

	m.log.Info("trade log replayed",
		zap.Int("trades", len(trades)),
		zap.Int("owners", len(owners)),
	)

	return len(trades), nil
}

// replayExecution applies one order's trades as a single blended fill, the
// same transition the live path makes.
func (m *Manager) replayExecution(trades []types.Trade) error {
	head := trades[0]
	at := head.ExecutedAt

	fills := make([]types.Fill, 0, len(trades))
	for _, trade := range trades {
		fills = append(fills, types.Fill{Price: trade.Price, Quantity: trade.Quantity})
	}

	filledQty, avgPrice := fillStats(fills)

	m.ledger.EnsurePortfolio(head.OwnerID, at)

	if _, err := m.ledger.ApplyFill(head.OwnerID, head.Symbol, head.Side, filledQty, avgPrice, at); err != nil {
		return errors.Wrapf(errors.ErrCodeReplayFailed, err, "failed to replay order %s", head.OrderID)
	}

	req := types.OrderRequest{
		OwnerID:   head.OwnerID,
		Symbol:    head.Symbol,
		Side:      head.Side,
		OrderType: types.OrderTypeMarket,
		Quantity:  filledQty,
	}

	marginDelta, err := m.marginDelta(req, filledQty, trades, m.referencePrice(head.Symbol))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeReplayFailed, err, "failed to compute margin for order %s", head.OrderID)
	}

	m.ledger.ApplyTrades(head.OwnerID, head.Side, trades, marginDelta, at)

	return nil
}

// groupByOrder collects trades into per-order executions, preserving the
// chronological order in which each order first appears.
func groupByOrder(trades []types.Trade) [][]types.Trade {
	index := make(map[string]int)
	groups := make([][]types.Trade, 0)

	for _, trade := range trades {
		i, ok := index[trade.OrderID]
		if !ok {
			i = len(groups)
			index[trade.OrderID] = i

			groups = append(groups, nil)
		}

		groups[i] = append(groups[i], trade)
	}

	return groups
}
