package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deltastream-lab/tradesim/internal/types"
)

// PnLSummary reports realized and unrealized P&L for a period. Realized
// P&L counts FIFO round trips whose closing leg falls inside the period;
// unrealized P&L is always the current mark of open positions.
func (l *Ledger) PnLSummary(ownerID string, period types.Period, marks MarkSource, now time.Time) types.PnLSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := MatchFIFO(l.tradesLocked(ownerID))
	realized := result.RealizedSince(period.Start(now))

	unrealized := decimal.Zero
	for _, pos := range l.positions[ownerID] {
		l.markLocked(pos, marks)
		unrealized = unrealized.Add(decimal.NewFromFloat(pos.UnrealizedPnL))
	}

	unrealizedF, _ := unrealized.Float64()
	total, _ := decimal.NewFromFloat(realized).Add(unrealized).Float64()

	return types.PnLSummary{
		Period:         period,
		RealizedPnL:    realized,
		UnrealizedPnL:  unrealizedF,
		TotalPnL:       total,
		ReturnsPct:     total / l.initialCash * 100,
		InitialCapital: l.initialCash,
		CurrentValue:   l.initialCash + total,
	}
}

// Performance summarizes the owner's FIFO round trips: win rate, average
// win and loss, and profit factor.
func (l *Ledger) Performance(ownerID string) types.Performance {
	l.mu.RLock()
	trades := l.tradesLocked(ownerID)
	l.mu.RUnlock()

	result := MatchFIFO(trades)

	perf := types.Performance{
		TotalTrades: len(trades),
		RoundTrips:  len(result.RoundTrips),
	}

	if perf.RoundTrips == 0 {
		return perf
	}

	wins := 0
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero

	for _, rt := range result.RoundTrips {
		if rt.PnL > 0 {
			wins++
			grossProfit = grossProfit.Add(decimal.NewFromFloat(rt.PnL))
		} else {
			grossLoss = grossLoss.Add(decimal.NewFromFloat(-rt.PnL))
		}
	}

	losses := perf.RoundTrips - wins

	perf.WinRate = float64(wins) / float64(perf.RoundTrips) * 100
	perf.GrossProfit, _ = grossProfit.Float64()
	perf.GrossLoss, _ = grossLoss.Float64()

	if wins > 0 {
		perf.AvgWin = perf.GrossProfit / float64(wins)
	}

	if losses > 0 {
		perf.AvgLoss = perf.GrossLoss / float64(losses)
	}

	if perf.GrossLoss > 0 {
		perf.ProfitFactor = perf.GrossProfit / perf.GrossLoss
	}

	return perf
}

// TradeHistory returns the owner's most recent trades, newest first.
// A non-positive limit means no cap.
func (l *Ledger) TradeHistory(ownerID string, limit int) []types.Trade {
	l.mu.RLock()
	trades := l.tradesLocked(ownerID)
	l.mu.RUnlock()

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutedAt.After(trades[j].ExecutedAt)
	})

	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}

	return trades
}
