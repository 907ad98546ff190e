package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deltastream-lab/tradesim/internal/types"
)

// Lot is unmatched trade inventory left over after FIFO reconciliation.
type Lot struct {
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

// RoundTrip is one matched buy/sell segment. A sell that consumes several
// buy lots produces several round trips. PnL is net of both legs'
// commissions pro-rated by the matched quantity, so a partially consumed
// trade never has its commission counted twice.
type RoundTrip struct {
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
	PnL       float64   `json:"pnl"`
	ClosedAt  time.Time `json:"closed_at"`
}

// MatchResult is the outcome of FIFO reconciliation over a trade history.
type MatchResult struct {
	RealizedPnL float64
	RoundTrips  []RoundTrip
	// OpenBuys and OpenSells are the unmatched remainders: open long and
	// open short inventory respectively.
	OpenBuys  []Lot
	OpenSells []Lot
}

type fifoLot struct {
	trade   types.Trade
	matched float64
}

func (l *fifoLot) available() float64 {
	return l.trade.Quantity - l.matched
}

// MatchFIFO reconciles a trade history into realized P&L with strict
// first-in-first-out cost basis per symbol. Each sell, in chronological
// order, consumes the earliest unmatched buys until its quantity is
// exhausted. The function is pure: calling it twice on the same history
// yields identical results.
func MatchFIFO(trades []types.Trade) MatchResult {
	ordered := make([]types.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
	})

	buys := make(map[string][]*fifoLot)
	sells := make(map[string][]*fifoLot)
	symbols := make([]string, 0)

	for _, trade := range ordered {
		if trade.Quantity <= 0 {
			continue
		}

		if _, seen := buys[trade.Symbol]; !seen {
			if _, seen := sells[trade.Symbol]; !seen {
				symbols = append(symbols, trade.Symbol)
			}
		}

		lot := &fifoLot{trade: trade}
		if trade.Side == types.SideBuy {
			buys[trade.Symbol] = append(buys[trade.Symbol], lot)
		} else {
			sells[trade.Symbol] = append(sells[trade.Symbol], lot)
		}
	}

	sort.Strings(symbols)

	result := MatchResult{}
	realized := decimal.Zero

	for _, symbol := range symbols {
		for _, sell := range sells[symbol] {
			for _, buy := range buys[symbol] {
				if sell.available() <= 0 {
					break
				}

				if buy.available() <= 0 {
					continue
				}

				matchQty := sell.available()
				if buy.available() < matchQty {
					matchQty = buy.available()
				}

				pnl := matchPnL(buy.trade, sell.trade, matchQty)
				realized = realized.Add(decimal.NewFromFloat(pnl))

				result.RoundTrips = append(result.RoundTrips, RoundTrip{
					Symbol:    symbol,
					Quantity:  matchQty,
					BuyPrice:  buy.trade.Price,
					SellPrice: sell.trade.Price,
					PnL:       pnl,
					ClosedAt:  laterTime(buy.trade.ExecutedAt, sell.trade.ExecutedAt),
				})

				buy.matched += matchQty
				sell.matched += matchQty
			}
		}

		for _, buy := range buys[symbol] {
			if buy.available() > 0 {
				result.OpenBuys = append(result.OpenBuys, Lot{
					Symbol:     symbol,
					Quantity:   buy.available(),
					Price:      buy.trade.Price,
					ExecutedAt: buy.trade.ExecutedAt,
				})
			}
		}

		for _, sell := range sells[symbol] {
			if sell.available() > 0 {
				result.OpenSells = append(result.OpenSells, Lot{
					Symbol:     symbol,
					Quantity:   sell.available(),
					Price:      sell.trade.Price,
					ExecutedAt: sell.trade.ExecutedAt,
				})
			}
		}
	}

	sort.SliceStable(result.RoundTrips, func(i, j int) bool {
		return result.RoundTrips[i].ClosedAt.Before(result.RoundTrips[j].ClosedAt)
	})

	result.RealizedPnL, _ = realized.Float64()

	return result
}

// RealizedSince sums the P&L of round trips whose closing leg executed at or
// after the given time. The zero time means no lower bound.
func (r MatchResult) RealizedSince(since time.Time) float64 {
	if since.IsZero() {
		return r.RealizedPnL
	}

	total := decimal.Zero
	for _, rt := range r.RoundTrips {
		if !rt.ClosedAt.Before(since) {
			total = total.Add(decimal.NewFromFloat(rt.PnL))
		}
	}

	sum, _ := total.Float64()

	return sum
}

// matchPnL computes matchQty * (sellPrice - buyPrice) minus each leg's
// commission share for the matched quantity.
func matchPnL(buy, sell types.Trade, matchQty float64) float64 {
	qty := decimal.NewFromFloat(matchQty)

	gross := decimal.NewFromFloat(sell.Price).
		Sub(decimal.NewFromFloat(buy.Price)).
		Mul(qty)

	buyShare := decimal.NewFromFloat(buy.Commission).
		Mul(qty).
		Div(decimal.NewFromFloat(buy.Quantity))
	sellShare := decimal.NewFromFloat(sell.Commission).
		Mul(qty).
		Div(decimal.NewFromFloat(sell.Quantity))

	pnl, _ := gross.Sub(buyShare).Sub(sellShare).Float64()

	return pnl
}

func laterTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}

	return b
}
