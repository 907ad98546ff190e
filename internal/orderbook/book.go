// Package orderbook holds per-symbol synthetic depth and matches market
// and limit orders in price-time priority. Levels carry an arrival
// sequence; a side never holds two levels at the same price.
package orderbook

import (
	"math"
	"math/rand"
	"sort"

	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// level is one resting price level, stamped with its arrival sequence.
type level struct {
	price    float64
	quantity float64
	seq      uint64
}

// SeedConfig controls synthetic depth generation for a new book.
type SeedConfig struct {
	// Levels is the number of price levels per side. Minimum 5.
	Levels int `yaml:"levels" json:"levels" validate:"gte=5"`
	// SpreadMinPct and SpreadMaxPct bound the bid/ask spread as a fraction
	// of the reference price.
	SpreadMinPct float64 `yaml:"spread_min_pct" json:"spread_min_pct" validate:"gt=0"`
	SpreadMaxPct float64 `yaml:"spread_max_pct" json:"spread_max_pct" validate:"gt=0"`
	// BaseQtyMin and BaseQtyMax bound the size of the best level.
	BaseQtyMin int `yaml:"base_qty_min" json:"base_qty_min" validate:"gt=0"`
	BaseQtyMax int `yaml:"base_qty_max" json:"base_qty_max" validate:"gt=0"`
	// SizeDecay shrinks level size as distance from the mid grows.
	SizeDecay float64 `yaml:"size_decay" json:"size_decay" validate:"gt=0,lte=1"`
}

// DefaultSeedConfig mirrors typical index option depth: five levels per
// side, 0.5%-2% spread, best-level size between 250 and 500.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Levels:       5,
		SpreadMinPct: 0.005,
		SpreadMaxPct: 0.02,
		BaseQtyMin:   250,
		BaseQtyMax:   500,
		SizeDecay:    0.8,
	}
}

// OrderBook is the depth for one symbol. It is not safe for concurrent use;
// the Registry serializes access per symbol.
type OrderBook struct {
	symbol         string
	midPrice       float64
	lastTradePrice float64
	nextSeq        uint64
	bids           []level // price descending
	asks           []level // price ascending
}

// NewOrderBook creates a book for symbol seeded with synthetic depth around
// the reference price.
func NewOrderBook(symbol string, referencePrice float64, cfg SeedConfig, rng *rand.Rand) *OrderBook {
	b := &OrderBook{
		symbol:         symbol,
		midPrice:       referencePrice,
		lastTradePrice: referencePrice,
	}
	b.seedDepth(cfg, rng)

	return b
}

// seedDepth generates cfg.Levels levels per side. The spread is drawn from
// [SpreadMinPct, SpreadMaxPct] of the mid, levels step outward by half the
// spread, and sizes decay geometrically away from the mid.
func (b *OrderBook) seedDepth(cfg SeedConfig, rng *rand.Rand) {
	spreadPct := cfg.SpreadMinPct + rng.Float64()*(cfg.SpreadMaxPct-cfg.SpreadMinPct)
	spread := b.midPrice * spreadPct

	bestBid := b.midPrice - spread/2
	bestAsk := b.midPrice + spread/2

	baseQty := float64(cfg.BaseQtyMin + rng.Intn(cfg.BaseQtyMax-cfg.BaseQtyMin+1))

	for i := 0; i < cfg.Levels; i++ {
		qty := math.Max(1, math.Round(baseQty*math.Pow(cfg.SizeDecay, float64(i))))

		b.bids = append(b.bids, b.newLevel(bestBid-float64(i)*spread*0.5, qty))
		b.asks = append(b.asks, b.newLevel(bestAsk+float64(i)*spread*0.5, qty))
	}

	sort.Slice(b.bids, func(i, j int) bool { return b.bids[i].price > b.bids[j].price })
	sort.Slice(b.asks, func(i, j int) bool { return b.asks[i].price < b.asks[j].price })
}

// newLevel stamps a level with the next arrival sequence.
func (b *OrderBook) newLevel(price, quantity float64) level {
	lv := level{price: price, quantity: quantity, seq: b.nextSeq}
	b.nextSeq++

	return lv
}

// LoadDepth replaces the book's depth with explicit levels. Bids must be
// strictly price-descending and asks strictly ascending, with no duplicate
// price on a side.
func (b *OrderBook) LoadDepth(bids, asks []types.BookLevel) error {
	newBids := make([]level, 0, len(bids))

	for i, lv := range bids {
		if i > 0 && lv.Price >= bids[i-1].Price {
			return errors.Newf(errors.ErrCodeInvalidParameter, "bid ladder not strictly descending at price %f", lv.Price)
		}

		newBids = append(newBids, b.newLevel(lv.Price, lv.Quantity))
	}

	newAsks := make([]level, 0, len(asks))

	for i, lv := range asks {
		if i > 0 && lv.Price <= asks[i-1].Price {
			return errors.Newf(errors.ErrCodeInvalidParameter, "ask ladder not strictly ascending at price %f", lv.Price)
		}

		newAsks = append(newAsks, b.newLevel(lv.Price, lv.Quantity))
	}

	b.bids = newBids
	b.asks = newAsks

	return nil
}

// BestBid returns the highest bid level, if any.
func (b *OrderBook) BestBid() (types.BookLevel, bool) {
	if len(b.bids) == 0 {
		return types.BookLevel{}, false
	}

	return types.BookLevel{Price: b.bids[0].price, Quantity: b.bids[0].quantity}, true
}

// BestAsk returns the lowest ask level, if any.
func (b *OrderBook) BestAsk() (types.BookLevel, bool) {
	if len(b.asks) == 0 {
		return types.BookLevel{}, false
	}

	return types.BookLevel{Price: b.asks[0].price, Quantity: b.asks[0].quantity}, true
}

// Spread returns the distance between best ask and best bid, or 0 when
// either side is empty.
func (b *OrderBook) Spread() float64 {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()

	if !okBid || !okAsk {
		return 0
	}

	return ask.Price - bid.Price
}

// LastTradePrice returns the price of the most recent fill, or the seed
// reference price before any trade.
func (b *OrderBook) LastTradePrice() float64 {
	return b.lastTradePrice
}

// MatchMarketOrder walks the opposing ladder from the best price outward,
// consuming whole or partial levels until quantity is exhausted. When the
// opposing depth cannot cover the full quantity the match fails with
// ErrCodeInsufficientLiquidity and the book is left unmodified.
func (b *OrderBook) MatchMarketOrder(side types.Side, quantity float64) ([]types.Fill, error) {
	if quantity <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be positive, got %f", quantity)
	}

	ladder := b.opposing(side)

	available := 0.0
	for _, lv := range *ladder {
		available += lv.quantity
	}

	if available < quantity {
		return nil, errors.Newf(errors.ErrCodeInsufficientLiquidity,
			"insufficient depth for %s %f on %s: %f available", side, quantity, b.symbol, available)
	}

	fills := b.consume(ladder, quantity, nil)
	b.lastTradePrice = fills[len(fills)-1].Price

	return fills, nil
}

// MatchLimitOrder consumes opposing levels that satisfy the limit price:
// asks at or below the limit for a buy, bids at or above it for a sell.
// The result may cover less than the requested quantity, down to no fills
// at all; unfilled remainder never rests in the book.
func (b *OrderBook) MatchLimitOrder(side types.Side, limitPrice, quantity float64) ([]types.Fill, error) {
	if quantity <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be positive, got %f", quantity)
	}

	if limitPrice <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "limit price must be positive, got %f", limitPrice)
	}

	ladder := b.opposing(side)

	withinLimit := func(price float64) bool {
		if side == types.SideBuy {
			return price <= limitPrice
		}

		return price >= limitPrice
	}

	fills := b.consume(ladder, quantity, withinLimit)
	if len(fills) > 0 {
		b.lastTradePrice = fills[len(fills)-1].Price
	}

	return fills, nil
}

// opposing returns the ladder a taker of the given side trades against.
func (b *OrderBook) opposing(side types.Side) *[]level {
	if side == types.SideBuy {
		return &b.asks
	}

	return &b.bids
}

// consume eats levels from the front of the ladder until quantity is
// exhausted, the ladder empties, or accept rejects the next level. Partial
// consumption reduces the level in place; full consumption removes it.
func (b *OrderBook) consume(ladder *[]level, quantity float64, accept func(price float64) bool) []types.Fill {
	var fills []types.Fill

	remaining := quantity

	for remaining > 0 && len(*ladder) > 0 {
		head := (*ladder)[0]
		if accept != nil && !accept(head.price) {
			break
		}

		fillQty := math.Min(remaining, head.quantity)
		fills = append(fills, types.Fill{Price: head.price, Quantity: fillQty})
		remaining -= fillQty

		if fillQty < head.quantity {
			(*ladder)[0].quantity = head.quantity - fillQty
		} else {
			*ladder = (*ladder)[1:]
		}
	}

	return fills
}

// ShiftReference moves every level proportionally to a new reference price,
// keeping quantities and arrival order. Depth is never replenished here.
func (b *OrderBook) ShiftReference(newMidPrice float64) {
	if b.midPrice <= 0 || newMidPrice <= 0 {
		return
	}

	ratio := newMidPrice / b.midPrice

	for i := range b.bids {
		b.bids[i].price *= ratio
	}

	for i := range b.asks {
		b.asks[i].price *= ratio
	}

	b.midPrice = newMidPrice
}

// Snapshot returns a read-only view of the top maxLevels levels per side.
// Pass 0 for the full book.
func (b *OrderBook) Snapshot(maxLevels int) types.BookSnapshot {
	take := func(ladder []level) []types.BookLevel {
		n := len(ladder)
		if maxLevels > 0 && maxLevels < n {
			n = maxLevels
		}

		out := make([]types.BookLevel, 0, n)
		for _, lv := range ladder[:n] {
			out = append(out, types.BookLevel{Price: lv.price, Quantity: lv.quantity})
		}

		return out
	}

	return types.BookSnapshot{
		Symbol:         b.symbol,
		MidPrice:       b.midPrice,
		LastTradePrice: b.lastTradePrice,
		Spread:         b.Spread(),
		Bids:           take(b.bids),
		Asks:           take(b.asks),
	}
}

// checkInvariants verifies ladder ordering; used by tests.
func (b *OrderBook) checkInvariants() error {
	for i := 1; i < len(b.bids); i++ {
		if b.bids[i].price >= b.bids[i-1].price {
			return errors.Newf(errors.ErrCodeInternal, "bid ladder out of order at index %d", i)
		}
	}

	for i := 1; i < len(b.asks); i++ {
		if b.asks[i].price <= b.asks[i-1].price {
			return errors.Newf(errors.ErrCodeInternal, "ask ladder out of order at index %d", i)
		}
	}

	return nil
}
