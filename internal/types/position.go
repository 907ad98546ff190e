package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current holding for one owner in one symbol.
// Quantity is signed: positive is long, negative is short. A position with
// zero quantity never exists; the ledger deletes it instead.
type Position struct {
	OwnerID string `yaml:"owner_id" json:"owner_id"`
	Symbol  string `yaml:"symbol" json:"symbol"`
	// Quantity is the signed net quantity.
	Quantity float64 `yaml:"quantity" json:"quantity"`
	// AvgEntryPrice is the quantity-weighted cost basis of the open side.
	// It changes only on same-direction adds, never on reducing fills.
	AvgEntryPrice float64 `yaml:"avg_entry_price" json:"avg_entry_price"`
	// CurrentPrice is the last mark used for unrealized P&L.
	CurrentPrice  float64   `yaml:"current_price" json:"current_price"`
	UnrealizedPnL float64   `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	OpenedAt      time.Time `yaml:"opened_at" json:"opened_at"`
	UpdatedAt     time.Time `yaml:"updated_at" json:"updated_at"`
}

// IsLong reports whether the position is net long.
func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

// IsShort reports whether the position is net short.
func (p *Position) IsShort() bool {
	return p.Quantity < 0
}

// AbsQuantity returns the unsigned position size.
func (p *Position) AbsQuantity() float64 {
	return math.Abs(p.Quantity)
}

// UnrealizedAt computes unrealized P&L at the given mark price:
// (current - entry) * quantity, where the signed quantity makes longs gain
// when price rises and shorts gain when price falls.
func (p *Position) UnrealizedAt(currentPrice float64) float64 {
	current := decimal.NewFromFloat(currentPrice)
	entry := decimal.NewFromFloat(p.AvgEntryPrice)
	qty := decimal.NewFromFloat(p.Quantity)

	pnl, _ := current.Sub(entry).Mul(qty).Float64()

	return pnl
}

// NotionalAt returns the absolute exposure of the position at a mark price.
func (p *Position) NotionalAt(currentPrice float64) float64 {
	notional, _ := decimal.NewFromFloat(currentPrice).
		Mul(decimal.NewFromFloat(p.AbsQuantity())).
		Float64()

	return notional
}
