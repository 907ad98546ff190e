package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one consumed price level from a match: the resting level's price
// and the quantity taken from it.
type Fill struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Trade is one executed fill, append-only. A multi-level match emits one
// Trade per consumed level.
type Trade struct {
	TradeID  string  `yaml:"trade_id" json:"trade_id"`
	OrderID  string  `yaml:"order_id" json:"order_id"`
	OwnerID  string  `yaml:"owner_id" json:"owner_id"`
	Symbol   string  `yaml:"symbol" json:"symbol"`
	Side     Side    `yaml:"side" json:"side"`
	Price    float64 `yaml:"price" json:"price"`
	Quantity float64 `yaml:"quantity" json:"quantity"`
	// Value is price times quantity before commission.
	Value      float64 `yaml:"value" json:"value"`
	Commission float64 `yaml:"commission" json:"commission"`
	// NetValue is the cash impact: value plus commission for buys,
	// value minus commission for sells.
	NetValue   float64   `yaml:"net_value" json:"net_value"`
	ExecutedAt time.Time `yaml:"executed_at" json:"executed_at"`
}

// WeightedAvgPrice computes the quantity-weighted mean price of a fill set.
// Returns 0 for an empty set.
func WeightedAvgPrice(fills []Fill) float64 {
	if len(fills) == 0 {
		return 0
	}

	totalValue := decimal.Zero
	totalQty := decimal.Zero

	for _, f := range fills {
		price := decimal.NewFromFloat(f.Price)
		qty := decimal.NewFromFloat(f.Quantity)
		totalValue = totalValue.Add(price.Mul(qty))
		totalQty = totalQty.Add(qty)
	}

	if totalQty.IsZero() {
		return 0
	}

	avg, _ := totalValue.Div(totalQty).Float64()

	return avg
}

// TotalQuantity sums the quantities of a fill set.
func TotalQuantity(fills []Fill) float64 {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(decimal.NewFromFloat(f.Quantity))
	}

	qty, _ := total.Float64()

	return qty
}
