package mocks

import (
	"math"
	"math/rand"

	"github.com/moznion/go-optional"

	"github.com/deltastream-lab/tradesim/internal/types"
)

// FlowGenerator generates realistic order flow for testing and benchmarking.
type FlowGenerator struct {
	rng *rand.Rand
}

// NewFlowGenerator creates a new FlowGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewFlowGenerator(seed int64) *FlowGenerator {
	return &FlowGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// FlowConfig configures how order flow is generated.
type FlowConfig struct {
	// Owners are the account identifiers orders are attributed to.
	Owners []string
	// Symbols are the instruments orders are placed on.
	Symbols []string
	// Count is the number of orders to generate.
	Count int
	// MarketRatio is the fraction of orders sent as MARKET (0.0 to 1.0).
	MarketRatio float64
	// BuyRatio is the fraction of orders sent as BUY (0.0 to 1.0).
	BuyRatio float64
	// LotSize is the contract size; quantities are whole-lot multiples.
	LotSize int
	// MinLots and MaxLots bound the order size in lots.
	MinLots int
	MaxLots int
	// ReferencePrices anchor limit prices per symbol.
	ReferencePrices map[string]float64
	// LimitBand is the maximum relative distance of a limit price from
	// its reference (0.02 = within 2%). Both sides draw from the full
	// band so some limit orders cross and some rest.
	LimitBand float64
}

// DefaultFlowConfig returns a sensible default configuration.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		Owners:      []string{"trader_001", "trader_002", "trader_003"},
		Symbols:     []string{"NIFTY24500CE", "NIFTY24500PE"},
		Count:       1000,
		MarketRatio: 0.4,
		BuyRatio:    0.5,
		LotSize:     50,
		MinLots:     1,
		MaxLots:     4,
		ReferencePrices: map[string]float64{
			"NIFTY24500CE": 125.0,
			"NIFTY24500PE": 118.0,
		},
		LimitBand: 0.02,
	}
}

// Generate creates a slice of OrderRequest based on the configuration.
// Owners and symbols are drawn uniformly, quantities are whole-lot
// multiples, and limit prices are banded around the reference price.
func (g *FlowGenerator) Generate(config FlowConfig) []types.OrderRequest {
	flow := make([]types.OrderRequest, config.Count)

	for i := 0; i < config.Count; i++ {
		owner := config.Owners[g.rng.Intn(len(config.Owners))]
		symbol := config.Symbols[g.rng.Intn(len(config.Symbols))]

		side := types.SideSell
		if g.rng.Float64() < config.BuyRatio {
			side = types.SideBuy
		}

		lots := config.MinLots
		if config.MaxLots > config.MinLots {
			lots += g.rng.Intn(config.MaxLots - config.MinLots + 1)
		}

		req := types.OrderRequest{
			OwnerID:    owner,
			Symbol:     symbol,
			Side:       side,
			OrderType:  types.OrderTypeMarket,
			Quantity:   float64(lots * config.LotSize),
			LimitPrice: optional.None[float64](),
		}

		if g.rng.Float64() >= config.MarketRatio {
			reference := config.ReferencePrices[symbol]
			offset := (g.rng.Float64()*2 - 1) * config.LimitBand
			req.OrderType = types.OrderTypeLimit
			req.LimitPrice = optional.Some(roundTo(reference*(1+offset), 2))
		}

		flow[i] = req
	}

	return flow
}

// GenerateDefaultFlow is a convenience function that generates count
// orders with default settings and a fixed seed for benchmarking.
func GenerateDefaultFlow(count int) []types.OrderRequest {
	gen := NewFlowGenerator(42)
	config := DefaultFlowConfig()
	config.Count = count

	return gen.Generate(config)
}

// roundTo rounds a float64 to the specified number of decimal places.
func roundTo(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
