// Package pricing supplies reference prices for symbols and underlying
// products. The trading core never fetches external feeds; these sources
// are the collaborator behind that boundary.
package pricing

import (
	"math/rand"
	"sort"
	"sync"
)

// Source provides the reference price for a symbol or an underlying
// product name.
type Source interface {
	ReferencePrice(symbol string) (float64, error)
}

// DefaultReferencePrice is used for symbols with no configured seed.
const DefaultReferencePrice = 100.0

// StaticSource serves configured seed prices with a fixed fallback.
// SetPrice allows a feed loop to move prices at runtime.
type StaticSource struct {
	mu           sync.RWMutex
	prices       map[string]float64
	defaultPrice float64
}

// NewStaticSource creates a source from seed prices. A nil map is allowed;
// every lookup then resolves to defaultPrice.
func NewStaticSource(prices map[string]float64, defaultPrice float64) *StaticSource {
	copied := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		copied[symbol] = price
	}

	return &StaticSource{
		mu:           sync.RWMutex{},
		prices:       copied,
		defaultPrice: defaultPrice,
	}
}

// ReferencePrice implements Source.
func (s *StaticSource) ReferencePrice(symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if price, ok := s.prices[symbol]; ok {
		return price, nil
	}

	return s.defaultPrice, nil
}

// Quote reports the configured price for a symbol without falling back to
// the default. Callers that have their own fallback use this instead of
// ReferencePrice.
func (s *StaticSource) Quote(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[symbol]

	return price, ok
}

// SetPrice updates or adds a seed price.
func (s *StaticSource) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[symbol] = price
}

// Symbols lists the configured symbols in lexical order.
func (s *StaticSource) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		out = append(out, symbol)
	}

	sort.Strings(out)

	return out
}

// RandomWalk drifts the prices of a StaticSource with a geometric Brownian
// motion step. A fixed seed makes the walk reproducible.
type RandomWalk struct {
	mu         sync.Mutex
	source     *StaticSource
	rng        *rand.Rand
	volatility float64
}

// NewRandomWalk wraps source with a walk of the given per-step volatility
// (0.002 means 0.2% typical movement per step).
func NewRandomWalk(source *StaticSource, volatility float64, seed int64) *RandomWalk {
	return &RandomWalk{
		mu:         sync.Mutex{},
		source:     source,
		rng:        rand.New(rand.NewSource(seed)),
		volatility: volatility,
	}
}

// ReferencePrice implements Source by delegating to the wrapped source.
func (w *RandomWalk) ReferencePrice(symbol string) (float64, error) {
	return w.source.ReferencePrice(symbol)
}

// Step advances every configured symbol one tick and returns the new
// prices. Prices never go non-positive; a step that would cross zero is
// clamped to 1% below the previous price.
func (w *RandomWalk) Step() map[string]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	updated := make(map[string]float64)

	for _, symbol := range w.source.Symbols() {
		price, _ := w.source.ReferencePrice(symbol)

		next := price * (1 + w.volatility*w.rng.NormFloat64())
		if next <= 0 {
			next = price * 0.99
		}

		w.source.SetPrice(symbol, next)
		updated[symbol] = next
	}

	return updated
}

// LastTradeLookup reports the most recent trade price for a symbol when a
// book exists. The order book registry satisfies this.
type LastTradeLookup interface {
	LastTradePrice(symbol string) (float64, bool)
}

// BookAwareSource prefers the live last trade price over the fallback
// source, mirroring how the reference price follows executed trades once a
// symbol has a book.
type BookAwareSource struct {
	books    LastTradeLookup
	fallback Source
}

// NewBookAwareSource creates a source backed by the books with a fallback.
func NewBookAwareSource(books LastTradeLookup, fallback Source) *BookAwareSource {
	return &BookAwareSource{
		books:    books,
		fallback: fallback,
	}
}

// ReferencePrice implements Source.
func (s *BookAwareSource) ReferencePrice(symbol string) (float64, error) {
	if price, ok := s.books.LastTradePrice(symbol); ok {
		return price, nil
	}

	return s.fallback.ReferencePrice(symbol)
}
