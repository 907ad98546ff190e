package orderbook

import (
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/types"
)

// Registry owns one OrderBook per symbol. Books are created lazily on first
// use and live for the process lifetime. All mutation goes through WithBook,
// which serializes per symbol; different symbols proceed in parallel.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*bookEntry
	cfg     SeedConfig
	rng     *rand.Rand
	logger  *logger.Logger
}

type bookEntry struct {
	mu   sync.Mutex
	book *OrderBook
}

// NewRegistry creates a registry seeding new books from cfg. The seed makes
// synthetic depth deterministic for a given submission order.
func NewRegistry(cfg SeedConfig, seed int64, log *logger.Logger) *Registry {
	return &Registry{
		mu:      sync.RWMutex{},
		entries: make(map[string]*bookEntry),
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  log,
	}
}

// WithBook runs fn with exclusive access to the symbol's book, creating and
// seeding it around referencePrice if it does not exist yet.
func (r *Registry) WithBook(symbol string, referencePrice float64, fn func(*OrderBook) error) error {
	entry := r.entry(symbol, referencePrice)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return fn(entry.book)
}

// entry returns the bookEntry for symbol, creating it if needed.
func (r *Registry) entry(symbol string, referencePrice float64) *bookEntry {
	r.mu.RLock()
	entry, ok := r.entries[symbol]
	r.mu.RUnlock()

	if ok {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok = r.entries[symbol]; ok {
		return entry
	}

	entry = &bookEntry{
		mu:   sync.Mutex{},
		book: NewOrderBook(symbol, referencePrice, r.cfg, r.rng),
	}
	r.entries[symbol] = entry

	r.logger.Info("order book created",
		zap.String("symbol", symbol),
		zap.Float64("reference_price", referencePrice))

	return entry
}

// Snapshot returns the current depth for symbol limited to maxLevels per
// side, or false when no book exists yet.
func (r *Registry) Snapshot(symbol string, maxLevels int) (types.BookSnapshot, bool) {
	r.mu.RLock()
	entry, ok := r.entries[symbol]
	r.mu.RUnlock()

	if !ok {
		return types.BookSnapshot{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.book.Snapshot(maxLevels), true
}

// LastTradePrice returns the symbol's last trade price, or false when no
// book exists yet.
func (r *Registry) LastTradePrice(symbol string) (float64, bool) {
	r.mu.RLock()
	entry, ok := r.entries[symbol]
	r.mu.RUnlock()

	if !ok {
		return 0, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.book.LastTradePrice(), true
}

// ShiftReference moves an existing book's levels proportionally to a new
// reference price. Books are never created here; missing symbols are a
// no-op, matching lazy creation on first order.
func (r *Registry) ShiftReference(symbol string, newPrice float64) {
	r.mu.RLock()
	entry, ok := r.entries[symbol]
	r.mu.RUnlock()

	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.book.ShiftReference(newPrice)
}

// Symbols lists the symbols with live books in lexical order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for symbol := range r.entries {
		out = append(out, symbol)
	}

	sort.Strings(out)

	return out
}
