// Package engine assembles the trading service from configuration and owns
// its runtime lifecycle: trade log replay, the price tick loop, HTTP
// serving, and graceful shutdown.
package engine

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/api"
	"github.com/deltastream-lab/tradesim/internal/commission"
	"github.com/deltastream-lab/tradesim/internal/config"
	"github.com/deltastream-lab/tradesim/internal/ledger"
	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/oms"
	"github.com/deltastream-lab/tradesim/internal/orderbook"
	"github.com/deltastream-lab/tradesim/internal/pricing"
	"github.com/deltastream-lab/tradesim/internal/risk"
	"github.com/deltastream-lab/tradesim/internal/store"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
	"github.com/deltastream-lab/tradesim/pkg/events"
)

const shutdownTimeout = 5 * time.Second

// Engine is the assembled trading service.
type Engine struct {
	cfg config.Config
	log *logger.Logger

	store     *store.Store
	books     *orderbook.Registry
	walk      *pricing.RandomWalk
	manager   *oms.Manager
	bus       *events.Bus
	nats      *events.NATSPublisher
	publisher events.Publisher
	httpSrv   *http.Server
}

// New wires every component from the validated configuration. The engine
// owns the store and publisher connections until Close.
func New(cfg config.Config, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = store.InMemoryPath
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(errors.ErrCodePersistenceFailure, err, "create database directory %s", dir)
		}
	}

	st, err := store.NewStore(dbPath, log.Named("store"))
	if err != nil {
		return nil, err
	}

	if err := st.Initialize(); err != nil {
		_ = st.Close()
		return nil, err
	}

	log.Info("storage initialized", zap.String("path", dbPath))

	seed := cfg.Market.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	books := orderbook.NewRegistry(cfg.Market.Book, seed, log.Named("books"))

	static := pricing.NewStaticSource(cfg.Market.PriceSeeds, pricing.DefaultReferencePrice)

	var walk *pricing.RandomWalk
	if cfg.Market.WalkVolatility > 0 {
		walk = pricing.NewRandomWalk(static, cfg.Market.WalkVolatility, seed)
	}

	underlyingSeeds := make(map[string]float64, len(cfg.Products))
	for _, product := range cfg.Products {
		underlyingSeeds[product.Name] = product.UnderlyingPrice
	}

	catalog := types.NewProductCatalog(cfg.Products)
	underlyings := pricing.NewStaticSource(underlyingSeeds, pricing.DefaultReferencePrice)

	bus := events.NewBus(cfg.Events.BusBuffer)

	var (
		natsPublisher *events.NATSPublisher
		publisher     events.Publisher = bus
	)

	if cfg.Events.NATSURL != "" {
		natsPublisher, err = events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			_ = st.Close()
			return nil, err
		}

		publisher = events.NewMultiPublisher(bus, natsPublisher)

		log.Info("nats publisher connected",
			zap.String("url", cfg.Events.NATSURL),
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}

	manager, err := oms.NewManager(oms.Deps{
		Books:      books,
		Risk:       risk.NewEngine(cfg.Risk, catalog, underlyings, log.Named("risk")),
		Ledger:     ledger.NewLedger(cfg.InitialCash, log.Named("ledger")),
		Store:      st,
		Prices:     pricing.NewBookAwareSource(books, static),
		Commission: commission.GetCommissionFeeHandler(cfg.Broker),
		Publisher:  publisher,
		Logger:     log.Named("oms"),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	apiServer, err := api.NewServer(api.Deps{
		Manager:        manager,
		Store:          st,
		Bus:            bus,
		NATS:           natsPublisher,
		Logger:         log.Named("api"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	log.Info("engine assembled",
		zap.String("broker", string(cfg.Broker)),
		zap.Int("products", len(cfg.Products)),
		zap.Float64("initial_cash", cfg.InitialCash),
		zap.String("addr", cfg.Server.Addr))

	return &Engine{
		cfg:       cfg,
		log:       log,
		store:     st,
		books:     books,
		walk:      walk,
		manager:   manager,
		bus:       bus,
		nats:      natsPublisher,
		publisher: publisher,
		httpSrv: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Rebuild replays the persisted trade log into the ledger and returns the
// number of trades applied.
func (e *Engine) Rebuild() (int, error) {
	return e.manager.RebuildFromTradeLog()
}

// Run blocks serving traffic until the context is cancelled or the HTTP
// server fails. Components are closed on the way out.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()

	if e.cfg.Database.ReplayOnStart {
		if _, err := e.Rebuild(); err != nil {
			return err
		}
	}

	if e.walk != nil && e.cfg.Market.TickInterval > 0 {
		go e.tickPrices(ctx)
	}

	errCh := make(chan error, 1)

	go func() {
		e.log.Info("http server listening", zap.String("addr", e.httpSrv.Addr))

		if err := e.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		e.log.Info("shutdown requested")
	case err := <-errCh:
		return errors.Wrap(errors.ErrCodeInternal, "http server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.httpSrv.Shutdown(shutdownCtx); err != nil {
		e.log.Warn("http shutdown incomplete", zap.Error(err))
	}

	return nil
}

// Close releases the publisher connections and the store. Safe to call
// after Run returns; Run calls it on every exit path.
func (e *Engine) Close() {
	if err := e.publisher.Close(); err != nil {
		e.log.Warn("event publisher close failed", zap.Error(err))
	}

	if err := e.store.Close(); err != nil {
		e.log.Warn("store close failed", zap.Error(err))
	}
}

// tickPrices advances the random walk and shifts every live book toward
// the new reference price. Symbols without books yet are skipped; they
// seed from the walked price on first touch.
func (e *Engine) tickPrices(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Market.TickInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for symbol, price := range e.walk.Step() {
				e.books.ShiftReference(symbol, price)
			}
		}
	}
}
