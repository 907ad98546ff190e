// Package api exposes the trading service over HTTP and WebSocket.
// All trade routes identify the caller through the X-User-ID header; the
// order book and health routes are public.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/moznion/go-optional"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/oms"
	"github.com/deltastream-lab/tradesim/internal/store"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
	"github.com/deltastream-lab/tradesim/pkg/events"
)

// ownerHeader carries the caller identity. The transport trusts it as-is;
// there is no authentication in the simulator.
const ownerHeader = "X-User-ID"

const defaultListLimit = 50

// Deps are the collaborators the server needs. Manager, Store, and Logger
// are required; Bus enables the event stream endpoint and NATS only feeds
// the health report.
type Deps struct {
	Manager        *oms.Manager
	Store          *store.Store
	Bus            *events.Bus
	NATS           *events.NATSPublisher
	Logger         *logger.Logger
	AllowedOrigins []string
}

// Server routes HTTP requests to the order manager.
type Server struct {
	manager  *oms.Manager
	store    *store.Store
	bus      *events.Bus
	nats     *events.NATSPublisher
	log      *logger.Logger
	router   *mux.Router
	cors     *cors.Cors
	upgrader websocket.Upgrader
}

// NewServer builds the router and wires every route.
func NewServer(deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "api server requires an order manager")
	}

	if deps.Store == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "api server requires a store")
	}

	if deps.Logger == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "api server requires a logger")
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		manager: deps.Manager,
		store:   deps.Store,
		bus:     deps.Bus,
		nats:    deps.NATS,
		log:     deps.Logger,
		router:  mux.NewRouter(),
		cors: cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", ownerHeader},
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/trade/order", s.withOwner(s.handleSubmitOrder)).Methods("POST")
	s.router.HandleFunc("/api/trade/orders", s.withOwner(s.handleListOrders)).Methods("GET")
	s.router.HandleFunc("/api/trade/order/{orderID}", s.withOwner(s.handleGetOrder)).Methods("GET")
	s.router.HandleFunc("/api/trade/order/{orderID}", s.withOwner(s.handleCancelOrder)).Methods("DELETE")
	s.router.HandleFunc("/api/trade/portfolio", s.withOwner(s.handlePortfolio)).Methods("GET")
	s.router.HandleFunc("/api/trade/positions", s.withOwner(s.handlePositions)).Methods("GET")
	s.router.HandleFunc("/api/trade/pnl", s.withOwner(s.handlePnL)).Methods("GET")
	s.router.HandleFunc("/api/trade/trades", s.withOwner(s.handleTrades)).Methods("GET")
	s.router.HandleFunc("/api/trade/performance", s.withOwner(s.handlePerformance)).Methods("GET")
	s.router.HandleFunc("/api/trade/risk", s.withOwner(s.handleRisk)).Methods("GET")

	// Public market data and liveness.
	s.router.HandleFunc("/api/trade/orderbook/{symbol}", s.handleOrderBook).Methods("GET")
	s.router.HandleFunc("/api/trade/stream", s.handleStream)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped root handler, ready to serve.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

// withOwner extracts the caller identity and rejects requests without one.
func (s *Server) withOwner(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get(ownerHeader))
		if ownerID == "" {
			s.respondError(w, http.StatusUnauthorized, "missing "+ownerHeader+" header")
			return
		}

		next(w, r, ownerID)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// errorMessage strips the numeric code prefix off structured errors so API
// clients see only the human-readable part.
func errorMessage(err error) string {
	var typed *errors.Error
	if errors.As(err, &typed) {
		return typed.Message
	}

	return err.Error()
}

// queryInt reads an integer query parameter, falling back silently on a
// missing or unparsable value.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}

	return value
}

// parseStatus maps the status query parameter to an order status filter.
// The empty string means no filter; anything unrecognized is reported.
func parseStatus(raw string) (optional.Option[types.OrderStatus], bool) {
	if raw == "" {
		return optional.None[types.OrderStatus](), true
	}

	status := types.OrderStatus(strings.ToUpper(raw))
	switch status {
	case types.OrderStatusPending, types.OrderStatusFilled, types.OrderStatusPartiallyFilled, types.OrderStatusRejected:
		return optional.Some(status), true
	default:
		return optional.None[types.OrderStatus](), false
	}
}
