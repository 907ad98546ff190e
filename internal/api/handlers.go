package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// handleSubmitOrder accepts an order, runs it through the full lifecycle,
// and reports the terminal outcome. Rejections come back as 400 with the
// rejected order attached; risk rejections are tagged so clients can tell
// them apart from malformed or unfillable orders.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req types.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// The header identity wins over anything in the body.
	req.OwnerID = ownerID

	order, err := s.manager.SubmitOrder(req)

	switch {
	case err == nil:
		s.respondJSON(w, http.StatusCreated, order)

	case order.Status == types.OrderStatusRejected:
		payload := map[string]any{
			"error": errorMessage(err),
			"type":  "order_rejected",
			"order": order,
		}
		if errors.IsRiskRejection(err) {
			payload["type"] = "risk_limit"
		}

		s.respondJSON(w, http.StatusBadRequest, payload)

	case order.OrderID != "":
		// The execution stood but a later stage failed, typically
		// persistence. The ledger is authoritative; surface the fault.
		s.log.Error("order executed but post-trade stage failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error": errorMessage(err),
			"order": order,
		})

	default:
		s.respondError(w, http.StatusInternalServerError, errorMessage(err))
	}
}

// handleListOrders returns the caller's orders, newest first.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, ownerID string) {
	status, ok := parseStatus(r.URL.Query().Get("status"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)

	orders, err := s.manager.ListOrders(ownerID, status, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	if orders == nil {
		orders = []types.Order{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// handleGetOrder returns one order. Orders belonging to other owners are
// reported as not found rather than forbidden.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, ownerID string) {
	orderID := mux.Vars(r)["orderID"]

	order, err := s.manager.GetOrder(orderID)
	if err != nil || order.OwnerID != ownerID {
		s.respondError(w, http.StatusNotFound, "order not found")
		return
	}

	s.respondJSON(w, http.StatusOK, order)
}

// handleCancelOrder always fails: every order reaches a terminal state
// during submission, so there is never a resting order to cancel. The
// status code distinguishes unknown orders from ones that already
// finished.
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, ownerID string) {
	orderID := mux.Vars(r)["orderID"]

	order, err := s.manager.GetOrder(orderID)
	if err != nil || order.OwnerID != ownerID {
		s.respondError(w, http.StatusNotFound, "order not found")
		return
	}

	s.respondJSON(w, http.StatusConflict, map[string]any{
		"error":  "order is already terminal and cannot be cancelled",
		"status": order.Status,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request, ownerID string) {
	s.respondJSON(w, http.StatusOK, s.manager.Portfolio(ownerID))
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request, ownerID string) {
	positions := s.manager.Positions(ownerID)
	if positions == nil {
		positions = []types.Position{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request, ownerID string) {
	period, ok := types.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid period, expected one of today, week, month, year, all")
		return
	}

	s.respondJSON(w, http.StatusOK, s.manager.PnL(ownerID, period))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request, ownerID string) {
	limit := queryInt(r, "limit", defaultListLimit)

	trades := s.manager.TradeHistory(ownerID, limit)
	if trades == nil {
		trades = []types.Trade{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request, ownerID string) {
	s.respondJSON(w, http.StatusOK, s.manager.Performance(ownerID))
}

func (s *Server) handleRisk(w http.ResponseWriter, _ *http.Request, ownerID string) {
	s.respondJSON(w, http.StatusOK, s.manager.RiskReport(ownerID))
}

// handleOrderBook returns the depth snapshot for a symbol, seeding an empty
// book around the reference price when the symbol has not traded yet.
func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	depth := queryInt(r, "depth", 0)

	s.respondJSON(w, http.StatusOK, s.manager.BookSnapshot(symbol, depth))
}

// handleHealth reports component status. The service stays reachable even
// when a component degrades; clients read the body, not the status code.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	components := map[string]string{
		"oms":    "ok",
		"duckdb": "ok",
		"nats":   "disabled",
	}

	if err := s.store.Ping(); err != nil {
		components["duckdb"] = "unavailable"
		status = "degraded"
	}

	if s.nats != nil {
		if s.nats.Connected() {
			components["nats"] = "connected"
		} else {
			components["nats"] = "disconnected"
			status = "degraded"
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"service":    "tradesim",
		"components": components,
	})
}
