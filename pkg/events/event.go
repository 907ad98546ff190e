// Package events defines the outbound event stream: one event per terminal
// order outcome and one per executed trade, fanned out to in-process
// subscribers and external consumers.
package events

import (
	"time"

	"github.com/deltastream-lab/tradesim/internal/types"
)

type EventType string

const (
	EventOrderFilled          EventType = "order.filled"
	EventOrderPartiallyFilled EventType = "order.partially_filled"
	EventOrderRejected        EventType = "order.rejected"
	EventTradeExecuted        EventType = "trade.executed"
)

// Event is the payload delivered to downstream consumers. Exactly one of
// Order or Trade is set, matching the event type.
type Event struct {
	Type    EventType    `json:"type"`
	OwnerID string       `json:"owner_id"`
	Symbol  string       `json:"symbol"`
	At      time.Time    `json:"at"`
	Order   *types.Order `json:"order,omitempty"`
	Trade   *types.Trade `json:"trade,omitempty"`
}

// NewOrderEvent builds the event for an order that reached a terminal
// state.
func NewOrderEvent(order types.Order, at time.Time) Event {
	var eventType EventType

	switch order.Status {
	case types.OrderStatusFilled:
		eventType = EventOrderFilled
	case types.OrderStatusPartiallyFilled:
		eventType = EventOrderPartiallyFilled
	default:
		eventType = EventOrderRejected
	}

	return Event{
		Type:    eventType,
		OwnerID: order.OwnerID,
		Symbol:  order.Symbol,
		At:      at,
		Order:   &order,
	}
}

// NewTradeEvent builds the event for one executed trade.
func NewTradeEvent(trade types.Trade) Event {
	return Event{
		Type:    EventTradeExecuted,
		OwnerID: trade.OwnerID,
		Symbol:  trade.Symbol,
		At:      trade.ExecutedAt,
		Trade:   &trade,
	}
}
