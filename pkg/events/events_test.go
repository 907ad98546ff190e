package events

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"

	"github.com/deltastream-lab/tradesim/internal/types"
)

func TestNewOrderEventMapsStatus(t *testing.T) {
	at := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   types.OrderStatus
		expected EventType
	}{
		{
			name:     "filled",
			status:   types.OrderStatusFilled,
			expected: EventOrderFilled,
		},
		{
			name:     "partially filled",
			status:   types.OrderStatusPartiallyFilled,
			expected: EventOrderPartiallyFilled,
		},
		{
			name:     "rejected",
			status:   types.OrderStatusRejected,
			expected: EventOrderRejected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := types.Order{
				OrderID:         "ORD_20240314_AB12CD34",
				OwnerID:         "user-1",
				Symbol:          "NIFTY24500CE",
				Side:            types.SideBuy,
				OrderType:       types.OrderTypeMarket,
				Quantity:        100,
				Status:          tc.status,
				RejectionReason: optional.None[string](),
			}

			event := NewOrderEvent(order, at)

			assert.Equal(t, tc.expected, event.Type)
			assert.Equal(t, "user-1", event.OwnerID)
			assert.Equal(t, "NIFTY24500CE", event.Symbol)
			assert.Equal(t, at, event.At)
			assert.NotNil(t, event.Order)
			assert.Nil(t, event.Trade)
		})
	}
}

func TestNewTradeEvent(t *testing.T) {
	at := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	trade := types.Trade{
		TradeID:    "TRD_20240314_AB12CD34",
		OrderID:    "ORD_20240314_AB12CD34",
		OwnerID:    "user-1",
		Symbol:     "NIFTY24500CE",
		Side:       types.SideSell,
		Price:      132,
		Quantity:   75,
		ExecutedAt: at,
	}

	event := NewTradeEvent(trade)

	assert.Equal(t, EventTradeExecuted, event.Type)
	assert.Equal(t, at, event.At)
	assert.NotNil(t, event.Trade)
	assert.Nil(t, event.Order)
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	defer func() { _ = bus.Close() }()

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	event := Event{Type: EventTradeExecuted, OwnerID: "user-1", Symbol: "NIFTY24500CE"}
	assert.NoError(t, bus.Publish(event))

	assert.Equal(t, event, <-first)
	assert.Equal(t, event, <-second)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(1)
	defer func() { _ = bus.Close() }()

	_, cancel := bus.Subscribe()
	defer cancel()

	assert.NoError(t, bus.Publish(Event{Type: EventOrderFilled}))
	assert.NoError(t, bus.Publish(Event{Type: EventOrderFilled}))
	assert.NoError(t, bus.Publish(Event{Type: EventOrderFilled}))

	assert.Equal(t, int64(2), bus.Dropped())
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus(4)
	defer func() { _ = bus.Close() }()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // safe to call twice

	_, open := <-ch
	assert.False(t, open)

	assert.NoError(t, bus.Publish(Event{Type: EventOrderFilled}))
	assert.Equal(t, int64(0), bus.Dropped())
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus(4)
	ch, _ := bus.Subscribe()

	assert.NoError(t, bus.Close())

	_, open := <-ch
	assert.False(t, open)

	// Publishing and re-closing after Close are harmless.
	assert.NoError(t, bus.Publish(Event{Type: EventOrderFilled}))
	assert.NoError(t, bus.Close())

	late, _ := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(Event) error {
	p.calls++
	return assert.AnError
}

func (p *failingPublisher) Close() error {
	return nil
}

func TestMultiPublisherAttemptsAllTargets(t *testing.T) {
	failing := &failingPublisher{}
	bus := NewBus(4)
	defer func() { _ = bus.Close() }()
	ch, cancel := bus.Subscribe()
	defer cancel()

	multi := NewMultiPublisher(failing, bus)

	err := multi.Publish(Event{Type: EventOrderFilled})
	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)

	// The bus still received the event despite the earlier failure.
	assert.Equal(t, EventOrderFilled, (<-ch).Type)
}

func TestNopPublisher(t *testing.T) {
	nop := NewNopPublisher()

	assert.NoError(t, nop.Publish(Event{Type: EventOrderFilled}))
	assert.NoError(t, nop.Close())
}
