package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionUnrealizedAt(t *testing.T) {
	tests := []struct {
		name     string
		position Position
		current  float64
		expected float64
	}{
		{
			name:     "long gains when price rises",
			position: Position{Quantity: 100, AvgEntryPrice: 125.0},
			current:  132.0,
			expected: 700.0,
		},
		{
			name:     "long loses when price falls",
			position: Position{Quantity: 100, AvgEntryPrice: 125.0},
			current:  120.0,
			expected: -500.0,
		},
		{
			name:     "short gains when price falls",
			position: Position{Quantity: -50, AvgEntryPrice: 200.0},
			current:  180.0,
			expected: 1000.0,
		},
		{
			name:     "short loses when price rises",
			position: Position{Quantity: -50, AvgEntryPrice: 200.0},
			current:  210.0,
			expected: -500.0,
		},
		{
			name:     "flat at entry",
			position: Position{Quantity: 75, AvgEntryPrice: 99.5},
			current:  99.5,
			expected: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, tc.position.UnrealizedAt(tc.current), 1e-9)
		})
	}
}

func TestPositionDirection(t *testing.T) {
	long := Position{Quantity: 10}
	short := Position{Quantity: -10}

	assert.True(t, long.IsLong())
	assert.False(t, long.IsShort())
	assert.True(t, short.IsShort())
	assert.False(t, short.IsLong())
	assert.InDelta(t, 10.0, short.AbsQuantity(), 1e-9)
}

func TestPositionNotionalAt(t *testing.T) {
	p := Position{Quantity: -50, AvgEntryPrice: 200.0}
	assert.InDelta(t, 9000.0, p.NotionalAt(180.0), 1e-9)
}
