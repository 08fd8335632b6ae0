package sizing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		fraction  float64
		price     float64
		wantQty   int
		wantFloor int
	}{
		{"whole shares", 10000, 0.1, 245.5, 4, 4},
		{"insufficient funds", 1000, 0.8, 2000, 0, 1},
		{"exact division", 10000, 1, 100, 100, 100},
		{"float artifact", 100, 0.7, 70, 1, 1},
		{"zero price", 1000, 0.5, 0, 0, 0},
		{"negative price", 1000, 0.5, -10, 0, 0},
		{"zero portfolio", 0, 0.5, 10, 0, 0},
		{"negative portfolio", -500, 0.5, 10, 0, 0},
		{"zero fraction", 1000, 0, 10, 0, 0},
		{"nan price", 1000, 0.5, math.NaN(), 0, 0},
		{"inf portfolio", math.Inf(1), 0.5, 10, 0, 0},
		{"overflow", 1e19, 1, 1, 0, 0},
		{"overflow on tiny price", 1e6, 1, 1e-15, 0, 0},
		{"largest representable", 1e18, 1, 1, 1000000000000000000, 1000000000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantQty, Size(tt.value, tt.fraction, tt.price))
			assert.Equal(t, tt.wantFloor, SizeAtLeastOne(tt.value, tt.fraction, tt.price))
		})
	}
}

func TestSizeNeverNegative(t *testing.T) {
	for _, value := range []float64{-1e9, -1, 0, 1, 1e9, 1e19, 1e300} {
		for _, price := range []float64{-5, 0, 1e-15, 0.01, 5, 5000} {
			assert.GreaterOrEqual(t, Size(value, 0.5, price), 0)
			assert.GreaterOrEqual(t, SizeAtLeastOne(value, 0.5, price), 0)
		}
	}
}
