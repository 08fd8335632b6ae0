package md

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailyWindow(closes ...float64) Window {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	window := make(Window, 0, len(closes))
	for i, c := range closes {
		window = append(window, closeBar(start.AddDate(0, 0, i), c))
	}
	return window
}

func TestWindowSMA(t *testing.T) {
	window := dailyWindow(1, 2, 3, 4, 5)

	sma, err := window.SMA(3)
	require.NoError(t, err)
	assert.Equal(t, (3.0+4.0+5.0)/3.0, sma)

	sma, err = window.SMA(5)
	require.NoError(t, err)
	assert.Equal(t, 3.0, sma)
}

func TestWindowSMAInsufficientData(t *testing.T) {
	_, err := dailyWindow(1).SMA(3)
	assert.True(t, errors.Is(err, ErrNotEnoughData))

	_, err = dailyWindow(1, 2).SMA(0)
	assert.Error(t, err)
}

func TestWindowLastAndTail(t *testing.T) {
	window := dailyWindow(10, 20, 30)

	bar, ok := window.Last(1)
	require.True(t, ok)
	assert.Equal(t, 20.0, bar.Close)

	_, ok = window.Last(3)
	assert.False(t, ok)

	assert.Equal(t, []float64{20, 30}, window.Tail(2).Closes())
	assert.Len(t, window.Tail(10), 3)
	assert.Empty(t, window.Tail(0))
	assert.True(t, window.Chronological())
	assert.False(t, Window{window[1], window[0]}.Chronological())
}

func TestWindowAggregate(t *testing.T) {
	start := time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)
	window := Window{
		{Symbol: "AAPL", Time: start, Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 100},
		{Symbol: "AAPL", Time: start.Add(time.Minute), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 50},
		{Symbol: "AAPL", Time: start.Add(2 * time.Minute), Open: 11.5, High: 11.8, Low: 9, Close: 9.2, Volume: 25},
	}

	bar, ok := window.Aggregate()
	require.True(t, ok)
	assert.Equal(t, Bar{Symbol: "AAPL", Time: start, Open: 10, High: 12, Low: 9, Close: 9.2, Volume: 175}, bar)

	_, ok = Window{}.Aggregate()
	assert.False(t, ok)
}
