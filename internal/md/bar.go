package md

import (
	"errors"
	"time"

	"github.com/samber/lo"
)

var (
	ErrNoPrice       = errors.New("no price available")
	ErrNotEnoughData = errors.New("not enough data")
)

type Granularity string

const (
	Minute Granularity = "minute"
	Day    Granularity = "day"
)

type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Window is a chronological run of bars for one symbol. Providers may return
// fewer bars than requested when history is short.
type Window []Bar

func (w Window) Len() int {
	return len(w)
}

// Last returns the i-th bar counting back from the newest, Last(0) being the newest.
func (w Window) Last(i int) (Bar, bool) {
	if i < 0 || i >= len(w) {
		return Bar{}, false
	}
	return w[len(w)-1-i], true
}

// Tail returns at most the n newest bars.
func (w Window) Tail(n int) Window {
	if n <= 0 {
		return Window{}
	}
	if n >= len(w) {
		return w
	}
	return w[len(w)-n:]
}

func (w Window) Closes() []float64 {
	return lo.Map(w, func(bar Bar, _ int) float64 {
		return bar.Close
	})
}

// SMA is the arithmetic mean of the newest period closes, current bar included.
func (w Window) SMA(period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(w) < period {
		return 0, ErrNotEnoughData
	}
	return lo.Sum(w.Tail(period).Closes()) / float64(period), nil
}

// Chronological reports whether bar times strictly increase.
func (w Window) Chronological() bool {
	for i := 1; i < len(w); i++ {
		if !w[i].Time.After(w[i-1].Time) {
			return false
		}
	}
	return true
}

// Aggregate folds the window into a single bar stamped with the first bar's time.
func (w Window) Aggregate() (Bar, bool) {
	if len(w) == 0 {
		return Bar{}, false
	}
	out := w[0]
	out.Close = w[len(w)-1].Close
	out.High = lo.Max(lo.Map(w, func(bar Bar, _ int) float64 { return bar.High }))
	out.Low = lo.Min(lo.Map(w, func(bar Bar, _ int) float64 { return bar.Low }))
	out.Volume = lo.Sum(lo.Map(w, func(bar Bar, _ int) float64 { return bar.Volume }))
	return out, true
}
