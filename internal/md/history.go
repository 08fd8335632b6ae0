package md

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// HistoryClient serves completed bars from the Alpaca market data REST API.
type HistoryClient struct {
	client *marketdata.Client
	feed   marketdata.Feed
	now    func() time.Time
}

func NewHistoryClient(apiKey, apiSecret, feed string) *HistoryClient {
	return &HistoryClient{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		feed: ParseFeed(feed),
		now:  time.Now,
	}
}

// Bars returns up to count of the newest bars for symbol. Fewer bars are
// returned when the symbol's history is short.
func (h *HistoryClient) Bars(ctx context.Context, symbol string, count int, granularity Granularity) (Window, error) {
	if count <= 0 {
		return Window{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := h.now().UTC()
	req := marketdata.GetBarsRequest{
		End:  end,
		Feed: h.feed,
	}
	switch granularity {
	case Day:
		req.TimeFrame = marketdata.OneDay
		// calendar days cover weekends and holidays
		req.Start = end.AddDate(0, 0, -(count*2 + 10))
	case Minute:
		req.TimeFrame = marketdata.OneMin
		req.Start = end.Add(-time.Duration(count*3+60) * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported granularity: %s", granularity)
	}

	bars, err := h.client.GetBars(symbol, req)
	if err != nil {
		return nil, fmt.Errorf("get %s bars for %s: %w", granularity, symbol, err)
	}

	window := make(Window, 0, len(bars))
	for _, bar := range bars {
		window = append(window, Bar{
			Symbol: symbol,
			Time:   bar.Timestamp.UTC(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: float64(bar.Volume),
		})
	}
	return window.Tail(count), nil
}
