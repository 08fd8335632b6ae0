package md

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
)

type BarHandler func(Bar)

func StartStream(ctx context.Context, apiKey, apiSecret, feed string, symbols []string, handler BarHandler) error {
	client := stream.NewStocksClient(
		ParseFeed(feed),
		stream.WithCredentials(apiKey, apiSecret),
	)

	// Connect must be called before subscribing in this SDK version
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}

	if err := client.SubscribeToBars(func(bar stream.Bar) {
		handler(Bar{
			Symbol: bar.Symbol,
			Time:   bar.Timestamp.UTC(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: float64(bar.Volume),
		})
	}, symbols...); err != nil {
		return fmt.Errorf("subscribe to bars: %w", err)
	}

	slog.Info("subscribed to minute bars", "symbols", symbols, "feed", feed)

	<-ctx.Done()
	return ctx.Err()
}

func ParseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	case "test":
		return "test"
	default:
		return marketdata.IEX
	}
}
