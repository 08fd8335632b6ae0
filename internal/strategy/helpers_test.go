package strategy

import (
	"time"

	"tradecore/internal/md"
)

var testDay = time.Date(2025, 8, 4, 13, 30, 0, 0, time.UTC)

func rangeBar(day int, high, low float64) md.Bar {
	return md.Bar{
		Symbol: "TSLA",
		Time:   testDay.AddDate(0, 0, day),
		Open:   low,
		High:   high,
		Low:    low,
		Close:  (high + low) / 2,
	}
}

func closesWindow(closes ...float64) md.Window {
	window := make(md.Window, 0, len(closes))
	for i, c := range closes {
		window = append(window, md.Bar{
			Symbol: "TSLA",
			Time:   testDay.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
		})
	}
	return window
}

func priced(price, value float64) Inputs {
	return Inputs{Now: testDay, Price: price, HasPrice: true, PortfolioValue: value}
}
