package game

import "time"

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the periodic tickers driving countdowns, standings
// broadcasts and room expiry. Tests substitute manually driven tickers.
type TickerFactory interface {
	Create(every time.Duration) Ticker
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

type systemTickers struct{}

func (systemTickers) Create(every time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(every)}
}

func SystemTickers() TickerFactory { return systemTickers{} }
