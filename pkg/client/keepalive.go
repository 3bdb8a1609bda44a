package client

import (
	"time"
)

// Ticker delivers heartbeat ticks. *time.Ticker is wrapped by the default
// factory; tests substitute a manual one.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// keepAlive owns the heartbeat ticker of one session. It is only touched
// from the event loop.
type keepAlive struct {
	interval  time.Duration
	newTicker TickerFactory
	ticker    Ticker
}

// start arms the ticker. Calling start twice keeps the first ticker.
func (k *keepAlive) start() {
	if k.ticker != nil {
		return
	}
	k.ticker = k.newTicker(k.interval)
}

// C returns the tick channel, nil before start so that a select on it
// never fires.
func (k *keepAlive) C() <-chan time.Time {
	if k.ticker == nil {
		return nil
	}
	return k.ticker.C()
}

func (k *keepAlive) stop() {
	if k.ticker != nil {
		k.ticker.Stop()
		k.ticker = nil
	}
}
