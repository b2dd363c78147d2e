package multiplayer

import (
	"sync/atomic"
	"time"

	"github.com/cory-johannsen/tilenet/internal/config"
)

// TurnClock divides host time into fixed-length turns. Within a turn it reports
// spent action points as the elapsed fraction of the turn times the per-turn
// budget; at each turn boundary it fires the turn callback.
type TurnClock struct {
	turn       time.Duration
	resolution time.Duration
	budget     float64
	onProgress func(spent float64)
	onTurn     func(turn uint64)
	turns      atomic.Uint64
}

// NewTurnClock creates a TurnClock from session settings.
//
// Precondition: cfg.TurnDuration > 0 and cfg.TurnResolution > 0.
// Postcondition: nil callbacks are replaced with no-ops.
func NewTurnClock(cfg config.SessionConfig, onProgress func(spent float64), onTurn func(turn uint64)) *TurnClock {
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	if onTurn == nil {
		onTurn = func(uint64) {}
	}
	return &TurnClock{
		turn:       cfg.TurnDuration,
		resolution: cfg.TurnResolution,
		budget:     cfg.ActionPointsPerTurn,
		onProgress: onProgress,
		onTurn:     onTurn,
	}
}

// Turns returns the number of completed turns.
func (c *TurnClock) Turns() uint64 {
	return c.turns.Load()
}

// Spent returns the action points spent after elapsed time into a turn.
//
// Postcondition: Returns a value in [0, budget].
func (c *TurnClock) Spent(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= c.turn {
		return c.budget
	}
	return c.budget * float64(elapsed) / float64(c.turn)
}

// run advances the clock until stop is closed.
func (c *TurnClock) run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.resolution)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed < c.turn {
				c.onProgress(c.Spent(elapsed))
				continue
			}
			start = start.Add(c.turn)
			if now.Sub(start) >= c.turn {
				// Fell more than a full turn behind; resynchronise.
				start = now
			}
			c.onProgress(0)
			c.onTurn(c.turns.Add(1))
		}
	}
}
