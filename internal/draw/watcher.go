// Package draw watches the participant count and latches the draw time the
// first time the threshold is reached.
package draw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/robfig/cron/v3"

	"tombola/internal/clock"
	"tombola/internal/progression"
	"tombola/internal/store"
)

// DefaultSchedule is how often the watcher re-evaluates the threshold.
const DefaultSchedule = "@every 30s"

// CountdownDuration separates the threshold from the draw itself.
const CountdownDuration = 24 * time.Hour

// Counter supplies the unique participant count.
type Counter interface {
	UniqueParticipantCount() int
}

// Countdown is the draw status served to visitors.
type Countdown struct {
	progression.Status
	DrawTime         *time.Time `json:"tirageTime,omitempty"`
	SecondsRemaining int64      `json:"secondsRemaining"`
}

// Watcher evaluates the threshold on a cron schedule. Once the draw time is
// stored it is never recomputed.
type Watcher struct {
	mu      sync.Mutex
	store   store.Store
	calc    *progression.Calculator
	counter Counter
	clock   clock.Clock
	cron    *cron.Cron
}

// NewWatcher creates a stopped Watcher.
func NewWatcher(s store.Store, calc *progression.Calculator, counter Counter, clk clock.Clock) *Watcher {
	return &Watcher{store: s, calc: calc, counter: counter, clock: clk}
}

// DrawTime returns the latched draw time. A failed read is logged and
// reported as not latched.
func (w *Watcher) DrawTime() (time.Time, bool) {
	t, ok, err := w.drawTime()
	if err != nil {
		logger.Warningf("draw time: %v", err)
	}
	return t, ok
}

func (w *Watcher) drawTime() (time.Time, bool, error) {
	var t time.Time
	found, err := store.LoadJSON(w.store, store.KeyTirageTime, &t)
	if err != nil || !found || t.IsZero() {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Check evaluates the threshold once and latches the draw time on the first
// true result. It reports whether a draw time is set.
func (w *Watcher) Check() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, latched, err := w.drawTime()
	if err != nil {
		return false, fmt.Errorf("check draw time: %w", err)
	}
	if latched {
		return true, nil
	}

	now := w.clock.Now()
	count := w.counter.UniqueParticipantCount()
	if !w.calc.ThresholdReached(count, now) {
		return false, nil
	}

	at := now.Add(CountdownDuration)
	if err := store.SaveJSON(w.store, store.KeyTirageTime, at); err != nil {
		return false, fmt.Errorf("latch draw time: %w", err)
	}
	logger.Infof("threshold reached with %d participants, draw at %s", count, at.Format(time.RFC3339))
	return true, nil
}

// Countdown returns the current status and, once latched, the draw time.
func (w *Watcher) Countdown() Countdown {
	now := w.clock.Now()
	c := Countdown{Status: w.calc.Status(w.counter.UniqueParticipantCount(), now)}
	if at, ok := w.DrawTime(); ok {
		c.ThresholdReached = true
		c.DrawTime = &at
		c.SecondsRemaining = max(0, int64(at.Sub(now)/time.Second))
	}
	return c
}

// Start runs Check on schedule until Stop. An empty schedule means
// DefaultSchedule.
func (w *Watcher) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := w.Check(); err != nil {
			logger.Errorf("draw watcher: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule draw watcher: %w", err)
	}

	w.mu.Lock()
	w.cron = c
	w.mu.Unlock()

	c.Start()
	logger.Infof("draw watcher started (%s)", schedule)
	return nil
}

// Stop halts the schedule and waits for a running check, or for ctx.
func (w *Watcher) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
