// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultWindow is the rolling period the budget applies to.
	DefaultWindow = 60 * time.Second

	// DefaultMargin is added to every computed wait.
	DefaultMargin = 5 * time.Second

	// DefaultMaxUnits is the default token-equivalent budget per window.
	DefaultMaxUnits = 200000

	// DefaultMaxCalls is the default call budget per window.
	DefaultMaxCalls = 20
)

type entry struct {
	at    time.Time
	units int
}

// Gate is a sliding-window admission controller over a two-dimensional budget:
// units consumed and calls made per window. A single Gate is shared by every
// caller of the metered service.
type Gate struct {
	mu       sync.Mutex
	entries  []entry // ordered by admission time
	maxUnits int
	maxCalls int
	window   time.Duration
	margin   time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithWindow overrides the rolling window length.
func WithWindow(d time.Duration) Option {
	return func(g *Gate) {
		g.window = d
	}
}

// WithMargin overrides the safety margin added to waits.
func WithMargin(d time.Duration) Option {
	return func(g *Gate) {
		g.margin = d
	}
}

// WithClock replaces the time source and the sleep function.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
	}
}

// NewGate creates a Gate admitting fewer than maxUnits units and at most
// maxCalls calls per window.
func NewGate(maxUnits, maxCalls int, opts ...Option) (*Gate, error) {
	if maxUnits <= 0 {
		return nil, ErrInvalidUnitBudget
	}
	if maxCalls <= 0 {
		return nil, ErrInvalidCallBudget
	}

	g := &Gate{
		maxUnits: maxUnits,
		maxCalls: maxCalls,
		window:   DefaultWindow,
		margin:   DefaultMargin,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.window <= 0 {
		return nil, ErrInvalidWindow
	}
	g.logger = g.logger.With("component", "quota-gate")

	return g, nil
}

// Acquire blocks until a call consuming units is admitted. It never rejects;
// the only error it returns is the context's.
//
// A request larger than the whole budget is admitted once the window is empty.
func (g *Gate) Acquire(ctx context.Context, units int) error {
	if units < 0 {
		units = 0
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := g.tryAdmit(units)
		if ok {
			return nil
		}

		g.logger.Debug("quota exhausted, waiting", "units", units, "wait", wait)
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAdmit performs one scan-and-decide step under the lock. When the call is
// not admitted it returns how long to wait before checking again.
func (g *Gate) tryAdmit(units int) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evict(now)

	used := 0
	for _, e := range g.entries {
		used += e.units
	}
	calls := len(g.entries)

	if calls < g.maxCalls && (used+units < g.maxUnits || calls == 0) {
		g.entries = append(g.entries, entry{at: now, units: units})
		return 0, true
	}

	oldest := g.entries[0].at
	return g.window - now.Sub(oldest) + g.margin, false
}

// evict drops entries older than the window. Must be called with lock held.
func (g *Gate) evict(now time.Time) {
	drop := 0
	for drop < len(g.entries) && now.Sub(g.entries[drop].at) > g.window {
		drop++
	}
	if drop > 0 {
		g.entries = append(g.entries[:0], g.entries[drop:]...)
	}
}

// Usage reports units and calls admitted within the current window.
func (g *Gate) Usage() (units, calls int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.evict(g.now())
	for _, e := range g.entries {
		units += e.units
	}
	return units, len(g.entries)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
