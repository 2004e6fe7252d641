package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultMaxRequests = 10
	defaultWindow      = time.Minute
	defaultCooldown    = 30 * time.Second
)

// Config holds the sliding-window limiter settings.
type Config struct {
	MaxRequests int
	Window      time.Duration
	Cooldown    time.Duration
}

// ConfigUpdate carries a partial configuration change. Nil fields keep
// their prior values.
type ConfigUpdate struct {
	MaxRequests *int
	Window      *time.Duration
	Cooldown    *time.Duration
}

// Window is a process-local sliding-window request counter with an
// independent cooldown override. The window counts requests within a
// trailing interval; the cooldown blocks all traffic for a fixed penalty
// period regardless of window occupancy. The stricter mechanism wins.
//
// Stale timestamps are pruned lazily on query, never by a timer.
type Window struct {
	mu sync.Mutex

	cfg           Config
	timestamps    []time.Time
	cooldownUntil time.Time

	now func() time.Time
}

func NewWindow(cfg Config) *Window {
	return newWindow(cfg, time.Now)
}

func newWindow(cfg Config, nowFn func() time.Time) *Window {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = defaultMaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Window{
		cfg: cfg,
		now: nowFn,
	}
}

// CanMakeRequest reports whether a new request may proceed right now.
func (w *Window) CanMakeRequest() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Before(w.cooldownUntil) {
		return false
	}

	w.prune(now)
	return len(w.timestamps) < w.cfg.MaxRequests
}

// RecordRequest appends the current instant unconditionally. Enforcement is
// the caller's responsibility via CanMakeRequest; recording over-budget
// attempts keeps the diagnostics honest.
func (w *Window) RecordRequest() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = append(w.timestamps, w.now())
}

// ActivateCooldown arms the full cooldown period, overriding any prior one.
// Used when the upstream service signals a rate-limit rejection.
func (w *Window) ActivateCooldown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cooldownUntil = w.now().Add(w.cfg.Cooldown)
}

// InCooldown reports whether a cooldown is currently active.
func (w *Window) InCooldown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now().Before(w.cooldownUntil)
}

// TimeUntilReset returns how long until a request could next be admitted:
// the larger of the remaining cooldown and the time until the oldest
// in-window timestamp expires. Zero when under the limit and not cooling
// down, never negative.
func (w *Window) TimeUntilReset() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()

	var cooldownRemaining time.Duration
	if now.Before(w.cooldownUntil) {
		cooldownRemaining = w.cooldownUntil.Sub(now)
	}

	w.prune(now)
	var windowRemaining time.Duration
	if len(w.timestamps) >= w.cfg.MaxRequests {
		windowRemaining = w.timestamps[0].Add(w.cfg.Window).Sub(now)
	}

	remaining := cooldownRemaining
	if windowRemaining > remaining {
		remaining = windowRemaining
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// RemainingRequests returns how many requests fit in the current window,
// zero while a cooldown is active.
func (w *Window) RemainingRequests() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Before(w.cooldownUntil) {
		return 0
	}

	w.prune(now)
	remaining := w.cfg.MaxRequests - len(w.timestamps)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears timestamps and cooldown unconditionally. Administrative
// override, not part of the normal request flow.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = nil
	w.cooldownUntil = time.Time{}
}

// UpdateConfig merges only the supplied fields. Recorded timestamps and an
// active cooldown survive the update, so a change takes effect only for
// new evaluations.
func (w *Window) UpdateConfig(update ConfigUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if update.MaxRequests != nil && *update.MaxRequests > 0 {
		w.cfg.MaxRequests = *update.MaxRequests
	}
	if update.Window != nil && *update.Window > 0 {
		w.cfg.Window = *update.Window
	}
	if update.Cooldown != nil && *update.Cooldown > 0 {
		w.cfg.Cooldown = *update.Cooldown
	}
}

// ConfigSnapshot returns a copy of the effective configuration.
func (w *Window) ConfigSnapshot() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// prune drops timestamps older than the window. Caller must hold the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.cfg.Window)
	idx := 0
	for idx < len(w.timestamps) && !w.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[idx:]...)
	}
}
