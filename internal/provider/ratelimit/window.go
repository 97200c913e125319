package ratelimit

import (
	"math"
	"time"
)

// Window is a fixed-window request counter that reports a source as
// limited once it reaches a fraction of its declared per-window limit.
// It is not safe for concurrent use; callers guard it.
type Window struct {
	Limit    int
	Headroom float64
	Span     time.Duration

	count int
	start time.Time
}

// NewWindow returns a counter allowing floor(limit*headroom) requests per span.
func NewWindow(limit int, headroom float64, span time.Duration) *Window {
	if headroom <= 0 || headroom > 1 {
		headroom = 1
	}
	if span <= 0 {
		span = time.Minute
	}
	return &Window{Limit: limit, Headroom: headroom, Span: span}
}

// Budget is the number of requests allowed per window.
func (w *Window) Budget() int {
	return int(math.Floor(float64(w.Limit) * w.Headroom))
}

// Limited resets the window when more than Span has elapsed since it
// started, then reports whether the budget is used up.
func (w *Window) Limited(now time.Time) bool {
	if now.Sub(w.start) > w.Span {
		w.count = 0
		w.start = now
		return false
	}
	return w.count >= w.Budget()
}

// Add counts one request.
func (w *Window) Add() { w.count++ }

// Count is the number of requests counted in the current window.
func (w *Window) Count() int { return w.count }

// Start is when the current window began.
func (w *Window) Start() time.Time { return w.start }
