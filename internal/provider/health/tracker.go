package health

import (
	"sync"
	"time"

	"marketfeed/internal/provider"
	"marketfeed/internal/provider/ratelimit"
)

// Config tunes breaker and throttle behaviour.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	Window           time.Duration
	Headroom         float64
}

// DefaultConfig trips after 3 failures, cools down for 2 minutes and
// allows 80% of the declared per-minute limit.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         120 * time.Second,
		Window:           60 * time.Second,
		Headroom:         0.8,
	}
}

type state struct {
	name             string
	active           bool
	failures         int
	window           *ratelimit.Window
	deactivatedUntil time.Time
}

// Tracker owns the mutable health and rate state of every source.
// Every method holds one lock so check-then-update sequences are atomic.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	order      []string
	states     map[string]*state
	current    string
	lastSwitch time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New builds a tracker over descriptors in failover order. The first
// descriptor starts as the current source.
func New(cfg Config, descriptors []provider.Descriptor, opts ...Option) *Tracker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Headroom <= 0 {
		cfg.Headroom = def.Headroom
	}
	t := &Tracker{
		cfg:    cfg,
		now:    time.Now,
		states: make(map[string]*state, len(descriptors)),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, d := range descriptors {
		t.order = append(t.order, d.ID)
		t.states[d.ID] = &state{
			name:   d.Name,
			active: true,
			window: ratelimit.NewWindow(d.RateLimit, cfg.Headroom, cfg.Window),
		}
	}
	if len(t.order) > 0 {
		t.current = t.order[0]
	}
	return t
}

// reactivate flips an expired deactivation back on. Caller holds mu.
func (t *Tracker) reactivate(s *state, now time.Time) {
	if !s.active && !now.Before(s.deactivatedUntil) {
		s.active = true
		s.failures = 0
		s.deactivatedUntil = time.Time{}
	}
}

// IsActive reports whether id is usable, reactivating it if its
// cool-down has passed.
func (t *Tracker) IsActive(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return false
	}
	t.reactivate(s, t.now())
	return s.active
}

// IsRateLimited reports whether id has used its request budget for the
// current window. Starts a fresh window when the old one has elapsed.
func (t *Tracker) IsRateLimited(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return true
	}
	return s.window.Limited(t.now())
}

// RecordSuccess counts a request against id and clears its failures.
func (t *Tracker) RecordSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return
	}
	s.window.Add()
	s.failures = 0
}

// RecordFailure counts a failure against id. It deactivates the source
// and returns true once the threshold is reached or the failure is critical.
func (t *Tracker) RecordFailure(id string, critical bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return false
	}
	s.failures++
	if s.failures < t.cfg.FailureThreshold && !critical {
		return false
	}
	s.active = false
	s.deactivatedUntil = t.now().Add(t.cfg.Cooldown)
	return true
}

// PickNext returns the first active source after currentID in failover
// order, wrapping around. currentID itself is only returned when it is
// the sole active source. When nothing is active every source is reset
// and the first one is returned.
func (t *Tracker) PickNext(currentID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pickNext(currentID)
}

func (t *Tracker) pickNext(currentID string) string {
	if len(t.order) == 0 {
		return ""
	}
	now := t.now()
	start := 0
	for i, id := range t.order {
		if id == currentID {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(t.order); i++ {
		id := t.order[(start+i)%len(t.order)]
		s := t.states[id]
		t.reactivate(s, now)
		if s.active {
			return id
		}
	}
	for _, s := range t.states {
		s.active = true
		s.failures = 0
		s.deactivatedUntil = time.Time{}
	}
	return t.order[0]
}

// Advance moves the current source to PickNext(from) and returns it.
func (t *Tracker) Advance(from string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.pickNext(from)
	if next != t.current {
		t.current = next
		t.lastSwitch = t.now()
	}
	return next
}

// Current is the source the next request should go to.
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SourceStatus is a point-in-time view of one source.
type SourceStatus struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Active           bool       `json:"active"`
	Failures         int        `json:"consecutive_failures"`
	Requests         int        `json:"requests_this_window"`
	DeactivatedUntil *time.Time `json:"deactivated_until,omitempty"`
}

// Status is a point-in-time view of the whole tracker.
type Status struct {
	Current     string         `json:"current"`
	CurrentName string         `json:"current_name"`
	LastSwitch  *time.Time     `json:"last_switch,omitempty"`
	Sources     []SourceStatus `json:"sources"`
}

// Status reports every source in failover order.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	st := Status{Current: t.current, Sources: make([]SourceStatus, 0, len(t.order))}
	if !t.lastSwitch.IsZero() {
		ls := t.lastSwitch
		st.LastSwitch = &ls
	}
	for _, id := range t.order {
		s := t.states[id]
		t.reactivate(s, now)
		ss := SourceStatus{
			ID:       id,
			Name:     s.name,
			Active:   s.active,
			Failures: s.failures,
			Requests: s.window.Count(),
		}
		if !s.active {
			until := s.deactivatedUntil
			ss.DeactivatedUntil = &until
		}
		if id == t.current {
			st.CurrentName = s.name
		}
		st.Sources = append(st.Sources, ss)
	}
	return st
}
