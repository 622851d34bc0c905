// Package poller runs a refresh function on a fixed interval. Ticks that arrive while
// the dashboard is not being viewed are suppressed; the first of them queues a single
// catch-up run for when viewing resumes. Every run, catch-ups included, happens on the
// Run loop, so Run returning means no refresh is still in progress.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// Suppression reasons for pollSuppressedTotal.
const (
	ReasonHidden   = "hidden"
	ReasonTooSoon  = "too_soon"
	ReasonInFlight = "in_flight"
)

// Func refreshes one feed. Errors are logged; the next tick is the retry.
type Func func(ctx context.Context) error

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock driving the ticker and the last-run guard.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) { p.clock = clock }
}

// WithLogger sets the logger for failed runs.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// Poller calls fn immediately and then every interval. Pollers start visible.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func
	clock    clockwork.Clock
	logger   *zap.Logger

	catchUp chan struct{}

	mu        sync.Mutex
	started   bool
	visible   bool
	queued    bool
	running   bool
	lastStart time.Time
}

// New creates a Poller. name labels metrics and logs (e.g. "weather").
func New(name string, interval time.Duration, fn Func, opts ...Option) *Poller {
	p := &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		catchUp:  make(chan struct{}, 1),
		visible:  true,
	}
	for _, o := range opts {
		o(p)
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Name returns the poller's feed name.
func (p *Poller) Name() string {
	return p.name
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
	}()

	p.execute(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.tick(ctx)
		case <-p.catchUp:
			p.execute(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if !p.visible {
		p.queued = true
		p.mu.Unlock()
		observability.PollSuppressedTotal.WithLabelValues(p.name, ReasonHidden).Inc()
		return
	}
	p.mu.Unlock()
	p.execute(ctx)
}

// SetVisible records viewer visibility. Becoming visible with a queued catch-up hands
// it to the Run loop; it does not block.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = visible
	if !visible || !p.queued || !p.started {
		return
	}
	p.queued = false
	select {
	case p.catchUp <- struct{}{}:
	default:
	}
}

// execute runs fn unless a run is in flight or the previous one started less than an
// interval ago. Tick delivery can jitter, so the guard allows a small slack.
func (p *Poller) execute(ctx context.Context) bool {
	p.mu.Lock()
	now := p.clock.Now()
	if p.running {
		p.mu.Unlock()
		observability.PollSuppressedTotal.WithLabelValues(p.name, ReasonInFlight).Inc()
		return false
	}
	if !p.lastStart.IsZero() && now.Sub(p.lastStart) < p.interval-p.interval/20 {
		p.mu.Unlock()
		observability.PollSuppressedTotal.WithLabelValues(p.name, ReasonTooSoon).Inc()
		return false
	}
	p.running = true
	p.mu.Unlock()

	err := p.fn(ctx)

	p.mu.Lock()
	p.running = false
	p.lastStart = now
	p.mu.Unlock()

	if err != nil {
		observability.PollRunsTotal.WithLabelValues(p.name, "failure").Inc()
		p.logger.Warn("poll failed",
			zap.String("feed", p.name),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return true
	}
	observability.PollRunsTotal.WithLabelValues(p.name, "success").Inc()
	return true
}

// Group runs several pollers and fans visibility changes out to all of them.
type Group struct {
	pollers []*Poller
}

// NewGroup creates a Group.
func NewGroup(pollers ...*Poller) *Group {
	return &Group{pollers: pollers}
}

// Run starts every poller and blocks until ctx is done and all have returned.
func (g *Group) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range g.pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}
	wg.Wait()
}

// SetVisible forwards to every poller.
func (g *Group) SetVisible(visible bool) {
	for _, p := range g.pollers {
		p.SetVisible(visible)
	}
}
