// Package poller runs the background loop that asks a position source for
// new samples and hands every strictly newer one to a callback.
package poller

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
)

const moduleName = "POLLER"

type Source interface {
	Query(ctx context.Context) (model.PositionSample, error)
}

// Invalidator is implemented by sources that keep a health flag.
type Invalidator interface {
	Invalidate()
}

type (
	SampleHandler func(model.PositionSample)
	LostHandler   func()
)

type Config struct {
	Interval      time.Duration
	MaxFailures   int
	BackoffBase   float64
	BackoffGrowth float64
	BackoffUnit   time.Duration
	QueryTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      90 * time.Second,
		MaxFailures:   7,
		BackoffBase:   86,
		BackoffGrowth: 4,
		BackoffUnit:   time.Second,
		QueryTimeout:  10 * time.Second,
	}
}

// Backoff is the wait after the n-th consecutive failure: unit*(base+growth^n).
func (c Config) Backoff(failures int) time.Duration {
	units := c.BackoffBase + math.Pow(c.BackoffGrowth, float64(failures))
	return time.Duration(units * float64(c.BackoffUnit))
}

type Option func(*Poller)

// WithClock overrides the source of "now" used to seed the last timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// run is one Start..Stop lifetime of the loop.
type run struct {
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	stopped bool
}

func (r *run) stop() {
	r.once.Do(func() { close(r.stopCh) })
}

type Poller struct {
	source Source
	cfg    Config
	logger logger.ILogger
	now    func() time.Time

	mu        sync.Mutex
	current   *run
	last      int64
	validated bool
	onSample  SampleHandler
	onLost    LostHandler
}

func New(source Source, cfg Config, log logger.ILogger, opts ...Option) *Poller {
	if cfg.BackoffUnit == 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	p := &Poller{
		source: source,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetHandlers installs the sample and source-lost callbacks. Both run on the
// poller goroutine.
func (p *Poller) SetHandlers(onSample SampleHandler, onLost LostHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSample = onSample
	p.onLost = onLost
}

// Start begins polling. It is a no-op while a run is active.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && !p.current.stopped {
		return
	}
	r := &run{stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	p.current = r
	p.last = p.now().Unix()
	p.validated = true

	p.logger.Info(moduleName, "Polling started", map[string]interface{}{"interval": p.cfg.Interval.String()})
	go p.loop(r)
}

// Stop asks the active run to finish. It does not wait for it.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.current.stopped {
		return
	}
	p.current.stopped = true
	p.current.stop()
	p.logger.Info(moduleName, "Polling stopped", nil)
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && !p.current.stopped
}

func (p *Poller) Validated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validated
}

// Done is closed when the current run's goroutine has exited. Nil if never started.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current.doneCh
}

func (p *Poller) loop(r *run) {
	defer close(r.doneCh)

	failures := 0
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.QueryTimeout)
		sample, err := p.source.Query(ctx)
		cancel()

		var wait time.Duration
		if err != nil {
			failures++
			p.logger.Warn(moduleName, "Position query failed", map[string]interface{}{
				"error":    err.Error(),
				"failures": failures,
			})
			if failures >= p.cfg.MaxFailures {
				p.giveUp(r, failures)
				return
			}
			wait = p.cfg.Backoff(failures)
		} else {
			failures = 0
			p.deliver(r, sample)
			wait = p.cfg.Interval
		}

		timer := time.NewTimer(wait)
		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) deliver(r *run, sample model.PositionSample) {
	p.mu.Lock()
	if r.stopped || sample.ObservedAt <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = sample.ObservedAt
	handler := p.onSample
	p.mu.Unlock()

	if handler == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error(moduleName, "Sample handler panicked", map[string]interface{}{
				"error": fmt.Sprint(rec),
			})
		}
	}()
	handler(sample)
}

func (p *Poller) giveUp(r *run, failures int) {
	p.mu.Lock()
	superseded := r.stopped
	r.stopped = true
	r.stop()
	handler := p.onLost
	if !superseded {
		p.validated = false
	}
	p.mu.Unlock()

	if superseded {
		return
	}
	if inv, ok := p.source.(Invalidator); ok {
		inv.Invalidate()
	}
	p.logger.Error(moduleName, "Position source lost, polling stopped", map[string]interface{}{
		"failures": failures,
	})
	if handler != nil {
		handler()
	}
}
