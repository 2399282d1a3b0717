// Package worker drains follow-up effects recorded with ticket mutations.
package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Handler runs one effect. A nil error marks it done.
type Handler func(ctx context.Context, effect domain.OutboxEffect) error

// Store records effect progress. Claim is a compare-and-swap on the claim
// timestamp so that a replica holding a stale copy of an effect drops it.
type Store interface {
	Claim(ctx context.Context, id string, claimedAt time.Time) (time.Time, bool, error)
	MarkDone(ctx context.Context, id string, attempts int) error
	RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
	ClaimStale(ctx context.Context, claimedBefore time.Time, limit int, once []domain.EffectKind) ([]domain.OutboxEffect, error)
}

// MetricsRecorder counts effect outcomes.
type MetricsRecorder interface {
	OutboxEffect(kind, result string)
}

// Options tunes the pool.
type Options struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	Backoff       time.Duration
	EffectTimeout time.Duration
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

type registration struct {
	handler Handler
	retry   bool
}

// Pool is a fixed set of goroutines fed by a buffered channel. Effects that do
// not fit in the queue, or that a crashed process left behind, are picked up
// by a periodic sweep of the store.
type Pool struct {
	store    Store
	opts     Options
	logger   *zap.Logger
	metrics  MetricsRecorder
	handlers map[domain.EffectKind]registration

	queue chan domain.OutboxEffect
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	stopped  bool
	cancel   context.CancelFunc

	now func() time.Time
}

// NewPool builds a pool. Call Handle for every effect kind before Start.
func NewPool(store Store, opts Options, logger *zap.Logger, metrics MetricsRecorder) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.EffectTimeout <= 0 {
		opts.EffectTimeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		store:    store,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		handlers: make(map[domain.EffectKind]registration),
		queue:    make(chan domain.OutboxEffect, opts.QueueSize),
		inflight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Handle registers the handler for kind. Effects registered without retry are
// attempted once.
func (p *Pool) Handle(kind domain.EffectKind, handler Handler, retry bool) {
	p.handlers[kind] = registration{handler: handler, retry: retry}
}

// Start launches the workers and, when configured, the stale-effect sweeper.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	if p.opts.SweepInterval > 0 {
		p.wg.Add(1)
		go p.sweep(ctx)
	}
	p.logger.Info("outbox worker pool started",
		zap.Int("workers", p.opts.Workers),
		zap.Int("queue_size", p.opts.QueueSize),
	)
}

// Stop cancels in-flight work and waits for every goroutine to return.
// Effects still queued stay PROCESSING in the store for the next sweep.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("outbox worker pool stopped")
}

// Enqueue hands effects to the workers without blocking. It returns the number
// accepted; the rest are left for the sweeper.
func (p *Pool) Enqueue(effects ...domain.OutboxEffect) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return 0
	}
	accepted := 0
	for _, effect := range effects {
		if _, busy := p.inflight[effect.ID]; busy {
			continue
		}
		select {
		case p.queue <- effect:
			p.inflight[effect.ID] = struct{}{}
			accepted++
		default:
			p.logger.Warn("outbox queue full; deferring effect to sweep",
				zap.String("effect_id", effect.ID),
				zap.String("kind", string(effect.Kind)),
			)
		}
	}
	return accepted
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case effect := <-p.queue:
			p.process(ctx, effect)
			p.mu.Lock()
			delete(p.inflight, effect.ID)
			p.mu.Unlock()
		}
	}
}

func (p *Pool) process(ctx context.Context, effect domain.OutboxEffect) {
	logger := p.logger.With(
		zap.String("effect_id", effect.ID),
		zap.String("kind", string(effect.Kind)),
		zap.String("ticket_id", effect.TicketID),
	)
	claimed, ok, err := p.store.Claim(ctx, effect.ID, effect.ClaimedAt)
	if err != nil {
		logger.Warn("claim effect; leaving it for the sweep", zap.Error(err))
		return
	}
	if !ok {
		logger.Debug("effect re-claimed elsewhere; dropping")
		p.record(effect.Kind, "skipped")
		return
	}
	effect.ClaimedAt = claimed

	reg, ok := p.handlers[effect.Kind]
	if !ok {
		logger.Error("no handler for effect kind")
		p.fail(ctx, logger, effect, effect.Attempts, "no handler registered")
		return
	}

	maxAttempts := p.opts.MaxAttempts
	if !reg.retry {
		maxAttempts = 1
	}

	attempt := effect.Attempts
	for {
		attempt++
		if !reg.retry {
			// Once started, the sweep no longer reclaims this effect.
			if err := p.store.RecordAttempt(ctx, effect.ID, attempt, ""); err != nil {
				logger.Warn("record effect start; leaving it for the sweep", zap.Error(err))
				return
			}
		}
		err := p.invoke(ctx, reg.handler, effect)
		if err == nil {
			if err := p.store.MarkDone(context.WithoutCancel(ctx), effect.ID, attempt); err != nil {
				logger.Warn("mark effect done", zap.Error(err))
			}
			p.record(effect.Kind, "done")
			return
		}
		if ctx.Err() != nil {
			logger.Info("effect interrupted by shutdown", zap.Error(err))
			return
		}
		if attempt >= maxAttempts {
			p.fail(ctx, logger, effect, attempt, err.Error())
			return
		}

		logger.Warn("effect attempt failed; retrying", zap.Int("attempt", attempt), zap.Error(err))
		p.record(effect.Kind, "retry")
		if err := p.store.RecordAttempt(ctx, effect.ID, attempt, err.Error()); err != nil {
			logger.Warn("record effect attempt", zap.Error(err))
		}
		if !sleep(ctx, p.backoff(attempt)) {
			return
		}
	}
}

func (p *Pool) invoke(ctx context.Context, handler Handler, effect domain.OutboxEffect) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.EffectTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("effect handler panicked")
			p.logger.Error("effect handler panicked", zap.String("effect_id", effect.ID), zap.Any("panic", r))
		}
	}()
	return handler(ctx, effect)
}

func (p *Pool) fail(ctx context.Context, logger *zap.Logger, effect domain.OutboxEffect, attempts int, reason string) {
	logger.Error("effect failed permanently", zap.Int("attempts", attempts), zap.String("error", reason))
	if err := p.store.MarkFailed(context.WithoutCancel(ctx), effect.ID, attempts, reason); err != nil {
		logger.Warn("mark effect failed", zap.Error(err))
	}
	p.record(effect.Kind, "failed")
}

// onceKinds lists the kinds registered without retry.
func (p *Pool) onceKinds() []domain.EffectKind {
	kinds := make([]domain.EffectKind, 0, len(p.handlers))
	for kind, reg := range p.handlers {
		if !reg.retry {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (p *Pool) backoff(attempt int) time.Duration {
	d := p.opts.Backoff
	for i := 1; i < attempt && d < time.Minute; i++ {
		d *= 2
	}
	return d
}

func (p *Pool) record(kind domain.EffectKind, result string) {
	if p.metrics != nil {
		p.metrics.OutboxEffect(string(kind), result)
	}
}

func (p *Pool) sweep(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepOnce(ctx)
		}
	}
}

// SweepOnce reclaims stale effects from the store and enqueues them.
func (p *Pool) SweepOnce(ctx context.Context) int {
	stale, err := p.store.ClaimStale(ctx, p.now().Add(-p.opts.StaleAfter), p.opts.QueueSize, p.onceKinds())
	if err != nil {
		p.logger.Warn("claim stale effects", zap.Error(err))
		return 0
	}
	if len(stale) == 0 {
		return 0
	}
	accepted := p.Enqueue(stale...)
	p.logger.Info("reclaimed stale effects", zap.Int("claimed", len(stale)), zap.Int("enqueued", accepted))
	return accepted
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
