package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickFunc performs one unit of periodic work.
type TickFunc func(ctx context.Context) error

// Locker grants exclusive leases for a named job across replicas.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// TickObserver receives the outcome of every tick.
type TickObserver interface {
	ObserveJobTick(job string, outcome string, duration time.Duration)
}

// PeriodicConfig configures a Periodic job.
type PeriodicConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
	Locker   Locker
	Observer TickObserver
	Logger   *zap.Logger
	// RunImmediately triggers a tick before waiting for the first interval.
	RunImmediately bool
}

// Periodic runs a TickFunc on a fixed interval until its context is cancelled.
type Periodic struct {
	name     string
	tick     TickFunc
	interval time.Duration
	lockTTL  time.Duration
	locker   Locker
	observer TickObserver
	logger   *zap.Logger
	eager    bool
}

// Tick outcomes reported to observers.
const (
	TickOutcomeOK      = "ok"
	TickOutcomeFailed  = "failed"
	TickOutcomeSkipped = "skipped"
)

// NewPeriodic builds a periodic job.
func NewPeriodic(name string, tick TickFunc, cfg PeriodicConfig) *Periodic {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Periodic{
		name:     name,
		tick:     tick,
		interval: cfg.Interval,
		lockTTL:  cfg.LockTTL,
		locker:   cfg.Locker,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		eager:    cfg.RunImmediately,
	}
}

// Name returns the job name.
func (p *Periodic) Name() string {
	return p.name
}

// Run blocks, ticking until ctx is done. It always returns nil on cancellation.
func (p *Periodic) Run(ctx context.Context) error {
	p.logger.Sugar().Infow("periodic job started", "job", p.name, "interval", p.interval)
	if p.eager {
		p.RunOnce(ctx)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Sugar().Infow("periodic job stopped", "job", p.name)
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single guarded tick and reports its outcome.
func (p *Periodic) RunOnce(ctx context.Context) string {
	start := time.Now()
	outcome := p.runGuarded(ctx)
	if p.observer != nil {
		p.observer.ObserveJobTick(p.name, outcome, time.Since(start))
	}
	return outcome
}

func (p *Periodic) runGuarded(ctx context.Context) string {
	if p.locker != nil {
		release, acquired, err := p.locker.Acquire(ctx, p.name, p.lockTTL)
		if err != nil {
			p.logger.Sugar().Warnw("periodic job lock failed", "job", p.name, "error", err)
			return TickOutcomeSkipped
		}
		if !acquired {
			p.logger.Sugar().Debugw("periodic job held elsewhere", "job", p.name)
			return TickOutcomeSkipped
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Sugar().Warnw("periodic job unlock failed", "job", p.name, "error", err)
			}
		}()
	}
	if err := p.tick(ctx); err != nil {
		p.logger.Sugar().Errorw("periodic job tick failed", "job", p.name, "error", err)
		return TickOutcomeFailed
	}
	return TickOutcomeOK
}
