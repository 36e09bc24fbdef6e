package audit

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes audit events that fell out of the retention window.
type Pruner struct {
	store    *Store
	keep     time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// PrunerOption customizes a Pruner.
type PrunerOption func(*Pruner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) { p.now = now }
}

// NewPruner keeps cfg.Retention worth of events, pruning every
// cfg.PruneInterval. A zero retention disables pruning.
func NewPruner(store *Store, cfg Config, logger *slog.Logger, opts ...PrunerOption) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		store:    store,
		keep:     cfg.Retention,
		interval: cfg.PruneInterval,
		now:      time.Now,
		logger:   logger.With("component", "audit-pruner"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pruner) enabled() bool { return p.store != nil && p.keep > 0 && p.interval > 0 }

// Cutoff is the creation time before which events are deleted.
func (p *Pruner) Cutoff() time.Time { return p.now().Add(-p.keep) }

// PruneOnce runs a single pass and reports how many events it removed.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	if !p.enabled() {
		return 0, nil
	}
	return p.store.DeleteOlderThan(ctx, p.Cutoff())
}

// Run prunes immediately and then every interval until ctx is done.
func (p *Pruner) Run(ctx context.Context) {
	if !p.enabled() {
		p.logger.Info("audit pruning disabled")
		return
	}
	p.logger.Info("audit pruning scheduled", "keep", p.keep.String(), "every", p.interval.String())

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		n, err := p.PruneOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			p.logger.Error("audit pruning failed", "error", err)
		case n > 0:
			p.logger.Info("pruned audit events", "deleted", n, "before", p.Cutoff().Format(time.RFC3339))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
