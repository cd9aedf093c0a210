package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/podwatch/podwatch/pkg/log"
	"github.com/podwatch/podwatch/pkg/storage"
	"github.com/podwatch/podwatch/pkg/types"
)

// Poller runs acquisition cycles on an interval and persists the
// outcome. Cycles are single-flight: a tick that fires while a cycle is
// still running is skipped.
type Poller struct {
	collector *Collector
	db        storage.Database
	interval  time.Duration

	mu      sync.Mutex
	running bool
	last    *types.AcquisitionResult
	lastErr error
}

// NewPoller returns a poller that persists cycle output through db.
func NewPoller(c *Collector, db storage.Database, interval time.Duration) *Poller {
	return &Poller{
		collector: c,
		db:        db,
		interval:  interval,
	}
}

// LastResult returns the most recent cycle result, if any cycle has
// finished yet.
func (p *Poller) LastResult() (*types.AcquisitionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.lastErr
}

// Discover runs point discovery on demand and persists what it finds.
func (p *Poller) Discover(ctx context.Context) ([]types.DeliveryPoint, error) {
	points, err := p.collector.DiscoverPoints(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.db.UpsertDeliveryPoints(ctx, points); err != nil {
		return nil, err
	}
	return points, nil
}

// Run blocks, executing one cycle immediately and then one per
// interval, until the context is cancelled or authentication fails.
// Authentication failures are terminal since retrying the same
// credentials only locks the account.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		if err := p.RunOnce(ctx); err != nil {
			var authErr *types.AuthenticationError
			if errors.As(err, &authErr) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Ctx(ctx).ErrorContext(ctx, "acquisition cycle failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce executes a single cycle end to end. If a cycle is already in
// flight it returns immediately without starting another.
func (p *Poller) RunOnce(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		log.Ctx(ctx).WarnContext(ctx, "cycle still running, skipping tick")
		return nil
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	points, err := p.db.GetDeliveryPoints(ctx)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		if points, err = p.Discover(ctx); err != nil {
			return err
		}
	}

	ref := time.Now().In(p.collector.Location())
	res, runErr := p.collector.RunCycle(ctx, points, ref)

	p.mu.Lock()
	p.last, p.lastErr = &res, runErr
	p.mu.Unlock()

	if err := p.persist(ctx, res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist cycle result", slog.Any("error", err))
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func (p *Poller) persist(ctx context.Context, res types.AcquisitionResult) error {
	if aggs := res.Aggregates(); len(aggs) > 0 {
		if err := p.db.UpsertAggregates(ctx, aggs); err != nil {
			return err
		}
	}
	if len(res.Anomalies) > 0 {
		if err := p.db.InsertAnomalies(ctx, res.Anomalies); err != nil {
			return err
		}
	}
	return nil
}
