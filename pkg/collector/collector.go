// Package collector walks delivery points and periods, fetching and
// normalizing one slice at a time with randomized pacing so the portal
// never sees a mechanical request cadence.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/podwatch/podwatch/pkg/common"
	"github.com/podwatch/podwatch/pkg/ims"
	"github.com/podwatch/podwatch/pkg/log"
	"github.com/podwatch/podwatch/pkg/period"
	"github.com/podwatch/podwatch/pkg/types"
)

const (
	// delays shorter than this look scripted and get floored
	minPacing = 300 * time.Millisecond

	defaultDelayLow  = time.Second
	defaultDelayHigh = 3 * time.Second
	// the gap between points is larger than between periods
	defaultPointDelayLow  = 3 * time.Second
	defaultPointDelayHigh = 9 * time.Second
)

// Collector runs acquisition cycles against a portal. A cycle is
// sequential by design: pacing is the politeness mechanism, so slices
// are never fetched concurrently.
type Collector struct {
	portal   ims.Portal
	registry *period.Registry

	delayLow       time.Duration
	delayHigh      time.Duration
	pointDelayLow  time.Duration
	pointDelayHigh time.Duration

	// injectable for tests
	jitter func(low, high time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// New returns a collector with the default pacing bounds.
func New(portal ims.Portal, registry *period.Registry) *Collector {
	return &Collector{
		portal:         portal,
		registry:       registry,
		delayLow:       defaultDelayLow,
		delayHigh:      defaultDelayHigh,
		pointDelayLow:  defaultPointDelayLow,
		pointDelayHigh: defaultPointDelayHigh,
		jitter:         uniformJitter,
		sleep:          common.Sleep,
	}
}

// SetPacing overrides the randomized delay bounds. Delays still get
// floored at minPacing.
func (c *Collector) SetPacing(low, high, pointLow, pointHigh time.Duration) {
	c.delayLow = low
	c.delayHigh = high
	c.pointDelayLow = pointLow
	c.pointDelayHigh = pointHigh
}

// uniformJitter picks a uniformly random delay in [low, high], floored
// at minPacing.
func uniformJitter(low, high time.Duration) time.Duration {
	d := low
	if high > low {
		d += time.Duration(rand.Int63n(int64(high - low + 1)))
	}
	if d < minPacing {
		d = minPacing
	}
	return d
}

// DiscoverPoints returns the delivery points the portal session can see.
func (c *Collector) DiscoverPoints(ctx context.Context) ([]types.DeliveryPoint, error) {
	return c.portal.DiscoverPoints(ctx)
}

// Location returns the portal's civil calendar; reference instants for
// RunCycle should be taken in it.
func (c *Collector) Location() *time.Location {
	return c.portal.Location()
}

// RunCycle fetches every (point, period) slice once. Slice-level
// failures are recorded as anomalies and the cycle continues; an
// authentication failure or cancellation aborts the cycle and the
// partial result is returned alongside the error.
func (c *Collector) RunCycle(ctx context.Context, points []types.DeliveryPoint, ref time.Time) (types.AcquisitionResult, error) {
	res := types.AcquisitionResult{
		Outcome:   types.OutcomeComplete,
		StartedAt: ref,
		Slices:    make(map[types.SliceKey]types.AggregateBundle),
	}

	sorted := make([]types.DeliveryPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	defs := c.registry.Definitions()
	log.Ctx(ctx).InfoContext(ctx, "starting acquisition cycle",
		slog.Int("points", len(sorted)),
		slog.Int("periods", len(defs)),
		slog.Time("reference", ref),
	)

	first := true
	for pi, point := range sorted {
		if pi > 0 {
			delay := c.jitter(c.pointDelayLow, c.pointDelayHigh)
			log.Ctx(ctx).DebugContext(ctx, "pacing before next point", slog.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				res.Outcome = types.OutcomeAborted
				return res, err
			}
		}

		for _, def := range defs {
			if !first {
				delay := c.jitter(c.delayLow, c.delayHigh)
				log.Ctx(ctx).DebugContext(ctx, "pacing before next slice", slog.Duration("delay", delay))
				if err := c.sleep(ctx, delay); err != nil {
					res.Outcome = types.OutcomeAborted
					return res, err
				}
			}
			first = false

			if err := c.fetchSlice(ctx, &res, point, def, ref); err != nil {
				res.Outcome = types.OutcomeAborted
				return res, err
			}
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "acquisition cycle finished",
		slog.Int("slices", len(res.Slices)),
		slog.Int("anomalies", len(res.Anomalies)),
	)
	return res, nil
}

// fetchSlice handles one (point, period) slice. A returned error is
// cycle-fatal; everything else is folded into the result.
func (c *Collector) fetchSlice(ctx context.Context, res *types.AcquisitionResult, point types.DeliveryPoint, def period.Definition, ref time.Time) error {
	start, end, err := c.registry.Resolve(def.Key, ref)
	if err != nil {
		// a registry miss is a config bug for that period only
		res.Anomalies = append(res.Anomalies, types.Anomaly{
			PointID:    point.ID,
			PeriodKey:  def.Key,
			Reason:     err.Error(),
			ObservedAt: ref,
		})
		return nil
	}

	raw, err := c.portal.FetchChartData(ctx, point.ID, start, end)
	if err != nil {
		var authErr *types.AuthenticationError
		if errors.As(err, &authErr) {
			log.Ctx(ctx).ErrorContext(ctx, "authentication failed, aborting cycle", slog.Any("error", err))
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Ctx(ctx).WarnContext(ctx, "slice fetch failed",
			slog.String("pointID", point.ID),
			slog.String("period", def.Key),
			slog.Any("error", err),
		)
		res.Anomalies = append(res.Anomalies, types.Anomaly{
			PointID:    point.ID,
			PeriodKey:  def.Key,
			Reason:     err.Error(),
			ObservedAt: ref,
		})
		return nil
	}

	bundle, anomalies, err := ims.Normalize(raw, point.ID, def.Key, ref)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "slice payload malformed",
			slog.String("pointID", point.ID),
			slog.String("period", def.Key),
			slog.Any("error", err),
		)
		res.Anomalies = append(res.Anomalies, types.Anomaly{
			PointID:    point.ID,
			PeriodKey:  def.Key,
			Reason:     err.Error(),
			ObservedAt: ref,
		})
		return nil
	}

	res.Slices[types.SliceKey{PointID: point.ID, PeriodKey: def.Key}] = bundle
	res.Anomalies = append(res.Anomalies, anomalies...)
	return nil
}
