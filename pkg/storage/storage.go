// Package storage persists delivery points, period aggregates, and
// anomalies behind a provider interface.
package storage

import (
	"context"
	"time"

	"github.com/podwatch/podwatch/pkg/types"
)

// Database defines the interface for persisting acquisition output.
type Database interface {
	// Delivery points
	UpsertDeliveryPoints(ctx context.Context, points []types.DeliveryPoint) error
	GetDeliveryPoints(ctx context.Context) ([]types.DeliveryPoint, error)

	// Aggregates. UpsertAggregates keeps the latest value per
	// (point, period, metric); GetAggregates returns every stored
	// aggregate for a point, or for all points when pointID is empty.
	UpsertAggregates(ctx context.Context, aggs []types.Aggregate) error
	GetAggregates(ctx context.Context, pointID string) ([]types.Aggregate, error)

	// Anomalies
	InsertAnomalies(ctx context.Context, anomalies []types.Anomaly) error
	GetAnomalies(ctx context.Context, since time.Time) ([]types.Anomaly, error)

	// Lifecycle
	Close() error
}

// aggregateID is the stable identity of an aggregate within a point.
func aggregateID(agg types.Aggregate) string {
	return agg.PeriodKey + "_" + string(agg.Metric)
}
