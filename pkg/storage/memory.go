package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/podwatch/podwatch/pkg/types"
)

// MemoryProvider implements Database entirely in memory. It backs the
// "memory" storage provider and serves the read side of providers that
// only push data outward.
type MemoryProvider struct {
	mu        sync.RWMutex
	points    map[string]types.DeliveryPoint
	aggs      map[string]map[string]types.Aggregate
	anomalies []types.Anomaly
}

var _ Database = (*MemoryProvider)(nil)

// NewMemory returns an empty in-memory database.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{
		points: make(map[string]types.DeliveryPoint),
		aggs:   make(map[string]map[string]types.Aggregate),
	}
}

func (m *MemoryProvider) UpsertDeliveryPoints(ctx context.Context, points []types.DeliveryPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryProvider) GetDeliveryPoints(ctx context.Context) ([]types.DeliveryPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	points := make([]types.DeliveryPoint, 0, len(m.points))
	for _, p := range m.points {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return points, nil
}

func (m *MemoryProvider) UpsertAggregates(ctx context.Context, aggs []types.Aggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, agg := range aggs {
		byID := m.aggs[agg.PointID]
		if byID == nil {
			byID = make(map[string]types.Aggregate)
			m.aggs[agg.PointID] = byID
		}
		byID[aggregateID(agg)] = agg
	}
	return nil
}

func (m *MemoryProvider) GetAggregates(ctx context.Context, pointID string) ([]types.Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var aggs []types.Aggregate
	for id, byID := range m.aggs {
		if pointID != "" && id != pointID {
			continue
		}
		for _, agg := range byID {
			aggs = append(aggs, agg)
		}
	}
	sort.Slice(aggs, func(i, j int) bool {
		a, b := aggs[i], aggs[j]
		if a.PointID != b.PointID {
			return a.PointID < b.PointID
		}
		if a.PeriodKey != b.PeriodKey {
			return a.PeriodKey < b.PeriodKey
		}
		return a.Metric < b.Metric
	})
	return aggs, nil
}

func (m *MemoryProvider) InsertAnomalies(ctx context.Context, anomalies []types.Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, anomalies...)
	return nil
}

func (m *MemoryProvider) GetAnomalies(ctx context.Context, since time.Time) ([]types.Anomaly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Anomaly
	for _, a := range m.anomalies {
		if a.ObservedAt.Before(since) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (m *MemoryProvider) Close() error {
	return nil
}
