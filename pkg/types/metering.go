package types

import (
	"sort"
	"time"
)

// MetricKind identifies one of the metered quantities the portal reports
// for a point of delivery.
type MetricKind string

const (
	MetricActiveConsumption   MetricKind = "active_consumption"
	MetricActiveSupply        MetricKind = "active_supply"
	MetricReactiveConsumption MetricKind = "reactive_consumption"
	MetricReactiveSupply      MetricKind = "reactive_supply"
)

// MetricKinds returns all metric kinds in a stable order.
func MetricKinds() []MetricKind {
	return []MetricKind{
		MetricActiveConsumption,
		MetricActiveSupply,
		MetricReactiveConsumption,
		MetricReactiveSupply,
	}
}

// Unit returns the canonical unit aggregates of this kind are stored in.
func (m MetricKind) Unit() string {
	switch m {
	case MetricReactiveConsumption, MetricReactiveSupply:
		return "kVARh"
	default:
		return "kWh"
	}
}

// Aggregate is a single (point, period, metric) value. A nil Value means
// the portal had no data for that slice, which is distinct from the fetch
// having failed (failures are recorded as Anomalies instead).
type Aggregate struct {
	PointID   string     `json:"pointID"`
	PeriodKey string     `json:"periodKey"`
	Metric    MetricKind `json:"metric"`
	Value     *float64   `json:"value"`
	Unit      string     `json:"unit"`
	AsOf      time.Time  `json:"asOf"`
}

// AggregateBundle holds the aggregates of one (point, period) slice keyed
// by metric kind.
type AggregateBundle map[MetricKind]Aggregate

// Anomaly records a per-slice irregularity (a missing/misshapen field or
// a failed fetch) that did not abort the acquisition cycle.
type Anomaly struct {
	PointID    string    `json:"pointID"`
	PeriodKey  string    `json:"periodKey"`
	Field      string    `json:"field,omitempty"`
	Reason     string    `json:"reason"`
	ObservedAt time.Time `json:"observedAt"`
}

// SliceKey identifies one (point, period) slice of an acquisition cycle.
type SliceKey struct {
	PointID   string `json:"pointID"`
	PeriodKey string `json:"periodKey"`
}

// CycleOutcome reports how an acquisition cycle finished.
type CycleOutcome string

const (
	// OutcomeComplete means every slice produced a value or a recorded
	// non-fatal anomaly.
	OutcomeComplete CycleOutcome = "complete"
	// OutcomeAborted means the cycle stopped early (authentication failure
	// or cancellation); the result may be partial.
	OutcomeAborted CycleOutcome = "aborted"
)

// AcquisitionResult is the outcome of one acquisition cycle. It is built
// incrementally by the collector and must not be mutated once returned.
type AcquisitionResult struct {
	Outcome   CycleOutcome                 `json:"outcome"`
	StartedAt time.Time                    `json:"startedAt"`
	Slices    map[SliceKey]AggregateBundle `json:"-"`
	Anomalies []Anomaly                    `json:"anomalies"`
}

// Aggregates flattens the result into a slice sorted by point, period and
// metric so downstream writes are deterministic.
func (r AcquisitionResult) Aggregates() []Aggregate {
	var out []Aggregate
	for _, bundle := range r.Slices {
		for _, agg := range bundle {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointID != out[j].PointID {
			return out[i].PointID < out[j].PointID
		}
		if out[i].PeriodKey != out[j].PeriodKey {
			return out[i].PeriodKey < out[j].PeriodKey
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}
