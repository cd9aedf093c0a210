package ims

import (
	"encoding/json"
	"time"

	"github.com/podwatch/podwatch/pkg/types"
)

// chartField maps each metric kind to the summary field carrying its
// total. The portal reports kWh for the active pair and kVARh for the
// reactive ("idle") pair; no sub-unit conversion is needed.
var chartFields = []struct {
	metric types.MetricKind
	field  string
}{
	{types.MetricActiveConsumption, "sumActualConsumption"},
	{types.MetricActiveSupply, "sumActualSupply"},
	{types.MetricReactiveConsumption, "sumIdleConsumption"},
	{types.MetricReactiveSupply, "sumIdleSupply"},
}

// Normalize converts a raw chart payload into one aggregate per metric
// kind. A missing, null or misshapen field degrades to a nil value plus
// an anomaly record; Normalize only fails outright when the payload is
// not a JSON object at all. It is pure: the same payload always yields
// the same aggregates.
func Normalize(raw json.RawMessage, pointID, periodKey string, asOf time.Time) (types.AggregateBundle, []types.Anomaly, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, &types.MalformedResponseError{Err: err}
	}

	bundle := make(types.AggregateBundle, len(chartFields))
	var anomalies []types.Anomaly
	for _, cf := range chartFields {
		value, reason := extractNumber(fields, cf.field)
		if reason != "" {
			anomalies = append(anomalies, types.Anomaly{
				PointID:    pointID,
				PeriodKey:  periodKey,
				Field:      cf.field,
				Reason:     reason,
				ObservedAt: asOf,
			})
		}
		bundle[cf.metric] = types.Aggregate{
			PointID:   pointID,
			PeriodKey: periodKey,
			Metric:    cf.metric,
			Value:     value,
			Unit:      cf.metric.Unit(),
			AsOf:      asOf,
		}
	}
	return bundle, anomalies, nil
}

// extractNumber looks up a numeric field defensively. The returned
// reason is empty when a value was present and well-formed.
func extractNumber(fields map[string]json.RawMessage, name string) (*float64, string) {
	raw, ok := fields[name]
	if !ok {
		return nil, "field missing"
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		// present but the wrong shape; same treatment as missing
		return nil, "field not numeric"
	}
	if v == nil {
		return nil, "field null"
	}
	return v, ""
}
