package ims

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/podwatch/podwatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var normalizeAsOf = time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

func TestNormalize(t *testing.T) {
	t.Run("AllFieldsPresent", func(t *testing.T) {
		raw := json.RawMessage(`{
			"sumActualConsumption": 12.5,
			"sumActualSupply": 3.25,
			"sumIdleConsumption": 0.5,
			"sumIdleSupply": 0
		}`)

		bundle, anomalies, err := Normalize(raw, "POD1", "yesterday", normalizeAsOf)
		require.NoError(t, err)
		assert.Empty(t, anomalies)
		require.Len(t, bundle, 4)

		agg := bundle[types.MetricActiveConsumption]
		require.NotNil(t, agg.Value)
		assert.InDelta(t, 12.5, *agg.Value, 1e-9)
		assert.Equal(t, "POD1", agg.PointID)
		assert.Equal(t, "yesterday", agg.PeriodKey)
		assert.Equal(t, "kWh", agg.Unit)
		assert.Equal(t, normalizeAsOf, agg.AsOf)

		reactive := bundle[types.MetricReactiveSupply]
		require.NotNil(t, reactive.Value)
		assert.Zero(t, *reactive.Value)
		assert.Equal(t, "kVARh", reactive.Unit)
	})

	t.Run("NullAndMissingDegradeToNil", func(t *testing.T) {
		raw := json.RawMessage(`{
			"sumActualConsumption": null,
			"sumActualSupply": 12.5,
			"sumIdleConsumption": 0.1
		}`)

		bundle, anomalies, err := Normalize(raw, "POD1", "yesterday", normalizeAsOf)
		require.NoError(t, err)
		require.Len(t, bundle, 4, "every metric kind gets an aggregate")

		assert.Nil(t, bundle[types.MetricActiveConsumption].Value)
		require.NotNil(t, bundle[types.MetricActiveSupply].Value)
		assert.InDelta(t, 12.5, *bundle[types.MetricActiveSupply].Value, 1e-9)
		assert.Nil(t, bundle[types.MetricReactiveSupply].Value)

		require.Len(t, anomalies, 2)
		byField := map[string]types.Anomaly{}
		for _, a := range anomalies {
			byField[a.Field] = a
		}
		assert.Equal(t, "field null", byField["sumActualConsumption"].Reason)
		assert.Equal(t, "field missing", byField["sumIdleSupply"].Reason)
		assert.Equal(t, "POD1", byField["sumActualConsumption"].PointID)
		assert.Equal(t, "yesterday", byField["sumActualConsumption"].PeriodKey)
	})

	t.Run("WrongShapeTreatedAsMissing", func(t *testing.T) {
		raw := json.RawMessage(`{
			"sumActualConsumption": "a lot",
			"sumActualSupply": [1, 2],
			"sumIdleConsumption": 0.1,
			"sumIdleSupply": 0.2
		}`)

		bundle, anomalies, err := Normalize(raw, "POD1", "this_week", normalizeAsOf)
		require.NoError(t, err, "misshapen fields must not fail normalization")
		assert.Nil(t, bundle[types.MetricActiveConsumption].Value)
		assert.Nil(t, bundle[types.MetricActiveSupply].Value)
		require.Len(t, anomalies, 2)
		assert.Equal(t, "field not numeric", anomalies[0].Reason)
	})

	t.Run("UnparseablePayload", func(t *testing.T) {
		for _, raw := range []string{"<html>login</html>", "[1,2,3]", ""} {
			bundle, anomalies, err := Normalize(json.RawMessage(raw), "POD1", "yesterday", normalizeAsOf)
			var malformed *types.MalformedResponseError
			require.ErrorAs(t, err, &malformed, "payload %q", raw)
			assert.Nil(t, bundle)
			assert.Nil(t, anomalies)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		raw := json.RawMessage(`{"sumActualConsumption": 5, "sumIdleConsumption": null}`)
		b1, a1, err1 := Normalize(raw, "POD1", "yesterday", normalizeAsOf)
		b2, a2, err2 := Normalize(raw, "POD1", "yesterday", normalizeAsOf)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, b1, b2)
		assert.Equal(t, a1, a2)
	})
}
