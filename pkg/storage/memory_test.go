package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podwatch/podwatch/pkg/types"
)

func float64Ptr(v float64) *float64 { return &v }

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, time.March, 15, 6, 0, 0, 0, time.UTC)

	t.Run("DeliveryPoints", func(t *testing.T) {
		require.NoError(t, m.UpsertDeliveryPoints(ctx, []types.DeliveryPoint{
			{ID: "24ZSS0000000002B", DisplayName: "second"},
			{ID: "24ZSS0000000001A", DisplayName: "first"},
		}))

		points, err := m.GetDeliveryPoints(ctx)
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, "24ZSS0000000001A", points[0].ID)
		assert.Equal(t, "24ZSS0000000002B", points[1].ID)

		t.Run("UpsertOverwrite", func(t *testing.T) {
			require.NoError(t, m.UpsertDeliveryPoints(ctx, []types.DeliveryPoint{
				{ID: "24ZSS0000000001A", DisplayName: "renamed"},
			}))
			points, err := m.GetDeliveryPoints(ctx)
			require.NoError(t, err)
			require.Len(t, points, 2)
			assert.Equal(t, "renamed", points[0].DisplayName)
		})
	})

	t.Run("Aggregates", func(t *testing.T) {
		aggs := []types.Aggregate{
			{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Metric: types.MetricActiveConsumption, Value: float64Ptr(12.5), Unit: "kWh", AsOf: now},
			{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Metric: types.MetricActiveSupply, Value: nil, Unit: "kWh", AsOf: now},
			{PointID: "24ZSS0000000002B", PeriodKey: "yesterday", Metric: types.MetricActiveConsumption, Value: float64Ptr(3.25), Unit: "kWh", AsOf: now},
		}
		require.NoError(t, m.UpsertAggregates(ctx, aggs))

		t.Run("SinglePoint", func(t *testing.T) {
			got, err := m.GetAggregates(ctx, "24ZSS0000000001A")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, types.MetricActiveConsumption, got[0].Metric)
			require.NotNil(t, got[0].Value)
			assert.Equal(t, 12.5, *got[0].Value)
			assert.Nil(t, got[1].Value)
		})

		t.Run("AllPoints", func(t *testing.T) {
			got, err := m.GetAggregates(ctx, "")
			require.NoError(t, err)
			assert.Len(t, got, 3)
		})

		t.Run("LatestWins", func(t *testing.T) {
			later := now.Add(time.Hour)
			require.NoError(t, m.UpsertAggregates(ctx, []types.Aggregate{
				{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Metric: types.MetricActiveConsumption, Value: float64Ptr(13.0), Unit: "kWh", AsOf: later},
			}))
			got, err := m.GetAggregates(ctx, "24ZSS0000000001A")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, 13.0, *got[0].Value)
			assert.Equal(t, later, got[0].AsOf)
		})
	})

	t.Run("Anomalies", func(t *testing.T) {
		require.NoError(t, m.InsertAnomalies(ctx, []types.Anomaly{
			{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Field: "sumActualSupply", Reason: "field null", ObservedAt: now},
			{PointID: "24ZSS0000000001A", PeriodKey: "this_week", Reason: "network failure after 4 attempts", ObservedAt: now.Add(-2 * time.Hour)},
		}))

		all, err := m.GetAnomalies(ctx, time.Time{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		// sorted by observation time
		assert.Equal(t, "this_week", all[0].PeriodKey)

		recent, err := m.GetAnomalies(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "field null", recent[0].Reason)
	})
}
