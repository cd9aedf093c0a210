package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podwatch/podwatch/pkg/types"
)

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping firestore tests")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: "test-project-id",
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	now := time.Now().Truncate(time.Second).UTC()

	t.Run("DeliveryPoints", func(t *testing.T) {
		points := []types.DeliveryPoint{
			{ID: "24ZSS0000000001A", DisplayName: "24ZSS0000000001A - Home", Discovered: true},
			{ID: "24ZSS0000000002B", DisplayName: "24ZSS0000000002B - Cottage", Discovered: true},
		}
		require.NoError(t, f.UpsertDeliveryPoints(ctx, points))

		got, err := f.GetDeliveryPoints(ctx)
		require.NoError(t, err)

		foundFirst := false
		foundSecond := false
		for _, p := range got {
			if p.ID == "24ZSS0000000001A" && p.DisplayName == "24ZSS0000000001A - Home" {
				foundFirst = true
			}
			if p.ID == "24ZSS0000000002B" {
				foundSecond = true
			}
		}
		assert.True(t, foundFirst, "did not find first inserted point")
		assert.True(t, foundSecond, "did not find second inserted point")
	})

	t.Run("Aggregates", func(t *testing.T) {
		aggs := []types.Aggregate{
			{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Metric: types.MetricActiveConsumption, Value: float64Ptr(12.5), Unit: "kWh", AsOf: now},
			{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Metric: types.MetricActiveSupply, Value: nil, Unit: "kWh", AsOf: now},
		}
		require.NoError(t, f.UpsertAggregates(ctx, aggs))

		got, err := f.GetAggregates(ctx, "24ZSS0000000001A")
		require.NoError(t, err)

		foundValue := false
		foundNull := false
		for _, agg := range got {
			if agg.Metric == types.MetricActiveConsumption && agg.Value != nil && *agg.Value == 12.5 {
				foundValue = true
			}
			if agg.Metric == types.MetricActiveSupply && agg.Value == nil {
				foundNull = true
			}
		}
		assert.True(t, foundValue, "did not find stored consumption aggregate")
		assert.True(t, foundNull, "null-valued aggregate should round-trip as null")

		t.Run("UpsertOverwrite", func(t *testing.T) {
			updated := types.Aggregate{
				PointID: "24ZSS0000000001A", PeriodKey: "yesterday",
				Metric: types.MetricActiveConsumption, Value: float64Ptr(13.0), Unit: "kWh", AsOf: now.Add(time.Hour),
			}
			require.NoError(t, f.UpsertAggregates(ctx, []types.Aggregate{updated}))

			got, err := f.GetAggregates(ctx, "24ZSS0000000001A")
			require.NoError(t, err)

			count := 0
			for _, agg := range got {
				if agg.PeriodKey == "yesterday" && agg.Metric == types.MetricActiveConsumption {
					count++
					require.NotNil(t, agg.Value)
					assert.Equal(t, 13.0, *agg.Value)
				}
			}
			assert.Equal(t, 1, count, "upsert should keep one document per slice metric")
		})

		t.Run("AllPoints", func(t *testing.T) {
			other := types.Aggregate{
				PointID: "24ZSS0000000002B", PeriodKey: "yesterday",
				Metric: types.MetricActiveConsumption, Value: float64Ptr(1.0), Unit: "kWh", AsOf: now,
			}
			require.NoError(t, f.UpsertAggregates(ctx, []types.Aggregate{other}))

			got, err := f.GetAggregates(ctx, "")
			require.NoError(t, err)

			pointIDs := map[string]bool{}
			for _, agg := range got {
				pointIDs[agg.PointID] = true
			}
			assert.True(t, pointIDs["24ZSS0000000001A"])
			assert.True(t, pointIDs["24ZSS0000000002B"])
		})
	})

	t.Run("Anomalies", func(t *testing.T) {
		anomalies := []types.Anomaly{
			{PointID: "24ZSS0000000001A", PeriodKey: "yesterday", Field: "sumActualSupply", Reason: "field null", ObservedAt: now},
			{PointID: "24ZSS0000000001A", PeriodKey: "this_week", Reason: "network failure after 4 attempts", ObservedAt: now.Add(-2 * time.Hour)},
		}
		require.NoError(t, f.InsertAnomalies(ctx, anomalies))

		all, err := f.GetAnomalies(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)

		foundNull := false
		foundNetwork := false
		for _, a := range all {
			if a.Reason == "field null" && a.Field == "sumActualSupply" {
				foundNull = true
			}
			if a.Reason == "network failure after 4 attempts" {
				foundNetwork = true
			}
		}
		assert.True(t, foundNull, "did not find field anomaly")
		assert.True(t, foundNetwork, "did not find network anomaly")

		t.Run("SinceFiltering", func(t *testing.T) {
			recent, err := f.GetAnomalies(ctx, now.Add(-time.Hour))
			require.NoError(t, err)
			for _, a := range recent {
				assert.NotEqual(t, "network failure after 4 attempts", a.Reason, "anomaly outside range should not be returned")
			}
		})
	})
}
