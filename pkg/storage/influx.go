package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/levenlabs/go-lflag"

	"github.com/podwatch/podwatch/pkg/types"
)

const influxMeasurement = "energy_aggregate"

// InfluxProvider pushes aggregates into an InfluxDB bucket as a time
// series. Influx holds the full history; delivery points, anomalies,
// and the read side of the API are served from an in-process
// MemoryProvider since Influx is not a document store.
type InfluxProvider struct {
	mem *MemoryProvider

	url    string
	token  string
	org    string
	bucket string

	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

var _ Database = (*InfluxProvider)(nil)

// configuredInflux sets up the InfluxDB provider.
// It registers flags for configuration.
func configuredInflux() *InfluxProvider {
	url := lflag.String("influx-url", "http://127.0.0.1:8086", "InfluxDB server URL")
	token := lflag.String("influx-token", "", "InfluxDB API token")
	org := lflag.String("influx-org", "", "InfluxDB organization")
	bucket := lflag.String("influx-bucket", "podwatch", "InfluxDB bucket for aggregates")

	i := &InfluxProvider{mem: NewMemory()}

	lflag.Do(func() {
		i.url = *url
		i.token = *token
		i.org = *org
		i.bucket = *bucket
	})

	return i
}

// Init creates the InfluxDB client.
// This must be called before using the provider methods.
func (i *InfluxProvider) Init(ctx context.Context) error {
	if i.org == "" {
		return fmt.Errorf("influx-org is required")
	}
	i.client = influxdb2.NewClient(i.url, i.token)
	i.writeAPI = i.client.WriteAPIBlocking(i.org, i.bucket)
	return nil
}

// Close shuts down the InfluxDB client.
func (i *InfluxProvider) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}

func (i *InfluxProvider) UpsertDeliveryPoints(ctx context.Context, points []types.DeliveryPoint) error {
	return i.mem.UpsertDeliveryPoints(ctx, points)
}

func (i *InfluxProvider) GetDeliveryPoints(ctx context.Context) ([]types.DeliveryPoint, error) {
	return i.mem.GetDeliveryPoints(ctx)
}

// UpsertAggregates writes each aggregate with a known value as an
// influx point tagged by delivery point, period, and metric.
// Aggregates with null values are kept out of the series; the anomaly
// log already covers them.
func (i *InfluxProvider) UpsertAggregates(ctx context.Context, aggs []types.Aggregate) error {
	for _, agg := range aggs {
		if agg.Value == nil {
			continue
		}
		p := influxdb2.NewPoint(
			influxMeasurement,
			map[string]string{
				"point_id": agg.PointID,
				"period":   agg.PeriodKey,
				"metric":   string(agg.Metric),
				"unit":     agg.Unit,
			},
			map[string]interface{}{"value": *agg.Value},
			agg.AsOf,
		)
		if err := i.writeAPI.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("error writing aggregate to influx: %w", err)
		}
	}
	return i.mem.UpsertAggregates(ctx, aggs)
}

func (i *InfluxProvider) GetAggregates(ctx context.Context, pointID string) ([]types.Aggregate, error) {
	return i.mem.GetAggregates(ctx, pointID)
}

func (i *InfluxProvider) InsertAnomalies(ctx context.Context, anomalies []types.Anomaly) error {
	return i.mem.InsertAnomalies(ctx, anomalies)
}

func (i *InfluxProvider) GetAnomalies(ctx context.Context, since time.Time) ([]types.Anomaly, error) {
	return i.mem.GetAnomalies(ctx, since)
}
