package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/podwatch/podwatch/pkg/log"
	"github.com/podwatch/podwatch/pkg/types"
)

// FirestoreProvider implements the Database interface using Google
// Cloud Firestore. Documents carry their payload as a JSON string for
// portability, with a few top-level fields for querying.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// UpsertDeliveryPoints stores each point in the "points" collection
// keyed by its stable identifier.
func (f *FirestoreProvider) UpsertDeliveryPoints(ctx context.Context, points []types.DeliveryPoint) error {
	coll := f.client.Collection("points")
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("delivery point missing id")
		}
		jsonBytes, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal delivery point %s: %w", p.ID, err)
		}
		_, err = coll.Doc(p.ID).Set(ctx, map[string]interface{}{
			"json":       string(jsonBytes),
			"discovered": p.Discovered,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert delivery point %s: %w", p.ID, err)
		}
	}
	return nil
}

// GetDeliveryPoints retrieves all points from the "points" collection.
func (f *FirestoreProvider) GetDeliveryPoints(ctx context.Context) ([]types.DeliveryPoint, error) {
	iter := f.client.Collection("points").Documents(ctx)
	defer iter.Stop()

	var points []types.DeliveryPoint
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating delivery points: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "point doc missing json", slog.String("pointID", doc.Ref.ID))
			// Skip malformed documents
			continue
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "point doc json not string", slog.String("pointID", doc.Ref.ID))
			continue
		}

		var p types.DeliveryPoint
		if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal delivery point", slog.String("pointID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

// UpsertAggregates stores the latest aggregate per (period, metric)
// under the owning point's "aggregates" sub-collection. The document ID
// is "{periodKey}_{metric}" so each slice keeps exactly one document.
func (f *FirestoreProvider) UpsertAggregates(ctx context.Context, aggs []types.Aggregate) error {
	for _, agg := range aggs {
		if agg.PointID == "" {
			return fmt.Errorf("aggregate missing pointID")
		}
		jsonBytes, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("failed to marshal aggregate: %w", err)
		}
		coll := f.client.Collection("points").Doc(agg.PointID).Collection("aggregates")
		_, err = coll.Doc(aggregateID(agg)).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": agg.AsOf,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert aggregate %s/%s: %w", agg.PointID, aggregateID(agg), err)
		}
	}
	return nil
}

// GetAggregates retrieves the stored aggregates for a point, or for
// every known point when pointID is empty.
func (f *FirestoreProvider) GetAggregates(ctx context.Context, pointID string) ([]types.Aggregate, error) {
	if pointID != "" {
		return f.getPointAggregates(ctx, pointID)
	}
	points, err := f.GetDeliveryPoints(ctx)
	if err != nil {
		return nil, err
	}
	var aggs []types.Aggregate
	for _, p := range points {
		pointAggs, err := f.getPointAggregates(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, pointAggs...)
	}
	return aggs, nil
}

func (f *FirestoreProvider) getPointAggregates(ctx context.Context, pointID string) ([]types.Aggregate, error) {
	iter := f.client.Collection("points").Doc(pointID).Collection("aggregates").
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var aggs []types.Aggregate
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("error iterating aggregates for %s: %w", pointID, err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "aggregate doc missing json", slog.String("docID", doc.Ref.ID), slog.String("pointID", pointID), slog.Any("err", err))
			return nil, fmt.Errorf("aggregate document %s missing 'json' field: %w", doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "aggregate doc json not string", slog.String("docID", doc.Ref.ID), slog.String("pointID", pointID))
			return nil, fmt.Errorf("aggregate document %s 'json' field is not string", doc.Ref.ID)
		}

		var agg types.Aggregate
		if err := json.Unmarshal([]byte(jsonStr), &agg); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal aggregate", slog.String("docID", doc.Ref.ID), slog.String("pointID", pointID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal aggregate (id=%s): %w", doc.Ref.ID, err)
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// InsertAnomalies appends anomaly records to the "anomalies"
// collection with auto-generated IDs.
func (f *FirestoreProvider) InsertAnomalies(ctx context.Context, anomalies []types.Anomaly) error {
	coll := f.client.Collection("anomalies")
	for _, a := range anomalies {
		jsonBytes, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly: %w", err)
		}
		_, err = coll.NewDoc().Create(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": a.ObservedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to insert anomaly: %w", err)
		}
	}
	return nil
}

// GetAnomalies retrieves anomalies observed at or after since.
func (f *FirestoreProvider) GetAnomalies(ctx context.Context, since time.Time) ([]types.Anomaly, error) {
	// firestore automatically creates indexes for top-level fields
	iter := f.client.Collection("anomalies").
		Where("timestamp", ">=", since).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var anomalies []types.Anomaly
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating anomalies: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "anomaly doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("anomaly document %s missing 'json' field: %w", doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "anomaly doc json not string", slog.String("docID", doc.Ref.ID))
			return nil, fmt.Errorf("anomaly document %s 'json' field is not string", doc.Ref.ID)
		}

		var a types.Anomaly
		if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal anomaly", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal anomaly (id=%s): %w", doc.Ref.ID, err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}
