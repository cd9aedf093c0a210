// Command seed runs one acquisition cycle against the mock portal and
// persists the output, filling storage with plausible data for local
// development. Point it at the firestore emulator to exercise that
// provider end to end.
package main

import (
	"context"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/podwatch/podwatch/pkg/collector"
	"github.com/podwatch/podwatch/pkg/ims"
	"github.com/podwatch/podwatch/pkg/log"
	"github.com/podwatch/podwatch/pkg/period"
	"github.com/podwatch/podwatch/pkg/storage"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	db := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	registry := period.Builtin()
	portal := ims.NewMock(time.UTC)

	points, err := portal.DiscoverPoints(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "discovery failed", "error", err)
		os.Exit(1)
	}
	if err := db.UpsertDeliveryPoints(ctx, points); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store points", "error", err)
		os.Exit(1)
	}

	c := collector.New(portal, registry)
	// the mock portal doesn't need politeness
	c.SetPacing(0, 0, 0, 0)
	res, err := c.RunCycle(ctx, points, time.Now().UTC())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "cycle failed", "error", err)
		os.Exit(1)
	}

	if err := db.UpsertAggregates(ctx, res.Aggregates()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store aggregates", "error", err)
		os.Exit(1)
	}
	if len(res.Anomalies) > 0 {
		if err := db.InsertAnomalies(ctx, res.Anomalies); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store anomalies", "error", err)
			os.Exit(1)
		}
	}

	if err := db.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded",
		"points", len(points),
		"aggregates", len(res.Aggregates()),
		"anomalies", len(res.Anomalies),
	)
}
