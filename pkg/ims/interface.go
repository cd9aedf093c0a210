package ims

import (
	"context"
	"encoding/json"
	"time"

	"github.com/podwatch/podwatch/pkg/types"
)

// Portal defines the interface for talking to a metering portal. The
// production implementation is Client; Mock provides synthetic data for
// development and tests.
type Portal interface {
	// Authenticate performs an eager login so credential problems surface
	// before the first cycle. Implementations must also login lazily on
	// first use.
	Authenticate(ctx context.Context) error

	// DiscoverPoints returns the delivery points visible to the session.
	// This list is the source of truth for point identity.
	DiscoverPoints(ctx context.Context) ([]types.DeliveryPoint, error)

	// FetchChartData returns the raw summary payload for the half-open
	// range [start, end). The payload is opaque here; Normalize turns it
	// into typed aggregates.
	FetchChartData(ctx context.Context, pointID string, start, end time.Time) (json.RawMessage, error)

	// FetchProfileRows returns the 15-minute interval rows for the
	// half-open range [start, end).
	FetchProfileRows(ctx context.Context, pointID string, start, end time.Time) ([]ProfileRow, error)

	// Location returns the portal's local civil calendar. Period ranges
	// must be computed in it.
	Location() *time.Location
}
