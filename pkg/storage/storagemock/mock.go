package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/podwatch/podwatch/pkg/storage"
	"github.com/podwatch/podwatch/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) UpsertDeliveryPoints(ctx context.Context, points []types.DeliveryPoint) error {
	args := m.Called(ctx, points)
	return args.Error(0)
}

func (m *MockDatabase) GetDeliveryPoints(ctx context.Context) ([]types.DeliveryPoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.DeliveryPoint), args.Error(1)
}

func (m *MockDatabase) UpsertAggregates(ctx context.Context, aggs []types.Aggregate) error {
	args := m.Called(ctx, aggs)
	return args.Error(0)
}

func (m *MockDatabase) GetAggregates(ctx context.Context, pointID string) ([]types.Aggregate, error) {
	args := m.Called(ctx, pointID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Aggregate), args.Error(1)
}

func (m *MockDatabase) InsertAnomalies(ctx context.Context, anomalies []types.Anomaly) error {
	args := m.Called(ctx, anomalies)
	return args.Error(0)
}

func (m *MockDatabase) GetAnomalies(ctx context.Context, since time.Time) ([]types.Anomaly, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Anomaly), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
