package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordsWritesAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	m, err := NewMetrics(mp.Meter("test"), func() int64 { return 3 })
	require.NoError(t, err)

	m.RecordWrite(ctx, "insert")
	m.RecordWrite(ctx, "insert")
	m.RecordNotification(ctx, "tasks", "insert")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				if md.Name == "task_writes_total" {
					require.Len(t, data.DataPoints, 1)
					assert.Equal(t, int64(2), data.DataPoints[0].Value)
				}
			case metricdata.Gauge[int64]:
				require.Len(t, data.DataPoints, 1)
				assert.Equal(t, int64(3), data.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["task_writes_total"])
	assert.True(t, found["feed_notifications_total"])
	assert.True(t, found["feed_subscriptions_active"])
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordWrite(context.Background(), "delete")
		m.RecordNotification(context.Background(), "tasks", "delete")
	})
}

func TestInit_WithoutEndpointIsNoop(t *testing.T) {
	p, err := Init(context.Background(), "svc", "", "test")
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
