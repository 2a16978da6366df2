package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/Darkness4/mp4-concat-go/telemetry/metrics"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTimeStartRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics.InitMetrics(provider)

	ctx := context.Background()
	done := metrics.TimeStartRecording(ctx, metrics.Concat.CompletionTime, time.Second)
	done()
	metrics.Concat.Runs.Add(ctx, 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make([]string, 0, len(rm.ScopeMetrics[0].Metrics))
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names = append(names, m.Name)
	}
	require.Contains(t, names, "concat.completion.time")
	require.Contains(t, names, "concat.runs")
}
