package state

import (
	"context"

	"github.com/Darkness4/mp4-concat-go/telemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// setStateMetrics demuxes the state to the metrics.
func setStateMetrics(
	ctx context.Context,
	name string,
	state JobState,
	labels map[string]string,
) {
	attrs := make([]attribute.KeyValue, 0, len(labels)+2)
	attrs = append(attrs, attribute.String("job", name))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	m := metrics.Jobs.State
	for i := JobStateUnspecified; i <= JobStateFailed; i++ {
		var value int64
		if i == state {
			value = 1
		}
		m.Record(
			ctx,
			value,
			metric.WithAttributes(append(attrs, attribute.String("state", i.String()))...),
		)
	}
}
