// Package metrics provides a way to record metrics.
package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Darkness4/mp4-concat-go"

var (
	// Scan metrics
	Scan struct {
		// Runs is the number of directory scans.
		Runs metric.Int64Counter
		// Errors is the number of failed scans.
		Errors metric.Int64Counter
		// Candidates is the number of candidates selected per scan.
		Candidates metric.Int64Histogram
	}

	// Concat metrics
	Concat struct {
		// CompletionTime is the time taken to complete a concat.
		CompletionTime metric.Float64Histogram
		// Errors is the accumulated failed runs of concats.
		Errors metric.Int64Counter
		// Runs is the number of concats.
		Runs metric.Int64Counter
		// OutputBytes is the size of the produced files.
		OutputBytes metric.Int64Counter
	}

	// Cleaner metrics
	Cleaner struct {
		// FilesRemoved is the number of files removed.
		FilesRemoved metric.Int64Counter
		// Errors is the number of errors during cleaning.
		Errors metric.Int64Counter
		// Runs is the number of cleaning runs.
		Runs metric.Int64Counter
	}

	// Jobs metrics
	Jobs struct {
		// State is the current state of a watched job.
		State metric.Int64Gauge
	}
)

func init() {
	// Instruments created from the global provider are delegated once the SDK
	// is installed by telemetry.SetupOTELSDK.
	InitMetrics(otel.GetMeterProvider())
}

// InitMetrics initializes the metrics.
func InitMetrics(provider metric.MeterProvider) {
	meter := provider.Meter(meterName)

	var err error

	// Scan
	Scan.Runs, err = meter.Int64Counter(
		"scan.runs",
		metric.WithDescription("Number of directory scans"),
	)
	if err != nil {
		panic(err)
	}
	Scan.Errors, err = meter.Int64Counter(
		"scan.errors",
		metric.WithDescription("Number of failed directory scans"),
	)
	if err != nil {
		panic(err)
	}
	Scan.Candidates, err = meter.Int64Histogram(
		"scan.candidates",
		metric.WithDescription("Number of candidates selected per scan"),
	)
	if err != nil {
		panic(err)
	}

	// Concat
	Concat.CompletionTime, err = meter.Float64Histogram(
		"concat.completion.time",
		metric.WithDescription("Time taken to complete a concat"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
	Concat.Errors, err = meter.Int64Counter(
		"concat.errors",
		metric.WithDescription("Accumulated failed runs of concats"),
	)
	if err != nil {
		panic(err)
	}
	Concat.Runs, err = meter.Int64Counter(
		"concat.runs",
		metric.WithDescription("Number of concats"),
	)
	if err != nil {
		panic(err)
	}
	Concat.OutputBytes, err = meter.Int64Counter(
		"concat.output.bytes",
		metric.WithDescription("Size of the concatenated files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(err)
	}

	// Cleaner
	Cleaner.FilesRemoved, err = meter.Int64Counter(
		"cleaner.files_removed",
		metric.WithDescription("Number of source files removed"),
	)
	if err != nil {
		panic(err)
	}
	Cleaner.Errors, err = meter.Int64Counter(
		"cleaner.errors",
		metric.WithDescription("Number of errors during cleaning"),
	)
	if err != nil {
		panic(err)
	}
	Cleaner.Runs, err = meter.Int64Counter(
		"cleaner.runs",
		metric.WithDescription("Number of cleaning runs"),
	)
	if err != nil {
		panic(err)
	}

	// Jobs
	Jobs.State, err = meter.Int64Gauge(
		"jobs.state",
		metric.WithDescription("Current state of a watched job"),
	)
	if err != nil {
		panic(err)
	}
}
