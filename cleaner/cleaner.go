// Package cleaner removes the source segments once they have been
// concatenated.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Darkness4/mp4-concat-go/telemetry/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cleaner"

var (
	// ErrOutputMissing is returned when the concatenated file does not exist.
	ErrOutputMissing = errors.New("output file is missing")
	// ErrOutputEmpty is returned when the concatenated file is empty.
	ErrOutputEmpty = errors.New("output file is empty")
	// ErrOutputIsDir is returned when the output path is a directory.
	ErrOutputIsDir = errors.New("output path is a directory")
)

// Option configures Clean.
type Option func(*Options)

// Options of Clean.
type Options struct {
	dryRun bool
}

// WithDryRun logs the deletions without removing anything.
func WithDryRun() Option {
	return func(o *Options) {
		o.dryRun = true
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// VerifyOutput checks that output exists and is not empty.
func VerifyOutput(output string) (size int64, err error) {
	fi, err := os.Stat(output)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrOutputMissing, output)
	}
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrOutputIsDir, output)
	}
	if fi.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrOutputEmpty, output)
	}
	return fi.Size(), nil
}

// Clean removes sources after checking that output is a non-empty file.
//
// Nothing is removed if the verification fails. The output is never removed,
// even if listed in sources. Sources that are already gone are skipped.
// It returns the removed paths.
func Clean(
	ctx context.Context,
	output string,
	sources []string,
	opts ...Option,
) (removed []string, err error) {
	o := applyOptions(opts)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cleaner.Clean", trace.WithAttributes(
		attribute.String("output", output),
		attribute.Int("sources", len(sources)),
		attribute.Bool("dry_run", o.dryRun),
	))
	defer span.End()
	metrics.Cleaner.Runs.Add(ctx, 1)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.Cleaner.Errors.Add(ctx, 1)
		}
	}()

	if _, err := VerifyOutput(output); err != nil {
		log.Error().Err(err).Str("output", output).Msg("deletion skipped, output is not valid")
		return nil, err
	}

	outputAbs, err := filepath.Abs(output)
	if err != nil {
		return nil, err
	}

	removed = make([]string, 0, len(sources))
	var errs []error
	for _, src := range sources {
		srcAbs, err := filepath.Abs(src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if srcAbs == outputAbs {
			log.Warn().Str("path", src).Msg("source is the output, not deleting")
			continue
		}
		if o.dryRun {
			log.Info().Str("path", src).Msg("would delete source (dry run)")
			continue
		}
		log.Info().Str("path", src).Msg("deleting source")
		if err := os.Remove(src); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		removed = append(removed, src)
	}
	metrics.Cleaner.FilesRemoved.Add(ctx, int64(len(removed)))

	return removed, errors.Join(errs...)
}
