// Package job runs the scan, concat and clean pipeline over a directory of
// segments.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Darkness4/mp4-concat-go/cleaner"
	"github.com/Darkness4/mp4-concat-go/ffmpeg"
	"github.com/Darkness4/mp4-concat-go/state"
	"github.com/Darkness4/mp4-concat-go/telemetry/metrics"
	"github.com/Darkness4/mp4-concat-go/video/concat"
	"github.com/Darkness4/mp4-concat-go/video/naming"
	"github.com/Darkness4/mp4-concat-go/video/segment"
	"github.com/djherbis/times"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "job"

var (
	// ErrNoCandidates is returned when fewer files than required match the filter.
	ErrNoCandidates = errors.New("not enough candidates to concatenate")
	// ErrOutputExists is returned when an explicit output exists and overwrite is disabled.
	ErrOutputExists = errors.New("output already exists")
	// ErrOutputIsInput is returned when an explicit output is one of the inputs.
	ErrOutputIsInput = errors.New("output is one of the inputs")
)

// Output is a resolved output path.
type Output struct {
	Path string
	// Derived is true when the name was generated from the inputs.
	Derived bool
}

// Result summarizes a run.
type Result struct {
	Output   string
	Inputs   []string
	Size     int64
	Deleted  []string
	Duration time.Duration
	DryRun   bool
}

// Options are the options of a Job.
type Options struct {
	name   string
	onPlan func(inputs []string, output string)
}

// Option is an option for New.
type Option func(*Options)

// WithName names the job. Named jobs publish their state to state.DefaultState.
func WithName(name string) Option {
	return func(o *Options) {
		o.name = name
	}
}

// WithOnPlan is called once the inputs and the output are known, before
// ffmpeg starts.
func WithOnPlan(fn func(inputs []string, output string)) Option {
	return func(o *Options) {
		o.onPlan = fn
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Job concatenates the segments of a directory.
type Job struct {
	runner ffmpeg.Runner
	params *Params
	opts   *Options
	log    zerolog.Logger
}

// New creates a Job.
func New(runner ffmpeg.Runner, params *Params, opts ...Option) *Job {
	if runner == nil {
		log.Panic().Msg("runner is nil")
	}
	o := applyOptions(opts)
	l := log.Logger
	if o.name != "" {
		l = log.With().Str("job", o.name).Logger()
	}
	return &Job{
		runner: runner,
		params: params,
		opts:   o,
		log:    l,
	}
}

func (j *Job) setState(s state.JobState, extra map[string]any) {
	if j.opts.name == "" {
		return
	}
	opts := []state.SetJobStateOption{state.WithLabels(j.params.Labels)}
	if extra != nil {
		opts = append(opts, state.WithExtra(extra))
	}
	state.DefaultState.SetJobState(j.opts.name, s, opts...)
}

// IsDirTarget reports whether outputPath designates a directory in which a
// derived filename must be generated.
func IsDirTarget(outputPath string) bool {
	if strings.HasSuffix(outputPath, string(os.PathSeparator)) ||
		strings.HasSuffix(outputPath, "/") {
		return true
	}
	fi, err := os.Stat(outputPath)
	return err == nil && fi.IsDir()
}

// ResolveOutput computes the absolute output path for the inputs.
//
// A directory target gets a derived filename, made unique unless overwrite is
// set. An explicit path is used as-is. The parent directory is created unless
// in dry run.
func ResolveOutput(outputPath string, inputs []string, p *Params) (Output, error) {
	if outputPath == "" {
		outputPath = DefaultParams.OutputPath
	}

	var out Output
	if IsDirTarget(outputPath) {
		dir, err := filepath.Abs(outputPath)
		if err != nil {
			return Output{}, err
		}
		out = Output{
			Path:    filepath.Join(dir, naming.Derive(p.NameMode, inputs, p.Extension)),
			Derived: true,
		}
		// A single input derives its own name. Overwrite never applies to inputs.
		if !p.Overwrite || isInput(out.Path, inputs) {
			if out.Path, err = naming.Unique(out.Path); err != nil {
				return Output{}, err
			}
		}
	} else {
		path, err := filepath.Abs(outputPath)
		if err != nil {
			return Output{}, err
		}
		out = Output{Path: path}
		if isInput(path, inputs) {
			return Output{}, fmt.Errorf("%s: %w", path, ErrOutputIsInput)
		}
		if !p.Overwrite {
			if _, err := os.Stat(path); err == nil {
				return Output{}, fmt.Errorf("%s: %w", path, ErrOutputExists)
			}
		}
	}

	if !p.DryRun {
		if err := os.MkdirAll(filepath.Dir(out.Path), 0o755); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

func isInput(path string, inputs []string) bool {
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err == nil && abs == path {
			return true
		}
	}
	return false
}

// Run executes the pipeline once.
func (j *Job) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	p := j.params
	ctx, span := otel.Tracer(tracerName).Start(ctx, "job.Run", trace.WithAttributes(
		attribute.String("name", j.opts.name),
		attribute.String("source", p.SourcePath),
		attribute.Bool("dry_run", p.DryRun),
	))
	defer span.End()
	defer func() {
		if err != nil {
			// ffmpeg killed on cancellation reports "signal: killed".
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = fmt.Errorf("%w: %w", ctxErr, err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, ErrNoCandidates) || errors.Is(err, context.Canceled) {
				j.setState(state.JobStateIdle, nil)
			} else {
				j.setState(state.JobStateFailed, nil)
			}
		}
	}()

	j.setState(state.JobStateScanning, nil)
	scanOpts := []segment.Option{
		segment.WithSort(p.Sort),
		segment.WithLimit(p.NumOfConcatFiles),
	}
	if !IsDirTarget(p.OutputPath) {
		scanOpts = append(scanOpts, segment.WithExclude(p.OutputPath))
	}
	sel, err := segment.Scan(ctx, p.SourcePath, p.Filter, scanOpts...)
	if err != nil {
		return nil, err
	}
	minFiles := max(p.MinFiles, 1)
	if sel.Len() < minFiles {
		return nil, fmt.Errorf(
			"%w: found %d in %s, need %d",
			ErrNoCandidates,
			sel.Len(),
			p.SourcePath,
			minFiles,
		)
	}
	inputs := sel.Chronological()

	out, err := ResolveOutput(p.OutputPath, inputs, p)
	if err != nil {
		return nil, err
	}
	j.log.Info().
		Str("output", out.Path).
		Bool("derived", out.Derived).
		Int("inputs", len(inputs)).
		Msg("planned concat")
	if j.opts.onPlan != nil {
		j.opts.onPlan(inputs, out.Path)
	}

	res = &Result{
		Output: out.Path,
		Inputs: inputs,
		DryRun: p.DryRun,
	}

	concatOpts := []concat.Option{concat.WithMethod(p.Method)}
	if p.Overwrite {
		concatOpts = append(concatOpts, concat.WithOverwrite())
	}
	if p.FastStart {
		concatOpts = append(concatOpts, concat.WithFastStart())
	}
	if isAudioExt(filepath.Ext(out.Path)) {
		concatOpts = append(concatOpts, concat.WithAudioOnly())
	}

	if p.DryRun {
		j.log.Info().
			Strs("args", concat.BuildArgs("<list>", out.Path, concatOpts...)).
			Strs("inputs", inputs).
			Msg("dry run, ffmpeg not started")
		if p.DeleteAfterConcat {
			for _, in := range inputs {
				j.log.Info().Str("path", in).Msg("would delete source (dry run)")
			}
		}
		res.Duration = time.Since(start)
		j.setState(state.JobStateIdle, nil)
		return res, nil
	}

	j.setState(state.JobStateConcatenating, map[string]any{
		"output": out.Path,
		"inputs": inputs,
	})
	if err := concat.Do(ctx, j.runner, out.Path, inputs, concatOpts...); err != nil {
		return nil, err
	}

	size, err := cleaner.VerifyOutput(out.Path)
	if err != nil {
		return nil, err
	}
	res.Size = size
	metrics.Concat.OutputBytes.Add(
		ctx,
		size,
		metric.WithAttributes(attribute.String("method", p.Method.String())),
	)

	if p.PreserveTimes {
		if err := preserveTimes(out.Path, inputs); err != nil {
			// The output is valid, timestamps are cosmetic.
			j.log.Warn().Err(err).Str("output", out.Path).Msg("failed to preserve times")
		}
	}

	if p.DeleteAfterConcat {
		j.setState(state.JobStateCleaning, nil)
		deleted, err := cleaner.Clean(ctx, out.Path, inputs)
		res.Deleted = deleted
		if err != nil {
			return res, err
		}
	}

	res.Duration = time.Since(start)
	j.log.Info().
		Str("output", res.Output).
		Int64("size", res.Size).
		Int("deleted", len(res.Deleted)).
		Dur("duration", res.Duration).
		Msg("concat done")
	j.setState(state.JobStateFinished, map[string]any{
		"output":  res.Output,
		"size":    res.Size,
		"deleted": len(res.Deleted),
	})
	return res, nil
}

func isAudioExt(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "m4a", "aac":
		return true
	}
	return false
}

// preserveTimes sets the access and modification times of output to the
// newest ones found among inputs.
func preserveTimes(output string, inputs []string) error {
	var atime, mtime time.Time
	for _, in := range inputs {
		ts, err := times.Stat(in)
		if err != nil {
			return err
		}
		if ts.AccessTime().After(atime) {
			atime = ts.AccessTime()
		}
		if ts.ModTime().After(mtime) {
			mtime = ts.ModTime()
		}
	}
	if mtime.IsZero() {
		return nil
	}
	return os.Chtimes(output, atime, mtime)
}
