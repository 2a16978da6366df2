// Package concat concatenates media files with ffmpeg without re-encoding.
package concat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Darkness4/mp4-concat-go/ffmpeg"
	"github.com/Darkness4/mp4-concat-go/telemetry/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "video/concat"

var (
	// ErrNoInputs is returned when there is nothing to concatenate.
	ErrNoInputs = errors.New("no input files")
	// ErrUnknownMethod is returned when the method cannot be parsed.
	ErrUnknownMethod = errors.New("unknown concat method")
	// ErrUnsupportedPath is returned when a path cannot be expressed with the
	// selected method.
	ErrUnsupportedPath = errors.New("path not supported by concat method")
)

// Method is the ffmpeg concatenation mechanism.
type Method int

const (
	// MethodDemuxer uses the concat demuxer with a generated file list.
	// Works with any container, MP4 included.
	MethodDemuxer Method = iota
	// MethodProtocol uses the concat: protocol. Only byte-concatenable
	// formats (MPEG-TS) give a valid output.
	MethodProtocol
)

// String returns a string representation of a Method.
func (m Method) String() string {
	if m == MethodProtocol {
		return "protocol"
	}
	return "demuxer"
}

// ParseMethod parses a concat method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "demuxer", "list", "":
		return MethodDemuxer, nil
	case "protocol":
		return MethodProtocol, nil
	}
	return MethodDemuxer, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Option configures Do.
type Option func(*Options)

// Options of Do.
type Options struct {
	method    Method
	overwrite bool
	faststart bool
	audioOnly bool
	workDir   string
}

// WithMethod sets the concatenation mechanism.
func WithMethod(m Method) Option {
	return func(o *Options) {
		o.method = m
	}
}

// WithOverwrite allows replacing an existing output.
func WithOverwrite() Option {
	return func(o *Options) {
		o.overwrite = true
	}
}

// WithFastStart moves the MP4 index at the beginning of the file.
func WithFastStart() Option {
	return func(o *Options) {
		o.faststart = true
	}
}

// WithAudioOnly drops the video streams.
func WithAudioOnly() Option {
	return func(o *Options) {
		o.audioOnly = true
	}
}

// WithWorkDir sets the working directory of ffmpeg. Defaults to the
// directory of the first input.
func WithWorkDir(dir string) Option {
	return func(o *Options) {
		o.workDir = dir
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuildArgs returns the ffmpeg arguments. input is either the list file
// (MethodDemuxer) or the concat: URL (MethodProtocol).
func BuildArgs(input string, output string, opts ...Option) []string {
	o := applyOptions(opts)
	args := []string{"-hide_banner", "-nostdin", "-nostats"}
	if o.method == MethodDemuxer {
		args = append(args, "-f", "concat", "-safe", "0")
	}
	args = append(args, "-i", input, "-c", "copy")
	if o.audioOnly {
		args = append(args, "-vn")
	}
	if o.faststart {
		args = append(args, "-movflags", "+faststart")
	}
	if o.overwrite {
		args = append(args, "-y")
	} else {
		args = append(args, "-n")
	}
	return append(args, "-progress", "pipe:1", output)
}

// ProtocolURL returns the concat: URL of inputs.
func ProtocolURL(inputs []string) (string, error) {
	for _, in := range inputs {
		if strings.Contains(in, "|") {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedPath, in)
		}
	}
	return "concat:" + strings.Join(inputs, "|"), nil
}

func quoteListPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// WriteList writes a concat demuxer list file in the temporary directory.
//
// The returned function removes the file.
func WriteList(inputs []string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "mp4-concat-*.txt")
	if err != nil {
		return "", func() {}, err
	}
	cleanup = func() {
		_ = os.Remove(f.Name())
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	w := bufio.NewWriter(f)
	if _, err = w.WriteString("ffconcat version 1.0\n"); err != nil {
		_ = f.Close()
		return "", cleanup, err
	}
	for _, in := range inputs {
		if strings.ContainsAny(in, "\n\r") {
			_ = f.Close()
			return "", cleanup, fmt.Errorf("%w: %q", ErrUnsupportedPath, in)
		}
		if _, err = fmt.Fprintf(w, "file %s\n", quoteListPath(in)); err != nil {
			_ = f.Close()
			return "", cleanup, err
		}
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return "", cleanup, err
	}
	if err = f.Close(); err != nil {
		return "", cleanup, err
	}
	return f.Name(), cleanup, nil
}

// Do concatenates inputs, in order, into output.
func Do(
	ctx context.Context,
	runner ffmpeg.Runner,
	output string,
	inputs []string,
	opts ...Option,
) (err error) {
	o := applyOptions(opts)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "concat.Do", trace.WithAttributes(
		attribute.String("output", output),
		attribute.StringSlice("inputs", inputs),
		attribute.String("method", o.method.String()),
	))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("method", o.method.String()))
	metrics.Concat.Runs.Add(ctx, 1, attrs)
	end := metrics.TimeStartRecording(ctx, metrics.Concat.CompletionTime, time.Second, attrs)
	defer func() {
		end()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.Concat.Errors.Add(ctx, 1, attrs)
		}
	}()

	if len(inputs) == 0 {
		return ErrNoInputs
	}

	abs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		p, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		abs = append(abs, p)
	}
	output, err = filepath.Abs(output)
	if err != nil {
		return err
	}

	workDir := o.workDir
	if workDir == "" {
		workDir = filepath.Dir(abs[0])
	}

	var input string
	switch o.method {
	case MethodProtocol:
		input, err = ProtocolURL(abs)
		if err != nil {
			return err
		}
	default:
		list, cleanup, err := WriteList(abs)
		if err != nil {
			return err
		}
		defer cleanup()
		input = list
	}

	args := BuildArgs(input, output, opts...)
	log.Info().
		Str("output", output).
		Strs("inputs", abs).
		Stringer("method", o.method).
		Msg("concatenating")
	if err := runner.Run(ctx, workDir, args...); err != nil {
		return fmt.Errorf("concat into %s: %w", output, err)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
