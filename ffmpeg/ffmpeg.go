// Package ffmpeg runs the ffmpeg binary.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const stderrTailMax = 10

// ErrNotFound is returned when the ffmpeg binary cannot be found in PATH.
var ErrNotFound = errors.New("ffmpeg binary not found")

// Runner runs a media tool with the given arguments.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) error
}

// ExitError is returned when ffmpeg exits with a non-zero status.
type ExitError struct {
	Args   []string
	Code   int
	Stderr []string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with code %d", e.Code)
	if len(e.Stderr) > 0 {
		msg += ": " + e.Stderr[len(e.Stderr)-1]
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Option configures Exec.
type Option func(*Options)

// Options of Exec.
type Options struct {
	binary   string
	progress func(key, value string)
}

// WithBinary sets the path or name of the ffmpeg binary.
func WithBinary(binary string) Option {
	return func(o *Options) {
		if binary != "" {
			o.binary = binary
		}
	}
}

// WithProgress registers a callback receiving the key=value pairs emitted by
// "-progress pipe:1".
func WithProgress(fn func(key, value string)) Option {
	return func(o *Options) {
		o.progress = fn
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{
		binary: "ffmpeg",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	opts *Options
}

// New creates an Exec runner.
func New(opts ...Option) *Exec {
	return &Exec{opts: applyOptions(opts)}
}

// Binary returns the configured binary.
func (e *Exec) Binary() string {
	return e.opts.binary
}

// Run executes the binary in dir and waits for it to exit.
func (e *Exec) Run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, e.opts.binary, args...)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	log.Debug().Str("binary", e.opts.binary).Str("dir", dir).Strs("args", args).Msg("ffmpeg start")
	if err := cmd.Start(); err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdout, func(line string) {
			if key, value, ok := ParseProgressLine(line); ok && e.opts.progress != nil {
				e.opts.progress(key, value)
			}
		})
	}()
	go func() {
		defer wg.Done()
		readLines(stderr, func(line string) {
			log.Debug().Str("stderr", line).Msg("ffmpeg")
			tail = append(tail, line)
			if len(tail) > stderrTailMax {
				tail = tail[1:]
			}
		})
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		exitErr := &ExitError{Args: args, Code: -1, Stderr: tail, Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitErr.Code = ee.ExitCode()
		}
		return exitErr
	}

	log.Debug().Str("binary", e.opts.binary).Msg("ffmpeg finished")
	return nil
}

func readLines(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		log.Err(err).Msg("ffmpeg failed to read output")
		// Keep the pipe flowing so that ffmpeg does not block.
		_, _ = io.Copy(io.Discard, r)
	}
}

// ParseProgressLine parses a "key=value" line of ffmpeg's progress output.
func ParseProgressLine(line string) (key string, value string, ok bool) {
	key, value, ok = strings.Cut(strings.TrimSpace(line), "=")
	if !ok || key == "" || strings.ContainsAny(key, " \t") || strings.Contains(value, "=") {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

// LookPath resolves the binary in PATH.
func LookPath(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, binary, err)
	}
	return path, nil
}
