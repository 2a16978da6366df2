// Package segment selects the recording segments to concatenate.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Darkness4/mp4-concat-go/telemetry/metrics"
	"github.com/facette/natsort"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "video/segment"

// DefaultFilter matches MP4 files.
const DefaultFilter = `\.mp4$`

var (
	// ErrInvalidPattern is returned when the filter is not a valid regular expression.
	ErrInvalidPattern = errors.New("invalid filter pattern")
	// ErrUnknownSortMode is returned when the sort mode cannot be parsed.
	ErrUnknownSortMode = errors.New("unknown sort mode")
)

// SortMode is the order in which candidates are selected.
type SortMode int

const (
	// SortReverse selects in descending lexicographic order.
	SortReverse SortMode = iota
	// SortNormal selects in ascending lexicographic order.
	SortNormal
	// SortNatural selects in ascending order, comparing digit runs numerically.
	SortNatural
)

// String returns a string representation of a SortMode.
func (m SortMode) String() string {
	switch m {
	case SortNormal:
		return "normal"
	case SortNatural:
		return "natural"
	default:
		return "reverse"
	}
}

// ParseSortMode parses a sort mode.
func ParseSortMode(s string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "asc", "ascending":
		return SortNormal, nil
	case "reverse", "desc", "descending", "":
		return SortReverse, nil
	case "natural":
		return SortNatural, nil
	}
	return SortReverse, fmt.Errorf("%w: %q", ErrUnknownSortMode, s)
}

// Option configures Scan.
type Option func(*Options)

// Options of Scan.
type Options struct {
	sort    SortMode
	limit   int
	exclude map[string]struct{}
}

// WithSort sets the selection order.
func WithSort(mode SortMode) Option {
	return func(o *Options) {
		o.sort = mode
	}
}

// WithLimit keeps at most n candidates. 0 keeps everything.
func WithLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithExclude ignores the given paths, e.g. the output of a previous run.
func WithExclude(paths ...string) Option {
	return func(o *Options) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				o.exclude[abs] = struct{}{}
			}
		}
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{
		sort:    SortReverse,
		exclude: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Selection is an ordered set of candidate files.
type Selection struct {
	paths []string
	sort  SortMode
}

// Paths returns the candidates in selection order.
func (s *Selection) Paths() []string {
	return slices.Clone(s.paths)
}

// Chronological returns the candidates in ascending order, which is the
// recording order of sequentially named segments.
func (s *Selection) Chronological() []string {
	paths := slices.Clone(s.paths)
	sortPaths(paths, ascendingOf(s.sort))
	return paths
}

// Len returns the number of candidates.
func (s *Selection) Len() int {
	return len(s.paths)
}

// SortMode returns the mode used to select the candidates.
func (s *Selection) SortMode() SortMode {
	return s.sort
}

// Scan lists the regular files of dir whose name matches pattern.
//
// The scan is not recursive. Candidates are sorted, then truncated.
func Scan(ctx context.Context, dir string, pattern string, opts ...Option) (*Selection, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "segment.Scan", trace.WithAttributes(
		attribute.String("dir", dir),
		attribute.String("pattern", pattern),
	))
	defer span.End()
	metrics.Scan.Runs.Add(ctx, 1)

	sel, err := scan(dir, pattern, applyOptions(opts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Scan.Errors.Add(ctx, 1)
		return nil, err
	}
	metrics.Scan.Candidates.Record(ctx, int64(sel.Len()))
	return sel, nil
}

func scan(dir string, pattern string, o *Options) (*Selection, error) {
	if pattern == "" {
		pattern = DefaultFilter
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !re.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !isRegular(entry, path) {
			continue
		}
		if _, ok := o.exclude[path]; ok {
			log.Debug().Str("path", path).Msg("excluded from candidates")
			continue
		}
		paths = append(paths, path)
	}

	sortPaths(paths, o.sort)
	if o.limit > 0 && len(paths) > o.limit {
		paths = paths[:o.limit]
	}

	return &Selection{paths: paths, sort: o.sort}, nil
}

// isRegular reports whether entry is a regular file, following symlinks.
func isRegular(entry fs.DirEntry, path string) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}
	fi, err := os.Stat(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("skipping broken symlink")
		return false
	}
	return fi.Mode().IsRegular()
}

func ascendingOf(mode SortMode) SortMode {
	if mode == SortNatural {
		return SortNatural
	}
	return SortNormal
}

func sortPaths(paths []string, mode SortMode) {
	switch mode {
	case SortNatural:
		natsort.Sort(paths)
	case SortNormal:
		slices.Sort(paths)
	default:
		slices.Sort(paths)
		slices.Reverse(paths)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m SortMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SortMode) UnmarshalText(b []byte) error {
	v, err := ParseSortMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
