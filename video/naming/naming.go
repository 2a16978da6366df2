// Package naming derives output filenames from a set of segments.
package naming

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Darkness4/mp4-concat-go/utils"
)

// ErrUnknownMode is returned when the naming mode cannot be parsed.
var ErrUnknownMode = errors.New("unknown naming mode")

// Mode selects how the filename is derived.
type Mode int

const (
	// ModeFull joins every segment name.
	ModeFull Mode = iota
	// ModeFirstLast only keeps the first and the last segment names.
	ModeFirstLast
)

// String returns a string representation of a Mode.
func (m Mode) String() string {
	if m == ModeFirstLast {
		return "firstlast"
	}
	return "full"
}

// ParseMode parses a naming mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ModeFull, nil
	case "firstlast", "first-last", "first+last":
		return ModeFirstLast, nil
	}
	return ModeFull, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func stems(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, stem(p))
	}
	return out
}

// CommonPrefix returns the longest prefix shared by the names of paths,
// extensions excluded.
func CommonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	names := stems(paths)
	prefix := names[0]
	for _, name := range names[1:] {
		n := 0
		for n < len(prefix) && n < len(name) && prefix[n] == name[n] {
			n++
		}
		prefix = prefix[:n]
		if prefix == "" {
			return ""
		}
	}
	// Do not split a multi-byte character.
	for len(prefix) > 0 && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

func withPrefix(prefix string, rest string) string {
	rest = strings.Trim(rest, "_")
	if rest == "" {
		return prefix
	}
	head := strings.TrimRight(prefix, "_")
	if head == "" {
		return rest
	}
	return head + "_" + rest
}

func fullStem(paths []string) string {
	prefix := CommonPrefix(paths)
	if prefix == "" {
		return strings.Join(stems(paths), "_")
	}
	// The prefix is only stripped from the start of each name.
	rests := make([]string, 0, len(paths))
	for _, name := range stems(paths) {
		if rest := strings.Trim(strings.TrimPrefix(name, prefix), "_"); rest != "" {
			rests = append(rests, rest)
		}
	}
	return withPrefix(prefix, strings.Join(rests, "_"))
}

func firstLastStem(paths []string) string {
	if len(paths) <= 1 {
		return fullStem(paths)
	}
	prefix := CommonPrefix(paths)
	first := strings.Trim(strings.TrimPrefix(stem(paths[0]), prefix), "_")
	last := strings.Trim(strings.TrimPrefix(stem(paths[len(paths)-1]), prefix), "_")
	if prefix == "" {
		return first + "-" + last
	}
	var rest string
	switch {
	case first == "":
		rest = last
	case last == "":
		rest = first
	default:
		rest = first + "-" + last
	}
	return withPrefix(prefix, rest)
}

// Full derives a filename made of every segment name.
//
// The common prefix is written once: [cam_001 cam_002] gives cam_00_1_2.ext.
func Full(paths []string, ext string) string {
	return EnsureExt(fullStem(paths), ext)
}

// FirstLast derives a filename from the first and the last segment names:
// [cam_001 cam_002 cam_003] gives cam_00_1-3.ext.
func FirstLast(paths []string, ext string) string {
	return EnsureExt(firstLastStem(paths), ext)
}

// Derive computes a sanitized filename that fits in a single path component.
func Derive(mode Mode, paths []string, ext string) string {
	var s string
	switch mode {
	case ModeFirstLast:
		s = firstLastStem(paths)
	default:
		s = fullStem(paths)
	}
	s = utils.SanitizeFilename(s)

	ext = normalizeExt(ext)
	if ext == "" {
		return utils.TruncateFilename(s, "", utils.MaxFilenameBytes)
	}
	if strings.HasSuffix(strings.ToLower(s), "."+strings.ToLower(ext)) {
		s = s[:len(s)-len(ext)-1]
	}
	return utils.TruncateFilename(s, "."+ext, utils.MaxFilenameBytes)
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.TrimSpace(ext), ".")
}

// EnsureExt appends .ext to name unless it already ends with it.
func EnsureExt(name string, ext string) string {
	ext = normalizeExt(ext)
	if ext == "" || strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(ext)) {
		return name
	}
	return name + "." + ext
}

// Unique returns path if it does not exist, otherwise the first free
// name.N.ext.
func Unique(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s.%d%s", base, n, ext)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
