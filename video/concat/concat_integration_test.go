//go:build integration

package concat_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Darkness4/mp4-concat-go/ffmpeg"
	"github.com/Darkness4/mp4-concat-go/video/concat"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, runner ffmpeg.Runner, path string) {
	t.Helper()
	err := runner.Run(context.Background(), filepath.Dir(path),
		"-hide_banner", "-nostdin", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=160x120:rate=10",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", path,
	)
	require.NoError(t, err)
}

func TestDo(t *testing.T) {
	dir := t.TempDir()
	runner := ffmpeg.New()
	inputs := []string{filepath.Join(dir, "input.0.mp4"), filepath.Join(dir, "input.1.mp4")}
	for _, in := range inputs {
		generate(t, runner, in)
	}

	out := filepath.Join(dir, "output.mp4")
	err := concat.Do(context.Background(), runner, out, inputs, concat.WithFastStart())
	require.NoError(t, err)

	fi, err := os.Stat(out)
	require.NoError(t, err)
	require.NotZero(t, fi.Size())
}
