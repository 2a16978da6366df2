package concat_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Darkness4/mp4-concat-go/video/concat"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	dir  string
	args []string
	list string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, dir string, args ...string) error {
	r.dir = dir
	r.args = args
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			if b, err := os.ReadFile(args[i+1]); err == nil {
				r.list = string(b)
			}
		}
	}
	return r.err
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		title    string
		opts     []concat.Option
		expected []string
	}{
		{
			title: "Demuxer",
			expected: []string{
				"-hide_banner", "-nostdin", "-nostats",
				"-f", "concat", "-safe", "0",
				"-i", "in", "-c", "copy", "-n",
				"-progress", "pipe:1", "out.mp4",
			},
		},
		{
			title: "Protocol with overwrite and faststart",
			opts: []concat.Option{
				concat.WithMethod(concat.MethodProtocol),
				concat.WithOverwrite(),
				concat.WithFastStart(),
			},
			expected: []string{
				"-hide_banner", "-nostdin", "-nostats",
				"-i", "in", "-c", "copy",
				"-movflags", "+faststart", "-y",
				"-progress", "pipe:1", "out.mp4",
			},
		},
		{
			title: "Audio only",
			opts:  []concat.Option{concat.WithAudioOnly()},
			expected: []string{
				"-hide_banner", "-nostdin", "-nostats",
				"-f", "concat", "-safe", "0",
				"-i", "in", "-c", "copy", "-vn", "-n",
				"-progress", "pipe:1", "out.mp4",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			require.Equal(t, tt.expected, concat.BuildArgs("in", "out.mp4", tt.opts...))
		})
	}
}

func TestDoDemuxer(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		filepath.Join(dir, "cam_001.mp4"),
		filepath.Join(dir, "it's.mp4"),
	}
	runner := &recordingRunner{}

	err := concat.Do(context.Background(), runner, filepath.Join(dir, "out.mp4"), inputs)
	require.NoError(t, err)

	require.Equal(t, dir, runner.dir)
	require.Equal(t, filepath.Join(dir, "out.mp4"), runner.args[len(runner.args)-1])
	require.Equal(t,
		"ffconcat version 1.0\n"+
			"file '"+inputs[0]+"'\n"+
			"file '"+filepath.Join(dir, `it'\''s.mp4`)+"'\n",
		runner.list,
	)

	// The list is removed once ffmpeg exits.
	listPath := runner.args[indexOf(runner.args, "-i")+1]
	_, err = os.Stat(listPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDoProtocol(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{}

	err := concat.Do(
		context.Background(),
		runner,
		filepath.Join(dir, "out.ts"),
		[]string{filepath.Join(dir, "a.ts"), filepath.Join(dir, "b.ts")},
		concat.WithMethod(concat.MethodProtocol),
		concat.WithWorkDir("/"),
	)
	require.NoError(t, err)
	require.Equal(t, "/", runner.dir)
	require.Contains(t, runner.args, "concat:"+filepath.Join(dir, "a.ts")+"|"+filepath.Join(dir, "b.ts"))
}

func TestDoErrors(t *testing.T) {
	runner := &recordingRunner{}
	err := concat.Do(context.Background(), runner, "out.mp4", nil)
	require.ErrorIs(t, err, concat.ErrNoInputs)

	err = concat.Do(
		context.Background(),
		runner,
		"out.ts",
		[]string{"a|b.ts"},
		concat.WithMethod(concat.MethodProtocol),
	)
	require.ErrorIs(t, err, concat.ErrUnsupportedPath)

	failure := errors.New("exit status 1")
	runner = &recordingRunner{err: failure}
	err = concat.Do(context.Background(), runner, "out.mp4", []string{"a.mp4"})
	require.ErrorIs(t, err, failure)
}

func TestParseMethod(t *testing.T) {
	m, err := concat.ParseMethod("protocol")
	require.NoError(t, err)
	require.Equal(t, concat.MethodProtocol, m)

	m, err = concat.ParseMethod("")
	require.NoError(t, err)
	require.Equal(t, concat.MethodDemuxer, m)

	_, err = concat.ParseMethod("cat")
	require.ErrorIs(t, err, concat.ErrUnknownMethod)
}

func indexOf(s []string, v string) int {
	for i, e := range s {
		if e == v {
			return i
		}
	}
	return -1
}
