package job_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Darkness4/mp4-concat-go/job"
	"github.com/Darkness4/mp4-concat-go/state"
	"github.com/Darkness4/mp4-concat-go/video/naming"
	"github.com/Darkness4/mp4-concat-go/video/segment"
	"github.com/stretchr/testify/require"
)

// fakeRunner emulates ffmpeg by writing content into the last argument.
type fakeRunner struct {
	content []byte
	err     error
	calls   int
	output  string
	list    string
}

func (r *fakeRunner) Run(_ context.Context, _ string, args ...string) error {
	r.calls++
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			if b, err := os.ReadFile(args[i+1]); err == nil {
				r.list = string(b)
			}
		}
	}
	if r.err != nil {
		return r.err
	}
	r.output = args[len(args)-1]
	return os.WriteFile(r.output, r.content, 0o600)
}

func (r *fakeRunner) listed() []string {
	var files []string
	for _, line := range strings.Split(r.list, "\n") {
		if strings.HasPrefix(line, "file '") {
			files = append(files, filepath.Base(strings.TrimSuffix(line[len("file '"):], "'")))
		}
	}
	return files
}

func writeSegments(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("segment"), 0o600))
	}
}

func params(src string, output string) *job.Params {
	p := job.DefaultParams.Clone()
	p.SourcePath = src
	p.OutputPath = output
	return p
}

func TestRunExplicitOutput(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeSegments(t, dir, "cam_003.mp4", "cam_001.mp4", "cam_002.mp4", "notes.txt")
	out := filepath.Join(dir, "all.mp4")
	runner := &fakeRunner{content: []byte("concatenated")}

	// Act
	res, err := job.New(runner, params(dir, out)).Run(context.Background())

	// Assert
	require.NoError(t, err)
	require.Equal(t, out, res.Output)
	require.EqualValues(t, len("concatenated"), res.Size)
	require.Equal(t, []string{"cam_001.mp4", "cam_002.mp4", "cam_003.mp4"}, runner.listed())
	require.Empty(t, res.Deleted)
	for _, name := range []string{"cam_001.mp4", "cam_002.mp4", "cam_003.mp4"} {
		require.FileExists(t, filepath.Join(dir, name))
	}
}

func TestRunLimitSelectsNewest(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4", "cam_003.mp4", "cam_004.mp4")
	p := params(dir, filepath.Join(t.TempDir(), "out.mp4"))
	p.NumOfConcatFiles = 2
	runner := &fakeRunner{content: []byte("concatenated")}

	res, err := job.New(runner, p).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Inputs, 2)
	require.Equal(t, []string{"cam_003.mp4", "cam_004.mp4"}, runner.listed())
}

func TestRunDirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4")
	outDir := filepath.Join(t.TempDir(), "merged") + string(os.PathSeparator)
	runner := &fakeRunner{content: []byte("concatenated")}

	res, err := job.New(runner, params(dir, outDir)).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, "cam_00_1_2.mp4", filepath.Base(res.Output))
	require.Equal(t, filepath.Clean(outDir), filepath.Dir(res.Output))
	require.FileExists(t, res.Output)

	// A second run does not clobber the previous output.
	res2, err := job.New(runner, params(dir, outDir)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cam_00_1_2.1.mp4", filepath.Base(res2.Output))
}

func TestRunDeleteAfterConcat(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4")
	p := params(dir, filepath.Join(dir, "out.mp4"))
	p.DeleteAfterConcat = true
	runner := &fakeRunner{content: []byte("concatenated")}

	res, err := job.New(runner, p).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Deleted, 2)
	require.NoFileExists(t, filepath.Join(dir, "cam_001.mp4"))
	require.NoFileExists(t, filepath.Join(dir, "cam_002.mp4"))
	require.FileExists(t, res.Output)
}

func TestRunEmptyOutputKeepsSources(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4")
	p := params(dir, filepath.Join(dir, "out.mp4"))
	p.DeleteAfterConcat = true
	runner := &fakeRunner{content: []byte{}}

	_, err := job.New(runner, p).Run(context.Background())

	require.Error(t, err)
	require.FileExists(t, filepath.Join(dir, "cam_001.mp4"))
	require.FileExists(t, filepath.Join(dir, "cam_002.mp4"))
}

func TestRunFailureKeepsSources(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4")
	p := params(dir, filepath.Join(dir, "out.mp4"))
	p.DeleteAfterConcat = true
	boom := errors.New("boom")
	runner := &fakeRunner{err: boom}

	_, err := job.New(runner, p, job.WithName("failing")).Run(context.Background())

	require.ErrorIs(t, err, boom)
	require.FileExists(t, filepath.Join(dir, "cam_001.mp4"))
	require.Equal(t, state.JobStateFailed, state.DefaultState.GetJobState("failing"))
}

func TestRunNoCandidates(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4")
	p := params(dir, filepath.Join(t.TempDir(), "out.mp4"))
	p.MinFiles = 2
	runner := &fakeRunner{}

	_, err := job.New(runner, p, job.WithName("idle")).Run(context.Background())

	require.ErrorIs(t, err, job.ErrNoCandidates)
	require.Zero(t, runner.calls)
	require.Equal(t, state.JobStateIdle, state.DefaultState.GetJobState("idle"))
}

func TestRunExistingOutput(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4")
	out := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(out, []byte("previous"), 0o600))
	runner := &fakeRunner{content: []byte("concatenated")}

	_, err := job.New(runner, params(dir, out)).Run(context.Background())
	require.ErrorIs(t, err, job.ErrOutputExists)
	require.Zero(t, runner.calls)

	p := params(dir, out)
	p.Overwrite = true
	_, err = job.New(runner, p).Run(context.Background())
	require.NoError(t, err)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "concatenated", string(b))
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4")
	outDir := filepath.Join(t.TempDir(), "not-created") + string(os.PathSeparator)
	p := params(dir, outDir)
	p.DryRun = true
	p.DeleteAfterConcat = true
	runner := &fakeRunner{}
	var planned string

	res, err := job.New(runner, p, job.WithOnPlan(func(_ []string, output string) {
		planned = output
	})).Run(context.Background())

	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Equal(t, res.Output, planned)
	require.Zero(t, runner.calls)
	require.NoDirExists(t, outDir)
	require.FileExists(t, filepath.Join(dir, "cam_001.mp4"))
}

func TestRunPreserveTimes(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4")
	newest := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "cam_001.mp4"), newest.Add(-time.Hour), newest.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "cam_002.mp4"), newest, newest))
	p := params(dir, filepath.Join(t.TempDir(), "out.mp4"))
	p.PreserveTimes = true
	runner := &fakeRunner{content: []byte("concatenated")}

	res, err := job.New(runner, p).Run(context.Background())

	require.NoError(t, err)
	fi, err := os.Stat(res.Output)
	require.NoError(t, err)
	require.True(t, newest.Equal(fi.ModTime()), fi.ModTime())
}

func TestResolveOutput(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{"rec_2024_01.mp4", "rec_2024_02.mp4", "rec_2024_03.mp4"}

	tests := []struct {
		title    string
		mode     naming.Mode
		expected string
	}{
		{title: "Full", mode: naming.ModeFull, expected: "rec_2024_0_1_2_3.mp4"},
		{title: "FirstLast", mode: naming.ModeFirstLast, expected: "rec_2024_0_1-3.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			p := job.DefaultParams.Clone()
			p.NameMode = tt.mode
			out, err := job.ResolveOutput(dir, inputs, p)
			require.NoError(t, err)
			require.True(t, out.Derived)
			require.Equal(t, filepath.Join(dir, tt.expected), out.Path)
		})
	}
}

func TestOverride(t *testing.T) {
	p := job.DefaultParams.Clone()
	sort := segment.SortNatural
	limit := 5
	override := job.OptionalParams{
		Sort:             &sort,
		NumOfConcatFiles: &limit,
		Labels:           map[string]string{"camera": "rear"},
	}

	override.Override(p)

	require.Equal(t, segment.SortNatural, p.Sort)
	require.Equal(t, 5, p.NumOfConcatFiles)
	require.Equal(t, map[string]string{"camera": "rear"}, p.Labels)
	require.Nil(t, job.DefaultParams.Labels)
	require.Equal(t, segment.SortReverse, job.DefaultParams.Sort)
}

func TestResolveOutputNeverAnInput(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4")
	input := filepath.Join(dir, "cam_001.mp4")
	p := job.DefaultParams.Clone()
	p.Overwrite = true

	out, err := job.ResolveOutput(dir+string(os.PathSeparator), []string{input}, p)
	require.NoError(t, err)
	require.True(t, out.Derived)
	require.Equal(t, filepath.Join(dir, "cam_001.1.mp4"), out.Path)

	_, err = job.ResolveOutput(input, []string{input}, p)
	require.ErrorIs(t, err, job.ErrOutputIsInput)
}

func TestRunSingleSegmentIntoSourceDir(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4")
	p := params(dir, dir+string(os.PathSeparator))
	p.Overwrite = true
	p.DeleteAfterConcat = true
	runner := &fakeRunner{content: []byte("concatenated")}

	res, err := job.New(runner, p).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "cam_001.1.mp4"), res.Output)
	require.Equal(t, []string{filepath.Join(dir, "cam_001.mp4")}, res.Deleted)
	require.FileExists(t, res.Output)
}

// killedRunner cancels the run and fails like an ffmpeg process killed by
// exec.CommandContext.
type killedRunner struct {
	cancel context.CancelFunc
}

func (r *killedRunner) Run(context.Context, string, ...string) error {
	r.cancel()
	return errors.New("signal: killed")
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, "cam_001.mp4", "cam_002.mp4")
	p := params(dir, filepath.Join(t.TempDir(), "out.mp4"))
	p.DeleteAfterConcat = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := job.New(&killedRunner{cancel: cancel}, p, job.WithName("canceled")).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, state.JobStateIdle, state.DefaultState.GetJobState("canceled"))
	require.FileExists(t, filepath.Join(dir, "cam_001.mp4"))
}
