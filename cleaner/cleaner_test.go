package cleaner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Darkness4/mp4-concat-go/cleaner"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, output []byte) (dir string, out string, sources []string) {
	t.Helper()
	dir = t.TempDir()
	out = filepath.Join(dir, "out.mp4")
	if output != nil {
		require.NoError(t, os.WriteFile(out, output, 0o600))
	}
	for _, name := range []string{"cam_001.mp4", "cam_002.mp4", "cam_003.mp4"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("test"), 0o600))
		sources = append(sources, path)
	}
	return dir, out, sources
}

func requireExist(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := os.Stat(p)
		require.NoError(t, err, p)
	}
}

func requireNotExist(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := os.Stat(p)
		require.ErrorIs(t, err, os.ErrNotExist, p)
	}
}

func TestClean(t *testing.T) {
	_, out, sources := setup(t, []byte("concatenated"))

	removed, err := cleaner.Clean(context.Background(), out, sources)
	require.NoError(t, err)
	require.Equal(t, sources, removed)
	requireNotExist(t, sources...)
	requireExist(t, out)
}

func TestCleanDryRun(t *testing.T) {
	_, out, sources := setup(t, []byte("concatenated"))

	removed, err := cleaner.Clean(context.Background(), out, sources, cleaner.WithDryRun())
	require.NoError(t, err)
	require.Empty(t, removed)
	requireExist(t, sources...)
}

func TestCleanEmptyOutput(t *testing.T) {
	_, out, sources := setup(t, []byte{})

	removed, err := cleaner.Clean(context.Background(), out, sources)
	require.ErrorIs(t, err, cleaner.ErrOutputEmpty)
	require.Empty(t, removed)
	requireExist(t, sources...)
}

func TestCleanMissingOutput(t *testing.T) {
	_, out, sources := setup(t, nil)

	_, err := cleaner.Clean(context.Background(), out, sources)
	require.ErrorIs(t, err, cleaner.ErrOutputMissing)
	requireExist(t, sources...)
}

func TestCleanNeverRemovesOutput(t *testing.T) {
	dir, out, sources := setup(t, []byte("concatenated"))
	missing := filepath.Join(dir, "already-gone.mp4")

	removed, err := cleaner.Clean(context.Background(), out, append([]string{out, missing}, sources...))
	require.NoError(t, err)
	require.Equal(t, sources, removed)
	requireExist(t, out)
}

func TestVerifyOutput(t *testing.T) {
	dir := t.TempDir()
	_, err := cleaner.VerifyOutput(dir)
	require.ErrorIs(t, err, cleaner.ErrOutputIsDir)

	out := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(out, []byte("12345"), 0o600))
	size, err := cleaner.VerifyOutput(out)
	require.NoError(t, err)
	require.EqualValues(t, 5, size)
}
