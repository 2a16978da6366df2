package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFeedsFlags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".env"),
		[]byte("MP4_CONCAT_LOG_LEVEL=debug\n"),
		0o600,
	))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cam_001.mp4"), []byte("test"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("MP4_CONCAT_LOG_LEVEL")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	loadEnv()
	err = app.Run([]string{"mp4-concat", "--otel.prometheus=false", "--dry-run"})
	require.NoError(t, err)
	require.Equal(t, "debug", logLevel)
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
