//go:build integration

package ffmpeg_test

import (
	"context"
	"testing"

	"github.com/Darkness4/mp4-concat-go/ffmpeg"
	"github.com/stretchr/testify/require"
)

func TestExec(t *testing.T) {
	_, err := ffmpeg.LookPath("ffmpeg")
	require.NoError(t, err)

	err = ffmpeg.New().Run(context.Background(), ".", "-hide_banner", "-version")
	require.NoError(t, err)
}
