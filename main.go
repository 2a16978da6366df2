package main

import (
	"context"
	"errors"
	"os"
	"time"

	concatcmd "github.com/Darkness4/mp4-concat-go/cmd/concat"
	"github.com/Darkness4/mp4-concat-go/cmd/watch"
	"github.com/Darkness4/mp4-concat-go/logger"
	"github.com/Darkness4/mp4-concat-go/telemetry"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var version = "dev"

var (
	logLevel       string
	logJSON        bool
	otelStdout     bool
	otelPrometheus bool
	shutdownOTEL   func(context.Context) error
)

var app = &cli.App{
	Name:    "mp4-concat",
	Usage:   "Concatenate the video segments of a directory with ffmpeg.",
	Version: version,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "info",
			Category:    "Logging:",
			Usage:       "Log level (trace, debug, info, warn, error).",
			EnvVars:     []string{"MP4_CONCAT_LOG_LEVEL"},
			Destination: &logLevel,
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Category:    "Logging:",
			Usage:       "Output logs in JSON.",
			EnvVars:     []string{"MP4_CONCAT_LOG_JSON"},
			Destination: &logJSON,
		},
		&cli.BoolFlag{
			Name:        "otel.stdout",
			Category:    "Telemetry:",
			Usage:       "Print traces and metrics on stdout.",
			EnvVars:     []string{"MP4_CONCAT_OTEL_STDOUT"},
			Destination: &otelStdout,
		},
		&cli.BoolFlag{
			Name:        "otel.prometheus",
			Value:       true,
			Category:    "Telemetry:",
			Usage:       "Expose metrics to the Prometheus registry served by watch on /metrics.",
			EnvVars:     []string{"MP4_CONCAT_OTEL_PROMETHEUS"},
			Destination: &otelPrometheus,
		},
	}, concatcmd.Flags...),
	Before: func(cCtx *cli.Context) error {
		if err := logger.Setup(logLevel, logJSON); err != nil {
			return err
		}

		opts := []telemetry.Option{telemetry.WithService("mp4-concat", version)}
		if otelStdout {
			opts = append(opts, telemetry.WithStdout())
		}
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
			opts = append(opts, telemetry.WithOTLP())
		}
		if otelPrometheus {
			opts = append(opts, telemetry.WithPrometheus())
		}
		shutdown, err := telemetry.SetupOTELSDK(cCtx.Context, opts...)
		if err != nil {
			return err
		}
		shutdownOTEL = shutdown
		return nil
	},
	After: func(_ *cli.Context) error {
		if shutdownOTEL == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownOTEL(ctx)
	},
	Commands: []*cli.Command{
		concatcmd.Command,
		watch.Command,
	},
	Action: concatcmd.Action,
}

// loadEnv loads .env into the environment. It must run before the flags are
// parsed for the MP4_CONCAT_* variables to apply.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}
}

func main() {
	loadEnv()
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("app crashed")
	}
}
