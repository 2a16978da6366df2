// Package watch provides the command that periodically concatenates the
// segments of the configured directories.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"syscall"
	"time"

	"github.com/Darkness4/mp4-concat-go/ffmpeg"
	"github.com/Darkness4/mp4-concat-go/job"
	"github.com/Darkness4/mp4-concat-go/logger"
	"github.com/Darkness4/mp4-concat-go/notify"
	"github.com/Darkness4/mp4-concat-go/notify/notifier"
	"github.com/Darkness4/mp4-concat-go/state"
	"github.com/grafana/pyroscope-go/godeltaprof"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var (
	configPath        string
	httpListenAddress string
	ffmpegBinary      string
)

// Command is the command for running the configured jobs periodically.
var Command = &cli.Command{
	Name:  "watch",
	Usage: "Periodically concatenate the segments of multiple directories.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Required:    true,
			Usage:       `Config file path. (required)`,
			EnvVars:     []string{"MP4_CONCAT_CONFIG"},
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "http.listen-address",
			Value:       ":3000",
			Usage:       "Address serving the state of the jobs, metrics and pprof.",
			EnvVars:     []string{"MP4_CONCAT_HTTP_LISTEN_ADDRESS"},
			Destination: &httpListenAddress,
		},
		&cli.StringFlag{
			Name:        "ffmpeg",
			Value:       "ffmpeg",
			Usage:       "Path or name of the ffmpeg binary.",
			EnvVars:     []string{"MP4_CONCAT_FFMPEG"},
			Destination: &ffmpegBinary,
		},
	},
	Action: func(cCtx *cli.Context) error {
		ctx, cancel := context.WithCancel(cCtx.Context)
		defer cancel()

		// Trap cleanup
		cleanChan := make(chan os.Signal, 1)
		signal.Notify(cleanChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(cleanChan)
		go func() {
			select {
			case <-cleanChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		binary, err := ffmpeg.LookPath(ffmpegBinary)
		if err != nil {
			log.Error().Err(err).Str("ffmpeg", ffmpegBinary).Msg("ffmpeg is required")
			return err
		}
		runner := ffmpeg.New(ffmpeg.WithBinary(binary))

		g, ctx := errgroup.WithContext(ctx)
		configChan := make(chan *Config)

		g.Go(func() error {
			return ObserveConfig(ctx, configPath, configChan)
		})
		g.Go(func() error {
			return ConfigReloader(ctx, configChan, newConfigHandler(runner))
		})

		srv := &http.Server{
			Addr:              httpListenAddress,
			Handler:           newHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("listenAddress", httpListenAddress).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("fail to serve http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info().Msg("watch stopped")
		return nil
	},
}

func newHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		b, err := json.MarshalIndent(state.DefaultState, "", "  ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/delta_heap", deltaProfile(godeltaprof.NewHeapProfiler().Profile))
	mux.HandleFunc("/debug/pprof/delta_block", deltaProfile(godeltaprof.NewBlockProfiler().Profile))
	mux.HandleFunc("/debug/pprof/delta_mutex", deltaProfile(godeltaprof.NewMutexProfiler().Profile))

	return otelhttp.NewHandler(mux, "watch")
}

func deltaProfile(profile func(w io.Writer) error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="profile"`)
		if err := profile(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func setupNotifier(config *Config) {
	var base notify.BaseNotifier
	switch {
	case config.Notifier.Gotify.Enabled:
		base = notify.NewGotifyNotifier(
			&http.Client{
				Transport: &logger.Transport{},
				Timeout:   time.Minute,
			},
			config.Notifier.Gotify.Endpoint,
			config.Notifier.Gotify.Token,
		)
		log.Info().Msg("using gotify")
	case config.Notifier.Shoutrrr.Enabled:
		if len(config.Notifier.Shoutrrr.URLs) == 0 {
			log.Warn().Msg("using shoutrrr but there is no URLs")
		}
		n, err := notify.NewShoutrrrNotifier(config.Notifier.Shoutrrr.URLs...)
		if err != nil {
			log.Error().Err(err).Msg("invalid shoutrrr URLs, notifications disabled")
			base = notify.NewDummyNotifier()
		} else {
			base = n
			log.Info().Msg("using shoutrrr")
		}
	default:
		base = notify.NewDummyNotifier()
		log.Info().Msg("no notifier configured")
	}

	n, err := notify.NewFormatedNotifier(base, config.Notifier.Formats)
	if err != nil {
		log.Error().Err(err).Msg("invalid notification formats, using defaults")
		n, _ = notify.NewFormatedNotifier(base, notify.DefaultNotificationFormats)
	}
	notifier.Notifier = n
}

func newConfigHandler(runner ffmpeg.Runner) func(ctx context.Context, config *Config) {
	return func(ctx context.Context, config *Config) {
		setupNotifier(config)
		if err := notifier.NotifyConfigReloaded(ctx); err != nil {
			log.Err(err).Msg("notify failed")
		}
		runJobs(ctx, config, runner)
	}
}

// runJobs runs the jobs one after the other, each one at its own interval,
// until ctx is canceled.
func runJobs(ctx context.Context, config *Config, runner ffmpeg.Runner) {
	names := make([]string, 0, len(config.Jobs))
	for name := range config.Jobs {
		names = append(names, name)
		state.DefaultState.SetJobState(
			name,
			state.JobStateIdle,
			state.WithLabels(config.JobParams(name).Labels),
		)
	}
	slices.Sort(names)
	if len(names) == 0 {
		log.Warn().Msg("no job configured")
		<-ctx.Done()
		return
	}

	next := make(map[string]time.Time, len(names))
	for {
		for _, name := range names {
			if ctx.Err() != nil {
				return
			}
			if time.Now().Before(next[name]) {
				continue
			}
			runJob(ctx, name, config.JobParams(name), runner)
			next[name] = time.Now().Add(config.JobInterval(name))
		}

		earliest := next[names[0]]
		for _, name := range names[1:] {
			if next[name].Before(earliest) {
				earliest = next[name]
			}
		}
		timer := time.NewTimer(time.Until(earliest))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func runJob(ctx context.Context, name string, params *job.Params, runner ffmpeg.Runner) {
	log := log.With().Str("job", name).Logger()
	defer func() {
		if err := recover(); err != nil {
			log.Error().Any("panic", err).Str("stack", string(debug.Stack())).Msg("job panicked")
			state.DefaultState.SetJobState(name, state.JobStateFailed)
			state.DefaultState.SetJobError(name, fmt.Errorf("panic: %v", err))
			if err := notifier.NotifyPanicked(context.Background(), err); err != nil {
				log.Err(err).Msg("notify failed")
			}
		}
	}()

	res, err := job.New(runner, params, job.WithName(name)).Run(ctx)
	if res != nil && len(res.Deleted) > 0 {
		if err := notifier.NotifyDeleted(
			context.Background(),
			name,
			params.Labels,
			res.Output,
			res.Deleted,
		); err != nil {
			log.Err(err).Msg("notify failed")
		}
	}
	switch {
	case errors.Is(err, job.ErrNoCandidates):
		log.Debug().Err(err).Msg("nothing to concatenate")
	case errors.Is(err, context.Canceled), err != nil && ctx.Err() != nil:
		log.Info().Err(err).Msg("job canceled")
	case err != nil:
		log.Error().Err(err).Msg("job failed")
		state.DefaultState.SetJobError(name, err)
		if err := notifier.NotifyError(context.Background(), name, params.Labels, err); err != nil {
			log.Err(err).Msg("notify failed")
		}
	case res.DryRun:
		log.Info().Str("output", res.Output).Msg("dry run done")
	default:
		if err := notifier.NotifyFinished(
			context.Background(),
			name,
			params.Labels,
			res.Output,
			res.Inputs,
			res.Size,
			res.Duration,
		); err != nil {
			log.Err(err).Msg("notify failed")
		}
	}
}
