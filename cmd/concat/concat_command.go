// Package concat provides the command that concatenates the segments of a
// directory into a single file.
package concat

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Darkness4/mp4-concat-go/ffmpeg"
	"github.com/Darkness4/mp4-concat-go/job"
	"github.com/Darkness4/mp4-concat-go/video/concat"
	"github.com/Darkness4/mp4-concat-go/video/naming"
	"github.com/Darkness4/mp4-concat-go/video/segment"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
)

const envPrefix = "MP4_CONCAT_"

var (
	params       = *job.DefaultParams.Clone()
	ffmpegBinary string
	showProgress bool
)

// newRunner builds the ffmpeg runner. Replaced in tests.
var newRunner = func(binary string, opts ...ffmpeg.Option) ffmpeg.Runner {
	return ffmpeg.New(append([]ffmpeg.Option{ffmpeg.WithBinary(binary)}, opts...)...)
}

func env(name string) []string {
	return []string{envPrefix + name}
}

// Flags are the flags of the concat command. They are also used by the root
// application, which runs Action by default.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:        "sourcePath",
		Aliases:     []string{"i", "source-path"},
		Value:       job.DefaultParams.SourcePath,
		Category:    "Selection:",
		Usage:       "Directory containing the segments.",
		EnvVars:     env("SOURCE_PATH"),
		Destination: &params.SourcePath,
	},
	&cli.StringFlag{
		Name:        "filter",
		Aliases:     []string{"f"},
		Value:       job.DefaultParams.Filter,
		Category:    "Selection:",
		Usage:       "Regular expression matched against the file names.",
		EnvVars:     env("FILTER"),
		Destination: &params.Filter,
	},
	&cli.StringFlag{
		Name:       "sort",
		Aliases:    []string{"s"},
		Value:      job.DefaultParams.Sort.String(),
		HasBeenSet: true,
		Category:   "Selection:",
		Usage: `Order used to select the segments when a limit is set.
Available options: reverse (newest first), normal, natural.
Segments are always concatenated in chronological order.`,
		EnvVars: env("SORT"),
		Action: func(_ *cli.Context, s string) error {
			mode, err := segment.ParseSortMode(s)
			if err != nil {
				log.Error().Str("sort", s).Msg("unknown sort mode")
				return err
			}
			params.Sort = mode
			return nil
		},
	},
	&cli.IntFlag{
		Name:        "numOfConcatFiles",
		Aliases:     []string{"n", "limit"},
		Value:       job.DefaultParams.NumOfConcatFiles,
		Category:    "Selection:",
		Usage:       "Maximum number of segments to concatenate. 0 means all.",
		EnvVars:     env("NUM_OF_CONCAT_FILES"),
		Destination: &params.NumOfConcatFiles,
	},
	&cli.IntFlag{
		Name:        "min-files",
		Value:       job.DefaultParams.MinFiles,
		Category:    "Selection:",
		Usage:       "Minimum number of segments required to run.",
		EnvVars:     env("MIN_FILES"),
		Destination: &params.MinFiles,
	},
	&cli.StringFlag{
		Name:    "outputPath",
		Aliases: []string{"o", "output-path"},
		Value:   job.DefaultParams.OutputPath,
		Usage: `Output file. If it is a directory (existing or ending with a separator),
a name is derived from the segments.`,
		Category:    "Output:",
		EnvVars:     env("OUTPUT_PATH"),
		Destination: &params.OutputPath,
	},
	&cli.StringFlag{
		Name:       "name-mode",
		Value:      job.DefaultParams.NameMode.String(),
		HasBeenSet: true,
		Category:   "Output:",
		Usage: `How derived names are built.
Available options: full (every segment), firstlast (first and last segment).`,
		EnvVars: env("NAME_MODE"),
		Action: func(_ *cli.Context, s string) error {
			mode, err := naming.ParseMode(s)
			if err != nil {
				log.Error().Str("name-mode", s).Msg("unknown name mode")
				return err
			}
			params.NameMode = mode
			return nil
		},
	},
	&cli.StringFlag{
		Name:        "extension",
		Value:       job.DefaultParams.Extension,
		Category:    "Output:",
		Usage:       "Extension of derived names. m4a produces an audio-only file.",
		EnvVars:     env("EXTENSION"),
		Destination: &params.Extension,
	},
	&cli.BoolFlag{
		Name:        "overwrite",
		Aliases:     []string{"y"},
		Category:    "Output:",
		Usage:       "Overwrite the output if it exists.",
		EnvVars:     env("OVERWRITE"),
		Destination: &params.Overwrite,
	},
	&cli.BoolFlag{
		Name:        "preserve-times",
		Category:    "Output:",
		Usage:       "Set the output timestamps to those of the newest segment.",
		EnvVars:     env("PRESERVE_TIMES"),
		Destination: &params.PreserveTimes,
	},
	&cli.StringFlag{
		Name:       "method",
		Value:      job.DefaultParams.Method.String(),
		HasBeenSet: true,
		Category:   "FFmpeg:",
		Usage: `Concatenation method.
Available options: demuxer (list file, works with mp4), protocol (byte-level, MPEG-TS only).`,
		EnvVars: env("METHOD"),
		Action: func(_ *cli.Context, s string) error {
			m, err := concat.ParseMethod(s)
			if err != nil {
				log.Error().Str("method", s).Msg("unknown concat method")
				return err
			}
			params.Method = m
			return nil
		},
	},
	&cli.BoolFlag{
		Name:        "faststart",
		Category:    "FFmpeg:",
		Usage:       "Move the moov atom to the beginning of the output.",
		EnvVars:     env("FASTSTART"),
		Destination: &params.FastStart,
	},
	&cli.StringFlag{
		Name:        "ffmpeg",
		Value:       "ffmpeg",
		Category:    "FFmpeg:",
		Usage:       "Path or name of the ffmpeg binary.",
		EnvVars:     env("FFMPEG"),
		Destination: &ffmpegBinary,
	},
	&cli.BoolFlag{
		Name:        "progress",
		Category:    "FFmpeg:",
		Usage:       "Show a progress bar.",
		EnvVars:     env("PROGRESS"),
		Destination: &showProgress,
	},
	&cli.BoolFlag{
		Name:        "deleteAfterConcat",
		Aliases:     []string{"d", "delete-after-concat"},
		Category:    "Cleaning:",
		Usage:       "Delete the segments once the output is written and non-empty.",
		EnvVars:     env("DELETE_AFTER_CONCAT"),
		Destination: &params.DeleteAfterConcat,
	},
	&cli.BoolFlag{
		Name:        "dry-run",
		Category:    "Cleaning:",
		Usage:       "Only print what would be done.",
		EnvVars:     env("DRY_RUN"),
		Destination: &params.DryRun,
	},
}

// Action runs a single concatenation with the parsed flags.
func Action(cCtx *cli.Context) error {
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

	if cCtx.Args().Present() {
		log.Error().Strs("args", cCtx.Args().Slice()).Msg("unexpected arguments")
		return errors.New("unexpected arguments, use --sourcePath")
	}

	if !params.DryRun {
		path, err := ffmpeg.LookPath(ffmpegBinary)
		if err != nil {
			log.Error().Err(err).Str("ffmpeg", ffmpegBinary).Msg("ffmpeg is required")
			return err
		}
		ffmpegBinary = path
	}

	var (
		runnerOpts []ffmpeg.Option
		jobOpts    []job.Option
		bar        *progressbar.ProgressBar
	)
	if showProgress && !params.DryRun {
		bar = progressbar.DefaultBytes(-1, "concatenating")
		jobOpts = append(jobOpts, job.WithOnPlan(func(inputs []string, _ string) {
			var total int64
			for _, in := range inputs {
				if fi, err := os.Stat(in); err == nil {
					total += fi.Size()
				}
			}
			bar.ChangeMax64(total)
		}))
		runnerOpts = append(runnerOpts, ffmpeg.WithProgress(func(key, value string) {
			switch key {
			case "total_size":
				if n, err := strconv.ParseInt(value, 10, 64); err == nil {
					_ = bar.Set64(n)
				}
			case "progress":
				if value == "end" {
					_ = bar.Finish()
				}
			}
		}))
	}

	log.Info().Stringer("params", &params).Msg("running")
	res, err := job.New(newRunner(ffmpegBinary, runnerOpts...), &params, jobOpts...).Run(ctx)
	if bar != nil {
		if err != nil {
			_ = bar.Clear()
		} else {
			_ = bar.Finish()
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("concat failed")
		return err
	}

	log.Info().
		Str("output", res.Output).
		Int64("size", res.Size).
		Int("inputs", len(res.Inputs)).
		Strs("deleted", res.Deleted).
		Bool("dryRun", res.DryRun).
		Dur("duration", res.Duration).
		Msg("done")
	return nil
}

// Command is the command for concatenating the segments of a directory.
var Command = &cli.Command{
	Name:   "concat",
	Usage:  "Concatenate the segments of a directory into a single file.",
	Flags:  Flags,
	Action: Action,
}
