package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Darkness4/mp4-concat-go/job"
	"github.com/Darkness4/mp4-concat-go/notify"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultInterval is the delay between two runs of a job.
	DefaultInterval = 5 * time.Minute
	reloadDebounce  = 200 * time.Millisecond
)

// ErrInvalidConfig is returned when the configuration is not usable.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the configuration of the watch command.
type Config struct {
	// Interval is the default delay between two runs of a job.
	Interval      time.Duration        `yaml:"interval,omitempty"`
	DefaultParams job.OptionalParams   `yaml:"defaultParams"`
	Jobs          map[string]JobConfig `yaml:"jobs"`
	Notifier      NotifierConfig       `yaml:"notifier"`
}

// JobConfig is the configuration of a job.
type JobConfig struct {
	job.OptionalParams `yaml:",inline"`
	Interval           *time.Duration `yaml:"interval,omitempty"`
}

// NotifierConfig selects the notification backend.
type NotifierConfig struct {
	Gotify struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
		Token    string `yaml:"token"`
	} `yaml:"gotify"`
	Shoutrrr struct {
		Enabled bool     `yaml:"enabled"`
		URLs    []string `yaml:"urls"`
	} `yaml:"shoutrrr"`
	Formats notify.NotificationFormats `yaml:"formats"`
}

// JobInterval returns the interval of the named job.
func (c *Config) JobInterval(name string) time.Duration {
	if j, ok := c.Jobs[name]; ok && j.Interval != nil && *j.Interval > 0 {
		return *j.Interval
	}
	if c.Interval > 0 {
		return c.Interval
	}
	return DefaultInterval
}

// JobParams returns the parameters of the named job: defaults, then the
// config defaults, then the job overrides.
func (c *Config) JobParams(name string) *job.Params {
	params := job.DefaultParams.Clone()
	c.DefaultParams.Override(params)
	if j, ok := c.Jobs[name]; ok {
		j.OptionalParams.Override(params)
	}
	return params
}

func loadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &Config{}
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, filename, err)
	}
	for name, j := range config.Jobs {
		if j.SourcePath == nil && config.DefaultParams.SourcePath == nil {
			return nil, fmt.Errorf("%w: job %q has no sourcePath", ErrInvalidConfig, name)
		}
	}
	return config, nil
}

// ObserveConfig sends the config into configChan, then sends it again each
// time the file changes and is still valid.
//
// The parent directory is watched so that editors replacing the file are
// handled.
func ObserveConfig(ctx context.Context, filename string, configChan chan<- *Config) error {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	send := func() error {
		config, err := loadConfig(abs)
		if err != nil {
			log.Error().Err(err).Str("file", abs).Msg("failed to load config")
			return nil
		}
		select {
		case configChan <- config:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := send(); err != nil {
		return err
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs ||
				!event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			debounce.Reset(reloadDebounce)
		case <-debounce.C:
			log.Info().Str("file", abs).Msg("new config detected")
			if err := send(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// ConfigReloader runs handleConfig with the latest config.
//
// The previous handler is canceled, and awaited, before the next one starts.
func ConfigReloader(
	ctx context.Context,
	configChan <-chan *Config,
	handleConfig func(ctx context.Context, config *Config),
) error {
	var configContext context.Context
	var configCancel context.CancelFunc
	// Channel used to assure only one handleConfig can be launched
	doneChan := make(chan struct{})

	for {
		select {
		case newConfig := <-configChan:
			if configContext != nil && configCancel != nil {
				configCancel()
				select {
				case <-doneChan:
					log.Info().Msg("loading new config")
				case <-time.After(30 * time.Second):
					log.Fatal().Msg("couldn't load a new config because of a deadlock")
				}
			}
			configContext, configCancel = context.WithCancel(ctx)
			go func(ctx context.Context) {
				log.Info().Msg("loaded new config")
				handleConfig(ctx, newConfig)
				doneChan <- struct{}{}
			}(configContext)
		case <-ctx.Done():
			if configContext == nil {
				return ctx.Err()
			}
			configCancel()

			// This assure that the `handleConfig` ends gracefully
			select {
			case <-doneChan:
				log.Info().Msg("config reloader graceful exit")
			case <-time.After(30 * time.Second):
				log.Fatal().Msg("config reloader force fatal exit")
			}

			// The context was canceled, exit the loop
			return ctx.Err()
		}
	}
}
