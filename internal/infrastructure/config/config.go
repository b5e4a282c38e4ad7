// Package config loads gateway settings from flags, FLEET_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-fleet-live/internal/infrastructure/eventsource"
	"go-fleet-live/internal/infrastructure/logger"
)

const envPrefix = "FLEET"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Log      logger.Config  `mapstructure:"log"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig describes the single server-push endpoint every hub
// subscription shares.
type UpstreamConfig struct {
	URL       string                      `mapstructure:"url"`
	Headers   map[string]string           `mapstructure:"headers"` // config file only
	Reconnect eventsource.ReconnectPolicy `mapstructure:"reconnect"`
}

type RelayConfig struct {
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

type TrackerConfig struct {
	Channel   string `mapstructure:"channel"`
	CacheSize int    `mapstructure:"cache_size"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Upstream: UpstreamConfig{
			URL:       "http://localhost:8090/events",
			Headers:   map[string]string{},
			Reconnect: eventsource.DefaultReconnectPolicy(),
		},
		Relay: RelayConfig{
			KeepAlive: 30 * time.Second,
		},
		Tracker: TrackerConfig{
			Channel:   "vehicle-location-update",
			CacheSize: 10000,
		},
		Log: *logger.NewDefaultConfig(),
	}
}

// Load parses args (without the program name) and returns a validated
// configuration.
func Load(args []string) (*Config, error) {
	def := Default()

	fs := pflag.NewFlagSet("fleet-live", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")

	// server config
	fs.String("server.addr", def.Server.Addr, "HTTP listen address")
	fs.Duration("server.read_header_timeout", def.Server.ReadHeaderTimeout, "")
	fs.Duration("server.idle_timeout", def.Server.IdleTimeout, "")
	fs.Duration("server.shutdown_timeout", def.Server.ShutdownTimeout, "graceful shutdown limit")

	// upstream config
	fs.String("upstream.url", def.Upstream.URL, "server-push endpoint shared by all subscriptions")
	fs.Bool("upstream.reconnect.enabled", def.Upstream.Reconnect.Enabled, "reopen a dropped upstream stream")
	fs.Duration("upstream.reconnect.delay", def.Upstream.Reconnect.Delay, "delay before reconnecting unless the server advises one")
	fs.Int("upstream.reconnect.per_minute", def.Upstream.Reconnect.PerMinute, "reconnect attempts allowed per minute, 0 for unlimited")
	fs.Int("upstream.reconnect.burst", def.Upstream.Reconnect.Burst, "")

	// relay config
	fs.Duration("relay.keep_alive", def.Relay.KeepAlive, "keep-alive interval for downstream SSE clients, 0 to disable")

	// tracker config
	fs.String("tracker.channel", def.Tracker.Channel, "channel carrying vehicle positions")
	fs.Int("tracker.cache_size", def.Tracker.CacheSize, "maximum number of tracked vehicles")

	// log config
	fs.String("log.level", def.Log.Level.String(), "debug, info, warn, error or fatal")
	fs.String("log.format", def.Log.Format, "console, text or json")
	fs.String("log.output", def.Log.Output, "stdout, stderr or file")
	fs.String("log.file_path", def.Log.FilePath, "log file when log.output is file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := def
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.URL == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if u, err := url.Parse(c.Upstream.URL); err != nil {
		errs = append(errs, fmt.Errorf("upstream.url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("upstream.url: unsupported scheme %q", u.Scheme))
	} else if u.Host == "" {
		errs = append(errs, errors.New("upstream.url: missing host"))
	}

	if c.Upstream.Reconnect.Delay < 0 {
		errs = append(errs, errors.New("upstream.reconnect.delay must not be negative"))
	}
	if c.Relay.KeepAlive < 0 {
		errs = append(errs, errors.New("relay.keep_alive must not be negative"))
	}
	if c.Tracker.Channel == "" {
		errs = append(errs, errors.New("tracker.channel is required"))
	}
	if c.Tracker.CacheSize <= 0 {
		errs = append(errs, errors.New("tracker.cache_size must be positive"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
