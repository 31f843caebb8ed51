// Package config loads ground control settings from defaults, an optional
// config file, GC_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GC_LOG_LEVEL.
const EnvPrefix = "GC"

// Config is the fully resolved configuration.
type Config struct {
	Servers    []string      `mapstructure:"servers"`
	Name       string        `mapstructure:"name"`
	Flag       string        `mapstructure:"flag"`
	MaxWingmen int           `mapstructure:"max_wingmen"`
	Announce   bool          `mapstructure:"announce"`
	Tick       time.Duration `mapstructure:"tick"`
	StatusAddr string        `mapstructure:"status_addr"`
	LogLevel   string        `mapstructure:"log_level"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReplyInterval    time.Duration `mapstructure:"reply_interval"`
	TargetStaleAfter time.Duration `mapstructure:"target_stale_after"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxReconnect     int           `mapstructure:"max_reconnect"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("servers", []string{})
	v.SetDefault("name", "GROUND-CTRL")
	v.SetDefault("flag", "UN")
	v.SetDefault("max_wingmen", 5)
	v.SetDefault("announce", true)
	v.SetDefault("tick", "50ms")
	v.SetDefault("status_addr", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("reply_interval", "1s")
	v.SetDefault("target_stale_after", "60s")
	v.SetDefault("reconnect_backoff", "1s")
	v.SetDefault("max_backoff", "30s")
	v.SetDefault("max_reconnect", 10)
}

// Load resolves the configuration held by v. If file is not empty it is read
// first; its format follows the extension (json, toml, yaml).
func Load(v *viper.Viper, file string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	// A comma separated GC_SERVERS arrives as a single element.
	if len(cfg.Servers) == 1 && strings.Contains(cfg.Servers[0], ",") {
		cfg.Servers = strings.Split(cfg.Servers[0], ",")
	}
	for i, s := range cfg.Servers {
		cfg.Servers[i] = strings.TrimSpace(s)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem with cfg.
func (c Config) Validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server URL is required")
	}
	for _, s := range c.Servers {
		if err := ValidateServerURL(s); err != nil {
			return err
		}
	}
	if c.Name == "" {
		return errors.New("name must not be empty")
	}
	if len(c.Name) > 255 {
		return fmt.Errorf("name is %d bytes, limit 255", len(c.Name))
	}
	if c.MaxWingmen < 1 {
		return fmt.Errorf("max_wingmen must be at least 1, got %d", c.MaxWingmen)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if c.MaxReconnect < 0 {
		return fmt.Errorf("max_reconnect must not be negative, got %d", c.MaxReconnect)
	}
	switch strings.ToUpper(c.LogLevel) {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// ValidateServerURL accepts ws:// and wss:// URLs with a host.
func ValidateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server URL %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	return nil
}
