// Package config loads stackradar settings from defaults, an optional config
// file, environment variables and command line flags, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables, e.g. STACKRADAR_LOG_LEVEL
const EnvPrefix = "STACKRADAR"

// DefaultUserAgent is a desktop Chrome user agent, some sites serve reduced
// markup to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config is the complete application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Fingerprints FingerprintsConfig `mapstructure:"fingerprints"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Port overrides the port of Addr when set (PORT on hosted platforms)
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// FetchConfig configures page retrieval
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	Proxy        string        `mapstructure:"proxy"`
	MaxBodySize  int64         `mapstructure:"max_body_size"` // bytes, 0 = unlimited
	MaxRedirects int           `mapstructure:"max_redirects"`
}

// FingerprintsConfig points to an optional custom fingerprints file
type FingerprintsConfig struct {
	CustomFile string `mapstructure:"custom_file"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug/info/warn/error
	Format     string `mapstructure:"format"` // text/json
	Output     string `mapstructure:"output"` // stdout/stderr/file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// flagKeys maps command line flag names to configuration keys
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"timeout":       "fetch.timeout",
	"user-agent":    "fetch.user_agent",
	"proxy":         "fetch.proxy",
	"max-body-size": "fetch.max_body_size",
	"max-redirects": "fetch.max_redirects",
	"fingerprints":  "fingerprints.custom_file",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-output":    "log.output",
	"log-file":      "log.file_path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8087")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.max_body_size", 10<<20)
	v.SetDefault("fetch.max_redirects", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// Load reads the configuration. path may be empty, flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional variables honoured alongside the prefixed ones
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}
	if err := v.BindEnv("fetch.proxy", EnvPrefix+"_FETCH_PROXY", "HTTP_PROXY"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.MaxBodySize < 0 {
		return fmt.Errorf("fetch.max_body_size must not be negative")
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must not be negative")
	}
	if strings.EqualFold(c.Log.Output, "file") && c.Log.FilePath == "" {
		return fmt.Errorf("log.file_path is required when log.output is file")
	}
	return nil
}

// ListenAddr returns the address the API listens on
func (c ServerConfig) ListenAddr() string {
	if c.Port == "" {
		return c.Addr
	}
	host := c.Addr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host + ":" + c.Port
}
