// Package config provides configuration parsing and validation for pingdrop.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete pingdrop configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" toml:"log"`
	Client ClientConfig `yaml:"client" toml:"client"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ClientConfig contains sender settings.
type ClientConfig struct {
	Destination string        `yaml:"destination" toml:"destination"`
	PayloadSize int           `yaml:"payload_size" toml:"payload_size"`
	Interval    time.Duration `yaml:"interval" toml:"interval"`
	AckTimeout  time.Duration `yaml:"ack_timeout" toml:"ack_timeout"`
	MaxRetries  int           `yaml:"max_retries" toml:"max_retries"`
	BufferSize  int           `yaml:"buffer_size" toml:"buffer_size"`
}

// ServerConfig contains receiver settings.
type ServerConfig struct {
	OutputDir     string        `yaml:"output_dir" toml:"output_dir"`
	ListenTimeout time.Duration `yaml:"listen_timeout" toml:"listen_timeout"`
	SuppressEcho  bool          `yaml:"suppress_echo" toml:"suppress_echo"`
	KeepListening bool          `yaml:"keep_listening" toml:"keep_listening"`
	AllowedCIDRs  []string      `yaml:"allowed_cidrs" toml:"allowed_cidrs"`
	Metrics       MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig defines the receiver's health and metrics HTTP server.
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	Address      string        `yaml:"address" toml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Client: ClientConfig{
			PayloadSize: 512,
			Interval:    50 * time.Millisecond,
			AckTimeout:  2 * time.Second,
			MaxRetries:  5,
			BufferSize:  64,
		},
		Server: ServerConfig{
			OutputDir:     ".",
			ListenTimeout: 60 * time.Second,
			SuppressEcho:  true,
			AllowedCIDRs:  []string{},
			Metrics: MetricsConfig{
				Enabled:      false,
				Address:      "127.0.0.1:9464",
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			},
		},
	}
}

// Load reads and parses a configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ParseTOML parses configuration from TOML bytes.
func ParseTOML(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	md, err := toml.Decode(expanded, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to parse config: unknown key %q", undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default; unknown variables are left as is.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors. The client destination is
// not required here since only the send command needs it.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Client.Destination != "" {
		if ip := net.ParseIP(c.Client.Destination); ip == nil || ip.To4() == nil {
			errs = append(errs, fmt.Sprintf("client.destination must be an IPv4 address: %s", c.Client.Destination))
		}
	}
	if c.Client.PayloadSize <= 9 {
		errs = append(errs, "client.payload_size must be greater than 9")
	}
	if c.Client.PayloadSize > 65507 {
		errs = append(errs, "client.payload_size must not exceed 65507")
	}
	if c.Client.Interval < 0 {
		errs = append(errs, "client.interval must not be negative")
	}
	if c.Client.AckTimeout <= 0 {
		errs = append(errs, "client.ack_timeout must be positive")
	}
	if c.Client.MaxRetries < 1 {
		errs = append(errs, "client.max_retries must be at least 1")
	}
	if c.Client.BufferSize < 1 {
		errs = append(errs, "client.buffer_size must be at least 1")
	}

	if c.Server.OutputDir == "" {
		errs = append(errs, "server.output_dir is required")
	}
	if c.Server.ListenTimeout < 0 {
		errs = append(errs, "server.listen_timeout must not be negative")
	}
	for i, cidr := range c.Server.AllowedCIDRs {
		if !isValidCIDR(cidr) {
			errs = append(errs, fmt.Sprintf("server.allowed_cidrs[%d]: invalid CIDR: %s", i, cidr))
		}
	}
	if c.Server.Metrics.Enabled && c.Server.Metrics.Address == "" {
		errs = append(errs, "server.metrics.address is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

func isValidCIDR(cidr string) bool {
	_, _, err := net.ParseCIDR(cidr)
	return err == nil
}

// String returns the configuration as YAML (for debugging).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
