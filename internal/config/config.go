// ABOUTME: Configuration loading and parsing for authgate
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultBinding       = "cookie"
	DefaultCookieName    = "SESSIONID"
	DefaultHeaderName    = "Authorization"
	DefaultHeaderScheme  = "Bearer"
	DefaultTokenTTL      = time.Hour
	DefaultOrderTokenTTL = time.Hour
)

// Config represents the complete authgate configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Users     []UserSeed      `yaml:"users" toml:"users"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTP over TLS with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose HTTP publicly (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds token issuance and verification settings
type AuthConfig struct {
	Binding      string `yaml:"binding" toml:"binding"` // "cookie" or "header"
	CookieName   string `yaml:"cookie_name" toml:"cookie_name"`
	HeaderName   string `yaml:"header_name" toml:"header_name"`
	HeaderScheme string `yaml:"header_scheme" toml:"header_scheme"`
	Issuer       string `yaml:"issuer" toml:"issuer"`
	SetCookie    bool   `yaml:"set_cookie" toml:"set_cookie"`

	TokenTTL      time.Duration `yaml:"-" toml:"-"`
	OrderTokenTTL time.Duration `yaml:"-" toml:"-"`
	Leeway        time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TokenTTLRaw      string `yaml:"token_ttl" toml:"token_ttl"`
	OrderTokenTTLRaw string `yaml:"order_token_ttl" toml:"order_token_ttl"`
	LeewayRaw        string `yaml:"leeway" toml:"leeway"`
}

// UserSeed is an account created at startup if it does not exist yet
type UserSeed struct {
	Username string   `yaml:"username" toml:"username"`
	Password string   `yaml:"password" toml:"password"`
	Roles    []string `yaml:"roles" toml:"roles"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration bytes, applies defaults and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/authgate/gateway.yaml, falling back
// to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "authgate", "gateway.yaml")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "authgate", "gateway.yaml")
}

// ResolvePath picks the config path: explicit flag, then AUTHGATE_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("AUTHGATE_CONFIG"); env != "" {
		return env
	}
	return DefaultPath()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Auth.Binding == "" {
		c.Auth.Binding = DefaultBinding
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}
	if c.Auth.HeaderName == "" {
		c.Auth.HeaderName = DefaultHeaderName
	}
	if c.Auth.HeaderScheme == "" {
		c.Auth.HeaderScheme = DefaultHeaderScheme
	}
	if c.Auth.TokenTTLRaw == "" {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Auth.OrderTokenTTLRaw == "" {
		c.Auth.OrderTokenTTL = DefaultOrderTokenTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Auth.Binding {
	case "cookie", "header":
	default:
		return fmt.Errorf("auth.binding must be \"cookie\" or \"header\", got %q", c.Auth.Binding)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.OrderTokenTTL <= 0 {
		return fmt.Errorf("auth.order_token_ttl must be positive")
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("auth.leeway must not be negative")
	}

	for i, u := range c.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("users[%d]: username and password are required", i)
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Auth.OrderTokenTTLRaw != "" {
		cfg.Auth.OrderTokenTTL, err = time.ParseDuration(cfg.Auth.OrderTokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing order_token_ttl %q: %w", cfg.Auth.OrderTokenTTLRaw, err)
		}
	}

	if cfg.Auth.LeewayRaw != "" {
		cfg.Auth.Leeway, err = time.ParseDuration(cfg.Auth.LeewayRaw)
		if err != nil {
			return fmt.Errorf("parsing leeway %q: %w", cfg.Auth.LeewayRaw, err)
		}
	}

	return nil
}
