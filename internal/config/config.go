// Package config loads server settings from the environment and an optional
// YAML file, and watches that file for changes to the reloadable settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in Transport.Enabled.
const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable-http"
	TransportStdio      = "stdio"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Transport Transport `yaml:"transport"`
	KeepAlive KeepAlive `yaml:"keepAlive"`
	Storage   Storage   `yaml:"storage"`
	Auth      Auth      `yaml:"auth"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Name         string `env:"MCP_SERVER_NAME,default=mcp-server" yaml:"name"`
	Version      string `env:"MCP_SERVER_VERSION,default=0.1.0" yaml:"version"`
	Instructions string `env:"MCP_SERVER_INSTRUCTIONS" yaml:"instructions"`
	Addr         string `env:"MCP_LISTEN_ADDR,default=:3000" yaml:"addr"`
	APIPrefix    string `env:"MCP_API_PREFIX" yaml:"apiPrefix"`
}

type Transport struct {
	// Enabled lists the transports to serve, separated by commas or semicolons.
	Enabled          string `env:"MCP_TRANSPORTS,default=sse;streamable-http;stdio" yaml:"enabled"`
	SSEEndpoint      string `env:"MCP_SSE_ENDPOINT,default=sse" yaml:"sseEndpoint"`
	MessagesEndpoint string `env:"MCP_MESSAGES_ENDPOINT,default=messages" yaml:"messagesEndpoint"`
	MCPEndpoint      string `env:"MCP_ENDPOINT,default=mcp" yaml:"mcpEndpoint"`
	Stateless        bool   `env:"MCP_STATELESS,default=true" yaml:"stateless"`
	JSONResponse     bool   `env:"MCP_JSON_RESPONSE,default=true" yaml:"jsonResponse"`
}

// KeepAlive settings are applied again whenever the watched file changes.
type KeepAlive struct {
	Enabled  bool          `env:"MCP_PING_ENABLED,default=true" yaml:"enabled"`
	Interval time.Duration `env:"MCP_PING_INTERVAL,default=30s" yaml:"interval"`
}

type Storage struct {
	Backend   string `env:"STORAGE_BACKEND,default=memory" yaml:"backend"`
	MaxItems  int    `env:"STORAGE_MAX_ITEMS,default=10000" yaml:"maxItems"`
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379" yaml:"redisAddr"`
	RedisDB   int    `env:"REDIS_DB,default=0" yaml:"redisDB"`
	KeyPrefix string `env:"STORAGE_KEY_PREFIX,default=mcp:storage:" yaml:"keyPrefix"`
}

// Auth enables the bearer guard on the HTTP transports when Issuer is set.
type Auth struct {
	Issuer     string `env:"AUTH_ISSUER" yaml:"issuer"`
	Audience   string `env:"AUTH_AUDIENCE" yaml:"audience"`
	JWKSURL    string `env:"AUTH_JWKS_URL" yaml:"jwksURL"`
	HMACSecret string `env:"AUTH_HMAC_SECRET" yaml:"hmacSecret"`
	Scopes     string `env:"AUTH_REQUIRED_SCOPES" yaml:"scopes"`
}

type Telemetry struct {
	MetricsEnabled bool    `env:"METRICS_ENABLED,default=true" yaml:"metricsEnabled"`
	MetricsPath    string  `env:"METRICS_PATH,default=/metrics" yaml:"metricsPath"`
	OTLPEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlpEndpoint"`
	OTLPInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE,default=false" yaml:"otlpInsecure"`
	Environment    string  `env:"DEPLOYMENT_ENVIRONMENT,default=development" yaml:"environment"`
	SampleRate     float64 `env:"OTEL_SAMPLE_RATE,default=1" yaml:"sampleRate"`
}

// Log level and format are reloadable.
type Log struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=text" yaml:"format"`
}

// Load reads the environment, then overlays the YAML file at path when path
// is non-empty. Keys present in the file take precedence.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if len(c.Transports()) == 0 {
		return errors.New("config: at least one transport must be enabled")
	}
	for _, t := range c.Transports() {
		switch t {
		case TransportSSE, TransportStreamable, TransportStdio:
		default:
			return fmt.Errorf("config: unknown transport %q", t)
		}
	}
	switch c.Storage.Backend {
	case BackendMemory:
		if c.Storage.MaxItems <= 0 {
			return errors.New("config: storage.maxItems must be positive")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("config: storage.redisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Auth.Issuer != "" && c.Auth.Audience == "" {
		return errors.New("config: auth.audience is required when auth.issuer is set")
	}
	if c.Auth.HMACSecret != "" && c.Auth.JWKSURL != "" {
		return errors.New("config: auth.hmacSecret and auth.jwksURL are mutually exclusive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.New("config: telemetry.sampleRate must be between 0 and 1")
	}
	return nil
}

// Transports returns the enabled transport names in declaration order.
func (c *Config) Transports() []string {
	return splitList(c.Transport.Enabled)
}

// Enabled reports whether the named transport is enabled.
func (c *Config) Enabled(transport string) bool {
	for _, t := range c.Transports() {
		if t == transport {
			return true
		}
	}
	return false
}

// RequiredScopes splits Scopes like Transport.Enabled.
func (a Auth) RequiredScopes() []string {
	return splitList(a.Scopes)
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", l.Level)
	}
	return lvl, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == ' ' })
}
