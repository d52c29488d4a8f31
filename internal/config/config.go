// ABOUTME: Config structs, YAML loading, env expansion, validation
// ABOUTME: Auth policy flows are validated against the known stage kinds

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/squall-im/squall/internal/id"
)

// Config represents the complete squall configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address and identity configuration.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8008".
	Addr string `yaml:"addr"`
	// Hostname is the server name used as the domain half of user ids and
	// as the token issuer.
	Hostname string `yaml:"hostname"`
	// BaseURL is advertised to clients in discovery responses.
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// Driver selects the backend, "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `yaml:"dsn"`
}

// AuthConfig holds authentication policy configuration.
type AuthConfig struct {
	// KeyFile is the path to the PEM encoded P-256 signing key.
	KeyFile string `yaml:"key_file"`

	AuthTokenTTL time.Duration `yaml:"-"`
	SessionTTL   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AuthTokenTTLRaw string `yaml:"auth_token_ttl"`
	SessionTTLRaw   string `yaml:"session_ttl"`

	// Flows lists the stage kinds accepted for simple single-step login.
	Flows []string `yaml:"flows"`
	// InteractiveFlows lists the acceptable stage sequences for
	// interactive auth; each inner list is one complete path.
	InteractiveFlows [][]string `yaml:"interactive_flows"`
	// Params carries extra per-stage parameters surfaced to clients
	// during interactive auth, keyed by stage wire identifier.
	Params map[string]map[string]any `yaml:"params"`
}

// RateLimitConfig holds request throttling configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR_NAME} placeholders with environment values.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with the shipped policy: password+token
// simple login and a single token-only interactive flow. The interactive
// default is the token stage because a password stage only verifies against
// accounts that already exist, which new registrations by definition are
// not; password-gated registration stays available by configuration for
// deployments that provision accounts ahead of first login.
func (c *Config) applyDefaults() {
	if c.Auth.AuthTokenTTLRaw == "" {
		c.Auth.AuthTokenTTLRaw = "1h"
	}
	if c.Auth.SessionTTLRaw == "" {
		c.Auth.SessionTTLRaw = "5m"
	}
	if len(c.Auth.Flows) == 0 {
		c.Auth.Flows = []string{string(id.LoginTypePassword), string(id.LoginTypeToken)}
	}
	if len(c.Auth.InteractiveFlows) == 0 {
		c.Auth.InteractiveFlows = [][]string{{string(id.LoginTypeToken)}}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS == 0 {
			c.RateLimit.RPS = 10
		}
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = 20
		}
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	cfg.Auth.AuthTokenTTL, err = time.ParseDuration(cfg.Auth.AuthTokenTTLRaw)
	if err != nil {
		return fmt.Errorf("parsing auth_token_ttl %q: %w", cfg.Auth.AuthTokenTTLRaw, err)
	}

	cfg.Auth.SessionTTL, err = time.ParseDuration(cfg.Auth.SessionTTLRaw)
	if err != nil {
		return fmt.Errorf("parsing session_ttl %q: %w", cfg.Auth.SessionTTLRaw, err)
	}

	return nil
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure
// encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.Hostname == "" {
		return fmt.Errorf("server.hostname is required")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Auth.KeyFile == "" {
		return fmt.Errorf("auth.key_file is required")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	for _, f := range c.Auth.Flows {
		if !id.LoginType(f).Valid() {
			return fmt.Errorf("auth.flows: unknown login type %q", f)
		}
	}
	for _, flow := range c.Auth.InteractiveFlows {
		if len(flow) == 0 {
			return fmt.Errorf("auth.interactive_flows: empty flow")
		}
		for _, f := range flow {
			if !id.LoginType(f).Valid() {
				return fmt.Errorf("auth.interactive_flows: unknown login type %q", f)
			}
		}
	}
	for stage := range c.Auth.Params {
		if !id.LoginType(stage).Valid() {
			return fmt.Errorf("auth.params: unknown login type %q", stage)
		}
	}
	return nil
}

// LoginFlows returns the simple login flows as typed descriptors.
func (c *AuthConfig) LoginFlows() []id.LoginFlow {
	flows := make([]id.LoginFlow, len(c.Flows))
	for i, f := range c.Flows {
		flows[i] = id.LoginFlow{Type: id.LoginType(f)}
	}
	return flows
}

// AllowsLoginType reports whether the stage kind is accepted for simple
// login.
func (c *AuthConfig) AllowsLoginType(t id.LoginType) bool {
	for _, f := range c.Flows {
		if id.LoginType(f) == t {
			return true
		}
	}
	return false
}

// InteractiveLoginFlows returns the interactive flows as typed descriptors.
func (c *AuthConfig) InteractiveLoginFlows() []id.InteractiveFlow {
	flows := make([]id.InteractiveFlow, len(c.InteractiveFlows))
	for i, stages := range c.InteractiveFlows {
		typed := make([]id.LoginType, len(stages))
		for j, s := range stages {
			typed[j] = id.LoginType(s)
		}
		flows[i] = id.InteractiveFlow{Stages: typed}
	}
	return flows
}

// StageParams returns the per-stage client parameters keyed by stage kind.
func (c *AuthConfig) StageParams() map[id.LoginType]any {
	params := make(map[id.LoginType]any, len(c.Params))
	for stage, p := range c.Params {
		params[id.LoginType(stage)] = p
	}
	return params
}
