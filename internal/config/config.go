package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/psantana5/callguard/pkg/backend"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/psantana5/callguard/pkg/journal"
	"github.com/psantana5/callguard/pkg/tracing"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Locale   string                  `mapstructure:"locale"`
	Log      LogConfig               `mapstructure:"log"`
	Backend  backend.Config          `mapstructure:"backend"`
	Journal  journal.Config          `mapstructure:"journal"`
	Tracing  tracing.Config          `mapstructure:"tracing"`
	Server   ServerConfig            `mapstructure:"server"`
	Defaults PolicyConfig            `mapstructure:"policy"`
	Policies map[string]PolicyConfig `mapstructure:"policies"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	Dir   string `mapstructure:"dir"`
}

// ServerConfig holds the HTTP front door settings.
type ServerConfig struct {
	Addr  string  `mapstructure:"addr"`
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	// APIKeyHash is the bcrypt hash of the bearer key required on /v1.
	// Empty disables authentication.
	APIKeyHash string `mapstructure:"api_key_hash"`
}

// PolicyConfig overrides parts of a guard policy. Unset fields inherit.
type PolicyConfig struct {
	Timeout        *time.Duration `mapstructure:"timeout"`
	Retries        *int           `mapstructure:"retries"`
	RetryDelay     *time.Duration `mapstructure:"retry_delay"`
	ShowErrorToast *bool          `mapstructure:"show_error_toast"`
	SingleFlight   *bool          `mapstructure:"single_flight"`
}

// EnvPrefix prefixes environment overrides, e.g. CALLGUARD_BACKEND_BASE_URL.
const EnvPrefix = "CALLGUARD"

func setDefaults(v *viper.Viper) {
	v.SetDefault("locale", "en")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.dir", "")

	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.maps_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.rps", 20.0)
	v.SetDefault("backend.burst", 40)

	v.SetDefault("journal.type", "memory")
	v.SetDefault("journal.path", filepath.Join(os.Getenv("HOME"), ".callguard", "journal.db"))
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.max_entries", 1000)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "callguard")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.rps", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.api_key_hash", "")

	v.SetDefault("policy.timeout", guard.DefaultTimeout.String())
	v.SetDefault("policy.retries", guard.DefaultRetries)
	v.SetDefault("policy.retry_delay", guard.DefaultRetryDelay.String())
	v.SetDefault("policy.show_error_toast", true)
	v.SetDefault("policy.single_flight", false)
}

// New returns a viper instance with defaults, env overrides and, when
// present, the config file. path may be empty to search the default
// locations ($HOME/.callguard/config.yaml, ./config.yaml).
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".callguard"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from file and env.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every configured policy.
func (c *Config) Validate() error {
	if err := c.Policy("default").Validate(); err != nil {
		return fmt.Errorf("policy defaults: %w", err)
	}
	for _, name := range c.PolicyNames() {
		if err := c.Policy(name).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Policy returns the guard policy for the named call site: the built-in
// defaults, then the "policy" section, then "policies.<name>".
// Dots in name map to underscores in config keys ("bookings.list" ->
// policies.bookings_list).
func (c *Config) Policy(name string) guard.Policy {
	p := guard.DefaultPolicy(name)
	c.Defaults.apply(&p)
	if override, ok := c.Policies[policyKey(name)]; ok {
		override.apply(&p)
	}
	return p
}

// PolicyNames lists the call sites with explicit overrides, sorted.
func (c *Config) PolicyNames() []string {
	names := make([]string, 0, len(c.Policies))
	for k := range c.Policies {
		names = append(names, strings.ReplaceAll(k, "_", "."))
	}
	sort.Strings(names)
	return names
}

func policyKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, ".", "_"))
}

func (pc PolicyConfig) apply(p *guard.Policy) {
	if pc.Timeout != nil {
		p.Timeout = *pc.Timeout
	}
	if pc.Retries != nil {
		p.Retries = *pc.Retries
	}
	if pc.RetryDelay != nil {
		p.RetryDelay = *pc.RetryDelay
	}
	if pc.ShowErrorToast != nil {
		p.ShowErrorToast = *pc.ShowErrorToast
	}
	if pc.SingleFlight != nil {
		p.SingleFlight = *pc.SingleFlight
	}
}
