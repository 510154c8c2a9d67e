package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment overrides, e.g.
// TASKZEN_API_BASE_URL overrides api.base_url.
const envPrefix = "TASKZEN"

// APIConfig holds the REST endpoint settings used by the client.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// SessionConfig holds the client-side session lifetime settings.
type SessionConfig struct {
	// Timeout is the inactivity period after which the session ends.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// WarningThreshold is the remaining time at which a warning is shown.
	WarningThreshold time.Duration `mapstructure:"warning_threshold" yaml:"warning_threshold"`

	// ActivityThrottle is the minimum gap between recorded activity events.
	ActivityThrottle time.Duration `mapstructure:"activity_throttle" yaml:"activity_throttle"`

	// CheckInterval is how often expiry is checked.
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`

	// UseKeyring stores the session token in the OS keyring when true,
	// otherwise the token lives only for the process lifetime.
	UseKeyring bool `mapstructure:"use_keyring" yaml:"use_keyring"`
}

// CacheConfig holds task cache settings.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ClientConfig is the top-level configuration of the TaskZen client.
type ClientConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// DefaultClientConfigPath returns ~/.config/taskzen/config.yaml.
func DefaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskzen", "config.yaml")
}

// DefaultClientConfig returns the client defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Session: SessionConfig{
			Timeout:          30 * time.Minute,
			WarningThreshold: 5 * time.Minute,
			ActivityThrottle: 10 * time.Second,
			CheckInterval:    time.Minute,
			UseKeyring:       true,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}

func setClientDefaults(v *viper.Viper) {
	d := DefaultClientConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout)
	v.SetDefault("api.max_retries", d.API.MaxRetries)
	v.SetDefault("session.timeout", d.Session.Timeout)
	v.SetDefault("session.warning_threshold", d.Session.WarningThreshold)
	v.SetDefault("session.activity_throttle", d.Session.ActivityThrottle)
	v.SetDefault("session.check_interval", d.Session.CheckInterval)
	v.SetDefault("session.use_keyring", d.Session.UseKeyring)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

// LoadClientConfig reads the client configuration from a YAML file.
// A missing file yields the defaults; TASKZEN_* variables override both.
func LoadClientConfig(path string) (*ClientConfig, error) {
	v := newViper(path)
	setClientDefaults(v)

	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	cfg := DefaultClientConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveClientConfig writes cfg to a YAML file at path, creating parent
// directories if needed.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.request_timeout", cfg.API.RequestTimeout.String())
	v.Set("api.max_retries", cfg.API.MaxRetries)
	v.Set("session.timeout", cfg.Session.Timeout.String())
	v.Set("session.warning_threshold", cfg.Session.WarningThreshold.String())
	v.Set("session.activity_throttle", cfg.Session.ActivityThrottle.String())
	v.Set("session.check_interval", cfg.Session.CheckInterval.String())
	v.Set("session.use_keyring", cfg.Session.UseKeyring)
	v.Set("cache.ttl", cfg.Cache.TTL.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// SMTPConfig holds outgoing mail settings. An empty Host disables SMTP
// delivery and verification links are logged instead.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`
}

// AuthConfig holds token signing settings for the server.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// VerificationTTL is how long an e-mail verification link stays valid.
	VerificationTTL time.Duration `mapstructure:"verification_ttl" yaml:"verification_ttl"`
}

// ServerConfig is the top-level configuration of the API server.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath string        `mapstructure:"database_path" yaml:"database_path"`
	PublicURL    string        `mapstructure:"public_url" yaml:"public_url"`
	CORSOrigins  []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Auth         AuthConfig    `mapstructure:"auth" yaml:"auth"`
	SMTP         SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
}

// DefaultServerConfig returns the server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:         ":8080",
		DatabasePath: "taskzen.db",
		PublicURL:    "http://localhost:8080",
		CORSOrigins:  []string{"http://localhost:3000"},
		WriteTimeout: 30 * time.Second,
		Auth: AuthConfig{
			TokenTTL:        24 * time.Hour,
			VerificationTTL: 48 * time.Hour,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
	}
}

// LoadServerConfig reads the server configuration from a YAML file.
// A missing file yields the defaults; TASKZEN_* variables override both.
func LoadServerConfig(path string) (*ServerConfig, error) {
	v := newViper(path)
	d := DefaultServerConfig()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("public_url", d.PublicURL)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.verification_ttl", d.Auth.VerificationTTL)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", d.SMTP.Port)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	cfg := DefaultServerConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, fmt.Errorf("auth.jwt_secret must be set (or %s_AUTH_JWT_SECRET)", envPrefix)
	}
	return cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readConfig loads the file if present. A missing file is not an error.
func readConfig(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &pathErr) || errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}
