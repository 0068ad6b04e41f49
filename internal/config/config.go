package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the startup configuration. It is read once at boot and
// immutable afterwards.
type Config struct {
	Addr string `yaml:"addr"`

	Auth  AuthConfig  `yaml:"auth"`
	Log   LogConfig   `yaml:"log"`
	DB    DBConfig    `yaml:"db"`
	OAuth OAuthConfig `yaml:"oauth"`
}

// AuthConfig holds the token signing secret and lifetimes. TTLs are duration
// strings in the form Nm, Nh or Nd.
type AuthConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  string `yaml:"access_token_ttl"`
	RefreshTokenTTL string `yaml:"refresh_token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DBConfig struct {
	DSN string `yaml:"dsn"`
}

// ProviderConfig holds one OAuth provider's client credentials. A provider
// with an empty client id is disabled.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type OAuthConfig struct {
	RedirectBaseURL string         `yaml:"redirect_base_url"`
	Google          ProviderConfig `yaml:"google"`
	Facebook        ProviderConfig `yaml:"facebook"`
	Apple           ProviderConfig `yaml:"apple"`
}

const (
	defaultAddr       = ":8080"
	defaultAccessTTL  = "15m"
	defaultRefreshTTL = "7d"
)

// Load reads the YAML file at path (optional), applies environment
// overrides and validates. Environment variables win over file values.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr: defaultAddr,
		Auth: AuthConfig{
			AccessTokenTTL:  defaultAccessTTL,
			RefreshTokenTTL: defaultRefreshTTL,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if _, err := ParseTTL(cfg.Auth.AccessTokenTTL); err != nil {
		return nil, fmt.Errorf("access_token_ttl: %w", err)
	}
	if _, err := ParseTTL(cfg.Auth.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("refresh_token_ttl: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Addr, "COURSEBASE_ADDR")
	overlay(&cfg.Auth.Secret, "COURSEBASE_AUTH_SECRET")
	overlay(&cfg.Auth.AccessTokenTTL, "COURSEBASE_ACCESS_TOKEN_TTL")
	overlay(&cfg.Auth.RefreshTokenTTL, "COURSEBASE_REFRESH_TOKEN_TTL")
	overlay(&cfg.Log.Level, "COURSEBASE_LOG_LEVEL")
	overlay(&cfg.Log.Format, "COURSEBASE_LOG_FORMAT")
	overlay(&cfg.DB.DSN, "COURSEBASE_PG_DSN")
	overlay(&cfg.OAuth.RedirectBaseURL, "COURSEBASE_OAUTH_REDIRECT_BASE_URL")
	overlay(&cfg.OAuth.Google.ClientID, "COURSEBASE_OAUTH_GOOGLE_CLIENT_ID")
	overlay(&cfg.OAuth.Google.ClientSecret, "COURSEBASE_OAUTH_GOOGLE_CLIENT_SECRET")
	overlay(&cfg.OAuth.Facebook.ClientID, "COURSEBASE_OAUTH_FACEBOOK_CLIENT_ID")
	overlay(&cfg.OAuth.Facebook.ClientSecret, "COURSEBASE_OAUTH_FACEBOOK_CLIENT_SECRET")
	overlay(&cfg.OAuth.Apple.ClientID, "COURSEBASE_OAUTH_APPLE_CLIENT_ID")
	overlay(&cfg.OAuth.Apple.ClientSecret, "COURSEBASE_OAUTH_APPLE_CLIENT_SECRET")
}

// AccessTokenTTL returns the parsed access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	d, _ := ParseTTL(c.Auth.AccessTokenTTL)
	return d
}

// RefreshTokenTTL returns the parsed refresh token lifetime.
func (c *Config) RefreshTokenTTL() time.Duration {
	d, _ := ParseTTL(c.Auth.RefreshTokenTTL)
	return d
}

var ttlPattern = regexp.MustCompile(`^(\d+)(m|h|d)$`)

// ParseTTL parses duration strings of the form Nm, Nh or Nd. The day suffix
// is required by token lifetimes and is not understood by
// time.ParseDuration, hence the custom parser.
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q (want Nm, Nh or Nd)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}
