package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ayush/sessionauth/internal/passhash"
)

// Config holds all service configuration. Values come from defaults, an
// optional config.yaml in the working directory, then environment variables.
type Config struct {
	AppEnv   string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	Port     string `mapstructure:"port"`

	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDB       string `mapstructure:"mongo_db"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	LoginPath           string        `mapstructure:"login_path"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"`
	PermanentSessionTTL time.Duration `mapstructure:"permanent_session_ttl"`
	CookieSecure        bool          `mapstructure:"cookie_secure"`
	AllowedOrigins      []string      `mapstructure:"allowed_origins"`

	PasswordSchemes     []string `mapstructure:"password_schemes"`
	PasswordDeprecated  []string `mapstructure:"password_deprecated"`
	PBKDF2MinRounds     int      `mapstructure:"pbkdf2_min_rounds"`
	PBKDF2MaxRounds     int      `mapstructure:"pbkdf2_max_rounds"`
	PBKDF2DefaultRounds int      `mapstructure:"pbkdf2_default_rounds"`
	BcryptCost          int      `mapstructure:"bcrypt_cost"`
}

var defaults = map[string]any{
	"app_env":   "production",
	"log_level": "info",
	"port":      "8080",

	"postgres_dsn":   "",
	"mongo_uri":      "",
	"mongo_db":       "sessionauth",
	"redis_addr":     "redis:6379",
	"redis_password": "",
	"redis_db":       0,

	"login_path":            "/login",
	"session_ttl":           24 * time.Hour,
	"permanent_session_ttl": 31 * 24 * time.Hour,
	"cookie_secure":         false,
	"allowed_origins":       []string{"http://localhost:5173", "http://localhost:3000"},

	"password_schemes":      []string{passhash.PBKDF2SHA512Name, passhash.PlaintextName},
	"password_deprecated":   []string{passhash.PlaintextName},
	"pbkdf2_min_rounds":     10000,
	"pbkdf2_max_rounds":     50000,
	"pbkdf2_default_rounds": 15000,
	"bcrypt_cost":           12,
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.PasswordSchemes = cleanList(cfg.PasswordSchemes)
	cfg.PasswordDeprecated = cleanList(cfg.PasswordDeprecated)
	cfg.AllowedOrigins = cleanList(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return errors.New("config: POSTGRES_DSN is required")
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("config: LOGIN_PATH %q must be an absolute path", c.LoginPath)
	}
	if c.SessionTTL <= 0 || c.PermanentSessionTTL <= 0 {
		return errors.New("config: session lifetimes must be positive")
	}
	if _, err := passhash.New(c.PasswordPolicy()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// PasswordPolicy maps the flat settings onto a hash scheme chain.
func (c *Config) PasswordPolicy() passhash.Config {
	return passhash.Config{
		Schemes:    c.PasswordSchemes,
		Deprecated: c.PasswordDeprecated,
		PBKDF2: passhash.PBKDF2Config{
			MinRounds:     c.PBKDF2MinRounds,
			MaxRounds:     c.PBKDF2MaxRounds,
			DefaultRounds: c.PBKDF2DefaultRounds,
		},
		BcryptCost: c.BcryptCost,
	}
}

// cleanList trims entries and drops empties, so "a, b," reads as [a b].
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
