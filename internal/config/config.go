package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvRedisAddr    = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and base expiry settings. The session
// issuer multiplies the base expiry by a fixed factor; see session.Issue.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// BreachConfig holds breached-password lookup settings.
type BreachConfig struct {
	BaseURL  string        `yaml:"base-url"`
	Timeout  time.Duration `yaml:"timeout"`
	FailOpen bool          `yaml:"fail-open"`
}

// TLDConfig holds top-level-domain allow-list settings.
type TLDConfig struct {
	URL             string        `yaml:"url"`
	File            string        `yaml:"file"`
	RefreshInterval time.Duration `yaml:"refresh-interval"`
}

// LoginLimitConfig holds login attempt rate limit settings.
type LoginLimitConfig struct {
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
	RedisAddr     string        `yaml:"redis-addr"`
	RedisPassword string        `yaml:"redis-password"`
	RedisDB       int           `yaml:"redis-db"`
	RedisPrefix   string        `yaml:"redis-prefix"`
}

// AuthConfig aggregates the authentication core settings from the
// config file, with env overrides applied.
type AuthConfig struct {
	AppName       string           `yaml:"app-name"`
	JWT           JWTConfig        `yaml:"jwt"`
	Breach        BreachConfig     `yaml:"breach"`
	TLD           TLDConfig        `yaml:"tld"`
	LoginLimit    LoginLimitConfig `yaml:"login-limit"`
	QRURLTemplate string           `yaml:"qr-url-template"`
}

// Defaults applied when the config file omits or invalidates values.
const (
	defaultJWTExpiry     = 10 * time.Minute
	defaultBreachBaseURL = "https://api.pwnedpasswords.com"
	defaultBreachTimeout = 5 * time.Second
	defaultTLDURL        = "https://data.iana.org/TLD/tlds-alpha-by-domain.txt"
	defaultTLDRefresh    = 24 * time.Hour
	defaultAppName       = "SSSD_APP"
	defaultLoginLimit    = 10
	defaultLoginWindow   = time.Minute
	defaultLoginRLPrefix = "commerce:login"
	defaultQRURLTemplate = "https://api.qrserver.com/v1/create-qr-code/?data=[DATA]&size=300x300&ecc=M"
)

// QRURLPlaceholder is the token replaced with the encoded provisioning
// URI when building the external QR-render URL.
const QRURLPlaceholder = "[DATA]"

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadAuthConfig loads authentication settings from the YAML config
// file. A missing file yields pure defaults; env vars win over file
// values for secrets and connection endpoints.
func LoadAuthConfig(configPath string) (AuthConfig, error) {
	result := AuthConfig{
		AppName: defaultAppName,
		JWT:     JWTConfig{Expiry: defaultJWTExpiry},
		Breach: BreachConfig{
			BaseURL: defaultBreachBaseURL,
			Timeout: defaultBreachTimeout,
		},
		TLD: TLDConfig{
			URL:             defaultTLDURL,
			RefreshInterval: defaultTLDRefresh,
		},
		LoginLimit: LoginLimitConfig{
			Limit:       defaultLoginLimit,
			Window:      defaultLoginWindow,
			RedisPrefix: defaultLoginRLPrefix,
		},
		QRURLTemplate: defaultQRURLTemplate,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg AuthConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		mergeAuthConfig(&result, cfg)
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.JWT.Expiry = expiry
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.LoginLimit.RedisAddr = addr
	}

	if result.JWT.Expiry <= 0 {
		result.JWT.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// mergeAuthConfig overlays non-zero file values onto the defaults.
func mergeAuthConfig(dst *AuthConfig, src AuthConfig) {
	if v := strings.TrimSpace(src.AppName); v != "" {
		dst.AppName = v
	}
	if v := strings.TrimSpace(src.JWT.Secret); v != "" {
		dst.JWT.Secret = v
	}
	if src.JWT.Expiry > 0 {
		dst.JWT.Expiry = src.JWT.Expiry
	}
	if v := strings.TrimSpace(src.Breach.BaseURL); v != "" {
		dst.Breach.BaseURL = v
	}
	if src.Breach.Timeout > 0 {
		dst.Breach.Timeout = src.Breach.Timeout
	}
	dst.Breach.FailOpen = src.Breach.FailOpen
	if v := strings.TrimSpace(src.TLD.URL); v != "" {
		dst.TLD.URL = v
	}
	if v := strings.TrimSpace(src.TLD.File); v != "" {
		dst.TLD.File = v
	}
	if src.TLD.RefreshInterval > 0 {
		dst.TLD.RefreshInterval = src.TLD.RefreshInterval
	}
	if src.LoginLimit.Limit > 0 {
		dst.LoginLimit.Limit = src.LoginLimit.Limit
	}
	if src.LoginLimit.Window > 0 {
		dst.LoginLimit.Window = src.LoginLimit.Window
	}
	if v := strings.TrimSpace(src.LoginLimit.RedisAddr); v != "" {
		dst.LoginLimit.RedisAddr = v
	}
	if v := strings.TrimSpace(src.LoginLimit.RedisPassword); v != "" {
		dst.LoginLimit.RedisPassword = v
	}
	if src.LoginLimit.RedisDB != 0 {
		dst.LoginLimit.RedisDB = src.LoginLimit.RedisDB
	}
	if v := strings.TrimSpace(src.LoginLimit.RedisPrefix); v != "" {
		dst.LoginLimit.RedisPrefix = v
	}
	if v := strings.TrimSpace(src.QRURLTemplate); v != "" {
		dst.QRURLTemplate = v
	}
}
