package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "MOVIECLUB"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = DriverSQLite
	defaultDatabasePath    = "movieclub.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "movieclub_session"
	defaultSessionTTLHours = 24 * 365
	defaultSiteURL         = "http://localhost:8080"
	defaultSMTPPort        = 587
	defaultTMDBBaseURL     = "https://api.themoviedb.org/3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	SessionSigningSecret string
	SessionCookieName    string
	SessionCookieSecure  bool
	SessionTTL           time.Duration

	SiteURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	TMDBAPIKey  string
	TMDBBaseURL string

	CacheAddress string

	AllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.cookie_secure", false)
	configViper.SetDefault("auth.session_ttl_hours", defaultSessionTTLHours)
	configViper.SetDefault("site.url", defaultSiteURL)
	configViper.SetDefault("smtp.host", "")
	configViper.SetDefault("smtp.port", defaultSMTPPort)
	configViper.SetDefault("smtp.username", "")
	configViper.SetDefault("smtp.password", "")
	configViper.SetDefault("smtp.from", "")
	configViper.SetDefault("tmdb.api_key", "")
	configViper.SetDefault("tmdb.base_url", defaultTMDBBaseURL)
	configViper.SetDefault("cache.address", "")
	configViper.SetDefault("cors.allowed_origins", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		LogLevel:             configViper.GetString("log.level"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         configViper.GetString("database.path"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		SessionSigningSecret: configViper.GetString("auth.signing_secret"),
		SessionCookieName:    configViper.GetString("auth.cookie_name"),
		SessionCookieSecure:  configViper.GetBool("auth.cookie_secure"),
		SessionTTL:           time.Duration(configViper.GetInt("auth.session_ttl_hours")) * time.Hour,
		SiteURL:              strings.TrimRight(configViper.GetString("site.url"), "/"),
		SMTPHost:             configViper.GetString("smtp.host"),
		SMTPPort:             configViper.GetInt("smtp.port"),
		SMTPUsername:         configViper.GetString("smtp.username"),
		SMTPPassword:         configViper.GetString("smtp.password"),
		SMTPFrom:             configViper.GetString("smtp.from"),
		TMDBAPIKey:           configViper.GetString("tmdb.api_key"),
		TMDBBaseURL:          configViper.GetString("tmdb.base_url"),
		CacheAddress:         configViper.GetString("cache.address"),
		AllowedOrigins:       splitList(configViper.GetString("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_hours must be positive")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.SMTPHost) != "" && strings.TrimSpace(c.SMTPFrom) == "" {
		return fmt.Errorf("smtp.from is required when smtp.host is set")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
