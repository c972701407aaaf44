package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "DOCSYNC"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "docsync.db"
	defaultLogLevel      = "info"
	defaultTokenTTLMin   = 30
	defaultQueueDebounce = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	SigningSecret        string
	DatabasePath         string
	LogLevel             string
	TokenTTL             time.Duration
	GraphBaseURL         string
	DriveBaseURL         string
	DriveUploadBaseURL   string
	M365Token            string
	GoogleToken          string
	QueueDebounceSeconds int
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("queue.debounce_seconds", defaultQueueDebounce)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		SigningSecret:        configViper.GetString("auth.signing_secret"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		TokenTTL:             time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		GraphBaseURL:         configViper.GetString("providers.graph_base_url"),
		DriveBaseURL:         configViper.GetString("providers.drive_base_url"),
		DriveUploadBaseURL:   configViper.GetString("providers.drive_upload_base_url"),
		M365Token:            configViper.GetString("providers.m365_token"),
		GoogleToken:          configViper.GetString("providers.google_token"),
		QueueDebounceSeconds: configViper.GetInt("queue.debounce_seconds"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}
