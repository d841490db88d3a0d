package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverMongoDB  = "mongodb"
	DriverPostgres = "postgres"
)

// ServerConfig holds all configuration for the server and the CLI.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`
	Issuer   string `mapstructure:"ISSUER"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OtelEnabled     bool   `mapstructure:"OTEL_ENABLED"`

	JWTSecretKey        string `mapstructure:"JWT_SECRET_KEY"`
	AccessTokenTTLMin   int    `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour int    `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	OneTimeTokenTTLMin  int    `mapstructure:"ONE_TIME_TOKEN_TTL_MIN"`
	APIKeyCacheTTLSec   int    `mapstructure:"API_KEY_CACHE_TTL_SEC"`

	// FederatedKeys maps an external issuer to a PEM file with its public
	// key, written as "issuer=path" pairs separated by commas.
	FederatedKeys string `mapstructure:"FEDERATED_KEYS"`
}

// AccessTokenTTL is the lifetime of signed access tokens.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// RefreshTokenTTL is the lifetime of refresh tokens.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

// OneTimeTokenTTL is the lifetime of one-time access tokens.
func (c *ServerConfig) OneTimeTokenTTL() time.Duration {
	return time.Duration(c.OneTimeTokenTTLMin) * time.Minute
}

// APIKeyCacheTTL is how long validated API keys are cached.
func (c *ServerConfig) APIKeyCacheTTL() time.Duration {
	return time.Duration(c.APIKeyCacheTTLSec) * time.Second
}

// FederatedKeyFiles parses FederatedKeys into issuer -> path.
func (c *ServerConfig) FederatedKeyFiles() (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(c.FederatedKeys) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.FederatedKeys, ",") {
		// Issuers are URLs, so split on the last '='.
		i := strings.LastIndex(pair, "=")
		if i <= 0 || i == len(pair)-1 {
			return nil, fmt.Errorf("invalid FEDERATED_KEYS entry %q", pair)
		}
		out[strings.TrimSpace(pair[:i])] = strings.TrimSpace(pair[i+1:])
	}
	return out, nil
}

// Validate checks settings that have no usable default.
func (c *ServerConfig) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverMongoDB, DriverPostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgres && c.PostgresURL == "" {
		return errors.New("POSTGRES_URL is required for the postgres store")
	}
	if len(c.JWTSecretKey) < 32 {
		return errors.New("JWT_SECRET_KEY must be at least 32 bytes")
	}
	if c.AccessTokenTTLMin <= 0 || c.RefreshTokenTTLHour <= 0 || c.OneTimeTokenTTLMin <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if _, err := c.FederatedKeyFiles(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads configuration from a .env file, a config file,
// environment variables and defaults, in increasing order of precedence
// for the environment.
func LoadConfig() (*ServerConfig, error) {
	// A missing .env is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/idcore/")
	v.AddConfigPath("$HOME/.idcore")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "idcore")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PREFIX", "idcore")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "idcore")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("JWT_SECRET_KEY", "change-me-change-me-change-me-change-me") // CHANGE IN PRODUCTION
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("ONE_TIME_TOKEN_TTL_MIN", 15)
	v.SetDefault("API_KEY_CACHE_TTL_SEC", 60)
	v.SetDefault("FEDERATED_KEYS", "")
}
