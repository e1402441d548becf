package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends selectable for sessions and users.
const (
	BackendAuto   = "auto"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendSQL    = "sql"
)

// Config holds application configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Providers ProvidersConfig
	Session   SessionConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	SQL       SQLConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IsProduction reports whether production-only policies (secure cookies,
// HSTS) apply.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// IsDevelopment reports whether development relaxations (debug logging,
// unsafe-eval in CSP) apply.
func (s ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

type AuthConfig struct {
	// BaseURL is the externally visible origin used to build provider callback URLs.
	BaseURL string
	// AllowInsecureToken enables payload-only ID token parsing for integration environments.
	AllowInsecureToken bool
	// ProviderTimeout bounds each call to an external identity provider.
	ProviderTimeout time.Duration
}

// CallbackURL returns the redirect URL registered with the given provider.
func (a AuthConfig) CallbackURL(provider string) string {
	return strings.TrimRight(a.BaseURL, "/") + "/api/auth/callback/" + provider
}

// ProviderCredentials are the OAuth client credentials of a single provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	// Issuer is only used by OpenID Connect providers with discovery.
	Issuer string
}

// Enabled reports whether the provider has enough configuration to be offered.
func (p ProviderCredentials) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type ProvidersConfig struct {
	GitHub   ProviderCredentials
	Google   ProviderCredentials
	Keycloak ProviderCredentials
}

type SessionConfig struct {
	MaxAge    time.Duration
	UpdateAge time.Duration
}

type StorageConfig struct {
	SessionBackend string
	UserBackend    string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type SQLConfig struct {
	DSN string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and an optional .env file.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV_FILE", ".env")
	_ = godotenv.Load(v.GetString("ENV_FILE"))

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_URL", "http://localhost:5001")
	v.SetDefault("AUTH_PROVIDER_TIMEOUT", 10)
	v.SetDefault("SESSION_MAX_AGE", int((7 * 24 * time.Hour).Seconds()))
	v.SetDefault("SESSION_UPDATE_AGE", int((4 * time.Hour).Seconds()))
	v.SetDefault("SESSION_STORE", BackendAuto)
	v.SetDefault("USER_STORE", BackendAuto)
	v.SetDefault("MONGODB_DATABASE", "auth")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("ACCESS_TOKEN_TTL", 15)
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  strings.ToLower(v.GetString("APP_ENV")),
			LogLevel:     v.GetString("LOG_LEVEL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			BaseURL:            v.GetString("AUTH_URL"),
			AllowInsecureToken: v.GetBool("ALLOW_INSECURE_TOKEN"),
			ProviderTimeout:    time.Duration(v.GetInt("AUTH_PROVIDER_TIMEOUT")) * time.Second,
		},
		Providers: ProvidersConfig{
			GitHub: ProviderCredentials{
				ClientID:     v.GetString("AUTH_GITHUB_ID"),
				ClientSecret: v.GetString("AUTH_GITHUB_SECRET"),
			},
			Google: ProviderCredentials{
				ClientID:     v.GetString("AUTH_GOOGLE_ID"),
				ClientSecret: v.GetString("AUTH_GOOGLE_SECRET"),
				Issuer:       "https://accounts.google.com",
			},
			Keycloak: ProviderCredentials{
				ClientID:     v.GetString("AUTH_KEYCLOAK_ID"),
				ClientSecret: v.GetString("AUTH_KEYCLOAK_SECRET"),
				Issuer:       v.GetString("AUTH_KEYCLOAK_ISSUER"),
			},
		},
		Session: SessionConfig{
			MaxAge:    time.Duration(v.GetInt("SESSION_MAX_AGE")) * time.Second,
			UpdateAge: time.Duration(v.GetInt("SESSION_UPDATE_AGE")) * time.Second,
		},
		Storage: StorageConfig{
			SessionBackend: strings.ToLower(v.GetString("SESSION_STORE")),
			UserBackend:    strings.ToLower(v.GetString("USER_STORE")),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		SQL: SQLConfig{
			DSN: v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("AUTH_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	cfg.resolveBackends()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveBackends replaces "auto" with the first backend that has connection
// settings. Sessions prefer Redis, users prefer the relational store.
func (c *Config) resolveBackends() {
	if c.Storage.SessionBackend == "" || c.Storage.SessionBackend == BackendAuto {
		switch {
		case c.Redis.Host != "":
			c.Storage.SessionBackend = BackendRedis
		case c.SQL.DSN != "":
			c.Storage.SessionBackend = BackendSQL
		case c.MongoDB.URI != "":
			c.Storage.SessionBackend = BackendMongo
		default:
			c.Storage.SessionBackend = BackendMemory
		}
	}
	if c.Storage.UserBackend == "" || c.Storage.UserBackend == BackendAuto {
		switch {
		case c.SQL.DSN != "":
			c.Storage.UserBackend = BackendSQL
		case c.MongoDB.URI != "":
			c.Storage.UserBackend = BackendMongo
		default:
			c.Storage.UserBackend = BackendMemory
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behaviour.
func (c *Config) Validate() error {
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("config: SESSION_MAX_AGE must be positive")
	}
	if c.Session.UpdateAge < 0 || c.Session.UpdateAge > c.Session.MaxAge {
		return fmt.Errorf("config: SESSION_UPDATE_AGE must be between 0 and SESSION_MAX_AGE")
	}
	switch c.Storage.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("config: SESSION_STORE=redis requires REDIS_HOST")
		}
	case BackendMongo:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("config: SESSION_STORE=mongo requires MONGODB_URI")
		}
	case BackendSQL:
		if c.SQL.DSN == "" {
			return fmt.Errorf("config: SESSION_STORE=sql requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.Storage.SessionBackend)
	}
	switch c.Storage.UserBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("config: USER_STORE=mongo requires MONGODB_URI")
		}
	case BackendSQL:
		if c.SQL.DSN == "" {
			return fmt.Errorf("config: USER_STORE=sql requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown USER_STORE %q", c.Storage.UserBackend)
	}
	if c.Providers.Keycloak.Enabled() && c.Providers.Keycloak.Issuer == "" {
		return fmt.Errorf("config: AUTH_KEYCLOAK_ISSUER is required when keycloak credentials are set")
	}
	return nil
}
