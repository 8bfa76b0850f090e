package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Store    StoreConfig
	Auth     AuthConfig
	Match    MatchConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Secure      bool   // Send HSTS
	Environment string // "development", "production", "test"
	Debug       bool
	LogLevel    string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type StoreConfig struct {
	Backend       string // StorePostgres or StoreMongo
	MigrationsDir string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

type MatchConfig struct {
	SuggestionLimit int
	CandidatePool   int
	MirrorRetries   int
	RetryDelay      time.Duration
	RequestsPerHour int
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("SERVER_PORT", 5000),
			Secure:      getEnvBool("SERVER_SECURE", false),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvBool("DEBUG", false),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "studybuddy"),
			Password: getEnv("DB_PASSWORD", "studybuddy"),
			DBName:   getEnv("DB_NAME", "study_buddy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGODB_DATABASE", "study_buddy"),
			Collection: getEnv("MONGODB_COLLECTION", "users"),
			Timeout:    getEnvDuration("MONGODB_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend:       getEnv("STORE_BACKEND", StorePostgres),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
			TokenTTL:  getEnvDuration("JWT_TTL", 7*24*time.Hour),
		},
		Match: MatchConfig{
			SuggestionLimit: getEnvInt("MATCH_SUGGESTION_LIMIT", 20),
			CandidatePool:   getEnvInt("MATCH_CANDIDATE_POOL", 100),
			MirrorRetries:   getEnvInt("MATCH_MIRROR_RETRIES", 3),
			RetryDelay:      getEnvDuration("MATCH_RETRY_DELAY", 50*time.Millisecond),
			RequestsPerHour: getEnvInt("MATCH_REQUESTS_PER_HOUR", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Auth.JWTSecret == "" && !c.Server.IsDevelopment() {
		return errors.New("JWT_SECRET is required outside development")
	}
	if c.Match.MirrorRetries < 1 {
		return errors.New("MATCH_MIRROR_RETRIES must be at least 1")
	}
	if c.Match.SuggestionLimit < 1 {
		return errors.New("MATCH_SUGGESTION_LIMIT must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
