package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Lifecycle LifecycleConfig
	Purge     PurgeConfig
	PHI       PHIConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	MigrateOnStart    bool
}

type ServerConfig struct {
	Port              string
	Env               string
	LogLevel          string
	AllowedOrigins    []string
	TrustedProxies    []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	AdminRateLimitRPM int
}

type AuthConfig struct {
	JWTSecret string
}

// LifecycleConfig holds the operator-facing validation thresholds.
type LifecycleConfig struct {
	MinReasonLength   int
	ForceReasonLength int
	MinGraceDays      int
	MaxGraceDays      int
	MinTrialDays      int
	MaxTrialDays      int
}

// PurgeConfig drives the tombstoning job in cmd/purger.
type PurgeConfig struct {
	Schedule  string
	BatchSize int
	Timeout   time.Duration
}

// PHIConfig points at the external PHI scorer. An empty URL disables scoring.
type PHIConfig struct {
	ScorerURL string
	Timeout   time.Duration
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

// DefaultLifecycleConfig returns the thresholds used when no overrides are set.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MinReasonLength:   minReasonFloor,
		ForceReasonLength: forceReasonFloor,
		MinGraceDays:      1,
		MaxGraceDays:      dayLimitCeiling,
		MinTrialDays:      1,
		MaxTrialDays:      dayLimitCeiling,
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")
	defaults := DefaultLifecycleConfig()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "scribe"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			MigrateOnStart:    getEnvAsBool("DB_MIGRATE_ON_START", true),
		},
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			Env:               env,
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:    parseAllowedOrigins(env),
			TrustedProxies:    splitList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AdminRateLimitRPM: getEnvAsInt("ADMIN_RATE_LIMIT_RPM", 120),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		Lifecycle: LifecycleConfig{
			MinReasonLength:   getEnvAsInt("MIN_REASON_LENGTH", defaults.MinReasonLength),
			ForceReasonLength: getEnvAsInt("FORCE_REASON_LENGTH", defaults.ForceReasonLength),
			MinGraceDays:      defaults.MinGraceDays,
			MaxGraceDays:      getEnvAsInt("MAX_GRACE_DAYS", defaults.MaxGraceDays),
			MinTrialDays:      defaults.MinTrialDays,
			MaxTrialDays:      getEnvAsInt("MAX_TRIAL_DAYS", defaults.MaxTrialDays),
		},
		Purge: PurgeConfig{
			Schedule:  getEnv("PURGE_SCHEDULE", "@every 15m"),
			BatchSize: getEnvAsInt("PURGE_BATCH_SIZE", 100),
			Timeout:   getEnvAsDuration("PURGE_TIMEOUT", 2*time.Minute),
		},
		PHI: PHIConfig{
			ScorerURL: getEnv("PHI_SCORER_URL", ""),
			Timeout:   getEnvAsDuration("PHI_SCORER_TIMEOUT", 3*time.Second),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Lifecycle.validate(); err != nil {
		return nil, err
	}

	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// Lifecycle thresholds may be tightened through the environment but never
// loosened past these limits.
const (
	minReasonFloor   = 5
	forceReasonFloor = 20
	dayLimitCeiling  = 90
)

func (c LifecycleConfig) validate() error {
	if c.MinReasonLength < minReasonFloor {
		return fmt.Errorf("MIN_REASON_LENGTH must be at least %d (got %d)", minReasonFloor, c.MinReasonLength)
	}
	if c.ForceReasonLength < forceReasonFloor {
		return fmt.Errorf("FORCE_REASON_LENGTH must be at least %d (got %d)", forceReasonFloor, c.ForceReasonLength)
	}
	if c.ForceReasonLength < c.MinReasonLength {
		return fmt.Errorf("FORCE_REASON_LENGTH (%d) must not be below MIN_REASON_LENGTH (%d)",
			c.ForceReasonLength, c.MinReasonLength)
	}
	if c.MinGraceDays < 1 || c.MinTrialDays < 1 {
		return fmt.Errorf("day minimums must be at least 1")
	}
	if c.MaxGraceDays > dayLimitCeiling {
		return fmt.Errorf("MAX_GRACE_DAYS must not exceed %d (got %d)", dayLimitCeiling, c.MaxGraceDays)
	}
	if c.MaxTrialDays > dayLimitCeiling {
		return fmt.Errorf("MAX_TRIAL_DAYS must not exceed %d (got %d)", dayLimitCeiling, c.MaxTrialDays)
	}
	if c.MaxGraceDays < c.MinGraceDays || c.MaxTrialDays < c.MinTrialDays {
		return fmt.Errorf("day limits must not be below their minimums")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return splitList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: the admin dashboard dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
