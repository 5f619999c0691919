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
	Server      ServerConfig
	Database    DatabaseConfig
	Detection   DetectionConfig
	SecurityLog SecurityLogConfig
	Ledger      LedgerConfig
	Redis       RedisConfig
	Alert       AlertConfig
	Auth        AuthConfig
}

type ServerConfig struct {
	Port               string
	Env                string
	LogLevel           string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
	TrustedProxies     []string
	AllowedOrigins     []string
	AnalyzeRateLimit   int
	DashboardRateLimit int
}

type DatabaseConfig struct {
	Enabled           bool
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
}

// DetectionConfig tunes the scoring pipeline
type DetectionConfig struct {
	Threshold             float64
	TimeWindow            time.Duration
	CleanupInterval       time.Duration
	StatsFreshness        time.Duration
	ClassifierURL         string
	ClassifierTimeout     time.Duration
	ClassifierLoadTimeout time.Duration
	HighRiskRegions       []string
	SuspiciousIdentities  []string
	ScriptingClients      []string
}

// SecurityLogConfig tunes the security event logger
type SecurityLogConfig struct {
	LogDir                 string
	HighFrequencyThreshold int
	HighFrequencyWindow    time.Duration
	SuspiciousUserAgents   []string
	DenylistIPs            []string
}

// LedgerConfig selects where confirmed attacks are recorded
type LedgerConfig struct {
	Backend      string
	Path         string
	KafkaBrokers []string
	KafkaTopic   string
}

type RedisConfig struct {
	URL         string
	DenylistKey string
}

type AlertConfig struct {
	EmailTo     []string
	AWSRegion   string
	FromAddress string
	Interval    time.Duration
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

const (
	LedgerBackendFile  = "file"
	LedgerBackendKafka = "kafka"
	LedgerBackendNone  = "none"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			Env:                env,
			LogLevel:           getEnv("LOG_LEVEL", "info"),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:        getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustedProxies:     getEnvAsList("TRUSTED_PROXIES", nil),
			AllowedOrigins:     parseAllowedOrigins(env),
			AnalyzeRateLimit:   getEnvAsInt("ANALYZE_RATE_LIMIT", 120),
			DashboardRateLimit: getEnvAsInt("DASHBOARD_RATE_LIMIT", 60),
		},
		Database: DatabaseConfig{
			Enabled:           getEnvAsBool("DB_ENABLED", false),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "loginguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Detection: DetectionConfig{
			Threshold:             getEnvAsFloat("DETECTION_THRESHOLD", 0.6),
			TimeWindow:            getEnvAsDuration("TIME_WINDOW", 2*time.Minute),
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
			StatsFreshness:        getEnvAsDuration("STATS_FRESHNESS", 5*time.Second),
			ClassifierURL:         getEnv("CLASSIFIER_URL", ""),
			ClassifierTimeout:     getEnvAsDuration("CLASSIFIER_TIMEOUT", 2*time.Second),
			ClassifierLoadTimeout: getEnvAsDuration("CLASSIFIER_LOAD_TIMEOUT", 30*time.Second),
			HighRiskRegions:       getEnvAsList("HIGH_RISK_REGIONS", []string{"RU", "CN", "KP", "IR"}),
			SuspiciousIdentities:  getEnvAsList("SUSPICIOUS_IDENTITIES", []string{"admin", "root", "test", "hacker"}),
			ScriptingClients:      getEnvAsList("SCRIPTING_CLIENTS", []string{"python", "curl", "wget", "go-http-client", "libwww-perl", "httpie"}),
		},
		SecurityLog: SecurityLogConfig{
			LogDir:                 getEnv("LOG_DIR", "logs"),
			HighFrequencyThreshold: getEnvAsInt("HIGH_FREQUENCY_THRESHOLD", 10),
			HighFrequencyWindow:    getEnvAsDuration("HIGH_FREQUENCY_WINDOW", 5*time.Minute),
			SuspiciousUserAgents:   getEnvAsList("SUSPICIOUS_USER_AGENTS", []string{"bot", "crawler", "scraper", "python", "curl", "wget", "headless"}),
			DenylistIPs:            getEnvAsList("DENYLIST_IPS", nil),
		},
		Ledger: LedgerConfig{
			Backend:      strings.ToLower(getEnv("LEDGER_BACKEND", LedgerBackendFile)),
			Path:         getEnv("LEDGER_PATH", "logs/attack_ledger.jsonl"),
			KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "loginguard.attacks"),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			DenylistKey: getEnv("REDIS_DENYLIST_KEY", "loginguard:denylist:ips"),
		},
		Alert: AlertConfig{
			EmailTo:     getEnvAsList("ALERT_EMAIL_TO", nil),
			AWSRegion:   getEnv("AWS_REGION", ""),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			Interval:    getEnvAsDuration("ALERT_INTERVAL", time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("DASHBOARD_JWT_SECRET", ""),
			TokenExpiry: getEnvAsDuration("DASHBOARD_TOKEN_EXPIRY", 12*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Detection.Threshold <= 0 || c.Detection.Threshold >= 1 {
		return fmt.Errorf("DETECTION_THRESHOLD must be between 0 and 1 (got %v)", c.Detection.Threshold)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"TIME_WINDOW", c.Detection.TimeWindow},
		{"CLEANUP_INTERVAL", c.Detection.CleanupInterval},
		{"STATS_FRESHNESS", c.Detection.StatsFreshness},
		{"CLASSIFIER_TIMEOUT", c.Detection.ClassifierTimeout},
		{"HIGH_FREQUENCY_WINDOW", c.SecurityLog.HighFrequencyWindow},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive (got %v)", d.name, d.value)
		}
	}

	if c.SecurityLog.HighFrequencyThreshold <= 0 {
		return fmt.Errorf("HIGH_FREQUENCY_THRESHOLD must be positive (got %d)", c.SecurityLog.HighFrequencyThreshold)
	}

	switch c.Ledger.Backend {
	case LedgerBackendFile:
		if c.Ledger.Path == "" {
			return fmt.Errorf("LEDGER_PATH is required for the file ledger")
		}
	case LedgerBackendKafka:
		if len(c.Ledger.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka ledger")
		}
	case LedgerBackendNone:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be file, kafka or none (got %q)", c.Ledger.Backend)
	}

	if c.Database.Enabled && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_ENABLED is set")
	}

	if len(c.Alert.EmailTo) > 0 && c.Alert.FromAddress == "" {
		return fmt.Errorf("ALERT_FROM_ADDRESS is required when ALERT_EMAIL_TO is set")
	}

	if c.Auth.JWTSecret != "" {
		if err := validateJWTSecret(c.Auth.JWTSecret, c.Server.Env); err != nil {
			return err
		}
	}

	return nil
}

// DashboardAuthEnabled reports whether dashboard routes require a bearer token
func (c *Config) DashboardAuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// validateJWTSecret enforces minimum security standards for the dashboard secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("DASHBOARD_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("DASHBOARD_JWT_SECRET cannot be a common weak value")
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

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvAsList splits a comma-separated value, dropping blank entries
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if origins := getEnvAsList("ALLOWED_ORIGINS", nil); origins != nil {
		return origins
	}
	if env == "production" {
		return []string{}
	}

	// Development: allow localhost dashboards
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
