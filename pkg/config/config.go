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
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	SMTP        SMTPConfig
	Leneda      LenedaConfig
	Weather     WeatherConfig
	Performance PerformanceConfig
	Collector   CollectorConfig
	HTTP        HTTPConfig
	Log         LogConfig
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite only
}

// ConnectionString returns the DSN for the configured driver
func (d DatabaseConfig) ConnectionString() string {
	if d.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", d.Path)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string // empty disables the weather cache and run lock
	Password string
	DB       int
	LockTTL  time.Duration
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers        []string // empty disables lifecycle events
	TopicAlerts    string
	PublishTimeout time.Duration
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

type LenedaConfig struct {
	URL            string
	APIKey         string
	EnergyID       string
	Timeout        time.Duration
	RetryCount     int
	RetryDelay     time.Duration
	MaxConcurrency int64
}

type WeatherConfig struct {
	URL      string
	Timezone string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type PerformanceConfig struct {
	Threshold  float64
	Efficiency float64
}

type CollectorConfig struct {
	RosterPath  string
	RunAt       string // HH:MM
	Concurrency int
	SummaryDays int
	Notify      bool // dispatch pending alerts after each pass
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", DriverPostgres),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "solar_user"),
			Password: getEnv("DB_PASSWORD", "solar_pass"),
			DBName:   getEnv("DB_NAME", "solar_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "./data/energy_data.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvAsList("KAFKA_BROKERS"),
			TopicAlerts:    getEnv("KAFKA_TOPIC_ALERTS", "solar.alerts"),
			PublishTimeout: getEnvAsDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "solar-watch@example.com"),
			To:       getEnvAsList("SMTP_TO"),
			Timeout:  getEnvAsDuration("SMTP_TIMEOUT", 20*time.Second),
		},
		Leneda: LenedaConfig{
			URL:            getEnv("LENEDA_URL", "https://api.leneda.lu"),
			APIKey:         getEnv("LENEDA_API_KEY", ""),
			EnergyID:       getEnv("LENEDA_ENERGY_ID", ""),
			Timeout:        getEnvAsDuration("LENEDA_TIMEOUT", 30*time.Second),
			RetryCount:     getEnvAsInt("LENEDA_RETRY_COUNT", 1),
			RetryDelay:     getEnvAsDuration("LENEDA_RETRY_DELAY", 2*time.Second),
			MaxConcurrency: int64(getEnvAsInt("LENEDA_MAX_CONCURRENCY", 4)),
		},
		Weather: WeatherConfig{
			URL:      getEnv("WEATHER_URL", "https://archive-api.open-meteo.com/v1/archive"),
			Timezone: getEnv("WEATHER_TIMEZONE", "Europe/Luxembourg"),
			Timeout:  getEnvAsDuration("WEATHER_TIMEOUT", 30*time.Second),
			CacheTTL: getEnvAsDuration("WEATHER_CACHE_TTL", 30*24*time.Hour),
		},
		Performance: PerformanceConfig{
			Threshold:  getEnvAsFloat("PERFORMANCE_THRESHOLD", 0.50),
			Efficiency: getEnvAsFloat("PANEL_EFFICIENCY", 0.80),
		},
		Collector: CollectorConfig{
			RosterPath:  getEnv("ROSTER_PATH", "configs/pods.yaml"),
			RunAt:       getEnv("COLLECTOR_RUN_AT", "06:00"),
			Concurrency: getEnvAsInt("COLLECTOR_CONCURRENCY", 1),
			SummaryDays: getEnvAsInt("SUMMARY_DAYS", 7),
			Notify:      getEnvAsBool("COLLECTOR_NOTIFY", true),
		},
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8000"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports malformed settings
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite3 driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (expected %s or %s)", c.Database.Driver, DriverPostgres, DriverSQLite)
	}

	if c.Performance.Threshold <= 0 || c.Performance.Threshold > 1 {
		return fmt.Errorf("PERFORMANCE_THRESHOLD must be in (0,1], got %v", c.Performance.Threshold)
	}
	if c.Performance.Efficiency <= 0 || c.Performance.Efficiency > 1 {
		return fmt.Errorf("PANEL_EFFICIENCY must be in (0,1], got %v", c.Performance.Efficiency)
	}
	if c.Leneda.MaxConcurrency < 1 {
		return fmt.Errorf("LENEDA_MAX_CONCURRENCY must be at least 1, got %d", c.Leneda.MaxConcurrency)
	}
	if c.Collector.Concurrency < 1 {
		return fmt.Errorf("COLLECTOR_CONCURRENCY must be at least 1, got %d", c.Collector.Concurrency)
	}
	if c.Collector.SummaryDays < 1 {
		return fmt.Errorf("SUMMARY_DAYS must be at least 1, got %d", c.Collector.SummaryDays)
	}
	if _, _, err := ParseTimeOfDay(c.Collector.RunAt); err != nil {
		return err
	}
	return nil
}

// ParseTimeOfDay parses an "HH:MM" string
func ParseTimeOfDay(timeOfDay string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time of day: %s", timeOfDay)
	}
	return hour, minute, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
