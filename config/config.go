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

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Broker        BrokerConfig
	Storage       StorageConfig
	Notification  NotificationConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone for the reminder schedule (default: Asia/Almaty)
	Timezone string
	Location *time.Location

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxConcurrent  int
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory" (local runs and demos).
	Driver string
	URL    string

	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// AutoMigrate applies goose migrations on startup.
	AutoMigrate bool
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Disabled turns off the channel cache, toasts and job locks.
	Disabled bool
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// BrokerConfig holds RabbitMQ settings for mail, tracker and calendar requests.
type BrokerConfig struct {
	URL            string
	Exchange       string
	MailQueue      string
	TaskQueue      string
	CalendarQueue  string
	PublishTimeout time.Duration
}

// StorageConfig holds MinIO settings of the document store.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NotificationConfig holds delivery settings of workflow notifications.
type NotificationConfig struct {
	SendMail       bool
	HandlerTimeout time.Duration
	// AsyncDelivery runs notification handlers on the bus worker pool.
	AsyncDelivery  bool
	WorkerPoolSize int
	MaxRetries     int
	DeadLetterSize int
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool

	// ReminderSchedule is a cron expression, "@every 1h", "@daily 9"
	// or "@workdays 9".
	ReminderSchedule string

	LockTTL      time.Duration
	TickInterval time.Duration
	JobTimeout   time.Duration
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console

	// Tracing (OpenTelemetry)
	TracingEnabled     bool
	TracingEndpoint    string
	TracingInsecure    bool
	TracingHeaders     string
	TracingSampleRatio float64
}

// Load reads an optional .env file and builds the configuration from
// environment variables.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped;
// variables already present in the environment win.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		App:           loadAppConfig(),
		HTTP:          loadHTTPConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Broker:        loadBrokerConfig(),
		Storage:       loadStorageConfig(),
		Notification:  loadNotificationConfig(),
		Scheduler:     loadSchedulerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("APP_TIMEZONE", "Asia/Almaty")

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "palms-core"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:           getEnv("HTTP_HOST", "0.0.0.0"),
		Port:           getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout: getEnvDuration("HTTP_REQUEST_TIMEOUT", 20*time.Second),
		MaxBodyBytes:   int64(getEnvInt("HTTP_MAX_BODY_BYTES", 1<<20)),
		MaxConcurrent:  getEnvInt("HTTP_MAX_CONCURRENT", 100),
		AllowedOrigins: getEnvSlice("HTTP_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		// Try to build from individual components
		host := getEnv("DB_HOST", "")
		port := getEnv("DB_PORT", "5432")
		user := getEnv("DB_USER", "")
		pass := getEnv("DB_PASSWORD", "")
		name := getEnv("DB_NAME", "palms")
		sslmode := getEnv("DB_SSLMODE", "disable")

		if host != "" && user != "" {
			url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				user, pass, host, port, name, sslmode)
		}
	}

	return DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", DriverPostgres),
		URL:             url,
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", false),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		Issuer:    getEnv("AUTH_ISSUER", "palms"),
		TokenTTL:  getEnvDuration("AUTH_TOKEN_TTL", time.Hour),
	}
}

func loadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		URL:            getEnv("AMQP_URL", ""),
		Exchange:       getEnv("AMQP_EXCHANGE", "palms.requests"),
		MailQueue:      getEnv("AMQP_MAIL_QUEUE", "palms.mail"),
		TaskQueue:      getEnv("AMQP_TASK_QUEUE", "palms.task_projects"),
		CalendarQueue:  getEnv("AMQP_CALENDAR_QUEUE", "palms.calendar"),
		PublishTimeout: getEnvDuration("AMQP_PUBLISH_TIMEOUT", 5*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Endpoint:  getEnv("MINIO_ENDPOINT", ""),
		AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		SecretKey: getEnv("MINIO_SECRET_KEY", ""),
		Bucket:    getEnv("MINIO_BUCKET", "palms-documents"),
		Region:    getEnv("MINIO_REGION", ""),
		UseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

func loadNotificationConfig() NotificationConfig {
	return NotificationConfig{
		SendMail:       getEnvBool("NOTIFY_SEND_MAIL", true),
		HandlerTimeout: getEnvDuration("NOTIFY_HANDLER_TIMEOUT", 15*time.Second),
		AsyncDelivery:  getEnvBool("NOTIFY_ASYNC", true),
		WorkerPoolSize: getEnvInt("NOTIFY_WORKERS", 10),
		MaxRetries:     getEnvInt("NOTIFY_MAX_RETRIES", 3),
		DeadLetterSize: getEnvInt("NOTIFY_DLQ_SIZE", 1000),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:          getEnvBool("SCHEDULER_ENABLED", true),
		ReminderSchedule: getEnv("SCHEDULER_REMINDER_SCHEDULE", "0 9 * * 1-5"),
		LockTTL:          getEnvDuration("SCHEDULER_LOCK_TTL", 5*time.Minute),
		TickInterval:     getEnvDuration("SCHEDULER_TICK", time.Second),
		JobTimeout:       getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		TracingEnabled:     getEnvBool("OTEL_ENABLED", false),
		TracingEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracingInsecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TracingHeaders:     getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		TracingSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverMemory:
		if c.App.Environment == EnvProduction {
			errs = append(errs, errors.New("DB_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.Database.Driver))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	} else if c.App.Environment == EnvProduction && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes in production"))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d is out of range", c.HTTP.Port))
	}

	if c.Observability.TracingSampleRatio < 0 || c.Observability.TracingSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0, 1]"))
	}

	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.ReminderSchedule) == "" {
		errs = append(errs, errors.New("SCHEDULER_REMINDER_SCHEDULE is required when the scheduler is enabled"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
