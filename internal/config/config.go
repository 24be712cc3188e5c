package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App            AppConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	Logger         LoggerConfig
	Auth           AuthConfig
	SLA            SLAConfig
	Scoring        ScoringConfig
	AutoResolution AutoResolutionConfig
	Queue          QueueConfig
	Evidence       EvidenceConfig
	Retention      RetentionConfig
	Notification   NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// SLAConfig drives deadline computation and the escalation monitor. Hours are
// per priority; schedules are cron expressions consumed by the scheduler.
type SLAConfig struct {
	CriticalHours          int
	HighHours              int
	MediumHours            int
	LowHours               int
	BusinessHoursEnabled   bool
	BusinessStartHour      int
	BusinessEndHour        int
	ApproachingWindowHours int
	StaleAfterDays         int
	EscalationCap          int
	CheckSchedule          string
	StaleCheckSchedule     string
}

// HoursFor returns the SLA budget for a priority string.
func (s SLAConfig) HoursFor(priority string) int {
	switch priority {
	case "critical":
		return s.CriticalHours
	case "high":
		return s.HighHours
	case "medium":
		return s.MediumHours
	default:
		return s.LowHours
	}
}

// ApproachingWindow returns the lookahead used for "deadline soon" notices.
func (s SLAConfig) ApproachingWindow() time.Duration {
	return time.Duration(s.ApproachingWindowHours) * time.Hour
}

// ScoringConfig holds priority and fraud thresholds. Business logic reads
// these instead of hard-coding cut-offs.
type ScoringConfig struct {
	PriorityCritical float64
	PriorityHigh     float64
	PriorityMedium   float64

	FraudHighRisk   float64
	FraudMediumRisk float64

	TriageCriticalAmountMajor int64
	TriageHighAmountMajor     int64
	TriageCriticalTier        int
}

// AutoResolutionConfig bounds what the evaluator may close unattended.
// Amounts are minor units.
type AutoResolutionConfig struct {
	MaxFraudScore           float64
	StrictFraudScore        float64
	LowFraudScore           float64
	SmallAmountCeilingMinor int64
}

// QueueConfig tunes the Redis-backed job queues.
type QueueConfig struct {
	MaxAttempts       int
	PopTimeoutSeconds int
	PromoteSchedule   string
	Concurrency       int
}

// EvidenceConfig bounds evidence processing.
type EvidenceConfig struct {
	ProcessTimeoutSeconds int
	MaxSizeBytes          int64
}

// ProcessTimeout returns the cooperative abort timeout for OCR ingestion.
func (e EvidenceConfig) ProcessTimeout() time.Duration {
	return time.Duration(e.ProcessTimeoutSeconds) * time.Second
}

// RetentionConfig drives the cleanup job.
type RetentionConfig struct {
	DisputeRetentionDays int
	AuditRetentionDays   int
	CleanupSchedule      string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dispute-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 0),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		SLA: SLAConfig{
			CriticalHours:          getEnvAsInt("SLA_CRITICAL_HOURS", 120),
			HighHours:              getEnvAsInt("SLA_HIGH_HOURS", 72),
			MediumHours:            getEnvAsInt("SLA_MEDIUM_HOURS", 24),
			LowHours:               getEnvAsInt("SLA_LOW_HOURS", 48),
			BusinessHoursEnabled:   getEnvAsBool("SLA_BUSINESS_HOURS_ENABLED", true),
			BusinessStartHour:      getEnvAsInt("SLA_BUSINESS_START_HOUR", 9),
			BusinessEndHour:        getEnvAsInt("SLA_BUSINESS_END_HOUR", 17),
			ApproachingWindowHours: getEnvAsInt("SLA_APPROACHING_WINDOW_HOURS", 2),
			StaleAfterDays:         getEnvAsInt("SLA_STALE_AFTER_DAYS", 30),
			EscalationCap:          getEnvAsInt("SLA_ESCALATION_CAP", 2),
			CheckSchedule:          getEnv("SLA_CHECK_SCHEDULE", "*/15 * * * *"),
			StaleCheckSchedule:     getEnv("SLA_STALE_CHECK_SCHEDULE", "0 * * * *"),
		},
		Scoring: ScoringConfig{
			PriorityCritical:          getEnvAsFloat("SCORING_PRIORITY_CRITICAL", 85),
			PriorityHigh:              getEnvAsFloat("SCORING_PRIORITY_HIGH", 65),
			PriorityMedium:            getEnvAsFloat("SCORING_PRIORITY_MEDIUM", 35),
			FraudHighRisk:             getEnvAsFloat("SCORING_FRAUD_HIGH_RISK", 70),
			FraudMediumRisk:           getEnvAsFloat("SCORING_FRAUD_MEDIUM_RISK", 40),
			TriageCriticalAmountMajor: int64(getEnvAsInt("SCORING_TRIAGE_CRITICAL_AMOUNT", 100000)),
			TriageHighAmountMajor:     int64(getEnvAsInt("SCORING_TRIAGE_HIGH_AMOUNT", 50000)),
			TriageCriticalTier:        getEnvAsInt("SCORING_TRIAGE_CRITICAL_TIER", 3),
		},
		AutoResolution: AutoResolutionConfig{
			MaxFraudScore:           getEnvAsFloat("AUTORES_MAX_FRAUD_SCORE", 80),
			StrictFraudScore:        getEnvAsFloat("AUTORES_STRICT_FRAUD_SCORE", 30),
			LowFraudScore:           getEnvAsFloat("AUTORES_LOW_FRAUD_SCORE", 40),
			SmallAmountCeilingMinor: int64(getEnvAsInt("AUTORES_SMALL_AMOUNT_CEILING_MINOR", 50000)),
		},
		Queue: QueueConfig{
			MaxAttempts:       getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			PopTimeoutSeconds: getEnvAsInt("QUEUE_POP_TIMEOUT_SECONDS", 5),
			PromoteSchedule:   getEnv("QUEUE_PROMOTE_SCHEDULE", "*/1 * * * *"),
			Concurrency:       getEnvAsInt("QUEUE_CONCURRENCY", 4),
		},
		Evidence: EvidenceConfig{
			ProcessTimeoutSeconds: getEnvAsInt("EVIDENCE_PROCESS_TIMEOUT_SECONDS", 30),
			MaxSizeBytes:          int64(getEnvAsInt("EVIDENCE_MAX_SIZE_BYTES", 10<<20)),
		},
		Retention: RetentionConfig{
			DisputeRetentionDays: getEnvAsInt("RETENTION_DISPUTE_DAYS", 365),
			AuditRetentionDays:   getEnvAsInt("RETENTION_AUDIT_DAYS", 2555),
			CleanupSchedule:      getEnv("RETENTION_CLEANUP_SCHEDULE", "30 2 * * *"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "disputes@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if cfg.SLA.BusinessStartHour >= cfg.SLA.BusinessEndHour {
		return nil, fmt.Errorf("invalid business-hours window %d-%d", cfg.SLA.BusinessStartHour, cfg.SLA.BusinessEndHour)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
