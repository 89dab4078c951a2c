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
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Store        StoreConfig
	Approval     ApprovalConfig
	Sync         SyncConfig
	Notification NotificationConfig
	Dashboard    DashboardConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	PushPort              string
	BaseURL               string
	Version               string
	RequestTimeoutSeconds int
}

// DashboardConfig configures the remote dashboard client. An empty PushURL
// is derived from the app base URL and push port.
type DashboardConfig struct {
	Team      string
	Token     string
	PushURL   string
	SeedLimit int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	KeyPrefix     string
	UpdateChannel string
	LogMaxLen     int64
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// StoreConfig bounds calls into the durable store.
type StoreConfig struct {
	TimeoutMillis        int
	FlushIntervalSeconds int
	WarmLimit            int
}

// ApprovalConfig shapes approval tickets.
type ApprovalConfig struct {
	TicketPrefix string
	TicketWidth  int
	SLAHours     int
}

// SyncConfig tunes dashboard synchronization.
type SyncConfig struct {
	PollIntervalSeconds  int
	SweepIntervalSeconds int
	DedupWindowSeconds   int
	SubscriberBuffer     int
}

// NotificationConfig points approval notifications at an optional webhook.
type NotificationConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "loan-query-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			PushPort:              getEnv("APP_PUSH_PORT", "8081"),
			BaseURL:               getEnv("APP_BASE_URL", "http://127.0.0.1:8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:          os.Getenv("REDIS_ADDR"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			KeyPrefix:     getEnv("REDIS_KEY_PREFIX", "loanquery"),
			UpdateChannel: getEnv("REDIS_UPDATE_CHANNEL", "loanquery:updates"),
			LogMaxLen:     int64(getEnvAsInt("REDIS_UPDATE_LOG_MAXLEN", 10000)),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Store: StoreConfig{
			TimeoutMillis:        getEnvAsInt("STORE_TIMEOUT_MILLIS", 3000),
			FlushIntervalSeconds: getEnvAsInt("STORE_FLUSH_INTERVAL_SECONDS", 15),
			WarmLimit:            getEnvAsInt("STORE_WARM_LIMIT", 500),
		},
		Approval: ApprovalConfig{
			TicketPrefix: getEnv("APPROVAL_TICKET_PREFIX", "T"),
			TicketWidth:  getEnvAsInt("APPROVAL_TICKET_WIDTH", 3),
			SLAHours:     getEnvAsInt("APPROVAL_SLA_HOURS", 24),
		},
		Sync: SyncConfig{
			PollIntervalSeconds:  getEnvAsInt("SYNC_POLL_INTERVAL_SECONDS", 10),
			SweepIntervalSeconds: getEnvAsInt("SYNC_SWEEP_INTERVAL_SECONDS", 30),
			DedupWindowSeconds:   getEnvAsInt("SYNC_DEDUP_WINDOW_SECONDS", 5),
			SubscriberBuffer:     getEnvAsInt("SYNC_SUBSCRIBER_BUFFER", 64),
		},
		Notification: NotificationConfig{
			WebhookURL:     os.Getenv("NOTIFICATION_WEBHOOK_URL"),
			TimeoutSeconds: getEnvAsInt("NOTIFICATION_TIMEOUT_SECONDS", 5),
		},
		Dashboard: DashboardConfig{
			Team:      getEnv("DASHBOARD_TEAM", "operations"),
			Token:     os.Getenv("DASHBOARD_TOKEN"),
			PushURL:   os.Getenv("DASHBOARD_PUSH_URL"),
			SeedLimit: getEnvAsInt("DASHBOARD_SEED_LIMIT", 500),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// PushAddr returns the websocket bind address.
func (a AppConfig) PushAddr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.PushPort)
}

// PushURL returns the websocket URL for path on the host of BaseURL.
func (a AppConfig) PushURL(path string) string {
	base := strings.TrimRight(a.BaseURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	if i := strings.LastIndex(base, ":"); i > strings.Index(base, "//") {
		base = base[:i]
	}
	return base + ":" + a.PushPort + path
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout bounds a single durable store call.
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMillis <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.TimeoutMillis) * time.Millisecond
}

// SLA is the window within which a ticket decision counts as compliant.
func (a ApprovalConfig) SLA() time.Duration {
	if a.SLAHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.SLAHours) * time.Hour
}

// FlushInterval is how often cache-only writes are retried against the store.
func (s StoreConfig) FlushInterval() time.Duration {
	return secondsOr(s.FlushIntervalSeconds, 15)
}

// PollInterval is how often a dashboard polls when push is down.
func (s SyncConfig) PollInterval() time.Duration {
	return secondsOr(s.PollIntervalSeconds, 10)
}

// SweepInterval is the slower reconciliation sweep.
func (s SyncConfig) SweepInterval() time.Duration {
	return secondsOr(s.SweepIntervalSeconds, 30)
}

// DedupWindow is the receive-side duplicate window.
func (s SyncConfig) DedupWindow() time.Duration {
	return secondsOr(s.DedupWindowSeconds, 5)
}

// Timeout bounds one webhook delivery.
func (n NotificationConfig) Timeout() time.Duration {
	return secondsOr(n.TimeoutSeconds, 5)
}

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
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
