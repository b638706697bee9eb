package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Collaborators     CollaboratorsConfig
	Billing           BillingConfig
	Gateways          GatewaysConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
	// PublicURL is the externally reachable base URL used to build provider callback URLs.
	PublicURL string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxAttempts      int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Enabled reports whether a Redis address has been configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type CollaboratorsConfig struct {
	NotificationsURL string
	UsersURL         string
	Timeout          time.Duration
}

type BillingConfig struct {
	ExpiryHorizonDays   []int
	PendingGrace        time.Duration
	PendingMaxAge       time.Duration
	PendingBatchSize    int
	PlanCacheTTL        time.Duration
	PlanCacheSize       int
	NotificationLinkURL string
}

type GatewaysConfig struct {
	Stripe     StripeConfig
	MyFatoorah MyFatoorahConfig
	PayTabs    PayTabsConfig
	Retry      RetryConfig
}

type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type MyFatoorahConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	CallbackURL string
	ErrorURL    string
}

type PayTabsConfig struct {
	Enabled       bool
	BaseURL       string
	ProfileID     int64
	ServerKey     string
	CallbackToken string
	ReturnURL     string
	CallbackURL   string
}

type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RequestTimeout  time.Duration
}

type JobsConfig struct {
	SweepSchedule           string
	PendingRecoverySchedule string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	publicURL := strings.TrimRight(getEnv("APP_PUBLIC_URL", "http://localhost:8080"), "/")

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "billing-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
			PublicURL:   publicURL,
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
			TxAttempts:      getIntEnv("MYSQL_TX_ATTEMPTS", 3),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			LockTTL:  getDurationEnv("REDIS_LOCK_TTL_MINUTES", 10*time.Minute),
		},
		Log: LogConfig{Level: getEnv("LOG_LEVEL", "info")},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Collaborators: CollaboratorsConfig{
			NotificationsURL: getEnv("NOTIFICATIONS_SERVICE_URL", "http://localhost:8081"),
			UsersURL:         getEnv("USERS_SERVICE_URL", "http://localhost:8082"),
			Timeout:          getSecondsEnv("COLLABORATOR_TIMEOUT_SECONDS", 5*time.Second),
		},
		Billing: BillingConfig{
			ExpiryHorizonDays:   getIntListEnv("EXPIRY_HORIZON_DAYS", []int{7, 3, 1}),
			PendingGrace:        getDurationEnv("PENDING_PAYMENT_GRACE_MINUTES", 30*time.Minute),
			PendingMaxAge:       getDurationEnv("PENDING_PAYMENT_MAX_AGE_MINUTES", 4320*time.Minute),
			PendingBatchSize:    getIntEnv("PENDING_PAYMENT_BATCH_SIZE", 100),
			PlanCacheTTL:        getDurationEnv("PLAN_CACHE_TTL_MINUTES", 5*time.Minute),
			PlanCacheSize:       getIntEnv("PLAN_CACHE_SIZE", 128),
			NotificationLinkURL: getEnv("NOTIFICATION_LINK_URL", "/billing"),
		},
		Gateways: GatewaysConfig{
			Stripe: StripeConfig{
				Enabled:       getBoolEnv("STRIPE_ENABLED", false),
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
				SuccessURL:    getEnv("STRIPE_SUCCESS_URL", publicURL+"/billing/success"),
				CancelURL:     getEnv("STRIPE_CANCEL_URL", publicURL+"/billing/cancel"),
			},
			MyFatoorah: MyFatoorahConfig{
				Enabled:     getBoolEnv("MYFATOORAH_ENABLED", false),
				BaseURL:     strings.TrimRight(getEnv("MYFATOORAH_BASE_URL", "https://apitest.myfatoorah.com"), "/"),
				APIKey:      getEnv("MYFATOORAH_API_KEY", ""),
				CallbackURL: getEnv("MYFATOORAH_CALLBACK_URL", publicURL+"/webhooks/myfatoorah"),
				ErrorURL:    getEnv("MYFATOORAH_ERROR_URL", publicURL+"/webhooks/myfatoorah"),
			},
			PayTabs: PayTabsConfig{
				Enabled:       getBoolEnv("PAYTABS_ENABLED", false),
				BaseURL:       strings.TrimRight(getEnv("PAYTABS_BASE_URL", "https://secure.paytabs.sa"), "/"),
				ProfileID:     int64(getIntEnv("PAYTABS_PROFILE_ID", 0)),
				ServerKey:     getEnv("PAYTABS_SERVER_KEY", ""),
				CallbackToken: getEnv("PAYTABS_CALLBACK_TOKEN", ""),
				ReturnURL:     getEnv("PAYTABS_RETURN_URL", publicURL+"/billing/return"),
				CallbackURL:   getEnv("PAYTABS_CALLBACK_URL", publicURL+"/webhooks/paytabs"),
			},
			Retry: RetryConfig{
				MaxRetries:      uint64(getIntEnv("GATEWAY_MAX_RETRIES", 3)),
				InitialInterval: getMillisEnv("GATEWAY_RETRY_INITIAL_MS", 200*time.Millisecond),
				MaxInterval:     getMillisEnv("GATEWAY_RETRY_MAX_MS", 2*time.Second),
				RequestTimeout:  getSecondsEnv("GATEWAY_REQUEST_TIMEOUT_SECONDS", 15*time.Second),
			},
		},
		Jobs: JobsConfig{
			SweepSchedule:           getEnv("SWEEP_SCHEDULE", "0 3 * * *"),
			PendingRecoverySchedule: getEnv("PENDING_RECOVERY_SCHEDULE", "*/10 * * * *"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv reads a number of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getIntListEnv reads a comma separated list of positive integers. Invalid
// entries make the whole value fall back to the default.
func getIntListEnv(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return defaultValue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
