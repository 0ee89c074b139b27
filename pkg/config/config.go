package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/noah-isme/assignx-api/pkg/settlement"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Storage       StorageConfig
	Workflow      WorkflowConfig
	Pricing       PricingConfig
	Sweep         SweepConfig
	Notifications NotificationsConfig
	Dashboard     DashboardConfig
	Payments      PaymentsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where deliverables live and how links are signed.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxUploadBytes  int64
	AllowedMIMEs    []string
}

// WorkflowConfig tunes the project lifecycle.
type WorkflowConfig struct {
	AutoApproveGrace time.Duration
	ActionTimeout    time.Duration
	// ListingScope is "scoped" or "platform".
	ListingScope string
}

// PricingConfig overrides quote multipliers, in basis points keyed by tier.
type PricingConfig struct {
	Urgency    map[string]int64
	Complexity map[string]int64
}

// Table converts the overrides into a calculator pricing table.
func (p PricingConfig) Table() settlement.PricingTable {
	return settlement.PricingTable{
		Urgency: lo.MapKeys(p.Urgency, func(_ int64, tier string) settlement.UrgencyTier {
			return settlement.UrgencyTier(tier)
		}),
		Complexity: lo.MapKeys(p.Complexity, func(_ int64, tier string) settlement.ComplexityTier {
			return settlement.ComplexityTier(tier)
		}),
	}
}

// SweepConfig schedules the auto-approval sweep.
type SweepConfig struct {
	Enabled   bool
	Spec      string
	BatchSize int
	Timeout   time.Duration
}

// NotificationsConfig tunes status notice delivery.
type NotificationsConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	ChannelPrefix string
}

// DashboardConfig governs dashboard exposure and cache tuning.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
	Window   time.Duration
}

// PaymentsConfig authenticates the payment provider webhook.
type PaymentsConfig struct {
	WebhookSecret string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
		SingleSession:     v.GetBool("JWT_SINGLE_SESSION"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("STORAGE_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		MinioEndpoint:   v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:  v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:     v.GetString("MINIO_BUCKET"),
		MinioUseSSL:     v.GetBool("MINIO_USE_SSL"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 15*time.Minute),
		MaxUploadBytes:  maxUpload,
		AllowedMIMEs:    splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
	}

	cfg.Workflow = WorkflowConfig{
		AutoApproveGrace: parseDuration(v.GetString("WORKFLOW_AUTO_APPROVE_GRACE"), 72*time.Hour),
		ActionTimeout:    parseDuration(v.GetString("WORKFLOW_ACTION_TIMEOUT"), 5*time.Second),
		ListingScope:     strings.ToLower(v.GetString("WORKFLOW_LISTING_SCOPE")),
	}

	cfg.Pricing = PricingConfig{
		Urgency:    parseBPS(v.GetString("PRICING_URGENCY_BPS")),
		Complexity: parseBPS(v.GetString("PRICING_COMPLEXITY_BPS")),
	}

	cfg.Sweep = SweepConfig{
		Enabled:   v.GetBool("SWEEP_ENABLED"),
		Spec:      v.GetString("SWEEP_SPEC"),
		BatchSize: v.GetInt("SWEEP_BATCH_SIZE"),
		Timeout:   parseDuration(v.GetString("SWEEP_TIMEOUT"), 2*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:       v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize:    v.GetInt("NOTIFICATIONS_BUFFER"),
		MaxRetries:    v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 2*time.Second),
		ChannelPrefix: v.GetString("NOTIFICATIONS_CHANNEL_PREFIX"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
		Window:   parseDuration(v.GetString("DASHBOARD_WINDOW"), 30*24*time.Hour),
	}

	cfg.Payments = PaymentsConfig{WebhookSecret: v.GetString("PAYMENT_WEBHOOK_SECRET")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "assignx")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "assignx-api")
	v.SetDefault("JWT_SINGLE_SESSION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./deliverables")
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "assignx-deliverables")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "15m")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 25<<20)
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.openxmlformats-officedocument.presentationml.presentation,application/zip,text/plain")

	v.SetDefault("WORKFLOW_AUTO_APPROVE_GRACE", "72h")
	v.SetDefault("WORKFLOW_ACTION_TIMEOUT", "5s")
	v.SetDefault("WORKFLOW_LISTING_SCOPE", "scoped")

	v.SetDefault("PRICING_URGENCY_BPS", "")
	v.SetDefault("PRICING_COMPLEXITY_BPS", "")

	v.SetDefault("SWEEP_ENABLED", true)
	v.SetDefault("SWEEP_SPEC", "@every 5m")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("SWEEP_TIMEOUT", "2m")

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER", 256)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "2s")
	v.SetDefault("NOTIFICATIONS_CHANNEL_PREFIX", "assignx:notifications")

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
	v.SetDefault("DASHBOARD_WINDOW", "720h")

	v.SetDefault("PAYMENT_WEBHOOK_SECRET", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseBPS reads "tier=bps" pairs, skipping malformed entries.
func parseBPS(raw string) map[string]int64 {
	out := make(map[string]int64)
	for _, pair := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		bps, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || bps <= 0 {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(key))] = bps
	}
	return out
}
