package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and blob drivers.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverS3       = "s3"
)

// Upload limits shared by the upload handler and the orchestrator.
const (
	DefaultMaxUploadBytes = 10 << 20
	SessionListLimit      = 10
	DocumentListLimit     = 10
)

// Accepted upload file extensions per form field. The backend extracts the
// policy as PDF text; payslips may also be scanned images.
var (
	PolicyExtensions  = []string{".pdf"}
	PayslipExtensions = []string{".pdf", ".png", ".jpg", ".jpeg"}
)

type Config struct {
	Port           string
	AllowedOrigins []string

	SupabaseURL       string
	SupabaseKey       string
	SupabaseJWTSecret string

	StoreDriver   string
	BlobDriver    string
	DatabaseURL   string
	RunMigrations bool

	StorageBucket string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BackendURL       string
	BackendTimeout   time.Duration
	HealthRetryDelay time.Duration
	HealthInterval   time.Duration

	SignedURLTTL      time.Duration
	MaxUploadBytes    int64
	FeedPollInterval  time.Duration
	PresenceTTL       time.Duration
	AppendMaxAttempts int

	LogLevel  string
	LogFormat string
}

// Load builds a Config from the environment, applying defaults for unset
// variables. Malformed numbers and durations are reported, not ignored.
func Load() (Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Port = getEnv("PORT", "8080")
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", "*"))

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	cfg.SupabaseKey = os.Getenv("SUPABASE_KEY")
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", DriverSupabase))
	cfg.BlobDriver = strings.ToLower(getEnv("BLOB_DRIVER", DriverSupabase))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.RunMigrations, err = getBool("RUN_MIGRATIONS", false); err != nil {
		return cfg, err
	}

	cfg.StorageBucket = getEnv("STORAGE_BUCKET", "tax-documents")
	cfg.S3Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return cfg, err
	}

	cfg.BackendURL = strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/")
	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", 90*time.Second); err != nil {
		return cfg, err
	}
	if cfg.HealthRetryDelay, err = getDuration("HEALTH_RETRY_DELAY", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.HealthInterval, err = getDuration("HEALTH_INTERVAL", 0); err != nil {
		return cfg, err
	}

	if cfg.SignedURLTTL, err = getDuration("SIGNED_URL_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	if err != nil {
		return cfg, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.FeedPollInterval, err = getDuration("FEED_POLL_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.PresenceTTL, err = getDuration("PRESENCE_TTL", 30*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.AppendMaxAttempts, err = getInt("APPEND_MAX_ATTEMPTS", 5); err != nil {
		return cfg, err
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverSupabase, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.BlobDriver {
	case DriverSupabase, DriverS3, DriverMemory:
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	needsSupabase := c.StoreDriver == DriverSupabase || c.BlobDriver == DriverSupabase
	if needsSupabase && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL or SUPABASE_KEY is missing")
	}
	if (c.StoreDriver == DriverPostgres || c.RunMigrations) && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres driver and migrations")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.AppendMaxAttempts < 1 {
		return fmt.Errorf("APPEND_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
