package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port                   string
	LogMode                string
	DataDriver             string
	DatabaseURL            string
	JWTSecret              string
	JWTIssuer              string
	AccessTTLSeconds       int64
	RefreshTTLSeconds      int64
	ResetTTLSeconds        int64
	StorageDriver          string
	MediaStoragePath       string
	PublicBaseURL          string
	GCSBucket              string
	GCSCredentialsFile     string
	ReadStatePath          string
	CacheTTLSeconds        int
	RetryMaxTries          int
	MessagePageSize        int
	NotificationWindowDays int
	UploadMaxBytes         int64
	RedisAddr              string
	RedisChannel           string
	MetricsDiskPath        string
	MetricsSampleSeconds   int
	CorsOrigins            []string
}

func Load() Config {
	cfg := Config{
		Port:                   envOr("PORT", "8080"),
		LogMode:                envOr("LOG_MODE", "development"),
		DataDriver:             strings.ToLower(envOr("DATA_DRIVER", DriverPostgres)),
		JWTSecret:              mustEnv("JWT_SECRET"),
		JWTIssuer:              envOr("JWT_ISSUER", "lms-dashboard"),
		AccessTTLSeconds:       int64(envOrInt("ACCESS_TTL_SECONDS", 14400)),
		RefreshTTLSeconds:      int64(envOrInt("REFRESH_TTL_SECONDS", 1209600)),
		ResetTTLSeconds:        int64(envOrInt("RESET_TTL_SECONDS", 3600)),
		StorageDriver:          strings.ToLower(envOr("STORAGE_DRIVER", StorageLocal)),
		MediaStoragePath:       envOr("MEDIA_STORAGE_PATH", "storage/media"),
		PublicBaseURL:          strings.TrimRight(envOr("PUBLIC_BASE_URL", ""), "/"),
		GCSBucket:              envOr("GCS_BUCKET", ""),
		GCSCredentialsFile:     envOr("GCS_CREDENTIALS_FILE", ""),
		ReadStatePath:          envOr("READ_STATE_PATH", "storage/readstate.db"),
		CacheTTLSeconds:        envOrInt("CACHE_TTL_SECONDS", 30),
		RetryMaxTries:          envOrInt("RETRY_MAX_TRIES", 3),
		MessagePageSize:        envOrInt("MESSAGE_PAGE_SIZE", 20),
		NotificationWindowDays: envOrInt("NOTIFICATION_WINDOW_DAYS", 30),
		UploadMaxBytes:         int64(envOrInt("UPLOAD_MAX_BYTES", 50<<20)),
		RedisAddr:              envOr("REDIS_ADDR", ""),
		RedisChannel:           envOr("REDIS_CHANNEL", "lms-events"),
		MetricsDiskPath:        envOr("METRICS_DISK_PATH", "storage/media"),
		MetricsSampleSeconds:   envOrInt("METRICS_SAMPLE_INTERVAL", 10),
		CorsOrigins:            parseCSV(envOr("CORS_ORIGINS", "")),
	}
	if cfg.DataDriver == DriverPostgres {
		cfg.DatabaseURL = mustEnv("DATABASE_URL")
	}
	if cfg.StorageDriver == StorageGCS {
		cfg.GCSBucket = mustEnv("GCS_BUCKET")
	}
	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = 20
	}
	if cfg.NotificationWindowDays <= 0 {
		cfg.NotificationWindowDays = 30
	}
	return cfg
}

func mustEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		panic("missing env var: " + key)
	}
	return value
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
