package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	Cache   CacheConfig
	Sync    SyncConfig
	Storage StorageConfig
	Audio   AudioConfig
	Seeder  SeederConfig
}

// DBType represents database type
type DBType string

const (
	DBTypePostgreSQL DBType = "postgres"
	DBTypeSQLite     DBType = "sqlite"
	DBTypeMemory     DBType = "memory"
)

// DBConfig holds database configuration
type DBConfig struct {
	Type     DBType
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the database connection string
func (c DBConfig) DSN() string {
	switch c.Type {
	case DBTypeMemory:
		// SQLite in-memory database
		if c.Name != "" && c.Name != "guide" {
			return fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", c.Name)
		}
		return "file::memory:?cache=shared&_foreign_keys=1"
	case DBTypeSQLite:
		return fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=5000", c.Path)
	}
	// PostgreSQL connection string
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// IsMemory returns true if using in-memory database
func (c DBConfig) IsMemory() bool {
	return c.Type == DBTypeMemory
}

// IsSQLite returns true for both the file-backed and the in-memory SQLite store
func (c DBConfig) IsSQLite() bool {
	return c.Type == DBTypeMemory || c.Type == DBTypeSQLite
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
}

// CacheConfig controls the request cache tiers.
type CacheConfig struct {
	// Dir is the badger directory; empty keeps the tiers in memory.
	Dir          string
	Prefix       string
	Generation   string
	AppOrigin    string
	StaticAssets []string
	TileOrigins  []string
}

// SyncConfig controls the remote API client and the visit queue drain.
type SyncConfig struct {
	APIBaseURL     string
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
	// MaxAttempts dead-letters a queued visit after that many failed drains. 0 retries forever.
	MaxAttempts int
	StartOnline bool
}

// StorageConfig holds the persistent store budget.
type StorageConfig struct {
	// QuotaBytes caps packages plus audio. 0 disables the check.
	QuotaBytes int64
}

// AudioConfig holds audio prefetch settings
type AudioConfig struct {
	PrefetchInterval time.Duration
}

// SeederConfig holds settings for bundled package import
type SeederConfig struct {
	DataDir string
}

var (
	defaultStaticAssets = []string{"/", "/index.html", "/manifest.json", "/icon.svg", "/icon-192.jpg", "/icon-512.jpg"}
	defaultTileOrigins  = []string{
		"https://tile.openstreetmap.org",
		"https://a.tile.openstreetmap.org",
		"https://b.tile.openstreetmap.org",
		"https://c.tile.openstreetmap.org",
	}
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbType := DBType(getEnv("DB_TYPE", "sqlite"))
	switch dbType {
	case DBTypePostgreSQL, DBTypeSQLite, DBTypeMemory:
	default:
		dbType = DBTypeSQLite
	}

	staticAssets := getEnvAsSlice("CACHE_STATIC_ASSETS")
	if len(staticAssets) == 0 {
		staticAssets = append([]string(nil), defaultStaticAssets...)
	}
	tileOrigins := getEnvAsSlice("CACHE_TILE_ORIGINS")
	if len(tileOrigins) == 0 {
		tileOrigins = append([]string(nil), defaultTileOrigins...)
	}

	config := &Config{
		DB: DBConfig{
			Type:     dbType,
			Path:     getEnv("DB_PATH", "guide-offline.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "guide"),
			Password: getEnv("DB_PASSWORD", "guide_password"),
			Name:     getEnv("DB_NAME", "guide"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("APP_PORT", "8080"),
		},
		Cache: CacheConfig{
			Dir:          getEnv("CACHE_DIR", ""),
			Prefix:       getEnv("CACHE_PREFIX", "gps-audio-guide-"),
			Generation:   getEnv("CACHE_GENERATION", "gps-audio-guide-v1"),
			AppOrigin:    getEnv("CACHE_APP_ORIGIN", "http://localhost:5000"),
			StaticAssets: staticAssets,
			TileOrigins:  tileOrigins,
		},
		Sync: SyncConfig{
			APIBaseURL:     getEnv("SYNC_API_BASE_URL", "http://localhost:5000"),
			ProbeInterval:  getEnvAsDuration("SYNC_PROBE_INTERVAL", 15*time.Second),
			RequestTimeout: getEnvAsDuration("SYNC_REQUEST_TIMEOUT", 20*time.Second),
			MaxAttempts:    getEnvAsInt("SYNC_MAX_ATTEMPTS", 0),
			StartOnline:    getEnvAsBool("SYNC_START_ONLINE", true),
		},
		Storage: StorageConfig{
			QuotaBytes: getEnvAsInt64("STORAGE_QUOTA_BYTES", 0),
		},
		Audio: AudioConfig{
			PrefetchInterval: getEnvAsDuration("AUDIO_PREFETCH_INTERVAL", 300*time.Millisecond),
		},
		Seeder: SeederConfig{
			DataDir: getEnv("SEEDER_DATA_DIR", "data"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
