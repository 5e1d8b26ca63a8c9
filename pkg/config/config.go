package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDatabase = "database"
	StoreMemory   = "memory"

	MediaLocal      = "local"
	MediaFirebase   = "firebase"
	MediaCloudinary = "cloudinary"
)

type Config struct {
	Port        string
	Env         string
	MetricsPort string
	CORSOrigins []string

	StoreDriver       string
	PostgresURL       string
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool

	JWTSecret string
	JWTTTL    time.Duration

	FirebaseCredentialsPath string
	FirebaseStorageBucket   string

	MediaDriver      string
	MediaDir         string
	MediaBaseURL     string
	MediaMaxBytes    int64
	CloudinaryCloud  string
	CloudinaryKey    string
	CloudinarySecret string
	CloudinaryFolder string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		StoreDriver:       getEnv("STORE_DRIVER", StoreDatabase),
		PostgresURL:       getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDatabase:     getEnv("MONGO_DATABASE", "socialmedia"),
		MongoTransactions: getEnvBool("MONGO_TRANSACTIONS", false),

		JWTSecret: getEnv("JWT_SECRET", "supersecretjwtkey"),
		JWTTTL:    getEnvDuration("JWT_TTL", 72*time.Hour),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseStorageBucket:   getEnv("FIREBASE_STORAGE_BUCKET", ""),

		MediaDriver:      getEnv("MEDIA_DRIVER", MediaLocal),
		MediaDir:         getEnv("MEDIA_DIR", "./uploads"),
		MediaBaseURL:     getEnv("MEDIA_BASE_URL", "/uploads"),
		MediaMaxBytes:    getEnvInt64("MEDIA_MAX_BYTES", 10<<20),
		CloudinaryCloud:  getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinarySecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder: getEnv("CLOUDINARY_FOLDER", "social-media"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreDatabase:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_CONN_STR environment variable not set")
		}
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable not set")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.MediaDriver {
	case MediaLocal:
		if c.MediaDir == "" {
			return fmt.Errorf("MEDIA_DIR must be set for the local media driver")
		}
	case MediaFirebase:
		if c.FirebaseCredentialsPath == "" || c.FirebaseStorageBucket == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH and FIREBASE_STORAGE_BUCKET are required for the firebase media driver")
		}
	case MediaCloudinary:
		if c.CloudinaryCloud == "" || c.CloudinaryKey == "" || c.CloudinarySecret == "" {
			return fmt.Errorf("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required for the cloudinary media driver")
		}
	default:
		return fmt.Errorf("unknown MEDIA_DRIVER %q", c.MediaDriver)
	}

	if c.MediaMaxBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be positive")
	}
	if c.Env == "production" && c.JWTSecret == "supersecretjwtkey" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
