package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/pkg/storage"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	AI       AIConfig
	Services ServicesConfig
	AWS      AWSConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds bearer token verification settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string
}

// AIConfig selects the script generator.
type AIConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	UseMock       bool
}

// ServicesConfig points at the voice and video generation services.
type ServicesConfig struct {
	VoiceURL       string
	VideoURL       string
	HTTPTimeoutSec int // 0 = no timeout
}

// AWSConfig holds AWS credentials and the reels archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ReelsBucket          string
	PresignExpireMinutes int
	Endpoint             string // optional, for S3-compatible stores
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	Concurrency       int
	InProcess         bool // run the job worker inside the HTTP server
	JobStatusTTLHours int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Pipeline returns the stage settings for pipeline.NewFromConfig.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		UseMock:       c.AI.UseMock,
		OpenAIAPIKey:  c.AI.OpenAIAPIKey,
		OpenAIBaseURL: c.AI.OpenAIBaseURL,
		OpenAIModel:   c.AI.OpenAIModel,
		VoiceEndpoint: c.Services.VoiceURL,
		VideoEndpoint: c.Services.VideoURL,
		HTTPTimeout:   time.Duration(c.Services.HTTPTimeoutSec) * time.Second,
	}
}

// S3 returns the storage settings, or false when no reels bucket is configured.
func (c *Config) S3() (storage.S3Config, bool) {
	if c.AWS.ReelsBucket == "" {
		return storage.S3Config{}, false
	}
	return storage.S3Config{
		Region:               c.AWS.Region,
		AccessKeyID:          c.AWS.AccessKeyID,
		SecretAccessKey:      c.AWS.SecretAccessKey,
		ReelsBucket:          c.AWS.ReelsBucket,
		PresignExpireMinutes: c.AWS.PresignExpireMinutes,
		Endpoint:             c.AWS.Endpoint,
	}, true
}

// JobStatusTTL is how long asynchronous job statuses stay readable.
func (c WorkerConfig) JobStatusTTL() time.Duration {
	return time.Duration(c.JobStatusTTLHours) * time.Hour
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "5000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "pinereel"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		AI: AIConfig{
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", pipeline.DefaultScriptModel),
			UseMock:       strings.EqualFold(os.Getenv("USE_MOCK_AI"), "true"),
		},
		Services: ServicesConfig{
			VoiceURL:       getEnv("VOICE_SERVICE_URL", pipeline.DefaultVoiceEndpoint),
			VideoURL:       getEnv("VIDEO_SERVICE_URL", pipeline.DefaultVideoEndpoint),
			HTTPTimeoutSec: getEnvInt("STAGE_HTTP_TIMEOUT_SEC", 0),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ReelsBucket:          getEnv("AWS_S3_REELS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 4),
			InProcess:         strings.EqualFold(os.Getenv("WORKER_IN_PROCESS"), "true"),
			JobStatusTTLHours: getEnvInt("JOB_STATUS_TTL_HOURS", 24),
		},
	}
	if cfg.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Services.HTTPTimeoutSec < 0 {
		return nil, fmt.Errorf("STAGE_HTTP_TIMEOUT_SEC must not be negative, got %d", cfg.Services.HTTPTimeoutSec)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
