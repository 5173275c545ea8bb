package config

import (
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/internal/storage"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/repository"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Retention RetentionConfig
	MinIO     storage.MinIOConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig binds the notes repository. An empty URI selects the
// in-memory store.
type MongoDBConfig struct {
	URI             string
	Database        string
	Collection      string
	AutoGenerateIDs bool
	Timeout         time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RetentionConfig struct {
	Enabled   bool
	Days      int
	Interval  time.Duration
	BatchSize int
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5002")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "gogotex")
	v.SetDefault("MONGODB_COLLECTION", "notes")
	v.SetDefault("MONGODB_AUTO_GENERATE_IDS", true)
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RETENTION_ENABLED", true)
	v.SetDefault("RETENTION_DAYS", repository.DefaultRetentionDays)
	v.SetDefault("RETENTION_INTERVAL_MINUTES", 60)
	v.SetDefault("RETENTION_BATCH_SIZE", 500)
	v.SetDefault("MINIO_BUCKET", "gogotex-archive")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:             v.GetString("MONGODB_URI"),
			Database:        v.GetString("MONGODB_DATABASE"),
			Collection:      v.GetString("MONGODB_COLLECTION"),
			AutoGenerateIDs: v.GetBool("MONGODB_AUTO_GENERATE_IDS"),
			Timeout:         time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Retention: RetentionConfig{
			Enabled:   v.GetBool("RETENTION_ENABLED"),
			Days:      v.GetInt("RETENTION_DAYS"),
			Interval:  time.Duration(v.GetInt("RETENTION_INTERVAL_MINUTES")) * time.Minute,
			BatchSize: v.GetInt("RETENTION_BATCH_SIZE"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}
	return cfg, nil
}

// RepositoryConfig returns the binding for the notes repository, or nil when
// no MongoDB URI is set.
func (c *Config) RepositoryConfig() *repository.Config {
	if c.MongoDB.URI == "" {
		return nil
	}
	rc := repository.DefaultConfig()
	rc.ConnectionString = c.MongoDB.URI
	rc.Database = c.MongoDB.Database
	rc.Collection = c.MongoDB.Collection
	rc.AutoGenerateIDs = c.MongoDB.AutoGenerateIDs
	if c.MongoDB.Timeout > 0 {
		rc.ConnectTimeout = c.MongoDB.Timeout
	}
	return &rc
}
