package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// NotSet is displayed when TEST_ENV_VAR is absent from the environment.
const NotSet = "NOT SET"

// Variant selects which of the two test apps is being configured.
type Variant struct {
	Name           string
	DefaultDataDir string
	// Messages enables the message form and the user_message field.
	Messages bool
}

var (
	// Basic shows the env var and persisted document only.
	Basic = Variant{Name: "basic", DefaultDataDir: "./data"}
	// Message adds the POST /update-message form.
	Message = Variant{Name: "message", DefaultDataDir: "/data", Messages: true}
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Data      DataConfig
	Log       LogConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Lock      LockConfig
	MinIO     MinIOConfig
	MongoDB   MongoDBConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr is the listen address of the main HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type AppConfig struct {
	Name       string
	TestEnvVar string
	Messages   bool
}

type DataConfig struct {
	Dir string
}

type LogConfig struct {
	Level string
}

type MetricsConfig struct {
	// Addr of the separate metrics listener; empty disables it.
	Addr string
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type LockConfig struct {
	Key     string
	TTL     time.Duration
	Timeout time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// LoadConfig loads configuration from environment variables and an optional .env file.
// Values are read once here and passed down explicitly; nothing else reads the environment.
func LoadConfig(variant Variant) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	// a variable the cluster injected as "" must show up as "", not as unset
	v.AllowEmptyEnv(true)

	defaults := map[string]interface{}{
		"SERVER_PORT":               "8080",
		"SERVER_HOST":               "0.0.0.0",
		"SERVER_READ_TIMEOUT":       30,
		"SERVER_WRITE_TIMEOUT":      30,
		"DATA_DIR":                  variant.DefaultDataDir,
		"TEST_ENV_VAR":              NotSet,
		"APP_NAME":                  variant.Name,
		"LOG_LEVEL":                 "info",
		"RATE_LIMIT_RPS":            1.0,
		"RATE_LIMIT_BURST":          5,
		"RATE_LIMIT_WINDOW_SECONDS": 60,
		"REDIS_PORT":                "6379",
		"LOCK_KEY":                  "clustertest:lock:app_data",
		"LOCK_TTL_SECONDS":          10,
		"LOCK_TIMEOUT_SECONDS":      15,
		"MINIO_BUCKET":              "clustertest",
		"MONGODB_DATABASE":          "clustertest",
		"MONGODB_TIMEOUT":           10,
	}
	for k, d := range defaults {
		v.SetDefault(k, d)
		// TEST_ENV_VAR is displayed verbatim; for every other key an empty
		// value means "use the default"
		if k != "TEST_ENV_VAR" && v.GetString(k) == "" {
			v.Set(k, d)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			ReadTimeout:  time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout: time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
		},
		App: AppConfig{
			Name:       v.GetString("APP_NAME"),
			TestEnvVar: v.GetString("TEST_ENV_VAR"),
			Messages:   variant.Messages,
		},
		Data: DataConfig{
			Dir: v.GetString("DATA_DIR"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("METRICS_ADDR"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Lock: LockConfig{
			Key:     v.GetString("LOCK_KEY"),
			TTL:     time.Duration(v.GetInt("LOCK_TTL_SECONDS")) * time.Second,
			Timeout: time.Duration(v.GetInt("LOCK_TIMEOUT_SECONDS")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			Prefix:    v.GetString("MINIO_PREFIX"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.Burst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be at least 1, got %d", cfg.RateLimit.Burst)
	}

	return cfg, nil
}
