package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	RollupModeInline   = "inline"
	RollupModeDetached = "detached"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Identity  IdentityConfig  `mapstructure:"identity"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | postgres | sqlite
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	Charset      string
	ParseTime    bool   `mapstructure:"parse_time"`
	Path         string `mapstructure:"path"` // sqlite only
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level        string `mapstructure:"level"`
	File         string `mapstructure:"file"`
	RollbarToken string `mapstructure:"rollbar_token"`
}

type TracingConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	SampleRatio       float64 `mapstructure:"sample_ratio"` // 0~1，根 span 采样比例
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// TrackingConfig 进度追踪引擎参数
type TrackingConfig struct {
	RollupMode     string `mapstructure:"rollup_mode"`
	RollupWorkers  int    `mapstructure:"rollup_workers"`
	RollupQueue    int    `mapstructure:"rollup_queue"`
	StoreTimeoutMS int    `mapstructure:"store_timeout_ms"`
	LockTTLMS      int    `mapstructure:"lock_ttl_ms"`
	LockWaitMS     int    `mapstructure:"lock_wait_ms"`
	RepairCron     string `mapstructure:"repair_cron"`
}

func (t TrackingConfig) StoreTimeout() time.Duration {
	return time.Duration(t.StoreTimeoutMS) * time.Millisecond
}

func (t TrackingConfig) LockTTL() time.Duration {
	return time.Duration(t.LockTTLMS) * time.Millisecond
}

func (t TrackingConfig) LockWait() time.Duration {
	return time.Duration(t.LockWaitMS) * time.Millisecond
}

type IdentityConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// DefaultTracking 返回追踪引擎的默认参数，测试与脚本也会用到
func DefaultTracking() TrackingConfig {
	return TrackingConfig{
		RollupMode:     RollupModeDetached,
		RollupWorkers:  4,
		RollupQueue:    256,
		StoreTimeoutMS: 3000,
		LockTTLMS:      10000,
		LockWaitMS:     3000,
		RepairCron:     "0 3 * * *",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultTracking()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("rate_limit.max_requests", 100000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("tracking.rollup_mode", d.RollupMode)
	v.SetDefault("tracking.rollup_workers", d.RollupWorkers)
	v.SetDefault("tracking.rollup_queue", d.RollupQueue)
	v.SetDefault("tracking.store_timeout_ms", d.StoreTimeoutMS)
	v.SetDefault("tracking.lock_ttl_ms", d.LockTTLMS)
	v.SetDefault("tracking.lock_wait_ms", d.LockWaitMS)
	v.SetDefault("tracking.repair_cron", d.RepairCron)
	v.SetDefault("identity.timeout_ms", 2000)
}

func LoadConfig(path string) (*Config, error) {
	// .env 可选，不存在时直接使用系统环境变量
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LMS_TRACKING")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// Log
	v.BindEnv("log.rollbar_token", "ROLLBAR_TOKEN")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Tracking
	v.BindEnv("tracking.rollup_mode", "TRACKING_ROLLUP_MODE")

	// Identity
	v.BindEnv("identity.base_url", "IDENTITY_BASE_URL")
	v.BindEnv("identity.api_key", "IDENTITY_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Tracking.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (t TrackingConfig) Validate() error {
	if t.RollupMode != RollupModeInline && t.RollupMode != RollupModeDetached {
		return fmt.Errorf("tracking.rollup_mode must be %q or %q, got %q", RollupModeInline, RollupModeDetached, t.RollupMode)
	}
	if t.RollupWorkers <= 0 {
		return fmt.Errorf("tracking.rollup_workers must be positive, got %d", t.RollupWorkers)
	}
	if t.StoreTimeoutMS <= 0 {
		return fmt.Errorf("tracking.store_timeout_ms must be positive, got %d", t.StoreTimeoutMS)
	}
	return nil
}
