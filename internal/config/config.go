package config

import (
	"errors"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"alcyxob/gym-notifier/internal/logger"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Triggers TriggerConfig  `mapstructure:"triggers"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Report   ReportConfig   `mapstructure:"report"`
	Log      logger.Config  `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the document store. Driver is "mongo" or "memory".
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	URI            string        `mapstructure:"uri"`
	Name           string        `mapstructure:"name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// JWTConfig holds the secret used to verify bearer tokens issued by the auth provider.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// TriggerConfig guards the internal webhook endpoints.
type TriggerConfig struct {
	Token string `mapstructure:"token"`
}

type ScheduleConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WeeklyCron string `mapstructure:"weekly_cron"`
	Timezone   string `mapstructure:"timezone"`
	Fanout     int    `mapstructure:"fanout"`
}

type ReportConfig struct {
	DefaultLookbackDays int `mapstructure:"default_lookback_days"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

// Loader wraps a viper instance so the file can be watched after the initial load.
type Loader struct {
	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "gym_notifier")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_pool_size", 50)
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.presign_expiry", "15m")
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.weekly_cron", "0 20 * * 0")
	v.SetDefault("schedule.timezone", "America/Sao_Paulo")
	v.SetDefault("schedule.fanout", 4)
	v.SetDefault("report.default_lookback_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_endpoint", "http://localhost:14268/api/traces")
}

// NewLoader prepares a viper instance reading config.yaml from path plus environment overrides.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)
	return &Loader{v: v}
}

// Load reads the config file if present and unmarshals the result.
// A missing file is not an error; defaults and env vars are used instead.
func (l *Loader) Load() (Config, error) {
	var cfg Config
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
	}
	if err := l.v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Watch re-reads the config file on every write and hands the new values to onChange.
// Only has an effect when a config file was found by Load.
func (l *Loader) Watch(onChange func(Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var cfg Config
		err := l.v.Unmarshal(&cfg)
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	return NewLoader(path).Load()
}
