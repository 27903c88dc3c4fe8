package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HEALTHREC_DATABASE_HOST.
const EnvPrefix = "HEALTHREC"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `mapstructure:"database" envconfig:"DATABASE"`
	Redis     RedisConfig     `mapstructure:"redis" envconfig:"REDIS"`
	JWT       JWTConfig       `mapstructure:"jwt" envconfig:"JWT"`
	Storage   StorageConfig   `mapstructure:"storage" envconfig:"STORAGE"`
	SMTP      SMTPConfig      `mapstructure:"smtp" envconfig:"SMTP"`
	Reminders RemindersConfig `mapstructure:"reminders" envconfig:"REMINDERS"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	Log       LogConfig       `mapstructure:"log" envconfig:"LOG"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" split_words:"true"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" split_words:"true"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" split_words:"true"`
	// Driver selects the repository backend: postgres or memory.
	Driver string `mapstructure:"driver" split_words:"true"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" split_words:"true"`
	Port            int           `mapstructure:"port" split_words:"true"`
	User            string        `mapstructure:"user" split_words:"true"`
	Password        string        `mapstructure:"password" split_words:"true"`
	Name            string        `mapstructure:"name" split_words:"true"`
	SSLMode         string        `mapstructure:"sslmode" split_words:"true"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

// DSN renders a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	// URL empty disables redis; reminders then go to the log sink and the
	// worker runs without a lock.
	URL          string        `mapstructure:"url" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	Channel      string        `mapstructure:"channel" split_words:"true"`
}

type JWTConfig struct {
	Secret      string        `mapstructure:"secret" split_words:"true"`
	Issuer      string        `mapstructure:"issuer" split_words:"true"`
	ExpiryHours int           `mapstructure:"expiry_hours" split_words:"true"`
	FileURLTTL  time.Duration `mapstructure:"file_url_ttl" split_words:"true"`
	// AllowStaffSignup lets public registration create doctor and admin
	// accounts. Off, staff accounts come from healthctl.
	AllowStaffSignup bool `mapstructure:"allow_staff_signup" split_words:"true"`
}

type StorageConfig struct {
	// Driver is fs or memory.
	Driver        string `mapstructure:"driver" split_words:"true"`
	Root          string `mapstructure:"root" split_words:"true"`
	PublicBaseURL string `mapstructure:"public_base_url" split_words:"true"`
	// EncryptionSecret, when set, encrypts blobs at rest with AES-GCM.
	EncryptionSecret string `mapstructure:"encryption_secret" split_words:"true"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" split_words:"true"`
	Port     int    `mapstructure:"port" split_words:"true"`
	Username string `mapstructure:"username" split_words:"true"`
	Password string `mapstructure:"password" split_words:"true"`
	From     string `mapstructure:"from" split_words:"true"`
}

// Enabled reports whether enough is configured to send real mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type RemindersConfig struct {
	VaccinationHorizonDays int           `mapstructure:"vaccination_horizon_days" split_words:"true"`
	AppointmentHorizonDays int           `mapstructure:"appointment_horizon_days" split_words:"true"`
	Timezone               string        `mapstructure:"timezone" split_words:"true"`
	Interval               time.Duration `mapstructure:"interval" split_words:"true"`
	ReadTimeout            time.Duration `mapstructure:"read_timeout" split_words:"true"`
	Deadline               time.Duration `mapstructure:"deadline" split_words:"true"`
	ScanConcurrency        int           `mapstructure:"scan_concurrency" split_words:"true"`
	StatsCacheTTL          time.Duration `mapstructure:"stats_cache_ttl" split_words:"true"`
	LockTTL                time.Duration `mapstructure:"lock_ttl" split_words:"true"`
	SendRetries            uint64        `mapstructure:"send_retries" split_words:"true"`
	// HealthAddr is where the worker serves /health and /metrics.
	HealthAddr string `mapstructure:"health_addr" split_words:"true"`
}

// Location resolves Timezone, falling back to the process local zone.
func (c RemindersConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reminders.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" split_words:"true"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst" split_words:"true"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" split_words:"true"`
	Console bool   `mapstructure:"console" split_words:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(20<<20))
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.driver", "postgres")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "health_records")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.channel", "health-records.reminders")

	v.SetDefault("jwt.issuer", "health-records")
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("jwt.file_url_ttl", 15*time.Minute)

	v.SetDefault("storage.driver", "fs")
	v.SetDefault("storage.root", "./data/blobs")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("reminders.vaccination_horizon_days", 7)
	v.SetDefault("reminders.appointment_horizon_days", 1)
	v.SetDefault("reminders.timezone", "Local")
	v.SetDefault("reminders.interval", 24*time.Hour)
	v.SetDefault("reminders.read_timeout", 5*time.Second)
	v.SetDefault("reminders.deadline", 60*time.Second)
	v.SetDefault("reminders.scan_concurrency", 4)
	v.SetDefault("reminders.stats_cache_ttl", time.Minute)
	v.SetDefault("reminders.lock_ttl", 30*time.Minute)
	v.SetDefault("reminders.send_retries", 3)
	v.SetDefault("reminders.health_addr", ":8081")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
}

// Load reads .env, then config.yaml from the usual search paths (or the file
// named by CONFIG_FILE), then applies HEALTHREC_* environment overrides.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile reads a specific config file without consulting search paths.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const maxHorizonDays = 3650

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Reminders.VaccinationHorizonDays < 0 || c.Reminders.VaccinationHorizonDays > maxHorizonDays {
		return fmt.Errorf("reminders.vaccination_horizon_days must be between 0 and %d", maxHorizonDays)
	}
	if c.Reminders.AppointmentHorizonDays > maxHorizonDays {
		return fmt.Errorf("reminders.appointment_horizon_days must be <= %d", maxHorizonDays)
	}
	if c.Reminders.AppointmentHorizonDays < 1 {
		return fmt.Errorf("reminders.appointment_horizon_days must be >= 1")
	}
	if c.Reminders.ScanConcurrency < 1 {
		return fmt.Errorf("reminders.scan_concurrency must be >= 1")
	}
	if _, err := c.Reminders.Location(); err != nil {
		return err
	}
	switch c.Server.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("server.driver must be postgres or memory, got %q", c.Server.Driver)
	}
	switch c.Storage.Driver {
	case "fs", "memory":
	default:
		return fmt.Errorf("storage.driver must be fs or memory, got %q", c.Storage.Driver)
	}
	return nil
}
