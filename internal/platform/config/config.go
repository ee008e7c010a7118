// Package config loads service configuration from defaults, an optional
// config.yaml, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"minister/internal/slotgrid"
	liststr "minister/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type Database struct {
	URL       string
	TxTimeout time.Duration
}

// RedisConfig configures the optional Redis connection. An empty URL
// disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

type Outbox struct {
	BatchSize    int
	PollInterval time.Duration
}

// Subject is one roster entry.
type Subject struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	GroupID string `mapstructure:"group_id"`
}

type Auth struct {
	AdminToken   string
	Admins       []string
	GlobalAdmins []string
	Subjects     []Subject
}

type Booking struct {
	DefaultMode slotgrid.Mode
}

type Log struct {
	Level  string
	Format string
}

type Profile struct {
	APIURL     string
	RatePerSec float64
	Burst      int
	CacheTTL   time.Duration
	Timeout    time.Duration
}

type Config struct {
	Server   Server
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
	Outbox   Outbox
	Auth     Auth
	Booking  Booking
	Log      Log
	Profile  Profile
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MINISTER_ADDR", ":8080")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("TX_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "minister.history")
	v.SetDefault("KAFKA_PARTITIONS", 3)
	v.SetDefault("KAFKA_REPLICATION_FACTOR", 1)
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_POLL_INTERVAL", time.Second)
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("ADMINS", "")
	v.SetDefault("GLOBAL_ADMINS", "")
	v.SetDefault("DEFAULT_SLOT_MODE", string(slotgrid.Standard))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PROFILE_API_URL", "")
	v.SetDefault("PROFILE_RATE_PER_SEC", 5.0)
	v.SetDefault("PROFILE_BURST", 5)
	v.SetDefault("PROFILE_CACHE_TTL", 10*time.Minute)
	v.SetDefault("PROFILE_TIMEOUT", 2*time.Second)
}

// Load reads configuration. paths are searched for config.yaml; a missing
// file is not an error.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	mode, err := slotgrid.ParseMode(v.GetString("DEFAULT_SLOT_MODE"))
	if err != nil {
		return Config{}, fmt.Errorf("DEFAULT_SLOT_MODE: %w", err)
	}

	var subjects []Subject
	if err := v.UnmarshalKey("subjects", &subjects); err != nil {
		return Config{}, fmt.Errorf("decode subjects: %w", err)
	}

	cfg := Config{
		Server: Server{
			Addr:            v.GetString("MINISTER_ADDR"),
			RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: Database{
			URL:       v.GetString("DATABASE_URL"),
			TxTimeout: v.GetDuration("TX_TIMEOUT"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
		},
		Kafka: Kafka{
			Brokers:           liststr.SplitList(v.GetString("KAFKA_BROKERS"), ","),
			Topic:             v.GetString("KAFKA_TOPIC"),
			Partitions:        v.GetInt32("KAFKA_PARTITIONS"),
			ReplicationFactor: int16(v.GetInt("KAFKA_REPLICATION_FACTOR")),
		},
		Outbox: Outbox{
			BatchSize:    v.GetInt("OUTBOX_BATCH_SIZE"),
			PollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
		},
		Auth: Auth{
			AdminToken:   v.GetString("ADMIN_TOKEN"),
			Admins:       liststr.SplitList(v.GetString("ADMINS"), ","),
			GlobalAdmins: liststr.SplitList(v.GetString("GLOBAL_ADMINS"), ","),
			Subjects:     subjects,
		},
		Booking: Booking{DefaultMode: mode},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Profile: Profile{
			APIURL:     v.GetString("PROFILE_API_URL"),
			RatePerSec: v.GetFloat64("PROFILE_RATE_PER_SEC"),
			Burst:      v.GetInt("PROFILE_BURST"),
			CacheTTL:   v.GetDuration("PROFILE_CACHE_TTL"),
			Timeout:    v.GetDuration("PROFILE_TIMEOUT"),
		},
	}
	if cfg.Outbox.BatchSize <= 0 {
		return Config{}, errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	return cfg, nil
}
