package config

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "TASKBOARD"

// Setting keys, shared by viper, the config file and the cobra flags.
const (
	KeyAPIURL                 = "api_url"
	KeySocketURL              = "socket_url"
	KeyRequestTimeout         = "request_timeout"
	KeyStaleTime              = "stale_time"
	KeyPageLimit              = "page_limit"
	KeyLogFile                = "log_file"
	KeyAppHost                = "app_host"
	KeyAppPort                = "app_port"
	KeyDatabaseDSN            = "database_dsn"
	KeyRateLimit              = "rate_limit_per_minute"
	KeyRedisAddr              = "redis_addr"
	KeyShutdownTimeoutSeconds = "shutdown_timeout_seconds"
)

type Config struct {
	APIURL         string        `yaml:"api_url"`
	SocketURL      string        `yaml:"socket_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StaleTime      time.Duration `yaml:"stale_time"`
	PageLimit      int           `yaml:"page_limit"`
	LogFile        string        `yaml:"log_file,omitempty"`

	AppHost                string `yaml:"app_host"`
	AppPort                string `yaml:"app_port"`
	DatabaseDSN            string `yaml:"database_dsn"`
	RateLimit              int    `yaml:"rate_limit_per_minute"`
	RedisAddr              string `yaml:"redis_addr,omitempty"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// NewViper returns a viper instance with defaults and environment bindings.
// Each key answers to TASKBOARD_<KEY> first and to the bare names the task
// service deployment already uses.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAPIURL, "")
	v.SetDefault(KeySocketURL, "")
	v.SetDefault(KeyRequestTimeout, 10*time.Second)
	v.SetDefault(KeyStaleTime, 2*time.Second)
	v.SetDefault(KeyPageLimit, 50)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyAppHost, "127.0.0.1")
	v.SetDefault(KeyAppPort, "8080")
	v.SetDefault(KeyDatabaseDSN, "tasks.db")
	v.SetDefault(KeyRateLimit, 600)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyShutdownTimeoutSeconds, 20)

	bindEnv(v, KeyAPIURL, "API_URL", "NEXT_PUBLIC_API_URL")
	bindEnv(v, KeySocketURL, "SOCKET_URL")
	bindEnv(v, KeyAppHost, "APP_HOST")
	bindEnv(v, KeyAppPort, "APP_PORT")
	bindEnv(v, KeyDatabaseDSN, "DATABASE_DSN")
	bindEnv(v, KeyRateLimit, "RATE_LIMIT_PER_MINUTE")
	bindEnv(v, KeyRedisAddr, "REDIS_ADDR")
	bindEnv(v, KeyShutdownTimeoutSeconds, "SHUTDOWN_TIMEOUT_SECONDS")
	return v
}

func bindEnv(v *viper.Viper, key string, fallbacks ...string) {
	names := append([]string{EnvPrefix + "_" + strings.ToUpper(key)}, fallbacks...)
	_ = v.BindEnv(append([]string{key}, names...)...)
}

// LoadEnvFiles loads .env style files into the process environment. A
// missing file is not an error.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			log.Printf("%s not loaded, using environment variables", path)
		}
	}
}

// ReadFile merges a YAML config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		APIURL:                 strings.TrimSpace(v.GetString(KeyAPIURL)),
		SocketURL:              strings.TrimSpace(v.GetString(KeySocketURL)),
		RequestTimeout:         v.GetDuration(KeyRequestTimeout),
		StaleTime:              v.GetDuration(KeyStaleTime),
		PageLimit:              v.GetInt(KeyPageLimit),
		LogFile:                strings.TrimSpace(v.GetString(KeyLogFile)),
		AppHost:                v.GetString(KeyAppHost),
		AppPort:                v.GetString(KeyAppPort),
		DatabaseDSN:            v.GetString(KeyDatabaseDSN),
		RateLimit:              v.GetInt(KeyRateLimit),
		RedisAddr:              strings.TrimSpace(v.GetString(KeyRedisAddr)),
		ShutdownTimeoutSeconds: v.GetInt(KeyShutdownTimeoutSeconds),
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = cfg.APIURL
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks the client settings. The API URL is deliberately not
// required here: its absence is reported by the gateway on first use.
func validate(cfg Config) error {
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("%s must be greater than 0", KeyRequestTimeout)
	}
	if cfg.StaleTime < 0 {
		return fmt.Errorf("%s must not be negative", KeyStaleTime)
	}
	if cfg.PageLimit <= 0 {
		return fmt.Errorf("%s must be greater than 0", KeyPageLimit)
	}
	return nil
}

// ValidateServer checks the settings the serve command needs.
func (c Config) ValidateServer() error {
	if c.AppHost == "" || c.AppPort == "" {
		return fmt.Errorf("%s and %s must not be empty (e.g. 127.0.0.1 and 8080)", KeyAppHost, KeyAppPort)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("%s must not be empty", KeyDatabaseDSN)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("%s must be greater than 0", KeyRateLimit)
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("%s must be greater than 0", KeyShutdownTimeoutSeconds)
	}
	return nil
}

// AppURL is the listen address of the reference service.
func (c Config) AppURL() string {
	return net.JoinHostPort(c.AppHost, c.AppPort)
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
