package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

type Config struct {
	Env                   string `yaml:"env"`
	ShortIDLength         int    `yaml:"short_id_length"`
	CreateAttempts        int    `yaml:"create_attempts"`
	UpdateLastAccessOnGet bool   `yaml:"update_last_access_on_get"`
	HTTPServer            `yaml:"http_server"`
	Postgres              `yaml:"postgres"`
	Redis                 `yaml:"redis"`
	LocalCache            `yaml:"local_cache"`
	Cleanup               `yaml:"cleanup"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// Redis configures the optional Redis cache tier. The tier is skipped
// entirely when disabled.
type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

var defaultRedis = Redis{
	Host: "localhost",
	Port: 6379,
	TTL:  time.Hour,
}

func (r *Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LocalCache configures the optional in-process cache tier that sits in
// front of Redis.
type LocalCache struct {
	Enabled  bool          `yaml:"enabled"`
	MaxItems int64         `yaml:"max_items"`
	TTL      time.Duration `yaml:"ttl"`
}

var defaultLocalCache = LocalCache{
	MaxItems: 10000,
	TTL:      5 * time.Minute,
}

// Cleanup configures periodic pruning of links that have not been accessed
// within MaxAgeDays days.
type Cleanup struct {
	Enabled    bool          `yaml:"enabled"`
	MaxAgeDays int           `yaml:"max_age_days"`
	Interval   time.Duration `yaml:"interval"`
}

var defaultCleanup = Cleanup{
	MaxAgeDays: 30,
	Interval:   24 * time.Hour,
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.ShortIDLength = 7
	cfg.CreateAttempts = 3
	cfg.UpdateLastAccessOnGet = true
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
	cfg.LocalCache = defaultLocalCache
	cfg.Cleanup = defaultCleanup
}
