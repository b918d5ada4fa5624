// Package config carrega a configuração do gateway uma única vez na partida:
// defaults, depois o YAML (GATEWAY_CONFIG, padrão gateway.yaml), depois as
// variáveis GATEWAY_* (com "__" separando níveis). Um .env opcional é lido antes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

const (
	EnvPrefix      = "GATEWAY_"
	EnvConfigPath  = "GATEWAY_CONFIG"
	DefaultFile    = "gateway.yaml"
	MinSecretBytes = 32
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Redis     RedisConfig     `koanf:"redis"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Routes    []RouteConfig   `koanf:"routes"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

type ServerConfig struct {
	ListenAddr        string        `koanf:"listen_addr"`
	AdminAddr         string        `koanf:"admin_addr"` // vazio desliga a porta admin
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level        string `koanf:"level"`
	Format       string `koanf:"format"` // json, text
	AccessBuffer int    `koanf:"access_buffer"`
}

type AuthConfig struct {
	JWTSecret   string   `koanf:"jwt_secret"`
	PublicPaths []string `koanf:"public_paths"`
}

type RateLimitConfig struct {
	Enabled                  bool          `koanf:"enabled"`
	Store                    string        `koanf:"store"` // redis (compartilhado) ou memory (instância única)
	WindowSeconds            int           `koanf:"window_seconds"`
	BurstCapacity            int64         `koanf:"burst_capacity"`
	IdentityHeader           string        `koanf:"identity_header"`
	KeyPrefix                string        `koanf:"key_prefix"`
	UseAuthenticatedIdentity bool          `koanf:"use_authenticated_identity"`
	StoreTimeout             time.Duration `koanf:"store_timeout"`
	Stats                    StatsConfig   `koanf:"stats"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type StatsConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Prefix    string        `koanf:"prefix"`
	TTL       time.Duration `koanf:"ttl"`
	Bucket    string        `koanf:"bucket"` // minute, none
	TrackKeys bool          `koanf:"track_keys"`
}

type RedisConfig struct {
	Addr           string        `koanf:"addr"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	DialTimeout    time.Duration `koanf:"dial_timeout"`
	ConnectRetries uint          `koanf:"connect_retries"`
}

type UpstreamConfig struct {
	Timeout        time.Duration `koanf:"timeout"`
	MaxConcurrent  int           `koanf:"max_concurrent"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
}

type RouteConfig struct {
	ID          string `koanf:"id"`
	Path        string `koanf:"path"`
	StripPrefix int    `koanf:"strip_prefix"`
	URI         string `koanf:"uri"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.listen_addr":         ":8080",
	"server.admin_addr":          ":9090",
	"server.read_header_timeout": "10s",
	"server.shutdown_timeout":    "10s",

	"log.level":         "info",
	"log.format":        "json",
	"log.access_buffer": 1024,

	"auth.public_paths": []string{"/api/auth"},

	"rate_limit.enabled":                    true,
	"rate_limit.store":                      "redis",
	"rate_limit.window_seconds":             60,
	"rate_limit.burst_capacity":             60,
	"rate_limit.identity_header":            "X-Forwarded-For",
	"rate_limit.key_prefix":                 "gateway:rate",
	"rate_limit.use_authenticated_identity": false,
	"rate_limit.store_timeout":              "100ms",
	"rate_limit.stats.enabled":              false,
	"rate_limit.stats.prefix":               "gateway:stats",
	"rate_limit.stats.ttl":                  "24h",
	"rate_limit.stats.bucket":               "minute",
	"rate_limit.stats.track_keys":           false,

	"redis.addr":            "localhost:6379",
	"redis.db":              0,
	"redis.dial_timeout":    "2s",
	"redis.connect_retries": 5,

	"upstream.timeout":         "30s",
	"upstream.max_concurrent":  0,
	"upstream.acquire_timeout": "0s",

	"tracing.enabled":      false,
	"tracing.service_name": "edge-gateway",
}

// DefaultRoutes é a rota usada quando nenhuma é configurada.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{{ID: "auth", Path: "/api/auth/**", StripPrefix: 1, URI: "http://localhost:8082"}}
}

// Load lê .env (se existir) e carrega o arquivo apontado por GATEWAY_CONFIG.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultFile
	}
	return LoadFile(path)
}

// LoadFile é Load sem o .env e com caminho explícito. Arquivo ausente é aceito.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey: GATEWAY_RATE_LIMIT__BURST_CAPACITY -> rate_limit.burst_capacity.
// Listas aceitam valores separados por vírgula.
func envKey(key, value string) (string, any) {
	if key == EnvConfigPath {
		return "", nil
	}
	k := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	if k == "auth.public_paths" {
		var paths []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		return k, paths
	}
	return k, value
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < MinSecretBytes {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretBytes))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.WindowSeconds <= 0 {
			errs = append(errs, errors.New("rate_limit.window_seconds must be > 0"))
		}
		if c.RateLimit.BurstCapacity <= 0 {
			errs = append(errs, errors.New("rate_limit.burst_capacity must be > 0"))
		}
		if c.RateLimit.StoreTimeout <= 0 {
			errs = append(errs, errors.New("rate_limit.store_timeout must be > 0"))
		}
		switch c.RateLimit.Store {
		case "redis":
			if strings.TrimSpace(c.Redis.Addr) == "" {
				errs = append(errs, errors.New("redis.addr is required when rate_limit.store=redis"))
			}
		case "memory":
		default:
			errs = append(errs, fmt.Errorf("rate_limit.store must be redis or memory, got %q", c.RateLimit.Store))
		}
	}

	if c.Upstream.Timeout < 0 {
		errs = append(errs, errors.New("upstream.timeout must be >= 0"))
	}
	if c.Upstream.MaxConcurrent < 0 {
		errs = append(errs, errors.New("upstream.max_concurrent must be >= 0"))
	}

	for i, r := range c.Routes {
		if strings.TrimSpace(r.Path) == "" || strings.TrimSpace(r.URI) == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: path and uri are required", i))
		}
	}

	return errors.Join(errs...)
}
