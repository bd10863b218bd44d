// Package config loads the service configuration from the environment and an
// optional configuration file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BOOKING"

// Config captures the settings of the booking service.
type Config struct {
	HTTP            HTTPConfig
	Database        DatabaseConfig
	Log             LogConfig
	Engine          EngineConfig
	Cache           CacheConfig
	CORS            CORSConfig
	OTel            OTelConfig
	ShutdownTimeout time.Duration
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects and tunes the store. DSNs starting with postgres://
// use PostgreSQL, anything else is opened as SQLite.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig tunes recurrence expansion and conflict checks.
type EngineConfig struct {
	Horizon            time.Duration
	ConflictLookaround time.Duration
	MaxOccurrences     int
	MaxGoroutines      int
}

// CacheConfig sizes the availability cache. Size 0 disables it.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowOrigins []string
}

// OTelConfig configures trace export.
type OTelConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

var defaults = map[string]any{
	"http.host":                   "0.0.0.0",
	"http.port":                   "8080",
	"http.request_timeout":        "15s",
	"database.dsn":                "file:bookings.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	"database.max_open_conns":     "10",
	"database.max_idle_conns":     "5",
	"database.conn_max_lifetime":  "30m",
	"database.conn_max_idle_time": "5m",
	"log.level":                   "info",
	"log.format":                  "json",
	"engine.horizon":              "8784h",
	"engine.conflict_lookaround":  "24h",
	"engine.max_occurrences":      "50000",
	"engine.max_goroutines":       "0",
	"cache.size":                  "1024",
	"cache.ttl":                   "30s",
	"cors.allow_origins":          "*",
	"otel.enabled":                "false",
	"otel.endpoint":               "localhost:4317",
	"otel.insecure":               "true",
	"otel.service_name":           "availability-engine",
	"otel.sample_ratio":           "1",
	"shutdown.timeout":            "10s",
}

// aliases are accepted next to the prefixed variables.
var aliases = map[string][]string{
	"http.port":     {"PORT"},
	"database.dsn":  {"DATABASE_URL"},
	"log.level":     {"LOG_LEVEL"},
	"otel.endpoint": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Load reads the configuration from BOOKING_* environment variables, layered
// over an optional file named by BOOKING_CONFIG_FILE. Every invalid value is
// reported in one error.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, names := range aliases {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	_ = v.BindEnv("config_file", EnvPrefix+"_CONFIG_FILE")
	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	p := parser{v: v}
	cfg := Config{
		HTTP: HTTPConfig{
			Host:           strings.TrimSpace(v.GetString("http.host")),
			Port:           p.positiveInt("http.port"),
			RequestTimeout: p.duration("http.request_timeout"),
		},
		Database: DatabaseConfig{
			DSN:             strings.TrimSpace(v.GetString("database.dsn")),
			MaxOpenConns:    p.nonNegativeInt("database.max_open_conns"),
			MaxIdleConns:    p.nonNegativeInt("database.max_idle_conns"),
			ConnMaxLifetime: p.duration("database.conn_max_lifetime"),
			ConnMaxIdleTime: p.duration("database.conn_max_idle_time"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		},
		Engine: EngineConfig{
			Horizon:            p.duration("engine.horizon"),
			ConflictLookaround: p.duration("engine.conflict_lookaround"),
			MaxOccurrences:     p.positiveInt("engine.max_occurrences"),
			MaxGoroutines:      p.nonNegativeInt("engine.max_goroutines"),
		},
		Cache: CacheConfig{
			Size: p.nonNegativeInt("cache.size"),
			TTL:  p.duration("cache.ttl"),
		},
		CORS: CORSConfig{AllowOrigins: p.list("cors.allow_origins")},
		OTel: OTelConfig{
			Enabled:     p.boolean("otel.enabled"),
			Endpoint:    strings.TrimSpace(v.GetString("otel.endpoint")),
			Insecure:    p.boolean("otel.insecure"),
			ServiceName: strings.TrimSpace(v.GetString("otel.service_name")),
			SampleRatio: p.ratio("otel.sample_ratio"),
		},
		ShutdownTimeout: p.duration("shutdown.timeout"),
	}

	if cfg.Database.DSN == "" {
		p.missing = append(p.missing, "database.dsn")
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		p.invalid = append(p.invalid, "log.format")
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("config: required values are missing: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid values: %s", strings.Join(p.invalid, ", "))
	}
	return cfg, nil
}

// parser reads typed values and records the keys that fail to parse.
type parser struct {
	v       *viper.Viper
	missing []string
	invalid []string
}

func (p *parser) raw(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(p.raw(key))
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return d
}

func (p *parser) positiveInt(key string) int {
	n, err := strconv.Atoi(p.raw(key))
	if err != nil || n <= 0 {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return n
}

func (p *parser) nonNegativeInt(key string) int {
	n, err := strconv.Atoi(p.raw(key))
	if err != nil || n < 0 {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return n
}

func (p *parser) boolean(key string) bool {
	b, err := strconv.ParseBool(p.raw(key))
	if err != nil {
		p.invalid = append(p.invalid, key)
	}
	return b
}

func (p *parser) ratio(key string) float64 {
	f, err := strconv.ParseFloat(p.raw(key), 64)
	if err != nil || f < 0 || f > 1 {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return f
}

func (p *parser) list(key string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(p.raw(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
