package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/courier"
	"github.com/roach88/courier/cache"
	"github.com/roach88/courier/transport"
)

// Cache backends.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Log writers.
const (
	WriterConsole = "console"
	WriterFile    = "file"
)

// Config is the complete configuration of a courier client.
type Config struct {
	BaseURL    string            `yaml:"base_url"`
	CDNURL     string            `yaml:"cdn_url,omitempty"`
	UserAgent  string            `yaml:"user_agent,omitempty"`
	AppVersion string            `yaml:"app_version,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`

	// Coalesce shares one transport call between identical in-flight GETs.
	Coalesce bool `yaml:"coalesce,omitempty"`

	// Endpoints is an optional CUE endpoint catalogue.
	Endpoints string `yaml:"endpoints,omitempty"`

	Transport TransportConfig `yaml:"transport"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig mirrors transport.Config.
type TransportConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	MaxConnsPerHost    int           `yaml:"max_conns_per_host"`
	IdleConnTimeout    time.Duration `yaml:"idle_conn_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes,omitempty"`
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	// Backend is dir, sqlite or none.
	Backend string `yaml:"backend"`

	// Path is the cache root directory (dir) or database file (sqlite).
	Path string `yaml:"path"`

	// Dir is the location prefix handed to cache-path filters.
	Dir string `yaml:"dir,omitempty"`

	// SynchronousWrites writes entries before success callbacks run.
	SynchronousWrites bool `yaml:"synchronous_writes,omitempty"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string   `yaml:"level"`
	Format string   `yaml:"format,omitempty"` // text | json
	Writer []string `yaml:"writer"`           // console and/or file
	File   string   `yaml:"file,omitempty"`

	MaxSizeMB  int  `yaml:"max_size_mb,omitempty"`
	MaxBackups int  `yaml:"max_backups,omitempty"`
	MaxAgeDays int  `yaml:"max_age_days,omitempty"`
	Compress   bool `yaml:"compress,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	tc := transport.DefaultConfig()
	return &Config{
		Transport: TransportConfig{
			Timeout:         tc.Timeout,
			DialTimeout:     tc.DialTimeout,
			MaxIdleConns:    tc.MaxIdleConns,
			MaxConnsPerHost: tc.MaxConnsPerHost,
			IdleConnTimeout: tc.IdleConnTimeout,
		},
		Cache: CacheConfig{
			Backend: BackendDir,
			Path:    ".courier-cache",
			Dir:     courier.DefaultCacheDir,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Writer:     []string{WriterConsole},
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path, applies environment overrides and validates the
// result. An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = decode(data); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates it. The environment
// is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"COURIER_BASE_URL", &c.BaseURL},
		{"COURIER_CDN_URL", &c.CDNURL},
		{"COURIER_CACHE_DIR", &c.Cache.Path},
		{"COURIER_APP_VERSION", &c.AppVersion},
		{"COURIER_LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		if err := checkAbsolute("base_url", c.BaseURL); err != nil {
			return err
		}
	}
	if c.CDNURL != "" {
		if err := checkAbsolute("cdn_url", c.CDNURL); err != nil {
			return err
		}
	}
	if c.Transport.Timeout < 0 || c.Transport.DialTimeout < 0 || c.Transport.IdleConnTimeout < 0 {
		return errors.New("transport: durations must be non-negative")
	}
	if c.Transport.MaxIdleConns < 0 || c.Transport.MaxConnsPerHost < 0 || c.Transport.MaxBodyBytes < 0 {
		return errors.New("transport: limits must be non-negative")
	}

	switch c.Cache.Backend {
	case BackendDir, BackendSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Cache.Backend)
		}
	case BackendNone:
	default:
		return fmt.Errorf("cache.backend must be one of dir, sqlite, none; got %q", c.Cache.Backend)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}
	for _, w := range c.Log.Writer {
		switch w {
		case WriterConsole:
		case WriterFile:
			if c.Log.File == "" {
				return errors.New("log.file is required when log.writer includes file")
			}
		default:
			return fmt.Errorf("log.writer: unknown writer %q", w)
		}
	}
	return nil
}

func checkAbsolute(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL; got %q", field, raw)
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}

// SessionConfig converts the config into a session configuration.
func (c *Config) SessionConfig() courier.SessionConfig {
	sc := courier.SessionConfig{
		BaseURL:   c.BaseURL,
		CDNURL:    c.CDNURL,
		UserAgent: c.UserAgent,
		Transport: transport.Config{
			Timeout:            c.Transport.Timeout,
			DialTimeout:        c.Transport.DialTimeout,
			MaxIdleConns:       c.Transport.MaxIdleConns,
			MaxConnsPerHost:    c.Transport.MaxConnsPerHost,
			IdleConnTimeout:    c.Transport.IdleConnTimeout,
			InsecureSkipVerify: c.Transport.InsecureSkipVerify,
			MaxBodyBytes:       c.Transport.MaxBodyBytes,
		},
	}
	if len(c.Headers) > 0 {
		sc.Header = make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			sc.Header.Set(k, v)
		}
	}
	return sc
}

// OpenStore opens the configured cache backend. It returns nil for the
// none backend.
func (c *Config) OpenStore() (cache.Store, error) {
	switch c.Cache.Backend {
	case BackendDir:
		return cache.NewDirStore(expandHome(c.Cache.Path))
	case BackendSQLite:
		return cache.OpenSQLite(expandHome(c.Cache.Path))
	default:
		return nil, nil
	}
}

// ManagerOptions returns the manager options the config implies. store
// may be nil, which disables caching.
func (c *Config) ManagerOptions(store cache.Store, logger *slog.Logger) []courier.Option {
	opts := []courier.Option{courier.WithLogger(logger)}
	if store != nil {
		opts = append(opts, courier.WithCache(cache.New(store,
			cache.WithAppVersion(c.AppVersion),
			cache.WithLogger(logger))))
	}
	if c.Cache.Dir != "" {
		opts = append(opts, courier.WithCacheDir(c.Cache.Dir))
	}
	if c.Cache.SynchronousWrites {
		opts = append(opts, courier.WithSynchronousCacheWrites())
	}
	if c.Coalesce {
		opts = append(opts, courier.WithCoalescing())
	}
	return opts
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
