package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything orderdesk reads at startup.
type Config struct {
	APIURL         string
	RequestTimeout time.Duration
	Retry          int
	RetryDelay     time.Duration
	CatalogTTL     time.Duration
	OrdersRefresh  time.Duration
	MaxQty         int
	StoreBackend   string
	DataDir        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PostgresDSN    string
	StoreLock      string
	Stores         []string
	Debug          bool
}

const (
	defaultConfigPath     = "~/.config/orderdesk/config.toml"
	defaultDataDir        = "~/.local/share/orderdesk"
	defaultRequestTimeout = 15 * time.Second
	defaultRetry          = 1
	defaultRetryDelay     = 700 * time.Millisecond
	defaultCatalogTTL     = 12 * time.Hour
	defaultOrdersRefresh  = 5 * time.Minute
	defaultMaxQty         = 9999
	defaultStoreBackend   = "file"

	envPrefix = "ORDERDESK_"
)

var backends = map[string]bool{"file": true, "memory": true, "redis": true, "postgres": true}

type rawConfig struct {
	APIURL         string   `toml:"api_url"`
	RequestTimeout string   `toml:"request_timeout"`
	Retry          *int     `toml:"retry"`
	RetryDelay     string   `toml:"retry_delay"`
	CatalogTTL     string   `toml:"catalog_ttl"`
	OrdersRefresh  string   `toml:"orders_refresh"`
	MaxQty         int      `toml:"max_qty"`
	StoreBackend   string   `toml:"store_backend"`
	DataDir        string   `toml:"data_dir"`
	RedisAddr      string   `toml:"redis_addr"`
	RedisPassword  string   `toml:"redis_password"`
	RedisDB        int      `toml:"redis_db"`
	PostgresDSN    string   `toml:"postgres_dsn"`
	StoreLock      string   `toml:"store_lock"`
	Stores         []string `toml:"stores"`
	Debug          bool     `toml:"debug"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		RequestTimeout: defaultRequestTimeout,
		Retry:          defaultRetry,
		RetryDelay:     defaultRetryDelay,
		CatalogTTL:     defaultCatalogTTL,
		OrdersRefresh:  defaultOrdersRefresh,
		MaxQty:         defaultMaxQty,
		StoreBackend:   defaultStoreBackend,
		DataDir:        mustExpand(defaultDataDir),
	}
}

// Load parses the TOML config at path (or the default location), applies
// ORDERDESK_* environment overrides, and fills defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	if err := applyEnv(&raw); err != nil {
		return Config{}, err
	}
	return build(raw)
}

func build(raw rawConfig) (Config, error) {
	cfg := Default()
	var err error

	cfg.APIURL = strings.TrimSpace(raw.APIURL)
	if cfg.RequestTimeout, err = duration("request_timeout", raw.RequestTimeout, defaultRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RetryDelay, err = duration("retry_delay", raw.RetryDelay, defaultRetryDelay); err != nil {
		return Config{}, err
	}
	if cfg.CatalogTTL, err = duration("catalog_ttl", raw.CatalogTTL, defaultCatalogTTL); err != nil {
		return Config{}, err
	}
	if cfg.OrdersRefresh, err = duration("orders_refresh", raw.OrdersRefresh, defaultOrdersRefresh); err != nil {
		return Config{}, err
	}
	if raw.Retry != nil {
		if *raw.Retry < 0 {
			return Config{}, fmt.Errorf("retry must not be negative")
		}
		cfg.Retry = *raw.Retry
	}
	if raw.MaxQty > 0 {
		cfg.MaxQty = raw.MaxQty
	}

	if backend := strings.ToLower(strings.TrimSpace(raw.StoreBackend)); backend != "" {
		if !backends[backend] {
			return Config{}, fmt.Errorf("unknown store_backend %q", raw.StoreBackend)
		}
		cfg.StoreBackend = backend
	}
	if dir := strings.TrimSpace(raw.DataDir); dir != "" {
		cfg.DataDir = mustExpand(dir)
	}

	cfg.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	cfg.RedisPassword = raw.RedisPassword
	cfg.RedisDB = raw.RedisDB
	cfg.PostgresDSN = strings.TrimSpace(raw.PostgresDSN)
	cfg.StoreLock = strings.TrimSpace(raw.StoreLock)
	for _, s := range raw.Stores {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Stores = append(cfg.Stores, s)
		}
	}
	cfg.Debug = raw.Debug

	switch cfg.StoreBackend {
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("store_backend redis requires redis_addr")
		}
	case "postgres":
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("store_backend postgres requires postgres_dsn")
		}
	}
	return cfg, nil
}

// applyEnv overlays ORDERDESK_<FIELD> variables onto raw. Empty variables are
// ignored.
func applyEnv(raw *rawConfig) error {
	str := map[string]*string{
		"API_URL":         &raw.APIURL,
		"REQUEST_TIMEOUT": &raw.RequestTimeout,
		"RETRY_DELAY":     &raw.RetryDelay,
		"CATALOG_TTL":     &raw.CatalogTTL,
		"ORDERS_REFRESH":  &raw.OrdersRefresh,
		"STORE_BACKEND":   &raw.StoreBackend,
		"DATA_DIR":        &raw.DataDir,
		"REDIS_ADDR":      &raw.RedisAddr,
		"REDIS_PASSWORD":  &raw.RedisPassword,
		"POSTGRES_DSN":    &raw.PostgresDSN,
		"STORE_LOCK":      &raw.StoreLock,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{"MAX_QTY": &raw.MaxQty, "REDIS_DB": &raw.RedisDB}
	for name, dst := range ints {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("RETRY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRETRY: %w", envPrefix, err)
		}
		raw.Retry = &n
	}
	if v, ok := lookup("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		raw.Debug = b
	}
	if v, ok := lookup("STORES"); ok {
		raw.Stores = strings.Split(v, ",")
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func duration(field, value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// LogPath returns the orderdesk log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir + "/orderdesk.log")
	}
	return filepath.Join(c.DataDir, "orderdesk.log")
}

// StoreDir is where the file backend keeps its entries.
func (c Config) StoreDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir + "/store")
	}
	return filepath.Join(c.DataDir, "store")
}

// ClientRetry maps the configured retry count onto the client's convention,
// where zero means "use the default" and a negative value disables retries.
func (c Config) ClientRetry() int {
	if c.Retry == 0 {
		return -1
	}
	return c.Retry
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
