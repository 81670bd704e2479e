package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pipedeck/pipedeck/internal/store"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PIPEDECK_URL.
const EnvPrefix = "PIPEDECK"

// Keys understood by Load.
const (
	KeyURL            = "url"
	KeyListen         = "listen"
	KeyDataDir        = "data_dir"
	KeyStorageDriver  = "storage.driver"
	KeyStorageDSN     = "storage.dsn"
	KeyTimeout        = "timeout"
	KeyEncryptionKey  = "encryption_key"
	KeyPollInterval   = "poll_interval"
	KeyNotifyDuration = "notify_duration"
	KeyVerbose        = "verbose"
)

// Config holds the settings shared by the console and the CLI.
type Config struct {
	// URL of the pipeline backend. Default http://localhost:8080.
	URL string
	// Listen address of the web console. Default 127.0.0.1:8090.
	Listen string
	// DataDir holds the sqlite database and the session key. Default ~/.config/pipedeck.
	DataDir string
	// StorageDriver is sqlite (default) or postgres.
	StorageDriver string
	// StorageDSN is the postgres connection string.
	StorageDSN string
	// Timeout bounds one backend request. Default 10s.
	Timeout time.Duration
	// EncryptionKey seals the persisted session; empty uses a generated key file.
	EncryptionKey string
	// PollInterval is the log polling period. Default 2s.
	PollInterval time.Duration
	// NotifyDuration is the default banner duration. Default 4.5s.
	NotifyDuration time.Duration
	// Verbose enables debug logging.
	Verbose bool
}

// SetDefaults registers the documented defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyURL, "http://localhost:8080")
	v.SetDefault(KeyListen, "127.0.0.1:8090")
	v.SetDefault(KeyDataDir, defaultDataDir())
	v.SetDefault(KeyStorageDriver, store.DriverSQLite)
	v.SetDefault(KeyStorageDSN, "")
	v.SetDefault(KeyTimeout, 10*time.Second)
	v.SetDefault(KeyEncryptionKey, "")
	v.SetDefault(KeyPollInterval, 2*time.Second)
	v.SetDefault(KeyNotifyDuration, 4500*time.Millisecond)
	v.SetDefault(KeyVerbose, false)
}

// New returns a viper instance reading PIPEDECK_* env vars and, when present,
// config.yaml in the data dir.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultDataDir())
	return v
}

// Load reads the optional config file and returns the validated configuration.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed reading config file: %w", err)
		}
	}

	cfg := &Config{
		URL:            strings.TrimRight(strings.TrimSpace(v.GetString(KeyURL)), "/"),
		Listen:         strings.TrimSpace(v.GetString(KeyListen)),
		DataDir:        expandHome(strings.TrimSpace(v.GetString(KeyDataDir))),
		StorageDriver:  strings.ToLower(strings.TrimSpace(v.GetString(KeyStorageDriver))),
		StorageDSN:     strings.TrimSpace(v.GetString(KeyStorageDSN)),
		Timeout:        v.GetDuration(KeyTimeout),
		EncryptionKey:  v.GetString(KeyEncryptionKey),
		PollInterval:   v.GetDuration(KeyPollInterval),
		NotifyDuration: v.GetDuration(KeyNotifyDuration),
		Verbose:        v.GetBool(KeyVerbose),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its documented contract.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid url %q: expected scheme://host", c.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", c.URL)
	}

	switch c.StorageDriver {
	case store.DriverSQLite:
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for the sqlite driver")
		}
	case store.DriverPostgres:
		if c.StorageDSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.StorageDriver)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.NotifyDuration <= 0 {
		return fmt.Errorf("notify_duration must be positive")
	}
	return nil
}

// KeyFile is where the generated session key lives.
func (c *Config) KeyFile(name string) string {
	return filepath.Join(c.DataDir, name)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pipedeck")
	}
	return ".pipedeck"
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
