package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file. The backend URL and the
// identity key are usually injected by the deployment, not edited by hand.
const (
	EnvAPIURL      = "COMPANION_API_URL"
	EnvIdentityKey = "COMPANION_IDENTITY_KEY"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultAPIURL       = "http://localhost:3000/api"
	defaultTimezone     = "Europe/Paris"
	defaultRefreshCron  = "*/15 * * * *"
	defaultAutosave     = 2 * time.Second
	defaultRefreshSkew  = 60 * time.Second
	defaultHTTPTimeout  = 15 * time.Second
	defaultMonthTTL     = 5 * time.Minute
	defaultSnapshotPath = "./var/preview.png"
)

// SubscriptionConfig describes a read-only ICS feed shown on top of the
// backend calendar.
type SubscriptionConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig protects the local web surface.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SnapshotConfig controls the headless PNG capture of /calendar.
type SnapshotConfig struct {
	// Enabled adds the capture to every scheduled refresh.
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the address of the local web surface.
	Listen string `yaml:"listen" json:"listen"`

	// APIURL is the base URL of the remote backend, e.g.
	// "https://companion.example.com/api".
	APIURL string `yaml:"api_url" json:"api_url"`

	// IdentityPublicKey is a PEM public key used to verify access tokens.
	// When empty, tokens are decoded without verification and a warning is
	// logged.
	IdentityPublicKey string `yaml:"identity_public_key" json:"-"`

	// Timezone is the IANA zone used to bucket events into days.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron schedules the background month + subscription refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// AutosaveDelay is the scratch-pad debounce window.
	AutosaveDelay time.Duration `yaml:"autosave_delay" json:"autosave_delay"`

	// RefreshSkew is how long before access-token expiry the refresh fires.
	RefreshSkew time.Duration `yaml:"refresh_skew" json:"refresh_skew"`

	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout"`

	// MonthCacheTTL bounds how long a fetched month stays fresh. Zero keeps
	// entries until invalidated.
	MonthCacheTTL time.Duration `yaml:"month_cache_ttl" json:"month_cache_ttl"`

	// SessionPath is where tokens are persisted between runs.
	SessionPath string `yaml:"session_path" json:"session_path"`

	// CacheDir holds subscription bodies and HTTP cache metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially-filled configs behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.AutosaveDelay <= 0 {
		c.AutosaveDelay = defaultAutosave
	}
	if c.RefreshSkew <= 0 {
		c.RefreshSkew = defaultRefreshSkew
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.MonthCacheTTL < 0 {
		c.MonthCacheTTL = 0
	} else if c.MonthCacheTTL == 0 {
		c.MonthCacheTTL = defaultMonthTTL
	}
	if c.SessionPath == "" {
		c.SessionPath = "./var/session.yaml"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = defaultSnapshotPath
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
}

// ApplyEnv overlays environment variables on top of the file values.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		c.APIURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup(EnvIdentityKey); ok && strings.TrimSpace(v) != "" {
		c.IdentityPublicKey = v
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename, 0600).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data next to path and renames it into place with
// 0600 permissions. The parent directory is created with 0700.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".companion-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
