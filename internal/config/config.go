// Package config loads MacroCam settings from defaults, an optional YAML
// file, a .env file and the environment, in that order.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/macrocam/internal/errors"
)

// Driver names.
const (
	DriverSupabase = "supabase"
	DriverLocal    = "local"
	DriverSQLite   = "sqlite"
)

// DefaultAPIBase is the local analysis service.
const DefaultAPIBase = "http://localhost:8000"

// Config is the merged configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Identity string         `yaml:"identity,omitempty"` // supabase | local
	Store    string         `yaml:"store,omitempty"`    // supabase | sqlite
	StateDir string         `yaml:"state_dir,omitempty"`
	DBPath   string         `yaml:"db_path,omitempty"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	OpenAI   OpenAIConfig   `yaml:"openai"`

	// envProblems holds environment values that failed to parse.
	envProblems []string

	// SigningKey signs local identity tokens. Empty means a key file in StateDir.
	SigningKey string `yaml:"signing_key,omitempty"`

	// MetricsAddr exposes client metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

type SupabaseConfig struct {
	URL     string `yaml:"url,omitempty"`
	AnonKey string `yaml:"anon_key,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug | info | warn | error
	Format string `yaml:"format,omitempty"` // json | text
	File   string `yaml:"file,omitempty"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	RateLimit      float64  `yaml:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	RateBurst      int      `yaml:"rate_burst,omitempty"`
	CacheSize      int      `yaml:"cache_size,omitempty"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{BaseURL: DefaultAPIBase},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:           "0.0.0.0:8000",
			AllowedOrigins: []string{"http://localhost:3000"},
			RateBurst:      5,
			CacheSize:      128,
		},
		OpenAI: OpenAIConfig{Model: "gpt-4.1-mini"},
	}
}

// DefaultPath is ~/.macrocam/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".macrocam", "config.yaml"), nil
}

// Options controls where Load looks.
type Options struct {
	// ConfigPath is an explicit YAML file; it must exist when set.
	ConfigPath string

	// EnvFile is read when present. Defaults to ".env".
	EnvFile string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads configuration from the default locations.
func Load(configPath string) (*Config, error) {
	return LoadWith(Options{ConfigPath: configPath})
}

// LoadWith reads configuration as described by opts and validates it.
func LoadWith(opts Options) (*Config, error) {
	cfg := Default()

	path := opts.ConfigPath
	required := path != ""
	if path == "" {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path, required); err != nil {
			return nil, err
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := readDotenv(envFile)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})

	cfg.applyDerivedDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// readDotenv returns the .env values without touching the process environment.
func readDotenv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse %s", path), err)
	}
	return values, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	str(&c.API.BaseURL, "MACROCAM_API_BASE", "API_BASE")
	str(&c.Supabase.URL, "SUPABASE_URL")
	str(&c.Supabase.AnonKey, "SUPABASE_ANON_KEY")
	str(&c.Identity, "MACROCAM_IDENTITY")
	str(&c.Store, "MACROCAM_STORE")
	str(&c.StateDir, "MACROCAM_STATE_DIR")
	str(&c.DBPath, "MACROCAM_DB_PATH")
	str(&c.SigningKey, "MACROCAM_SIGNING_KEY")
	str(&c.MetricsAddr, "MACROCAM_METRICS_ADDR")
	str(&c.Logging.Level, "MACROCAM_LOG_LEVEL")
	str(&c.Logging.Format, "MACROCAM_LOG_FORMAT")
	str(&c.Logging.File, "MACROCAM_LOG_FILE")
	str(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&c.OpenAI.Model, "OPENAI_MODEL")
	str(&c.Server.Addr, "MACROCAM_ADDR")

	var origins string
	str(&origins, "ALLOWED_ORIGINS")
	if origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	var rateLimit, rateBurst, cacheSize string
	str(&rateLimit, "MACROCAM_RATE_LIMIT")
	str(&rateBurst, "MACROCAM_RATE_BURST")
	str(&cacheSize, "MACROCAM_CACHE_SIZE")
	if rateLimit != "" {
		if v, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			c.Server.RateLimit = v
		} else {
			c.envProblems = append(c.envProblems, fmt.Sprintf("MACROCAM_RATE_LIMIT %q is not a number", rateLimit))
		}
	}
	c.envInt(&c.Server.RateBurst, "MACROCAM_RATE_BURST", rateBurst)
	c.envInt(&c.Server.CacheSize, "MACROCAM_CACHE_SIZE", cacheSize)
}

func (c *Config) envInt(dst *int, key, raw string) {
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.envProblems = append(c.envProblems, fmt.Sprintf("%s %q is not an integer", key, raw))
		return
	}
	*dst = v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDerivedDefaults picks drivers and state paths left unset.
func (c *Config) applyDerivedDefaults() {
	if c.Identity == "" {
		c.Identity = DriverLocal
		if c.Supabase.URL != "" {
			c.Identity = DriverSupabase
		}
	}
	if c.Store == "" {
		c.Store = DriverSQLite
		if c.Supabase.URL != "" {
			c.Store = DriverSupabase
		}
	}
	if c.StateDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.StateDir = filepath.Join(home, ".macrocam")
		} else {
			c.StateDir = ".macrocam"
		}
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.StateDir, "macrocam.db")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.StateDir, "macrocam.log")
	}
}

// Validate rejects unparsable environment values, unknown drivers, supabase
// drivers without credentials and an unusable analysis base URL.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.envProblems...)

	switch c.Identity {
	case DriverSupabase, DriverLocal:
	default:
		problems = append(problems, fmt.Sprintf("unknown identity driver %q (want supabase or local)", c.Identity))
	}
	switch c.Store {
	case DriverSupabase, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q (want supabase or sqlite)", c.Store))
	}
	if c.Identity == DriverSupabase || c.Store == DriverSupabase {
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			problems = append(problems, "supabase driver needs SUPABASE_URL and SUPABASE_ANON_KEY")
		}
	}
	if c.Store == DriverSupabase && c.Identity != DriverSupabase {
		problems = append(problems, "supabase store requires the supabase identity driver")
	}

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("API base %q is not an absolute URL", c.API.BaseURL))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 || c.Server.CacheSize < 0 {
		problems = append(problems, "server rate_limit, rate_burst and cache_size must not be negative")
	}

	if len(problems) > 0 {
		return errors.NewConfigInvalidError(strings.Join(problems, "; "))
	}
	return nil
}

// SessionPath is where the identity provider caches the session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.StateDir, "session.json")
}

// SigningKeyBytes returns the local token signing key, creating a random key
// file in StateDir on first use.
func (c *Config) SigningKeyBytes() ([]byte, error) {
	if c.SigningKey != "" {
		return []byte(c.SigningKey), nil
	}

	path := filepath.Join(c.StateDir, "signing.key")
	if data, err := os.ReadFile(path); err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err == nil && len(key) >= 32 {
			return key, nil
		}
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("signing key file %s is corrupt", path))
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return key, nil
}
