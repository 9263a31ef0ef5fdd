package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ARCHITECTURAL DISCOVERY: Configuration layer is the only place that knows
// where the platform lives; every other component receives plain values
type Config struct {
	API      *APIConfig      `json:"api"`
	Notifier *NotifierConfig `json:"notifier"`
	Storage  *StorageConfig  `json:"storage"`
}

// APIConfig points at the two REST services.
type APIConfig struct {
	AuthURL        string        `json:"auth_url"`
	MainURL        string        `json:"main_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// NotifierConfig tunes the live submission channel.
// FUNCTIONAL DISCOVERY: Reconnect backoff starts small so a brief network
// blip re-enables submission quickly, and is capped so a dead notifier is not hammered
type NotifierConfig struct {
	URL                   string        `json:"url"`
	HandshakeTimeout      time.Duration `json:"handshake_timeout"`
	ReadTimeout           time.Duration `json:"read_timeout"`
	WriteTimeout          time.Duration `json:"write_timeout"`
	PingInterval          time.Duration `json:"ping_interval"`
	BufferSize            int           `json:"buffer_size"`
	ReconnectInitialDelay time.Duration `json:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `json:"reconnect_max_delay"`
	ReconnectMultiplier   float64       `json:"reconnect_multiplier"`
}

// StorageConfig locates the local session store.
type StorageConfig struct {
	Path      string        `json:"path"`
	Timeout   time.Duration `json:"timeout"`
	Ephemeral bool          `json:"ephemeral"`
}

// DefaultConfig matches a platform running on localhost with its stock ports.
func DefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			AuthURL:        "http://localhost:5000/api/auth",
			MainURL:        "http://localhost:5001/api/main",
			RequestTimeout: 15 * time.Second,
		},
		Notifier: &NotifierConfig{
			URL:                   "ws://localhost:5003/ws",
			HandshakeTimeout:      10 * time.Second,
			ReadTimeout:           60 * time.Second,
			WriteTimeout:          5 * time.Second,
			PingInterval:          25 * time.Second,
			BufferSize:            100,
			ReconnectInitialDelay: 500 * time.Millisecond,
			ReconnectMaxDelay:     30 * time.Second,
			ReconnectMultiplier:   2.0,
		},
		Storage: &StorageConfig{
			Path:    defaultStoragePath(),
			Timeout: 30 * time.Second,
		},
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "./practicum.db"
	}
	return dir + string(os.PathSeparator) + "practicum" + string(os.PathSeparator) + "session.db"
}

// Validate rejects configurations that would fail at the first request.
func (c *Config) Validate() error {
	if c.API == nil {
		return fmt.Errorf("API configuration is required")
	}
	if err := validateURL("auth URL", c.API.AuthURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("main URL", c.API.MainURL, "http", "https"); err != nil {
		return err
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("API request timeout must be positive")
	}

	if c.Notifier == nil {
		return fmt.Errorf("notifier configuration is required")
	}
	if err := validateURL("notifier URL", c.Notifier.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Notifier.HandshakeTimeout <= 0 {
		return fmt.Errorf("notifier handshake timeout must be positive")
	}
	if c.Notifier.ReadTimeout <= 0 {
		return fmt.Errorf("notifier read timeout must be positive")
	}
	if c.Notifier.WriteTimeout <= 0 {
		return fmt.Errorf("notifier write timeout must be positive")
	}
	if c.Notifier.PingInterval <= 0 || c.Notifier.PingInterval >= c.Notifier.ReadTimeout {
		return fmt.Errorf("notifier ping interval must be positive and shorter than the read timeout")
	}
	if c.Notifier.BufferSize <= 0 {
		return fmt.Errorf("notifier buffer size must be positive")
	}
	if c.Notifier.ReconnectInitialDelay <= 0 {
		return fmt.Errorf("reconnect initial delay must be positive")
	}
	if c.Notifier.ReconnectMaxDelay < c.Notifier.ReconnectInitialDelay {
		return fmt.Errorf("reconnect max delay must be at least the initial delay")
	}
	if c.Notifier.ReconnectMultiplier < 1 {
		return fmt.Errorf("reconnect multiplier must be at least 1")
	}

	if c.Storage == nil {
		return fmt.Errorf("storage configuration is required")
	}
	if !c.Storage.Ephemeral && c.Storage.Path == "" {
		return fmt.Errorf("storage path cannot be empty")
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("storage timeout must be positive")
	}

	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL", name, schemes)
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv overlays PRACTICUM_* variables on the defaults.
// FUNCTIONAL DISCOVERY: Unparseable values are ignored so a typo in one
// variable never prevents the client from starting
func LoadFromEnv() *Config {
	config := DefaultConfig()

	envString("PRACTICUM_AUTH_URL", &config.API.AuthURL)
	envString("PRACTICUM_MAIN_URL", &config.API.MainURL)
	envDuration("PRACTICUM_REQUEST_TIMEOUT", &config.API.RequestTimeout)

	envString("PRACTICUM_NOTIFIER_URL", &config.Notifier.URL)
	envDuration("PRACTICUM_NOTIFIER_HANDSHAKE_TIMEOUT", &config.Notifier.HandshakeTimeout)
	envDuration("PRACTICUM_NOTIFIER_READ_TIMEOUT", &config.Notifier.ReadTimeout)
	envDuration("PRACTICUM_NOTIFIER_WRITE_TIMEOUT", &config.Notifier.WriteTimeout)
	envDuration("PRACTICUM_NOTIFIER_PING_INTERVAL", &config.Notifier.PingInterval)
	envInt("PRACTICUM_NOTIFIER_BUFFER_SIZE", &config.Notifier.BufferSize)
	envDuration("PRACTICUM_RECONNECT_INITIAL_DELAY", &config.Notifier.ReconnectInitialDelay)
	envDuration("PRACTICUM_RECONNECT_MAX_DELAY", &config.Notifier.ReconnectMaxDelay)
	if v := os.Getenv("PRACTICUM_RECONNECT_MULTIPLIER"); v != "" {
		if m, err := strconv.ParseFloat(v, 64); err == nil {
			config.Notifier.ReconnectMultiplier = m
		}
	}

	envString("PRACTICUM_STORAGE_PATH", &config.Storage.Path)
	envDuration("PRACTICUM_STORAGE_TIMEOUT", &config.Storage.Timeout)
	if v := os.Getenv("PRACTICUM_STORAGE_EPHEMERAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Storage.Ephemeral = b
		}
	}

	return config
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	API      *APIConfigFile      `json:"api"`
	Notifier *NotifierConfigFile `json:"notifier"`
	Storage  *StorageConfigFile  `json:"storage"`
}

type APIConfigFile struct {
	AuthURL        string `json:"auth_url"`
	MainURL        string `json:"main_url"`
	RequestTimeout string `json:"request_timeout"`
}

type NotifierConfigFile struct {
	URL                   string  `json:"url"`
	HandshakeTimeout      string  `json:"handshake_timeout"`
	ReadTimeout           string  `json:"read_timeout"`
	WriteTimeout          string  `json:"write_timeout"`
	PingInterval          string  `json:"ping_interval"`
	BufferSize            int     `json:"buffer_size"`
	ReconnectInitialDelay string  `json:"reconnect_initial_delay"`
	ReconnectMaxDelay     string  `json:"reconnect_max_delay"`
	ReconnectMultiplier   float64 `json:"reconnect_multiplier"`
}

type StorageConfigFile struct {
	Path      string `json:"path"`
	Timeout   string `json:"timeout"`
	Ephemeral bool   `json:"ephemeral"`
}

// LoadFromFile reads a JSON config file on top of base and validates the result.
// A nil base starts from DefaultConfig.
func LoadFromFile(filepath string, base *Config) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := base
	if config == nil {
		config = DefaultConfig()
	}

	if f := configFile.API; f != nil {
		setString(f.AuthURL, &config.API.AuthURL)
		setString(f.MainURL, &config.API.MainURL)
		if err := setDuration("api.request_timeout", f.RequestTimeout, &config.API.RequestTimeout); err != nil {
			return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
		}
	}

	if f := configFile.Notifier; f != nil {
		setString(f.URL, &config.Notifier.URL)
		if f.BufferSize > 0 {
			config.Notifier.BufferSize = f.BufferSize
		}
		if f.ReconnectMultiplier > 0 {
			config.Notifier.ReconnectMultiplier = f.ReconnectMultiplier
		}
		durations := []struct {
			name string
			raw  string
			dst  *time.Duration
		}{
			{"notifier.handshake_timeout", f.HandshakeTimeout, &config.Notifier.HandshakeTimeout},
			{"notifier.read_timeout", f.ReadTimeout, &config.Notifier.ReadTimeout},
			{"notifier.write_timeout", f.WriteTimeout, &config.Notifier.WriteTimeout},
			{"notifier.ping_interval", f.PingInterval, &config.Notifier.PingInterval},
			{"notifier.reconnect_initial_delay", f.ReconnectInitialDelay, &config.Notifier.ReconnectInitialDelay},
			{"notifier.reconnect_max_delay", f.ReconnectMaxDelay, &config.Notifier.ReconnectMaxDelay},
		}
		for _, d := range durations {
			if err := setDuration(d.name, d.raw, d.dst); err != nil {
				return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
			}
		}
	}

	if f := configFile.Storage; f != nil {
		setString(f.Path, &config.Storage.Path)
		config.Storage.Ephemeral = config.Storage.Ephemeral || f.Ephemeral
		if err := setDuration("storage.timeout", f.Timeout, &config.Storage.Timeout); err != nil {
			return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
		}
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func setString(v string, dst *string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence resolves file > environment (.env included) > defaults.
// A broken config file is logged and skipped so the environment still applies.
func LoadConfigWithPrecedence(filepath string, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}

	if err := LoadDotEnv(".env"); err != nil {
		logger.Warn("ignoring .env file", "error", err)
	}

	config := LoadFromEnv()

	if filepath != "" {
		fileConfig, err := LoadFromFile(filepath, LoadFromEnv())
		if err != nil {
			logger.Warn("ignoring config file", "path", filepath, "error", err)
		} else {
			config = fileConfig
		}
	}

	return config
}
