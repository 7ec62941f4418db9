// Package config loads predictor configuration.
// Order: defaults -> YAML file -> PREDICTOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
)

const (
	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "PREDICTOR_"

	// ConfigEnv names the variable holding the config file path.
	ConfigEnv = EnvPrefix + "CONFIG"

	appDirName = "stake-pf-predict"
)

// Config contains all predictor settings.
type Config struct {
	// SeedVectorSize is the feature vector length fed to the backend.
	SeedVectorSize int `json:"seed_vector_size" yaml:"seed_vector_size" env:"SEED_VECTOR_SIZE"`

	// HashAlgorithm is the HMAC digest: sha256, sha384, sha512 or sha512/256.
	HashAlgorithm string `json:"hash_algorithm" yaml:"hash_algorithm" env:"HASH_ALGORITHM"`

	CoinflipSequenceLength int `json:"coinflip_sequence_length" yaml:"coinflip_sequence_length" env:"COINFLIP_SEQUENCE_LENGTH"`

	// MinesGridSafetyProbability is the per-tile chance of a safe flag.
	// Range: 0.0 to 1.0
	MinesGridSafetyProbability float64 `json:"mines_grid_safety_probability" yaml:"mines_grid_safety_probability" env:"MINES_GRID_SAFETY_PROBABILITY"`

	// CoinflipPacing is the delay before each coinflip outcome. Zero
	// disables pacing.
	CoinflipPacing time.Duration `json:"coinflip_pacing" yaml:"coinflip_pacing" env:"COINFLIP_PACING"`

	Accelerator AcceleratorConfig `json:"accelerator" yaml:"accelerator" envPrefix:"ACCELERATOR_"`
	Formatter   FormatterConfig   `json:"formatter" yaml:"formatter" envPrefix:"FORMATTER_"`
	Store       StoreConfig       `json:"store" yaml:"store" envPrefix:"STORE_"`
	HTTP        HTTPConfig        `json:"http" yaml:"http" envPrefix:"HTTP_"`
	Log         LogConfig         `json:"log" yaml:"log" envPrefix:"LOG_"`
	Keyring     KeyringConfig     `json:"keyring" yaml:"keyring" envPrefix:"KEYRING_"`
}

// AcceleratorConfig configures the hardware-assisted backend.
type AcceleratorConfig struct {
	// Disabled skips the accelerated backend and runs degraded from start.
	Disabled bool `json:"disabled" yaml:"disabled" env:"DISABLED"`

	// HiddenUnits lists hidden layer widths between input and output.
	HiddenUnits []int `json:"hidden_units" yaml:"hidden_units" env:"HIDDEN_UNITS"`
}

// FormatterConfig configures result post-processing.
type FormatterConfig struct {
	// ScriptPath points at an optional JavaScript post-processor.
	ScriptPath string `json:"script_path,omitempty" yaml:"script_path,omitempty" env:"SCRIPT_PATH"`

	ScriptTimeout time.Duration `json:"script_timeout,omitempty" yaml:"script_timeout,omitempty" env:"SCRIPT_TIMEOUT"`
}

// StoreConfig configures prediction history.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means DataDir/predictions.db.
	Path string `json:"path" yaml:"path" env:"PATH"`

	// Disabled turns history off entirely.
	Disabled bool `json:"disabled" yaml:"disabled" env:"DISABLED"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr           string        `json:"addr" yaml:"addr" env:"ADDR"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	AllowedOrigins []string      `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" env:"ALLOWED_ORIGINS"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	Level string `json:"level" yaml:"level" env:"LEVEL"`
}

// KeyringConfig configures the seed vault.
type KeyringConfig struct {
	Service string `json:"service" yaml:"service" env:"SERVICE"`

	// FallbackPath is used when no OS keychain is available. Empty means
	// DataDir/seedvault.json.
	FallbackPath string `json:"fallback_path" yaml:"fallback_path" env:"FALLBACK_PATH"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		SeedVectorSize:             engine.DefaultVectorSize,
		HashAlgorithm:              engine.DefaultAlgorithm,
		CoinflipSequenceLength:     games.DefaultCoinflipLength,
		MinesGridSafetyProbability: games.DefaultSafeProbability,
		Accelerator: AcceleratorConfig{
			HiddenUnits: []int{64, 32},
		},
		Formatter: FormatterConfig{
			ScriptTimeout: time.Second,
		},
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:17889",
			RequestTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Keyring: KeyringConfig{
			Service: "stake-pf-predict",
		},
	}
}

// Load reads configuration. path may be empty, in which case PREDICTOR_CONFIG
// is consulted; a missing default file is not an error but a missing
// explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) resolvePaths() error {
	if c.Store.Path != "" && c.Keyring.FallbackPath != "" {
		return nil
	}
	dir, err := DataDir()
	if err != nil {
		return err
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(dir, "predictions.db")
	}
	if c.Keyring.FallbackPath == "" {
		c.Keyring.FallbackPath = filepath.Join(dir, "seedvault.json")
	}
	return nil
}

// Validate checks that the configuration is valid. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.SeedVectorSize <= 0 {
		errs = append(errs, fmt.Errorf("seed_vector_size must be positive, got %d", c.SeedVectorSize))
	}
	if _, err := engine.NewHasher(c.HashAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("hash_algorithm: %w", err))
	}
	if c.CoinflipSequenceLength <= 0 {
		errs = append(errs, fmt.Errorf("coinflip_sequence_length must be positive, got %d", c.CoinflipSequenceLength))
	}
	if p := c.MinesGridSafetyProbability; !(p >= 0 && p <= 1) {
		errs = append(errs, fmt.Errorf("mines_grid_safety_probability must be between 0 and 1, got %v", p))
	}
	if c.CoinflipPacing < 0 {
		errs = append(errs, fmt.Errorf("coinflip_pacing must be non-negative, got %v", c.CoinflipPacing))
	}
	for _, h := range c.Accelerator.HiddenUnits {
		if h <= 0 {
			errs = append(errs, fmt.Errorf("accelerator.hidden_units must be positive, got %v", c.Accelerator.HiddenUnits))
			break
		}
	}
	if c.HTTP.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("http.request_timeout must be non-negative, got %v", c.HTTP.RequestTimeout))
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Log.Level != "" && !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Log.Level))
	}

	return errors.Join(errs...)
}

// DataDir returns the per-user directory for history and vault files.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}
