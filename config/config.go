// Package config loads process-level settings for the turnmesh command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. TURNMESH_LOG_LEVEL.
const EnvPrefix = "TURNMESH"

// Config holds application configuration.
type Config struct {
	Drain      DrainConfig      `mapstructure:"drain"`
	Lock       LockConfig       `mapstructure:"lock"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Store      StoreConfig      `mapstructure:"store"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Log        LogConfig        `mapstructure:"log"`
}

// DrainConfig holds drain loop settings.
type DrainConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LockConfig holds lock settings.
type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// BudgetConfig holds context budget settings.
type BudgetConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
}

// IngestConfig holds batching settings.
type IngestConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// ClassifierConfig points at an optional YAML keyword file.
type ClassifierConfig struct {
	KeywordsFile string `mapstructure:"keywords_file"`
}

// StoreConfig selects the lock and queue backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory or sqlite
	Path   string `mapstructure:"path"`
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"` // mock, anthropic or openai
	Model     string `mapstructure:"model"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// APIKey resolves the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("drain.poll_interval", 5*time.Second)
	v.SetDefault("lock.ttl", 10*time.Minute)
	v.SetDefault("budget.max_tokens", 200000)
	v.SetDefault("ingest.window", 11*time.Second)
	v.SetDefault("classifier.keywords_file", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "turnmesh", "turnmesh.db"))
	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key_env", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from file and env. The file is path, else
// $TURNMESH_CONFIG, else config.{yaml,toml} under $HOME/.config/turnmesh.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "turnmesh"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects unknown drivers and providers and non-positive limits.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("config: store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	switch c.LLM.Provider {
	case "mock", "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}
	if c.Drain.PollInterval <= 0 || c.Lock.TTL <= 0 || c.Ingest.Window <= 0 {
		return errors.New("config: durations must be positive")
	}
	if c.Budget.MaxTokens <= 0 {
		return errors.New("config: budget.max_tokens must be positive")
	}
	return nil
}
