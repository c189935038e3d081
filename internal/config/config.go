// Package config loads daemon configuration with viper.
// Precedence: environment (VOICEPACK_*) > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Listen string       `mapstructure:"listen"`
	Blob   BlobConfig   `mapstructure:"blob"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Reduce ReduceConfig `mapstructure:"reduce"`
	Log    LogConfig    `mapstructure:"log"`
}

type BlobConfig struct {
	Root      string `mapstructure:"root"`
	Namespace string `mapstructure:"namespace"`
}

type LLMConfig struct {
	APIKey          string `mapstructure:"api_key"`
	FilterModel     string `mapstructure:"filter_model"`
	ConvergeModel   string `mapstructure:"converge_model"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens"`
}

type FetchConfig struct {
	Query       string        `mapstructure:"query"`
	Limit       int           `mapstructure:"limit"`
	PageSize    int           `mapstructure:"page_size"`
	FlushEvery  int           `mapstructure:"flush_every"`
	RecordDelay time.Duration `mapstructure:"record_delay"`
}

type ReduceConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	Overlap        int           `mapstructure:"overlap"`
	Slots          int           `mapstructure:"slots"`
	Stagger        time.Duration `mapstructure:"stagger"`
	TargetTokens   int           `mapstructure:"target_tokens"`
	BatchRecords   int           `mapstructure:"batch_records"`
	ContextCeiling int           `mapstructure:"context_ceiling"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:8480")
	v.SetDefault("blob.root", "./data")
	v.SetDefault("blob.namespace", "voicepack")
	v.SetDefault("llm.filter_model", "gpt-4o-mini")
	v.SetDefault("llm.converge_model", "gpt-4o")
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("fetch.query", "in:sent")
	v.SetDefault("fetch.limit", 1000)
	v.SetDefault("fetch.page_size", 100)
	v.SetDefault("fetch.flush_every", 20)
	v.SetDefault("fetch.record_delay", 100*time.Millisecond)
	v.SetDefault("reduce.chunk_size", 8192)
	v.SetDefault("reduce.overlap", 100)
	v.SetDefault("reduce.slots", 5)
	v.SetDefault("reduce.stagger", 100*time.Millisecond)
	v.SetDefault("reduce.target_tokens", 4000)
	v.SetDefault("reduce.batch_records", 50)
	v.SetDefault("reduce.context_ceiling", 128000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from path (optional, "" skips the file), the
// VOICEPACK_* environment, and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VOICEPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Blob.Root == "" {
		return errors.New("blob.root is required")
	}
	if c.Reduce.ChunkSize <= 0 {
		return fmt.Errorf("reduce.chunk_size must be positive, got %d", c.Reduce.ChunkSize)
	}
	if c.Reduce.Overlap < 0 || c.Reduce.Overlap >= c.Reduce.ChunkSize {
		return fmt.Errorf("reduce.overlap must be in [0, chunk_size), got %d", c.Reduce.Overlap)
	}
	if c.Reduce.TargetTokens <= 0 {
		return fmt.Errorf("reduce.target_tokens must be positive, got %d", c.Reduce.TargetTokens)
	}
	if c.Fetch.PageSize <= 0 || c.Fetch.FlushEvery <= 0 {
		return errors.New("fetch.page_size and fetch.flush_every must be positive")
	}
	return nil
}
