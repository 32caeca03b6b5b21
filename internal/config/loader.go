package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SKYRANK_"

// listKeys are the settings read from the environment as comma separated
// lists.
var listKeys = map[string]struct{}{
	"game_modes":          {},
	"legacy_leaderboards": {},
}

// splitList splits a comma separated value, trimming blanks. An empty value
// yields an empty list.
func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SKYRANK_CONFIG is set
//  3. env (prefix SKYRANK_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// SKYRANK_QUEUE_SIZE -> queue_size. Underscores are kept to match the
	// flat koanf tags. List keys are comma separated.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	case c.MaxSliceLimit <= 0 || c.MaxSliceLimit > 10_000:
		return fmt.Errorf("%w: max_slice_limit must be in [1, 10000]", ErrInvalidConfig)
	case c.DefaultUpcoming < 0 || c.DefaultUpcoming > 100:
		return fmt.Errorf("%w: default_upcoming must be in [0, 100]", ErrInvalidConfig)
	case c.MultiRankConcurrency <= 0:
		return fmt.Errorf("%w: multi_rank_concurrency must be positive", ErrInvalidConfig)
	case c.RolloverCheckInterval <= 0:
		return fmt.Errorf("%w: rollover_check_interval must be positive", ErrInvalidConfig)
	case len(c.LegacyLeaderboards) > 0 && c.PostgresDSN == "":
		return fmt.Errorf("%w: legacy_leaderboards requires postgres_dsn", ErrInvalidConfig)
	}
	for _, mode := range c.GameModes {
		if strings.TrimSpace(mode) == "" {
			return fmt.Errorf("%w: game_modes must not contain empty names", ErrInvalidConfig)
		}
	}
	return nil
}
