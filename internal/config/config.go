// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory entity change queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of sync workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many recent change ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxBodyBytes bounds a POST /entities body.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// MaxSliceLimit caps GET /leaderboard/{id}?limit.
	MaxSliceLimit int `koanf:"max_slice_limit"`

	// DefaultUpcoming is used when a request sets includeUpcoming without upcoming.
	DefaultUpcoming int `koanf:"default_upcoming"`

	// MultiRankConcurrency bounds concurrent lookups in a batched rank request.
	MultiRankConcurrency int `koanf:"multi_rank_concurrency"`

	// GameModes lists the game modes that get their own partitions.
	GameModes []string `koanf:"game_modes"`

	// LegacyLeaderboards lists leaderboard ids served by the relational store.
	LegacyLeaderboards []string `koanf:"legacy_leaderboards"`

	// PostgresDSN points at the relational aggregate store. Empty disables
	// the legacy backend and lazy warm-up.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr points at the metadata cache. Empty serves entries without metadata.
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`

	// RolloverCheckInterval is how often the calendar is checked for a new month.
	RolloverCheckInterval time.Duration `koanf:"rollover_check_interval"`

	// WarmOnMiss repopulates an empty partition from the relational store on first read.
	WarmOnMiss bool `koanf:"warm_on_miss"`

	// WarmPageSize is the number of rows fetched per warm-up page.
	WarmPageSize int `koanf:"warm_page_size"`

	// CropDivisors maps a crop to the collection amount worth one weight
	// point. Empty uses the built-in divisors.
	CropDivisors map[string]float64 `koanf:"crop_divisors"`

	// FarmingLevel50Bonus and FarmingLevel60Bonus are flat weight bonuses.
	FarmingLevel50Bonus float64 `koanf:"farming_level50_bonus"`
	FarmingLevel60Bonus float64 `koanf:"farming_level60_bonus"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		EventQueueSize:        100_000,
		WorkerCount:           runtime.NumCPU() * 4,
		DedupeSize:            500_000,
		MaxBodyBytes:          1 << 20,
		MaxSliceLimit:         10_000,
		DefaultUpcoming:       10,
		MultiRankConcurrency:  8,
		GameModes:             []string{"ironman", "island", "bingo"},
		RolloverCheckInterval: 30 * time.Second,
		WarmOnMiss:            true,
		WarmPageSize:          5_000,
		FarmingLevel50Bonus:   100,
		FarmingLevel60Bonus:   250,
	}
}
