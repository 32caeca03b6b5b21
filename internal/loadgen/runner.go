package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/skyrank/internal/domain/types"
	"github.com/okian/skyrank/pkg/logger"
)

// ErrNotSettled is returned when the service did not apply every accepted
// change within the settle timeout.
var ErrNotSettled = errors.New("service did not settle")

func (c *Config) normalize() {
	if c.Skill == "" {
		c.Skill = defaultSkill
	}
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = defaultSettleTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

// Run submits cfg.Members synthetic members, waits for the service to apply
// them, and verifies the ranks it reports.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg.normalize()
	log := logger.Named("loadgen")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)
	id := cfg.Leaderboard()

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("leaderboard", id),
		logger.Int("members", cfg.Members),
		logger.Int("workers", cfg.Workers),
		logger.Strings("gameModes", cfg.GameModes))

	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	before, err := c.slice(ctx, id, 0, 0)
	if err != nil {
		return stats, fmt.Errorf("baseline read failed: %w", err)
	}

	members, err := generateMembers(ctx, cfg, stats)
	if err != nil {
		return stats, fmt.Errorf("generation failed: %w", err)
	}

	accepted := submit(ctx, cfg, c, members, stats)
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed))

	if err := settle(ctx, cfg, c, before.Total+len(accepted)); err != nil {
		return stats, err
	}

	positions := retrieveRanks(ctx, cfg, c, accepted, stats)

	top, err := c.slice(ctx, id, 0, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("slice read failed: %w", err)
	}
	stats.SliceTotal = top.Total
	stats.SliceLength = len(top.Entries)

	if err := verify(accepted, positions, top); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}
	log.Info(ctx, "ranks verified", logger.Int("ranked", stats.Ranked), logger.Int("sliceTotal", stats.SliceTotal))

	if cfg.OutputFile != "" {
		if err := saveMembers(cfg.OutputFile, members); err != nil {
			log.Warn(ctx, "failed to save members", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

// submit posts every member's change and returns the accepted ones.
func submit(ctx context.Context, cfg *Config, c *client, members []member, stats *Stats) []member {
	var (
		submitted, rejected, failed int64
		mu                          sync.Mutex
		accepted                    = make([]member, 0, len(members))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range members {
		m := members[i]
		g.Go(func() error {
			atomic.AddInt64(&submitted, 1)
			err := c.notify(gctx, m.Change)
			var se *statusError
			switch {
			case err == nil:
				mu.Lock()
				accepted = append(accepted, m)
				mu.Unlock()
			case errors.As(err, &se) && se.Status == http.StatusTooManyRequests:
				atomic.AddInt64(&rejected, 1)
			default:
				atomic.AddInt64(&failed, 1)
				if cfg.Verbose {
					logger.Get().Warn(gctx, "submit failed", logger.String("key", m.Key), logger.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Submitted = int(submitted)
	stats.Accepted = len(accepted)
	stats.Rejected = int(rejected)
	stats.Failed = int(failed)
	return accepted
}

// settle polls until the queue is empty and the leaderboard holds at least
// want entries.
func settle(ctx context.Context, cfg *Config, c *client, want int) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	id := cfg.Leaderboard()
	last := -1
	for {
		st, err := c.stats(ctx)
		if err == nil {
			queued, _ := st["queueLength"].(float64)
			page, serr := c.slice(ctx, id, 0, 0)
			if serr == nil {
				last = page.Total
				if queued == 0 && page.Total >= want {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: have %d entries, want %d", ErrNotSettled, last, want)
		case <-ticker.C:
		}
	}
}

// retrieveRanks reads every member's position. Members whose lookup failed
// map to nil.
func retrieveRanks(ctx context.Context, cfg *Config, c *client, members []member, stats *Stats) map[string]*types.Position {
	var mu sync.Mutex
	out := make(map[string]*types.Position, len(members))
	id := cfg.Leaderboard()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range members {
		m := members[i]
		g.Go(func() error {
			pos, err := c.rank(gctx, id, &m.Change.Snapshot)
			if err != nil && cfg.Verbose {
				logger.Get().Warn(gctx, "rank lookup failed", logger.String("key", m.Key), logger.Error(err))
			}
			mu.Lock()
			out[m.Key] = pos
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, pos := range out {
		if pos != nil {
			stats.Ranked++
		}
	}
	return out
}

// saveMembers writes the generated members as a JSON array.
func saveMembers(filename string, members []member) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(members, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal members: %w", err)
	}
	if err := os.WriteFile(filename, raw, logFilePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentage
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("ranked", stats.Ranked),
		logger.Int("sliceTotal", stats.SliceTotal),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("changesPerSecond", perSecond))
}
