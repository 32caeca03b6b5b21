// Package repository holds the in-memory ranked store: one treap-backed
// partition per (leaderboard, interval, game mode).
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/pkg/metrics"
)

// Query bounds shared by every backend.
const (
	MaxSliceLimit = 10_000
	MaxUpcoming   = 100
	MaxPrevious   = 3
)

// Entry represents a ranked row.
type Entry struct {
	Rank      int
	Key       string
	Score     decimal.Decimal
	Removed   bool
	UpdatedAt time.Time
}

// Window is an entity's rank with its neighbors. Entry is nil when the
// entity is not ranked and the window was anchored at an explicit rank.
type Window struct {
	Entry    *Entry
	Upcoming []Entry
	Previous []Entry
}

// PartitionConfig carries the leaderboard settings a partition orders by.
type PartitionConfig struct {
	Order        leaderboard.Order
	MinimumScore decimal.Decimal
}

// ConfigFor derives a partition config from a definition.
func ConfigFor(def *leaderboard.Definition) PartitionConfig {
	return PartitionConfig{Order: def.Order, MinimumScore: def.MinimumScore}
}

// Stats summarizes the store.
type Stats struct {
	Partitions     int            `json:"partitions"`
	Entries        int            `json:"entries"`
	Frozen         int            `json:"frozen"`
	PerLeaderboard map[string]int `json:"perLeaderboard"`
}

// Store owns every partition. Partitions are created on first use and
// live for the process lifetime.
type Store struct {
	partitions      *xsync.MapOf[leaderboard.PartitionKey, *Partition]
	metricsInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewStore constructs a store with configuration options and starts the
// background metrics publisher.
func NewStore(ctx context.Context, opts ...Option) *Store {
	s := &Store{
		partitions:      xsync.NewMapOf[leaderboard.PartitionKey, *Partition](),
		metricsInterval: 5 * time.Second,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Open returns the partition for key, creating it with cfg if needed.
func (s *Store) Open(key leaderboard.PartitionKey, cfg PartitionConfig) *Partition {
	p, _ := s.partitions.LoadOrCompute(key, func() *Partition {
		return newPartition(key, cfg)
	})
	return p
}

// Get returns the partition for key if it exists.
func (s *Store) Get(key leaderboard.PartitionKey) (*Partition, bool) {
	return s.partitions.Load(key)
}

// Range calls fn for every partition until fn returns false.
func (s *Store) Range(fn func(key leaderboard.PartitionKey, p *Partition) bool) {
	s.partitions.Range(fn)
}

// FreezeInterval freezes every partition of (leaderboardID, interval) and
// returns how many it froze.
func (s *Store) FreezeInterval(leaderboardID string, interval leaderboard.Interval) int {
	frozen := 0
	s.partitions.Range(func(key leaderboard.PartitionKey, p *Partition) bool {
		if key.Leaderboard == leaderboardID && key.Interval == interval && !p.Frozen() {
			p.Freeze()
			frozen++
		}
		return true
	})
	return frozen
}

// Stats walks the partitions and counts entries.
func (s *Store) Stats() Stats {
	st := Stats{PerLeaderboard: make(map[string]int)}
	s.partitions.Range(func(key leaderboard.PartitionKey, p *Partition) bool {
		n := p.Count(leaderboard.All)
		st.Partitions++
		st.Entries += n
		st.PerLeaderboard[key.Leaderboard] += n
		if p.Frozen() {
			st.Frozen++
		}
		return true
	})
	return st
}

// Close stops the background metrics publisher.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *Store) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *Store) updateMetrics() {
	st := s.Stats()
	metrics.UpdatePartitions(st.Partitions, st.Entries)
	for id, n := range st.PerLeaderboard {
		metrics.UpdateLeaderboardEntries(id, n)
	}
}
