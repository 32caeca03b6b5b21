package repository

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/pkg/metrics"
)

// Treap-based, in-memory ranked partition.
//
// Ordering: score in the leaderboard's direction, then entity key ASC.
// "before" means ranks earlier, so in-order traversal yields the
// leaderboard from best to worst. Every node counts the removed and
// not-removed entries of its subtree, which keeps rank and select under
// any RemovedFilter at O(log n).

// record is the stored state of one entity.
type record struct {
	score     scoreFP
	removed   bool
	updatedAt time.Time
}

// treap node
type node struct {
	key     string
	score   scoreFP
	removed bool
	prio    uint64
	left    *node
	right   *node
	cnt     [2]int // [not removed, removed]
}

func removedIdx(removed bool) int {
	if removed {
		return 1
	}
	return 0
}

// count returns how many entries under n match f.
func count(n *node, f leaderboard.RemovedFilter) int {
	if n == nil {
		return 0
	}
	switch f {
	case leaderboard.Removed:
		return n.cnt[1]
	case leaderboard.All:
		return n.cnt[0] + n.cnt[1]
	default:
		return n.cnt[0]
	}
}

func fix(n *node) {
	if n == nil {
		return
	}
	n.cnt = [2]int{}
	n.cnt[removedIdx(n.removed)] = 1
	for _, c := range [2]*node{n.left, n.right} {
		if c != nil {
			n.cnt[0] += c.cnt[0]
			n.cnt[1] += c.cnt[1]
		}
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// Partition is one ranked index for (leaderboard, interval, game mode).
// Readers share the lock; a mutation holds it only for the tree update.
type Partition struct {
	mu      sync.RWMutex
	key     leaderboard.PartitionKey
	desc    bool
	minimum scoreFP
	root    *node
	byKey   map[string]record
	frozen  bool

	loaded atomic.Bool
}

func newPartition(key leaderboard.PartitionKey, cfg PartitionConfig) *Partition {
	return &Partition{
		key:     key,
		desc:    cfg.Order != leaderboard.Asc,
		minimum: toFixedPoint(cfg.MinimumScore),
		byKey:   make(map[string]record),
	}
}

// Key returns the partition's identity.
func (p *Partition) Key() leaderboard.PartitionKey { return p.key }

// before returns true if (aScore, aKey) ranks ahead of (bScore, bKey).
func (p *Partition) before(aScore scoreFP, aKey string, bScore scoreFP, bKey string) bool {
	if aScore != bScore {
		if p.desc {
			return aScore > bScore
		}
		return aScore < bScore
	}
	return aKey < bKey
}

func (p *Partition) insert(n *node, key string, score scoreFP, removed bool) *node {
	if n == nil {
		nn := &node{key: key, score: score, removed: removed, prio: rand.Uint64()}
		fix(nn)
		return nn
	}
	if p.before(score, key, n.score, n.key) {
		n.left = p.insert(n.left, key, score, removed)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = p.insert(n.right, key, score, removed)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func (p *Partition) delete(n *node, key string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	if score == n.score && key == n.key {
		// Rotate the higher priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = p.delete(n.right, key, score)
		} else {
			n = rotateLeft(n)
			n.left = p.delete(n.left, key, score)
		}
	} else if p.before(score, key, n.score, n.key) {
		n.left = p.delete(n.left, key, score)
	} else {
		n.right = p.delete(n.right, key, score)
	}
	fix(n)
	return n
}

// Upsert sets key's score. A score below the leaderboard minimum removes
// the entry instead.
func (p *Partition) Upsert(key string, score decimal.Decimal, removed bool, at time.Time) error {
	fp := toFixedPoint(score)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return ErrFrozen
	}
	if p.below(fp) {
		p.removeLocked(key)
		return nil
	}
	if old, ok := p.byKey[key]; ok {
		if old.score == fp && old.removed == removed {
			p.byKey[key] = record{score: fp, removed: removed, updatedAt: at}
			return nil
		}
		p.root = p.delete(p.root, key, old.score)
	}
	p.byKey[key] = record{score: fp, removed: removed, updatedAt: at}
	p.root = p.insert(p.root, key, fp, removed)
	metrics.RecordPartitionMutation("upsert")
	return nil
}

// Seed inserts key only if it is absent. Warm-up uses it to fill a
// partition without overwriting newer writes; it is allowed on frozen
// partitions. Returns whether the entry was inserted.
func (p *Partition) Seed(key string, score decimal.Decimal, removed bool, at time.Time) bool {
	fp := toFixedPoint(score)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byKey[key]; ok || p.below(fp) {
		return false
	}
	p.byKey[key] = record{score: fp, removed: removed, updatedAt: at}
	p.root = p.insert(p.root, key, fp, removed)
	metrics.RecordPartitionMutation("seed")
	return true
}

// Remove deletes key. Removing an absent key is a no-op.
func (p *Partition) Remove(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return ErrFrozen
	}
	p.removeLocked(key)
	return nil
}

func (p *Partition) removeLocked(key string) {
	old, ok := p.byKey[key]
	if !ok {
		return
	}
	p.root = p.delete(p.root, key, old.score)
	delete(p.byKey, key)
	metrics.RecordPartitionMutation("remove")
}

// below reports whether fp misses the leaderboard minimum. The minimum is a
// floor in both directions.
func (p *Partition) below(fp scoreFP) bool {
	return fp < p.minimum
}

// RankOf returns key's 1-based rank among entries matching f.
func (p *Partition) RankOf(key string, f leaderboard.RemovedFilter) (Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rankOfLocked(key, f)
}

func (p *Partition) rankOfLocked(key string, f leaderboard.RemovedFilter) (Entry, error) {
	rec, ok := p.byKey[key]
	if !ok || !f.Match(rec.removed) {
		return Entry{}, ErrNotFound
	}
	rank := 0
	n := p.root
	for n != nil {
		if n.key == key {
			rank += count(n.left, f) + 1
			break
		}
		if p.before(rec.score, key, n.score, n.key) {
			n = n.left
			continue
		}
		rank += count(n.left, f)
		if f.Match(n.removed) {
			rank++
		}
		n = n.right
	}
	return entryOf(rank, key, rec), nil
}

// Slice returns up to limit entries matching f starting after offset.
// Fewer entries are returned at the end of the partition.
func (p *Partition) Slice(offset, limit int, f leaderboard.RemovedFilter) ([]Entry, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset
	}
	if limit < 0 || limit > MaxSliceLimit {
		return nil, ErrInvalidLimit
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sliceLocked(offset, limit, f), nil
}

// Page is Slice plus the number of entries matching f, read under one lock
// so the total agrees with the entries.
func (p *Partition) Page(offset, limit int, f leaderboard.RemovedFilter) ([]Entry, int, error) {
	if offset < 0 {
		return nil, 0, ErrInvalidOffset
	}
	if limit < 0 || limit > MaxSliceLimit {
		return nil, 0, ErrInvalidLimit
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sliceLocked(offset, limit, f), count(p.root, f), nil
}

func (p *Partition) sliceLocked(offset, limit int, f leaderboard.RemovedFilter) []Entry {
	if limit == 0 {
		return []Entry{}
	}
	nodes := make([]*node, 0, min(limit, count(p.root, f)))
	skip := offset
	collect(p.root, f, &skip, limit, &nodes)

	out := make([]Entry, len(nodes))
	for i, n := range nodes {
		out[i] = entryOf(offset+i+1, n.key, p.byKey[n.key])
	}
	return out
}

// collect appends matching nodes in rank order, skipping the first *skip
// and stopping at limit. Subtrees entirely inside the skipped range are
// jumped over using their counts.
func collect(n *node, f leaderboard.RemovedFilter, skip *int, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	if lc := count(n.left, f); *skip >= lc {
		*skip -= lc
	} else {
		collect(n.left, f, skip, limit, out)
	}
	if len(*out) >= limit {
		return
	}
	if f.Match(n.removed) {
		if *skip > 0 {
			*skip--
		} else {
			*out = append(*out, n)
		}
	}
	if len(*out) < limit {
		collect(n.right, f, skip, limit, out)
	}
}

// Neighbors returns the window around key, or around atRank when atRank >= 0.
// Upcoming holds up to upcoming entries ranked strictly better than the
// anchor and Previous up to previous entries ranked strictly worse, both in
// rank order. With atRank >= 0 an unranked key is not an error.
func (p *Partition) Neighbors(key string, upcoming, previous, atRank int, f leaderboard.RemovedFilter) (Window, error) {
	upcoming = clamp(upcoming, 0, MaxUpcoming)
	previous = clamp(previous, 0, MaxPrevious)

	p.mu.RLock()
	defer p.mu.RUnlock()

	var w Window
	self, err := p.rankOfLocked(key, f)
	switch {
	case err == nil:
		w.Entry = &self
	case atRank < 0:
		return Window{}, err
	}

	anchor := atRank
	if anchor < 0 {
		anchor = self.Rank
	}
	total := count(p.root, f)

	if lo, hi := max(1, anchor-upcoming), min(anchor-1, total); upcoming > 0 && lo <= hi {
		w.Upcoming = p.sliceLocked(lo-1, hi-lo+1, f)
	}
	if lo, hi := max(1, anchor+1), min(anchor+previous, total); previous > 0 && lo <= hi {
		w.Previous = p.sliceLocked(lo-1, hi-lo+1, f)
	}
	return w, nil
}

// Count returns the number of entries matching f.
func (p *Partition) Count(f leaderboard.RemovedFilter) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return count(p.root, f)
}

// Get returns key's stored entry without computing its rank.
func (p *Partition) Get(key string) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return entryOf(0, key, rec), true
}

// Freeze makes the partition read-only. Later mutations fail with ErrFrozen.
func (p *Partition) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Frozen reports whether the partition is read-only.
func (p *Partition) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// Loaded reports whether the partition was warmed from the relational store.
func (p *Partition) Loaded() bool { return p.loaded.Load() }

// MarkLoaded records a completed warm-up.
func (p *Partition) MarkLoaded() { p.loaded.Store(true) }

func entryOf(rank int, key string, rec record) Entry {
	return Entry{
		Rank:      rank,
		Key:       key,
		Score:     rec.score.Decimal(),
		Removed:   rec.removed,
		UpdatedAt: rec.updatedAt,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
