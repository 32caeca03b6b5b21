package loadgen

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okian/skyrank/internal/domain/types"
)

// ErrInconsistent reports ranks that disagree with each other or with the
// submitted scores.
var ErrInconsistent = errors.New("inconsistent ranks")

// verify checks the slice and the per-member positions against each other
// and against the submitted XP. Other entities may share the leaderboard, so
// only relative order among the submitted members is checked.
func verify(members []member, positions map[string]*types.Position, top *types.Slice) error {
	if err := verifySlice(top); err != nil {
		return err
	}

	ranked := make([]member, 0, len(members))
	for _, m := range members {
		pos := positions[m.Key]
		if pos == nil {
			return fmt.Errorf("%w: %s has no rank", ErrInconsistent, m.Key)
		}
		if pos.Score == nil {
			return fmt.Errorf("%w: %s has no score", ErrInconsistent, m.Key)
		}
		if int64(*pos.Score) != m.XP {
			return fmt.Errorf("%w: %s scored %.0f, submitted %d", ErrInconsistent, m.Key, *pos.Score, m.XP)
		}
		ranked = append(ranked, m)
	}

	// Highest XP first, ties by key.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].XP != ranked[j].XP {
			return ranked[i].XP > ranked[j].XP
		}
		return ranked[i].Key < ranked[j].Key
	})
	for i := 1; i < len(ranked); i++ {
		prev, cur := positions[ranked[i-1].Key].Rank, positions[ranked[i].Key].Rank
		if cur <= prev {
			return fmt.Errorf("%w: %s ranked %d after %s at %d", ErrInconsistent, ranked[i].Key, cur, ranked[i-1].Key, prev)
		}
	}

	for _, e := range top.Entries {
		pos, ok := positions[e.Key]
		if !ok {
			continue
		}
		if pos.Rank != e.Rank {
			return fmt.Errorf("%w: %s is %d in the slice and %d by rank", ErrInconsistent, e.Key, e.Rank, pos.Rank)
		}
	}
	return nil
}

// verifySlice checks that ranks are contiguous and scores never increase.
func verifySlice(top *types.Slice) error {
	for i, e := range top.Entries {
		if e.Rank != top.Offset+i+1 {
			return fmt.Errorf("%w: slice entry %d has rank %d", ErrInconsistent, i, e.Rank)
		}
		if i == 0 {
			continue
		}
		prev := top.Entries[i-1]
		if e.Score > prev.Score || (e.Score == prev.Score && e.Key < prev.Key) {
			return fmt.Errorf("%w: slice entry %s out of order after %s", ErrInconsistent, e.Key, prev.Key)
		}
	}
	if len(top.Entries) > top.Total {
		return fmt.Errorf("%w: %d entries but total %d", ErrInconsistent, len(top.Entries), top.Total)
	}
	return nil
}
