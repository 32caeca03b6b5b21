package leaderboard

import (
	"fmt"
	"strings"
)

// RemovedFilter selects entries by removed state at query time.
type RemovedFilter int

const (
	NotRemoved RemovedFilter = iota
	Removed
	All
)

// ParseRemovedFilter accepts the names and the numeric forms 0, 1, 2.
// Empty means NotRemoved.
func ParseRemovedFilter(s string) (RemovedFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "notremoved", "not_removed":
		return NotRemoved, nil
	case "1", "removed":
		return Removed, nil
	case "2", "all":
		return All, nil
	default:
		return NotRemoved, fmt.Errorf("%w: %q", ErrInvalidRemovedFilter, s)
	}
}

// Match reports whether an entry with the given removed state is selected.
func (f RemovedFilter) Match(removed bool) bool {
	switch f {
	case Removed:
		return removed
	case All:
		return true
	default:
		return !removed
	}
}

func (f RemovedFilter) String() string {
	switch f {
	case Removed:
		return "removed"
	case All:
		return "all"
	default:
		return "not_removed"
	}
}

// GameModes is the set of game modes that get their own partitions. The
// empty mode, all modes combined, is always present.
type GameModes struct {
	modes []string
	set   map[string]struct{}
}

// NewGameModes normalizes and de-duplicates modes.
func NewGameModes(modes []string) GameModes {
	g := GameModes{set: make(map[string]struct{}, len(modes))}
	for _, m := range modes {
		m = NormalizeGameMode(m)
		if m == "" {
			continue
		}
		if _, ok := g.set[m]; ok {
			continue
		}
		g.set[m] = struct{}{}
		g.modes = append(g.modes, m)
	}
	return g
}

// NormalizeGameMode lowercases and trims a mode name.
func NormalizeGameMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// Parse validates a query parameter. Empty means all modes combined.
func (g GameModes) Parse(mode string) (string, error) {
	mode = NormalizeGameMode(mode)
	if mode == "" || g.Has(mode) {
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGameMode, mode)
}

// Has reports whether mode is a configured game mode.
func (g GameModes) Has(mode string) bool {
	_, ok := g.set[mode]
	return ok
}

// List returns the configured modes in configuration order.
func (g GameModes) List() []string {
	return append([]string(nil), g.modes...)
}

// PartitionKey identifies one ranked store partition.
type PartitionKey struct {
	Leaderboard string
	Interval    Interval
	GameMode    string
}

func (k PartitionKey) String() string {
	mode := k.GameMode
	if mode == "" {
		mode = "all"
	}
	return k.Leaderboard + "/" + string(k.Interval) + "/" + mode
}
