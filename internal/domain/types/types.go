// Package types contains the response shapes shared by both ranking backends.
package types

// NotRanked is the rank reported for an entity without a qualifying score
// when a window was requested around an explicit rank.
const NotRanked = -1

// Entry represents a leaderboard entry.
type Entry struct {
	Rank    int     `json:"rank"`
	Key     string  `json:"key"`
	Score   float64 `json:"score"`
	Removed bool    `json:"removed,omitempty"`
	// Meta is presentation data from the metadata service; null when the
	// lookup failed.
	Meta map[string]string `json:"meta"`
}

// Slice is a page of a leaderboard.
type Slice struct {
	Leaderboard string  `json:"leaderboard"`
	Interval    string  `json:"interval"`
	GameMode    string  `json:"gameMode,omitempty"`
	Removed     string  `json:"removed"`
	Offset      int     `json:"offset"`
	Limit       int     `json:"limit"`
	Total       int     `json:"total"`
	Entries     []Entry `json:"entries"`
}

// Position is one entity's standing with its neighbor window.
type Position struct {
	Rank int `json:"rank"`
	// Score is null when Rank is NotRanked.
	Score    *float64 `json:"score"`
	Upcoming []Entry  `json:"upcomingEntries,omitempty"`
	Previous []Entry  `json:"previousEntries,omitempty"`
}

// Ranked reports whether the entity itself has a rank.
func (p *Position) Ranked() bool { return p.Rank != NotRanked }

// Leaderboard describes a registered leaderboard.
type Leaderboard struct {
	ID                     string   `json:"id"`
	Title                  string   `json:"title"`
	ShortTitle             string   `json:"shortTitle,omitempty"`
	Category               string   `json:"category"`
	DataType               string   `json:"dataType"`
	MinimumScore           float64  `json:"minimumScore"`
	IntervalTypes          []string `json:"intervalTypes"`
	EntityKind             string   `json:"entityKind"`
	Order                  string   `json:"order"`
	UseIncreaseForInterval bool     `json:"useIncreaseForInterval,omitempty"`
	Legacy                 bool     `json:"legacy,omitempty"`
}
