// Package loadgen drives a running ranking service with synthetic member
// snapshots and checks that what it reads back is consistently ordered.
package loadgen

import (
	"time"

	"github.com/okian/skyrank/internal/domain/model"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Members       int           // Number of distinct members to submit
	Skill         string        // Skill whose XP is generated
	TopN          int           // Number of slice entries to fetch
	Workers       int           // Number of concurrent HTTP workers
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for the queue to drain
	PollInterval  time.Duration // How often settle polls the service
	GameModes     []string      // Game modes assigned round-robin; empty means none
	OutputFile    string        // Output file for the submitted changes; empty skips saving
	Verbose       bool          // Log every failed request
}

// Leaderboard is the id of the skill leaderboard under test.
func (c *Config) Leaderboard() string {
	return "skill-" + c.Skill
}

// member is one generated entity and the XP it was given.
type member struct {
	Key    string             `json:"key"`
	XP     int64              `json:"xp"`
	Change model.EntityChange `json:"change"`
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Submitted   int
	Accepted    int
	Rejected    int
	Failed      int
	Ranked      int
	SliceTotal  int
	SliceLength int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
