// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityKind says whether a snapshot describes one profile member or a whole profile.
type EntityKind string

const (
	KindMember  EntityKind = "member"
	KindProfile EntityKind = "profile"
)

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	return k == KindMember || k == KindProfile
}

// Snapshot is the up-to-date state of one entity as computed by ingestion.
// Nil sub-states mean the entity has no data for them.
type Snapshot struct {
	Kind        EntityKind    `json:"kind"`
	PlayerUUID  string        `json:"playerUuid,omitempty"`
	ProfileUUID string        `json:"profileUuid"`
	GameMode    string        `json:"gameMode,omitempty"`
	RemovedAt   *time.Time    `json:"removedAt,omitempty"`
	Member      *MemberState  `json:"member,omitempty"`
	Profile     *ProfileState `json:"profile,omitempty"`
}

// MemberState holds the per-member stats leaderboards score on.
type MemberState struct {
	// Skills maps a skill name to its total experience.
	Skills map[string]float64 `json:"skills,omitempty"`
	// Slayers maps a slayer boss to its total experience.
	Slayers map[string]float64 `json:"slayers,omitempty"`
	// Collections maps an item id to the collected amount.
	Collections  map[string]float64 `json:"collections,omitempty"`
	FarmingLevel int                `json:"farmingLevel,omitempty"`
	Dungeons     *DungeonState      `json:"dungeons,omitempty"`
}

// DungeonState holds catacombs and class experience.
type DungeonState struct {
	CatacombsXP float64            `json:"catacombsXp"`
	Classes     map[string]float64 `json:"classes,omitempty"`
}

// ProfileState holds profile-wide stats.
type ProfileState struct {
	// BankBalance is nil when the bank API is disabled for the profile.
	BankBalance   *float64 `json:"bankBalance,omitempty"`
	UniqueMinions int      `json:"uniqueMinions,omitempty"`
	// Members maps a member's player UUID to its state.
	Members map[string]*MemberState `json:"members,omitempty"`
}

// Removed reports whether the entity was wiped or left the game.
func (s *Snapshot) Removed() bool {
	return s.RemovedAt != nil
}

// Key returns the entity key ranked entries are stored under.
func (s *Snapshot) Key() (string, error) {
	switch s.Kind {
	case KindMember:
		return MemberKey(s.PlayerUUID, s.ProfileUUID)
	case KindProfile:
		return NormalizeUUID(s.ProfileUUID)
	default:
		return "", fmt.Errorf("model.Key: %w: %q", ErrInvalidKind, s.Kind)
	}
}

// Validate checks identity fields. Stats are not validated here.
func (s *Snapshot) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("model.Validate: %w: %q", ErrInvalidKind, s.Kind)
	}
	_, err := s.Key()
	return err
}

// NormalizeUUID returns u as 32 lowercase hex characters.
func NormalizeUUID(u string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(u))
	if err != nil {
		return "", fmt.Errorf("model.NormalizeUUID: %w: %q", ErrInvalidUUID, u)
	}
	return strings.ReplaceAll(parsed.String(), "-", ""), nil
}

// MemberKey returns the compound key player:profile with both UUIDs normalized.
func MemberKey(playerUUID, profileUUID string) (string, error) {
	player, err := NormalizeUUID(playerUUID)
	if err != nil {
		return "", err
	}
	profile, err := NormalizeUUID(profileUUID)
	if err != nil {
		return "", err
	}
	return player + ":" + profile, nil
}

// EntityChange notifies the engine that an entity's stats changed.
type EntityChange struct {
	// ChangeID makes notifications idempotent.
	ChangeID   string    `json:"changeId"`
	Snapshot   Snapshot  `json:"snapshot"`
	ReceivedAt time.Time `json:"-"`
}
