package leaderboard

import "errors"

var (
	ErrDuplicateLeaderboard = errors.New("duplicate leaderboard id")
	ErrInvalidDefinition    = errors.New("invalid leaderboard definition")
	ErrUnknownLeaderboard   = errors.New("unknown leaderboard")
	ErrRegistrySealed       = errors.New("registry is sealed")
	ErrInvalidInterval      = errors.New("invalid interval")
	ErrInvalidGameMode      = errors.New("invalid game mode")
	ErrInvalidRemovedFilter = errors.New("invalid removed filter")
)
