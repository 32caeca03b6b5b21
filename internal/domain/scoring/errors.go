package scoring

import "errors"

var (
	ErrNoScoreFunc       = errors.New("no score function for leaderboard")
	ErrKindMismatch      = errors.New("snapshot kind does not match leaderboard")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrExtractionPanic   = errors.New("score function panicked")
)
