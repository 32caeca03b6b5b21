package loadgen

import "time"

// Defaults applied by normalize.
const (
	defaultSkill         = "combat"
	defaultTopN          = 50
	defaultWorkers       = 8
	defaultTimeout       = 10 * time.Second
	defaultSettleTimeout = 2 * time.Minute
	defaultPollInterval  = 250 * time.Millisecond
)

const (
	directoryPermission = 0750
	logFilePermission   = 0600
	percentage          = 100
)
