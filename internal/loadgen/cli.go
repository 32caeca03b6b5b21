package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/skyrank/pkg/logger"
)

// SetupLogging sends log records to stdout and, when logFile is set, to
// that file as well.
func SetupLogging(logFile string) error {
	if logFile == "" {
		return logger.Init()
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Skyrank Load Generator
======================

Submits synthetic member snapshots to a running ranking service, waits for
them to be applied, and checks the reported ranks against the submitted XP.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -members int
        Number of distinct members to submit (default 10000)
  -skill string
        Skill whose XP is generated (default "combat")
  -top int
        Number of leaderboard entries to verify (default 50)
  -workers int
        Number of concurrent HTTP workers (default CPU cores * 2)
  -modes string
        Comma separated game modes assigned round-robin
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long to wait for changes to be applied (default 2m)
  -output string
        Write the generated members to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Log every failed request
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -members 50000 -workers 16
  go run ./cmd/loadgen -skill mining -modes ironman,island -url http://localhost:8080
`)
}
