package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when a command has nothing to check.
	ErrNoTarget = errors.New("no target specified: provide URLs, use --list, or use --from-db")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidCheckDelay is returned when the check delay is negative.
	ErrInvalidCheckDelay = errors.New("invalid check delay: must be non-negative")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrNoGateway is returned when the gateway list is empty.
	ErrNoGateway = errors.New("no gateway configured")

	// ErrInvalidStartupTimeout is returned when the Tor startup timeout is not positive.
	ErrInvalidStartupTimeout = errors.New("invalid tor startup timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
