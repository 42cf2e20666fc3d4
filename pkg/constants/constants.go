// Package constants provides shared constants used throughout the policysync codebase.
// This includes timeouts, batch sizes, file permissions, and other configuration
// values that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to the source repository
	DefaultHTTPTimeout = 30 * time.Second

	// SyncContextTimeout is the timeout for each full synchronization run
	SyncContextTimeout = 5 * time.Minute

	// DefaultSyncInterval is the default interval between automatic sync runs
	DefaultSyncInterval = 1 * time.Hour

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute
)

// Batch constants bound the fan-out concurrency of batched operations
const (
	// DefaultFetchBatchSize is the number of document bodies fetched concurrently
	// per batch, chosen to stay under the execution environment's concurrent
	// request ceiling.
	DefaultFetchBatchSize = 40

	// DefaultPersistBatchSize is the number of registry writes or deletes
	// issued concurrently per batch.
	DefaultPersistBatchSize = 100
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)
