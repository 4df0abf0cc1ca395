/*
Package jobqueue configuration - tunable parameters for the River job queue.

Indexing a repository is a write-then-purge sequence. Two jobs for the same
repository must never interleave. Jobs are unique by repo_id while unfinished,
so at most one job per repository exists across all worker processes. The
indexing queue also runs a single worker per process by default.

Retries of failed jobs follow River's defaults; MaxAttempts caps them.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueIndexing is the queue that indexing jobs are inserted into
const QueueIndexing = "rag_index"

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Concurrent indexing jobs (default: 1)

	// Retry Configuration
	MaxAttempts int           // Attempts per job before it is discarded (default: 5)
	JobTimeout  time.Duration // Maximum time a single job can run (default: 30 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  1,
		MaxAttempts: 5,
		JobTimeout:  30 * time.Minute,
	}
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	workers := c.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return map[string]river.QueueConfig{
		QueueIndexing: {
			MaxWorkers: workers,
		},
	}
}
