/*
Package jobqueue provides a River-based job queue that indexes repositories
into the vector index in the background.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog/log"

	"github.com/prcontext/internal/rag"
)

// ErrNoSource is returned when a job names no repository path
var ErrNoSource = errors.New("index job has no source path")

// IndexRepositoryArgs represents the arguments for a repository indexing job.
// Only RepoID takes part in job uniqueness.
type IndexRepositoryArgs struct {
	RepoID         int64  `json:"repo_id" river:"unique"`
	InstallationID int64  `json:"installation_id"`
	Path           string `json:"path"`
}

// Kind returns the job kind for River
func (IndexRepositoryArgs) Kind() string {
	return "rag_index_repository"
}

// uniqueStates are the states in which a second job for the same repository
// is refused. Finished jobs are left out so a repository can be indexed again.
var uniqueStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRetryable,
	rivertype.JobStateRunning,
	rivertype.JobStateScheduled,
}

// InsertOpts routes indexing jobs to their own queue and allows at most one
// unfinished job per repository across every worker process.
func (IndexRepositoryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: QueueIndexing,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: uniqueStates,
		},
	}
}

// RepositoryIndexer is the part of rag.Indexer the worker needs
type RepositoryIndexer interface {
	IndexRepository(ctx context.Context, req rag.IndexRequest) (int, error)
}

// SourceLoader reads the files of a repository checkout
type SourceLoader func(root string) ([]rag.SourceFile, error)

// IndexRepositoryWorker handles repository indexing jobs
type IndexRepositoryWorker struct {
	river.WorkerDefaults[IndexRepositoryArgs]
	indexer RepositoryIndexer
	load    SourceLoader
	config  *QueueConfig
}

// NewIndexRepositoryWorker creates a worker. A nil loader reads from disk.
func NewIndexRepositoryWorker(indexer RepositoryIndexer, load SourceLoader, config *QueueConfig) *IndexRepositoryWorker {
	if load == nil {
		load = rag.LoadDirectory
	}
	if config == nil {
		config = DefaultQueueConfig()
	}
	return &IndexRepositoryWorker{indexer: indexer, load: load, config: config}
}

// Timeout bounds a single indexing run
func (w *IndexRepositoryWorker) Timeout(*river.Job[IndexRepositoryArgs]) time.Duration {
	return w.config.JobTimeout
}

// Work loads the repository and indexes it. A missing source cancels the job
// since retrying cannot help.
func (w *IndexRepositoryWorker) Work(ctx context.Context, job *river.Job[IndexRepositoryArgs]) error {
	args := job.Args
	if args.Path == "" {
		return river.JobCancel(ErrNoSource)
	}

	files, err := w.load(args.Path)
	if err != nil {
		return river.JobCancel(fmt.Errorf("failed to load repository %d: %w", args.RepoID, err))
	}

	start := time.Now()
	n, err := w.indexer.IndexRepository(ctx, rag.IndexRequest{
		RepoID:         args.RepoID,
		InstallationID: args.InstallationID,
		Files:          files,
	})
	if err != nil {
		log.Error().
			Err(err).
			Int64("job_id", job.ID).
			Int64("repo_id", args.RepoID).
			Int("attempt", job.Attempt).
			Msg("Repository indexing failed")
		return fmt.Errorf("failed to index repository %d: %w", args.RepoID, err)
	}

	log.Info().
		Int64("job_id", job.ID).
		Int64("repo_id", args.RepoID).
		Int("files", len(files)).
		Int("points", n).
		Dur("duration", time.Since(start)).
		Msg("Repository indexed")
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance backed by databaseURL
func NewJobQueue(ctx context.Context, databaseURL string, worker *IndexRepositoryWorker) (*JobQueue, error) {
	config := worker.config

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, worker)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:      config.RiverQueueConfig(),
		Workers:     workers,
		MaxAttempts: config.MaxAttempts,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Migrate applies River's schema migrations
func (jq *JobQueue) Migrate(ctx context.Context) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(jq.pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	log.Info().Int("applied", len(res.Versions)).Msg("River migrations applied")
	return nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and closes the pool
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// QueueIndexRepository queues an indexing job and returns its id
func (jq *JobQueue) QueueIndexRepository(ctx context.Context, args IndexRepositoryArgs) (int64, error) {
	res, err := jq.client.Insert(ctx, args, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to queue index job: %w", err)
	}
	if res.UniqueSkippedAsDuplicate {
		log.Info().Int64("job_id", res.Job.ID).Int64("repo_id", args.RepoID).Msg("Repository index job already pending")
		return res.Job.ID, nil
	}
	log.Info().Int64("job_id", res.Job.ID).Int64("repo_id", args.RepoID).Msg("Queued repository index job")
	return res.Job.ID, nil
}
