package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/prcontext/internal/config"
	"github.com/prcontext/internal/jobqueue"
	"github.com/prcontext/internal/logging"
	"github.com/prcontext/internal/rag"
)

// IndexCommand returns the index command
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Chunk, embed and store a repository checkout in the vector index",
		ArgsUsage: "DIR",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "repo-id",
				Usage:    "Repository id stored with every chunk",
				Required: true,
			},
			&cli.Int64Flag{
				Name:  "installation-id",
				Usage: "Installation id stored with every chunk",
			},
			&cli.BoolFlag{
				Name:  "queue",
				Usage: "Queue a background job instead of indexing now",
			},
		},
		Action: runIndex,
	}
}

// WorkerCommand returns the worker command that runs queued index jobs
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the background indexing worker",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Apply job queue schema migrations before starting",
			},
		},
		Action: runWorker,
	}
}

func runIndex(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: DIR")
	}
	dir, err := filepath.Abs(c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("invalid directory: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := requirePersistentIndex(cfg); err != nil {
		return err
	}

	args := jobqueue.IndexRepositoryArgs{
		RepoID:         c.Int64("repo-id"),
		InstallationID: c.Int64("installation-id"),
		Path:           dir,
	}

	if c.Bool("queue") {
		jq, err := openQueue(c.Context, cfg, nil)
		if err != nil {
			return err
		}
		defer jq.Stop(context.Background())
		id, err := jq.QueueIndexRepository(c.Context, args)
		if err != nil {
			return err
		}
		fmt.Printf("Queued index job %d for repository %d\n", id, args.RepoID)
		return nil
	}

	if cfg.Log.Dir != "" {
		rl, err := logging.StartRunLog(cfg.Log.Dir, fmt.Sprintf("index_%d", args.RepoID))
		if err != nil {
			return err
		}
		defer rl.Close()
	}

	indexer, release, err := buildIndexer(c.Context, cfg)
	if err != nil {
		return err
	}
	defer release()

	files, err := rag.LoadDirectory(dir)
	if err != nil {
		return err
	}
	n, err := indexer.IndexRepository(c.Context, rag.IndexRequest{
		RepoID:         args.RepoID,
		InstallationID: args.InstallationID,
		Files:          files,
	})
	if err != nil {
		return fmt.Errorf("indexing failed after %d points: %w", n, err)
	}

	fmt.Printf("Indexed %d chunks from %d files into %s\n", n, len(files), indexer.Collection())
	return nil
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := requirePersistentIndex(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	indexer, release, err := buildIndexer(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	jq, err := openQueue(ctx, cfg, indexer)
	if err != nil {
		return err
	}
	if c.Bool("migrate") {
		if err := jq.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := jq.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	log.Info().Str("queue", jobqueue.QueueIndexing).Msg("Indexing worker started")

	<-ctx.Done()
	log.Info().Msg("Shutting down indexing worker")
	return jq.Stop(context.Background())
}

func buildIndexer(ctx context.Context, cfg *config.Config) (*rag.Indexer, closer, error) {
	embedder, releaseEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, noop, err
	}
	index, releaseIndex, err := newVectorIndex(cfg)
	if err != nil {
		releaseEmbedder()
		return nil, noop, err
	}
	release := func() {
		releaseIndex()
		releaseEmbedder()
	}
	indexer, err := newIndexer(cfg, index, embedder)
	if err != nil {
		release()
		return nil, noop, err
	}
	return indexer, release, nil
}

// openQueue connects the job queue. indexer may be nil for insert-only use.
func openQueue(ctx context.Context, cfg *config.Config, indexer jobqueue.RepositoryIndexer) (*jobqueue.JobQueue, error) {
	if cfg.Queue.DatabaseURL == "" {
		return nil, fmt.Errorf("queue.database_url is required for background indexing")
	}
	qc := jobqueue.DefaultQueueConfig()
	qc.MaxWorkers = cfg.Queue.MaxWorkers
	if cfg.Queue.MaxAttempts > 0 {
		qc.MaxAttempts = cfg.Queue.MaxAttempts
	}
	if cfg.Queue.JobTimeout > 0 {
		qc.JobTimeout = cfg.Queue.JobTimeout
	}
	return jobqueue.NewJobQueue(ctx, cfg.Queue.DatabaseURL, jobqueue.NewIndexRepositoryWorker(indexer, nil, qc))
}
