package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/prcontext/internal/config"
	"github.com/prcontext/internal/contextbuilder"
	"github.com/prcontext/internal/pipeline"
	"github.com/prcontext/internal/rag"
)

// ContextCommand returns the context command
func ContextCommand() *cli.Command {
	return &cli.Command{
		Name:  "context",
		Usage: "Assemble a token-budgeted review context from a diff",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "diff",
				Aliases: []string{"d"},
				Usage:   "Unified diff `FILE` (- for stdin)",
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "JSON `FILE` with pull request metadata and supplied context",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Target model for the token budget",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Pull request title",
			},
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "Reviewer instructions appended last",
			},
			&cli.Int64Flag{
				Name:  "repo-id",
				Usage: "Repository id used to scope code retrieval",
			},
			&cli.StringFlag{
				Name:  "index-dir",
				Usage: "Index `DIR` before assembling so related code can be retrieved",
			},
		},
		Action: runContext,
	}
}

func runContext(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var in contextbuilder.Input
	if path := c.String("input"); path != "" {
		raw, err := readSource(path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			return fmt.Errorf("invalid input file: %w", err)
		}
	}
	if path := c.String("diff"); path != "" {
		if in.Diff, err = readSource(path); err != nil {
			return err
		}
	}
	if in.Diff == "" {
		return fmt.Errorf("missing diff: pass --diff or set \"diff\" in --input")
	}
	if v := c.String("title"); v != "" {
		in.PRTitle = v
	}
	if v := c.String("prompt"); v != "" {
		in.UserPrompt = v
	}
	if v := c.Int64("repo-id"); v != 0 {
		in.RepoID = v
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Minute)
	defer cancel()

	var retriever contextbuilder.Retriever
	switch chooseRetrieval(cfg, c.String("index-dir"), in.RepoID) {
	case retrieveIndexDir:
		r, release, err := indexForRetrieval(ctx, cfg, c.String("index-dir"), &in)
		if err != nil {
			return err
		}
		defer release()
		retriever = r
	case retrievePersistent:
		r, release, err := newRetriever(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()
		retriever = r
	}

	prepared, err := newPipeline(cfg, retriever).Prepare(ctx, pipeline.Request{Input: in, Model: c.String("model")})
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, prepared)
}

// retrievalSource is where the rag-context layer reads related code from
type retrievalSource int

const (
	retrieveNone retrievalSource = iota
	retrieveIndexDir
	retrievePersistent
)

// chooseRetrieval prefers a fresh index of indexDir. Without one, a
// persistent backend is searched for repoID's previously indexed chunks.
func chooseRetrieval(cfg *config.Config, indexDir string, repoID int64) retrievalSource {
	switch {
	case indexDir != "":
		return retrieveIndexDir
	case repoID != 0 && persistentBackend(cfg):
		return retrievePersistent
	default:
		return retrieveNone
	}
}

// newRetriever searches the configured persistent index
func newRetriever(ctx context.Context, cfg *config.Config) (contextbuilder.Retriever, closer, error) {
	if err := requirePersistentIndex(cfg); err != nil {
		return nil, noop, err
	}
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
	return rag.NewRetriever(index, embedder, cfg.RAG.Collection, cfg.RAG.Dimension), release, nil
}

// indexForRetrieval indexes dir so the rag-context layer can search it
func indexForRetrieval(ctx context.Context, cfg *config.Config, dir string, in *contextbuilder.Input) (contextbuilder.Retriever, closer, error) {
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
	files, err := rag.LoadDirectory(dir)
	if err != nil {
		release()
		return nil, noop, err
	}
	if in.RepoID == 0 {
		in.RepoID = 1
	}
	if _, err := indexer.IndexRepository(ctx, rag.IndexRequest{RepoID: in.RepoID, Files: files}); err != nil {
		release()
		return nil, noop, err
	}
	in.IndexedAt = time.Now().UTC()

	return rag.NewRetriever(index, embedder, indexer.Collection(), cfg.RAG.Dimension), release, nil
}
