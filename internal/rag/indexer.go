package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prcontext/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Payload keys stored with every point
const (
	PayloadRepoID         = "repoId"
	PayloadInstallationID = "installationId"
	PayloadBatchID        = "batchId"
	PayloadFile           = "file"
	PayloadChunkID        = "chunkId"
	PayloadContent        = "content"
	PayloadStartLine      = "startLine"
	PayloadEndLine        = "endLine"
)

const (
	DefaultCollection  = "code_chunks"
	DefaultBatchSize   = 50
	DefaultConcurrency = 5
	DefaultPacing      = time.Second
)

// IndexerConfig controls collection shape and embedding throughput
type IndexerConfig struct {
	Collection  string
	Dimension   int           // 0 uses the embedder's default size
	BatchSize   int           // chunks per sub-batch
	Concurrency int           // in-flight embeds per sub-batch
	Pacing      time.Duration // minimum delay between sub-batches
	Retry       retry.Policy  // per-chunk embed retry
	Chunker     *Chunker
	Redactor    *Redactor // optional
}

// DefaultIndexerConfig returns the standard indexing configuration
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{
		Collection:  DefaultCollection,
		BatchSize:   DefaultBatchSize,
		Concurrency: DefaultConcurrency,
		Pacing:      DefaultPacing,
		Retry:       retry.EmbeddingPolicy(),
		Chunker:     NewChunker(),
	}
}

// SourceFile is one repository file to index
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// IndexRequest identifies the repository whose files replace its indexed points
type IndexRequest struct {
	RepoID         int64
	InstallationID int64
	Files          []SourceFile
}

// Indexer writes repository chunks into a VectorIndex using replace-on-reindex:
// the new batch is written in full before older batches are purged.
type Indexer struct {
	index      VectorIndex
	embedder   EmbeddingProvider
	cfg        IndexerConfig
	limiter    *rate.Limiter
	newBatchID func() string
}

// NewIndexer creates an indexer; zero config fields take their defaults
func NewIndexer(index VectorIndex, embedder EmbeddingProvider, cfg IndexerConfig) *Indexer {
	def := DefaultIndexerConfig()
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = embedder.DefaultSize()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Chunker == nil {
		cfg.Chunker = def.Chunker
	}

	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}

	return &Indexer{
		index:      index,
		embedder:   embedder,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		newBatchID: uuid.NewString,
	}
}

// Collection returns the target collection name
func (ix *Indexer) Collection() string { return ix.cfg.Collection }

// EnsureCollection creates the collection and its repository/installation
// payload indexes if absent. Safe to call repeatedly.
func (ix *Indexer) EnsureCollection(ctx context.Context) error {
	exists, err := ix.index.CollectionExists(ctx, ix.cfg.Collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", ix.cfg.Collection, err)
	}
	if !exists {
		log.Info().
			Str("collection", ix.cfg.Collection).
			Int("dimension", ix.cfg.Dimension).
			Msg("Creating vector collection")
		if err := ix.index.CreateCollection(ctx, ix.cfg.Collection, ix.cfg.Dimension, DistanceCosine); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create collection %s: %w", ix.cfg.Collection, err)
		}
	}

	for _, field := range []string{PayloadRepoID, PayloadInstallationID} {
		if err := ix.index.CreatePayloadIndex(ctx, ix.cfg.Collection, field, PayloadInteger); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	return nil
}

// IndexRepository chunks, embeds and upserts every file of req, then removes
// the repository's points from earlier batches. It returns the number of
// points written. Chunks whose embedding keeps failing are skipped; an
// upsert failure aborts without purging so the previous batch stays intact.
func (ix *Indexer) IndexRepository(ctx context.Context, req IndexRequest) (int, error) {
	if err := ix.EnsureCollection(ctx); err != nil {
		return 0, err
	}

	var chunks []DiffChunk
	for _, f := range req.Files {
		chunks = append(chunks, ix.cfg.Chunker.Chunk(f.Path, f.Content)...)
	}
	if len(chunks) == 0 {
		log.Info().Int64("repo_id", req.RepoID).Msg("No content to index")
		return 0, nil
	}
	if masked := ix.cfg.Redactor.RedactChunks(chunks); masked > 0 {
		log.Info().Int64("repo_id", req.RepoID).Int("secrets", masked).Msg("Masked secrets before embedding")
	}

	batchID := ix.newBatchID()
	logger := log.With().
		Int64("repo_id", req.RepoID).
		Str("batch_id", batchID).
		Int("chunks", len(chunks)).
		Logger()
	logger.Info().Msg("Indexing repository")

	written := 0
	for start := 0; start < len(chunks); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(chunks))

		if err := ix.limiter.Wait(ctx); err != nil {
			return written, fmt.Errorf("pacing wait: %w", err)
		}

		points := ix.embedBatch(ctx, req, batchID, chunks[start:end])
		if len(points) == 0 {
			continue
		}
		if err := ix.index.Upsert(ctx, ix.cfg.Collection, points); err != nil {
			return written, fmt.Errorf("upsert points: %w", err)
		}
		written += len(points)
	}

	if written == 0 {
		logger.Warn().Msg("No points written, keeping previous batch")
		return 0, nil
	}

	purge := Filter{
		Must:    []Condition{{Key: PayloadRepoID, Value: req.RepoID}},
		MustNot: []Condition{{Key: PayloadBatchID, Value: batchID}},
	}
	if err := ix.index.Delete(ctx, ix.cfg.Collection, purge); err != nil {
		return written, fmt.Errorf("purge stale points: %w", err)
	}

	logger.Info().Int("points", written).Msg("Repository indexed")
	return written, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, req IndexRequest, batchID string, chunks []DiffChunk) []Point {
	opts := EmbedOptions{Model: ix.embedder.DefaultModel(), Dimensions: ix.cfg.Dimension}
	vectors := make([][]float32, len(chunks))

	var g errgroup.Group
	g.SetLimit(ix.cfg.Concurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, res := retry.Do(ctx, ix.cfg.Retry, func(ctx context.Context) ([]float32, error) {
				return ix.embedder.Embed(ctx, chunks[i].Content, opts)
			})
			if !res.Success {
				log.Warn().
					Err(res.LastError).
					Str("file", chunks[i].File).
					Int("chunk_id", chunks[i].ChunkID).
					Int("attempts", res.Attempts).
					Msg("Skipping chunk after embedding failures")
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()

	points := make([]Point, 0, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		points = append(points, Point{
			ID:     pointID(req.RepoID, batchID, c),
			Vector: vectors[i],
			Payload: map[string]any{
				PayloadRepoID:         req.RepoID,
				PayloadInstallationID: req.InstallationID,
				PayloadBatchID:        batchID,
				PayloadFile:           c.File,
				PayloadChunkID:        int64(c.ChunkID),
				PayloadContent:        c.Content,
				PayloadStartLine:      int64(c.StartLine),
				PayloadEndLine:        int64(c.EndLine),
			},
		})
	}
	return points
}

func pointID(repoID int64, batchID string, c DiffChunk) string {
	name := fmt.Sprintf("%d/%s/%s/%d", repoID, batchID, c.File, c.ChunkID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || strings.Contains(strings.ToLower(err.Error()), "already exists")
}
