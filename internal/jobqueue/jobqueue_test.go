package jobqueue

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcontext/internal/rag"
)

type fakeIndexer struct {
	got rag.IndexRequest
	n   int
	err error
}

func (f *fakeIndexer) IndexRepository(_ context.Context, req rag.IndexRequest) (int, error) {
	f.got = req
	return f.n, f.err
}

func job(args IndexRepositoryArgs) *river.Job[IndexRepositoryArgs] {
	return &river.Job[IndexRepositoryArgs]{JobRow: &rivertype.JobRow{ID: 1, Attempt: 1}, Args: args}
}

func TestIndexRepositoryArgs(t *testing.T) {
	args := IndexRepositoryArgs{}
	assert.Equal(t, "rag_index_repository", args.Kind())
	assert.Equal(t, QueueIndexing, args.InsertOpts().Queue)
}

func TestIndexRepositoryArgs_UniquePerRepository(t *testing.T) {
	opts := IndexRepositoryArgs{}.InsertOpts()
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Zero(t, opts.UniqueOpts.ByPeriod)

	tests := []struct {
		state  rivertype.JobState
		unique bool
	}{
		{rivertype.JobStateAvailable, true},
		{rivertype.JobStatePending, true},
		{rivertype.JobStateRetryable, true},
		{rivertype.JobStateRunning, true},
		{rivertype.JobStateScheduled, true},
		{rivertype.JobStateCompleted, false},
		{rivertype.JobStateCancelled, false},
		{rivertype.JobStateDiscarded, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.unique, slices.Contains(opts.UniqueOpts.ByState, tt.state))
		})
	}

	field, ok := reflect.TypeOf(IndexRepositoryArgs{}).FieldByName("RepoID")
	require.True(t, ok)
	assert.Equal(t, "unique", field.Tag.Get("river"))
	for _, name := range []string{"InstallationID", "Path"} {
		f, _ := reflect.TypeOf(IndexRepositoryArgs{}).FieldByName(name)
		assert.Empty(t, f.Tag.Get("river"), name)
	}
}

func TestWorker_IndexesLoadedFiles(t *testing.T) {
	idx := &fakeIndexer{n: 3}
	load := func(root string) ([]rag.SourceFile, error) {
		assert.Equal(t, "/src/acme", root)
		return []rag.SourceFile{{Path: "main.go", Content: "package main"}}, nil
	}
	w := NewIndexRepositoryWorker(idx, load, nil)

	err := w.Work(context.Background(), job(IndexRepositoryArgs{RepoID: 7, InstallationID: 9, Path: "/src/acme"}))
	require.NoError(t, err)
	assert.Equal(t, int64(7), idx.got.RepoID)
	assert.Equal(t, int64(9), idx.got.InstallationID)
	assert.Len(t, idx.got.Files, 1)
}

func TestWorker_IndexFailureIsRetried(t *testing.T) {
	idx := &fakeIndexer{err: errors.New("qdrant unavailable")}
	w := NewIndexRepositoryWorker(idx, func(string) ([]rag.SourceFile, error) { return nil, nil }, nil)

	err := w.Work(context.Background(), job(IndexRepositoryArgs{RepoID: 7, Path: "/src"}))
	require.Error(t, err)

	var cancel *rivertype.JobCancelError
	assert.False(t, errors.As(err, &cancel))
	assert.ErrorContains(t, err, "qdrant unavailable")
}

func TestWorker_MissingSourceCancels(t *testing.T) {
	w := NewIndexRepositoryWorker(&fakeIndexer{}, func(string) ([]rag.SourceFile, error) {
		return nil, errors.New("no such directory")
	}, nil)

	var cancel *rivertype.JobCancelError
	err := w.Work(context.Background(), job(IndexRepositoryArgs{RepoID: 7, Path: "/gone"}))
	assert.True(t, errors.As(err, &cancel))

	err = w.Work(context.Background(), job(IndexRepositoryArgs{RepoID: 7}))
	assert.True(t, errors.As(err, &cancel))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.Equal(t, 1, cfg.MaxWorkers)
	assert.Equal(t, cfg.JobTimeout, NewIndexRepositoryWorker(&fakeIndexer{}, nil, cfg).Timeout(nil))

	queues := (&QueueConfig{}).RiverQueueConfig()
	require.Contains(t, queues, QueueIndexing)
	assert.Equal(t, 1, queues[QueueIndexing].MaxWorkers)
}
