package qdrantstore

import (
	"testing"

	"github.com/prcontext/internal/rag"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFilter(t *testing.T) {
	f, err := toFilter(rag.Filter{
		Must:    []rag.Condition{{Key: rag.PayloadRepoID, Value: int64(42)}},
		MustNot: []rag.Condition{{Key: rag.PayloadBatchID, Value: "b-1"}},
	})
	require.NoError(t, err)
	require.Len(t, f.Must, 1)
	require.Len(t, f.MustNot, 1)

	must := f.Must[0].GetField()
	assert.Equal(t, rag.PayloadRepoID, must.GetKey())
	assert.Equal(t, int64(42), must.GetMatch().GetInteger())

	mustNot := f.MustNot[0].GetField()
	assert.Equal(t, rag.PayloadBatchID, mustNot.GetKey())
	assert.Equal(t, "b-1", mustNot.GetMatch().GetKeyword())
}

func TestToFilter_RejectsUnsupportedValues(t *testing.T) {
	_, err := toFilter(rag.Filter{Must: []rag.Condition{{Key: "score", Value: 1.5}}})
	assert.Error(t, err)
}

func TestFromPayload(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		rag.PayloadFile:      "src/a.ts",
		rag.PayloadStartLine: int64(8),
		"ratio":              0.5,
		"flag":               true,
	})

	got := fromPayload(payload)
	assert.Equal(t, "src/a.ts", got[rag.PayloadFile])
	assert.Equal(t, int64(8), got[rag.PayloadStartLine])
	assert.Equal(t, 0.5, got["ratio"])
	assert.Equal(t, true, got["flag"])
}
