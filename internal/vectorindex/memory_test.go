package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchOrdersByDescendingScoreThenChunkID(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		{ChunkID: "b", TenantID: "t1", Vector: []float32{1, 0}},
		{ChunkID: "a", TenantID: "t1", Vector: []float32{1, 0}}, // identical vector, tie on score
		{ChunkID: "c", TenantID: "t1", Vector: []float32{0, 1}}, // orthogonal, lower score
	}))

	results, err := idx.Search(ctx, "t1", []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, "a", results[0].ChunkID) // tie broken by lower chunk_id
	require.Equal(t, "b", results[1].ChunkID)
	require.Equal(t, "c", results[2].ChunkID)
	require.Greater(t, results[0].Score, results[2].Score)
}

func TestSearchIsTenantScoped(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		{ChunkID: "x", TenantID: "tenant-a", Vector: []float32{1, 0}},
		{ChunkID: "y", TenantID: "tenant-b", Vector: []float32{1, 0}},
	}))

	results, err := idx.Search(ctx, "tenant-a", []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "x", results[0].ChunkID)
}

func TestSearchRespectsK(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Entry{
		{ChunkID: "1", TenantID: "t1", Vector: []float32{1, 0}},
		{ChunkID: "2", TenantID: "t1", Vector: []float32{0.9, 0.1}},
		{ChunkID: "3", TenantID: "t1", Vector: []float32{0.1, 0.9}},
	}))

	results, err := idx.Search(ctx, "t1", []float32{1, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestDeleteRemovesVector(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Entry{{ChunkID: "a", TenantID: "t1", Vector: []float32{1, 0}}}))
	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	results, err := idx.Search(ctx, "t1", []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}
