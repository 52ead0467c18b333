package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/graph/graphtest"
	"github.com/surrealdb/ganttsync/pkg/graph/memory"
)

func TestStoreConformance(t *testing.T) {
	suite.Run(t, &graphtest.Suite{
		NewStore: func(*testing.T) graph.Store { return memory.New() },
	})
}

func TestTxIsConcurrent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	err := store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		require.True(t, graph.IsConcurrent(tx))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = tx.MergeNode(ctx, graph.Ref(graph.NodeTask, string(rune('a'+i%26))), graph.Props{"n": i})
			}(i)
		}
		wg.Wait()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(ctx context.Context, r graph.Reader) error {
		nodes, err := r.Nodes(ctx, graph.NodeTask)
		require.NoError(t, err)
		assert.Len(t, nodes, 26)
		return nil
	}))
}

func TestReadsInsideUpdateSeeOwnWrites(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		require.NoError(t, tx.MergeNode(ctx, graph.Ref(graph.NodeTask, "t1"), graph.Props{"name": "A"}))
		n, err := tx.Node(ctx, graph.Ref(graph.NodeTask, "t1"))
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, "A", n.Props["name"])
		return nil
	}))
}

func TestReturnedPropsAreCopies(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ref := graph.Ref(graph.NodeResource, "r1")

	require.NoError(t, store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		return tx.MergeNode(ctx, ref, graph.Props{"name": "Ann"})
	}))

	require.NoError(t, store.View(ctx, func(ctx context.Context, r graph.Reader) error {
		n, err := r.Node(ctx, ref)
		require.NoError(t, err)
		n.Props["name"] = "changed"
		return nil
	}))

	require.NoError(t, store.View(ctx, func(ctx context.Context, r graph.Reader) error {
		n, err := r.Node(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "Ann", n.Props["name"])
		return nil
	}))
}

func TestCanceledContextAborts(t *testing.T) {
	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		require.NoError(t, tx.MergeNode(ctx, graph.Ref(graph.NodeTask, "t1"), nil))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, store.View(context.Background(), func(ctx context.Context, r graph.Reader) error {
		n, err := r.Node(ctx, graph.Ref(graph.NodeTask, "t1"))
		require.NoError(t, err)
		assert.Nil(t, n)
		return nil
	}))
}

func TestReadOnlyStore(t *testing.T) {
	readOnly := true
	store := graph.NewReadOnlyStore(memory.New(), func() bool { return readOnly })
	ctx := context.Background()

	err := store.Update(ctx, func(ctx context.Context, tx graph.Tx) error { return nil })
	require.ErrorIs(t, err, graph.ErrReadOnly)
	require.NoError(t, store.View(ctx, func(ctx context.Context, r graph.Reader) error { return nil }))

	readOnly = false
	require.NoError(t, store.Update(ctx, func(ctx context.Context, tx graph.Tx) error { return nil }))
	assert.IsType(t, &memory.Store{}, store.Unwrap())
}
