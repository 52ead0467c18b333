package surrealdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/surrealdb/ganttsync/internal/testenv"
	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/graph/graphtest"
	"github.com/surrealdb/ganttsync/pkg/graph/surrealdb"
)

func newStore(t *testing.T) *surrealdb.Store {
	env := testenv.RequireSurrealDB(t)
	ctx := context.Background()

	store, err := surrealdb.New(ctx, surrealdb.Config{
		URL:       env.URL,
		Namespace: env.Namespace,
		Database:  env.Database,
		Username:  env.Username,
		Password:  env.Password,
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Truncate(ctx))
	return store
}

func TestStoreConformance(t *testing.T) {
	testenv.RequireSurrealDB(t)
	suite.Run(t, &graphtest.Suite{
		NewStore: func(t *testing.T) graph.Store { return newStore(t) },
	})
}

func TestWritesAreBufferedUntilCommit(t *testing.T) {
	store := newStore(t)
	defer store.Close()
	ctx := context.Background()
	ref := graph.Ref(graph.NodeTask, "t1")

	require.NoError(t, store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		require.NoError(t, tx.MergeNode(ctx, ref, graph.Props{"name": "A"}))
		n, err := tx.Node(ctx, ref)
		require.NoError(t, err)
		require.Nil(t, n, "reads observe the state before the transaction")
		return nil
	}))

	require.NoError(t, store.View(ctx, func(ctx context.Context, r graph.Reader) error {
		n, err := r.Node(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, n)
		require.Equal(t, "A", n.Props["name"])
		return nil
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newStore(t)
	defer store.Close()
	require.NoError(t, store.Migrate(context.Background()))
}
