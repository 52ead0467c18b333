// Package graphtest provides a conformance suite that every graph.Store
// implementation must pass.
//
// Backend packages run it from their own tests:
//
//	func TestStore(t *testing.T) {
//		suite.Run(t, &graphtest.Suite{NewStore: func(t *testing.T) graph.Store { return memory.New() }})
//	}
//
// Assertions only read through Store.View, so the suite holds for backends
// whose write transactions do not observe their own writes.
package graphtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/surrealdb/ganttsync/pkg/graph"
)

// Suite exercises the graph.Store contract.
type Suite struct {
	suite.Suite

	// NewStore returns an empty, migrated store. It is called before each test.
	NewStore func(t *testing.T) graph.Store

	store graph.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore(s.T())
	s.Require().NoError(s.store.Migrate(s.ctx))
}

func (s *Suite) TearDownTest() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

// Store returns the store under test.
func (s *Suite) Store() graph.Store {
	return s.store
}

func (s *Suite) update(fn func(tx graph.Tx) error) error {
	return s.store.Update(s.ctx, func(ctx context.Context, tx graph.Tx) error {
		return fn(tx)
	})
}

func (s *Suite) node(ref graph.NodeRef) *graph.Node {
	var out *graph.Node
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, r graph.Reader) error {
		var err error
		out, err = r.Node(ctx, ref)
		return err
	}))
	return out
}

func (s *Suite) nodes(kind graph.NodeKind) []graph.Node {
	var out []graph.Node
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, r graph.Reader) error {
		var err error
		out, err = r.Nodes(ctx, kind)
		return err
	}))
	return out
}

func (s *Suite) edges(kind graph.EdgeKind) []graph.Edge {
	var out []graph.Edge
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, r graph.Reader) error {
		var err error
		out, err = r.Edges(ctx, kind)
		return err
	}))
	return out
}

func (s *Suite) jsonEq(expected string, actual any) {
	data, err := json.Marshal(actual)
	s.Require().NoError(err)
	s.JSONEq(expected, string(data))
}

func (s *Suite) TestMergeNodeCreatesAndOverlays() {
	ref := graph.Ref(graph.NodeTask, "t1")

	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.MergeNode(s.ctx, ref, graph.Props{"name": "A", "duration": 2})
	}))
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.MergeNode(s.ctx, ref, graph.Props{"name": "B", "percentDone": 50})
	}))

	got := s.node(ref)
	s.Require().NotNil(got)
	s.Equal(ref, got.NodeRef)
	s.jsonEq(`{"name":"B","duration":2,"percentDone":50}`, got.Props)
}

func (s *Suite) TestNodeMissing() {
	s.Nil(s.node(graph.Ref(graph.NodeTask, "missing")))
}

func (s *Suite) TestCreateNodeRejectsExisting() {
	ref := graph.Ref(graph.NodeResource, "r1")
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.CreateNode(s.ctx, ref, graph.Props{"name": "Ann"})
	}))

	err := s.update(func(tx graph.Tx) error {
		return tx.CreateNode(s.ctx, ref, graph.Props{"name": "Bob"})
	})
	s.Require().Error(err)

	got := s.node(ref)
	s.Require().NotNil(got)
	s.jsonEq(`{"name":"Ann"}`, got.Props)
}

func (s *Suite) TestNodesOrderedByID() {
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		for _, id := range []string{"c", "a", "b"} {
			if err := tx.MergeNode(s.ctx, graph.Ref(graph.NodeResource, id), graph.Props{"name": id}); err != nil {
				return err
			}
		}
		return tx.MergeNode(s.ctx, graph.Ref(graph.NodeTask, "other"), nil)
	}))

	got := s.nodes(graph.NodeResource)
	ids := make([]string, 0, len(got))
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	s.Equal([]string{"a", "b", "c"}, ids)
	s.Empty(s.nodes(graph.NodeBaseline))
}

func (s *Suite) TestMergeEdgeReplacesEndpoints() {
	a, b, c := graph.Ref(graph.NodeTask, "a"), graph.Ref(graph.NodeTask, "b"), graph.Ref(graph.NodeTask, "c")

	s.Require().NoError(s.update(func(tx graph.Tx) error {
		for _, ref := range []graph.NodeRef{a, b, c} {
			if err := tx.MergeNode(s.ctx, ref, nil); err != nil {
				return err
			}
		}
		return tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeDependsOn, ID: "d1", From: a, To: b, Props: graph.Props{"type": 2, "lag": 0}})
	}))
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeDependsOn, ID: "d1", From: a, To: c, Props: graph.Props{"type": 1}})
	}))

	edges := s.edges(graph.EdgeDependsOn)
	s.Require().Len(edges, 1)
	s.Equal("d1", edges[0].ID)
	s.Equal(a, edges[0].From)
	s.Equal(c, edges[0].To)
	s.jsonEq(`{"type":1}`, edges[0].Props)

	var single *graph.Edge
	var out []graph.Edge
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, r graph.Reader) error {
		var err error
		if single, err = r.Edge(ctx, graph.EdgeDependsOn, "d1"); err != nil {
			return err
		}
		out, err = r.OutEdges(ctx, graph.EdgeDependsOn, b)
		return err
	}))
	s.Require().NotNil(single)
	s.Equal(c, single.To)
	s.Empty(out)
}

func (s *Suite) TestDeleteNodeCascadesOwned() {
	task := graph.Ref(graph.NodeTask, "t1")
	parent := graph.Ref(graph.NodeTask, "p")
	res := graph.Ref(graph.NodeResource, "r1")

	s.Require().NoError(s.update(func(tx graph.Tx) error {
		for _, ref := range []graph.NodeRef{task, parent, res} {
			if err := tx.MergeNode(s.ctx, ref, graph.Props{"name": ref.ID}); err != nil {
				return err
			}
		}
		for _, id := range []string{"b1", "b2"} {
			bl := graph.Ref(graph.NodeBaseline, id)
			if err := tx.MergeNode(s.ctx, bl, graph.Props{"startDate": "2024-01-01"}); err != nil {
				return err
			}
			if err := tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeHasBaseline, ID: id, From: task, To: bl}); err != nil {
				return err
			}
		}
		if err := tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeParentTask, ID: "t1", From: task, To: parent}); err != nil {
			return err
		}
		return tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeAssignedTo, ID: "as1", From: task, To: res, Props: graph.Props{"units": 100}})
	}))

	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.DeleteNode(s.ctx, task, graph.EdgeHasBaseline)
	}))

	s.Nil(s.node(task))
	s.Empty(s.nodes(graph.NodeBaseline))
	s.Empty(s.edges(graph.EdgeHasBaseline))
	s.Empty(s.edges(graph.EdgeParentTask))
	s.Empty(s.edges(graph.EdgeAssignedTo))
	s.NotNil(s.node(parent), "edge targets that are not owned survive")
	s.NotNil(s.node(res))
}

func (s *Suite) TestDeleteMissingIsNoop() {
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		if err := tx.DeleteNode(s.ctx, graph.Ref(graph.NodeTask, "ghost"), graph.EdgeHasBaseline); err != nil {
			return err
		}
		return tx.DeleteEdge(s.ctx, graph.EdgeDependsOn, "ghost")
	}))
}

func (s *Suite) TestDeleteEdge() {
	a, b := graph.Ref(graph.NodeTask, "a"), graph.Ref(graph.NodeTask, "b")
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		if err := tx.MergeNode(s.ctx, a, nil); err != nil {
			return err
		}
		if err := tx.MergeNode(s.ctx, b, nil); err != nil {
			return err
		}
		return tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeParentTask, ID: "a", From: a, To: b})
	}))
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.DeleteEdge(s.ctx, graph.EdgeParentTask, "a")
	}))

	s.Empty(s.edges(graph.EdgeParentTask))
	s.NotNil(s.node(a))
	s.NotNil(s.node(b))
}

func (s *Suite) TestFailedUpdateRollsBack() {
	boom := errors.New("boom")

	err := s.update(func(tx graph.Tx) error {
		if err := tx.MergeNode(s.ctx, graph.Ref(graph.NodeTask, "t1"), graph.Props{"name": "A"}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)
	s.Nil(s.node(graph.Ref(graph.NodeTask, "t1")))
}

func (s *Suite) TestNestedProps() {
	ref := graph.Ref(graph.NodeProject, "project")
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		return tx.MergeNode(s.ctx, ref, graph.Props{
			"startDate": "2024-01-01",
			"calendar":  "general",
			"key":       "K",
			"settings":  map[string]any{"hoursPerDay": 8, "tags": []any{"a", "b"}},
		})
	}))

	got := s.node(ref)
	s.Require().NotNil(got)
	s.jsonEq(`{"startDate":"2024-01-01","calendar":"general","key":"K","settings":{"hoursPerDay":8,"tags":["a","b"]}}`, got.Props)

	task, res := graph.Ref(graph.NodeTask, "t1"), graph.Ref(graph.NodeResource, "r1")
	s.Require().NoError(s.update(func(tx graph.Tx) error {
		if err := tx.MergeNode(s.ctx, task, graph.Props{"key": "T"}); err != nil {
			return err
		}
		if err := tx.MergeNode(s.ctx, res, nil); err != nil {
			return err
		}
		return tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeAssignedTo, ID: "as1", From: task, To: res, Props: graph.Props{"key": "A", "units": 50}})
	}))
	s.jsonEq(`{"key":"T"}`, s.node(task).Props)
	edges := s.edges(graph.EdgeAssignedTo)
	s.Require().Len(edges, 1)
	s.jsonEq(`{"key":"A","units":50}`, edges[0].Props)
}

func (s *Suite) TestInvalidRefs() {
	s.Error(s.update(func(tx graph.Tx) error {
		return tx.MergeNode(s.ctx, graph.Ref(graph.NodeTask, ""), nil)
	}))
	s.Error(s.update(func(tx graph.Tx) error {
		return tx.MergeEdge(s.ctx, graph.Edge{Kind: graph.EdgeDependsOn, ID: "d", From: graph.Ref(graph.NodeTask, "a")})
	}))
}
