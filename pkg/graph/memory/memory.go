// Package memory provides an in-process implementation of [graph.Store].
//
// Write transactions operate on a private copy of the graph that replaces the
// committed graph only when the transaction callback succeeds, so a failed
// transaction leaves no trace. Write transactions are serialized; statements
// within one transaction may be issued from several goroutines.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// Store is an in-memory graph store.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *state
	closed  bool
}

var _ graph.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

type state struct {
	nodes map[graph.NodeKind]map[string]graph.Props
	edges map[graph.EdgeKind]map[string]graph.Edge
}

func newState() *state {
	return &state{
		nodes: map[graph.NodeKind]map[string]graph.Props{},
		edges: map[graph.EdgeKind]map[string]graph.Edge{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for kind, nodes := range s.nodes {
		m := make(map[string]graph.Props, len(nodes))
		for id, props := range nodes {
			m[id] = cloneProps(props)
		}
		out.nodes[kind] = m
	}
	for kind, edges := range s.edges {
		m := make(map[string]graph.Edge, len(edges))
		for id, e := range edges {
			e.Props = cloneProps(e.Props)
			m[id] = e
		}
		out.edges[kind] = m
	}
	return out
}

func cloneProps(p graph.Props) graph.Props {
	if p == nil {
		return graph.Props{}
	}
	return graph.Props(models.CloneValue(map[string]any(p)).(map[string]any))
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r graph.Reader) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("memory store is closed")
	}
	st := s.state
	s.mu.RUnlock()

	// Committed states are never mutated, only replaced.
	return fn(ctx, &tx{state: st, readOnly: true})
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("memory store is closed")
	}
	work := s.state.clone()
	s.mu.RUnlock()

	t := &tx{state: work}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// Migrate is a no-op; the in-memory graph needs no schema.
func (s *Store) Migrate(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	mu       sync.Mutex
	state    *state
	readOnly bool
}

var (
	_ graph.Tx           = (*tx)(nil)
	_ graph.ConcurrentTx = (*tx)(nil)
)

func (t *tx) Concurrent() bool { return true }

func (t *tx) lock() func() {
	if t.readOnly {
		return func() {}
	}
	t.mu.Lock()
	return t.mu.Unlock
}

func (t *tx) Node(ctx context.Context, ref graph.NodeRef) (*graph.Node, error) {
	defer t.lock()()
	props, ok := t.state.nodes[ref.Kind][ref.ID]
	if !ok {
		return nil, nil
	}
	return &graph.Node{NodeRef: ref, Props: cloneProps(props)}, nil
}

func (t *tx) Nodes(ctx context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	defer t.lock()()
	nodes := t.state.nodes[kind]
	out := make([]graph.Node, 0, len(nodes))
	for _, id := range sortedKeys(nodes) {
		out = append(out, graph.Node{NodeRef: graph.Ref(kind, id), Props: cloneProps(nodes[id])})
	}
	return out, nil
}

func (t *tx) Edge(ctx context.Context, kind graph.EdgeKind, id string) (*graph.Edge, error) {
	defer t.lock()()
	e, ok := t.state.edges[kind][id]
	if !ok {
		return nil, nil
	}
	e.Props = cloneProps(e.Props)
	return &e, nil
}

func (t *tx) Edges(ctx context.Context, kind graph.EdgeKind) ([]graph.Edge, error) {
	defer t.lock()()
	return t.edgesWhere(kind, func(graph.Edge) bool { return true }), nil
}

func (t *tx) OutEdges(ctx context.Context, kind graph.EdgeKind, from graph.NodeRef) ([]graph.Edge, error) {
	defer t.lock()()
	return t.edgesWhere(kind, func(e graph.Edge) bool { return e.From == from }), nil
}

func (t *tx) edgesWhere(kind graph.EdgeKind, match func(graph.Edge) bool) []graph.Edge {
	edges := t.state.edges[kind]
	out := make([]graph.Edge, 0)
	for _, id := range sortedKeys(edges) {
		e := edges[id]
		if match(e) {
			e.Props = cloneProps(e.Props)
			out = append(out, e)
		}
	}
	return out
}

func (t *tx) CreateNode(ctx context.Context, ref graph.NodeRef, props graph.Props) error {
	if !ref.Valid() {
		return graph.ErrInvalidRef
	}
	defer t.lock()()
	if _, ok := t.state.nodes[ref.Kind][ref.ID]; ok {
		return fmt.Errorf("failed to create %s: %w", ref, graph.ErrExists)
	}
	t.nodeTable(ref.Kind)[ref.ID] = cloneProps(props)
	return nil
}

func (t *tx) MergeNode(ctx context.Context, ref graph.NodeRef, props graph.Props) error {
	if !ref.Valid() {
		return graph.ErrInvalidRef
	}
	defer t.lock()()
	table := t.nodeTable(ref.Kind)
	current, ok := table[ref.ID]
	if !ok {
		current = graph.Props{}
	}
	for k, v := range cloneProps(props) {
		current[k] = v
	}
	table[ref.ID] = current
	return nil
}

func (t *tx) DeleteNode(ctx context.Context, ref graph.NodeRef, owned ...graph.EdgeKind) error {
	if !ref.Valid() {
		return graph.ErrInvalidRef
	}
	defer t.lock()()
	t.deleteNode(ref, owned)
	return nil
}

func (t *tx) deleteNode(ref graph.NodeRef, owned []graph.EdgeKind) {
	if _, ok := t.state.nodes[ref.Kind][ref.ID]; !ok {
		return
	}

	var dependents []graph.NodeRef
	for _, kind := range owned {
		for _, e := range t.state.edges[kind] {
			if e.From == ref {
				dependents = append(dependents, e.To)
			}
		}
	}

	for _, edges := range t.state.edges {
		for id, e := range edges {
			if e.From == ref || e.To == ref {
				delete(edges, id)
			}
		}
	}
	delete(t.state.nodes[ref.Kind], ref.ID)

	for _, dep := range dependents {
		t.deleteNode(dep, nil)
	}
}

func (t *tx) MergeEdge(ctx context.Context, edge graph.Edge) error {
	if err := graph.ValidateEdge(edge); err != nil {
		return err
	}
	defer t.lock()()
	edge.Props = cloneProps(edge.Props)
	t.edgeTable(edge.Kind)[edge.ID] = edge
	return nil
}

func (t *tx) DeleteEdge(ctx context.Context, kind graph.EdgeKind, id string) error {
	defer t.lock()()
	delete(t.state.edges[kind], id)
	return nil
}

func (t *tx) nodeTable(kind graph.NodeKind) map[string]graph.Props {
	table, ok := t.state.nodes[kind]
	if !ok {
		table = map[string]graph.Props{}
		t.state.nodes[kind] = table
	}
	return table
}

func (t *tx) edgeTable(kind graph.EdgeKind) map[string]graph.Edge {
	table, ok := t.state.edges[kind]
	if !ok {
		table = map[string]graph.Edge{}
		t.state.edges[kind] = table
	}
	return table
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
