package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/surrealdb/ganttsync/pkg/models"
)

type edgeKey struct {
	kind EdgeKind
	id   string
}

// TrackedTx wraps a Tx and remembers every write issued through it, so that
// later reads through the wrapper observe them even on backends that defer
// writes to commit time.
//
// Reads are answered from the tracked writes first and fall back to the
// wrapped transaction. Edges read from the wrapped transaction are hidden once
// one of their endpoints has been deleted through the wrapper.
type TrackedTx struct {
	Tx

	mu       sync.Mutex
	nodes    map[NodeRef]*Node
	edges    map[edgeKey]*Edge
	detached map[NodeRef]bool
}

var _ ConcurrentTx = (*TrackedTx)(nil)

// Track wraps tx. Wrapping a TrackedTx returns it unchanged.
func Track(tx Tx) *TrackedTx {
	if t, ok := tx.(*TrackedTx); ok {
		return t
	}
	return &TrackedTx{
		Tx:       tx,
		nodes:    map[NodeRef]*Node{},
		edges:    map[edgeKey]*Edge{},
		detached: map[NodeRef]bool{},
	}
}

// Concurrent reports whether the wrapped transaction is concurrent.
func (t *TrackedTx) Concurrent() bool {
	return IsConcurrent(t.Tx)
}

func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	return &Node{NodeRef: n.NodeRef, Props: copyProps(n.Props)}
}

func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Props = copyProps(e.Props)
	return &c
}

func copyProps(p Props) Props {
	if p == nil {
		return Props{}
	}
	return Props(models.CloneValue(map[string]any(p)).(map[string]any))
}

func (t *TrackedTx) Node(ctx context.Context, ref NodeRef) (*Node, error) {
	t.mu.Lock()
	n, tracked := t.nodes[ref]
	t.mu.Unlock()
	if tracked {
		return copyNode(n), nil
	}
	return t.Tx.Node(ctx, ref)
}

func (t *TrackedTx) Nodes(ctx context.Context, kind NodeKind) ([]Node, error) {
	base, err := t.Tx.Nodes(ctx, kind)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Node, 0, len(base))
	for _, n := range base {
		if _, tracked := t.nodes[n.NodeRef]; !tracked {
			out = append(out, n)
		}
	}
	for ref, n := range t.nodes {
		if ref.Kind == kind && n != nil {
			out = append(out, *copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *TrackedTx) Edge(ctx context.Context, kind EdgeKind, id string) (*Edge, error) {
	t.mu.Lock()
	e, tracked := t.edges[edgeKey{kind, id}]
	t.mu.Unlock()
	if tracked {
		return copyEdge(e), nil
	}

	base, err := t.Tx.Edge(ctx, kind, id)
	if err != nil || base == nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached[base.From] || t.detached[base.To] {
		return nil, nil
	}
	return base, nil
}

func (t *TrackedTx) Edges(ctx context.Context, kind EdgeKind) ([]Edge, error) {
	base, err := t.Tx.Edges(ctx, kind)
	if err != nil {
		return nil, err
	}
	return t.mergeEdges(kind, base, func(Edge) bool { return true }), nil
}

func (t *TrackedTx) OutEdges(ctx context.Context, kind EdgeKind, from NodeRef) ([]Edge, error) {
	base, err := t.Tx.OutEdges(ctx, kind, from)
	if err != nil {
		return nil, err
	}
	return t.mergeEdges(kind, base, func(e Edge) bool { return e.From == from }), nil
}

func (t *TrackedTx) mergeEdges(kind EdgeKind, base []Edge, match func(Edge) bool) []Edge {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Edge, 0, len(base))
	for _, e := range base {
		if _, tracked := t.edges[edgeKey{kind, e.ID}]; tracked {
			continue
		}
		if t.detached[e.From] || t.detached[e.To] {
			continue
		}
		out = append(out, e)
	}
	for key, e := range t.edges {
		if key.kind == kind && e != nil && match(*e) {
			out = append(out, *copyEdge(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *TrackedTx) CreateNode(ctx context.Context, ref NodeRef, props Props) error {
	existing, err := t.Node(ctx, ref)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("failed to create %s: %w", ref, ErrExists)
	}
	if err := t.Tx.CreateNode(ctx, ref, props); err != nil {
		return err
	}

	t.mu.Lock()
	t.nodes[ref] = &Node{NodeRef: ref, Props: copyProps(props)}
	t.mu.Unlock()
	return nil
}

func (t *TrackedTx) MergeNode(ctx context.Context, ref NodeRef, props Props) error {
	prev, err := t.Node(ctx, ref)
	if err != nil {
		return err
	}
	if err := t.Tx.MergeNode(ctx, ref, props); err != nil {
		return err
	}

	merged := Props{}
	if prev != nil {
		merged = prev.Props
	}
	for k, v := range copyProps(props) {
		merged[k] = v
	}

	t.mu.Lock()
	t.nodes[ref] = &Node{NodeRef: ref, Props: merged}
	t.mu.Unlock()
	return nil
}

func (t *TrackedTx) DeleteNode(ctx context.Context, ref NodeRef, owned ...EdgeKind) error {
	var dependents []NodeRef
	for _, kind := range owned {
		edges, err := t.OutEdges(ctx, kind, ref)
		if err != nil {
			return err
		}
		for _, e := range edges {
			dependents = append(dependents, e.To)
		}
	}

	if err := t.Tx.DeleteNode(ctx, ref, owned...); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range append(dependents, ref) {
		t.nodes[r] = nil
		t.detached[r] = true
		for key, e := range t.edges {
			if e != nil && (e.From == r || e.To == r) {
				t.edges[key] = nil
			}
		}
	}
	return nil
}

func (t *TrackedTx) MergeEdge(ctx context.Context, edge Edge) error {
	if err := t.Tx.MergeEdge(ctx, edge); err != nil {
		return err
	}

	t.mu.Lock()
	t.edges[edgeKey{edge.Kind, edge.ID}] = copyEdge(&edge)
	t.mu.Unlock()
	return nil
}

func (t *TrackedTx) DeleteEdge(ctx context.Context, kind EdgeKind, id string) error {
	if err := t.Tx.DeleteEdge(ctx, kind, id); err != nil {
		return err
	}

	t.mu.Lock()
	t.edges[edgeKey{kind, id}] = nil
	t.mu.Unlock()
	return nil
}
