// Package graph defines the transactional graph persistence used by ganttsync.
//
// A [Store] holds nodes and directed edges. Both are addressed by a kind and a
// string identifier that is unique within that kind, and both carry an
// arbitrary property map. Mutations happen inside [Store.Update], which
// commits every statement issued by its callback atomically or none of them.
//
// # Implementations
//
//   - [github.com/surrealdb/ganttsync/pkg/graph/surrealdb.Store]: SurrealDB records and RELATE edges
//   - [github.com/surrealdb/ganttsync/pkg/graph/postgres.Store]: PostgreSQL node and edge tables through GORM
//   - [github.com/surrealdb/ganttsync/pkg/graph/memory.Store]: in-process maps for tests and local runs
//
// # Read Visibility
//
// Reads issued through a [Tx] are only guaranteed to observe state committed
// before the transaction started. Some backends (SurrealDB) batch the writes
// of a transaction into a single request sent at commit time, so callers must
// read what they need before they write it.
package graph

import (
	"context"
	"errors"
)

var (
	// ErrExists is returned by CreateNode when the node already exists.
	ErrExists = errors.New("node already exists")

	// ErrInvalidRef is returned when a node or edge reference lacks a kind or identifier.
	ErrInvalidRef = errors.New("invalid graph reference")
)

// NodeKind is the label of a node.
type NodeKind string

const (
	NodeTask     NodeKind = "task"
	NodeResource NodeKind = "resource"
	NodeBaseline NodeKind = "baseline"
	NodeCalendar NodeKind = "calendar"
	NodeInterval NodeKind = "interval"
	NodeProject  NodeKind = "project"
)

// NodeKinds lists every node kind.
var NodeKinds = []NodeKind{NodeTask, NodeResource, NodeBaseline, NodeCalendar, NodeInterval, NodeProject}

// EdgeKind is the type of a relationship.
type EdgeKind string

const (
	// EdgeParentTask links a task to its parent task.
	EdgeParentTask EdgeKind = "parent_task"
	// EdgeHasBaseline links a task to a baseline it owns.
	EdgeHasBaseline EdgeKind = "has_baseline"
	// EdgeDependsOn links a predecessor task to its successor.
	EdgeDependsOn EdgeKind = "depends_on"
	// EdgeAssignedTo links a task to a resource.
	EdgeAssignedTo EdgeKind = "assigned_to"
	// EdgeHasChild links a calendar to a child calendar.
	EdgeHasChild EdgeKind = "has_child"
	// EdgeHasInterval links a calendar to an interval it owns.
	EdgeHasInterval EdgeKind = "has_interval"
)

// EdgeKinds lists every edge kind.
var EdgeKinds = []EdgeKind{EdgeParentTask, EdgeHasBaseline, EdgeDependsOn, EdgeAssignedTo, EdgeHasChild, EdgeHasInterval}

// Props holds the properties of a node or an edge.
type Props map[string]any

// Clone returns a shallow copy of p.
func (p Props) Clone() Props {
	if p == nil {
		return Props{}
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NodeRef addresses a node.
type NodeRef struct {
	Kind NodeKind
	ID   string
}

// Ref is shorthand for NodeRef{Kind: kind, ID: id}.
func Ref(kind NodeKind, id string) NodeRef {
	return NodeRef{Kind: kind, ID: id}
}

// Valid reports whether the reference has both a kind and an identifier.
func (r NodeRef) Valid() bool {
	return r.Kind != "" && r.ID != ""
}

func (r NodeRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Node is a stored node.
type Node struct {
	NodeRef
	Props Props
}

// Edge is a stored relationship. Edges are addressed by kind and ID;
// structural edges use the identifier of the owned or child node as their ID.
type Edge struct {
	Kind  EdgeKind
	ID    string
	From  NodeRef
	To    NodeRef
	Props Props
}

// Reader exposes read operations. Collections are ordered by identifier.
type Reader interface {
	// Node returns the node, or nil when it does not exist.
	Node(ctx context.Context, ref NodeRef) (*Node, error)
	Nodes(ctx context.Context, kind NodeKind) ([]Node, error)
	// Edge returns the edge, or nil when it does not exist.
	Edge(ctx context.Context, kind EdgeKind, id string) (*Edge, error)
	Edges(ctx context.Context, kind EdgeKind) ([]Edge, error)
	// OutEdges returns the edges of kind leaving from.
	OutEdges(ctx context.Context, kind EdgeKind, from NodeRef) ([]Edge, error)
}

// Tx is a write transaction.
type Tx interface {
	Reader

	// CreateNode creates a node and fails if it already exists.
	CreateNode(ctx context.Context, ref NodeRef, props Props) error
	// MergeNode creates the node when absent and overlays props onto it.
	MergeNode(ctx context.Context, ref NodeRef, props Props) error
	// DeleteNode removes the node and every edge touching it. The targets of
	// its outgoing edges of the owned kinds are removed with it. Deleting a
	// missing node is a no-op.
	DeleteNode(ctx context.Context, ref NodeRef, owned ...EdgeKind) error
	// MergeEdge stores the edge, replacing any edge with the same kind and
	// ID including its endpoints and properties.
	MergeEdge(ctx context.Context, edge Edge) error
	// DeleteEdge removes an edge. Deleting a missing edge is a no-op.
	DeleteEdge(ctx context.Context, kind EdgeKind, id string) error
}

// Store is a transactional graph store.
type Store interface {
	// View runs fn with a read-only view of the committed graph.
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
	// Update runs fn in a write transaction, committing when fn returns nil
	// and rolling back otherwise.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Migrate provisions tables, constraints and indexes. It is idempotent.
	Migrate(ctx context.Context) error
	Close() error
}

// ConcurrentTx is implemented by transactions that accept statements from
// several goroutines at once.
type ConcurrentTx interface {
	Concurrent() bool
}

// IsConcurrent reports whether tx tolerates concurrent statements.
func IsConcurrent(tx Tx) bool {
	c, ok := tx.(ConcurrentTx)
	return ok && c.Concurrent()
}

// ValidateEdge checks that an edge is fully addressed.
func ValidateEdge(e Edge) error {
	if e.Kind == "" || e.ID == "" || !e.From.Valid() || !e.To.Valid() {
		return ErrInvalidRef
	}
	return nil
}
