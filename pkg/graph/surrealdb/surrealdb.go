// Package surrealdb provides a SurrealDB implementation of [graph.Store] using
// native SurrealQL.
//
// Every node kind is a table and every edge kind is a relation table. A node
// is stored as the record table:⟨id⟩, so graph identifiers and record ids
// coincide. Edges are created with RELATE so the graph can be traversed with
// arrow syntax from SurrealQL; they carry their graph identifier in a
// uniquely indexed key field and get record ids generated by SurrealDB.
//
// # Transactions
//
// SurrealDB runs a transaction within a single query RPC call. Write
// statements issued through a [graph.Tx] are therefore buffered and sent as
// one BEGIN TRANSACTION ... COMMIT TRANSACTION query when the Update callback
// returns. Reads issued through the same Tx go to the database immediately and
// observe the state committed before the transaction began.
//
// # Query Safety
//
// Values are always bound as query parameters. Table names are interpolated
// only after being checked against the fixed set of node and edge kinds.
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	sdbmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// keyField holds the graph identifier of every record. On nodes it mirrors
// the record id and gives listings a plain string to order by. The name is
// reserved so it never shadows a record attribute.
const keyField = "__key"

// Config holds connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store is a SurrealDB-backed graph store.
type Store struct {
	db       *surrealdb.DB
	ns       string
	database string
}

var _ graph.Store = (*Store)(nil)

// New connects to SurrealDB over WebSocket using the surrealcbor codec,
// signs in when credentials are given and selects the namespace and database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)

	// surrealcbor keeps record ids and numbers in SurrealDB's native form.
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return FromDB(db, cfg.Namespace, cfg.Database), nil
}

// FromDB wraps an established connection.
func FromDB(db *surrealdb.DB, namespace, database string) *Store {
	return &Store{db: db, ns: namespace, database: database}
}

// Migrate defines every table, with a unique index on the key of every
// relation table and an index on its source. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	var stmts []string
	for _, kind := range graph.NodeKinds {
		table := string(kind)
		stmts = append(stmts,
			fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS;", table),
		)
	}
	for _, kind := range graph.EdgeKinds {
		table := string(kind)
		stmts = append(stmts,
			fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s TYPE RELATION SCHEMALESS;", table),
			fmt.Sprintf("DEFINE INDEX IF NOT EXISTS %s_key ON %s FIELDS %s UNIQUE;", table, table, keyField),
			fmt.Sprintf("DEFINE INDEX IF NOT EXISTS %s_in ON %s FIELDS in;", table, table),
		)
	}

	if _, err := surrealdb.Query[any](ctx, s.db, strings.Join(stmts, "\n"), nil); err != nil {
		return fmt.Errorf("failed to define schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r graph.Reader) error) error {
	return fn(ctx, &reader{db: s.db})
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	t := &tx{reader: reader{db: s.db}, vars: map[string]any{}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit(ctx)
}

// Truncate removes every record of every table. It is meant for tests.
func (s *Store) Truncate(ctx context.Context) error {
	var stmts []string
	for _, kind := range graph.EdgeKinds {
		stmts = append(stmts, fmt.Sprintf("DELETE %s;", kind))
	}
	for _, kind := range graph.NodeKinds {
		stmts = append(stmts, fmt.Sprintf("DELETE %s;", kind))
	}
	if _, err := surrealdb.Query[any](ctx, s.db, strings.Join(stmts, "\n"), nil); err != nil {
		return fmt.Errorf("failed to truncate: %w", err)
	}
	return nil
}

type reader struct {
	db *surrealdb.DB
}

func (r *reader) rows(ctx context.Context, query string, vars map[string]any) ([]map[string]any, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, r.db, query, vars)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	return (*res)[0].Result, nil
}

func (r *reader) Node(ctx context.Context, ref graph.NodeRef) (*graph.Node, error) {
	if _, err := nodeTable(ref.Kind); err != nil {
		return nil, err
	}
	rows, err := r.rows(ctx, "SELECT * FROM $rid", map[string]any{
		"rid": recordID(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &graph.Node{NodeRef: ref, Props: nodeProps(rows[0])}, nil
}

func (r *reader) Nodes(ctx context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	table, err := nodeTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.rows(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", table, keyField), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	out := make([]graph.Node, 0, len(rows))
	for _, row := range rows {
		key, _ := models.IDString(row[keyField])
		if key == "" {
			continue
		}
		out = append(out, graph.Node{NodeRef: graph.Ref(kind, key), Props: nodeProps(row)})
	}
	return out, nil
}

func (r *reader) Edge(ctx context.Context, kind graph.EdgeKind, id string) (*graph.Edge, error) {
	edges, err := r.edges(ctx, kind, fmt.Sprintf("WHERE %s = $key LIMIT 1", keyField), map[string]any{"key": id})
	if err != nil || len(edges) == 0 {
		return nil, err
	}
	return &edges[0], nil
}

func (r *reader) Edges(ctx context.Context, kind graph.EdgeKind) ([]graph.Edge, error) {
	return r.edges(ctx, kind, "ORDER BY "+keyField, nil)
}

func (r *reader) OutEdges(ctx context.Context, kind graph.EdgeKind, from graph.NodeRef) ([]graph.Edge, error) {
	return r.edges(ctx, kind, "WHERE in = $from ORDER BY "+keyField, map[string]any{
		"from": recordID(from),
	})
}

func (r *reader) edges(ctx context.Context, kind graph.EdgeKind, clause string, vars map[string]any) ([]graph.Edge, error) {
	table, err := edgeTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.rows(ctx, fmt.Sprintf("SELECT * FROM %s %s", table, clause), vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s edges: %w", kind, err)
	}

	out := make([]graph.Edge, 0, len(rows))
	for _, row := range rows {
		key, _ := models.IDString(row[keyField])
		from, okFrom := nodeRef(row["in"])
		to, okTo := nodeRef(row["out"])
		if key == "" || !okFrom || !okTo {
			continue
		}
		out = append(out, graph.Edge{Kind: kind, ID: key, From: from, To: to, Props: edgeProps(row)})
	}
	return out, nil
}

// tx buffers write statements until commit.
type tx struct {
	reader

	mu    sync.Mutex
	stmts []string
	vars  map[string]any
	n     int
}

var (
	_ graph.Tx           = (*tx)(nil)
	_ graph.ConcurrentTx = (*tx)(nil)
)

func (t *tx) Concurrent() bool { return true }

// name returns a parameter name unique within the transaction.
// Callers hold t.mu.
func (t *tx) name(prefix string) string {
	name := fmt.Sprintf("$%s%d", prefix, t.n)
	t.n++
	return name
}

// bind registers v under a fresh parameter name. Callers hold t.mu.
func (t *tx) bind(prefix string, v any) string {
	name := t.name(prefix)
	t.vars[strings.TrimPrefix(name, "$")] = v
	return name
}

func (t *tx) CreateNode(ctx context.Context, ref graph.NodeRef, props graph.Props) error {
	if _, err := nodeTable(ref.Kind); err != nil || !ref.Valid() {
		return graph.ErrInvalidRef
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	content := props.Clone()
	content[keyField] = ref.ID
	t.stmts = append(t.stmts, fmt.Sprintf("CREATE %s CONTENT %s RETURN NONE;",
		t.bind("r", recordID(ref)), t.bind("p", map[string]any(content))))
	return nil
}

func (t *tx) MergeNode(ctx context.Context, ref graph.NodeRef, props graph.Props) error {
	if _, err := nodeTable(ref.Kind); err != nil || !ref.Valid() {
		return graph.ErrInvalidRef
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	content := props.Clone()
	content[keyField] = ref.ID
	t.stmts = append(t.stmts, fmt.Sprintf("UPSERT %s MERGE %s RETURN NONE;",
		t.bind("r", recordID(ref)), t.bind("p", map[string]any(content))))
	return nil
}

func (t *tx) DeleteNode(ctx context.Context, ref graph.NodeRef, owned ...graph.EdgeKind) error {
	if _, err := nodeTable(ref.Kind); err != nil || !ref.Valid() {
		return graph.ErrInvalidRef
	}
	for _, kind := range owned {
		if _, err := edgeTable(kind); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rid := t.bind("r", recordID(ref))
	var dependents []string
	for _, kind := range owned {
		name := t.name("o")
		t.stmts = append(t.stmts, fmt.Sprintf("LET %s = (SELECT VALUE out FROM %s WHERE in = %s);", name, kind, rid))
		dependents = append(dependents, name)
	}
	for _, kind := range graph.EdgeKinds {
		t.stmts = append(t.stmts, fmt.Sprintf("DELETE %s WHERE in = %s OR out = %s;", kind, rid, rid))
	}
	for _, name := range dependents {
		for _, kind := range graph.EdgeKinds {
			t.stmts = append(t.stmts, fmt.Sprintf("DELETE %s WHERE in INSIDE %s OR out INSIDE %s;", kind, name, name))
		}
		t.stmts = append(t.stmts, fmt.Sprintf("DELETE %s;", name))
	}
	t.stmts = append(t.stmts, fmt.Sprintf("DELETE %s;", rid))
	return nil
}

func (t *tx) MergeEdge(ctx context.Context, edge graph.Edge) error {
	if err := graph.ValidateEdge(edge); err != nil {
		return err
	}
	table, err := edgeTable(edge.Kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	content := edge.Props.Clone()
	content[keyField] = edge.ID
	key := t.bind("k", edge.ID)
	t.stmts = append(t.stmts,
		fmt.Sprintf("DELETE %s WHERE %s = %s;", table, keyField, key),
		fmt.Sprintf("RELATE %s->%s->%s CONTENT %s RETURN NONE;",
			t.bind("f", recordID(edge.From)), table, t.bind("t", recordID(edge.To)), t.bind("p", map[string]any(content))),
	)
	return nil
}

func (t *tx) DeleteEdge(ctx context.Context, kind graph.EdgeKind, id string) error {
	table, err := edgeTable(kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stmts = append(t.stmts, fmt.Sprintf("DELETE %s WHERE %s = %s;", table, keyField, t.bind("k", id)))
	return nil
}

func (t *tx) commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.stmts) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("BEGIN TRANSACTION;\n")
	for _, stmt := range t.stmts {
		b.WriteString(stmt)
		b.WriteByte('\n')
	}
	b.WriteString("COMMIT TRANSACTION;")

	res, err := surrealdb.Query[any](ctx, t.db, b.String(), t.vars)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if res != nil {
		for i, r := range *res {
			if r.Status != "" && r.Status != "OK" {
				return fmt.Errorf("failed to commit transaction: statement %d: %v", i, r.Result)
			}
		}
	}
	return nil
}

func nodeTable(kind graph.NodeKind) (string, error) {
	for _, k := range graph.NodeKinds {
		if k == kind {
			return string(k), nil
		}
	}
	return "", fmt.Errorf("unknown node kind %q: %w", kind, graph.ErrInvalidRef)
}

func edgeTable(kind graph.EdgeKind) (string, error) {
	for _, k := range graph.EdgeKinds {
		if k == kind {
			return string(k), nil
		}
	}
	return "", fmt.Errorf("unknown edge kind %q: %w", kind, graph.ErrInvalidRef)
}

func recordID(ref graph.NodeRef) sdbmodels.RecordID {
	return sdbmodels.NewRecordID(string(ref.Kind), ref.ID)
}

func nodeRef(v any) (graph.NodeRef, bool) {
	var rid sdbmodels.RecordID
	switch t := v.(type) {
	case sdbmodels.RecordID:
		rid = t
	case *sdbmodels.RecordID:
		if t == nil {
			return graph.NodeRef{}, false
		}
		rid = *t
	default:
		return graph.NodeRef{}, false
	}
	id, ok := models.IDString(rid.ID)
	if !ok {
		return graph.NodeRef{}, false
	}
	return graph.Ref(graph.NodeKind(rid.Table), id), true
}

func nodeProps(row map[string]any) graph.Props {
	props := graph.Props{}
	for k, v := range row {
		if k == "id" || k == keyField {
			continue
		}
		props[k] = v
	}
	return props
}

func edgeProps(row map[string]any) graph.Props {
	props := nodeProps(row)
	delete(props, "in")
	delete(props, "out")
	return props
}
