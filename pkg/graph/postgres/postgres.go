// Package postgres provides a PostgreSQL implementation of [graph.Store]
// using GORM.
//
// The graph is mapped onto two tables: graph_nodes holds one row per node
// keyed by (kind, id), graph_edges holds one row per edge keyed by (kind, id)
// with the endpoints in from_kind/from_id and to_kind/to_id. Properties are
// stored as JSONB. Every [Store.Update] runs inside one GORM transaction, so
// reads issued through a Tx observe the transaction's own writes.
package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// jsonProps stores properties as JSONB.
type jsonProps map[string]any

// Value implements the driver.Valuer interface for database storage
func (j jsonProps) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(j))
}

// Scan implements the sql.Scanner interface for database retrieval.
// Numbers are decoded the same way request payloads are.
func (j *jsonProps) Scan(value any) error {
	if value == nil {
		*j = jsonProps{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("unsupported props type %T", value)
		}
		bytes = []byte(s)
	}
	rec, err := models.DecodeJSONBytes(bytes)
	if err != nil {
		return err
	}
	*j = jsonProps(rec)
	return nil
}

type nodeRow struct {
	Kind  string    `gorm:"primaryKey;size:32"`
	ID    string    `gorm:"primaryKey"`
	Props jsonProps `gorm:"type:jsonb;not null;default:'{}'"`
}

func (nodeRow) TableName() string { return "graph_nodes" }

type edgeRow struct {
	Kind     string    `gorm:"primaryKey;size:32"`
	ID       string    `gorm:"primaryKey"`
	FromKind string    `gorm:"size:32;not null;index:idx_graph_edges_from"`
	FromID   string    `gorm:"not null;index:idx_graph_edges_from"`
	ToKind   string    `gorm:"size:32;not null;index:idx_graph_edges_to"`
	ToID     string    `gorm:"not null;index:idx_graph_edges_to"`
	Props    jsonProps `gorm:"type:jsonb;not null;default:'{}'"`
}

func (edgeRow) TableName() string { return "graph_edges" }

func (r edgeRow) edge() graph.Edge {
	return graph.Edge{
		Kind:  graph.EdgeKind(r.Kind),
		ID:    r.ID,
		From:  graph.Ref(graph.NodeKind(r.FromKind), r.FromID),
		To:    graph.Ref(graph.NodeKind(r.ToKind), r.ToID),
		Props: graph.Props(r.Props),
	}
}

// Store is a PostgreSQL-backed graph store.
type Store struct {
	db *gorm.DB
}

var _ graph.Store = (*Store)(nil)

// New opens a connection pool for dsn.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// FromDB wraps an open GORM handle.
func FromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the node and edge tables with GORM's AutoMigrate. It only
// adds missing schema elements.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&nodeRow{}, &edgeRow{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Truncate removes every node and edge. It is meant for tests.
func (s *Store) Truncate(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Where("1 = 1").Delete(&edgeRow{}).Error; err != nil {
			return err
		}
		return db.Where("1 = 1").Delete(&nodeRow{}).Error
	})
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r graph.Reader) error) error {
	return fn(ctx, &tx{db: s.db.WithContext(ctx)})
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &tx{db: db})
	})
}

// tx runs statements on one GORM session. Statements are serial, so tx does
// not implement graph.ConcurrentTx.
type tx struct {
	db *gorm.DB
}

var _ graph.Tx = (*tx)(nil)

func (t *tx) Node(ctx context.Context, ref graph.NodeRef) (*graph.Node, error) {
	var row nodeRow
	err := t.db.WithContext(ctx).Take(&row, "kind = ? AND id = ?", string(ref.Kind), ref.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	return &graph.Node{NodeRef: ref, Props: graph.Props(row.Props)}, nil
}

func (t *tx) Nodes(ctx context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	var rows []nodeRow
	if err := t.db.WithContext(ctx).Where("kind = ?", string(kind)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	out := make([]graph.Node, 0, len(rows))
	for _, row := range rows {
		out = append(out, graph.Node{NodeRef: graph.Ref(kind, row.ID), Props: graph.Props(row.Props)})
	}
	return out, nil
}

func (t *tx) Edge(ctx context.Context, kind graph.EdgeKind, id string) (*graph.Edge, error) {
	var row edgeRow
	err := t.db.WithContext(ctx).Take(&row, "kind = ? AND id = ?", string(kind), id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s edge %s: %w", kind, id, err)
	}
	e := row.edge()
	return &e, nil
}

func (t *tx) Edges(ctx context.Context, kind graph.EdgeKind) ([]graph.Edge, error) {
	return t.edges(ctx, t.db.WithContext(ctx).Where("kind = ?", string(kind)))
}

func (t *tx) OutEdges(ctx context.Context, kind graph.EdgeKind, from graph.NodeRef) ([]graph.Edge, error) {
	return t.edges(ctx, t.db.WithContext(ctx).Where("kind = ? AND from_kind = ? AND from_id = ?",
		string(kind), string(from.Kind), from.ID))
}

func (t *tx) edges(ctx context.Context, q *gorm.DB) ([]graph.Edge, error) {
	var rows []edgeRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	out := make([]graph.Edge, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.edge())
	}
	return out, nil
}

func (t *tx) CreateNode(ctx context.Context, ref graph.NodeRef, props graph.Props) error {
	if !ref.Valid() {
		return graph.ErrInvalidRef
	}
	row := nodeRow{Kind: string(ref.Kind), ID: ref.ID, Props: jsonProps(props)}
	err := t.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to create %s: %w", ref, graph.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", ref, err)
	}
	return nil
}

func (t *tx) MergeNode(ctx context.Context, ref graph.NodeRef, props graph.Props) error {
	if !ref.Valid() {
		return graph.ErrInvalidRef
	}
	row := nodeRow{Kind: string(ref.Kind), ID: ref.ID, Props: jsonProps(props)}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"props": gorm.Expr("graph_nodes.props || EXCLUDED.props"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", ref, err)
	}
	return nil
}

func (t *tx) DeleteNode(ctx context.Context, ref graph.NodeRef, owned ...graph.EdgeKind) error {
	if !ref.Valid() {
		return graph.ErrInvalidRef
	}
	db := t.db.WithContext(ctx)

	var dependents []edgeRow
	if len(owned) > 0 {
		kinds := make([]string, 0, len(owned))
		for _, k := range owned {
			kinds = append(kinds, string(k))
		}
		if err := db.Where("kind IN ? AND from_kind = ? AND from_id = ?", kinds, string(ref.Kind), ref.ID).
			Find(&dependents).Error; err != nil {
			return fmt.Errorf("failed to list owned records of %s: %w", ref, err)
		}
	}

	if err := db.Where("(from_kind = ? AND from_id = ?) OR (to_kind = ? AND to_id = ?)",
		string(ref.Kind), ref.ID, string(ref.Kind), ref.ID).Delete(&edgeRow{}).Error; err != nil {
		return fmt.Errorf("failed to detach %s: %w", ref, err)
	}
	if err := db.Where("kind = ? AND id = ?", string(ref.Kind), ref.ID).Delete(&nodeRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}

	for _, dep := range dependents {
		if err := t.DeleteNode(ctx, graph.Ref(graph.NodeKind(dep.ToKind), dep.ToID)); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) MergeEdge(ctx context.Context, edge graph.Edge) error {
	if err := graph.ValidateEdge(edge); err != nil {
		return err
	}
	row := edgeRow{
		Kind:     string(edge.Kind),
		ID:       edge.ID,
		FromKind: string(edge.From.Kind),
		FromID:   edge.From.ID,
		ToKind:   string(edge.To.Kind),
		ToID:     edge.To.ID,
		Props:    jsonProps(edge.Props),
	}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"from_kind", "from_id", "to_kind", "to_id", "props"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to merge %s edge %s: %w", edge.Kind, edge.ID, err)
	}
	return nil
}

func (t *tx) DeleteEdge(ctx context.Context, kind graph.EdgeKind, id string) error {
	err := t.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).Delete(&edgeRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s edge %s: %w", kind, id, err)
	}
	return nil
}
