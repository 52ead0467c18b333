package syncer

import (
	"context"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// dependencyFields are the edge properties a dependency carries.
var dependencyFields = []string{models.FieldType, models.FieldLag, models.FieldLagUnit}

// DependencyDriver syncs dependencies. A dependency is a DEPENDS_ON edge from
// the predecessor task to the successor task. Endpoints are read from
// fromTask/toTask and fall back to from/to.
//
// Added dependencies go through the same merge path as updated ones, so adding
// an identifier twice stores one edge.
type DependencyDriver struct {
	newID func() string
}

var _ Driver = DependencyDriver{}

func (DependencyDriver) Entity() models.EntityType { return models.EntityDependency }

func (d DependencyDriver) Create(ctx context.Context, tx graph.Tx, added []models.Record) ([]models.Record, error) {
	const op = "dependencies.create"

	rows := make([]models.Record, 0, len(added))
	for _, rec := range added {
		out, err := d.upsert(ctx, op, tx, idOrNew(rec, d.newID), rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, echoPhantom(out, rec))
	}
	return rows, nil
}

func (d DependencyDriver) Update(ctx context.Context, tx graph.Tx, updated []models.Record) error {
	const op = "dependencies.update"

	for i, rec := range updated {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		if _, err := d.upsert(ctx, op, tx, id, rec); err != nil {
			return err
		}
	}
	return nil
}

func (d DependencyDriver) Delete(ctx context.Context, tx graph.Tx, removed []models.Record) error {
	const op = "dependencies.delete"

	for i, rec := range removed {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		if err := tx.DeleteEdge(ctx, graph.EdgeDependsOn, id); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}

func (d DependencyDriver) upsert(ctx context.Context, op string, tx graph.Tx, id string, rec models.Record) (models.Record, error) {
	prev, err := tx.Edge(ctx, graph.EdgeDependsOn, id)
	if err != nil {
		return nil, storeError(op, err)
	}

	from, ok := reference(rec, models.FieldFromTask, models.FieldFrom)
	if !ok && prev != nil {
		from, ok = prev.From.ID, true
	}
	if !ok {
		return nil, referenceErrorf(op, "dependency %s has no predecessor", id)
	}
	to, ok := reference(rec, models.FieldToTask, models.FieldTo)
	if !ok && prev != nil {
		to, ok = prev.To.ID, true
	}
	if !ok {
		return nil, referenceErrorf(op, "dependency %s has no successor", id)
	}

	props := graph.Props{}
	for _, f := range dependencyFields {
		if prev != nil {
			if v, ok := prev.Props[f]; ok {
				props[f] = v
			}
		}
		if rec.Has(f) {
			props[f] = rec[f]
		}
	}

	fromRef := graph.Ref(graph.NodeTask, from)
	toRef := graph.Ref(graph.NodeTask, to)
	for _, ref := range []graph.NodeRef{fromRef, toRef} {
		if err := tx.MergeNode(ctx, ref, nil); err != nil {
			return nil, storeError(op, err)
		}
	}
	if err := tx.MergeEdge(ctx, graph.Edge{Kind: graph.EdgeDependsOn, ID: id, From: fromRef, To: toRef, Props: props}); err != nil {
		return nil, storeError(op, err)
	}

	out := row(id, props)
	out[models.FieldFromTask] = from
	out[models.FieldToTask] = to
	return out, nil
}
