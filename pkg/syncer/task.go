package syncer

import (
	"context"
	"sort"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/tree"
)

// orderProp is the edge property keeping owned records in the order sent.
const orderProp = "index"

// TaskDriver syncs tasks. A task is a node with an optional PARENT_TASK edge
// to its parent and HAS_BASELINE edges to the baselines it owns.
//
// Both added and updated buckets may nest tasks under children; nested tasks
// are persisted as tasks of their own whose parent is the enclosing task.
type TaskDriver struct {
	newID func() string
}

var _ Driver = TaskDriver{}

func (TaskDriver) Entity() models.EntityType { return models.EntityTask }

func (d TaskDriver) Create(ctx context.Context, tx graph.Tx, added []models.Record) ([]models.Record, error) {
	const op = "tasks.create"

	flat, _ := tree.Flatten(d.assignIDs(added))
	rows := make([]models.Record, 0, len(flat))
	for _, rec := range flat {
		id := rec.ID()
		ref := graph.Ref(graph.NodeTask, id)

		prev, err := tx.Node(ctx, ref)
		if err != nil {
			return nil, storeError(op, err)
		}
		props := attributes(rec, models.FieldParentID, models.FieldChildren, models.FieldBaselines)
		if err := tx.MergeNode(ctx, ref, props); err != nil {
			return nil, storeError(op, err)
		}

		if parentID, ok := models.IDString(rec[models.FieldParentID]); ok {
			if err := d.setParent(ctx, op, tx, id, parentID); err != nil {
				return nil, err
			}
		}

		var baselines []models.Record
		if rec[models.FieldBaselines] != nil {
			baselines, err = d.replaceBaselines(ctx, op, tx, ref, tree.Children(rec, models.FieldBaselines))
		} else {
			baselines, err = loadBaselines(ctx, tx, ref)
		}
		if err != nil {
			return nil, storeError(op, err)
		}

		parent, err := parentOf(ctx, tx, id)
		if err != nil {
			return nil, storeError(op, err)
		}

		stored := props
		if prev != nil {
			stored = graph.Props(models.Merge(models.Record(prev.Props), models.Record(props)))
		}
		out := row(id, stored)
		out[models.FieldParentID] = parent
		out[models.FieldBaselines] = baselines
		rows = append(rows, echoPhantom(out, rec))
	}
	return rows, nil
}

func (d TaskDriver) Update(ctx context.Context, tx graph.Tx, updated []models.Record) error {
	const op = "tasks.update"

	flat, _ := tree.Flatten(updated)
	for i, rec := range flat {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		ref := graph.Ref(graph.NodeTask, id)

		props := attributes(rec, models.FieldParentID, models.FieldChildren, models.FieldBaselines)
		if err := tx.MergeNode(ctx, ref, props); err != nil {
			return storeError(op, err)
		}

		if rec[models.FieldBaselines] != nil {
			if _, err := d.replaceBaselines(ctx, op, tx, ref, tree.Children(rec, models.FieldBaselines)); err != nil {
				return storeError(op, err)
			}
		}

		if !rec.Has(models.FieldParentID) {
			continue
		}
		if parentID, ok := models.IDString(rec[models.FieldParentID]); ok {
			if err := d.setParent(ctx, op, tx, id, parentID); err != nil {
				return err
			}
		} else if err := tx.DeleteEdge(ctx, graph.EdgeParentTask, id); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}

func (d TaskDriver) Delete(ctx context.Context, tx graph.Tx, removed []models.Record) error {
	const op = "tasks.delete"

	for i, rec := range removed {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		if err := tx.DeleteNode(ctx, graph.Ref(graph.NodeTask, id), graph.EdgeHasBaseline); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}

// assignIDs copies a forest, giving every node without an identifier a new one.
func (d TaskDriver) assignIDs(forest []models.Record) []models.Record {
	out := make([]models.Record, 0, len(forest))
	for _, node := range forest {
		n := node.Without(models.FieldChildren)
		if n.ID() == "" {
			n[models.FieldID] = d.newID()
		}
		if children := tree.Children(node, models.FieldChildren); len(children) > 0 {
			n[models.FieldChildren] = d.assignIDs(children)
		}
		out = append(out, n)
	}
	return out
}

// setParent points the PARENT_TASK edge of child at parent, creating a bare
// parent node when needed. The edge is keyed by the child, so a task never
// has more than one parent.
func (d TaskDriver) setParent(ctx context.Context, op string, tx graph.Tx, child, parent string) error {
	seen := map[string]bool{}
	for cur := parent; cur != "" && !seen[cur]; {
		if cur == child {
			return referenceErrorf(op, "making %s the parent of task %s would create a cycle", parent, child)
		}
		seen[cur] = true

		e, err := tx.Edge(ctx, graph.EdgeParentTask, cur)
		if err != nil {
			return storeError(op, err)
		}
		if e == nil {
			break
		}
		cur = e.To.ID
	}

	parentRef := graph.Ref(graph.NodeTask, parent)
	if err := tx.MergeNode(ctx, parentRef, nil); err != nil {
		return storeError(op, err)
	}
	err := tx.MergeEdge(ctx, graph.Edge{
		Kind: graph.EdgeParentTask,
		ID:   child,
		From: graph.Ref(graph.NodeTask, child),
		To:   parentRef,
	})
	return storeError(op, err)
}

// replaceBaselines deletes every baseline of task and stores the given ones,
// returning them as persisted.
func (d TaskDriver) replaceBaselines(ctx context.Context, op string, tx graph.Tx, task graph.NodeRef, baselines []models.Record) ([]models.Record, error) {
	existing, err := tx.OutEdges(ctx, graph.EdgeHasBaseline, task)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if err := tx.DeleteNode(ctx, e.To); err != nil {
			return nil, err
		}
	}

	rows := make([]models.Record, 0, len(baselines))
	for i, bl := range baselines {
		ref := graph.Ref(graph.NodeBaseline, d.newID())
		props := attributes(bl)
		if err := tx.MergeNode(ctx, ref, props); err != nil {
			return nil, err
		}
		if err := tx.MergeEdge(ctx, graph.Edge{
			Kind:  graph.EdgeHasBaseline,
			ID:    ref.ID,
			From:  task,
			To:    ref,
			Props: graph.Props{orderProp: i},
		}); err != nil {
			return nil, err
		}
		rows = append(rows, models.Record(props))
	}
	return rows, nil
}

// loadBaselines returns the baselines of task in the order they were stored.
func loadBaselines(ctx context.Context, tx graph.Reader, task graph.NodeRef) ([]models.Record, error) {
	edges, err := tx.OutEdges(ctx, graph.EdgeHasBaseline, task)
	if err != nil {
		return nil, err
	}
	sortByOrder(edges)

	rows := make([]models.Record, 0, len(edges))
	for _, e := range edges {
		n, err := tx.Node(ctx, e.To)
		if err != nil {
			return nil, err
		}
		if n != nil {
			rows = append(rows, models.Record(n.Props))
		}
	}
	return rows, nil
}

func sortByOrder(edges []graph.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		return number(edges[i].Props[orderProp]) < number(edges[j].Props[orderProp])
	})
}

// parentOf returns the parent identifier of a task, or nil for a root.
func parentOf(ctx context.Context, tx graph.Reader, id string) (any, error) {
	e, err := tx.Edge(ctx, graph.EdgeParentTask, id)
	if err != nil || e == nil {
		return nil, err
	}
	return e.To.ID, nil
}

// number converts a decoded numeric property to float64.
func number(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}
