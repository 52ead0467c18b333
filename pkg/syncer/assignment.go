package syncer

import (
	"context"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// AssignmentDriver syncs assignments. An assignment is an ASSIGNED_TO edge
// from a task (the event) to a resource, carrying the assigned units. Its
// identifier is independent of the identifiers of its endpoints.
type AssignmentDriver struct {
	newID func() string
}

var _ Driver = AssignmentDriver{}

func (AssignmentDriver) Entity() models.EntityType { return models.EntityAssignment }

func (d AssignmentDriver) Create(ctx context.Context, tx graph.Tx, added []models.Record) ([]models.Record, error) {
	const op = "assignments.create"

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

func (d AssignmentDriver) Update(ctx context.Context, tx graph.Tx, updated []models.Record) error {
	const op = "assignments.update"

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

func (d AssignmentDriver) Delete(ctx context.Context, tx graph.Tx, removed []models.Record) error {
	const op = "assignments.delete"

	for i, rec := range removed {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		if err := tx.DeleteEdge(ctx, graph.EdgeAssignedTo, id); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}

// upsert stores the assignment, keeping the stored endpoints and units for
// fields absent from rec. Endpoints that do not exist yet are created bare.
func (d AssignmentDriver) upsert(ctx context.Context, op string, tx graph.Tx, id string, rec models.Record) (models.Record, error) {
	prev, err := tx.Edge(ctx, graph.EdgeAssignedTo, id)
	if err != nil {
		return nil, storeError(op, err)
	}

	event, ok := reference(rec, models.FieldEvent)
	if !ok && prev != nil {
		event, ok = prev.From.ID, true
	}
	if !ok {
		return nil, referenceErrorf(op, "assignment %s has no event", id)
	}
	resource, ok := reference(rec, models.FieldResource)
	if !ok && prev != nil {
		resource, ok = prev.To.ID, true
	}
	if !ok {
		return nil, referenceErrorf(op, "assignment %s has no resource", id)
	}

	props := graph.Props{}
	if prev != nil {
		if units, ok := prev.Props[models.FieldUnits]; ok {
			props[models.FieldUnits] = units
		}
	}
	if rec.Has(models.FieldUnits) {
		props[models.FieldUnits] = rec[models.FieldUnits]
	}

	task := graph.Ref(graph.NodeTask, event)
	res := graph.Ref(graph.NodeResource, resource)
	for _, ref := range []graph.NodeRef{task, res} {
		if err := tx.MergeNode(ctx, ref, nil); err != nil {
			return nil, storeError(op, err)
		}
	}
	if err := tx.MergeEdge(ctx, graph.Edge{Kind: graph.EdgeAssignedTo, ID: id, From: task, To: res, Props: props}); err != nil {
		return nil, storeError(op, err)
	}

	return assignmentRow(id, event, resource, props), nil
}

func assignmentRow(id, event, resource string, props graph.Props) models.Record {
	out := row(id, props)
	out[models.FieldEvent] = event
	out[models.FieldResource] = resource
	return out
}
