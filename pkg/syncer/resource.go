package syncer

import (
	"context"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// ResourceDriver syncs resources. A resource is a node with an arbitrary
// attribute set.
type ResourceDriver struct {
	newID func() string
}

var _ Driver = ResourceDriver{}

func (ResourceDriver) Entity() models.EntityType { return models.EntityResource }

func (d ResourceDriver) Create(ctx context.Context, tx graph.Tx, added []models.Record) ([]models.Record, error) {
	const op = "resources.create"

	rows := make([]models.Record, 0, len(added))
	for _, rec := range added {
		id := idOrNew(rec, d.newID)
		ref := graph.Ref(graph.NodeResource, id)

		prev, err := tx.Node(ctx, ref)
		if err != nil {
			return nil, storeError(op, err)
		}
		props := attributes(rec)
		if err := tx.MergeNode(ctx, ref, props); err != nil {
			return nil, storeError(op, err)
		}

		stored := props
		if prev != nil {
			stored = graph.Props(models.Merge(models.Record(prev.Props), models.Record(props)))
		}
		rows = append(rows, echoPhantom(row(id, stored), rec))
	}
	return rows, nil
}

func (d ResourceDriver) Update(ctx context.Context, tx graph.Tx, updated []models.Record) error {
	const op = "resources.update"

	for i, rec := range updated {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		if err := tx.MergeNode(ctx, graph.Ref(graph.NodeResource, id), attributes(rec)); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}

func (d ResourceDriver) Delete(ctx context.Context, tx graph.Tx, removed []models.Record) error {
	const op = "resources.delete"

	for i, rec := range removed {
		id, err := requireID(op, rec, i)
		if err != nil {
			return err
		}
		if err := tx.DeleteNode(ctx, graph.Ref(graph.NodeResource, id)); err != nil {
			return storeError(op, err)
		}
	}
	return nil
}
