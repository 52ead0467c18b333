package syncer

import (
	"context"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// Driver translates the change set of one entity type into graph mutations.
//
// Create returns the persisted row of every added record. Update and Delete
// return nothing to the client. Drivers are stateless; every call receives
// the transaction to work in.
type Driver interface {
	Entity() models.EntityType
	Create(ctx context.Context, tx graph.Tx, added []models.Record) ([]models.Record, error)
	Update(ctx context.Context, tx graph.Tx, updated []models.Record) error
	Delete(ctx context.Context, tx graph.Tx, removed []models.Record) error
}

// apply runs the added, updated and removed buckets of cs in that order.
// Rows are nil unless Create ran.
func apply(ctx context.Context, d Driver, tx graph.Tx, cs *models.ChangeSet) ([]models.Record, error) {
	if cs.IsZero() {
		return nil, nil
	}

	var rows []models.Record
	if len(cs.Added) > 0 {
		var err error
		if rows, err = d.Create(ctx, tx, cs.Added); err != nil {
			return nil, err
		}
	}
	if len(cs.Updated) > 0 {
		if err := d.Update(ctx, tx, cs.Updated); err != nil {
			return nil, err
		}
	}
	if len(cs.Removed) > 0 {
		if err := d.Delete(ctx, tx, cs.Removed); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// attributes returns the storable attributes of rec: everything except the
// identifier, the placeholder marker and the given reserved keys.
func attributes(rec models.Record, reserved ...string) graph.Props {
	props := graph.Props{}
	skip := map[string]bool{models.FieldID: true, models.FieldPhantomID: true}
	for _, k := range reserved {
		skip[k] = true
	}
	for k, v := range rec {
		if !skip[k] {
			props[k] = models.CloneValue(v)
		}
	}
	return props
}

// echoPhantom copies the placeholder marker of src onto row so the client can
// correlate the row with the record it sent.
func echoPhantom(row, src models.Record) models.Record {
	if v, ok := src.PhantomID(); ok {
		row[models.FieldPhantomID] = v
	}
	return row
}

// requireID returns the identifier of rec or a reference error.
func requireID(op string, rec models.Record, index int) (string, error) {
	id := rec.ID()
	if id == "" {
		return "", referenceErrorf(op, "entry %d has no id", index)
	}
	return id, nil
}

// idOrNew returns the identifier of rec, generating one when absent.
func idOrNew(rec models.Record, newID func() string) string {
	if id := rec.ID(); id != "" {
		return id
	}
	return newID()
}

// reference returns the first usable identifier among the given fields.
func reference(rec models.Record, fields ...string) (string, bool) {
	for _, f := range fields {
		if id, ok := models.IDString(rec[f]); ok {
			return id, true
		}
	}
	return "", false
}

// row builds a response row from stored properties and an identifier.
func row(id string, props graph.Props) models.Record {
	out := make(models.Record, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	out[models.FieldID] = id
	return out
}
