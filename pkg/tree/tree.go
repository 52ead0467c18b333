// Package tree converts hierarchical records between their flat and nested
// forms.
//
// The read side stores every task as its own node with a parent reference and
// the client expects a nested forest; the write side receives nested forests
// and persists them as flat records plus parent-child relations.
package tree

import (
	"github.com/surrealdb/ganttsync/pkg/models"
)

// Relation is one parent-child edge of a flattened forest.
type Relation struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// Codec names the fields carrying identity and hierarchy.
type Codec struct {
	IDField       string
	ParentField   string
	ChildrenField string
}

// Tasks is the codec for task records.
var Tasks = Codec{
	IDField:       models.FieldID,
	ParentField:   models.FieldParentID,
	ChildrenField: models.FieldChildren,
}

// Build nests rows into a forest. Every returned node is a shallow copy of its
// row with a fresh children slice. Roots and siblings keep their input order.
//
// A row whose parent identifier does not belong to any row is dropped along
// with its descendants. When several rows share an identifier only the first
// is kept.
func (c Codec) Build(rows []models.Record) []models.Record {
	nodes := make(map[string]models.Record, len(rows))
	for _, row := range rows {
		node := row.Without(c.ChildrenField)
		node[c.ChildrenField] = []models.Record{}
		if id, ok := models.IDString(row[c.IDField]); ok {
			if _, dup := nodes[id]; !dup {
				nodes[id] = node
			}
		}
	}

	// Nodes are maps, so a child attached before its parent is itself
	// attached still ends up in the final forest.
	roots := make([]models.Record, 0)
	placed := make(map[string]bool, len(rows))
	for _, row := range rows {
		id, ok := models.IDString(row[c.IDField])
		if !ok || placed[id] {
			continue
		}
		placed[id] = true
		node := nodes[id]

		parentID, hasParent := models.IDString(row[c.ParentField])
		if !hasParent {
			roots = append(roots, node)
			continue
		}
		parent, found := nodes[parentID]
		if !found {
			continue
		}
		parent[c.ChildrenField] = append(parent[c.ChildrenField].([]models.Record), node)
	}
	return roots
}

// Flatten walks a forest depth-first, parents before children, returning every
// node without its children field and one relation per nested edge in the
// same order. Nested nodes get their parent field set to their tree parent.
func (c Codec) Flatten(forest []models.Record) ([]models.Record, []Relation) {
	var (
		flat      []models.Record
		relations []Relation
	)
	for _, node := range forest {
		flat = append(flat, node.Without(c.ChildrenField))
		flat, relations = c.flattenChildren(node, flat, relations)
	}
	return flat, relations
}

func (c Codec) flattenChildren(parent models.Record, flat []models.Record, relations []Relation) ([]models.Record, []Relation) {
	parentID, _ := models.IDString(parent[c.IDField])
	for _, child := range Children(parent, c.ChildrenField) {
		row := child.Without(c.ChildrenField)
		if parentID != "" {
			row[c.ParentField] = parent[c.IDField]
		}
		flat = append(flat, row)

		if childID, ok := models.IDString(child[c.IDField]); ok && parentID != "" {
			relations = append(relations, Relation{Parent: parentID, Child: childID})
		}
		flat, relations = c.flattenChildren(child, flat, relations)
	}
	return flat, relations
}

// Children returns the nested records under key, accepting both decoded JSON
// arrays and record slices. Non-object entries are skipped.
func Children(node models.Record, key string) []models.Record {
	switch t := node[key].(type) {
	case []models.Record:
		return t
	case []any:
		out := make([]models.Record, 0, len(t))
		for _, e := range t {
			if rec, ok := models.AsRecord(e); ok {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}

// Build nests task rows.
func Build(rows []models.Record) []models.Record {
	return Tasks.Build(rows)
}

// Flatten flattens a task forest.
func Flatten(forest []models.Record) ([]models.Record, []Relation) {
	return Tasks.Flatten(forest)
}
