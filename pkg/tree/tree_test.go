package tree_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/tree"
)

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestBuildScenario(t *testing.T) {
	rows := []models.Record{
		{"id": int64(1), "parentId": nil},
		{"id": int64(2), "parentId": int64(1)},
	}

	got := tree.Build(rows)

	assert.JSONEq(t,
		`[{"id":1,"parentId":null,"children":[{"id":2,"parentId":1,"children":[]}]}]`,
		toJSON(t, got))
}

func TestBuildKeepsOrderAndDepth(t *testing.T) {
	rows := []models.Record{
		{"id": "c", "parentId": "a"},
		{"id": "a"},
		{"id": "b"},
		{"id": "d", "parentId": "c"},
		{"id": "e", "parentId": "a"},
	}

	got := tree.Build(rows)

	assert.JSONEq(t, `[
		{"id":"a","children":[
			{"id":"c","parentId":"a","children":[{"id":"d","parentId":"c","children":[]}]},
			{"id":"e","parentId":"a","children":[]}
		]},
		{"id":"b","children":[]}
	]`, toJSON(t, got))
}

func TestBuildDropsOrphans(t *testing.T) {
	rows := []models.Record{
		{"id": "a"},
		{"id": "orphan", "parentId": "missing"},
		{"id": "grandchild", "parentId": "orphan"},
	}

	got := tree.Build(rows)

	assert.JSONEq(t, `[{"id":"a","children":[]}]`, toJSON(t, got))
}

func TestBuildKeepsFirstOfDuplicateIDs(t *testing.T) {
	rows := []models.Record{
		{"id": "a", "name": "first"},
		{"id": "b", "parentId": "a"},
		{"id": "a", "name": "second"},
	}

	got := tree.Build(rows)

	assert.JSONEq(t, `[
		{"id":"a","name":"first","children":[{"id":"b","parentId":"a","children":[]}]}
	]`, toJSON(t, got))
}

func TestBuildDoesNotMutateRows(t *testing.T) {
	rows := []models.Record{{"id": "a"}, {"id": "b", "parentId": "a"}}
	tree.Build(rows)
	assert.NotContains(t, rows[0], "children")
}

func TestFlattenDepthFirst(t *testing.T) {
	forest := []models.Record{
		{"id": "a", "children": []any{
			map[string]any{"id": "b", "children": []any{
				map[string]any{"id": "c"},
			}},
			map[string]any{"id": "d"},
		}},
		{"id": "e"},
	}

	flat, rels := tree.Flatten(forest)

	ids := make([]string, 0, len(flat))
	for _, r := range flat {
		ids = append(ids, r.ID())
		assert.NotContains(t, r, "children")
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, []tree.Relation{
		{Parent: "a", Child: "b"},
		{Parent: "b", Child: "c"},
		{Parent: "a", Child: "d"},
	}, rels)
	assert.Equal(t, "b", flat[2]["parentId"])
}

func TestRoundTrip(t *testing.T) {
	rows := []models.Record{
		{"id": "1", "name": "root"},
		{"id": "2", "parentId": "1"},
		{"id": "3", "parentId": "2"},
		{"id": "4", "parentId": "1"},
		{"id": "5"},
	}

	built := tree.Build(rows)
	flat, rels := tree.Flatten(built)
	rebuilt := tree.Build(flat)

	assert.JSONEq(t, toJSON(t, built), toJSON(t, rebuilt))
	assert.Len(t, rels, 3)
	assert.Len(t, flat, len(rows))
}

func TestCustomCodec(t *testing.T) {
	codec := tree.Codec{IDField: "key", ParentField: "up", ChildrenField: "kids"}
	got := codec.Build([]models.Record{{"key": "x"}, {"key": "y", "up": "x"}})

	require.Len(t, got, 1)
	kids := got[0]["kids"].([]models.Record)
	require.Len(t, kids, 1)
	assert.Equal(t, "y", kids[0]["key"])
}
