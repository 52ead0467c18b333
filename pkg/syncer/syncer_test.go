package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/graph/memory"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/phantom"
	"github.com/surrealdb/ganttsync/pkg/syncer"
	"github.com/surrealdb/ganttsync/pkg/tree"
)

func sequence() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("gen-%d", n.Add(1))
	}
}

func newSyncer(t *testing.T, opts ...syncer.Option) (*syncer.Syncer, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	opts = append([]syncer.Option{syncer.WithIDGenerator(sequence()), syncer.WithConcurrency(false)}, opts...)
	return syncer.New(store, opts...), store
}

func payload(t *testing.T, s string) models.Record {
	t.Helper()
	rec, err := models.DecodeJSONBytes([]byte(s))
	require.NoError(t, err)
	return rec
}

func mustSync(t *testing.T, s *syncer.Syncer, body string) models.SyncResponse {
	t.Helper()
	resp, err := s.Sync(context.Background(), payload(t, body))
	require.NoError(t, err)
	require.True(t, resp.Success)
	return resp
}

func mustLoad(t *testing.T, s *syncer.Syncer) models.Snapshot {
	t.Helper()
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, snap.Success)
	return snap
}

func findRow(rows []models.Record, id string) models.Record {
	for _, r := range rows {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

func TestSyncAddedPlaceholdersAreCorrelated(t *testing.T) {
	s, _ := newSyncer(t)

	resp := mustSync(t, s, `{
		"requestId": 7,
		"tasks": {"added": [{"$PhantomId": "_t1", "name": "Design"}, {"id": 2, "name": "Build"}]},
		"dependencies": {"added": [{"$PhantomId": "_d1", "fromTask": "_t1", "toTask": 2, "lag": 1}]}
	}`)

	assert.EqualValues(t, 7, resp.RequestID)
	require.NotNil(t, resp.Tasks)
	require.Len(t, resp.Tasks.Rows, 2)

	added := resp.Tasks.Rows[0]
	assert.Equal(t, "_t1", added[models.FieldPhantomID])
	assert.NotEqual(t, "_t1", added.ID())
	assert.Equal(t, "Design", added["name"])
	assert.Nil(t, added[models.FieldParentID])
	assert.Empty(t, added[models.FieldBaselines])

	explicit := resp.Tasks.Rows[1]
	assert.Equal(t, "2", explicit.ID())
	assert.NotContains(t, explicit, models.FieldPhantomID)

	require.NotNil(t, resp.Dependencies)
	require.Len(t, resp.Dependencies.Rows, 1)
	dep := resp.Dependencies.Rows[0]
	assert.Equal(t, "_d1", dep[models.FieldPhantomID])
	assert.Equal(t, added.ID(), dep[models.FieldFromTask])
	assert.Equal(t, "2", dep[models.FieldToTask])
	assert.EqualValues(t, 1, dep[models.FieldLag])

	assert.Nil(t, resp.Resources)
	assert.Nil(t, resp.Assignments)

	snap := mustLoad(t, s)
	assert.Len(t, snap.Tasks.Rows, 2)
	require.Len(t, snap.Dependencies.Rows, 1)
	assert.Equal(t, added.ID(), snap.Dependencies.Rows[0][models.FieldFrom])
}

func TestSyncAssignmentReferencesNewEndpoints(t *testing.T) {
	s, _ := newSyncer(t)

	resp := mustSync(t, s, `{
		"tasks": {"added": [{"$PhantomId": "_t", "name": "Paint"}]},
		"resources": {"added": [{"$PhantomId": "_r", "name": "Ann"}]},
		"assignments": {"added": [{"$PhantomId": "_a", "event": "_t", "resource": "_r", "units": 50}]}
	}`)

	task := resp.Tasks.Rows[0]
	res := resp.Resources.Rows[0]
	assert.Equal(t, "_r", res[models.FieldPhantomID])
	assert.Equal(t, "Ann", res["name"])

	require.Len(t, resp.Assignments.Rows, 1)
	a := resp.Assignments.Rows[0]
	assert.Equal(t, task.ID(), a[models.FieldEvent])
	assert.Equal(t, res.ID(), a[models.FieldResource])
	assert.EqualValues(t, 50, a[models.FieldUnits])
	assert.Equal(t, "_a", a[models.FieldPhantomID])
}

func TestSyncGeneratesMissingIDs(t *testing.T) {
	s, _ := newSyncer(t)

	resp := mustSync(t, s, `{"resources": {"added": [{"name": "Bob"}]}}`)
	require.Len(t, resp.Resources.Rows, 1)
	assert.Equal(t, "gen-1", resp.Resources.Rows[0].ID())
}

func TestSyncUpdateMergesAttributes(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"tasks": {"added": [{"id": "t1", "name": "Design", "duration": 3}]}}`)

	resp := mustSync(t, s, `{"tasks": {"updated": [{"id": "t1", "duration": 5}]}}`)
	assert.Nil(t, resp.Tasks)

	snap := mustLoad(t, s)
	require.Len(t, snap.Tasks.Rows, 1)
	task := snap.Tasks.Rows[0]
	assert.Equal(t, "Design", task["name"])
	assert.EqualValues(t, 5, task["duration"])
}

func TestSyncUpdateCreatesMissing(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"resources": {"updated": [{"id": "r1", "name": "Carl"}]}}`)

	snap := mustLoad(t, s)
	require.Len(t, snap.Resources.Rows, 1)
	assert.Equal(t, "Carl", snap.Resources.Rows[0]["name"])
}

func TestSyncAddingTwiceStoresOne(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"tasks": {"added": [{"id": "t1", "name": "Design"}]}}`)
	resp := mustSync(t, s, `{"tasks": {"added": [{"id": "t1", "note": "again"}]}}`)

	row := resp.Tasks.Rows[0]
	assert.Equal(t, "Design", row["name"])
	assert.Equal(t, "again", row["note"])

	snap := mustLoad(t, s)
	assert.Len(t, snap.Tasks.Rows, 1)
}

func TestSyncLargeNumericIDsStayDistinct(t *testing.T) {
	s, _ := newSyncer(t)
	resp := mustSync(t, s, `{"tasks": {"added": [{"id": 1e20, "name": "a"}, {"id": 1e21, "name": "b"}]}}`)
	require.Len(t, resp.Tasks.Rows, 2)
	assert.NotEqual(t, resp.Tasks.Rows[0].ID(), resp.Tasks.Rows[1].ID())

	snap := mustLoad(t, s)
	require.Len(t, snap.Tasks.Rows, 2)
	assert.Equal(t, "a", findRow(snap.Tasks.Rows, "100000000000000000000")["name"])
	assert.Equal(t, "b", findRow(snap.Tasks.Rows, "1000000000000000000000")["name"])
}

func TestSyncNumericAttributeIsNotAPlaceholder(t *testing.T) {
	s, _ := newSyncer(t)
	resp := mustSync(t, s, `{"tasks": {"added": [{"$PhantomId": "5", "name": "a", "duration": 5}]}}`)

	row := resp.Tasks.Rows[0]
	assert.Equal(t, "5", row[models.FieldPhantomID])
	assert.EqualValues(t, 5, row["duration"])
	assert.Equal(t, "gen-1", row.ID())
}

func TestSyncNestedTasks(t *testing.T) {
	s, _ := newSyncer(t)

	resp := mustSync(t, s, `{"tasks": {"added": [
		{"id": "p", "name": "Phase", "children": [{"id": "c", "name": "Step"}]}
	]}}`)
	require.Len(t, resp.Tasks.Rows, 2)
	assert.Equal(t, "p", findRow(resp.Tasks.Rows, "c")[models.FieldParentID])

	snap := mustLoad(t, s)
	require.Len(t, snap.Tasks.Rows, 1)
	root := snap.Tasks.Rows[0]
	assert.Equal(t, "p", root.ID())
	assert.Nil(t, root[models.FieldParentID])
	children := tree.Children(root, models.FieldChildren)
	require.Len(t, children, 1)
	assert.Equal(t, "c", children[0].ID())
	assert.Equal(t, "p", children[0][models.FieldParentID])
}

func TestSyncReparentAndDetach(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"tasks": {"added": [{"id": "a"}, {"id": "b"}, {"id": "c", "parentId": "a"}]}}`)

	mustSync(t, s, `{"tasks": {"updated": [{"id": "c", "parentId": "b"}]}}`)
	snap := mustLoad(t, s)
	b := findRow(snap.Tasks.Rows, "b")
	require.NotNil(t, b)
	require.Len(t, tree.Children(b, models.FieldChildren), 1)
	assert.Empty(t, tree.Children(findRow(snap.Tasks.Rows, "a"), models.FieldChildren))

	mustSync(t, s, `{"tasks": {"updated": [{"id": "c", "parentId": null}]}}`)
	snap = mustLoad(t, s)
	assert.Len(t, snap.Tasks.Rows, 3)
}

func TestSyncRejectsParentCycle(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"tasks": {"added": [{"id": "a"}, {"id": "b", "parentId": "a"}]}}`)

	resp, err := s.Sync(context.Background(), payload(t, `{"tasks": {"updated": [{"id": "a", "parentId": "b"}]}}`))
	require.Error(t, err)
	assert.True(t, syncer.IsReference(err))
	assert.False(t, resp.Success)

	_, err = s.Sync(context.Background(), payload(t, `{"tasks": {"updated": [{"id": "a", "parentId": "a"}]}}`))
	assert.True(t, syncer.IsReference(err))
}

func TestSyncReplacesBaselines(t *testing.T) {
	s, _ := newSyncer(t)
	resp := mustSync(t, s, `{"tasks": {"added": [{"id": "t1", "baselines": [{"startDate": "x"}, {"startDate": "y"}]}]}}`)
	assert.Len(t, resp.Tasks.Rows[0][models.FieldBaselines], 2)

	mustSync(t, s, `{"tasks": {"updated": [{"id": "t1", "baselines": [{"startDate": "z"}]}]}}`)

	snap := mustLoad(t, s)
	baselines := tree.Children(snap.Tasks.Rows[0], models.FieldBaselines)
	require.Len(t, baselines, 1)
	assert.Equal(t, "z", baselines[0]["startDate"])

	mustSync(t, s, `{"tasks": {"updated": [{"id": "t1", "name": "kept"}]}}`)
	snap = mustLoad(t, s)
	assert.Len(t, tree.Children(snap.Tasks.Rows[0], models.FieldBaselines), 1)
}

func TestSyncRemoveCascades(t *testing.T) {
	s, store := newSyncer(t)
	mustSync(t, s, `{
		"tasks": {"added": [{"id": "t1", "baselines": [{"startDate": "x"}]}, {"id": "t2"}]},
		"resources": {"added": [{"id": "r1"}]},
		"assignments": {"added": [{"id": "a1", "event": "t1", "resource": "r1", "units": 100}]},
		"dependencies": {"added": [{"id": "d1", "from": "t1", "to": "t2"}]}
	}`)

	mustSync(t, s, `{"tasks": {"removed": [{"id": "t1"}, {"id": "missing"}]}}`)

	snap := mustLoad(t, s)
	require.Len(t, snap.Tasks.Rows, 1)
	assert.Equal(t, "t2", snap.Tasks.Rows[0].ID())
	assert.Empty(t, snap.Assignments.Rows)
	assert.Empty(t, snap.Dependencies.Rows)
	assert.Len(t, snap.Resources.Rows, 1)

	require.NoError(t, store.View(context.Background(), func(ctx context.Context, r graph.Reader) error {
		nodes, err := r.Nodes(ctx, graph.NodeBaseline)
		require.NoError(t, err)
		assert.Empty(t, nodes)
		return nil
	}))
}

func TestSyncAssignmentUpdateKeepsStoredFields(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"assignments": {"added": [{"id": "a1", "event": "t1", "resource": "r1", "units": 50}]}}`)

	mustSync(t, s, `{"assignments": {"updated": [{"id": "a1", "units": 100}]}}`)
	snap := mustLoad(t, s)
	require.Len(t, snap.Assignments.Rows, 1)
	a := snap.Assignments.Rows[0]
	assert.Equal(t, "t1", a[models.FieldEvent])
	assert.Equal(t, "r1", a[models.FieldResource])
	assert.EqualValues(t, 100, a[models.FieldUnits])

	mustSync(t, s, `{"assignments": {"updated": [{"id": "a1", "resource": "r2"}]}}`)
	snap = mustLoad(t, s)
	a = snap.Assignments.Rows[0]
	assert.Equal(t, "r2", a[models.FieldResource])
	assert.EqualValues(t, 100, a[models.FieldUnits])
}

func TestSyncDependencyUpdateKeepsStoredFields(t *testing.T) {
	s, _ := newSyncer(t)
	mustSync(t, s, `{"dependencies": {"added": [{"id": "d1", "fromTask": "t1", "toTask": "t2", "type": 2, "lag": 1, "lagUnit": "d"}]}}`)

	mustSync(t, s, `{"dependencies": {"updated": [{"id": "d1", "lag": 3}]}}`)
	snap := mustLoad(t, s)
	require.Len(t, snap.Dependencies.Rows, 1)
	d := snap.Dependencies.Rows[0]
	assert.Equal(t, "t1", d[models.FieldFromTask])
	assert.Equal(t, "t2", d[models.FieldToTask])
	assert.EqualValues(t, 2, d[models.FieldType])
	assert.EqualValues(t, 3, d[models.FieldLag])
	assert.Equal(t, "d", d[models.FieldLagUnit])

	// Endpoints referenced only by dependencies exist as bare tasks.
	assert.Len(t, snap.Tasks.Rows, 2)
}

func TestSyncEmptyBuckets(t *testing.T) {
	s, _ := newSyncer(t)
	resp := mustSync(t, s, `{"requestId": "r", "tasks": {"added": []}, "resources": {}}`)
	assert.Nil(t, resp.Tasks)
	assert.Nil(t, resp.Resources)
	assert.Equal(t, "r", resp.RequestID)
}

func TestSyncFailureRollsBack(t *testing.T) {
	s, _ := newSyncer(t)

	resp, err := s.Sync(context.Background(), payload(t, `{
		"requestId": 9,
		"tasks": {"added": [{"id": "t1"}]},
		"dependencies": {"updated": [{"lag": 1}]}
	}`))
	require.Error(t, err)
	assert.True(t, syncer.IsReference(err))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
	assert.EqualValues(t, 9, resp.RequestID)
	assert.Nil(t, resp.Tasks)

	snap := mustLoad(t, s)
	assert.Empty(t, snap.Tasks.Rows)
}

func TestSyncValidation(t *testing.T) {
	s, _ := newSyncer(t)

	for name, body := range map[string]string{
		"entity not an object":  `{"tasks": "x"}`,
		"bucket not an array":   `{"tasks": {"added": {"id": 1}}}`,
		"entry not an object":   `{"resources": {"removed": [1]}}`,
		"child not an object":   `{"tasks": {"added": [{"id": 1, "children": ["x"]}]}}`,
		"baseline not a record": `{"tasks": {"updated": [{"id": 1, "baselines": [2]}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := s.Sync(context.Background(), payload(t, body))
			require.Error(t, err)
			assert.True(t, syncer.IsValidation(err), err.Error())
			assert.False(t, resp.Success)
		})
	}

	_, err := s.Sync(context.Background(), payload(t, `{"tasks": {"added": [1]}}`))
	assert.True(t, errors.Is(err, phantom.ErrMalformedPayload))
}

func TestSyncReadOnlyStore(t *testing.T) {
	store := memory.New()
	s := syncer.New(graph.NewReadOnlyStore(store, func() bool { return true }))

	resp, err := s.Sync(context.Background(), payload(t, `{"tasks": {"added": [{"id": "t1"}]}}`))
	require.ErrorIs(t, err, graph.ErrReadOnly)
	assert.Equal(t, syncer.KindStore, syncer.KindOf(err))
	assert.False(t, resp.Success)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Tasks.Rows)
}

func TestSyncConcurrentPhases(t *testing.T) {
	s, _ := newSyncer(t, syncer.WithConcurrency(true))

	resp := mustSync(t, s, `{
		"tasks": {"added": [{"$PhantomId": "_t1"}, {"$PhantomId": "_t2"}]},
		"resources": {"added": [{"$PhantomId": "_r1"}, {"$PhantomId": "_r2"}]},
		"dependencies": {"added": [{"fromTask": "_t1", "toTask": "_t2"}]},
		"assignments": {"added": [
			{"event": "_t1", "resource": "_r1", "units": 10},
			{"event": "_t2", "resource": "_r2", "units": 20}
		]}
	}`)
	assert.Len(t, resp.Tasks.Rows, 2)
	assert.Len(t, resp.Resources.Rows, 2)
	assert.Len(t, resp.Dependencies.Rows, 1)
	assert.Len(t, resp.Assignments.Rows, 2)

	snap := mustLoad(t, s)
	assert.Len(t, snap.Tasks.Rows, 2)
	assert.Len(t, snap.Resources.Rows, 2)
	assert.Len(t, snap.Assignments.Rows, 2)
}
