package syncer

import (
	"context"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/tree"
)

// calendarTree nests calendars. The parent field only exists while building.
var calendarTree = tree.Codec{
	IDField:       models.FieldID,
	ParentField:   models.FieldParentID,
	ChildrenField: models.FieldChildren,
}

// Load reads the whole project out of the store in one read transaction.
//
// Tasks and calendars are returned nested. Every task row carries its parentId
// and its baselines; every calendar carries its children and its intervals,
// both always present as arrays.
func (s *Syncer) Load(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.store.View(ctx, func(ctx context.Context, r graph.Reader) error {
		var err error
		if snap.Project, err = readProject(ctx, r); err != nil {
			return err
		}
		calendars, err := readCalendars(ctx, r)
		if err != nil {
			return err
		}
		tasks, err := s.readTasks(ctx, r)
		if err != nil {
			return err
		}
		dependencies, err := readDependencies(ctx, r)
		if err != nil {
			return err
		}
		resources, err := readResources(ctx, r)
		if err != nil {
			return err
		}
		assignments, err := readAssignments(ctx, r)
		if err != nil {
			return err
		}

		snap.Calendars = models.NewRows(calendars)
		snap.Tasks = models.NewRows(tasks)
		snap.Dependencies = models.NewRows(dependencies)
		snap.Resources = models.NewRows(resources)
		snap.Assignments = models.NewRows(assignments)
		return nil
	})
	if err != nil {
		err = storeError("load", err)
		return models.Snapshot{Message: err.Error()}, err
	}
	snap.Success = true
	return snap, nil
}

func readProject(ctx context.Context, r graph.Reader) (models.Record, error) {
	nodes, err := r.Nodes(ctx, graph.NodeProject)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return row(nodes[0].ID, nodes[0].Props), nil
}

func (s *Syncer) readTasks(ctx context.Context, r graph.Reader) ([]models.Record, error) {
	nodes, err := r.Nodes(ctx, graph.NodeTask)
	if err != nil {
		return nil, err
	}
	parents, err := r.Edges(ctx, graph.EdgeParentTask)
	if err != nil {
		return nil, err
	}
	parentOf := make(map[string]string, len(parents))
	for _, e := range parents {
		parentOf[e.From.ID] = e.To.ID
	}
	baselines, err := ownedRecords(ctx, r, graph.EdgeHasBaseline, graph.NodeBaseline)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	rows := make([]models.Record, 0, len(nodes))
	var orphans []string
	for _, n := range nodes {
		out := row(n.ID, n.Props)
		out[models.FieldParentID] = nil
		if parent, ok := parentOf[n.ID]; ok {
			out[models.FieldParentID] = parent
			if !known[parent] {
				orphans = append(orphans, n.ID)
			}
		}
		out[models.FieldBaselines] = nonNil(baselines[n.ID])
		rows = append(rows, out)
	}
	if len(orphans) > 0 {
		s.log.Debug().Strs("tasks", orphans).Msg("dropping tasks whose parent is missing")
	}
	return tree.Build(rows), nil
}

func readCalendars(ctx context.Context, r graph.Reader) ([]models.Record, error) {
	nodes, err := r.Nodes(ctx, graph.NodeCalendar)
	if err != nil {
		return nil, err
	}
	children, err := r.Edges(ctx, graph.EdgeHasChild)
	if err != nil {
		return nil, err
	}
	parentOf := make(map[string]string, len(children))
	for _, e := range children {
		parentOf[e.To.ID] = e.From.ID
	}
	intervals, err := ownedRecords(ctx, r, graph.EdgeHasInterval, graph.NodeInterval)
	if err != nil {
		return nil, err
	}

	rows := make([]models.Record, 0, len(nodes))
	for _, n := range nodes {
		out := row(n.ID, n.Props)
		if parent, ok := parentOf[n.ID]; ok {
			out[models.FieldParentID] = parent
		}
		out[models.FieldIntervals] = nonNil(intervals[n.ID])
		rows = append(rows, out)
	}
	forest := calendarTree.Build(rows)
	dropParents(forest)
	return forest, nil
}

// dropParents removes the build-time parent field from a calendar forest.
func dropParents(forest []models.Record) {
	for _, node := range forest {
		delete(node, models.FieldParentID)
		dropParents(tree.Children(node, models.FieldChildren))
	}
}

// ownedRecords groups the properties of the records owned through kind by
// their owner, in stored order. Identifiers of owned records are not exposed.
func ownedRecords(ctx context.Context, r graph.Reader, kind graph.EdgeKind, target graph.NodeKind) (map[string][]models.Record, error) {
	edges, err := r.Edges(ctx, kind)
	if err != nil {
		return nil, err
	}
	nodes, err := r.Nodes(ctx, target)
	if err != nil {
		return nil, err
	}
	props := make(map[string]graph.Props, len(nodes))
	for _, n := range nodes {
		props[n.ID] = n.Props
	}

	sortByOrder(edges)
	owned := map[string][]models.Record{}
	for _, e := range edges {
		p, ok := props[e.To.ID]
		if !ok {
			continue
		}
		owned[e.From.ID] = append(owned[e.From.ID], models.Record(p.Clone()))
	}
	return owned, nil
}

func readDependencies(ctx context.Context, r graph.Reader) ([]models.Record, error) {
	edges, err := r.Edges(ctx, graph.EdgeDependsOn)
	if err != nil {
		return nil, err
	}
	rows := make([]models.Record, 0, len(edges))
	for _, e := range edges {
		out := row(e.ID, e.Props)
		out[models.FieldFrom] = e.From.ID
		out[models.FieldTo] = e.To.ID
		out[models.FieldFromTask] = e.From.ID
		out[models.FieldToTask] = e.To.ID
		rows = append(rows, out)
	}
	return rows, nil
}

func readResources(ctx context.Context, r graph.Reader) ([]models.Record, error) {
	nodes, err := r.Nodes(ctx, graph.NodeResource)
	if err != nil {
		return nil, err
	}
	rows := make([]models.Record, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, row(n.ID, n.Props))
	}
	return rows, nil
}

func readAssignments(ctx context.Context, r graph.Reader) ([]models.Record, error) {
	edges, err := r.Edges(ctx, graph.EdgeAssignedTo)
	if err != nil {
		return nil, err
	}
	rows := make([]models.Record, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, assignmentRow(e.ID, e.From.ID, e.To.ID, e.Props))
	}
	return rows, nil
}

func nonNil(rows []models.Record) []models.Record {
	if rows == nil {
		return []models.Record{}
	}
	return rows
}
