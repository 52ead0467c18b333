package syncer

import (
	"context"
	"io"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/tree"
)

// projectID is the identifier of the project node when the document does not
// name one.
const projectID = "project"

// Document is a full project export: the shape returned by Load and accepted
// by Import.
type Document struct {
	Project      models.Record
	Calendars    []models.Record
	Tasks        []models.Record
	Resources    []models.Record
	Dependencies []models.Record
	Assignments  []models.Record
}

// ImportStats counts what an import stored.
type ImportStats struct {
	Project      bool `json:"project"`
	Calendars    int  `json:"calendars"`
	Intervals    int  `json:"intervals"`
	Tasks        int  `json:"tasks"`
	Resources    int  `json:"resources"`
	Dependencies int  `json:"dependencies"`
	Assignments  int  `json:"assignments"`
}

// ReadDocument decodes a project document from JSON.
func ReadDocument(r io.Reader) (Document, error) {
	rec, err := models.DecodeJSON(r)
	if err != nil {
		return Document{}, &Error{Kind: KindValidation, Op: "import.decode", Err: err}
	}
	return ParseDocument(rec)
}

// ParseDocument converts a decoded document. Collections are wrapped as
// {"rows": [...]}; a missing collection is empty.
func ParseDocument(rec models.Record) (Document, error) {
	const op = "import.parse"

	var doc Document
	if v, ok := rec[models.KeyProject]; ok && v != nil {
		project, ok := models.AsRecord(v)
		if !ok {
			return doc, validationErrorf(op, "%s must be an object", models.KeyProject)
		}
		doc.Project = project
	}

	for key, dst := range map[string]*[]models.Record{
		models.KeyCalendars:    &doc.Calendars,
		models.KeyTasks:        &doc.Tasks,
		models.KeyResources:    &doc.Resources,
		models.KeyDependencies: &doc.Dependencies,
		models.KeyAssignments:  &doc.Assignments,
	} {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		wrapped, ok := models.AsRecord(v)
		if !ok {
			return doc, validationErrorf(op, "%s must be an object with rows", key)
		}
		rows, err := parseBucket(models.EntityType(key), "rows", wrapped["rows"])
		if err != nil {
			return doc, err
		}
		*dst = rows
	}
	return doc, nil
}

// Import stores a whole document in one write transaction.
//
// The project is merged, calendars and their intervals are stored with their
// hierarchy, tasks and resources are merged by id, dependencies are merged
// and assignments are created. Importing the same document twice leaves the
// store as after the first import.
func (s *Syncer) Import(ctx context.Context, doc Document) (ImportStats, error) {
	var stats ImportStats
	err := s.store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		tracked := graph.Track(tx)

		if doc.Project != nil {
			id := doc.Project.ID()
			if id == "" {
				id = projectID
			}
			if err := tracked.MergeNode(ctx, graph.Ref(graph.NodeProject, id), attributes(doc.Project)); err != nil {
				return storeError("import.project", err)
			}
			stats.Project = true
		}

		if err := s.importCalendars(ctx, tracked, "", doc.Calendars, &stats); err != nil {
			return err
		}

		if len(doc.Tasks) > 0 {
			if err := s.drivers[models.EntityTask].Update(ctx, tracked, doc.Tasks); err != nil {
				return err
			}
			flat, _ := tree.Flatten(doc.Tasks)
			stats.Tasks = len(flat)
		}
		if len(doc.Resources) > 0 {
			if err := s.drivers[models.EntityResource].Update(ctx, tracked, doc.Resources); err != nil {
				return err
			}
			stats.Resources = len(doc.Resources)
		}
		if len(doc.Dependencies) > 0 {
			if _, err := s.drivers[models.EntityDependency].Create(ctx, tracked, doc.Dependencies); err != nil {
				return err
			}
			stats.Dependencies = len(doc.Dependencies)
		}
		if len(doc.Assignments) > 0 {
			if _, err := s.drivers[models.EntityAssignment].Create(ctx, tracked, doc.Assignments); err != nil {
				return err
			}
			stats.Assignments = len(doc.Assignments)
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, storeError("import", err)
	}

	s.log.Info().Interface("stats", stats).Msg("import finished")
	return stats, nil
}

// importCalendars stores a calendar forest under parent, replacing the
// intervals of every calendar it names.
func (s *Syncer) importCalendars(ctx context.Context, tx graph.Tx, parent string, calendars []models.Record, stats *ImportStats) error {
	const op = "import.calendars"

	for _, cal := range calendars {
		id := idOrNew(cal, s.newID)
		ref := graph.Ref(graph.NodeCalendar, id)

		props := attributes(cal, models.FieldChildren, models.FieldIntervals, models.FieldParentID)
		if err := tx.MergeNode(ctx, ref, props); err != nil {
			return storeError(op, err)
		}
		if parent != "" {
			if err := tx.MergeEdge(ctx, graph.Edge{
				Kind: graph.EdgeHasChild,
				ID:   id,
				From: graph.Ref(graph.NodeCalendar, parent),
				To:   ref,
			}); err != nil {
				return storeError(op, err)
			}
		}

		if cal[models.FieldIntervals] != nil {
			n, err := s.replaceIntervals(ctx, tx, ref, tree.Children(cal, models.FieldIntervals))
			if err != nil {
				return storeError(op, err)
			}
			stats.Intervals += n
		}
		stats.Calendars++

		if err := s.importCalendars(ctx, tx, id, tree.Children(cal, models.FieldChildren), stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) replaceIntervals(ctx context.Context, tx graph.Tx, calendar graph.NodeRef, intervals []models.Record) (int, error) {
	existing, err := tx.OutEdges(ctx, graph.EdgeHasInterval, calendar)
	if err != nil {
		return 0, err
	}
	for _, e := range existing {
		if err := tx.DeleteNode(ctx, e.To); err != nil {
			return 0, err
		}
	}

	for i, iv := range intervals {
		ref := graph.Ref(graph.NodeInterval, s.newID())
		if err := tx.MergeNode(ctx, ref, attributes(iv)); err != nil {
			return 0, err
		}
		if err := tx.MergeEdge(ctx, graph.Edge{
			Kind:  graph.EdgeHasInterval,
			ID:    ref.ID,
			From:  calendar,
			To:    ref,
			Props: graph.Props{orderProp: i},
		}); err != nil {
			return 0, err
		}
	}
	return len(intervals), nil
}

// Export returns the current project as a document Import accepts.
func (s *Syncer) Export(ctx context.Context) (models.Record, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return SnapshotDocument(snap), nil
}

// SnapshotDocument converts a loaded snapshot into an import document.
func SnapshotDocument(snap models.Snapshot) models.Record {
	doc := models.Record{
		models.KeyCalendars:    nonNilRows(snap.Calendars),
		models.KeyTasks:        nonNilRows(snap.Tasks),
		models.KeyDependencies: nonNilRows(snap.Dependencies),
		models.KeyResources:    nonNilRows(snap.Resources),
		models.KeyAssignments:  nonNilRows(snap.Assignments),
	}
	if snap.Project != nil {
		doc[models.KeyProject] = snap.Project
	}
	return doc
}

func nonNilRows(rows *models.Rows) *models.Rows {
	if rows == nil {
		return models.NewRows(nil)
	}
	return rows
}
