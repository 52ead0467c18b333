package models

// Entity keys of a sync request, response and snapshot.
const (
	KeyRequestID    = "requestId"
	KeyTasks        = "tasks"
	KeyResources    = "resources"
	KeyAssignments  = "assignments"
	KeyDependencies = "dependencies"
	KeyCalendars    = "calendars"
	KeyProject      = "project"
)

// Bucket names of a change set.
const (
	BucketAdded   = "added"
	BucketUpdated = "updated"
	BucketRemoved = "removed"
)

// EntityType names the entity kinds a sync request may carry.
type EntityType string

const (
	EntityTask       EntityType = KeyTasks
	EntityResource   EntityType = KeyResources
	EntityAssignment EntityType = KeyAssignments
	EntityDependency EntityType = KeyDependencies
)

// EntityTypes lists the synchronizable entity types in the order their
// change sets are applied.
var EntityTypes = []EntityType{EntityTask, EntityResource, EntityDependency, EntityAssignment}

// ChangeSet holds the added, updated and removed buckets of one entity type.
// A nil bucket was absent from the request; an empty one was present but empty.
type ChangeSet struct {
	Added   []Record `json:"added,omitempty"`
	Updated []Record `json:"updated,omitempty"`
	Removed []Record `json:"removed,omitempty"`
}

// IsZero reports whether no bucket is present.
func (c *ChangeSet) IsZero() bool {
	return c == nil || (c.Added == nil && c.Updated == nil && c.Removed == nil)
}

// SyncRequest is an identifier-resolved change request.
type SyncRequest struct {
	RequestID any
	Changes   map[EntityType]*ChangeSet
}

// Rows wraps a collection the way clients expect it.
type Rows struct {
	Rows []Record `json:"rows"`
}

// NewRows wraps records, never producing a null rows array.
func NewRows(records []Record) *Rows {
	if records == nil {
		records = []Record{}
	}
	return &Rows{Rows: records}
}

// SyncResponse is the result of a sync request.
type SyncResponse struct {
	RequestID    any    `json:"requestId"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Tasks        *Rows  `json:"tasks,omitempty"`
	Resources    *Rows  `json:"resources,omitempty"`
	Assignments  *Rows  `json:"assignments,omitempty"`
	Dependencies *Rows  `json:"dependencies,omitempty"`
}

// SetRows stores the rows produced for an entity type.
func (r *SyncResponse) SetRows(entity EntityType, rows []Record) {
	wrapped := NewRows(rows)
	switch entity {
	case EntityTask:
		r.Tasks = wrapped
	case EntityResource:
		r.Resources = wrapped
	case EntityAssignment:
		r.Assignments = wrapped
	case EntityDependency:
		r.Dependencies = wrapped
	}
}

// Snapshot is the full read-side view of a project.
type Snapshot struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Project      Record `json:"project,omitempty"`
	Calendars    *Rows  `json:"calendars,omitempty"`
	Tasks        *Rows  `json:"tasks,omitempty"`
	Dependencies *Rows  `json:"dependencies,omitempty"`
	Resources    *Rows  `json:"resources,omitempty"`
	Assignments  *Rows  `json:"assignments,omitempty"`
}
