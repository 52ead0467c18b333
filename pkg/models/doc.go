// Package models defines the records exchanged between scheduling clients and
// the ganttsync backend.
//
// Scheduling entities are attribute sets whose fields are mostly opaque to the
// synchronization engine, so they travel as [Record] values (JSON objects)
// rather than fixed structs. The engine only interprets a handful of reserved
// fields:
//
//   - [FieldID]: the stable identifier of a record within its kind
//   - [FieldPhantomID]: the client-generated placeholder marker
//   - [FieldParentID] and [FieldChildren]: the task hierarchy
//   - [FieldBaselines]: baseline snapshots exclusively owned by a task
//   - [FieldIntervals]: intervals exclusively owned by a calendar
//
// # Identifiers
//
// Clients may send identifiers as JSON strings or integral numbers. All
// comparisons go through [IDString], which yields the canonical string form
// used as the graph key, so `1` and `"1"` address the same record.
//
// # Wire Shapes
//
// [SyncRequest] and [SyncResponse] model the write path, [Snapshot] the read
// path. Every collection in a response is wrapped as `{"rows": [...]}` by
// [Rows].
package models
