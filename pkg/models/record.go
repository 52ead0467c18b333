package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Reserved record fields.
const (
	FieldID        = "id"
	FieldPhantomID = "$PhantomId"
	FieldParentID  = "parentId"
	FieldChildren  = "children"
	FieldBaselines = "baselines"
	FieldIntervals = "intervals"
)

// Assignment and dependency reference fields.
const (
	FieldEvent    = "event"
	FieldResource = "resource"
	FieldUnits    = "units"

	FieldFrom     = "from"
	FieldTo       = "to"
	FieldFromTask = "fromTask"
	FieldToTask   = "toTask"
	FieldType     = "type"
	FieldLag      = "lag"
	FieldLagUnit  = "lagUnit"
)

// Record is a single entity as a JSON object.
type Record map[string]any

// ID returns the canonical identifier of the record, or "" when it has none.
func (r Record) ID() string {
	id, _ := IDString(r[FieldID])
	return id
}

// PhantomID returns the placeholder marker of the record, if any.
func (r Record) PhantomID() (any, bool) {
	v, ok := r[FieldPhantomID]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether the record contains key, even with a null value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return CloneValue(map[string]any(r)).(map[string]any)
}

// Without returns a shallow copy of the record without the given keys.
func (r Record) Without(keys ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Merge returns a new record holding base overlaid with every key of over.
func Merge(base, over Record) Record {
	out := make(Record, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// CloneValue deep copies a JSON-shaped value. Records are returned as
// map[string]any so that nested values keep a single dynamic type.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return CloneValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []Record:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// AsRecord converts a decoded JSON object into a Record.
func AsRecord(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, true
	case map[string]any:
		return Record(t), true
	default:
		return nil, false
	}
}

// IDString returns the canonical string form of an identifier value.
// Integral numbers are formatted without a fractional part so that numeric
// and string identifiers address the same key.
func IDString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case json.Number:
		s := t.String()
		return s, s != ""
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		if t == math.Trunc(t) && t >= math.MinInt64 && t < math.MaxInt64 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		s := t.String()
		return s, s != ""
	default:
		return "", false
	}
}
