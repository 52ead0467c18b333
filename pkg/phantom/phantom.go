// Package phantom resolves client-generated placeholder identifiers.
//
// Scheduling clients create records offline and tag each new record with a
// placeholder marker (the "$PhantomId" field). The same placeholder value is
// reused wherever another record refers to the new one, for example a new
// dependency pointing at a new task. Before a request is persisted every
// distinct placeholder is mapped to one freshly generated stable identifier,
// and every occurrence of the placeholder as a value is rewritten to it.
//
// Resolution is a pure transformation: the input payload is never modified
// and the placeholder mapping lives only for the duration of one call.
package phantom

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/surrealdb/ganttsync/pkg/models"
)

// ErrMalformedPayload is returned when a payload cannot be resolved because
// its shape is not what a change request looks like.
var ErrMalformedPayload = errors.New("malformed payload")

// DefaultCollections are the keys whose arrays must hold only objects.
var DefaultCollections = []string{
	models.BucketAdded,
	models.BucketUpdated,
	models.BucketRemoved,
	models.FieldChildren,
	models.FieldBaselines,
	models.FieldIntervals,
	"rows",
}

// Mapping maps placeholder values to the stable identifiers generated for them.
// Keys are the canonical string form of the placeholder.
type Mapping map[string]string

// placeholder is a marker value together with its JSON type. A numeric
// placeholder never matches a string of the same digits, and the reverse.
type placeholder struct {
	value   string
	numeric bool
}

func placeholderOf(v any) (placeholder, bool) {
	if isContainer(v) {
		return placeholder{}, false
	}
	s, ok := models.IDString(v)
	if !ok {
		return placeholder{}, false
	}
	_, str := v.(string)
	return placeholder{value: s, numeric: !str}, true
}

// Resolver rewrites placeholder identifiers. The zero value is not usable;
// create one with New.
type Resolver struct {
	marker      string
	idField     string
	collections map[string]bool
	generate    func() string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGenerator sets the function producing stable identifiers.
func WithGenerator(fn func() string) Option {
	return func(r *Resolver) {
		r.generate = fn
	}
}

// WithMarker overrides the placeholder marker field.
func WithMarker(field string) Option {
	return func(r *Resolver) {
		r.marker = field
	}
}

// WithCollections overrides the keys whose arrays must contain only objects.
func WithCollections(keys ...string) Option {
	return func(r *Resolver) {
		r.collections = make(map[string]bool, len(keys))
		for _, k := range keys {
			r.collections[k] = true
		}
	}
}

// New creates a Resolver using the "$PhantomId" marker and random UUIDs.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		marker:   models.FieldPhantomID,
		idField:  models.FieldID,
		generate: uuid.NewString,
	}
	WithCollections(DefaultCollections...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves payload with a default Resolver.
func Resolve(payload models.Record) (models.Record, Mapping, error) {
	return New().Resolve(payload)
}

// Resolve returns a copy of payload in which every placeholder value has been
// replaced by its stable identifier, together with the mapping that was used.
// Marker fields keep their placeholder value so that callers can correlate
// response rows with the records the client sent.
func (r *Resolver) Resolve(payload models.Record) (models.Record, Mapping, error) {
	if payload == nil {
		return nil, nil, fmt.Errorf("%w: payload is empty", ErrMalformedPayload)
	}

	out := models.CloneValue(payload).(map[string]any)
	stable := map[placeholder]string{}

	if err := r.collect(out, "", stable); err != nil {
		return nil, nil, err
	}
	r.replace(out, stable)

	mapping := make(Mapping, len(stable))
	for p, id := range stable {
		mapping[p.value] = id
	}
	return models.Record(out), mapping, nil
}

// collect registers the placeholder of every object in v and assigns
// provisional identifiers. Keys are visited in sorted order so that the
// generator is called in a deterministic sequence.
func (r *Resolver) collect(v any, path string, mapping map[placeholder]string) error {
	switch t := v.(type) {
	case map[string]any:
		return r.collectObject(t, path, mapping)
	case []any:
		for i, e := range t {
			if err := r.collect(e, fmt.Sprintf("%s[%d]", path, i), mapping); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) collectObject(obj map[string]any, path string, mapping map[placeholder]string) error {
	for _, key := range sortedKeys(obj) {
		child := obj[key]
		childPath := joinPath(path, key)

		if arr, ok := child.([]any); ok && r.collections[key] {
			for i, e := range arr {
				if _, isObj := e.(map[string]any); !isObj {
					return fmt.Errorf("%w: %s[%d] is %s, expected an object", ErrMalformedPayload, childPath, i, describe(e))
				}
			}
		} else if child != nil && r.collections[key] && !isContainer(child) {
			return fmt.Errorf("%w: %s is %s, expected an array", ErrMalformedPayload, childPath, describe(child))
		}

		if err := r.collect(child, childPath, mapping); err != nil {
			return err
		}
	}

	raw, ok := obj[r.marker]
	if !ok || raw == nil {
		return nil
	}
	phantom, ok := placeholderOf(raw)
	if !ok {
		return fmt.Errorf("%w: %s is %s, expected a string", ErrMalformedPayload, joinPath(path, r.marker), describe(raw))
	}

	if _, seen := mapping[phantom]; !seen {
		mapping[phantom] = r.generate()
	}

	if !hasID(obj[r.idField]) && !r.usedAsValue(obj, phantom) {
		obj[r.idField] = raw
	}
	return nil
}

// usedAsValue reports whether a sibling attribute already holds the placeholder.
func (r *Resolver) usedAsValue(obj map[string]any, phantom placeholder) bool {
	for key, v := range obj {
		if key == r.marker {
			continue
		}
		if p, ok := placeholderOf(v); ok && p == phantom {
			return true
		}
	}
	return false
}

// replace rewrites every scalar matching a placeholder, except marker values.
func (r *Resolver) replace(v any, mapping map[placeholder]string) {
	switch t := v.(type) {
	case map[string]any:
		for key, e := range t {
			if isContainer(e) {
				r.replace(e, mapping)
				continue
			}
			if key == r.marker {
				continue
			}
			if stable, ok := lookup(e, mapping); ok {
				t[key] = stable
			}
		}
	case []any:
		for i, e := range t {
			if isContainer(e) {
				r.replace(e, mapping)
				continue
			}
			if stable, ok := lookup(e, mapping); ok {
				t[i] = stable
			}
		}
	}
}

func lookup(v any, mapping map[placeholder]string) (string, bool) {
	p, ok := placeholderOf(v)
	if !ok {
		return "", false
	}
	stable, ok := mapping[p]
	return stable, ok
}

func hasID(v any) bool {
	_, ok := models.IDString(v)
	return ok
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	default:
		return "a number"
	}
}
