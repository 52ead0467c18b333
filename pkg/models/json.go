package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned by DecodeJSON when the document is not a JSON object.
var ErrNotObject = errors.New("document is not a JSON object")

// DecodeJSON reads a single JSON object from r. Numbers are decoded as int64
// when integral and float64 otherwise, so identifiers keep their exact value.
func DecodeJSON(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	rec, ok := AsRecord(normalize(raw))
	if !ok {
		return nil, ErrNotObject
	}
	return rec, nil
}

// DecodeJSONBytes is DecodeJSON over a byte slice.
func DecodeJSONBytes(data []byte) (Record, error) {
	return DecodeJSON(bytes.NewReader(data))
}

// Normalize converts json.Number values nested anywhere in v into int64 or
// float64.
func Normalize(v any) any {
	return normalize(v)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case Record:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return map[string]any(t)
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
