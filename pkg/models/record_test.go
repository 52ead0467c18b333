package models_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/ganttsync/pkg/models"
)

func TestIDString(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{in: "abc", want: "abc", ok: true},
		{in: "", want: "", ok: false},
		{in: nil, want: "", ok: false},
		{in: int64(7), want: "7", ok: true},
		{in: 7, want: "7", ok: true},
		{in: float64(12), want: "12", ok: true},
		{in: 1.5, want: "1.5", ok: true},
		{in: 1e20, want: "100000000000000000000", ok: true},
		{in: 1e21, want: "1000000000000000000000", ok: true},
		{in: -1e19, want: "-10000000000000000000", ok: true},
		{in: json.Number("42"), want: "42", ok: true},
		{in: []any{1}, want: "", ok: false},
	}
	for _, c := range cases {
		got, ok := models.IDString(c.in)
		assert.Equal(t, c.want, got, "input %#v", c.in)
		assert.Equal(t, c.ok, ok, "input %#v", c.in)
	}
}

func TestDecodeJSONNormalizesNumbers(t *testing.T) {
	rec, err := models.DecodeJSON(strings.NewReader(`{"id": 1, "units": 50.5, "rows": [{"id": 2}]}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec["id"])
	assert.Equal(t, 50.5, rec["units"])
	rows := rec["rows"].([]any)
	assert.Equal(t, int64(2), rows[0].(map[string]any)["id"])
	assert.Equal(t, "1", rec.ID())
}

func TestDecodeJSONRejectsNonObject(t *testing.T) {
	_, err := models.DecodeJSON(strings.NewReader(`[1, 2]`))
	require.ErrorIs(t, err, models.ErrNotObject)

	_, err = models.DecodeJSON(strings.NewReader(`{"id":`))
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	orig := models.Record{
		"id":        "t1",
		"baselines": []any{map[string]any{"startDate": "2024-01-01"}},
	}
	cp := orig.Clone()
	cp["baselines"].([]any)[0].(map[string]any)["startDate"] = "changed"

	assert.Equal(t, "2024-01-01", orig["baselines"].([]any)[0].(map[string]any)["startDate"])
}

func TestMergeAndWithout(t *testing.T) {
	base := models.Record{"id": "r1", "name": "old", "city": "Oslo"}
	merged := models.Merge(base, models.Record{"name": "new"})

	assert.Equal(t, models.Record{"id": "r1", "name": "new", "city": "Oslo"}, merged)
	assert.Equal(t, "old", base["name"])
	assert.Equal(t, models.Record{"id": "r1"}, merged.Without("name", "city"))
}

func TestSyncResponseOmitsAbsentEntities(t *testing.T) {
	resp := models.SyncResponse{RequestID: int64(3), Success: true}
	resp.SetRows(models.EntityTask, nil)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":3,"success":true,"tasks":{"rows":[]}}`, string(data))
}
