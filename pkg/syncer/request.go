package syncer

import (
	"github.com/surrealdb/ganttsync/pkg/models"
)

// ParseRequest converts an identifier-resolved payload into a typed request.
// An entity key that is present must hold an object whose buckets, when
// present, are arrays of objects. Absent and null keys are skipped.
func ParseRequest(payload models.Record) (*models.SyncRequest, error) {
	if payload == nil {
		return nil, validationErrorf("parse", "request body is empty")
	}

	req := &models.SyncRequest{
		RequestID: payload[models.KeyRequestID],
		Changes:   map[models.EntityType]*models.ChangeSet{},
	}

	for _, entity := range models.EntityTypes {
		raw, ok := payload[string(entity)]
		if !ok || raw == nil {
			continue
		}
		obj, ok := models.AsRecord(raw)
		if !ok {
			return nil, validationErrorf("parse", "%s must be an object", entity)
		}

		var cs models.ChangeSet
		for _, bucket := range []struct {
			name string
			dst  *[]models.Record
		}{
			{models.BucketAdded, &cs.Added},
			{models.BucketUpdated, &cs.Updated},
			{models.BucketRemoved, &cs.Removed},
		} {
			records, err := parseBucket(entity, bucket.name, obj[bucket.name])
			if err != nil {
				return nil, err
			}
			*bucket.dst = records
		}
		req.Changes[entity] = &cs
	}
	return req, nil
}

func parseBucket(entity models.EntityType, bucket string, raw any) ([]models.Record, error) {
	if raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, validationErrorf("parse", "%s.%s must be an array", entity, bucket)
	}
	out := make([]models.Record, 0, len(arr))
	for i, e := range arr {
		rec, ok := models.AsRecord(e)
		if !ok {
			return nil, validationErrorf("parse", "%s.%s[%d] must be an object", entity, bucket, i)
		}
		out = append(out, rec)
	}
	return out, nil
}
