package store

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/model"
)

// MergeDocument overlays patch onto existing at the top level: every key of
// patch replaces the key of the same name, other keys are kept. changed is
// false when the merge leaves existing as it was. Both sides must be decoded
// JSON values for the comparison to hold.
func MergeDocument(existing, patch map[string]any) (merged map[string]any, changed bool) {
	merged = make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		old, ok := existing[k]
		if !ok || !reflect.DeepEqual(old, v) {
			changed = true
		}
		merged[k] = v
	}
	return merged, changed
}

// encodeRecord marshals a record as a JSON document.
func encodeRecord(rec model.Record) ([]byte, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal record")
	}
	return doc, nil
}

// decodeDocument unmarshals a stored document keeping numbers exact.
func decodeDocument(doc []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(doc) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, eris.Wrap(err, "store: decode document")
	}
	return out, nil
}

// normalizeRecord converts a record to the same JSON value tree a stored
// document decodes to, so that MergeDocument compares like with like.
func normalizeRecord(rec model.Record) ([]byte, map[string]any, error) {
	doc, err := encodeRecord(rec)
	if err != nil {
		return nil, nil, err
	}
	m, err := decodeDocument(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, m, nil
}

func requireCeref(rec model.Record) (string, error) {
	ceref, ok := rec.Ceref()
	if !ok {
		return "", &crawl.MissingKeyError{}
	}
	return ceref, nil
}
