package crawl

import (
	"errors"
	"fmt"
	"strings"
)

// CountMismatchError reports a listing whose item count disagrees with the
// total it declares. The whole partition is discarded.
type CountMismatchError struct {
	Partition string
	Received  int
	Declared  int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("count mismatch for partition %q: received %d of %d", e.Partition, e.Received, e.Declared)
}

// UnclassifiedEntityError reports a listing item with none of the category
// flags set.
type UnclassifiedEntityError struct {
	Ceref string
}

func (e *UnclassifiedEntityError) Error() string {
	return fmt.Sprintf("cannot determine category of entity %q", e.Ceref)
}

// BlobNotFoundError reports a facet page without the embedded data blob.
type BlobNotFoundError struct {
	Facet string
	URL   string
}

func (e *BlobNotFoundError) Error() string {
	return fmt.Sprintf("facet %s: data blob not found in %s", e.Facet, e.URL)
}

// UnhandledShapeError reports a blob cardinality that the facet's
// multiplicity policy does not cover.
type UnhandledShapeError struct {
	Facet    string
	Elements int
	Fields   int
	Multiple bool
}

func (e *UnhandledShapeError) Error() string {
	return fmt.Sprintf("facet %s: unhandled shape (elements=%d fields=%d multiple=%t)", e.Facet, e.Elements, e.Fields, e.Multiple)
}

// SchemaDriftError reports a table whose header row changed upstream.
type SchemaDriftError struct {
	URL  string
	Got  []string
	Want []string
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("table headers changed at %s: got [%s], want [%s]",
		e.URL, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// MissingKeyError reports a record without a ceref at persistence time.
type MissingKeyError struct {
	Source string
}

func (e *MissingKeyError) Error() string {
	if e.Source == "" {
		return "record has no ceref"
	}
	return fmt.Sprintf("record from %s has no ceref", e.Source)
}

// FieldConflictError reports a second write to a field of the same record.
type FieldConflictError struct {
	Ceref string
	Field string
}

func (e *FieldConflictError) Error() string {
	return fmt.Sprintf("record %s: field %q written twice", e.Ceref, e.Field)
}

// Kind names the taxonomy class of err for log fields.
func Kind(err error) string {
	var (
		countMismatch *CountMismatchError
		unclassified  *UnclassifiedEntityError
		blobNotFound  *BlobNotFoundError
		shape         *UnhandledShapeError
		drift         *SchemaDriftError
		missingKey    *MissingKeyError
		conflict      *FieldConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &countMismatch):
		return "count_mismatch"
	case errors.As(err, &unclassified):
		return "unclassified_entity"
	case errors.As(err, &blobNotFound):
		return "blob_not_found"
	case errors.As(err, &shape):
		return "unhandled_shape"
	case errors.As(err, &drift):
		return "schema_drift"
	case errors.As(err, &missingKey):
		return "missing_key"
	case errors.As(err, &conflict):
		return "field_conflict"
	default:
		return "other"
	}
}
