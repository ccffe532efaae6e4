package reconcile

import (
	"sync"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/model"
)

// Accumulator is the record under construction for one entity. Facet
// goroutines for that entity merge into it concurrently, each writing its own
// field.
type Accumulator struct {
	gate  Gate
	ceref string

	mu      sync.Mutex
	rec     model.Record
	emitted bool
}

// NewAccumulator seeds an accumulator with the stub's identity fields.
func NewAccumulator(stub model.EntityStub, gate Gate) *Accumulator {
	return &Accumulator{
		gate:  gate,
		ceref: stub.Ceref,
		rec:   model.NewRecord(stub),
	}
}

// Merge writes value under field and re-checks the gate. It returns a
// snapshot of the record and true on the merge that completes it, and only
// on that merge. Writing a field that is already present fails with
// FieldConflictError and leaves the record unchanged.
func (a *Accumulator) Merge(field string, value any) (model.Record, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rec.Has(field) {
		return nil, false, &crawl.FieldConflictError{Ceref: a.ceref, Field: field}
	}
	a.rec[field] = value

	if a.emitted || !a.gate.Complete(a.rec) {
		return nil, false, nil
	}
	a.emitted = true
	return a.rec.Clone(), true, nil
}

// Missing lists the required fields still outstanding.
func (a *Accumulator) Missing() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gate.Missing(a.rec)
}

// Emitted reports whether the record has been released.
func (a *Accumulator) Emitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emitted
}

// Ceref returns the entity identifier.
func (a *Accumulator) Ceref() string { return a.ceref }
