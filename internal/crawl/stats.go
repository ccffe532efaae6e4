package crawl

import "sync/atomic"

// Stats counts what a spider did during one run. Counters are safe for
// concurrent use.
type Stats struct {
	Partitions       atomic.Int64
	EmptyPartitions  atomic.Int64
	FailedPartitions atomic.Int64
	Entities         atomic.Int64
	Unclassified     atomic.Int64
	FacetErrors      atomic.Int64
	Emitted          atomic.Int64
	EmitErrors       atomic.Int64
}

// Map returns the counters as a plain map for the run log.
func (s *Stats) Map() map[string]any {
	return map[string]any{
		"partitions":        s.Partitions.Load(),
		"empty_partitions":  s.EmptyPartitions.Load(),
		"failed_partitions": s.FailedPartitions.Load(),
		"entities":          s.Entities.Load(),
		"unclassified":      s.Unclassified.Load(),
		"facet_errors":      s.FacetErrors.Load(),
		"emitted":           s.Emitted.Load(),
		"emit_errors":       s.EmitErrors.Load(),
	}
}
