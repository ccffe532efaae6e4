package sfc

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/extract"
	"github.com/sells-group/firmcrawl/internal/fetcher"
	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/reconcile"
)

// DefaultBaseURL is the root of the public register.
const DefaultBaseURL = "https://apps.sfc.hk/publicregWeb"

// Options configures a Spider.
type Options struct {
	BaseURL              string
	Partitions           []string
	Search               SearchOptions
	PartitionConcurrency int
	FacetConcurrency     int
	// Gate decides when an entity is complete. Defaults to reconcile.SFCGate.
	Gate *reconcile.Gate
}

// DefaultPartitions returns the name initials A to Z.
func DefaultPartitions() []string {
	out := make([]string, 0, 26)
	for c := 'A'; c <= 'Z'; c++ {
		out = append(out, string(c))
	}
	return out
}

// Spider discovers licensed corporations by name initial, fetches every
// facet page of each one and emits a record once all facets have merged.
type Spider struct {
	fetch  fetcher.Fetcher
	facets *extract.FacetTable
	opts   Options
	gate   reconcile.Gate
}

// NewSpider creates a registry spider. A nil facet table means DefaultFacets.
func NewSpider(f fetcher.Fetcher, facets *extract.FacetTable, opts Options) *Spider {
	if facets == nil {
		facets = DefaultFacets()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if len(opts.Partitions) == 0 {
		opts.Partitions = DefaultPartitions()
	}
	if opts.Search == (SearchOptions{}) {
		opts.Search = DefaultSearchOptions()
	}
	if opts.PartitionConcurrency <= 0 {
		opts.PartitionConcurrency = 4
	}
	if opts.FacetConcurrency <= 0 {
		opts.FacetConcurrency = 8
	}
	gate := reconcile.SFCGate
	if opts.Gate != nil {
		gate = *opts.Gate
	}
	return &Spider{fetch: f, facets: facets, opts: opts, gate: gate}
}

// Name implements crawl.Spider.
func (s *Spider) Name() string { return "sfc" }

// Discover posts the listing search for one partition.
func (s *Spider) Discover(ctx context.Context, partition string) ([]ListingItem, error) {
	body, err := s.fetch.PostForm(ctx, s.opts.BaseURL+"/searchByRaJson", SearchForm(partition, s.opts.Search))
	if err != nil {
		return nil, eris.Wrapf(err, "sfc: search partition %s", partition)
	}
	defer body.Close() //nolint:errcheck
	return DecodeListing(partition, body)
}

// Run implements crawl.Spider. Partition, entity and facet failures are
// logged and counted; only cancellation ends the run with an error.
func (s *Spider) Run(ctx context.Context, sink crawl.Sink) (*crawl.Stats, error) {
	log := zap.L().With(zap.String("component", "sfc.spider"))
	stats := &crawl.Stats{}

	var facets errgroup.Group
	facets.SetLimit(s.opts.FacetConcurrency)

	var partitions errgroup.Group
	partitions.SetLimit(s.opts.PartitionConcurrency)
	for _, p := range s.opts.Partitions {
		partitions.Go(func() error {
			s.crawlPartition(ctx, log, p, stats, &facets, sink)
			return nil
		})
	}
	_ = partitions.Wait()
	_ = facets.Wait()

	log.Info("sfc crawl finished", zap.Any("stats", stats.Map()))
	if err := ctx.Err(); err != nil {
		return stats, eris.Wrap(err, "sfc: crawl cancelled")
	}
	return stats, nil
}

func (s *Spider) crawlPartition(ctx context.Context, log *zap.Logger, partition string, stats *crawl.Stats, facets *errgroup.Group, sink crawl.Sink) {
	if ctx.Err() != nil {
		return
	}
	stats.Partitions.Add(1)
	log = log.With(zap.String("partition", partition))

	items, err := s.Discover(ctx, partition)
	if err != nil {
		stats.FailedPartitions.Add(1)
		log.Error("partition aborted", zap.String("kind", crawl.Kind(err)), zap.Error(err))
		return
	}
	if len(items) == 0 {
		stats.EmptyPartitions.Add(1)
		log.Debug("partition has no entities")
		return
	}
	log.Info("partition discovered", zap.Int("entities", len(items)))

	for _, it := range items {
		stub, err := it.Stub()
		if err != nil {
			stats.Unclassified.Add(1)
			log.Error("entity skipped",
				zap.String("ceref", it.Ceref),
				zap.String("kind", crawl.Kind(err)),
				zap.Error(err),
			)
			continue
		}
		stats.Entities.Add(1)

		acc := reconcile.NewAccumulator(stub, s.gate)
		for _, desc := range s.facets.All() {
			facets.Go(func() error {
				s.crawlFacet(ctx, log, acc, stub, desc, stats, sink)
				return nil
			})
		}
	}
}

func (s *Spider) crawlFacet(ctx context.Context, log *zap.Logger, acc *reconcile.Accumulator, stub model.EntityStub, desc extract.FacetDescriptor, stats *crawl.Stats, sink crawl.Sink) {
	if ctx.Err() != nil {
		return
	}
	url := FacetURL(s.opts.BaseURL, stub, desc)
	log = log.With(
		zap.String("ceref", stub.Ceref),
		zap.String("facet", desc.Name),
		zap.String("url", url),
	)

	value, err := s.fetchFacet(ctx, desc, url)
	if err != nil {
		stats.FacetErrors.Add(1)
		log.Error("facet failed, entity will not complete", zap.String("kind", crawl.Kind(err)), zap.Error(err))
		return
	}

	rec, done, err := acc.Merge(desc.Name, value)
	if err != nil {
		stats.FacetErrors.Add(1)
		log.Error("facet merge rejected", zap.String("kind", crawl.Kind(err)), zap.Error(err))
		return
	}
	if !done {
		return
	}

	if err := sink.Emit(ctx, rec); err != nil {
		stats.EmitErrors.Add(1)
		log.Error("record not persisted", zap.String("kind", crawl.Kind(err)), zap.Error(err))
		return
	}
	stats.Emitted.Add(1)
}

func (s *Spider) fetchFacet(ctx context.Context, desc extract.FacetDescriptor, url string) (any, error) {
	body, err := s.fetch.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "sfc: fetch facet %s", desc.Name)
	}
	defer body.Close() //nolint:errcheck
	return extract.Facet(desc, body, url)
}
