package webb

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/fetcher"
	"github.com/sells-group/firmcrawl/internal/model"
)

// DefaultBaseURL is the root of the Webb-site database pages.
const DefaultBaseURL = "https://webb-site.com/dbpub"

// Options configures a Spider.
type Options struct {
	BaseURL        string
	RAType         int
	Concurrency    int
	IncludeHistory bool
}

// Spider reads the head-count ranking and completes each row from the firm's
// organisation page. Every row yields one record; there is no gate.
type Spider struct {
	fetch fetcher.Fetcher
	opts  Options
}

// NewSpider creates a ranking spider.
func NewSpider(f fetcher.Fetcher, opts Options) *Spider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.RAType == 0 {
		opts.RAType = 6
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Spider{fetch: f, opts: opts}
}

// Name implements crawl.Spider.
func (s *Spider) Name() string { return "webb" }

// RankingURL returns the ranking page sorted by head count.
func (s *Spider) RankingURL() string {
	return fmt.Sprintf("%s/SFClicount.asp?s=cntdn&a=%d", s.opts.BaseURL, s.opts.RAType)
}

// OrgDataURL returns the organisation page of a firm.
func (s *Spider) OrgDataURL(code string) string {
	return fmt.Sprintf("%s/orgdata.asp?p=%s", s.opts.BaseURL, code)
}

// HistoryURL returns the head-count history page of a firm.
func (s *Spider) HistoryURL(code string) string {
	return fmt.Sprintf("%s/SFChistfirm.asp?p=%s&a=%d", s.opts.BaseURL, code, s.opts.RAType)
}

// Run implements crawl.Spider. A changed ranking table aborts the run.
func (s *Spider) Run(ctx context.Context, sink crawl.Sink) (*crawl.Stats, error) {
	log := zap.L().With(zap.String("component", "webb.spider"))
	stats := &crawl.Stats{}
	stats.Partitions.Add(1)

	rankingURL := s.RankingURL()
	body, err := s.fetch.Download(ctx, rankingURL)
	if err != nil {
		stats.FailedPartitions.Add(1)
		return stats, eris.Wrap(err, "webb: fetch ranking")
	}
	ranking, err := ParseRanking(body, rankingURL)
	_ = body.Close()
	if err != nil {
		stats.FailedPartitions.Add(1)
		return stats, err
	}
	log.Info("ranking parsed", zap.Int("firms", len(ranking)))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, row := range ranking {
		if ctx.Err() != nil {
			break
		}
		stats.Entities.Add(1)
		g.Go(func() error {
			s.crawlFirm(ctx, log, row, stats, sink)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("webb crawl finished", zap.Any("stats", stats.Map()))
	if err := ctx.Err(); err != nil {
		return stats, eris.Wrap(err, "webb: crawl cancelled")
	}
	return stats, nil
}

func (s *Spider) crawlFirm(ctx context.Context, log *zap.Logger, row RankingRow, stats *crawl.Stats, sink crawl.Sink) {
	log = log.With(zap.String("name", row.Name), zap.String("webb_code", row.WebbCode))
	if row.WebbCode == "" {
		stats.FacetErrors.Add(1)
		log.Error("ranking row has no organisation link")
		return
	}

	rec, err := s.Firm(ctx, row)
	if err != nil {
		stats.FacetErrors.Add(1)
		log.Error("firm skipped", zap.String("kind", crawl.Kind(err)), zap.Error(err))
		return
	}

	if err := sink.Emit(ctx, rec); err != nil {
		stats.EmitErrors.Add(1)
		log.Error("record not persisted", zap.String("kind", crawl.Kind(err)), zap.Error(err))
		return
	}
	stats.Emitted.Add(1)
}

// Firm builds the full record of one ranking row.
func (s *Spider) Firm(ctx context.Context, row RankingRow) (model.Record, error) {
	rec := row.Record()

	orgURL := s.OrgDataURL(row.WebbCode)
	body, err := s.fetch.Download(ctx, orgURL)
	if err != nil {
		return nil, eris.Wrap(err, "webb: fetch orgdata")
	}
	err = ParseOrgData(body, rec)
	_ = body.Close()
	if err != nil {
		return nil, err
	}

	if !s.opts.IncludeHistory {
		return rec, nil
	}

	histURL := s.HistoryURL(row.WebbCode)
	body, err = s.fetch.Download(ctx, histURL)
	if err != nil {
		return nil, eris.Wrap(err, "webb: fetch history")
	}
	hist, err := ParseHeadcountHistory(body, histURL)
	_ = body.Close()
	if err != nil {
		return nil, err
	}
	rec[model.FieldHistNumProfessionals] = hist
	return rec, nil
}
