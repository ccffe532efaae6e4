package crawl

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Spider crawls one source and emits finished records to a sink. Run returns
// an error only when the whole run had to stop; failures of single
// partitions, entities and facets are logged and counted in Stats.
type Spider interface {
	Name() string
	Run(ctx context.Context, sink Sink) (*Stats, error)
}

// RunLog records the lifecycle of each spider run.
type RunLog interface {
	StartRun(ctx context.Context, spider string) (string, error)
	CompleteRun(ctx context.Context, runID string, stats map[string]any) error
	FailRun(ctx context.Context, runID string, errMsg string) error
}

// Registry holds spiders in registration order.
type Registry struct {
	spiders map[string]Spider
	order   []string
}

// NewRegistry creates a registry with the given spiders.
func NewRegistry(spiders ...Spider) *Registry {
	r := &Registry{spiders: make(map[string]Spider)}
	for _, s := range spiders {
		r.Register(s)
	}
	return r
}

// Register adds a spider. A later spider with the same name replaces the
// earlier one but keeps its position.
func (r *Registry) Register(s Spider) {
	if _, ok := r.spiders[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.spiders[s.Name()] = s
}

// Names returns the registered spider names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select returns the named spiders, or all of them when names is empty.
func (r *Registry) Select(names []string) ([]Spider, error) {
	if len(names) == 0 {
		out := make([]Spider, 0, len(r.order))
		for _, n := range r.order {
			out = append(out, r.spiders[n])
		}
		return out, nil
	}
	out := make([]Spider, 0, len(names))
	for _, n := range names {
		s, ok := r.spiders[n]
		if !ok {
			return nil, eris.Errorf("crawl: unknown spider %q (valid: %v)", n, r.order)
		}
		out = append(out, s)
	}
	return out, nil
}

// SinkFactory returns the sink a named spider emits to.
type SinkFactory func(spider string) Sink

// Engine runs spiders one after another, each against its own sink.
type Engine struct {
	reg    *Registry
	runLog RunLog
	sinks  SinkFactory
}

// NewEngine creates an engine.
func NewEngine(reg *Registry, runLog RunLog, sinks SinkFactory) *Engine {
	return &Engine{reg: reg, runLog: runLog, sinks: sinks}
}

// Summary is the outcome of an engine run.
type Summary struct {
	Succeeded []string
	Failed    []string
}

// Run executes the selected spiders. A failing spider is recorded and the
// next one still runs; only context cancellation stops the loop.
func (e *Engine) Run(ctx context.Context, names []string) (*Summary, error) {
	log := zap.L().With(zap.String("component", "crawl.engine"))

	spiders, err := e.reg.Select(names)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, sp := range spiders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		spLog := log.With(zap.String("spider", sp.Name()))
		runID, err := e.runLog.StartRun(ctx, sp.Name())
		if err != nil {
			return summary, eris.Wrapf(err, "crawl: start run log for %s", sp.Name())
		}

		spLog.Info("spider started", zap.String("run_id", runID))
		start := time.Now()
		stats, err := sp.Run(ctx, e.sinks(sp.Name()))
		elapsed := time.Since(start)

		if err != nil {
			spLog.Error("spider failed",
				zap.String("run_id", runID),
				zap.String("kind", Kind(err)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			if logErr := e.runLog.FailRun(ctx, runID, err.Error()); logErr != nil {
				spLog.Error("failed to record run failure", zap.Error(logErr))
			}
			summary.Failed = append(summary.Failed, sp.Name())
			continue
		}

		var counters map[string]any
		if stats != nil {
			counters = stats.Map()
		}
		if err := e.runLog.CompleteRun(ctx, runID, counters); err != nil {
			spLog.Error("failed to record run completion", zap.Error(err))
		}
		spLog.Info("spider complete",
			zap.String("run_id", runID),
			zap.Any("stats", counters),
			zap.Duration("elapsed", elapsed),
		)
		summary.Succeeded = append(summary.Succeeded, sp.Name())
	}
	return summary, nil
}
