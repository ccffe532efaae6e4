package crawl

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firmcrawl/internal/model"
)

// Sink receives finished records from a spider.
type Sink interface {
	Emit(ctx context.Context, rec model.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec model.Record) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, rec model.Record) error { return f(ctx, rec) }

// UpsertResult mirrors the matched/modified counts of a document upsert.
type UpsertResult struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
	Inserted bool  `json:"inserted"`
}

// Upserter persists a record keyed by its ceref, overwriting only the fields
// the record carries.
type Upserter interface {
	Upsert(ctx context.Context, rec model.Record) (*UpsertResult, error)
}

// StoreSink writes every emitted record through an Upserter.
type StoreSink struct {
	store  Upserter
	source string
}

// NewStoreSink creates a sink that tags its log lines and missing-key
// errors with source.
func NewStoreSink(store Upserter, source string) *StoreSink {
	return &StoreSink{store: store, source: source}
}

// StoreSinks returns a SinkFactory giving each spider a StoreSink tagged
// with its name.
func StoreSinks(store Upserter) SinkFactory {
	return func(spider string) Sink { return NewStoreSink(store, spider) }
}

// Emit implements Sink.
func (s *StoreSink) Emit(ctx context.Context, rec model.Record) error {
	ceref, _ := rec.Ceref()
	res, err := s.store.Upsert(ctx, rec)
	if err != nil {
		var missing *MissingKeyError
		if errors.As(err, &missing) && missing.Source == "" {
			missing.Source = s.source
		}
		return eris.Wrapf(err, "sink: upsert %s record %q", s.source, ceref)
	}
	zap.L().Debug("record persisted",
		zap.String("source", s.source),
		zap.String("ceref", ceref),
		zap.Int64("matched", res.Matched),
		zap.Int64("modified", res.Modified),
		zap.Bool("inserted", res.Inserted),
	)
	return nil
}
