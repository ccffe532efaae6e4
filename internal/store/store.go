// Package store persists firm documents and crawl run bookkeeping.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/db"
	"github.com/sells-group/firmcrawl/internal/model"
)

// ErrFirmNotFound is returned by GetFirm for an unknown ceref.
var ErrFirmNotFound = eris.New("store: firm not found")

// FirmFilter narrows ListFirms and CountFirms. CountFirms ignores Limit and
// Offset.
type FirmFilter struct {
	// NamePrefix matches the start of the English name, case-insensitively.
	NamePrefix string `json:"name_prefix,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Spider string `json:"spider,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// FirmStore is the persistence interface shared by both spiders, the API
// and the CLI.
type FirmStore interface {
	crawl.Upserter
	crawl.RunLog

	GetFirm(ctx context.Context, ceref string) (*model.Firm, error)
	ListFirms(ctx context.Context, filter FirmFilter) ([]model.Firm, error)
	CountFirms(ctx context.Context, filter FirmFilter) (int64, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.CrawlRun, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Pool        *db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (FirmStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: database_url is required for postgres")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "firmcrawl.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// skipUndecodable logs a stored document that no longer fits model.Firm so
// one bad row does not hide the rest of a page.
func skipUndecodable(doc []byte, err error) {
	var head struct {
		Ceref string `json:"ceref"`
	}
	_ = json.Unmarshal(doc, &head)
	zap.L().Warn("store: skipping undecodable firm document",
		zap.String("ceref", head.Ceref),
		zap.Error(err),
	)
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

// likePrefix lower-cases p and escapes LIKE wildcards for a prefix match.
func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(p)) + "%"
}

var (
	_ FirmStore = (*PostgresStore)(nil)
	_ FirmStore = (*SQLiteStore)(nil)
)
