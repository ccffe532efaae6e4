package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/db"
	"github.com/sells-group/firmcrawl/internal/model"
)

// PostgresStore implements FirmStore on a pgx pool. Firm documents live in a
// JSONB column and are merged with the || operator.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS firms (
	ceref      TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_firms_name ON firms ((lower(doc->>'name')));
CREATE INDEX IF NOT EXISTS idx_firms_webb_code ON firms ((doc->>'webb_code'));

CREATE TABLE IF NOT EXISTS crawl_runs (
	id           UUID PRIMARY KEY,
	spider       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	stats        JSONB,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_spider_started ON crawl_runs(spider, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Upsert inserts rec or merges its fields into the stored document. The
// update is skipped when it would not change anything, which the caller sees
// as matched but not modified.
func (s *PostgresStore) Upsert(ctx context.Context, rec model.Record) (*crawl.UpsertResult, error) {
	ceref, err := requireCeref(rec)
	if err != nil {
		return nil, err
	}
	doc, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}

	var inserted bool
	err = s.pool.QueryRow(ctx,
		`INSERT INTO firms (ceref, doc, created_at, updated_at) VALUES ($1, $2, now(), now())
		 ON CONFLICT (ceref) DO UPDATE SET doc = firms.doc || EXCLUDED.doc, updated_at = now()
		 WHERE firms.doc IS DISTINCT FROM firms.doc || EXCLUDED.doc
		 RETURNING (xmax = 0)`,
		ceref, doc,
	).Scan(&inserted)
	switch {
	case db.IsNoRows(err):
		return &crawl.UpsertResult{Matched: 1, Modified: 0}, nil
	case err != nil:
		return nil, eris.Wrapf(err, "postgres: upsert firm %s", ceref)
	case inserted:
		return &crawl.UpsertResult{Inserted: true}, nil
	default:
		return &crawl.UpsertResult{Matched: 1, Modified: 1}, nil
	}
}

func (s *PostgresStore) GetFirm(ctx context.Context, ceref string) (*model.Firm, error) {
	var doc []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at, updated_at FROM firms WHERE ceref = $1`,
		ceref,
	).Scan(&doc, &createdAt, &updatedAt)
	if db.IsNoRows(err) {
		return nil, ErrFirmNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get firm %s", ceref)
	}
	f, err := model.DecodeFirm(doc, createdAt, updatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: decode firm %s", ceref)
	}
	return f, nil
}

func (s *PostgresStore) ListFirms(ctx context.Context, filter FirmFilter) ([]model.Firm, error) {
	where, args := pgFirmWhere(filter)
	argIdx := len(args) + 1
	query := `SELECT doc, created_at, updated_at FROM firms` + where + ` ORDER BY ceref`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, pageLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list firms")
	}
	defer rows.Close()

	var firms []model.Firm
	for rows.Next() {
		var doc []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&doc, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan firm")
		}
		f, err := model.DecodeFirm(doc, createdAt, updatedAt)
		if err != nil {
			skipUndecodable(doc, err)
			continue
		}
		firms = append(firms, *f)
	}
	return firms, eris.Wrap(rows.Err(), "postgres: iterate firms")
}

func (s *PostgresStore) CountFirms(ctx context.Context, filter FirmFilter) (int64, error) {
	where, args := pgFirmWhere(filter)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM firms`+where, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count firms")
	}
	return n, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, spider string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_runs (id, spider, status, started_at) VALUES ($1, $2, $3, now())`,
		id, spider, string(model.RunStatusRunning),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start run for %s", spider)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats map[string]any) error {
	var statsJSON []byte
	if stats != nil {
		var err error
		statsJSON, err = json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal run stats")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_runs SET status = $1, completed_at = now(), stats = $2 WHERE id = $3`,
		string(model.RunStatusComplete), statsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_runs SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		string(model.RunStatusFailed), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CrawlRun, error) {
	query := `SELECT id::text, spider, status, started_at, completed_at, stats, error FROM crawl_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Spider != "" {
		query += fmt.Sprintf(` AND spider = $%d`, argIdx)
		args = append(args, filter.Spider)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, pageLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.CrawlRun
	for rows.Next() {
		var r model.CrawlRun
		var status string
		var statsJSON []byte
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.Spider, &status, &r.StartedAt, &r.CompletedAt, &statsJSON, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if errMsg != nil {
			r.Error = *errMsg
		}
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run stats")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// pgFirmWhere renders the WHERE clause shared by ListFirms and CountFirms.
func pgFirmWhere(filter FirmFilter) (string, []any) {
	if filter.NamePrefix == "" {
		return ` WHERE true`, []any{}
	}
	return ` WHERE true AND lower(doc->>'name') LIKE $1`, []any{likePrefix(filter.NamePrefix)}
}
