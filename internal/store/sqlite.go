package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/firmcrawl/internal/crawl"
	"github.com/sells-group/firmcrawl/internal/model"
)

// SQLiteStore implements FirmStore using modernc.org/sqlite, for local runs
// without a Postgres server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Upserts read then write inside one transaction; a single connection
	// serializes them.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS firms (
	ceref      TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_firms_name ON firms (lower(json_extract(doc, '$.name')));

CREATE TABLE IF NOT EXISTS crawl_runs (
	id           TEXT PRIMARY KEY,
	spider       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	stats        TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_spider_started ON crawl_runs(spider, started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts rec or merges its fields into the stored document within
// one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, rec model.Record) (*crawl.UpsertResult, error) {
	ceref, err := requireCeref(rec)
	if err != nil {
		return nil, err
	}
	doc, patch, err := normalizeRecord(rec)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var existingDoc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM firms WHERE ceref = ?`, ceref).Scan(&existingDoc)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO firms (ceref, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			ceref, string(doc), now, now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert firm %s", ceref)
		}
		if err := tx.Commit(); err != nil {
			return nil, eris.Wrap(err, "sqlite: commit upsert")
		}
		return &crawl.UpsertResult{Inserted: true}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read firm %s", ceref)
	}

	existing, err := decodeDocument([]byte(existingDoc))
	if err != nil {
		return nil, err
	}
	merged, changed := MergeDocument(existing, patch)
	if !changed {
		return &crawl.UpsertResult{Matched: 1}, nil
	}

	mergedDoc, err := json.Marshal(merged)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal merged document")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE firms SET doc = ?, updated_at = ? WHERE ceref = ?`,
		string(mergedDoc), now, ceref,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update firm %s", ceref)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit upsert")
	}
	return &crawl.UpsertResult{Matched: 1, Modified: 1}, nil
}

func (s *SQLiteStore) GetFirm(ctx context.Context, ceref string) (*model.Firm, error) {
	var doc string
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at, updated_at FROM firms WHERE ceref = ?`,
		ceref,
	).Scan(&doc, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFirmNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get firm %s", ceref)
	}
	f, err := model.DecodeFirm([]byte(doc), createdAt, updatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode firm %s", ceref)
	}
	return f, nil
}

func (s *SQLiteStore) ListFirms(ctx context.Context, filter FirmFilter) ([]model.Firm, error) {
	where, args := sqliteFirmWhere(filter)
	query := `SELECT doc, created_at, updated_at FROM firms` + where + ` ORDER BY ceref LIMIT ?`
	args = append(args, pageLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list firms")
	}
	defer rows.Close() //nolint:errcheck

	var firms []model.Firm
	for rows.Next() {
		var doc string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&doc, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan firm")
		}
		f, err := model.DecodeFirm([]byte(doc), createdAt, updatedAt)
		if err != nil {
			skipUndecodable([]byte(doc), err)
			continue
		}
		firms = append(firms, *f)
	}
	return firms, eris.Wrap(rows.Err(), "sqlite: list firms iterate")
}

func (s *SQLiteStore) CountFirms(ctx context.Context, filter FirmFilter) (int64, error) {
	where, args := sqliteFirmWhere(filter)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM firms`+where, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count firms")
	}
	return n, nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, spider string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_runs (id, spider, status, started_at) VALUES (?, ?, ?, ?)`,
		id, spider, string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start run for %s", spider)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats map[string]any) error {
	var statsJSON *string
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run stats")
		}
		str := string(b)
		statsJSON = &str
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_runs SET status = ?, completed_at = ?, stats = ? WHERE id = ?`,
		string(model.RunStatusComplete), time.Now().UTC(), statsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CrawlRun, error) {
	query := `SELECT id, spider, status, started_at, completed_at, stats, error FROM crawl_runs WHERE 1=1`
	var args []any

	if filter.Spider != "" {
		query += ` AND spider = ?`
		args = append(args, filter.Spider)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, pageLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.CrawlRun
	for rows.Next() {
		var r model.CrawlRun
		var status string
		var completedAt sql.NullTime
		var statsJSON, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Spider, &status, &r.StartedAt, &completedAt, &statsJSON, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		r.Error = errMsg.String
		if statsJSON.Valid && statsJSON.String != "" {
			if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func sqliteFirmWhere(filter FirmFilter) (string, []any) {
	if filter.NamePrefix == "" {
		return ` WHERE 1=1`, nil
	}
	return ` WHERE 1=1 AND lower(json_extract(doc, '$.name')) LIKE ? ESCAPE '\'`, []any{likePrefix(filter.NamePrefix)}
}
