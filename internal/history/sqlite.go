package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(ErrOpenFailed, err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(ErrSchemaFailed, err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		ts INTEGER NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_build_events_build_id ON build_events(build_id);
	CREATE INDEX IF NOT EXISTS idx_build_events_ts ON build_events(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores rec. A zero Time is replaced with the current time.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if len(rec.Metadata) > 0 {
		var err error
		if metadataJSON, err = json.Marshal(rec.Metadata); err != nil {
			return wrap(ErrAppendFailed, err)
		}
	}
	ts := rec.Time
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO build_events (build_id, kind, strategy, message, ts, metadata) VALUES (?, ?, ?, ?, ?, ?)",
		rec.BuildID, string(rec.Kind), rec.Strategy, rec.Message, ts.UnixMilli(), metadataJSON,
	)
	if err != nil {
		return wrap(ErrAppendFailed, err)
	}
	return nil
}

// ByBuild returns every record of one build in insertion order.
func (s *SQLiteStore) ByBuild(ctx context.Context, buildID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, kind, strategy, message, ts, metadata FROM build_events WHERE build_id = ? ORDER BY id",
		buildID,
	)
	if err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) Since(ctx context.Context, t time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, kind, strategy, message, ts, metadata FROM build_events WHERE ts >= ? ORDER BY id LIMIT ?",
		t.UnixMilli(), limit,
	)
	if err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Builds summarizes the most recent builds, newest first.
func (s *SQLiteStore) Builds(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.build_id, b.started, b.finished,
			COALESCE((SELECT strategy FROM build_events WHERE build_id = b.build_id AND strategy != '' ORDER BY id LIMIT 1), ''),
			COALESCE((SELECT kind FROM build_events WHERE build_id = b.build_id AND kind IN ('success', 'failure') ORDER BY id DESC LIMIT 1), ''),
			COALESCE((SELECT message FROM build_events WHERE build_id = b.build_id AND kind IN ('success', 'failure') ORDER BY id DESC LIMIT 1), '')
		FROM (
			SELECT build_id, MIN(ts) AS started, MAX(ts) AS finished, MIN(id) AS first_id
			FROM build_events GROUP BY build_id
		) b
		ORDER BY b.first_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var started, finished int64
		var outcome string
		if err := rows.Scan(&sum.BuildID, &started, &finished, &sum.Strategy, &outcome, &sum.Message); err != nil {
			return nil, wrap(ErrQueryFailed, err)
		}
		sum.Started = time.UnixMilli(started)
		sum.Finished = time.UnixMilli(finished)
		sum.Outcome = Kind(outcome)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	return out, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var kind string
		var ts int64
		var metadataJSON []byte
		if err := rows.Scan(&rec.ID, &rec.BuildID, &kind, &rec.Strategy, &rec.Message, &ts, &metadataJSON); err != nil {
			return nil, wrap(ErrQueryFailed, err)
		}
		rec.Kind = Kind(kind)
		rec.Time = time.UnixMilli(ts)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
				return nil, wrap(ErrQueryFailed, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
