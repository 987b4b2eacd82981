// Package store persists canonical events, the processed-blob ledger, and
// alert records in a single SQLite database. The pipeline is the only
// writer; readers (reporting surfaces) consume the same file.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/your-org/logwarden/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  time TEXT,
  category TEXT,
  operation_name TEXT,
  request_uri TEXT,
  request_uri_redacted TEXT,
  caller_ip TEXT,
  user_agent TEXT,
  status_code TEXT,
  auth_type TEXT,
  resource_id TEXT,
  raw_json TEXT,
  container TEXT,
  blob_name TEXT,
  inserted_at TEXT
);

CREATE TABLE IF NOT EXISTS processed_blobs (
  container TEXT,
  blob_name TEXT,
  etag TEXT,
  processed_at TEXT,
  PRIMARY KEY (container, blob_name)
);

CREATE TABLE IF NOT EXISTS alerts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  rule_name TEXT,
  event_id INTEGER,
  created_at TEXT
);
`

// Store is the durable event store. It owns a small SQLite connection pool;
// every method takes a connection, runs one autocommitted statement, and
// returns it. Statements are durable when the method returns.
type Store struct {
	pool   *sqlitex.Pool
	logger *zap.Logger
}

// Open creates (or opens) the database at path and applies the schema. The
// parent directory is created if missing.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    4,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	logger.Info("event store opened", zap.String("path", path))
	return &Store{pool: pool, logger: logger}, nil
}

// prepareConn runs once per pooled connection: WAL for readers that share
// the file, and the schema so first use on a fresh database succeeds.
func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// AppendEvent inserts one canonical event and returns its assigned id.
// Identifiers are monotonically increasing within a database.
func (s *Store) AppendEvent(ctx context.Context, ev model.CanonicalEvent) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO events(time, category, operation_name, request_uri, request_uri_redacted,
		  caller_ip, user_agent, status_code, auth_type, resource_id, raw_json, container, blob_name, inserted_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				ev.Time, ev.Category, ev.OperationName, ev.RequestURI, ev.RequestURIRedacted,
				ev.CallerIP, ev.UserAgent, ev.StatusCode, ev.AuthType, ev.ResourceID,
				ev.RawPayload, ev.SourceContainer, ev.SourceBlob,
				ev.InsertedAt.Format("2006-01-02T15:04:05Z"),
			},
		})
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return conn.LastInsertRowID(), nil
}

// IsProcessed reports whether the (container, name) pair is in the ledger.
// The change token is deliberately not part of the key: a blob rewritten
// after first processing is not picked up again.
func (s *Store) IsProcessed(ctx context.Context, container, name string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	defer s.pool.Put(conn)

	found := false
	err = sqlitex.Execute(conn,
		"SELECT 1 FROM processed_blobs WHERE container = ? AND blob_name = ?",
		&sqlitex.ExecOptions{
			Args: []any{container, name},
			ResultFunc: func(*sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return found, nil
}

// MarkProcessed upserts the ledger entry for (container, name). Callers must
// only invoke this after every event and alert for the blob is durable; that
// ordering is the crash-recovery barrier.
func (s *Store) MarkProcessed(ctx context.Context, container, name, etag, processedAt string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR REPLACE INTO processed_blobs(container, blob_name, etag, processed_at) VALUES (?,?,?,?)",
		&sqlitex.ExecOptions{Args: []any{container, name, etag, processedAt}})
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// AppendAlert records one rule match against a stored event.
func (s *Store) AppendAlert(ctx context.Context, ruleName string, eventID int64, createdAt string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO alerts(rule_name, event_id, created_at) VALUES (?,?,?)",
		&sqlitex.ExecOptions{Args: []any{ruleName, eventID, createdAt}})
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// EventCount returns the number of stored events.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "events")
}

// AlertCount returns the number of stored alerts.
func (s *Store) AlertCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "alerts")
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	defer s.pool.Put(conn)

	var n int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM "+table, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
