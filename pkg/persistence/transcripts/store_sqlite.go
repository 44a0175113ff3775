package transcripts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore keeps transcripts in an in-memory SQLite database. Nothing is
// written to disk; the data lives as long as the store's connection.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// NewSQLiteStore opens a named in-memory database. An empty name picks a unique one.
func NewSQLiteStore(name string) (*SQLiteStore, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "transcripts-" + uuid.NewString()
	}
	db, err := sql.Open("sqlite3", SQLiteMemoryDSN(name))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: open")
	}
	// a shared-cache memory database disappears with its last connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteMemoryDSN builds a shared-cache in-memory DSN for the given database name.
func SQLiteMemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_session ON turns(session_id, seq);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite transcript store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	if err := validateTurn(turn); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(session_id, role, content, created_at_ms) VALUES(?, ?, ?, ?)`,
		sessionID, string(turn.Role), turn.Content, time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: append")
	}
	return nil
}

func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: query turns")
	}
	defer func() { _ = rows.Close() }()

	out := []Turn{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan turn")
		}
		out = append(out, Turn{Role: Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: iterate turns")
	}
	return out, nil
}

func (s *SQLiteStore) Sessions(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM turns ORDER BY session_id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: query sessions")
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan session")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
