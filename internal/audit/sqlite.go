package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"stimctl/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec model.AuditRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := encodeParams(rec.Params)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_records (id, session_id, at, source, event, details, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.At.UTC().Format(time.RFC3339Nano), rec.Source, rec.Event, rec.Details, payload)
	return err
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT session_id, MIN(at), COUNT(*)
		FROM audit_records
		GROUP BY session_id
		ORDER BY MIN(seq)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SessionInfo, 0)
	for rows.Next() {
		var info SessionInfo
		var at string
		if err := rows.Scan(&info.SessionID, &at, &info.Records); err != nil {
			return nil, err
		}
		info.StartedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse session start %s: %w", info.SessionID, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]model.AuditRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, at, source, event, details, params
		FROM audit_records
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AuditRecord, 0)
	for rows.Next() {
		var rec model.AuditRecord
		var at string
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &at, &rec.Source, &rec.Event, &rec.Details, &payload); err != nil {
			return nil, err
		}
		rec.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse record time %s: %w", rec.ID, err)
		}
		rec.Params, err = decodeParams(payload)
		if err != nil {
			return nil, fmt.Errorf("decode record params %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func encodeParams(params map[model.Channel]model.StimParameters) ([]byte, error) {
	if len(params) == 0 {
		return nil, nil
	}
	return json.Marshal(params)
}

func decodeParams(payload []byte) (map[model.Channel]model.StimParameters, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var params map[model.Channel]model.StimParameters
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			at TEXT NOT NULL,
			source TEXT NOT NULL,
			event TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			params BLOB
		);
		CREATE INDEX IF NOT EXISTS audit_records_session ON audit_records(session_id, seq);
	`)
	return err
}
