// Package audit provides the append-only, ordered record trail shared by
// every component, with memory, sqlite and CSV backends.
package audit

import (
	"context"
	"time"

	"stimctl/internal/model"
)

// Store is an append-only audit record sink.
type Store interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, rec model.AuditRecord) error
}

// Reader lists persisted sessions and their records. The sqlite and memory
// backends implement it; the CSV backend is write-only.
type Reader interface {
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.AuditRecord, error)
}

type SessionInfo struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Records   int       `json:"records"`
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

func FlushIfSupported(store Store) error {
	flusher, ok := store.(interface{ Flush() error })
	if !ok {
		return nil
	}
	return flusher.Flush()
}
