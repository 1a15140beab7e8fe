package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"stimctl/internal/model"
)

// Logger is the append surface components record through. Trail is the live
// implementation; tests substitute fakes.
type Logger interface {
	Log(ctx context.Context, source, event, details string)
}

// SnapshotFunc supplies the current parameter state captured alongside each
// record. May be nil when the trail has no parameter source.
type SnapshotFunc func() map[model.Channel]model.StimParameters

// Trail is the shared append point for all components. Append is best-effort:
// a failing backend is reported on the console and never propagates to the
// caller. Appends are serialized by one mutex, so records from a single
// caller keep their emission order; every backend write is bounded-short
// (memory append, buffered CSV write, local sqlite insert).
type Trail struct {
	store     Store
	sessionID string
	snapshot  SnapshotFunc
	now       func() time.Time

	mu sync.Mutex
}

type TrailOption func(*Trail)

func WithSnapshot(fn SnapshotFunc) TrailOption {
	return func(t *Trail) { t.snapshot = fn }
}

func WithClock(now func() time.Time) TrailOption {
	return func(t *Trail) { t.now = now }
}

func NewTrail(store Store, sessionID string, opts ...TrailOption) *Trail {
	t := &Trail{
		store:     store,
		sessionID: sessionID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trail) SessionID() string {
	return t.sessionID
}

// Log appends one record with the current timestamp and parameter snapshot
// and echoes it to the console, mirroring the operator-facing live feedback.
func (t *Trail) Log(ctx context.Context, source, event, details string) {
	rec := model.AuditRecord{
		ID:        uuid.New().String(),
		SessionID: t.sessionID,
		At:        t.now(),
		Source:    source,
		Event:     event,
		Details:   details,
	}
	if t.snapshot != nil {
		rec.Params = t.snapshot()
	}

	t.mu.Lock()
	err := t.store.Append(ctx, rec)
	t.mu.Unlock()
	if err != nil {
		log.Printf("audit: append %s/%s failed: %v", source, event, err)
		return
	}
	log.Printf("[LOG] %s - %s %s", source, event, details)
}

func (t *Trail) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FlushIfSupported(t.store)
}

func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return CloseIfSupported(t.store)
}
