package audit

import (
	"context"
	"fmt"

	"stimctl/internal/model"
)

func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	case "csv":
		return NewCSVStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported audit store backend: %s", kind)
	}
}

// MultiStore fans every record out to each backend in order.
type MultiStore struct {
	stores []Store
}

func NewMultiStore(stores ...Store) *MultiStore {
	return &MultiStore{stores: stores}
}

func (m *MultiStore) Init(ctx context.Context) error {
	for _, s := range m.stores {
		if err := s.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiStore) Append(ctx context.Context, rec model.AuditRecord) error {
	var first error
	for _, s := range m.stores {
		if err := s.Append(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiStore) Flush() error {
	var first error
	for _, s := range m.stores {
		if err := FlushIfSupported(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiStore) Close() error {
	var first error
	for _, s := range m.stores {
		if err := CloseIfSupported(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
