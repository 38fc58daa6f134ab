package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiRecorder fans an entry out to several recorders
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a recorder writing to every destination
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record writes to every recorder, continuing past failures. Each
// recorder receives its own copy of the entry.
func (m *MultiRecorder) Record(ctx context.Context, entry *Entry) error {
	prepare(ctx, entry)

	var errs []error
	for _, r := range m.recorders {
		c := *entry
		if err := r.Record(ctx, &c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Search delegates to the first recorder that can list entries
func (m *MultiRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	for _, r := range m.recorders {
		if s, ok := r.(Searcher); ok {
			return s.Search(ctx, filter)
		}
	}
	return nil, fmt.Errorf("no searchable audit recorder configured")
}

// Close closes all recorders
func (m *MultiRecorder) Close() error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close recorder: %w", err)
		}
	}
	return firstErr
}
