package audit

import (
	"context"
	"time"

	"github.com/projectvision/vision/pkg/contextkeys"
)

// Recorder writes audit entries. Callers treat failures as best effort.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Searcher lists recorded entries
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Entry, error)
}

// prepare fills in the timestamp and request id
func prepare(ctx context.Context, entry *Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}
}

// NoOpRecorder discards entries
type NoOpRecorder struct{}

func (NoOpRecorder) Record(ctx context.Context, entry *Entry) error {
	return nil
}

func (NoOpRecorder) Close() error {
	return nil
}
