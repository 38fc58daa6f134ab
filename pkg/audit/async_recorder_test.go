package audit

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvision/vision/pkg/async"
	"github.com/projectvision/vision/pkg/contextkeys"
	"github.com/projectvision/vision/pkg/observability"
)

func TestAsyncRecorder_WritesThrough(t *testing.T) {
	inner := NewMemoryRecorder()
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	r := NewAsyncRecorder(context.Background(), inner, 2, logger, nil)

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(ctx, &Entry{UserID: "u1", Action: ActionJoinBoard, EntityType: EntityTypeBoard, EntityID: "b1"}))
	}
	require.NoError(t, r.Close())

	entries := inner.Entries()
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, "req-1", e.RequestID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestAsyncRecorder_ReportsFailures(t *testing.T) {
	var failures atomic.Int32
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	r := NewAsyncRecorder(context.Background(), failingRecorder{}, 1, logger, func(error) { failures.Add(1) })

	// Queued writes succeed from the caller's point of view
	require.NoError(t, r.Record(context.Background(), &Entry{UserID: "u1", Action: ActionBanMember}))
	require.NoError(t, r.Record(context.Background(), &Entry{UserID: "u1", Action: ActionUnbanMember}))
	require.NoError(t, r.Close())

	assert.Equal(t, int32(2), failures.Load())
}

func TestAsyncRecorder_RecordAfterClose(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	r := NewAsyncRecorder(context.Background(), NewMemoryRecorder(), 1, logger, nil)
	require.NoError(t, r.Close())

	err := r.Record(context.Background(), &Entry{UserID: "u1", Action: ActionJoinBoard})
	assert.ErrorIs(t, err, async.ErrPoolClosed)
}
