package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.Nil(t, GetLogger(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "alice")
	ctx = WithUsername(ctx, "Alice")
	ctx = WithLogger(ctx, "logger")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "alice", GetUserID(ctx))
	assert.Equal(t, "Alice", GetUsername(ctx))
	assert.Equal(t, "logger", GetLogger(ctx))
}

func TestKeysDoNotCollideWithStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "user_id", "mallory") //nolint:staticcheck
	assert.Empty(t, GetUserID(ctx))
}
