// Package contextkeys owns the request scoped values shared between the
// middleware that sets them and the loggers, recorders and handlers that read
// them. Keys are unexported so values can only be set through this package.
package contextkeys

import "context"

type key int

const (
	requestIDKey key = iota
	userIDKey
	usernameKey
	loggerKey
)

// WithRequestID stores the request id set by middleware.RequestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID stores the authenticated caller
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithUsername stores the caller's username when the token carries one
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// WithLogger stores a request logger. The value is opaque here to keep this
// package free of imports; observability.GetLogger asserts its type.
func WithLogger(ctx context.Context, logger any) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetRequestID returns the request id or ""
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetUserID returns the authenticated caller or ""
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// GetUsername returns the caller's username or ""
func GetUsername(ctx context.Context) string {
	return stringValue(ctx, usernameKey)
}

// GetLogger returns the value stored by WithLogger, or nil
func GetLogger(ctx context.Context) any {
	return ctx.Value(loggerKey)
}

func stringValue(ctx context.Context, k key) string {
	s, _ := ctx.Value(k).(string)
	return s
}
