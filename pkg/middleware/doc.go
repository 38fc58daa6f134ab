// Package middleware holds the HTTP middleware shared by the API server.
//
// RequestID and RequestLogger give every request an id and a scoped logger.
// Authenticator validates HS256 bearer tokens and stores the caller's user id
// in the request context, where membership handlers read it.
//
// RateLimit throttles a route per user, falling back to the client IP for
// anonymous callers. Two Limiter implementations exist:
//
//	limiter := middleware.NewRedisLimiter(redisClient, middleware.DefaultInviteQuota, "vision")
//	router.Handle("/invites", middleware.RateLimit("invites", limiter, metrics)(handler))
//
// LocalLimiter is the in-process token bucket used when Redis is not
// configured. Both fail open on backend errors.
package middleware
